package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"creatoros-backend/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger.InitializeWithWriter("info", "json", &buf)

	logger.LedgerWrite(context.Background(), "org-1", "consumption", -30, 970, "entry_id", "e-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Ledger entry committed", line["msg"])
	assert.Equal(t, "org-1", line["org_id"])
	assert.Equal(t, float64(-30), line["amount"])
	assert.Equal(t, float64(970), line["balance_after"])
	assert.Equal(t, "e-1", line["entry_id"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger.InitializeWithWriter("warn", "text", &buf)

	logger.Info("hidden")
	logger.EnterMethod("LedgerService.Consume")
	logger.Warn("shown", "org_id", "org-1")
	logger.ExternalServiceResult("kafka", "publish", errors.New("broker down"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.NotContains(t, out, "Method entered")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "broker down")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestWithOrg(t *testing.T) {
	var buf bytes.Buffer
	logger.InitializeWithWriter("debug", "json", &buf)

	logger.WithOrg("ledger", "org-9").Debug("reading balance")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ledger", line["service"])
	assert.Equal(t, "org-9", line["org_id"])
}
