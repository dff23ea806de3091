package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

const (
	MaxMetadataKeys      = 32
	MaxMetadataKeyLength = 64
)

// Metadata is a free-form payload attached to a ledger entry. Only a handful of
// known keys are type checked; everything else is stored as is.
type Metadata map[string]any

type metadataKind int

const (
	metadataString metadataKind = iota
	metadataNumber
)

var knownMetadataFields = map[string]metadataKind{
	"source":    metadataString,
	"model":     metadataString,
	"provider":  metadataString,
	"job_type":  metadataString,
	"refund_of": metadataString,
	"units":     metadataNumber,
}

// Validate checks size limits and the shape of known sub-fields.
func (m Metadata) Validate() error {
	if len(m) > MaxMetadataKeys {
		return NewValidationError("metadata", fmt.Sprintf("at most %d keys allowed", MaxMetadataKeys))
	}
	for k, v := range m {
		if k == "" || len(k) > MaxMetadataKeyLength {
			return NewValidationError("metadata", fmt.Sprintf("key %q must be 1-%d characters", k, MaxMetadataKeyLength))
		}
		kind, known := knownMetadataFields[k]
		if !known {
			continue
		}
		switch kind {
		case metadataString:
			if _, ok := v.(string); !ok {
				return NewValidationError("metadata."+k, "must be a string")
			}
		case metadataNumber:
			if !isNumber(v) {
				return NewValidationError("metadata."+k, "must be a number")
			}
		}
	}
	return nil
}

// Clone returns a shallow copy so stored entries never alias caller maps.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int32, int64, float32, float64, json.Number:
		return true
	}
	return false
}

// Scan implements sql.Scanner for JSONB columns.
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("failed to unmarshal JSONB value: %v", value)
	}

	result := make(Metadata)
	if err := json.Unmarshal(data, &result); err != nil {
		return err
	}
	*m = result
	return nil
}

// Value implements driver.Valuer for JSONB columns.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}
