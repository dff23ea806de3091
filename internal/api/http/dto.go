package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"creatoros-backend/internal/domain"
	"creatoros-backend/internal/service"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest turns the first validator failure into a domain validation error.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return domain.NewValidationError(fe.Field(), describeTag(fe))
	}
	return domain.NewValidationError("body", err.Error())
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "ne":
		return "must not be " + fe.Param()
	case "uuid":
		return "must be a UUID"
	}
	return fmt.Sprintf("failed %q check", fe.Tag())
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.NewValidationError("body", "malformed JSON: "+err.Error())
	}
	return nil
}

type ConsumeCreditsRequest struct {
	Amount      int64           `json:"amount" validate:"required,gt=0"`
	Description string          `json:"description" validate:"required,max=256"`
	JobID       *string         `json:"job_id,omitempty" validate:"omitempty,min=1,max=128"`
	Metadata    domain.Metadata `json:"metadata,omitempty"`
}

func (r *ConsumeCreditsRequest) ToServiceRequest(idempotencyKey string) service.ConsumeRequest {
	return service.ConsumeRequest{
		Amount:         r.Amount,
		Description:    r.Description,
		JobID:          r.JobID,
		Metadata:       r.Metadata,
		IdempotencyKey: idempotencyKey,
	}
}

type GrantCreditsRequest struct {
	Amount      int64           `json:"amount" validate:"required,gt=0"`
	Description string          `json:"description" validate:"required,max=256"`
	Metadata    domain.Metadata `json:"metadata,omitempty"`
}

func (r *GrantCreditsRequest) ToServiceRequest(idempotencyKey string) service.GrantRequest {
	return service.GrantRequest{
		Amount:         r.Amount,
		Description:    r.Description,
		Metadata:       r.Metadata,
		IdempotencyKey: idempotencyKey,
	}
}

type RefundCreditsRequest struct {
	EntryID string `json:"entry_id" validate:"required,uuid"`
	Amount  int64  `json:"amount" validate:"gte=0"`
	Reason  string `json:"reason" validate:"max=256"`
}

type AdjustCreditsRequest struct {
	Amount      int64           `json:"amount" validate:"ne=0"`
	Description string          `json:"description" validate:"required,max=256"`
	Metadata    domain.Metadata `json:"metadata,omitempty"`
}

type CreateOrganizationRequest struct {
	Name     string `json:"name" validate:"required,max=128"`
	PlanTier string `json:"plan_tier" validate:"omitempty,oneof=free creator pro agency"`
}
