package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rewardloop/backend/internal/config"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a validator that also understands the points tags:
// limit_type (a key of the limit rule table) and month_key (YYYY-MM).
func NewValidationHelper() *ValidationHelper {
	v := validator.New()
	v.RegisterValidation("limit_type", func(fl validator.FieldLevel) bool {
		_, err := config.ParseLimitType(fl.Field().String())
		return err == nil
	})
	v.RegisterValidation("month_key", func(fl validator.FieldLevel) bool {
		_, err := time.Parse("2006-01", fl.Field().String())
		return err == nil
	})
	return &ValidationHelper{validator: v}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response. Field details are included when
// validationErr carries validator errors.
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	var fieldErrs validator.ValidationErrors
	if errors.As(validationErr, &fieldErrs) {
		errorResp.Details = make(map[string]string, len(fieldErrs))
		for _, err := range fieldErrs {
			errorResp.Details[err.Field()] = fieldMessage(err)
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}

func fieldMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "limit_type":
		return fmt.Sprintf("unknown limit type %q", err.Value())
	case "month_key":
		return "must look like YYYY-MM"
	}
	return fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
}
