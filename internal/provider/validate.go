package provider

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validator checks raw provider responses against the minimal decision schema.
// A violation marks the provider as failed; it never panics and never returns
// partially valid data.
type Validator struct {
	logger zerolog.Logger
}

// NewValidator constructs a response validator.
func NewValidator(logger zerolog.Logger) *Validator {
	return &Validator{logger: logger.With().Str("component", "response_validator").Logger()}
}

// Validate returns nil when resp conforms to the decision schema. The provider
// id is taken from the argument rather than the response body, so a provider
// cannot impersonate another one.
func (v *Validator) Validate(providerID string, resp Response) error {
	if err := validate.Struct(resp); err != nil {
		reason := describeViolations(err)
		v.logger.Warn().
			Str("provider", providerID).
			Str("reason", reason).
			Msg("provider response failed validation")
		return fmt.Errorf("provider %s: %s", providerID, reason)
	}
	return nil
}

func describeViolations(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, violationMessage(fe))
	}
	return strings.Join(parts, "; ")
}

func violationMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}
