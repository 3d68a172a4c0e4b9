package webhook

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

const (
	ReasonMissingUser  = "missing event.user"
	ReasonMissingEmail = "missing user email"
)

// InvalidPayloadError reports a webhook body that cannot be provisioned.
type InvalidPayloadError struct {
	Reason string
}

func (e *InvalidPayloadError) Error() string {
	return "invalid payload: " + e.Reason
}

// MissingEmail distinguishes "no email" from a structurally broken payload.
func (e *InvalidPayloadError) MissingEmail() bool {
	return e.Reason == ReasonMissingEmail
}

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("notblank", validators.NotBlank)

	return &Validator{validate: v}
}

// Validate checks the event and maps the first violation to an InvalidPayloadError.
func (v *Validator) Validate(event *UserRegisteredEvent) error {
	if event == nil {
		return &InvalidPayloadError{Reason: ReasonMissingUser}
	}

	err := v.validate.Struct(event)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return &InvalidPayloadError{Reason: err.Error()}
	}

	field := validationErrs[0].StructNamespace()
	switch {
	case strings.HasSuffix(field, ".Email"):
		return &InvalidPayloadError{Reason: ReasonMissingEmail}
	default:
		return &InvalidPayloadError{Reason: ReasonMissingUser}
	}
}
