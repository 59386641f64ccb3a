// Package validation holds request validation for the HTTP layer: struct
// tags checked by go-playground/validator plus explicit size limits.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"credlife/internal/credential/models"
	dErrors "credlife/pkg/domain-errors"
)

var defaultValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("credkind", func(fl validator.FieldLevel) bool {
		return models.Kind(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("credstatus", func(fl validator.FieldLevel) bool {
		return models.Status(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("ownerkind", func(fl validator.FieldLevel) bool {
		return models.OwnerKind(fl.Field().String()).IsValid()
	})
	return v
}

// Validate validates a struct using the default validator and returns a domain error.
func Validate(req any) error {
	if err := defaultValidator.Struct(req); err != nil {
		return dErrors.New(dErrors.CodeValidation, ErrorMessage(err))
	}
	return nil
}

// Var validates a single value against a tag expression, naming it field in
// the error.
func Var(field string, value any, tag string) error {
	if err := defaultValidator.Var(value, tag); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
			return dErrors.New(dErrors.CodeValidation, message(field, validationErrs[0]))
		}
		return dErrors.New(dErrors.CodeValidation, field+" is invalid")
	}
	return nil
}

// ErrorMessage converts a validator error into a human-readable message.
func ErrorMessage(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return "invalid request body"
	}
	fe := validationErrs[0]
	field := fe.Field()
	if field == "" {
		field = fe.StructField()
	}
	return message(field, fe)
}

func message(field string, fe validator.FieldError) string {
	switch fe.ActualTag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "url", "uri":
		return fmt.Sprintf("%s must be a valid uri", field)
	case "uuid":
		return fmt.Sprintf("%s must be a valid uuid", field)
	case "min", "gt":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "notblank":
		return fmt.Sprintf("%s must not be blank", field)
	case "credkind":
		return fmt.Sprintf("%s is not a known credential kind", field)
	case "credstatus":
		return fmt.Sprintf("%s is not a known credential status", field)
	case "ownerkind":
		return fmt.Sprintf("%s is not a known owner kind", field)
	default:
		if field == "" {
			return "invalid request body"
		}
		return fmt.Sprintf("%s is invalid", field)
	}
}
