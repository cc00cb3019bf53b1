package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/target/towertrack-portal/internal/errors"
)

// NewValidator returns the validator shared by portal operations.
func NewValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// validateStruct maps the first failing field to a validation AppError.
func validateStruct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		field := strings.ToLower(fe.Field())
		return apperrors.ValidationField(field, fieldMessage(field, fe.Tag(), fe.Param()))
	}
	return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid input")
}

func fieldMessage(field, tag, param string) string {
	switch tag {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "alphanum":
		return field + " may contain only letters and digits"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "datetime":
		return fmt.Sprintf("%s must be a date formatted %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s", field, tag)
	}
}
