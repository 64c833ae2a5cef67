package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/core-tools/hsu-reactor/pkg/errors"
)

// validate is the shared validator instance.
var validate *validator.Validate

func init() {
	validate = validator.New()

	// report fields by their YAML names
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})

	validate.RegisterValidation("unit_name", validateUnitName)
}

// validateUnitName accepts systemd unit names: no path separators, no
// whitespace, at most 255 bytes.
func validateUnitName(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	if len(value) > 255 {
		return false
	}
	return !strings.ContainsAny(value, "/ \t\n\x00")
}

// validateStruct runs the tag rules and folds their failures into one
// validation error.
func validateStruct(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return formatValidationErrors(validationErrors)
		}
		return errors.NewValidationError("validation failed", err)
	}
	return nil
}

func formatValidationErrors(errs validator.ValidationErrors) error {
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, formatFieldError(e))
	}
	return errors.NewValidationError(fmt.Sprintf("validation failed: %s", strings.Join(messages, "; ")), nil)
}

func formatFieldError(e validator.FieldError) string {
	field := e.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "unit_name":
		return fmt.Sprintf("%s must be a valid unit name", field)
	case "gt":
		return fmt.Sprintf("%s must be > %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, e.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a host:port address", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
