package utils

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// phoneRegex matches the phone number formats accepted for accounts.
var phoneRegex = regexp.MustCompile(`^(\+\d{1,2}\s?)?1?\-?\.?\s?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phoneRegex.MatchString(fl.Field().String())
	})
	return v
}

// ValidateStruct validates a request payload and returns field-level
// messages, or nil when the payload is valid.
func ValidateStruct(data interface{}) map[string]string {
	err := validate.Struct(data)
	if err == nil {
		return nil
	}

	messages := make(map[string]string)
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, fieldErr := range validationErrors {
			messages[snakeCase(fieldErr.Field())] = fieldMessage(fieldErr)
		}
	}
	return messages
}

func fieldMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "Missing data for required field."
	case "email":
		return "Not a valid email address."
	case "phone":
		return "Not a valid phone number."
	case "min":
		return fmt.Sprintf("Length must be at least %s.", err.Param())
	case "max":
		return fmt.Sprintf("Length must be at most %s.", err.Param())
	case "uuid":
		return "Not a valid UUID."
	case "numeric", "len":
		return "Not a valid token."
	default:
		return "Invalid value."
	}
}

func snakeCase(field string) string {
	var out []rune
	for i, r := range field {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				out = append(out, '_')
			}
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}
