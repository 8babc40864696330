// Package validate wraps go-playground/validator with the tag and field
// naming used by request payloads, and converts failures into apperr
// validation errors.
package validate

import (
	"errors"
	"fmt"
	"log"
	"reflect"
	"strings"
	"sync"
	"time"

	"calplan/internal/apperr"

	"github.com/go-playground/validator/v10"
)

var validatorOnce sync.Once
var validate *validator.Validate

// Validator returns the shared instance. Rules are read from the `binding`
// tag, the same tag gin uses, and fields are reported by their json name.
func Validator() *validator.Validate {
	validatorOnce.Do(func() {
		validate = validator.New()
		validate.SetTagName("binding")

		if err := validate.RegisterValidation("timezone", timezone); err != nil {
			log.Fatalf("Unexpected err %v", err)
		}

		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// timezone accepts an empty string or any IANA zone name.
func timezone(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	if v == "" {
		return true
	}
	_, err := time.LoadLocation(v)
	return err == nil
}

// Struct validates obj and returns an apperr validation error listing every
// failing field, or nil.
func Struct(obj any) error {
	err := Validator().Struct(obj)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(err, apperr.ErrValidation, err.Error())
	}
	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describe(fe)
	}
	return apperr.WithFields(apperr.Validation("request validation failed"), fields)
}

// Field builds a single-field validation error for checks the tags cannot
// express.
func Field(name, message string) error {
	return apperr.WithFields(apperr.Validation(message), map[string]any{name: message})
}

func describe(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "this field is required"
	case "max":
		return fmt.Sprintf("this field cannot be longer than %s", e.Param())
	case "min":
		return fmt.Sprintf("this field must be at least %s", e.Param())
	case "email":
		return "invalid email format"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "timezone":
		return fmt.Sprintf("unknown timezone %q", e.Value())
	default:
		return fmt.Sprintf("%s is not valid", e.Field())
	}
}
