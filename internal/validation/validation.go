package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/congo-pay/accounts/internal/apperr"
)

var (
	phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
	pinPattern   = regexp.MustCompile(`^[0-9]{4,6}$`)
)

// Validator checks request structs and reports failures as apperr.ErrValidation.
type Validator struct {
	v *validator.Validate
}

// New registers the phone and pin tags on top of the stock rules.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("pin", func(fl validator.FieldLevel) bool {
		return pinPattern.MatchString(fl.Field().String())
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Validator{v: v}
}

// Struct validates s. The returned error wraps apperr.ErrValidation.
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 {
		msgs := make([]string, 0, len(fields))
		for _, fe := range fields {
			msgs = append(msgs, describe(fe))
		}
		return apperr.Validation("%s", strings.Join(msgs, "; "))
	}
	return apperr.Validation("%v", err)
}

// Phone reports whether s looks like a phone number.
func Phone(s string) bool { return phonePattern.MatchString(s) }

// PIN reports whether s is a 4 to 6 digit PIN.
func PIN(s string) bool { return pinPattern.MatchString(s) }

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "phone":
		return fmt.Sprintf("%s must be a phone number of 7 to 15 digits", fe.Field())
	case "pin":
		return fmt.Sprintf("%s must be 4 to 6 digits", fe.Field())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
