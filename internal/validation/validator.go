package validation

import (
	"reflect"
	"regexp"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^[0-9]{10,11}$`)
	whitespace   = regexp.MustCompile(`\s`)
)

// New returns a validator that reports json field names and knows the
// storefront rules:
//
//	notblank          non-empty after trimming spaces
//	storefront_email  something@something.tld with no whitespace
//	vn_phone          10 or 11 digits once whitespace is removed
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	mustRegister(v, "notblank", func(fl validatorv10.FieldLevel) bool {
		return IsNotBlank(fl.Field().String())
	})
	mustRegister(v, "storefront_email", func(fl validatorv10.FieldLevel) bool {
		return IsEmail(fl.Field().String())
	})
	mustRegister(v, "vn_phone", func(fl validatorv10.FieldLevel) bool {
		return IsPhone(fl.Field().String())
	})

	return v
}

func mustRegister(v *validatorv10.Validate, tag string, fn validatorv10.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// IsNotBlank reports whether s has a non-space character.
func IsNotBlank(s string) bool { return strings.TrimSpace(s) != "" }

// IsEmail applies the storefront email pattern to s as typed.
func IsEmail(s string) bool { return emailPattern.MatchString(s) }

// IsPhone strips all whitespace from s and expects 10 or 11 digits.
func IsPhone(s string) bool { return phonePattern.MatchString(whitespace.ReplaceAllString(s, "")) }
