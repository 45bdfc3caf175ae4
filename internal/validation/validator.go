// Package validation checks payload shape using the validator/v10 library.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	domainerrors "diary/internal/errors"
)

var slugRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Validator wraps go-playground/validator with domain error conversion.
//
// Besides the built-in rules it understands two tags:
//
//	slug    letters, digits, hyphen and underscore only
//	maxlen  at most MaxLength characters (runes), the bound shared by titles and tag names
type Validator struct {
	v         *validator.Validate
	maxLength int
}

// New creates a validator whose maxlen rule allows maxLength characters.
func New(maxLength int) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return IsSlug(fl.Field().String())
	})
	_ = v.RegisterValidation("maxlen", func(fl validator.FieldLevel) bool {
		return utf8.RuneCountInString(fl.Field().String()) <= maxLength
	})

	return &Validator{v: v, maxLength: maxLength}
}

// Validate validates each payload and reports every failing field across all
// of them in a single domain error.
func (v *Validator) Validate(payloads ...any) error {
	var fieldErrors map[string]string
	for _, p := range payloads {
		err := v.v.Struct(p)
		if err == nil {
			continue
		}
		var validationErrs validator.ValidationErrors
		if !errors.As(err, &validationErrs) {
			return err
		}
		if fieldErrors == nil {
			fieldErrors = make(map[string]string, len(validationErrs))
		}
		for _, e := range validationErrs {
			fieldErrors[e.Field()] = v.friendlyMessage(e)
		}
	}
	if len(fieldErrors) > 0 {
		return domainerrors.ValidationWithDetails("validation failed", fieldErrors)
	}
	return nil
}

// IsSlug reports whether s is a non-empty slug.
func IsSlug(s string) bool {
	return slugRe.MatchString(s)
}

func (v *Validator) friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "maxlen":
		return fmt.Sprintf("must not exceed %d characters", v.maxLength)
	case "slug":
		return "must contain only letters, numbers, underscores or hyphens"
	case "max":
		return fmt.Sprintf("must not exceed %s characters", e.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "email":
		return "must be a valid email address"
	default:
		return "is invalid"
	}
}
