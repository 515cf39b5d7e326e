package validator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON name so clients see the keys they sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("username", isUsername)
	return v
}

// isUsername accepts non-blank identifiers that are safe to place in a URL
// path segment of a downstream request.
func isUsername(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if strings.TrimSpace(s) == "" {
		return false
	}
	for _, r := range s {
		if r == '/' || r == '?' || r == '#' || unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// Validate validates a struct using go-playground/validator tags.
func Validate(s any) error {
	return wrap(validate.Struct(s))
}

// Var validates a single value against a tag expression, reporting it under
// the given field name.
func Var(field string, value any, tag string) error {
	if err := validate.Var(value, tag); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok {
			return &ValidationError{Errors: ve, field: field}
		}
		return err
	}
	return nil
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	if ve, ok := err.(validator.ValidationErrors); ok {
		return &ValidationError{Errors: ve}
	}
	return err
}

// ValidationError wraps validator.ValidationErrors with user-facing messages.
type ValidationError struct {
	Errors validator.ValidationErrors
	field  string
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("field '%s' %s", e.name(fe), msgForTag(fe)))
	}
	return strings.Join(msgs, "; ")
}

// Fields returns a map of field names to error messages.
func (e *ValidationError) Fields() map[string]string {
	fields := make(map[string]string, len(e.Errors))
	for _, fe := range e.Errors {
		fields[e.name(fe)] = msgForTag(fe)
	}
	return fields
}

func (e *ValidationError) name(fe validator.FieldError) string {
	if e.field != "" {
		return e.field
	}
	return fe.Field()
}

func msgForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "username":
		return "must be a non-blank name without spaces, '/', '?' or '#'"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
}

// DecodeAndValidate decodes a JSON request body into dst, rejecting unknown
// fields, and validates the result.
func DecodeAndValidate(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return Validate(dst)
}
