package dashboard

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rickgao/subscription-dashboard/internal/model"
)

// FieldError names one payload field that failed a rule.
type FieldError struct {
	Field string // JSON name, e.g. "user_email"
	Rule  string // Validator tag, e.g. "email"
}

// ValidationError blocks a submission before it reaches the network.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " (" + f.Rule + ")"
	}
	return "invalid subscription: " + strings.Join(parts, ", ")
}

// Has reports whether field failed any rule.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks a create/edit payload. It returns *ValidationError listing
// every failing field, or nil.
func Validate(p model.SubscriptionPayload) error {
	p.UserName = strings.TrimSpace(p.UserName)
	p.UserEmail = strings.TrimSpace(p.UserEmail)

	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return out
}
