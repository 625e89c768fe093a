// Package validator wraps struct validation for inbound wire payloads.
// Records failing validation are skipped individually by the adapter rather
// than aborting the batch they arrived in.
package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator validates decoded wire payloads against their struct tags.
type Validator struct {
	cli *validator.Validate
}

// A FieldError describes one field that failed validation. Field carries
// the wire (json) name so log lines match the payload the server sent.
type FieldError struct {
	Field   string
	Message string
}

// New initializes and returns a new Validator. Field names in errors are
// taken from json tags.
func New() *Validator {
	cli := validator.New(validator.WithRequiredStructEnabled())
	cli.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{cli: cli}
}

// ValidateStruct validates a payload and returns one error per failing
// field, or nil when the payload is well formed.
func (v *Validator) ValidateStruct(s any) []FieldError {
	err := v.cli.Struct(s)
	if err == nil {
		return nil
	}
	var out []FieldError
	for _, fe := range err.(validator.ValidationErrors) {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Message: fe.Error(),
		})
	}
	return out
}

// Fields joins the failing field names of errs for compact logging.
func Fields(errs []FieldError) string {
	names := make([]string, len(errs))
	for i, e := range errs {
		names[i] = e.Field
	}
	return strings.Join(names, ",")
}
