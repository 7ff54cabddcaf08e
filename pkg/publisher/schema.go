package publisher

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/cel-go/cel"
)

// ValidationError is a single schema violation.
type ValidationError struct {
	FieldPath string // e.g. "rules[2].condition"
	Tag       string
	Message   string
}

// ValidationErrors is returned by Engine.Validate.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "validation failed with %d error(s):", len(ve))
	for i, err := range ve {
		fmt.Fprintf(&sb, "\n  %d. %s: %s", i+1, err.FieldPath, err.Message)
	}
	return sb.String()
}

// schemaDocument wraps a Ruleset so the validator can dive into it.
type schemaDocument struct {
	Rules Ruleset `json:"rules" validate:"required,min=1,max=1024,dive"`
}

func newSchemaValidator(e *Engine) (*validator.Validate, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("cel_bool", e.celValidator(cel.BoolType)); err != nil {
		return nil, err
	}
	if err := v.RegisterValidation("cel_string", e.celValidator(cel.StringType)); err != nil {
		return nil, err
	}
	return v, nil
}

func (e *Engine) celValidator(outputType *cel.Type) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return e.check(fl.Field().String(), outputType) == nil
	}
}

// Validate checks rules against the ruleset schema: a non-empty list of rules
// whose conditions compile to bool and whose consequents are null or compile
// to string.
func (e *Engine) Validate(rules Ruleset) error {
	err := e.validate.Struct(schemaDocument{Rules: rules})
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("failed to validate ruleset: %w", err)
	}
	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			FieldPath: fieldPath(fe.Namespace()),
			Tag:       fe.Tag(),
			Message:   e.message(fe),
		})
	}
	return out
}

// fieldPath drops the wrapper struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func (e *Engine) message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "min":
		return fmt.Sprintf("must contain at least %s rule(s)", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "cel_bool", "cel_string":
		out := cel.BoolType
		if fe.Tag() == "cel_string" {
			out = cel.StringType
		}
		var expr string
		switch v := fe.Value().(type) {
		case string:
			expr = v
		case *string:
			expr = *v
		case Condition:
			expr = string(v)
		}
		if err := e.check(expr, out); err != nil {
			return "invalid expression: " + err.Error()
		}
		return "invalid expression"
	default:
		return fmt.Sprintf("validation failed: %s", fe.Tag())
	}
}
