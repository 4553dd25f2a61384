package common

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report JSON names instead of Go field names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks req against its `validate` struct tags and returns every
// failing field at once as a *ValidationError.
func Validate(req interface{}) error {
	err := validatorInstance().Struct(req)
	if err == nil {
		return nil
	}

	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return fmt.Errorf("validate request: %w", err)
	}

	out := &ValidationError{Fields: make([]FieldError, 0, len(vErrs))}
	for _, fe := range vErrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fieldPath(fe),
			Rule:    fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return out
}

// MergeValidation combines field errors from several checks; nil inputs are ignored.
func MergeValidation(errs ...*ValidationError) error {
	var out *ValidationError
	for _, e := range errs {
		if e == nil || len(e.Fields) == 0 {
			continue
		}
		if out == nil {
			out = &ValidationError{}
		}
		out.Fields = append(out.Fields, e.Fields...)
	}
	if out == nil {
		return nil
	}
	return out
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		if isLengthKind(fe.Kind()) {
			return fmt.Sprintf("%s must contain at least %s item(s) or character(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if isLengthKind(fe.Kind()) {
			return fmt.Sprintf("%s must contain at most %s item(s) or character(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "uuid", "uuid4":
		return field + " must be a valid UUID"
	case "email":
		return field + " must be a valid email address"
	case "gtfield":
		return fmt.Sprintf("%s must be after %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "alphanum":
		return field + " must contain only letters and digits"
	default:
		return fmt.Sprintf("%s failed the %s check", field, fe.Tag())
	}
}

func isLengthKind(k reflect.Kind) bool {
	switch k {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return true
	}
	return false
}
