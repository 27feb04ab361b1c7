package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	validatorengine "github.com/go-playground/validator/v10"

	"github.com/phillip/volunteer-events-go/apperrors"
)

// StructValidator checks request inputs against their `validate` tags and
// reports failures keyed by JSON field name.
type StructValidator struct {
	Validator *validatorengine.Validate
}

func NewStructValidator() *StructValidator {
	v := validatorengine.New(validatorengine.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return strings.ToLower(fld.Name)
		}
		return name
	})
	return &StructValidator{Validator: v}
}

// ValidateStruct returns an apperrors validation error, or nil.
func (v *StructValidator) ValidateStruct(data any) error {
	err := v.Validator.Struct(data)
	if err == nil {
		return nil
	}
	var errs validatorengine.ValidationErrors
	if !errors.As(err, &errs) {
		return apperrors.Validation(err.Error(), nil)
	}

	fields := make(map[string]string, len(errs))
	for _, e := range errs {
		fields[fieldPath(e)] = describe(e)
	}
	return apperrors.Validation("invalid input", fields)
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(e validatorengine.FieldError) string {
	ns := e.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}

func describe(e validatorengine.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", e.Param())
	case "gtfield":
		return fmt.Sprintf("must be after %s", strings.ToLower(e.Param()))
	case "url":
		return "must be a valid URL"
	case "email":
		return "must be a valid email"
	}
	return fmt.Sprintf("failed %s validation", e.Tag())
}
