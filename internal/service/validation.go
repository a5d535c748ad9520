package service

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"chocolatier/backend/internal/store"
)

var validate = validator.New()

func init() {
	// decimal.Decimal is a struct; expose it to validator as a number so
	// gte/gt tags work on prices.
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// ValidationError reports which request fields failed and why. It matches
// store.ErrInvalidInput under errors.Is.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s: %s", store.ErrInvalidInput, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error {
	return store.ErrInvalidInput
}

func invalidField(field string, reason string) error {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

func validateStruct(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		name := fe.Namespace()
		if i := strings.Index(name, "."); i >= 0 {
			name = name[i+1:]
		}
		fields[name] = fe.Tag()
	}
	return &ValidationError{Fields: fields}
}
