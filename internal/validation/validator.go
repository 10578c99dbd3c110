// Package validation checks operation inputs and decodes request bodies strictly.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"greendrake/rentals/internal/apperrors"
)

var currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)

type Validator struct {
	validate *validator.Validate
}

// New builds a validator that reports fields by their JSON names.
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	if err := v.RegisterValidation("currency", validateCurrency); err != nil {
		panic(fmt.Sprintf("failed to register 'currency' validator: %v", err))
	}
	return &Validator{validate: v}
}

func validateCurrency(fl validator.FieldLevel) bool {
	return currencyRegex.MatchString(fl.Field().String())
}

// Struct validates s and returns a Validation error listing every failing field.
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return apperrors.Wrap(apperrors.KindValidation, "validation_failed", "invalid input", err)
	}
	return translateValidationErrors(validationErrs)
}

func translateValidationErrors(errs validator.ValidationErrors) error {
	out := apperrors.Validation("invalid input")
	var messages []string
	for _, err := range errs {
		field := strings.SplitN(err.Namespace(), ".", 2)
		name := err.Field()
		if len(field) == 2 {
			name = field[1]
		}

		var message string
		switch err.Tag() {
		case "required":
			message = "is required"
		case "min":
			message = fmt.Sprintf("must be at least %s", err.Param())
		case "max":
			message = fmt.Sprintf("must be at most %s", err.Param())
		case "gt":
			message = fmt.Sprintf("must be greater than %s", err.Param())
		case "gtefield":
			message = fmt.Sprintf("must not be before %s", err.Param())
		case "email":
			message = "must be a valid email address"
		case "currency":
			message = "must be a three-letter ISO 4217 code"
		default:
			message = fmt.Sprintf("failed %s", err.Tag())
		}
		out = out.WithDetail(name, message)
		messages = append(messages, name+" "+message)
	}
	out.Message = "invalid input: " + strings.Join(messages, "; ")
	return out
}

// DecodeJSON decodes exactly one JSON document into dst, rejecting unknown fields.
func DecodeJSON(r io.Reader, dst interface{}) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return apperrors.Validation(fmt.Sprintf("field %q must be %s", typeErr.Field, typeErr.Type.String())).
				WithDetail(typeErr.Field, "wrong type")
		}
		if errors.Is(err, io.EOF) {
			return apperrors.Validation("request body is empty")
		}
		return apperrors.Wrap(apperrors.KindValidation, "validation_failed", "malformed request body", err)
	}
	if dec.More() {
		return apperrors.Validation("request body must contain a single JSON object")
	}
	return nil
}
