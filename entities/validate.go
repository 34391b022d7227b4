package entities

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/jrsteele09/betul-abla-portal/internal/errors"
)

var (
	guardianPhoneRe  = regexp.MustCompile(`^\+?1?\d{9,15}$`)
	nowForValidation = time.Now
	recordValidator  = newRecordValidator()
)

// newRecordValidator reports problems under the JSON field names and adds the
// rules the record types need beyond the built-in tags.
func newRecordValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegister(v, "notblank", validators.NotBlank)
	mustRegister(v, "phone", func(fl validator.FieldLevel) bool {
		return guardianPhoneRe.MatchString(strings.ReplaceAll(fl.Field().String(), " ", ""))
	})
	mustRegister(v, "decimal", func(fl validator.FieldLevel) bool {
		_, err := strconv.ParseFloat(fl.Field().String(), 64)
		return err == nil
	})
	mustRegister(v, "decimal_min", func(fl validator.FieldLevel) bool {
		return compareDecimal(fl, func(value, bound float64) bool { return value >= bound })
	})
	mustRegister(v, "decimal_max", func(fl validator.FieldLevel) bool {
		return compareDecimal(fl, func(value, bound float64) bool { return value <= bound })
	})
	mustRegister(v, "not_future", func(fl validator.FieldLevel) bool {
		t, err := time.Parse(DateLayout, fl.Field().String())
		return err != nil || !t.After(nowForValidation())
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// compareDecimal leaves unparsable values to the decimal rule.
func compareDecimal(fl validator.FieldLevel, ok func(value, bound float64) bool) bool {
	value, err := strconv.ParseFloat(fl.Field().String(), 64)
	if err != nil {
		return true
	}
	bound, err := strconv.ParseFloat(fl.Param(), 64)
	if err != nil {
		return false
	}
	return ok(value, bound)
}

// validate checks a record's struct tags.
func validate(record any) error {
	err := recordValidator.Struct(record)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = problem(fe)
	}
	return &ValidationError{Fields: fields}
}

// validateField checks one value against tag, reporting it as field.
func validateField(field string, value any, tag string) error {
	err := recordValidator.Var(value, tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	return &ValidationError{Fields: map[string]string{field: problem(verrs[0])}}
}

func problem(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		if fe.Param() == "0" {
			return "cannot be negative"
		}
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of " + strings.Join(strings.Fields(fe.Param()), ", ")
	case "datetime":
		return "must be a date in YYYY-MM-DD form"
	case "not_future":
		return "cannot be in the future"
	case "phone":
		return "must be 9 to 15 digits with an optional leading +"
	case "decimal":
		return "must be a number"
	case "decimal_min":
		if fe.Param() == "0" {
			return "cannot be negative"
		}
		return "must be at least " + fe.Param()
	case "decimal_max":
		return "must be at most " + fe.Param()
	default:
		return "is invalid"
	}
}
