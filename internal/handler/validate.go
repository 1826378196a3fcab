package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/schoolerp/gamification/internal/domain"
)

const notBlankTag = "notblank"

// NewValidator returns a validator that reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation(notBlankTag, func(fl validator.FieldLevel) bool {
		s, ok := fl.Field().Interface().(string)
		return ok && strings.TrimSpace(s) != ""
	})
	return v
}

// validationError turns validator errors into a domain validation error
// naming the first failing field.
func validationError(err error) *domain.AppError {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		switch fe.Tag() {
		case "required", notBlankTag:
			return domain.ErrValidation(fmt.Sprintf("%s is required", fe.Field()))
		case "max":
			return domain.ErrValidation(fmt.Sprintf("%s exceeds %s characters", fe.Field(), fe.Param()))
		default:
			return domain.ErrValidation(fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return domain.ErrValidation(err.Error())
}
