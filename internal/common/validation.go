package common

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents validation failures
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s", e.Field, e.Value, e.Message)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateStruct applies `validate` struct tags and returns the failures as ValidationErrors.
func ValidateStruct(s interface{}) []ValidationError {
	err := structValidator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationError{{Field: "", Value: s, Message: err.Error()}}
	}
	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{
			Field:   fe.Namespace(),
			Value:   fe.Value(),
			Message: describeTag(fe),
		})
	}
	return out
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gt", "gte", "lt", "lte", "min", "max":
		return fmt.Sprintf("must satisfy %s=%s", fe.Tag(), fe.Param())
	case "ltefield":
		return "must not exceed " + fe.Param()
	}
	return "failed '" + fe.Tag() + "' check"
}

// JoinValidationErrors renders validation failures as one message.
func JoinValidationErrors(errs []ValidationError) string {
	messages := make([]string, 0, len(errs))
	for _, err := range errs {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}
