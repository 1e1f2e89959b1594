package exam

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/examhall/internal/apperrors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their JSON names so messages match the import format.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func formatFieldError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "gt":
		return e.Field() + " must be greater than " + e.Param()
	case "lte":
		return e.Field() + " must be at most " + e.Param()
	default:
		return e.Field() + " validation failed: " + e.Tag()
	}
}

// fieldErrors flattens a validator error into readable messages.
func fieldErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return msgs
}

// validateRows checks every row and returns one ValidationError naming each
// bad row (1-based) and its failing fields.
func validateRows[T any](kind string, rows []T) error {
	if len(rows) == 0 {
		return apperrors.Validation("no %s rows to import", kind)
	}
	details := map[string]any{}
	for i, row := range rows {
		if err := validate.Struct(row); err != nil {
			details[fmt.Sprintf("row %d", i+1)] = fieldErrors(err)
		}
	}
	if len(details) > 0 {
		return apperrors.Validation("%d of %d %s rows are invalid", len(details), len(rows), kind).WithDetails(details)
	}
	return nil
}
