package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"astroscope/internal/types"
)

// Validator wraps go-playground/validator and maps its failures to AppErrors.
// Field names are reported by their JSON names.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator with JSON field naming.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	return &Validator{validate: v, logger: logger}
}

// ValidateStruct validates s and reports the first failure. A missing required
// field is validation_missing_required_field; any other rule failure is
// validation_invalid_field.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		v.logger.Error("struct validation misconfigured", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	fe := verrs[0]
	details := map[string]any{"field": fe.Field(), "rule": fe.Tag()}
	if fe.Tag() == "required" {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationMissingField,
			fe.Field()+" is required",
			err,
			details,
		)
	}
	if fe.Param() != "" {
		details["param"] = fe.Param()
	}
	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationInvalidField,
		fmt.Sprintf("%s failed the %q rule", fe.Field(), fe.Tag()),
		err,
		details,
	)
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}
