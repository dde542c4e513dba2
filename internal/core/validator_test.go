package core

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"astroscope/internal/types"
)

type validatedRequest struct {
	UserID   string   `json:"user_id" validate:"required,max=8"`
	Latitude *float64 `json:"latitude" validate:"required"`
	Ignored  string   `json:"-"`
}

func TestValidator_ValidateStruct(t *testing.T) {
	v := NewValidator(slog.New(slog.NewTextHandler(io.Discard, nil)))
	lat := 12.5

	tests := []struct {
		name      string
		in        validatedRequest
		wantCode  types.ErrorCode
		wantField string
	}{
		{"valid", validatedRequest{UserID: "u1", Latitude: &lat}, "", ""},
		{"missing user", validatedRequest{Latitude: &lat}, types.ErrCodeValidationMissingField, "user_id"},
		{"missing latitude", validatedRequest{UserID: "u1"}, types.ErrCodeValidationMissingField, "latitude"},
		{"user too long", validatedRequest{UserID: "123456789", Latitude: &lat}, types.ErrCodeValidationInvalidField, "user_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateStruct(tt.in)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected AppError, got %v", err)
			}
			if appErr.Code != tt.wantCode {
				t.Errorf("expected %s, got %s", tt.wantCode, appErr.Code)
			}
			if appErr.Details["field"] != tt.wantField {
				t.Errorf("expected field %q, got %v", tt.wantField, appErr.Details["field"])
			}
		})
	}
}

func TestValidator_NonStructIsInternal(t *testing.T) {
	v := NewValidator(slog.New(slog.NewTextHandler(io.Discard, nil)))

	var appErr *types.AppError
	if err := v.ValidateStruct(42); !errors.As(err, &appErr) || appErr.Code != types.ErrCodeInternalUnexpected {
		t.Errorf("expected internal error for non-struct input, got %v", err)
	}
}
