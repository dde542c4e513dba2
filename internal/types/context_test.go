package types

import (
	"context"
	"testing"
)

func TestWithRequestID_GetRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-abc")
	if got := GetRequestID(ctx); got != "req-abc" {
		t.Errorf("GetRequestID() = %q, want %q", got, "req-abc")
	}

	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() on empty context = %q, want empty", got)
	}
}

func TestWithClientIP_GetClientIP(t *testing.T) {
	t.Run("round-trip", func(t *testing.T) {
		ctx := WithClientIP(context.Background(), "203.0.113.7")
		got, ok := GetClientIP(ctx)
		if !ok {
			t.Fatal("expected ok to be true")
		}
		if got != "203.0.113.7" {
			t.Errorf("GetClientIP() = %q, want %q", got, "203.0.113.7")
		}
	})

	t.Run("empty value reports missing", func(t *testing.T) {
		ctx := WithClientIP(context.Background(), "")
		if _, ok := GetClientIP(ctx); ok {
			t.Error("expected ok to be false for empty IP")
		}
	})

	t.Run("missing", func(t *testing.T) {
		if _, ok := GetClientIP(context.Background()); ok {
			t.Error("expected ok to be false on empty context")
		}
	})
}
