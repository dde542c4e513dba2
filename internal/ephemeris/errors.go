package ephemeris

import (
	"context"
	"errors"

	"astroscope/internal/types"
)

// AsAppError maps a provider failure to an AppError. A done context wins over
// whatever error the provider surfaced for it; AppErrors pass through and
// anything else is reported as the ephemeris being unavailable.
func AsAppError(ctx context.Context, err error) *types.AppError {
	if ctxErr := types.ContextError(ctx.Err()); ctxErr != nil {
		return ctxErr
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if ctxErr := types.ContextError(err); ctxErr != nil {
		return ctxErr
	}
	return types.NewAppError(types.ErrCodeUpstreamEphemeris, "ephemeris query failed", err)
}
