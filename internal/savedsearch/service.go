// Package savedsearch stores and lists users' saved queries and results. The
// backing store is optional: when it is not configured or failed to open,
// the service is constructed in an explicit unavailable state and every
// operation reports it instead of touching a nil store.
package savedsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"astroscope/internal/types"
)

const (
	// DefaultNamespace scopes records when no namespace is configured.
	DefaultNamespace = "astroscope"
	// DefaultListLimit caps how many records List returns.
	DefaultListLimit = 100
	// MaxUserIDLength bounds the owning user id.
	MaxUserIDLength = 128
)

// Store persists saved searches. Records are never updated or deleted.
type Store interface {
	Save(ctx context.Context, s *types.SavedSearch) error
	// ListByUser returns a user's records in the namespace, newest first.
	ListByUser(ctx context.Context, namespace, userID string, limit int) ([]*types.SavedSearch, error)
	Ping(ctx context.Context) error
}

// Config scopes and bounds the service.
type Config struct {
	Namespace string
	ListLimit int
}

// Service is the saved-search use case.
type Service struct {
	store       Store
	unavailable string
	namespace   string
	listLimit   int
	logger      *slog.Logger

	now   func() time.Time
	newID func() string
}

// New creates an available Service backed by store.
func New(store Store, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = DefaultListLimit
	}
	return &Service{
		store:     store,
		namespace: cfg.Namespace,
		listLimit: cfg.ListLimit,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// NewUnavailable creates a Service whose store could not be set up. reason is
// logged and reported by the health probe, never returned to clients.
func NewUnavailable(reason string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if reason == "" {
		reason = "saved-search store is not configured"
	}
	return &Service{unavailable: reason, logger: logger, now: time.Now, newID: uuid.NewString}
}

// Available reports whether a store is attached.
func (s *Service) Available() bool {
	return s.unavailable == ""
}

func (s *Service) checkAvailable(ctx context.Context, op string) error {
	if s.Available() {
		return nil
	}
	s.logger.WarnContext(ctx, "saved-search store unavailable", "operation", op, "reason", s.unavailable)
	return types.NewAppError(types.ErrCodeUnavailableStore, "saved-search storage is unavailable", nil)
}

// Save stores query and data verbatim for userID and returns the new record id.
func (s *Service) Save(ctx context.Context, userID string, query, data json.RawMessage) (string, error) {
	if err := s.checkAvailable(ctx, "save"); err != nil {
		return "", err
	}

	userID, err := normalizeUserID(userID)
	if err != nil {
		return "", err
	}
	if err := requireJSON("search_query", query); err != nil {
		return "", err
	}
	if err := requireJSON("search_data", data); err != nil {
		return "", err
	}

	rec := &types.SavedSearch{
		ID:        s.newID(),
		Namespace: s.namespace,
		UserID:    userID,
		Query:     query,
		Data:      data,
		SavedAt:   s.now().UTC(),
	}
	if err := s.store.Save(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "failed to save search", "user_id", userID, "error", err)
		return "", storeError(err, "failed to save search")
	}

	s.logger.InfoContext(ctx, "search saved", "search_id", rec.ID, "user_id", userID)
	return rec.ID, nil
}

// List returns userID's saved searches, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]*types.SavedSearch, error) {
	if err := s.checkAvailable(ctx, "list"); err != nil {
		return nil, err
	}

	userID, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}

	out, err := s.store.ListByUser(ctx, s.namespace, userID, s.listLimit)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list saved searches", "user_id", userID, "error", err)
		return nil, storeError(err, "failed to list saved searches")
	}
	if out == nil {
		out = []*types.SavedSearch{}
	}
	return out, nil
}

func normalizeUserID(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", types.NewAppError(types.ErrCodeValidationInvalidUserID, "user_id is required", nil)
	}
	if len(userID) > MaxUserIDLength {
		return "", types.NewAppError(
			types.ErrCodeValidationInvalidUserID,
			fmt.Sprintf("user_id must be at most %d characters", MaxUserIDLength),
			nil,
		)
	}
	return userID, nil
}

func requireJSON(field string, v json.RawMessage) error {
	if len(v) == 0 || string(v) == "null" {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationMissingField,
			field+" is required",
			nil,
			map[string]any{"field": field},
		)
	}
	if !json.Valid(v) {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidField,
			field+" must be valid JSON",
			nil,
			map[string]any{"field": field},
		)
	}
	return nil
}

// storeError keeps AppErrors from the store and maps the rest to a database
// failure. Context expiry is reported as such.
func storeError(err error, msg string) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if ctxErr := types.ContextError(err); ctxErr != nil {
		return ctxErr
	}
	return types.NewAppError(types.ErrCodeInternalDB, msg, err)
}

// HealthProbe reports store reachability.
type HealthProbe struct {
	svc *Service
}

// NewHealthProbe creates a probe for svc.
func NewHealthProbe(svc *Service) *HealthProbe {
	return &HealthProbe{svc: svc}
}

// Name implements core.HealthProbe.
func (p *HealthProbe) Name() string { return "store" }

// Check implements core.HealthProbe.
func (p *HealthProbe) Check(ctx context.Context) error {
	if !p.svc.Available() {
		return errors.New(p.svc.unavailable)
	}
	return p.svc.store.Ping(ctx)
}

// Optional marks the store as non-critical: charts and scans keep working
// without it.
func (p *HealthProbe) Optional() bool { return true }
