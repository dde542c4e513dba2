// Package handlers maps the astroscope HTTP API onto the domain services.
// Handlers depend on small locally defined interfaces so they can be tested
// with in-package fakes.
package handlers

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"astroscope/internal/chart"
	"astroscope/internal/core"
	"astroscope/internal/export"
	"astroscope/internal/transit"
	"astroscope/internal/types"
)

// TransitScanner finds sign entries over a year range.
type TransitScanner interface {
	Scan(ctx context.Context, q transit.Query) ([]types.TransitEvent, error)
}

// ChartCalculator casts natal charts.
type ChartCalculator interface {
	Compute(ctx context.Context, req chart.Request) (*types.Chart, error)
}

// AstrologyHandler serves transit searches, their spreadsheet export and
// chart calculation.
type AstrologyHandler struct {
	scanner      TransitScanner
	calculator   ChartCalculator
	validator    *core.Validator
	logger       *slog.Logger
	maxBodyBytes int64
	now          func() time.Time
}

// NewAstrologyHandler creates an AstrologyHandler. maxBodyBytes <= 0 uses
// core.DefaultMaxBodyBytes.
func NewAstrologyHandler(
	scanner TransitScanner,
	calculator ChartCalculator,
	val *core.Validator,
	logger *slog.Logger,
	maxBodyBytes int64,
) *AstrologyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AstrologyHandler{
		scanner:      scanner,
		calculator:   calculator,
		validator:    val,
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
		now:          time.Now,
	}
}

// RegisterRoutes mounts the astrology endpoints under /api.
func (h *AstrologyHandler) RegisterRoutes(r chi.Router) {
	r.Post("/constellation-search", h.HandleConstellationSearch)
	r.Post("/constellation-search/export", h.HandleConstellationExport)
	r.Post("/get-chart", h.HandleGetChart)
}

// constellationSearchRequest is the body of both constellation-search
// endpoints. Limit is a pointer so an explicit zero is rejected rather than
// defaulted.
type constellationSearchRequest struct {
	StarName  string `json:"star_name" validate:"required"`
	SignName  string `json:"sign_name" validate:"required"`
	StartYear *int   `json:"start_year" validate:"required"`
	EndYear   *int   `json:"end_year" validate:"required"`
	Limit     *int   `json:"limit"`
}

type constellationSearchResponse struct {
	Status  string               `json:"status"`
	Results []types.TransitEvent `json:"results"`
}

// HandleConstellationSearch handles POST /api/constellation-search.
func (h *AstrologyHandler) HandleConstellationSearch(w http.ResponseWriter, r *http.Request) {
	_, events, err := h.search(w, r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, constellationSearchResponse{Status: core.StatusSuccess, Results: events})
}

// HandleConstellationExport handles POST /api/constellation-search/export.
// The workbook is rendered fully before any byte is sent so a rendering
// failure can still produce a JSON error.
func (h *AstrologyHandler) HandleConstellationExport(w http.ResponseWriter, r *http.Request) {
	search, events, err := h.search(w, r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteTransits(&buf, search, events, h.now().UTC()); err != nil {
		h.logger.ErrorContext(r.Context(), "transit export failed", "error", err)
		core.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentTypeXLSX)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(search)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// search decodes and runs a constellation search. The returned TransitSearch
// carries canonical body and sign names.
func (h *AstrologyHandler) search(w http.ResponseWriter, r *http.Request) (types.TransitSearch, []types.TransitEvent, error) {
	var req constellationSearchRequest
	if err := core.DecodeJSON(w, r, &req, h.maxBodyBytes); err != nil {
		return types.TransitSearch{}, nil, err
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return types.TransitSearch{}, nil, err
	}
	if req.Limit != nil && *req.Limit < transit.MinLimit {
		return types.TransitSearch{}, nil, types.NewAppErrorWithDetails(
			types.ErrCodeValidationLimit,
			fmt.Sprintf("limit must be between %d and %d", transit.MinLimit, transit.MaxLimit),
			nil,
			map[string]any{"limit": *req.Limit},
		)
	}

	search := types.TransitSearch{
		Body:      strings.TrimSpace(req.StarName),
		Sign:      strings.TrimSpace(req.SignName),
		StartYear: *req.StartYear,
		EndYear:   *req.EndYear,
	}
	if req.Limit != nil {
		search.Limit = *req.Limit
	}

	q, err := transit.ParseQuery(search)
	if err != nil {
		return types.TransitSearch{}, nil, err
	}
	search.Body, search.Sign, search.Limit = q.Body.String(), q.Sign.String(), q.Limit

	events, err := h.scanner.Scan(r.Context(), q)
	if err != nil {
		return types.TransitSearch{}, nil, err
	}
	if events == nil {
		events = []types.TransitEvent{}
	}
	return search, events, nil
}

// chartRequest is the get-chart body. Either date or datetime carries the
// timestamp; datetime wins when both are set.
type chartRequest struct {
	Date      string   `json:"date"`
	Datetime  string   `json:"datetime"`
	Latitude  *float64 `json:"latitude" validate:"required"`
	Longitude *float64 `json:"longitude" validate:"required"`
	City      string   `json:"city" validate:"max=200"`
}

type chartResponse struct {
	Status string       `json:"status"`
	Chart  *types.Chart `json:"chart"`
}

// HandleGetChart handles POST /api/get-chart.
func (h *AstrologyHandler) HandleGetChart(w http.ResponseWriter, r *http.Request) {
	var req chartRequest
	if err := core.DecodeJSON(w, r, &req, h.maxBodyBytes); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	raw := req.Datetime
	if strings.TrimSpace(raw) == "" {
		raw = req.Date
	}
	if strings.TrimSpace(raw) == "" {
		core.Error(w, r, types.NewAppErrorWithDetails(
			types.ErrCodeValidationMissingField,
			"date or datetime is required",
			nil,
			map[string]any{"field": "date"},
		))
		return
	}
	at, err := chart.ParseTimestamp(raw)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.calculator.Compute(r.Context(), chart.Request{
		Time:      at,
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		City:      strings.TrimSpace(req.City),
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, chartResponse{Status: core.StatusSuccess, Chart: result})
}
