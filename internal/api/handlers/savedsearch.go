package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"astroscope/internal/core"
	"astroscope/internal/types"
)

// SavedSearchService persists and lists saved searches.
type SavedSearchService interface {
	Save(ctx context.Context, userID string, query, data json.RawMessage) (string, error)
	List(ctx context.Context, userID string) ([]*types.SavedSearch, error)
}

// SavedSearchHandler serves the saved-search endpoints.
type SavedSearchHandler struct {
	service      SavedSearchService
	logger       *slog.Logger
	maxBodyBytes int64
}

// NewSavedSearchHandler creates a SavedSearchHandler.
func NewSavedSearchHandler(svc SavedSearchService, logger *slog.Logger, maxBodyBytes int64) *SavedSearchHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SavedSearchHandler{service: svc, logger: logger, maxBodyBytes: maxBodyBytes}
}

// RegisterRoutes mounts the saved-search endpoints under /api.
func (h *SavedSearchHandler) RegisterRoutes(r chi.Router) {
	r.Post("/save-search", h.HandleSave)
	r.Get("/get-saved-searches", h.HandleList)
}

type saveSearchRequest struct {
	UserID string          `json:"user_id"`
	Query  json.RawMessage `json:"search_query"`
	Data   json.RawMessage `json:"search_data"`
}

type saveSearchResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	SearchID string `json:"search_id"`
}

type savedSearchesResponse struct {
	Status   string               `json:"status"`
	Searches []*types.SavedSearch `json:"searches"`
}

// HandleSave handles POST /api/save-search. Query and data are stored
// verbatim.
func (h *SavedSearchHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	var req saveSearchRequest
	if err := core.DecodeJSON(w, r, &req, h.maxBodyBytes); err != nil {
		core.Error(w, r, err)
		return
	}

	id, err := h.service.Save(r.Context(), req.UserID, req.Query, req.Data)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, saveSearchResponse{
		Status:   core.StatusSuccess,
		Message:  "Search saved successfully",
		SearchID: id,
	})
}

// HandleList handles GET /api/get-saved-searches?user_id=.
func (h *SavedSearchHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	searches, err := h.service.List(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, savedSearchesResponse{Status: core.StatusSuccess, Searches: searches})
}
