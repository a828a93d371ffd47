package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/hlog"

	"newsbrief/internal/config"
	"newsbrief/internal/docstore"
	"newsbrief/internal/ingest"
	"newsbrief/internal/models"
)

// Handler serves the article collection and the admin operations over
// it. Loggers come from the request context, not the struct.
type Handler struct {
	store  docstore.Store
	runner *ingest.Runner
}

// NewHandler creates a new handler instance.
func NewHandler(store docstore.Store, runner *ingest.Runner) *Handler {
	return &Handler{store: store, runner: runner}
}

// ArticlesResponse wraps the article list endpoint's payload.
type ArticlesResponse struct {
	Articles []*models.Article `json:"articles"`
}

// GetArticles returns the stored collection, newest first, optionally
// bounded by inclusive from/to dates (YYYY-MM-DD) and a limit.
func (h *Handler) GetArticles(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	log.Debug().Msg("Processing articles request")

	query := r.URL.Query()
	from := query.Get("from")
	to := query.Get("to")

	for name, value := range map[string]string{"from": from, "to": to} {
		if value == "" {
			continue
		}
		if _, err := time.Parse(models.DateFormat, value); err != nil {
			log.Warn().Str(name, value).Msg("Invalid date parameter")
			writeError(w, r, http.StatusBadRequest, "Invalid '"+name+"' parameter: use YYYY-MM-DD")
			return
		}
	}

	limit := 0
	if limitStr := query.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			log.Warn().Str("limit", limitStr).Msg("Invalid 'limit' parameter value")
			writeError(w, r, http.StatusBadRequest, "Invalid 'limit' parameter: must be a positive integer")
			return
		}
		limit = parsed
	}

	articles, _, err := h.loadArticles(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Error loading articles")
		writeError(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	filtered := make([]*models.Article, 0, len(articles))
	for _, a := range articles {
		if from != "" && a.Date < from {
			continue
		}
		if to != "" && a.Date > to {
			continue
		}
		filtered = append(filtered, a)
	}
	models.SortArticles(filtered)
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}

	writeJSON(w, r, http.StatusOK, ArticlesResponse{Articles: filtered})
	log.Info().Int("count", len(filtered)).Msg("Served articles")
}

type deleteRequest struct {
	IDs []string `json:"ids"`
}

type deleteResponse struct {
	Removed   int `json:"removed"`
	Remaining int `json:"remaining"`
}

// DeleteArticles removes the identified articles from the collection.
// The save is conditional on the loaded revision and retried once when
// a collection run lands in between.
func (h *Handler) DeleteArticles(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("Invalid delete request body")
		writeError(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, r, http.StatusBadRequest, "No article ids given")
		return
	}

	ids := make(map[string]struct{}, len(req.IDs))
	for _, id := range req.IDs {
		ids[id] = struct{}{}
	}

	for attempt := 0; attempt < 2; attempt++ {
		articles, rev, err := h.loadArticles(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("Error loading articles for delete")
			writeError(w, r, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		kept := make([]*models.Article, 0, len(articles))
		removed := 0
		for _, a := range articles {
			if _, ok := ids[a.ID]; ok {
				removed++
				continue
			}
			kept = append(kept, a)
		}
		if removed == 0 {
			writeJSON(w, r, http.StatusOK, deleteResponse{Removed: 0, Remaining: len(kept)})
			return
		}

		_, err = h.store.Save(r.Context(), config.DocArticles, kept, rev, "Update News Data via Admin")
		if err == nil {
			log.Info().Int("removed", removed).Msg("Deleted articles")
			writeJSON(w, r, http.StatusOK, deleteResponse{Removed: removed, Remaining: len(kept)})
			return
		}
		if errors.Is(err, docstore.ErrConflict) && attempt == 0 {
			log.Warn().Msg("Article collection changed underneath, retrying delete")
			continue
		}

		log.Error().Err(err).Msg("Error saving articles after delete")
		if errors.Is(err, docstore.ErrConflict) {
			writeError(w, r, http.StatusConflict, "Collection busy, try again")
		} else {
			writeError(w, r, http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}
}

type refreshResponse struct {
	New     int      `json:"new"`
	Updated int      `json:"updated"`
	Changes int      `json:"changes"`
	Log     []string `json:"log"`
}

// Refresh runs one synchronous collection pass and reports its
// outcome, including the captured status lines.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	log.Info().Msg("Manual refresh requested")

	lines := []string{}
	res, err := h.runner.Run(r.Context(), "Update News Data via Admin", ingest.Hooks{
		Status: func(msg string) { lines = append(lines, msg) },
	})
	if err != nil {
		log.Error().Err(err).Msg("Manual refresh failed")
		writeError(w, r, http.StatusInternalServerError, "Refresh failed: "+err.Error())
		return
	}

	log.Info().Int("new", res.New).Int("updated", res.Updated).Msg("Manual refresh finished")
	writeJSON(w, r, http.StatusOK, refreshResponse{
		New:     res.New,
		Updated: res.Updated,
		Changes: res.Changes(),
		Log:     lines,
	})
}

// GetRunLog returns the persisted tail of the most recent automatic
// run. A store without one yet yields an idle, empty log.
func (h *Handler) GetRunLog(w http.ResponseWriter, r *http.Request) {
	runLog := models.NewRunLog()
	if _, err := h.store.Load(r.Context(), config.DocRunLog, &runLog); err != nil && !errors.Is(err, docstore.ErrNotFound) {
		hlog.FromRequest(r).Error().Err(err).Msg("Error loading run log")
		writeError(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, r, http.StatusOK, runLog)
}

// GetSettings returns the stored settings with defaults applied.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.runner.Settings(r.Context()))
}

// PutSettings replaces the settings document after validation.
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	var settings models.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		log.Warn().Err(err).Msg("Invalid settings body")
		writeError(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := settings.Validate(); err != nil {
		log.Warn().Err(err).Msg("Rejected invalid settings")
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.store.Save(r.Context(), config.DocSettings, settings, "", "Update Config via Admin"); err != nil {
		log.Error().Err(err).Msg("Error saving settings")
		writeError(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	log.Info().Msg("Settings updated")
	writeJSON(w, r, http.StatusOK, settings)
}

// GetStats returns the collection statistics document.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	var stats models.Stats
	if _, err := h.store.Load(r.Context(), config.DocStats, &stats); err != nil && !errors.Is(err, docstore.ErrNotFound) {
		hlog.FromRequest(r).Error().Err(err).Msg("Error loading stats")
		writeError(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// loadArticles reads the collection, treating a missing document as
// empty.
func (h *Handler) loadArticles(ctx context.Context) ([]*models.Article, docstore.Revision, error) {
	var articles []*models.Article
	rev, err := h.store.Load(ctx, config.DocArticles, &articles)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return nil, "", err
	}
	return articles, rev, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Error encoding JSON response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg})
}
