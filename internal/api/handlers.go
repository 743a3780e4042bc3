package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/savegress/fraudlens/internal/pipeline"
	"github.com/savegress/fraudlens/internal/progress"
	"github.com/savegress/fraudlens/internal/reporting"
	"github.com/savegress/fraudlens/internal/storage"
	"github.com/savegress/fraudlens/pkg/models"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	runner    *pipeline.Runner
	store     storage.RunStore
	generator *reporting.Generator
	hub       *progress.Hub
}

// NewHandlers creates new handlers
func NewHandlers(runner *pipeline.Runner, store storage.RunStore, generator *reporting.Generator, hub *progress.Hub) *Handlers {
	return &Handlers{
		runner:    runner,
		store:     store,
		generator: generator,
		hub:       hub,
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "fraudlens",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Run handlers

// StartRun starts a new analysis run over a ledger file
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	run, err := h.runner.Start(r.Context(), req.Source)
	if err != nil {
		if err == pipeline.ErrSourceMissing {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respond(w, http.StatusAccepted, run)
}

// ListRuns lists all analysis runs, newest first
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runner.ListRuns(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, runs)
}

// GetRun gets an analysis run by ID
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.runner.GetRun(r.Context(), id)
	if err != nil {
		if err == pipeline.ErrRunNotFound {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respond(w, http.StatusOK, run)
}

// CancelRun requests cancellation of a running analysis
func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.runner.Cancel(r.Context(), id); err != nil {
		if err == pipeline.ErrRunNotFound {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		if err == pipeline.ErrRunNotActive {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respond(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// DeleteRun deletes a finished run and its stored outputs
func (h *Handlers) DeleteRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.runner.Delete(r.Context(), id); err != nil {
		if err == pipeline.ErrRunNotFound {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		if err == pipeline.ErrRunActive {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetRunFeatures gets the engineered customer features of a run
func (h *Handlers) GetRunFeatures(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.runExists(w, r, id) {
		return
	}

	features, err := h.store.GetFeatures(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, features)
}

// GetRunRiskScores gets the customer risk scores of a run
func (h *Handlers) GetRunRiskScores(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.runExists(w, r, id) {
		return
	}

	band := models.RiskBand(r.URL.Query().Get("band"))
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	scores, err := h.store.GetRiskScores(r.Context(), id, band, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, scores)
}

// GetRunFlagged gets the flagged transactions of a run
func (h *Handlers) GetRunFlagged(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.runExists(w, r, id) {
		return
	}

	minScore, ok := queryFloat(w, r, "min_score")
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	flagged, err := h.store.GetFlagged(r.Context(), id, minScore, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, flagged)
}

// GetRunReport gets the analysis report of a run
func (h *Handlers) GetRunReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.runExists(w, r, id) {
		return
	}

	report, ok := h.generator.GetReport(id)
	if !ok {
		respondError(w, http.StatusNotFound, "Report not found")
		return
	}
	respond(w, http.StatusOK, report)
}

// GetRunReportText gets the rendered text report of a run
func (h *Handlers) GetRunReportText(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.runExists(w, r, id) {
		return
	}

	report, ok := h.generator.GetReport(id)
	if !ok {
		respondError(w, http.StatusNotFound, "Report not found")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, reporting.RenderText(report))
}

// ExportFlaggedCSV streams the flagged transactions of a run as CSV
func (h *Handlers) ExportFlaggedCSV(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.runExists(w, r, id) {
		return
	}

	flagged, err := h.store.GetFlagged(r.Context(), id, 0, 0)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="flagged_transactions.csv"`)
	reporting.WriteFlaggedCSV(w, flagged)
}

// ExportRiskSummaryCSV streams the per-customer risk summary of a run as CSV
func (h *Handlers) ExportRiskSummaryCSV(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.runExists(w, r, id) {
		return
	}

	scores, err := h.store.GetRiskScores(r.Context(), id, "", 0)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	flagged, err := h.store.GetFlagged(r.Context(), id, 0, 0)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="customer_risk_summary.csv"`)
	reporting.WriteRiskSummaryCSV(w, scores, flagged)
}

// GetStats gets overall system statistics
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runner.ListRuns(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	byStatus := make(map[string]int)
	totalFlagged := 0
	for _, run := range runs {
		byStatus[string(run.Status)]++
		totalFlagged += run.FlaggedCount
	}

	respond(w, http.StatusOK, map[string]interface{}{
		"total_runs":           len(runs),
		"active_runs":          h.runner.ActiveRuns(),
		"runs_by_status":       byStatus,
		"flagged_transactions": totalFlagged,
		"websocket":            h.hub.GetStats(),
	})
}

// Helper functions

// runExists writes a 404 or 500 and returns false when the run cannot be
// resolved.
func (h *Handlers) runExists(w http.ResponseWriter, r *http.Request, id string) bool {
	if _, err := h.runner.GetRun(r.Context(), id); err != nil {
		if err == pipeline.ErrRunNotFound {
			respondError(w, http.StatusNotFound, err.Error())
			return false
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return false
	}
	return true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		respondError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return n, true
}

func queryFloat(w http.ResponseWriter, r *http.Request, name string) (float64, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		respondError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return f, true
}

func respond(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respond(w, status, map[string]string{"error": message})
}
