package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"doctrans/internal/domain"
	"doctrans/internal/storage"
)

type translateRequest struct {
	FileID      string   `json:"file_id"`
	LangIn      string   `json:"lang_in"`
	LangOut     string   `json:"lang_out"`
	Model       string   `json:"model"`
	APIKey      string   `json:"api_key"`
	BaseURL     string   `json:"base_url"`
	Pages       string   `json:"pages"`
	QPS         int      `json:"qps"`
	NoDual      bool     `json:"no_dual"`
	NoMono      bool     `json:"no_mono"`
	GlossaryIDs []string `json:"glossary_ids"`
}

// Translate creates a task from an uploaded file and starts execution.
func (a *App) Translate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Model == "" {
		req.Model = a.DefaultModel
	}
	if req.BaseURL == "" {
		req.BaseURL = a.DefaultBaseURL
	}
	if req.QPS == 0 {
		req.QPS = 1
	}

	if !a.Store.Exists(path.Join(storage.UploadsPrefix, req.FileID+".pdf")) {
		a.error(w, http.StatusNotFound, "not_found", "uploaded file not found")
		return
	}
	for _, id := range req.GlossaryIDs {
		if !a.Glossaries.Exists(id) {
			a.error(w, http.StatusBadRequest, "invalid_configuration", fmt.Sprintf("glossary %s not found", id))
			return
		}
	}

	cfg := domain.JobConfig{
		FileID:      req.FileID,
		LangIn:      req.LangIn,
		LangOut:     req.LangOut,
		Model:       req.Model,
		APIKey:      req.APIKey,
		BaseURL:     req.BaseURL,
		Pages:       req.Pages,
		QPS:         req.QPS,
		NoDual:      req.NoDual,
		NoMono:      req.NoMono,
		GlossaryIDs: req.GlossaryIDs,
	}

	taskID, err := a.Orchestrator.CreateTask(r.Context(), cfg)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidConfig) {
			a.error(w, http.StatusBadRequest, "invalid_configuration", err.Error())
			return
		}
		a.Logger.Error().Err(err).Msg("task creation failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to start translation")
		return
	}
	a.json(w, http.StatusAccepted, map[string]string{"task_id": taskID, "status": "started"})
}

// TranslationStatus returns the latest snapshot for a task.
func (a *App) TranslationStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	snapshot, err := a.Orchestrator.Status(taskID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "task not found")
		return
	}
	a.json(w, http.StatusOK, snapshot)
}

// TranslationCancel sets the cancellation signal for a task. The response
// acknowledges the signal, not that execution has stopped.
func (a *App) TranslationCancel(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	if err := a.Orchestrator.Cancel(taskID); err != nil {
		a.error(w, http.StatusNotFound, "not_found", "task not found")
		return
	}
	a.json(w, http.StatusAccepted, map[string]any{"task_id": taskID, "cancel_requested": true})
}
