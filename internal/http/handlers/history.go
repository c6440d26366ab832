package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"doctrans/internal/domain"
)

// TranslationList returns the persisted history, newest first, with
// on-disk artifact status per record.
func (a *App) TranslationList(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.History.List())
}

// TranslationDelete removes one history record. It does not touch a
// task mid-execution; the registry keeps its own state.
func (a *App) TranslationDelete(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	if err := a.History.Delete(taskID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "translation record not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete record")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"message": "translation record deleted"})
}

// TranslationDeleteMany removes a batch of history records.
func (a *App) TranslationDeleteMany(w http.ResponseWriter, r *http.Request) {
	var taskIDs []string
	if err := json.NewDecoder(r.Body).Decode(&taskIDs); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	deleted := a.History.DeleteMany(taskIDs)
	if deleted == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no matching translation records")
		return
	}
	a.json(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("deleted %d translation records", deleted),
	})
}

type cleanupRequest struct {
	DeleteOrphanFiles   bool `json:"delete_orphan_files"`
	DeleteOrphanRecords bool `json:"delete_orphan_records"`
}

// FilesCleanup scans for orphan output files and orphan records and
// optionally removes them.
func (a *App) FilesCleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	result, err := a.History.Cleanup(req.DeleteOrphanFiles, req.DeleteOrphanRecords)
	if err != nil {
		a.Logger.Error().Err(err).Msg("cleanup failed")
		a.error(w, http.StatusInternalServerError, "internal", "cleanup failed")
		return
	}
	a.json(w, http.StatusOK, result)
}

// FilesStats reports storage usage grouped by task status.
func (a *App) FilesStats(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.History.Stats())
}
