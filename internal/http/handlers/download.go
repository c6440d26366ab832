package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"doctrans/internal/domain"
	pkgzip "doctrans/pkg/zip"
)

// Download serves one artifact of a completed task.
func (a *App) Download(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	kind := domain.ArtifactKind(chi.URLParam(r, "kind"))
	if kind != domain.ArtifactMono && kind != domain.ArtifactDual {
		a.error(w, http.StatusBadRequest, "bad_request", "artifact kind must be mono or dual")
		return
	}

	refs, ok := a.taskArtifacts(w, taskID)
	if !ok {
		return
	}
	for _, ref := range refs {
		if ref.Kind != kind {
			continue
		}
		full, err := a.Store.Resolve(ref.Key)
		if err != nil || !a.Store.Exists(ref.Key) {
			a.error(w, http.StatusNotFound, "not_found", "artifact file is missing")
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s_%s.pdf", taskID, kind)))
		http.ServeFile(w, r, full)
		return
	}
	a.error(w, http.StatusNotFound, "not_found", fmt.Sprintf("task has no %s artifact", kind))
}

// DownloadBundle serves all artifacts of a completed task as one zip.
func (a *App) DownloadBundle(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	refs, ok := a.taskArtifacts(w, taskID)
	if !ok {
		return
	}

	entries := make([]pkgzip.Entry, 0, len(refs))
	for _, ref := range refs {
		data, err := a.Store.Read(ref.Key)
		if err != nil {
			a.error(w, http.StatusNotFound, "not_found", "artifact file is missing")
			return
		}
		entries = append(entries, pkgzip.Entry{
			Name: fmt.Sprintf("%s_%s.pdf", taskID, ref.Kind),
			Data: data,
		})
	}
	archive, err := pkgzip.Archive(entries)
	if err != nil {
		a.Logger.Error().Err(err).Str("task_id", taskID).Msg("bundle archive failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to build archive")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", taskID+".zip"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

// taskArtifacts resolves the artifact list or writes the appropriate
// result-query error.
func (a *App) taskArtifacts(w http.ResponseWriter, taskID string) ([]domain.ArtifactRef, bool) {
	refs, err := a.Orchestrator.Result(taskID)
	switch {
	case err == nil:
		return refs, true
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "task not found")
	case errors.Is(err, domain.ErrNotReady):
		a.error(w, http.StatusConflict, "not_ready", "translation has not completed")
	case errors.Is(err, domain.ErrTaskFailed):
		a.error(w, http.StatusGone, "task_failed", err.Error())
	case errors.Is(err, domain.ErrTaskCancelled):
		a.error(w, http.StatusGone, "task_cancelled", err.Error())
	default:
		a.error(w, http.StatusInternalServerError, "internal", "result lookup failed")
	}
	return nil, false
}
