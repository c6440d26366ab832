package handlers

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"doctrans/internal/domain"
)

// GlossaryUpload stores a CSV glossary and returns its metadata.
func (a *App) GlossaryUpload(w http.ResponseWriter, r *http.Request) {
	if a.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "multipart field 'file' is required")
		return
	}
	defer file.Close()

	if !strings.EqualFold(path.Ext(header.Filename), ".csv") {
		a.error(w, http.StatusBadRequest, "bad_request", "only CSV files are supported")
		return
	}
	targetLang := r.FormValue("target_lang")
	if targetLang == "" {
		targetLang = "zh"
	}

	data, err := io.ReadAll(file)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read upload")
		return
	}
	info, err := a.Glossaries.Save(r.Context(), header.Filename, targetLang, data)
	if err != nil {
		a.Logger.Error().Err(err).Msg("glossary store failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store glossary")
		return
	}
	a.json(w, http.StatusOK, info)
}

// GlossaryList returns all stored glossaries, newest first.
func (a *App) GlossaryList(w http.ResponseWriter, r *http.Request) {
	items, err := a.Glossaries.List()
	if err != nil {
		a.Logger.Error().Err(err).Msg("glossary list failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list glossaries")
		return
	}
	a.json(w, http.StatusOK, items)
}

// GlossaryDelete removes a glossary and its metadata.
func (a *App) GlossaryDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "glossary_id")
	if err := a.Glossaries.Delete(id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "glossary not found")
			return
		}
		a.Logger.Error().Err(err).Str("glossary_id", id).Msg("glossary delete failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete glossary")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"message": "glossary deleted"})
}
