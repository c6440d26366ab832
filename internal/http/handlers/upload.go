package handlers

import (
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"doctrans/internal/domain"
	"doctrans/internal/storage"
)

// Upload accepts a multipart PDF and stores it under uploads/<id>.pdf.
func (a *App) Upload(w http.ResponseWriter, r *http.Request) {
	if a.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "multipart field 'file' is required")
		return
	}
	defer file.Close()

	if !strings.EqualFold(path.Ext(header.Filename), ".pdf") {
		a.error(w, http.StatusBadRequest, "bad_request", "only PDF files are supported")
		return
	}

	fileID := uuid.NewString()
	key := path.Join(storage.UploadsPrefix, fileID+".pdf")
	if _, err := a.Store.WriteFrom(r.Context(), key, file); err != nil {
		a.Logger.Error().Err(err).Str("file_id", fileID).Msg("upload store failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store upload")
		return
	}
	size, _ := a.Store.Stat(key)

	a.json(w, http.StatusOK, domain.UploadedInput{
		FileID:     fileID,
		Filename:   header.Filename,
		Size:       size,
		UploadedAt: time.Now().UTC(),
	})
}
