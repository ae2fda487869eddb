// pattern: Imperative Shell

package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"floorcast/internal/pipeline"
	"floorcast/internal/storage"
)

// maxUploadBytes bounds an uploaded floor plan.
const maxUploadBytes = 25 << 20

// UploadResponse is the answer to POST /upload.
type UploadResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
	FileURL  string `json:"file_url"`
}

// Submitter queues a stored plan for processing. Both the upload handler
// and the inbox watcher go through it.
type Submitter struct {
	Store        storage.Store
	Runner       *Runner
	DefaultStyle string
}

// Submit stores data under a fresh name keeping ext, then queues it. It
// returns the stored name.
func (s Submitter) Submit(ctx context.Context, data []byte, ext, style string) (string, error) {
	contentType := http.DetectContentType(data)
	name := uuid.NewString() + strings.ToLower(ext)
	if err := s.Store.Put(ctx, name, data, contentType); err != nil {
		return "", err
	}
	if style == "" {
		style = s.DefaultStyle
	}
	job := pipeline.Job{
		ID:    name,
		Plan:  pipeline.Image{Data: data, MIMEType: contentType},
		Style: style,
	}
	if err := s.Runner.Submit(job); err != nil {
		return "", err
	}
	return name, nil
}

// handleUpload handles POST /upload with a multipart "file" and optional
// "style" field.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.store == nil || s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "uploads are not enabled")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if !strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
		writeError(w, http.StatusBadRequest, "File must be an image")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	// The declared type is client-controlled; the bytes must agree.
	if !strings.HasPrefix(http.DetectContentType(data), "image/") {
		writeError(w, http.StatusBadRequest, "File must be an image")
		return
	}

	sub := Submitter{Store: s.store, Runner: s.runner, DefaultStyle: s.defaultStyle}
	name, err := sub.Submit(r.Context(), data, filepath.Ext(header.Filename), r.FormValue("style"))
	if err != nil {
		switch {
		case errors.Is(err, ErrQueueFull), errors.Is(err, ErrRunnerStopped):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			s.logger.Error("upload failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to store upload")
		}
		return
	}

	s.logger.Info("plan uploaded", "file", name, "size", len(data))
	writeJSON(w, http.StatusOK, UploadResponse{
		Message:  "File uploaded successfully - processing started",
		Filename: name,
		FileURL:  "/uploads/" + name,
	})
}

// handleImages handles GET /images.
func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"images": s.hub.Gallery()})
}

// handleGetUpload handles GET /uploads/{name}.
func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	rc, contentType, err := s.store.Open(r.Context(), r.PathValue("name"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		s.logger.Error("failed to open upload", "name", r.PathValue("name"), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read upload")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	_, _ = io.Copy(w, rc)
}
