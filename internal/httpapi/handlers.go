package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fpang/mystic-studio/internal/imagedata"
	"github.com/fpang/mystic-studio/internal/session"
	"github.com/go-chi/chi/v5"
)

// multipartOverhead is allowed on top of the upload limit for form framing.
const multipartOverhead = 1 << 20

// GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

// POST /api/sessions
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	es, err := s.ctrl.Create(r.Context())
	if err != nil {
		controllerError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, newSessionView(es))
}

// GET /api/sessions/{id}
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	es, err := s.ctrl.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		controllerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionView(es))
}

// PUT /api/sessions/{id}/image (multipart field "file")
func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	limit := int64(s.ctrl.MaxUploadBytes())
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			controllerError(w, err)
			return
		}
		httpError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		httpError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	es, err := s.ctrl.SelectFile(r.Context(), chi.URLParam(r, "id"), data,
		header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		controllerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionView(es))
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

// PUT /api/sessions/{id}/prompt
func (s *Server) handleSetPrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	es, err := s.ctrl.SetPrompt(r.Context(), chi.URLParam(r, "id"), req.Prompt)
	if err != nil {
		controllerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionView(es))
}

// POST /api/sessions/{id}/edit
func (s *Server) handleSubmitEdit(w http.ResponseWriter, r *http.Request) {
	es, err := s.ctrl.SubmitEdit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		controllerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionView(es))
}

type resetRequest struct {
	Scope string `json:"scope"`
}

// POST /api/sessions/{id}/reset
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	scope, err := session.ParseResetScope(req.Scope)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	es, err := s.ctrl.Reset(r.Context(), chi.URLParam(r, "id"), scope)
	if err != nil {
		controllerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionView(es))
}

// GET /api/sessions/{id}/original
func (s *Server) handleOriginal(w http.ResponseWriter, r *http.Request) {
	es, err := s.ctrl.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		controllerError(w, err)
		return
	}
	if !es.HasOriginal() {
		httpError(w, http.StatusNotFound, "no image selected")
		return
	}
	serveImage(w, r, es.Original, "")
}

// GET /api/sessions/{id}/edited
func (s *Server) handleEdited(w http.ResponseWriter, r *http.Request) {
	s.serveEdited(w, r, "")
}

// GET /api/sessions/{id}/download
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	s.serveEdited(w, r, DownloadFilename)
}

func (s *Server) serveEdited(w http.ResponseWriter, r *http.Request, attachment string) {
	es, err := s.ctrl.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		controllerError(w, err)
		return
	}
	if es.Edited == "" {
		httpError(w, http.StatusNotFound, "no recomposed image yet")
		return
	}
	serveImage(w, r, es.Edited, attachment)
}

// serveImage writes the decoded bytes of a data URI. A non-empty attachment
// name makes the browser save the file instead of displaying it.
func serveImage(w http.ResponseWriter, r *http.Request, uri, attachment string) {
	d := imagedata.ParseDataURI(uri)
	data, err := d.Decode()
	if err != nil {
		controllerError(w, err)
		return
	}

	w.Header().Set("Content-Type", d.MIMEType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	// Uploaded SVG may carry script; it must not run on this origin.
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; sandbox")
	w.Header().Set("Cache-Control", "private, no-cache")
	w.Header().Set("ETag", `"`+imageVersion(uri)+`"`)
	if attachment != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+attachment+`"`)
	}
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
}

// GET /api/history?limit=N
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httpError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	items, err := s.ctrl.History(r.Context(), limit)
	if err != nil {
		controllerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}
