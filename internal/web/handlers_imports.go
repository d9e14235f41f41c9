package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/fleetimport/internal/core"
	"github.com/JonMunkholm/fleetimport/internal/logging"
)

// multipartOverhead allows for form boundaries and fields around the file.
const multipartOverhead = 1 << 20

// handleSelectFile decodes an uploaded file and opens an import session.
// The file travels in the "file" form field.
func (s *Server) handleSelectFile(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")

	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, fmt.Errorf("%w: limit is %d bytes", core.ErrFileTooLarge, maxSize))
			return
		}
		s.respondError(w, r, &badRequest{err: err})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errNoFile)
		return
	}
	defer file.Close()

	view, err := s.service.SelectFile(r.Context(), entity, header.Filename, file, header.Size)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.WithFields(r.Context(), "session_id", view.ID, "entity", entity).
		Info("file selected", "file", header.Filename, "size", header.Size, "rows", view.RowCount)
	writeJSONStatus(w, http.StatusCreated, view)
}

// handleGetSession returns the session view. With ?wait=5s it first waits
// up to that long for the assisted mapping pass to settle.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	if wait := parseWaitParam(r, "wait"); wait > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		defer cancel()
		view, err := s.service.WaitForAdvisor(ctx, id)
		if err == nil {
			writeJSON(w, view)
			return
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			s.respondError(w, r, err)
			return
		}
	}

	view, err := s.service.Session(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, view)
}

// handleResetSession discards a session.
func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ResetSession(chi.URLParam(r, "sessionID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAutoMapping restores the automatic mapping and reruns the assisted pass.
func (s *Server) handleAutoMapping(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.ComputeAutoMapping(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, view)
}

// handleUpdateMapping applies operator edits. Columns mapped to "" are unmapped.
func (s *Server) handleUpdateMapping(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mapping core.ColumnMapping `json:"mapping"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	view, err := s.service.UpdateMapping(chi.URLParam(r, "sessionID"), req.Mapping)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, view)
}

// handleSetFixedValues replaces the values applied to every row.
func (s *Server) handleSetFixedValues(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FixedValues core.FixedValues `json:"fixedValues"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	view, err := s.service.SetFixedValues(chi.URLParam(r, "sessionID"), req.FixedValues)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, view)
}

// handlePreview runs a dry run over every row of the session.
// The body is a RunRequest; an empty body previews the session's own mapping.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req core.RunRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.service.RunPreview(r.Context(), chi.URLParam(r, "sessionID"), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// CommitResponse points the caller at the commit's status endpoints.
type CommitResponse struct {
	CommitID   string `json:"commitId"`
	StatusURL  string `json:"statusUrl"`
	EventsURL  string `json:"eventsUrl"`
	OutcomeURL string `json:"outcomeUrl"`
}

// handleCommit starts persisting the session in the background.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req core.RunRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	commitID, err := s.service.RunCommit(r.Context(), chi.URLParam(r, "sessionID"), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	base := "/api/commits/" + commitID
	w.Header().Set("Location", base)
	writeJSONStatus(w, http.StatusAccepted, CommitResponse{
		CommitID:   commitID,
		StatusURL:  base,
		EventsURL:  base + "/events",
		OutcomeURL: base + "/outcome",
	})
}
