package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/fleetimport/internal/core"
	"github.com/JonMunkholm/fleetimport/internal/logging"
)

// handleCommitEvents streams commit status via Server-Sent Events.
//
// Each update is a "progress" event whose id is the progress percentage; a
// reconnecting client sends Last-Event-ID (or ?lastEventId) and updates at or
// below that percentage are skipped. The stream ends with a "complete" event
// carrying the outcome.
func (s *Server) handleCommitEvents(w http.ResponseWriter, r *http.Request) {
	commitID := chi.URLParam(r, "commitID")

	lastEventIDStr := r.Header.Get("Last-Event-ID")
	if lastEventIDStr == "" {
		lastEventIDStr = r.URL.Query().Get("lastEventId")
	}
	lastEventID, err := strconv.Atoi(lastEventIDStr)
	resuming := err == nil

	statusCh, err := s.service.SubscribeCommit(commitID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		logging.FromContext(r.Context()).Error("streaming not supported", "error", err)
		return
	}

	for {
		select {
		case status, ok := <-statusCh:
			if !ok {
				s.writeCompleteEvent(w, r, commitID)
				rc.Flush()
				return
			}

			// Terminal updates are always delivered.
			if resuming && status.ProgressPercent <= lastEventID && !status.State.Terminal() {
				continue
			}

			data, _ := json.Marshal(status)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", status.ProgressPercent, data)
			if err := rc.Flush(); err != nil {
				return
			}

		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) writeCompleteEvent(w http.ResponseWriter, r *http.Request, commitID string) {
	outcome, err := s.service.CommitOutcome(r.Context(), commitID)
	if err != nil {
		fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
		return
	}
	data, _ := json.Marshal(outcome)
	fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
}

// handleCommitStatus returns the current status without blocking.
func (s *Server) handleCommitStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.CommitStatus(chi.URLParam(r, "commitID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, status)
}

// handleCommitOutcome returns the outcome of a finished commit. A commit
// still running yields 202 with its status unless ?wait allows it to finish.
func (s *Server) handleCommitOutcome(w http.ResponseWriter, r *http.Request) {
	commitID := chi.URLParam(r, "commitID")

	outcome, status, err := s.awaitOutcome(r, commitID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if outcome == nil {
		writeJSONStatus(w, http.StatusAccepted, status)
		return
	}
	writeJSON(w, outcome)
}

// handleExportRowErrors downloads the row errors of a finished commit.
// ?format=xlsx selects a workbook; CSV is the default.
func (s *Server) handleExportRowErrors(w http.ResponseWriter, r *http.Request) {
	commitID := chi.URLParam(r, "commitID")

	outcome, status, err := s.awaitOutcome(r, commitID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if outcome == nil {
		writeJSONStatus(w, http.StatusAccepted, status)
		return
	}

	header, rows := rowErrorTable(outcome.Errors)
	if err := writeTable(w, r.URL.Query().Get("format"), outcome.EntityType+"_errors", "Errors", header, rows); err != nil {
		s.respondError(w, r, err)
	}
}

// rowErrorTable lays out row errors for export. "line" is the spreadsheet
// line of the row, counting the header as line 1.
func rowErrorTable(errs []core.RowError) ([]string, [][]string) {
	header := []string{"row", "line", "field", "message", "code"}
	rows := make([][]string, len(errs))
	for i, e := range errs {
		rows[i] = []string{
			strconv.Itoa(e.RowIndex),
			strconv.Itoa(e.RowIndex + 2),
			e.Field,
			e.Message,
			core.MapError(fmt.Errorf("%s", e.Message)).Code,
		}
	}
	return header, rows
}

// awaitOutcome returns the outcome once the commit is terminal, waiting up
// to ?wait. It returns a nil outcome and the current status otherwise.
func (s *Server) awaitOutcome(r *http.Request, commitID string) (*core.Outcome, core.Status, error) {
	status, err := s.service.CommitStatus(commitID)
	if err != nil {
		return nil, core.Status{}, err
	}

	wait := parseWaitParam(r, "wait")
	if !status.State.Terminal() && wait == 0 {
		return nil, status, nil
	}

	ctx, cancel := r.Context(), context.CancelFunc(func() {})
	if !status.State.Terminal() {
		ctx, cancel = context.WithTimeout(ctx, wait)
	}
	defer cancel()

	outcome, err := s.service.CommitOutcome(ctx, commitID)
	if errors.Is(err, context.DeadlineExceeded) {
		status, err = s.service.CommitStatus(commitID)
		return nil, status, err
	}
	if err != nil {
		return nil, core.Status{}, err
	}
	return &outcome, status, nil
}

// handleCancelCommit asks a commit to stop before its next chunk.
func (s *Server) handleCancelCommit(w http.ResponseWriter, r *http.Request) {
	commitID := chi.URLParam(r, "commitID")
	if err := s.service.CancelCommit(commitID); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, map[string]string{"commitId": commitID, "status": "cancelling"})
}

// handleQueueStatus reports commit slot usage.
func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.Limiter().Status())
}
