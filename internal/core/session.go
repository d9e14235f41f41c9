package core

import (
	"context"
	"sync"
	"time"
)

// AdvisorState tracks the assisted mapping pass of a session.
type AdvisorState string

const (
	AdvisorDisabled  AdvisorState = "disabled"
	AdvisorPending   AdvisorState = "pending"
	AdvisorApplied   AdvisorState = "applied"
	AdvisorDiscarded AdvisorState = "discarded" // arrived after an operator edit
	AdvisorFailed    AdvisorState = "failed"
	AdvisorCancelled AdvisorState = "cancelled"
)

// session is one operator's import in progress. It is never shared between
// operators; the service only guards it against its own background work.
type session struct {
	ID         string
	EntityType string
	FileName   string
	Headers    []string
	Rows       []RawRow
	Catalog    *Catalog
	Mapping    *MappingState
	CreatedAt  time.Time

	mu            sync.Mutex
	fixed         FixedValues
	touchedAt     time.Time
	commitID      string
	advisorState  AdvisorState
	advisorCancel context.CancelFunc
	advisorDone   chan struct{}
}

func (s *session) touch() {
	s.mu.Lock()
	s.touchedAt = time.Now()
	s.mu.Unlock()
}

func (s *session) idleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.touchedAt)
}

func (s *session) fixedValues() FixedValues {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(FixedValues, len(s.fixed))
	for k, v := range s.fixed {
		out[k] = v
	}
	return out
}

func (s *session) setAdvisorState(st AdvisorState) {
	s.mu.Lock()
	s.advisorState = st
	s.mu.Unlock()
}

// finishAdvisor records the result of the pass that owns done. A pass that
// has been superseded or cancelled leaves the state alone and returns false.
func (s *session) finishAdvisor(done chan struct{}, st AdvisorState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.advisorDone != done || s.advisorState != AdvisorPending {
		return false
	}
	s.advisorState = st
	return true
}

// cancelAdvisor stops an in-flight assisted call, if any.
func (s *session) cancelAdvisor() {
	s.mu.Lock()
	cancel := s.advisorCancel
	s.advisorCancel = nil
	if s.advisorState == AdvisorPending {
		s.advisorState = AdvisorCancelled
	}
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// SessionView is the caller-facing snapshot of a session.
type SessionView struct {
	ID              string              `json:"id"`
	EntityType      string              `json:"entityType"`
	FileName        string              `json:"fileName"`
	Headers         []string            `json:"headers"`
	RowCount        int                 `json:"rowCount"`
	Mapping         ColumnMapping       `json:"mapping"`
	Generation      uint64              `json:"generation"`
	FixedValues     FixedValues         `json:"fixedValues"`
	Unmapped        []string            `json:"unmappedHeaders"`
	MissingRequired []string            `json:"missingRequired"`
	Advisor         AdvisorState        `json:"advisor"`
	CommitID        string              `json:"commitId,omitempty"`
	Sample          []map[string]string `json:"sample"`
}

const sessionSampleRows = 5

func (s *session) view() *SessionView {
	mapping, gen := s.Mapping.Snapshot()
	fixed := s.fixedValues()

	s.mu.Lock()
	advisor := s.advisorState
	commitID := s.commitID
	s.mu.Unlock()

	var unmapped []string
	for _, h := range s.Headers {
		if mapping[h] == "" {
			unmapped = append(unmapped, h)
		}
	}

	supplied := make(map[string]bool, len(fixed))
	for f, v := range fixed {
		if v != "" {
			supplied[f] = true
		}
	}

	n := len(s.Rows)
	if n > sessionSampleRows {
		n = sessionSampleRows
	}
	sample := make([]map[string]string, n)
	for i := 0; i < n; i++ {
		sample[i] = s.Rows[i].Values
	}

	return &SessionView{
		ID:              s.ID,
		EntityType:      s.EntityType,
		FileName:        s.FileName,
		Headers:         s.Headers,
		RowCount:        len(s.Rows),
		Mapping:         mapping,
		Generation:      gen,
		FixedValues:     fixed,
		Unmapped:        unmapped,
		MissingRequired: UnmappedRequired(s.Catalog, mapping, supplied),
		Advisor:         advisor,
		CommitID:        commitID,
		Sample:          sample,
	}
}
