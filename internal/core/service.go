package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/fleetimport/internal/metrics"
	"github.com/google/uuid"
)

// Defaults for ServiceConfig fields left at zero.
const (
	DefaultCommitTimeout    = 30 * time.Minute
	DefaultSessionTTL       = 30 * time.Minute
	DefaultMaxFileSize      = 50 * 1024 * 1024
	finishedCommitRetention = 5 * time.Minute
)

// ServiceConfig tunes the import service.
type ServiceConfig struct {
	ChunkSize            int
	MaxConcurrentCommits int
	MaxWaitTime          time.Duration
	CommitTimeout        time.Duration
	SessionTTL           time.Duration
	PreviewSampleLimit   int
	AdvisorTimeout       time.Duration
	LockNaturalKeys      bool
	MaxFileSize          int64
}

// Dependencies are the external capabilities the service drives.
type Dependencies struct {
	Stores   StoreProvider
	Profiles ProfileStore    // optional
	Advisor  Advisor         // optional
	Decoders DecoderResolver // required
	Strategy ChunkStrategy   // optional; bulk with per-row fallback by default
	Logger   *slog.Logger
}

// Service is the caller-facing surface of the import pipeline.
type Service struct {
	cfg      ServiceConfig
	engine   *Engine
	profiles ProfileStore
	advisor  Advisor
	decoders DecoderResolver
	limiter  *CommitLimiter
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session
	commits  map[string]*commitRun
}

// commitRun is one background commit.
type commitRun struct {
	ID         string
	SessionID  string
	EntityType string
	Started    time.Time

	agg        *Aggregator
	cancel     chan struct{}
	cancelOnce sync.Once
}

func (c *commitRun) requestCancel() {
	c.cancelOnce.Do(func() { close(c.cancel) })
}

// NewService creates a Service.
func NewService(cfg ServiceConfig, deps Dependencies) *Service {
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = DefaultCommitTimeout
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.PreviewSampleLimit <= 0 {
		cfg.PreviewSampleLimit = DefaultPreviewSampleLimit
	}
	if cfg.AdvisorTimeout <= 0 {
		cfg.AdvisorTimeout = DefaultAdvisorTimeout
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		cfg: cfg,
		engine: &Engine{
			Stores:          deps.Stores,
			ChunkSize:       cfg.ChunkSize,
			Strategy:        deps.Strategy,
			LockNaturalKeys: cfg.LockNaturalKeys,
			Logger:          logger,
		},
		profiles: deps.Profiles,
		advisor:  deps.Advisor,
		decoders: deps.Decoders,
		limiter:  NewCommitLimiter(cfg.MaxConcurrentCommits, cfg.MaxWaitTime),
		logger:   logger,
		sessions: make(map[string]*session),
		commits:  make(map[string]*commitRun),
	}
}

// Limiter exposes the commit limiter for health checks and shutdown.
func (s *Service) Limiter() *CommitLimiter {
	return s.limiter
}

// ListEntities returns information about all importable entity types.
func (s *Service) ListEntities() []EntityInfo {
	defs := All()
	infos := make([]EntityInfo, len(defs))
	for i, def := range defs {
		infos[i] = def.Info
	}
	return infos
}

// Fields returns the catalog of an entity type.
func (s *Service) Fields(entityType string) (*Catalog, error) {
	return CatalogFor(entityType)
}

// =============================================================================
// Session lifecycle
// =============================================================================

// SelectFile decodes an uploaded file and opens a session with the
// deterministic mapping in place. The assisted pass starts in the background.
func (s *Service) SelectFile(ctx context.Context, entityType, fileName string, r io.Reader, size int64) (*SessionView, error) {
	cat, err := CatalogFor(entityType)
	if err != nil {
		return nil, err
	}
	if size > s.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, size, s.cfg.MaxFileSize)
	}

	dec, err := s.decoders(fileName)
	if err != nil {
		return nil, &DecodeError{FileName: fileName, Err: err}
	}
	table, err := dec.Decode(ctx, r, size)
	if err != nil {
		return nil, &DecodeError{FileName: fileName, Err: err}
	}
	if len(table.Rows) == 0 {
		return nil, &DecodeError{FileName: fileName, Err: ErrEmptyFile}
	}

	now := time.Now()
	sess := &session{
		ID:           uuid.New().String(),
		EntityType:   entityType,
		FileName:     fileName,
		Headers:      table.Headers,
		Rows:         table.Rows,
		Catalog:      cat,
		Mapping:      NewMappingState(table.Headers, cat),
		CreatedAt:    now,
		fixed:        make(FixedValues),
		touchedAt:    now,
		advisorState: AdvisorDisabled,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.startAdvisor(sess)
	s.scheduleExpiry(sess.ID, s.cfg.SessionTTL)

	s.logger.Info("import session opened",
		"session_id", sess.ID,
		"entity", entityType,
		"file", fileName,
		"rows", len(table.Rows),
		"headers", len(table.Headers),
	)
	return sess.view(), nil
}

// Session returns the current view of a session.
func (s *Service) Session(sessionID string) (*SessionView, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.view(), nil
}

// ComputeAutoMapping discards operator edits, profiles and advisor results,
// restores the deterministic mapping and restarts the assisted pass.
func (s *Service) ComputeAutoMapping(sessionID string) (*SessionView, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	sess.cancelAdvisor()
	sess.Mapping.Reset()
	s.startAdvisor(sess)
	return sess.view(), nil
}

// WaitForAdvisor blocks until the session's assisted pass has settled.
func (s *Service) WaitForAdvisor(ctx context.Context, sessionID string) (*SessionView, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	done := sess.advisorDone
	sess.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return sess.view(), nil
}

// UpdateMapping records operator edits. A column mapped to "" is unmapped.
func (s *Service) UpdateMapping(sessionID string, edits ColumnMapping) (*SessionView, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	if err := checkMapping(sess.Catalog, edits); err != nil {
		return nil, err
	}
	for col, field := range edits {
		sess.Mapping.SetOverride(col, field)
	}
	return sess.view(), nil
}

// SetOverride maps one column. field "" unmaps it.
func (s *Service) SetOverride(sessionID, column, field string) (*SessionView, error) {
	return s.UpdateMapping(sessionID, ColumnMapping{column: field})
}

// SetFixedValues replaces the session's fixed values.
func (s *Service) SetFixedValues(sessionID string, fixed FixedValues) (*SessionView, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	for field := range fixed {
		if !sess.Catalog.Has(field) {
			return nil, fmt.Errorf("unknown field in fixed values: %s", field)
		}
	}
	sess.mu.Lock()
	sess.fixed = make(FixedValues, len(fixed))
	for k, v := range fixed {
		sess.fixed[k] = v
	}
	sess.mu.Unlock()
	return sess.view(), nil
}

// ResetSession closes a session and cancels its assisted pass.
// A running commit is not affected.
func (s *Service) ResetSession(sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	sess.cancelAdvisor()
	s.logger.Info("import session closed", "session_id", sessionID)
	return nil
}

func (s *Service) session(id string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.touch()
	return sess, nil
}

// startAdvisor runs the assisted pass for the mapping generation current now.
func (s *Service) startAdvisor(sess *session) {
	if s.advisor == nil {
		sess.setAdvisorState(AdvisorDisabled)
		return
	}

	gen := sess.Mapping.Generation()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	sess.mu.Lock()
	sess.advisorCancel = cancel
	sess.advisorDone = done
	sess.advisorState = AdvisorPending
	sess.mu.Unlock()

	logger := s.logger.With("session_id", sess.ID, "entity", sess.EntityType)

	go func() {
		defer close(done)
		defer cancel()

		suggestion, err := SuggestWithTimeout(ctx, s.advisor, s.cfg.AdvisorTimeout, sess.Headers, sess.EntityType)
		if ctx.Err() == context.Canceled {
			return
		}
		if err != nil {
			logger.Warn("assisted mapping unavailable, keeping deterministic mapping", "error", err)
			sess.finishAdvisor(done, AdvisorFailed)
			return
		}
		if sess.Mapping.ApplySuggestion(gen, suggestion) {
			logger.Debug("assisted mapping applied", "suggestions", len(suggestion))
			sess.finishAdvisor(done, AdvisorApplied)
		} else {
			logger.Debug("assisted mapping discarded after operator edit", "generation", gen)
			sess.finishAdvisor(done, AdvisorDiscarded)
		}
	}()
}

// scheduleExpiry drops a session once it has been idle for ttl.
func (s *Service) scheduleExpiry(sessionID string, ttl time.Duration) {
	time.AfterFunc(ttl, func() {
		s.mu.RLock()
		sess, ok := s.sessions[sessionID]
		s.mu.RUnlock()
		if !ok {
			return
		}
		if idle := sess.idleFor(); idle < ttl {
			s.scheduleExpiry(sessionID, ttl-idle)
			return
		}
		s.mu.Lock()
		delete(s.sessions, sessionID)
		s.mu.Unlock()
		sess.cancelAdvisor()
		s.logger.Info("import session expired", "session_id", sessionID)
	})
}

// =============================================================================
// Preview and commit
// =============================================================================

// RunRequest carries the operator's choices for preview and commit.
// Mapping and FixedValues default to the session's when nil.
type RunRequest struct {
	Mapping     ColumnMapping `json:"mapping,omitempty"`
	FixedValues FixedValues   `json:"fixedValues,omitempty"`
	Options     ImportOptions `json:"options"`
}

func (s *Service) resolveRun(sess *session, req RunRequest) (ColumnMapping, FixedValues) {
	mapping := req.Mapping
	if mapping == nil {
		mapping = sess.Mapping.Mapping()
	}
	fixed := req.FixedValues
	if fixed == nil {
		fixed = sess.fixedValues()
	}
	return mapping.Clone(), fixed
}

// RunPreview classifies every row of the session without persisting anything.
func (s *Service) RunPreview(ctx context.Context, sessionID string, req RunRequest) (*PreviewResult, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mapping, fixed := s.resolveRun(sess, req)
	return Preview(sess.EntityType, sess.Rows, mapping, fixed, req.Options, s.cfg.PreviewSampleLimit)
}

// RunCommit starts persisting the session in the background and returns the
// commit id. Use SubscribeCommit for status and CommitOutcome for the result.
// Returns ErrTooManyImports if no commit slot frees up in time.
func (s *Service) RunCommit(ctx context.Context, sessionID string, req RunRequest) (string, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return "", err
	}

	sess.mu.Lock()
	if sess.commitID != "" {
		running := sess.commitID
		sess.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrCommitRunning, running)
	}
	commitID := uuid.New().String()
	sess.commitID = commitID
	sess.mu.Unlock()

	release := func() {
		sess.mu.Lock()
		sess.commitID = ""
		sess.mu.Unlock()
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		release()
		return "", err
	}

	// The mapping is frozen here; later edits do not affect this commit.
	mapping, fixed := s.resolveRun(sess, req)
	sess.cancelAdvisor()

	run := &commitRun{
		ID:         commitID,
		SessionID:  sessionID,
		EntityType: sess.EntityType,
		Started:    time.Now(),
		agg:        NewAggregator(commitID, sess.EntityType),
		cancel:     make(chan struct{}),
	}

	s.mu.Lock()
	s.commits[commitID] = run
	s.mu.Unlock()

	persistReq := PersistRequest{
		CommitID:   commitID,
		EntityType: sess.EntityType,
		Rows:       sess.Rows,
		Mapping:    mapping,
		Fixed:      fixed,
		Options:    req.Options,
		Cancel:     run.cancel,
	}

	go func() {
		defer s.limiter.Release()
		defer s.cleanupCommit(commitID, finishedCommitRetention)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic in commit",
					"commit_id", commitID,
					"entity", run.EntityType,
					"panic", r,
				)
				run.agg.Fail(fmt.Errorf("internal error: %v", r), Outcome{
					CommitID:     commitID,
					EntityType:   run.EntityType,
					TotalRows:    len(persistReq.Rows),
					NotAttempted: len(persistReq.Rows),
					Errors:       []RowError{},
				})
			}
		}()

		commitCtx, cancel := context.WithTimeout(context.Background(), s.cfg.CommitTimeout)
		defer cancel()

		s.execute(commitCtx, run, persistReq)

		// The session is finished once its commit settles.
		s.mu.Lock()
		delete(s.sessions, sessionID)
		s.mu.Unlock()
	}()

	s.logger.Info("commit started",
		"commit_id", commitID,
		"session_id", sessionID,
		"entity", sess.EntityType,
		"rows", len(sess.Rows),
		"update_existing", req.Options.UpdateExisting,
		"actor", ActorFromContext(ctx),
		"client_ip", ClientIPFromContext(ctx),
	)
	return commitID, nil
}

func (s *Service) execute(ctx context.Context, run *commitRun, req PersistRequest) {
	run.agg.Start(len(req.Rows))

	out, err := s.engine.Persist(ctx, req, run.agg)
	status := StateComplete
	if err != nil {
		status = StateError
		run.agg.Fail(err, out)
	} else {
		run.agg.Complete(out)
	}
	metrics.ObserveCommit(run.EntityType, string(status), time.Since(run.Started))
}

// SubscribeCommit streams status updates. The channel receives the current
// status first and is closed after the terminal status.
func (s *Service) SubscribeCommit(commitID string) (<-chan Status, error) {
	run, err := s.commit(commitID)
	if err != nil {
		return nil, err
	}
	return run.agg.Subscribe(), nil
}

// CommitStatus returns the current status without blocking.
func (s *Service) CommitStatus(commitID string) (Status, error) {
	run, err := s.commit(commitID)
	if err != nil {
		return Status{}, err
	}
	return run.agg.Snapshot(), nil
}

// CommitOutcome blocks until the commit settles and returns its outcome.
func (s *Service) CommitOutcome(ctx context.Context, commitID string) (Outcome, error) {
	run, err := s.commit(commitID)
	if err != nil {
		return Outcome{}, err
	}
	select {
	case <-run.agg.Done():
		return run.agg.Outcome(), nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// CancelCommit asks a commit to stop before its next chunk.
// The chunk in flight always settles.
func (s *Service) CancelCommit(commitID string) error {
	run, err := s.commit(commitID)
	if err != nil {
		return err
	}
	run.requestCancel()
	s.logger.Info("commit cancellation requested", "commit_id", commitID)
	return nil
}

func (s *Service) commit(id string) (*commitRun, error) {
	s.mu.RLock()
	run, ok := s.commits[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCommitNotFound, id)
	}
	return run, nil
}

// cleanupCommit forgets a finished commit after a delay.
func (s *Service) cleanupCommit(commitID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.commits, commitID)
		s.mu.Unlock()
	})
}

// Shutdown cancels pending advisor calls and waits for running commits.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	for _, sess := range s.sessions {
		sess.cancelAdvisor()
	}
	s.mu.RUnlock()
	return s.limiter.WaitForDrain(ctx)
}
