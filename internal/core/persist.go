package core

// persist.go is the commit path.
//
// The engine runs three pre-passes over the whole row set before touching
// the store for writes:
//  1. evaluate: build candidates, validate, build typed records
//  2. dedup: first occurrence of a natural key wins, later ones are skipped
//  3. classify: one bulk lookup decides create vs update vs skip-existing
//
// The work items are then chunked in source order and each chunk goes through
// the ChunkStrategy. Cancellation is observed only between chunks; a chunk
// that has started always settles.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/JonMunkholm/fleetimport/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultChunkSize is the number of work items persisted per transaction.
const DefaultChunkSize = 50

var tracer = otel.Tracer("github.com/JonMunkholm/fleetimport/internal/core")

// Engine is the batch persistence engine.
type Engine struct {
	Stores          StoreProvider
	ChunkSize       int
	Strategy        ChunkStrategy // DefaultStrategy() when nil
	LockNaturalKeys bool
	Logger          *slog.Logger
}

// PersistRequest is everything one commit needs. Mapping and Fixed must not
// be mutated while the commit runs.
type PersistRequest struct {
	CommitID   string
	EntityType string
	Rows       []RawRow
	Mapping    ColumnMapping
	Fixed      FixedValues
	Options    ImportOptions

	// Cancel is checked between chunks. Closing it stops new chunks from starting.
	Cancel <-chan struct{}
}

type nopSink struct{}

func (nopSink) Prepared(int, int, Outcome) {}
func (nopSink) ChunkDone(ChunkResult)      {}

// Persist commits the rows. The returned error is non-nil only when the
// commit could not finish: setup errors and *FatalSessionFailure. The
// outcome always reflects what was done, including on error.
func (e *Engine) Persist(ctx context.Context, req PersistRequest, sink ProgressSink) (Outcome, error) {
	start := time.Now()
	if sink == nil {
		sink = nopSink{}
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("commit_id", req.CommitID, "entity", req.EntityType)

	out := Outcome{
		CommitID:   req.CommitID,
		EntityType: req.EntityType,
		TotalRows:  len(req.Rows),
		Errors:     []RowError{},
		Chunks:     []ChunkResult{},
	}
	finish := func(err error) (Outcome, error) {
		sortRowErrors(out.Errors)
		out.Duration = time.Since(start)
		if err != nil {
			out.Error = err.Error()
		}
		return out, err
	}

	ev, err := newRowEvaluator(req.EntityType, req.Mapping, req.Fixed, req.Options)
	if err != nil {
		out.NotAttempted = len(req.Rows)
		return finish(err)
	}

	store, err := e.Stores.StoreFor(req.EntityType, StoreOptions{
		BatchID:         req.CommitID,
		LockNaturalKeys: e.LockNaturalKeys,
	})
	if err != nil {
		out.NotAttempted = len(req.Rows)
		return finish(err)
	}

	pending := e.evaluateAll(ev, req, &out)

	items, err := e.classify(ctx, store, pending, req.Options, &out)
	if err != nil {
		out.NotAttempted += len(pending)
		fatal := &FatalSessionFailure{Err: fmt.Errorf("look up existing records: %w", err)}
		logger.Error("classification failed", "error", err)
		return finish(fatal)
	}

	chunkSize := e.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	chunks := splitChunks(items, chunkSize)

	metrics.AddRows(req.EntityType, "skipped_duplicate", out.SkippedDuplicates)
	metrics.AddRows(req.EntityType, "skipped_existing", out.SkippedExisting)
	metrics.AddRows(req.EntityType, "invalid", out.ErrorRows)

	sink.Prepared(len(req.Rows), len(chunks), out)
	logger.Info("commit prepared",
		"rows", len(req.Rows),
		"work_items", len(items),
		"chunks", len(chunks),
		"duplicates", out.SkippedDuplicates,
		"existing", out.SkippedExisting,
		"invalid", out.ErrorRows,
	)

	strategy := e.strategy(logger)

	for k, chunk := range chunks {
		if cancelled(req.Cancel) {
			out.Cancelled = true
			for _, rest := range chunks[k:] {
				out.NotAttempted += len(rest)
			}
			logger.Info("commit cancelled between chunks", "next_chunk", k+1, "not_attempted", out.NotAttempted)
			break
		}

		if err := ctx.Err(); err != nil {
			for _, rest := range chunks[k:] {
				out.NotAttempted += len(rest)
			}
			logger.Error("commit deadline reached", "next_chunk", k+1, "error", err)
			return finish(&FatalSessionFailure{Err: err})
		}

		cr, err := e.runChunk(ctx, store, strategy, req.EntityType, k+1, chunk)
		out.Created += cr.Created
		out.Updated += cr.Updated
		out.ErrorRows += cr.ErrorRows
		out.Errors = append(out.Errors, cr.Errors...)
		out.Chunks = append(out.Chunks, cr)
		sink.ChunkDone(cr)

		if err != nil {
			var fatal *FatalSessionFailure
			if errors.As(err, &fatal) {
				out.NotAttempted += len(chunk) - (cr.Created + cr.Updated + cr.ErrorRows)
				for _, rest := range chunks[k+1:] {
					out.NotAttempted += len(rest)
				}
				logger.Error("commit stopped by fatal store error", "chunk", k+1, "error", err)
				return finish(fatal)
			}
		}
	}

	logger.Info("commit finished",
		"created", out.Created,
		"updated", out.Updated,
		"skipped", out.Skipped(),
		"errors", out.ErrorRows,
		"not_attempted", out.NotAttempted,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return finish(nil)
}

func (e *Engine) strategy(logger *slog.Logger) ChunkStrategy {
	if e.Strategy != nil {
		return e.Strategy
	}
	s := DefaultStrategy()
	s.OnFallback = func(items []WorkItem, err error) {
		logger.Warn("bulk transaction failed, retrying rows individually",
			"first_row", items[0].RowIndex,
			"rows", len(items),
			"error", err,
		)
	}
	return s
}

// evaluateAll runs validation and dedup. Rows that fail are recorded in out;
// the surviving rows are returned in source order.
func (e *Engine) evaluateAll(ev *rowEvaluator, req PersistRequest, out *Outcome) []evaluatedRow {
	keyField := ev.catalog.NaturalKey()
	acceptWarnings := !req.Options.RequireWarningAck || req.Options.WarningsAcknowledged
	seen := make(map[string]bool, len(req.Rows))
	pending := make([]evaluatedRow, 0, len(req.Rows))

	for i, row := range req.Rows {
		r := ev.evaluate(i, row)

		switch {
		case r.Class == RowInvalid:
			out.ErrorRows++
			for _, f := range r.Report.Failures(i) {
				out.Errors = append(out.Errors, f.RowError())
			}
			continue
		case r.Class == RowWarning && !acceptWarnings:
			w := r.Report.Warnings[0]
			f := &ValidationFailure{RowIndex: i, Field: w.Field, Message: ErrWarningNotAcked.Error() + ": " + w.Message}
			out.ErrorRows++
			out.Errors = append(out.Errors, f.RowError())
			continue
		}

		key := NormalizeKey(r.Record.NaturalKey())
		if key == "" {
			f := &ValidationFailure{RowIndex: i, Field: keyField, Message: "required field is empty"}
			out.ErrorRows++
			out.Errors = append(out.Errors, f.RowError())
			continue
		}
		if seen[key] {
			out.SkippedDuplicates++
			continue
		}
		seen[key] = true
		pending = append(pending, r)
	}
	return pending
}

// classify looks up existing records in one call and turns pending rows into work items.
func (e *Engine) classify(ctx context.Context, store EntityStore, pending []evaluatedRow, opts ImportOptions, out *Outcome) ([]WorkItem, error) {
	if len(pending) == 0 {
		return nil, nil
	}

	keys := make([]string, len(pending))
	for i, r := range pending {
		keys[i] = r.Record.NaturalKey()
	}

	existing, err := store.FindExistingByNaturalKey(ctx, keys)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]string, len(existing))
	for _, ex := range existing {
		ids[NormalizeKey(ex.NaturalKey)] = ex.ID
	}

	items := make([]WorkItem, 0, len(pending))
	for _, r := range pending {
		id, found := ids[NormalizeKey(r.Record.NaturalKey())]
		switch {
		case !found:
			items = append(items, WorkItem{RowIndex: r.Candidate.RowIndex, Op: OpCreate, Record: r.Record})
		case opts.UpdateExisting:
			items = append(items, WorkItem{RowIndex: r.Candidate.RowIndex, Op: OpUpdate, ExistingID: id, Record: r.Record})
		default:
			out.SkippedExisting++
		}
	}
	return items, nil
}

// runChunk applies the strategy to one chunk and converts the result.
// Index is 1-based.
func (e *Engine) runChunk(ctx context.Context, store EntityStore, strategy ChunkStrategy, entity string, index int, items []WorkItem) (ChunkResult, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "import.chunk",
		trace.WithAttributes(
			attribute.String("import.entity", entity),
			attribute.Int("import.chunk", index),
			attribute.Int("import.rows", len(items)),
			attribute.Int("import.first_row", items[0].RowIndex),
		),
	)
	defer span.End()

	res, err := strategy.Apply(ctx, store, items)

	cr := ChunkResult{
		Index:     index,
		FirstRow:  items[0].RowIndex,
		Rows:      len(items),
		Created:   res.Created,
		Updated:   res.Updated,
		ErrorRows: res.ErrorRows,
		Errors:    res.Errors,
		Tier:      res.Tier,
	}

	var fatal *FatalSessionFailure
	switch {
	case err == nil:
	case errors.As(err, &fatal):
		span.RecordError(err)
		span.SetStatus(codes.Error, "fatal store error")
	default:
		// The strategy gave up on the chunk: every unsettled row is an error,
		// reported once against the chunk's first row.
		if unsettled := len(items) - res.Attempted; unsettled > 0 {
			cr.ErrorRows += unsettled
			cr.Errors = append(cr.Errors, RowError{
				RowIndex: items[res.Attempted].RowIndex,
				Field:    BatchField,
				Message:  (&PersistenceChunkFailure{Chunk: index, FirstRow: items[0].RowIndex, Err: err}).Error(),
			})
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "chunk failed")
		err = nil
	}

	cr.Duration = time.Since(start)
	span.SetAttributes(
		attribute.String("import.tier", cr.Tier),
		attribute.Int("import.created", cr.Created),
		attribute.Int("import.updated", cr.Updated),
		attribute.Int("import.errors", cr.ErrorRows),
	)

	result := metrics.ResultSuccess
	if cr.ErrorRows > 0 || err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveChunk(entity, cr.Tier, result, cr.Duration)
	metrics.AddRows(entity, "created", cr.Created)
	metrics.AddRows(entity, "updated", cr.Updated)
	metrics.AddRows(entity, "error", cr.ErrorRows)

	return cr, err
}

func splitChunks(items []WorkItem, size int) [][]WorkItem {
	var chunks [][]WorkItem
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

func cancelled(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func sortRowErrors(errs []RowError) {
	sort.SliceStable(errs, func(i, j int) bool {
		return errs[i].RowIndex < errs[j].RowIndex
	})
}
