package core

import (
	"context"
	"errors"
	"fmt"
)

// WriteOp is what a work item does to the store.
type WriteOp int

const (
	OpCreate WriteOp = iota
	OpUpdate
)

func (op WriteOp) String() string {
	if op == OpUpdate {
		return "update"
	}
	return "create"
}

// WorkItem is one classified row ready for the store.
type WorkItem struct {
	RowIndex   int
	Op         WriteOp
	ExistingID string // set for OpUpdate
	Record     Record
}

// ApplyResult is what a strategy achieved for one chunk.
type ApplyResult struct {
	Tier      string
	Attempted int // items that reached a final state; the rest were not attempted
	Created   int
	Updated   int
	ErrorRows int
	Errors    []RowError
}

// ChunkStrategy persists one chunk of work items.
//
// A nil error means every item reached a final state (created, updated or
// row error). A non-nil error means the chunk as a whole failed; Attempted
// says how many leading items were still settled before the failure.
type ChunkStrategy interface {
	Name() string
	Apply(ctx context.Context, store EntityStore, items []WorkItem) (ApplyResult, error)
}

func applyItem(ctx context.Context, s EntityStore, it WorkItem) error {
	var err error
	switch it.Op {
	case OpUpdate:
		err = s.UpdateWithDependents(ctx, it.ExistingID, it.Record)
	default:
		_, err = s.CreateWithDependents(ctx, it.Record)
	}
	if err != nil {
		var rowFail *PersistenceRowFailure
		if errors.As(err, &rowFail) {
			rowFail.RowIndex = it.RowIndex
			return rowFail
		}
		return &PersistenceRowFailure{RowIndex: it.RowIndex, Err: err}
	}
	return nil
}

func (r *ApplyResult) count(it WorkItem) {
	r.Attempted++
	if it.Op == OpUpdate {
		r.Updated++
	} else {
		r.Created++
	}
}

// BulkStrategy writes the whole chunk in one transaction.
// Any row failure rolls back the chunk.
type BulkStrategy struct{}

func (BulkStrategy) Name() string { return "bulk" }

func (BulkStrategy) Apply(ctx context.Context, store EntityStore, items []WorkItem) (ApplyResult, error) {
	var res ApplyResult
	err := store.WithTx(ctx, func(tx EntityStore) error {
		res = ApplyResult{}
		for _, it := range items {
			if err := applyItem(ctx, tx, it); err != nil {
				return err
			}
			res.count(it)
		}
		return nil
	})
	if err != nil {
		return ApplyResult{Tier: "bulk"}, err
	}
	res.Tier = "bulk"
	return res, nil
}

// PerRowStrategy writes each item in its own transaction, in source order.
// Row failures are recorded and the chunk continues. Only a fatal store error
// stops it early.
type PerRowStrategy struct{}

func (PerRowStrategy) Name() string { return "per_row" }

func (PerRowStrategy) Apply(ctx context.Context, store EntityStore, items []WorkItem) (ApplyResult, error) {
	res := ApplyResult{Tier: "per_row"}
	for _, it := range items {
		err := store.WithTx(ctx, func(tx EntityStore) error {
			return applyItem(ctx, tx, it)
		})
		if err == nil {
			res.count(it)
			continue
		}
		if IsFatalStoreError(err) {
			return res, &FatalSessionFailure{Err: err}
		}
		res.Attempted++
		res.ErrorRows++
		res.Errors = append(res.Errors, rowErrorFromStore(it.RowIndex, err))
	}
	return res, nil
}

// FallbackStrategy tries Bulk first and re-runs the chunk with PerRow when
// the bulk transaction fails, so one bad row cannot sink its neighbours.
type FallbackStrategy struct {
	Bulk   ChunkStrategy
	PerRow ChunkStrategy

	// OnFallback is called with the chunk failure before the per-row pass.
	OnFallback func(items []WorkItem, err error)
}

// DefaultStrategy is bulk with per-row fallback.
func DefaultStrategy() FallbackStrategy {
	return FallbackStrategy{Bulk: BulkStrategy{}, PerRow: PerRowStrategy{}}
}

func (f FallbackStrategy) Name() string {
	return fmt.Sprintf("%s>%s", f.Bulk.Name(), f.PerRow.Name())
}

func (f FallbackStrategy) Apply(ctx context.Context, store EntityStore, items []WorkItem) (ApplyResult, error) {
	res, err := f.Bulk.Apply(ctx, store, items)
	if err == nil {
		return res, nil
	}
	if IsFatalStoreError(err) {
		return ApplyResult{Tier: res.Tier}, &FatalSessionFailure{Err: err}
	}

	if f.OnFallback != nil {
		f.OnFallback(items, err)
	}
	return f.PerRow.Apply(ctx, store, items)
}
