package core

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the lifecycle phase of a commit.
type State string

const (
	StateIdle       State = "idle"
	StateUploading  State = "uploading"  // pre-pass: validation, dedup, classification
	StateProcessing State = "processing" // chunks are being persisted
	StateComplete   State = "complete"
	StateError      State = "error"
)

// Terminal reports whether no further transitions happen after s.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateError
}

// Status is the observable progress of one commit.
type Status struct {
	CommitID        string   `json:"commitId"`
	EntityType      string   `json:"entityType"`
	State           State    `json:"status"`
	Message         string   `json:"message"`
	ProgressPercent int      `json:"progressPercent"`
	TotalRows       int      `json:"totalRows"`
	ChunksDone      int      `json:"chunksDone"`
	ChunksTotal     int      `json:"chunksTotal"`
	CreatedTotal    int      `json:"createdTotal"`
	UpdatedTotal    int      `json:"updatedTotal"`
	SkippedTotal    int      `json:"skippedTotal"`
	ErrorTotal      int      `json:"errorTotal"`
	Log             []string `json:"log"`
}

// ChunkResult is the outcome of persisting one chunk.
type ChunkResult struct {
	Index     int           `json:"index"` // 1-based
	FirstRow  int           `json:"firstRow"`
	Rows      int           `json:"rows"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	ErrorRows int           `json:"errorRows"`
	Errors    []RowError    `json:"errors,omitempty"`
	Tier      string        `json:"tier"`
	Duration  time.Duration `json:"durationNs"`
}

// LogLine is the human-readable summary of a chunk.
func (r ChunkResult) LogLine() string {
	return fmt.Sprintf("Batch %d: %d created, %d updated, %d errors", r.Index, r.Created, r.Updated, r.ErrorRows)
}

// Outcome is the aggregate result of a commit.
//
// Every input row is counted in exactly one of Created, Updated,
// SkippedDuplicates, SkippedExisting, ErrorRows or NotAttempted.
type Outcome struct {
	CommitID          string        `json:"commitId"`
	EntityType        string        `json:"entityType"`
	TotalRows         int           `json:"totalRows"`
	Created           int           `json:"created"`
	Updated           int           `json:"updated"`
	SkippedDuplicates int           `json:"skippedDuplicates"`
	SkippedExisting   int           `json:"skippedExisting"`
	ErrorRows         int           `json:"errorRows"`
	NotAttempted      int           `json:"notAttempted"`
	Errors            []RowError    `json:"errors"`
	Chunks            []ChunkResult `json:"chunks"`
	Cancelled         bool          `json:"cancelled"`
	Error             string        `json:"error,omitempty"`
	Duration          time.Duration `json:"durationNs"`
}

// Skipped is the total of rows skipped as duplicates or as existing.
func (o Outcome) Skipped() int {
	return o.SkippedDuplicates + o.SkippedExisting
}

// Accounted is the number of rows the outcome has placed in a bucket.
func (o Outcome) Accounted() int {
	return o.Created + o.Updated + o.Skipped() + o.ErrorRows + o.NotAttempted
}

// Err reports how the commit ended: nil on completion, ErrCancelled when the
// operator stopped it, or the recorded fatal error.
func (o Outcome) Err() error {
	switch {
	case o.Error != "":
		return errors.New(o.Error)
	case o.Cancelled:
		return fmt.Errorf("%w: %d rows not attempted", ErrCancelled, o.NotAttempted)
	}
	return nil
}

// Summary is the final human-readable line.
func (o Outcome) Summary() string {
	return fmt.Sprintf("%d created, %d updated, %d skipped, %d errors", o.Created, o.Updated, o.Skipped(), o.ErrorRows)
}

// ProgressSink receives engine progress. Aggregator is the production sink.
type ProgressSink interface {
	Prepared(totalRows, chunks int, pre Outcome)
	ChunkDone(r ChunkResult)
}

// Aggregator accumulates chunk outcomes into a Status and fans it out to
// subscribers. It reaches a terminal state exactly once.
type Aggregator struct {
	mu        sync.Mutex
	status    Status
	outcome   Outcome
	listeners []chan Status
	done      chan struct{}
}

// NewAggregator creates an idle aggregator.
func NewAggregator(commitID, entityType string) *Aggregator {
	return &Aggregator{
		status: Status{
			CommitID:   commitID,
			EntityType: entityType,
			State:      StateIdle,
			Log:        []string{},
		},
		done: make(chan struct{}),
	}
}

// Start moves from idle to uploading.
func (a *Aggregator) Start(totalRows int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status.State != StateIdle {
		return
	}
	a.status.State = StateUploading
	a.status.TotalRows = totalRows
	a.status.Message = fmt.Sprintf("Preparing %d rows", totalRows)
	a.notifyLocked()
}

// Prepared records the pre-pass totals and moves to processing.
func (a *Aggregator) Prepared(totalRows, chunks int, pre Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status.State.Terminal() {
		return
	}
	a.status.State = StateProcessing
	a.status.TotalRows = totalRows
	a.status.ChunksTotal = chunks
	a.status.SkippedTotal = pre.Skipped()
	a.status.ErrorTotal = pre.ErrorRows
	a.status.Message = fmt.Sprintf("Importing %d rows in %d batches", totalRows-pre.Skipped()-pre.ErrorRows, chunks)
	if chunks == 0 {
		a.status.ProgressPercent = 100
	}
	a.notifyLocked()
}

// ChunkDone adds one chunk's counts and appends its log line.
func (a *Aggregator) ChunkDone(r ChunkResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status.State.Terminal() {
		return
	}
	a.status.ChunksDone++
	a.status.CreatedTotal += r.Created
	a.status.UpdatedTotal += r.Updated
	a.status.ErrorTotal += r.ErrorRows
	a.status.Log = append(a.status.Log, r.LogLine())
	if a.status.ChunksTotal > 0 {
		a.status.ProgressPercent = a.status.ChunksDone * 100 / a.status.ChunksTotal
	}
	a.status.Message = r.LogLine()
	a.notifyLocked()
}

// Complete moves to the complete state. Returns false if already terminal.
func (a *Aggregator) Complete(o Outcome) bool {
	msg := "Import complete: " + o.Summary()
	if o.Cancelled {
		msg = fmt.Sprintf("Import cancelled: %s, %d not attempted", o.Summary(), o.NotAttempted)
	}
	return a.finish(StateComplete, msg, o)
}

// Fail moves to the error state. Returns false if already terminal.
func (a *Aggregator) Fail(err error, o Outcome) bool {
	if o.Error == "" && err != nil {
		o.Error = err.Error()
	}
	return a.finish(StateError, fmt.Sprintf("Import failed: %v (%s)", err, o.Summary()), o)
}

func (a *Aggregator) finish(state State, msg string, o Outcome) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status.State.Terminal() {
		return false
	}

	a.outcome = o
	a.status.State = state
	a.status.Message = msg
	a.status.CreatedTotal = o.Created
	a.status.UpdatedTotal = o.Updated
	a.status.SkippedTotal = o.Skipped()
	a.status.ErrorTotal = o.ErrorRows
	if state == StateComplete && !o.Cancelled {
		a.status.ProgressPercent = 100
	}

	// The terminal status is never dropped: the oldest buffered update makes room.
	final := a.snapshotLocked()
	for _, ch := range a.listeners {
		select {
		case ch <- final:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- final
		}
		close(ch)
	}
	a.listeners = nil
	close(a.done)
	return true
}

// Snapshot returns a copy of the current status.
func (a *Aggregator) Snapshot() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() Status {
	s := a.status
	s.Log = make([]string, len(a.status.Log))
	copy(s.Log, a.status.Log)
	return s
}

// Subscribe returns a channel of status updates. The current status is sent
// immediately; the channel is closed after the terminal status.
func (a *Aggregator) Subscribe() <-chan Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch := make(chan Status, 16)
	ch <- a.snapshotLocked()
	if a.status.State.Terminal() {
		close(ch)
		return ch
	}
	a.listeners = append(a.listeners, ch)
	return ch
}

// Done is closed when the aggregator reaches a terminal state.
func (a *Aggregator) Done() <-chan struct{} {
	return a.done
}

// Outcome returns the final outcome. Only meaningful after Done is closed.
func (a *Aggregator) Outcome() Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outcome
}

// notifyLocked sends the status to every listener without blocking.
// A slow listener misses intermediate updates.
func (a *Aggregator) notifyLocked() {
	s := a.snapshotLocked()
	for _, ch := range a.listeners {
		select {
		case ch <- s:
		default:
		}
	}
}
