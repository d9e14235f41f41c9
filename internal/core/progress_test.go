package core

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, ch <-chan Status) []Status {
	t.Helper()
	var out []Status
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, s)
		case <-timeout:
			t.Fatal("status channel was not closed")
			return out
		}
	}
}

func TestAggregator_Lifecycle(t *testing.T) {
	agg := NewAggregator("c1", testEntity)
	assert.Equal(t, StateIdle, agg.Snapshot().State)

	ch := agg.Subscribe()

	agg.Start(120)
	assert.Equal(t, StateUploading, agg.Snapshot().State)

	agg.Prepared(120, 3, Outcome{SkippedDuplicates: 1})
	assert.Equal(t, StateProcessing, agg.Snapshot().State)

	agg.ChunkDone(ChunkResult{Index: 1, Rows: 50, Created: 50})
	agg.ChunkDone(ChunkResult{Index: 2, Rows: 50, Created: 48, ErrorRows: 2})
	agg.ChunkDone(ChunkResult{Index: 3, Rows: 19, Created: 10, Updated: 9})

	snap := agg.Snapshot()
	assert.Equal(t, 100, snap.ProgressPercent)
	assert.Equal(t, 108, snap.CreatedTotal)
	assert.Equal(t, 9, snap.UpdatedTotal)
	assert.Equal(t, 2, snap.ErrorTotal)
	assert.Equal(t, []string{
		"Batch 1: 50 created, 0 updated, 0 errors",
		"Batch 2: 48 created, 0 updated, 2 errors",
		"Batch 3: 10 created, 9 updated, 0 errors",
	}, snap.Log)

	require.True(t, agg.Complete(Outcome{TotalRows: 120, Created: 108, Updated: 9, SkippedDuplicates: 1, ErrorRows: 2}))

	statuses := drain(t, ch)
	require.NotEmpty(t, statuses)
	final := statuses[len(statuses)-1]
	assert.Equal(t, StateComplete, final.State)
	assert.Equal(t, 1, final.SkippedTotal)
	assert.Contains(t, final.Message, "108 created")

	select {
	case <-agg.Done():
	default:
		t.Fatal("Done not closed after Complete")
	}
}

func TestAggregator_TerminalExactlyOnce(t *testing.T) {
	agg := NewAggregator("c1", testEntity)
	agg.Start(10)

	var wg sync.WaitGroup
	results := make(chan bool, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			results <- agg.Complete(Outcome{Created: 10})
		}()
		go func() {
			defer wg.Done()
			results <- agg.Fail(errors.New("boom"), Outcome{})
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
	assert.True(t, agg.Snapshot().State.Terminal())
}

func TestAggregator_IgnoresUpdatesAfterTerminal(t *testing.T) {
	agg := NewAggregator("c1", testEntity)
	agg.Start(10)
	agg.Fail(errors.New("closed pool"), Outcome{NotAttempted: 10})

	agg.ChunkDone(ChunkResult{Index: 1, Created: 5})
	agg.Prepared(10, 1, Outcome{})

	snap := agg.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Zero(t, snap.CreatedTotal)
	assert.Empty(t, snap.Log)
	assert.Equal(t, "closed pool", agg.Outcome().Error)
}

func TestAggregator_LateSubscriberGetsFinalStatus(t *testing.T) {
	agg := NewAggregator("c1", testEntity)
	agg.Start(0)
	agg.Complete(Outcome{})

	statuses := drain(t, agg.Subscribe())
	require.Len(t, statuses, 1)
	assert.Equal(t, StateComplete, statuses[0].State)
}

func TestAggregator_SlowSubscriberStillGetsTerminal(t *testing.T) {
	agg := NewAggregator("c1", testEntity)
	ch := agg.Subscribe()
	agg.Start(5000)
	agg.Prepared(5000, 100, Outcome{})
	for i := 1; i <= 100; i++ {
		agg.ChunkDone(ChunkResult{Index: i, Created: 50})
	}
	agg.Complete(Outcome{Created: 5000})

	statuses := drain(t, ch)
	require.NotEmpty(t, statuses)
	assert.Equal(t, StateComplete, statuses[len(statuses)-1].State)
}

func TestAggregator_SnapshotLogIsACopy(t *testing.T) {
	agg := NewAggregator("c1", testEntity)
	agg.Start(1)
	agg.Prepared(1, 1, Outcome{})
	agg.ChunkDone(ChunkResult{Index: 1, Created: 1})

	snap := agg.Snapshot()
	snap.Log[0] = "changed"
	assert.Equal(t, "Batch 1: 1 created, 0 updated, 0 errors", agg.Snapshot().Log[0])
}

func TestAggregator_CancelledMessage(t *testing.T) {
	agg := NewAggregator("c1", testEntity)
	agg.Start(100)
	agg.Complete(Outcome{Created: 50, NotAttempted: 50, Cancelled: true})

	snap := agg.Snapshot()
	assert.Equal(t, StateComplete, snap.State)
	assert.Contains(t, snap.Message, "cancelled")
	assert.Contains(t, snap.Message, "50 not attempted")
	assert.NotEqual(t, 100, snap.ProgressPercent)
}

func TestOutcome_Err(t *testing.T) {
	assert.NoError(t, Outcome{Created: 3}.Err())

	err := Outcome{Created: 50, NotAttempted: 50, Cancelled: true}.Err()
	require.ErrorIs(t, err, ErrCancelled)
	assert.Contains(t, err.Error(), "50 rows not attempted")
	assert.Equal(t, "IMP001", MapError(err).Code)

	err = Outcome{Error: "connection refused", Cancelled: true}.Err()
	assert.EqualError(t, err, "connection refused")
	assert.NotErrorIs(t, err, ErrCancelled)
}
