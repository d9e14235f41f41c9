package advisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/fleetimport/internal/core"
	"github.com/JonMunkholm/fleetimport/internal/metrics"
)

// Chain runs several advisors concurrently and merges their answers in
// order: the first advisor's pairs win, later ones only fill columns and
// fields still free. It fails only when every advisor fails.
type Chain []core.Advisor

// Suggest implements core.Advisor.
func (c Chain) Suggest(ctx context.Context, headers []string, entityType string) (core.ColumnMapping, error) {
	results := make([]core.ColumnMapping, len(c))
	errs := make([]error, len(c))

	// Plain group: one failing advisor must not cancel the others.
	var g errgroup.Group
	for i, a := range c {
		g.Go(func() error {
			results[i], errs[i] = a.Suggest(ctx, headers, entityType)
			return nil
		})
	}
	_ = g.Wait()

	out := make(core.ColumnMapping)
	claimed := make(map[string]bool)
	ok := false
	for i, m := range results {
		if errs[i] != nil {
			continue
		}
		ok = true
		for _, h := range headers {
			field := m[h]
			if field == "" || out[h] != "" || claimed[field] {
				continue
			}
			out[h] = field
			claimed[field] = true
		}
	}
	if !ok && len(c) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Observed records call latency and outcome for an advisor.
type Observed struct {
	Name  string
	Inner core.Advisor
}

// Suggest implements core.Advisor.
func (o Observed) Suggest(ctx context.Context, headers []string, entityType string) (core.ColumnMapping, error) {
	start := time.Now()
	m, err := o.Inner.Suggest(ctx, headers, entityType)

	result := "ok"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result = "timeout"
	case err != nil:
		result = "error"
	case len(m) == 0:
		result = "empty"
	}
	metrics.ObserveAdvisor(o.Name, result, time.Since(start))

	if err != nil {
		return nil, fmt.Errorf("%s: %w", o.Name, err)
	}
	return m, nil
}
