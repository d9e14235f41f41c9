package core

import (
	"context"
	"fmt"
	"time"
)

// DefaultAdvisorTimeout bounds an assisted mapping call when none is configured.
const DefaultAdvisorTimeout = 8 * time.Second

// SuggestWithTimeout calls the advisor with a deadline. Any failure, including
// a timeout or an advisor that ignores its context, comes back as a
// *MappingAdvisoryFailure. A nil advisor yields no suggestions.
func SuggestWithTimeout(ctx context.Context, a Advisor, timeout time.Duration, headers []string, entityType string) (ColumnMapping, error) {
	if a == nil {
		return nil, nil
	}
	if timeout <= 0 {
		timeout = DefaultAdvisorTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		m   ColumnMapping
		err error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("advisor panic: %v", r)}
			}
		}()
		m, err := a.Suggest(ctx, headers, entityType)
		done <- result{m: m, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, &MappingAdvisoryFailure{EntityType: entityType, Err: res.err}
		}
		return res.m, nil
	case <-ctx.Done():
		return nil, &MappingAdvisoryFailure{EntityType: entityType, Err: ctx.Err()}
	}
}
