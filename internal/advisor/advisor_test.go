package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/fleetimport/internal/core"
	_ "github.com/JonMunkholm/fleetimport/internal/core/tables"
)

type fixedAdvisor struct {
	m     core.ColumnMapping
	err   error
	calls atomic.Int32
}

func (f *fixedAdvisor) Suggest(ctx context.Context, headers []string, entityType string) (core.ColumnMapping, error) {
	f.calls.Add(1)
	return f.m, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// Fuzzy
// =============================================================================

func TestFuzzy_Suggest(t *testing.T) {
	headers := []string{"Cust", "Pickup Cty", "Total Trip Miles Driven", "Zz", "Driver Pay Amt"}

	got, err := Fuzzy{}.Suggest(context.Background(), headers, "loads")
	require.NoError(t, err)

	assert.Equal(t, "customerName", got["Cust"])
	assert.Equal(t, "pickupCity", got["Pickup Cty"])
	assert.Equal(t, "driverPay", got["Driver Pay Amt"])
	assert.NotContains(t, got, "Zz")
}

func TestFuzzy_FieldClaimedOnce(t *testing.T) {
	got, err := Fuzzy{}.Suggest(context.Background(), []string{"Cust", "Custmr"}, "loads")
	require.NoError(t, err)

	fields := map[string]int{}
	for _, f := range got {
		fields[f]++
	}
	for f, n := range fields {
		assert.Equal(t, 1, n, "field %s claimed twice", f)
	}
}

func TestFuzzy_UnknownEntity(t *testing.T) {
	_, err := Fuzzy{}.Suggest(context.Background(), []string{"A"}, "pallets")
	assert.ErrorIs(t, err, core.ErrUnknownEntity)
}

// =============================================================================
// OpenAI
// =============================================================================

func chatServer(t *testing.T, content string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAI_Suggest(t *testing.T) {
	var hits atomic.Int32
	reply := "```json\n{\"Client\": \"customerName\", \"Orig\": \"pickupCity\", \"Ghost\": \"revenue\", \"Bill\": \"notAField\", \"Dup\": \"customerName\"}\n```"
	srv := chatServer(t, reply, &hits)

	a, err := NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/", Model: "test-model"})
	require.NoError(t, err)

	got, err := a.Suggest(context.Background(), []string{"Client", "Orig", "Bill", "Dup"}, "loads")
	require.NoError(t, err)
	assert.Equal(t, core.ColumnMapping{"Client": "customerName", "Orig": "pickupCity"}, got)
	assert.Equal(t, int32(1), hits.Load())
}

func TestOpenAI_UnusableReply(t *testing.T) {
	var hits atomic.Int32
	srv := chatServer(t, "I am not sure.", &hits)

	a, err := NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/", Model: "test-model"})
	require.NoError(t, err)

	_, err = a.Suggest(context.Background(), []string{"Client"}, "loads")
	assert.ErrorIs(t, err, ErrNoSuggestion)
}

func TestNewOpenAI_RequiresKey(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{})
	assert.Error(t, err)
}

func TestBuildPrompt(t *testing.T) {
	cat, err := core.CatalogFor("trucks")
	require.NoError(t, err)

	p := buildPrompt(cat, []string{"Unit", "Odo"})
	assert.Contains(t, p, "- truckNumber (Truck Number; also called Unit Number")
	assert.Contains(t, p, "Headers:\n- Unit\n- Odo\n")
}

// =============================================================================
// Chain and cache
// =============================================================================

func TestChain_MergesInOrder(t *testing.T) {
	first := &fixedAdvisor{m: core.ColumnMapping{"A": "customerName"}}
	second := &fixedAdvisor{m: core.ColumnMapping{"A": "pickupCity", "B": "customerName", "C": "revenue"}}
	failing := &fixedAdvisor{err: errors.New("boom")}

	got, err := Chain{failing, first, second}.Suggest(context.Background(), []string{"A", "B", "C"}, "loads")
	require.NoError(t, err)
	assert.Equal(t, core.ColumnMapping{"A": "customerName", "C": "revenue"}, got)
}

func TestChain_AllFail(t *testing.T) {
	a := &fixedAdvisor{err: errors.New("one")}
	b := &fixedAdvisor{err: errors.New("two")}

	_, err := Chain{a, b}.Suggest(context.Background(), []string{"A"}, "loads")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "one")
	assert.Contains(t, err.Error(), "two")
}

func TestObserved_WrapsError(t *testing.T) {
	inner := &fixedAdvisor{err: context.DeadlineExceeded}
	_, err := Observed{Name: "openai", Inner: inner}.Suggest(context.Background(), nil, "loads")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "openai")
}

func TestCacheKey(t *testing.T) {
	a := cacheKey("loads", []string{"Load ID", "Customer"})
	assert.Equal(t, a, cacheKey("loads", []string{"Load ID", "Customer"}))
	assert.NotEqual(t, a, cacheKey("trucks", []string{"Load ID", "Customer"}))
	assert.NotEqual(t, a, cacheKey("loads", []string{"Customer", "Load ID"}))
}

func TestCached_RedisDownFallsThrough(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })

	inner := &fixedAdvisor{m: core.ColumnMapping{"Client": "customerName"}}
	c := NewCached(inner, client, time.Minute, quietLogger())

	got, err := c.Suggest(context.Background(), []string{"Client"}, "loads")
	require.NoError(t, err)
	assert.Equal(t, core.ColumnMapping{"Client": "customerName"}, got)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestNew(t *testing.T) {
	a, closeFn, err := New(context.Background(), Config{Provider: "none"}, nil)
	require.NoError(t, err)
	assert.Nil(t, a)
	closeFn()

	a, _, err = New(context.Background(), Config{Provider: "FUZZY"}, nil)
	require.NoError(t, err)
	assert.IsType(t, Observed{}, a)

	a, _, err = New(context.Background(), Config{Provider: "openai", OpenAI: OpenAIConfig{APIKey: "k"}}, nil)
	require.NoError(t, err)
	assert.IsType(t, Chain{}, a)

	_, _, err = New(context.Background(), Config{Provider: "oracle"}, nil)
	assert.Error(t, err)
}
