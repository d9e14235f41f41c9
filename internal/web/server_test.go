package web

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/fleetimport/internal/config"
	"github.com/JonMunkholm/fleetimport/internal/core"
	"github.com/JonMunkholm/fleetimport/internal/core/tables"
	"github.com/JonMunkholm/fleetimport/internal/decode"
	"github.com/JonMunkholm/fleetimport/internal/store"
)

// =============================================================================
// Fixtures
// =============================================================================

// memTrucks is an in-memory truck store.
type memTrucks struct {
	mu     sync.Mutex
	trucks map[string]*tables.Truck // normalized number -> truck
	ids    map[string]string        // normalized number -> id
}

func newMemTrucks() *memTrucks {
	return &memTrucks{trucks: make(map[string]*tables.Truck), ids: make(map[string]string)}
}

func (m *memTrucks) StoreFor(entityType string, opts core.StoreOptions) (core.EntityStore, error) {
	if entityType != "trucks" {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownEntity, entityType)
	}
	return m, nil
}

func (m *memTrucks) FindExistingByNaturalKey(ctx context.Context, keys []string) ([]core.ExistingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.ExistingRecord
	for _, k := range keys {
		if id, ok := m.ids[core.NormalizeKey(k)]; ok {
			out = append(out, core.ExistingRecord{ID: id, NaturalKey: k})
		}
	}
	return out, nil
}

func (m *memTrucks) CreateWithDependents(ctx context.Context, rec core.Record) (string, error) {
	t := rec.(*tables.Truck)
	m.mu.Lock()
	defer m.mu.Unlock()
	key := core.NormalizeKey(t.TruckNumber)
	if _, ok := m.ids[key]; ok {
		return "", fmt.Errorf("duplicate key value violates unique constraint")
	}
	id := uuid.NewString()
	m.ids[key] = id
	m.trucks[key] = t
	return id, nil
}

func (m *memTrucks) UpdateWithDependents(ctx context.Context, id string, rec core.Record) error {
	t := rec.(*tables.Truck)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trucks[core.NormalizeKey(t.TruckNumber)] = t
	return nil
}

func (m *memTrucks) WithTx(ctx context.Context, fn func(core.EntityStore) error) error {
	return fn(m)
}

func (m *memTrucks) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.trucks)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 10 * time.Second},
		Import: config.ImportConfig{MaxFileSize: 1 << 20, MaxRows: 1000, ChunkSize: 2},
	}
}

type testEnv struct {
	srv    *Server
	trucks *memTrucks
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	trucks := newMemTrucks()
	service := core.NewService(core.ServiceConfig{
		ChunkSize:            cfg.Import.ChunkSize,
		MaxConcurrentCommits: 2,
		MaxWaitTime:          time.Second,
		MaxFileSize:          cfg.Import.MaxFileSize,
	}, core.Dependencies{
		Stores:   trucks,
		Profiles: store.NewFileProfiles(filepath.Join(t.TempDir(), "profiles.yaml")),
		Decoders: decode.ForFile(decode.Options{MaxBytes: cfg.Import.MaxFileSize, MaxRows: cfg.Import.MaxRows}),
	})
	srv := NewServer(service, cfg)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, trucks: trucks}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) upload(t *testing.T, entity, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/imports/"+entity, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const truckCSV = "Unit #,Make,Model,Plate\n" +
	"T-1,Volvo,VNL,XYZ1\n" +
	"T-2,Kenworth,T680,XYZ2\n" +
	"T-1,Volvo,VNL,XYZ1\n" +
	",Mack,Anthem,XYZ4\n" +
	"T-5,Peterbilt,579,XYZ5\n"

// =============================================================================
// Tests
// =============================================================================

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testConfig())
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestEntitiesAndFields(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(t, http.MethodGet, "/api/entities", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entities := decodeBody[[]core.EntityInfo](t, rec)
	var keys []string
	for _, e := range entities {
		keys = append(keys, e.Key)
	}
	assert.Contains(t, keys, "loads")
	assert.Contains(t, keys, "trucks")

	rec = env.do(t, http.MethodGet, "/api/entities/trucks/fields", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[struct {
		Entity core.EntityInfo `json:"entity"`
		Fields []FieldResponse `json:"fields"`
	}](t, rec)
	assert.Equal(t, "truckNumber", body.Entity.NaturalKey)
	require.NotEmpty(t, body.Fields)
	assert.Equal(t, "truckNumber", body.Fields[0].Name)
	assert.True(t, body.Fields[0].Required)

	rec = env.do(t, http.MethodGet, "/api/entities/trailers/fields", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "IMP006", decodeBody[ErrorResponse](t, rec).Code)
}

func TestDownloadTemplate(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(t, http.MethodGet, "/api/entities/trucks/template", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	header, err := csv.NewReader(rec.Body).Read()
	require.NoError(t, err)
	assert.Equal(t, "Truck Number", header[0])

	rec = env.do(t, http.MethodGet, "/api/entities/trucks/template?format=xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue("Trucks", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Truck Number", v)

	rec = env.do(t, http.MethodGet, "/api/entities/trucks/template?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportFlow(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.upload(t, "trucks", "fleet.csv", truckCSV)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view := decodeBody[core.SessionView](t, rec)
	assert.Equal(t, 5, view.RowCount)
	assert.Equal(t, "truckNumber", view.Mapping["Unit #"])
	assert.Empty(t, view.MissingRequired)

	rec = env.do(t, http.MethodPost, "/api/imports/"+view.ID+"/preview", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decodeBody[core.PreviewResult](t, rec)
	assert.Equal(t, 5, preview.TotalRows)
	assert.Equal(t, preview.TotalRows, preview.ValidCount+preview.WarningCount+preview.InvalidCount)
	assert.Equal(t, 1, preview.InvalidCount)
	require.Len(t, preview.Duplicates, 1)

	rec = env.do(t, http.MethodPost, "/api/imports/"+view.ID+"/commit", core.RunRequest{})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	commit := decodeBody[CommitResponse](t, rec)
	require.NotEmpty(t, commit.CommitID)
	assert.Equal(t, "/api/commits/"+commit.CommitID, rec.Header().Get("Location"))

	rec = env.do(t, http.MethodGet, commit.OutcomeURL+"?wait=10s", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	outcome := decodeBody[core.Outcome](t, rec)
	assert.Equal(t, 3, outcome.Created)
	assert.Equal(t, 1, outcome.SkippedDuplicates)
	assert.Equal(t, 1, outcome.ErrorRows)
	assert.Equal(t, outcome.TotalRows, outcome.Accounted())
	assert.Equal(t, 3, env.trucks.count())

	rec = env.do(t, http.MethodGet, commit.StatusURL, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeBody[core.Status](t, rec)
	assert.Equal(t, core.StateComplete, status.State)
	assert.Equal(t, 100, status.ProgressPercent)
	require.NotEmpty(t, status.Log)
	assert.True(t, strings.HasPrefix(status.Log[0], "Batch 1: "))

	rec = env.do(t, http.MethodGet, "/api/commits/"+commit.CommitID+"/errors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"row", "line", "field", "message", "code"}, records[0])
	assert.Equal(t, "3", records[1][0])
	assert.Equal(t, "5", records[1][1])
	assert.Equal(t, "truckNumber", records[1][2])

	// The session is closed once its commit settles.
	assert.Eventually(t, func() bool {
		return env.do(t, http.MethodGet, "/api/imports/"+view.ID, nil).Code == http.StatusNotFound
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCommitEvents(t *testing.T) {
	env := newTestEnv(t, testConfig())

	view := decodeBody[core.SessionView](t, env.upload(t, "trucks", "fleet.csv", truckCSV))
	commit := decodeBody[CommitResponse](t, env.do(t, http.MethodPost, "/api/imports/"+view.ID+"/commit", nil))

	ts := httptest.NewServer(env.srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + commit.EventsURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	stream := string(body)
	assert.Contains(t, stream, "event: progress")
	assert.Contains(t, stream, "event: complete")
	assert.Contains(t, stream, `"status":"complete"`)
	assert.Less(t, strings.Index(stream, "event: progress"), strings.Index(stream, "event: complete"))
}

func TestMappingEditsAndProfiles(t *testing.T) {
	env := newTestEnv(t, testConfig())
	view := decodeBody[core.SessionView](t, env.upload(t, "trucks", "fleet.csv", truckCSV))
	base := "/api/imports/" + view.ID

	rec := env.do(t, http.MethodPut, base+"/mapping", map[string]any{
		"mapping": map[string]string{"Plate": ""},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited := decodeBody[core.SessionView](t, rec)
	assert.Equal(t, "", edited.Mapping["Plate"])
	assert.Contains(t, edited.Unmapped, "Plate")
	assert.Greater(t, edited.Generation, view.Generation)

	rec = env.do(t, http.MethodPut, base+"/mapping", map[string]any{
		"mapping": map[string]string{"Plate": "wingspan"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MAP001", decodeBody[ErrorResponse](t, rec).Code)

	rec = env.do(t, http.MethodPut, base+"/fixed", map[string]any{
		"fixedValues": map[string]string{"status": "Available"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Available", decodeBody[core.SessionView](t, rec).FixedValues["status"])

	rec = env.do(t, http.MethodPost, base+"/profiles", map[string]string{"name": "Fleet sheet"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	profileID := decodeBody[map[string]string](t, rec)["id"]
	require.NotEmpty(t, profileID)

	rec = env.do(t, http.MethodPost, base+"/mapping/auto", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "licensePlate", decodeBody[core.SessionView](t, rec).Mapping["Plate"])

	rec = env.do(t, http.MethodGet, base+"/profiles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	matches := decodeBody[[]core.ProfileMatch](t, rec)
	require.Len(t, matches, 1)
	assert.Equal(t, "Fleet sheet", matches[0].Profile.Name)

	rec = env.do(t, http.MethodPost, base+"/mapping/profile/"+profileID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "truckNumber", decodeBody[core.SessionView](t, rec).Mapping["Unit #"])

	rec = env.do(t, http.MethodPost, base+"/mapping/profile/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/profiles/trucks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]core.Profile](t, rec), 1)

	rec = env.do(t, http.MethodPost, "/api/profiles", map[string]any{"name": " ", "entityType": "trucks"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSelectFileErrors(t *testing.T) {
	env := newTestEnv(t, testConfig())

	tests := []struct {
		name   string
		entity string
		file   string
		body   string
		status int
		code   string
	}{
		{"unknown entity", "trailers", "a.csv", truckCSV, http.StatusNotFound, "IMP006"},
		{"unsupported extension", "trucks", "a.pdf", truckCSV, http.StatusUnsupportedMediaType, "FILE002"},
		{"header only", "trucks", "a.csv", "Unit #,Make\n", http.StatusBadRequest, "FILE005"},
		{"too large", "trucks", "a.csv", strings.Repeat("x", 1<<20+10), http.StatusRequestEntityTooLarge, "FILE001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.upload(t, tt.entity, tt.file, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeBody[ErrorResponse](t, rec).Code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/imports/trucks", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	env.srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownIDs(t *testing.T) {
	env := newTestEnv(t, testConfig())

	for _, path := range []string{
		"/api/imports/missing",
		"/api/commits/missing",
		"/api/commits/missing/outcome",
		"/api/commits/missing/events",
	} {
		rec := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	rec := env.do(t, http.MethodPost, "/api/commits/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "IMP004", decodeBody[ErrorResponse](t, rec).Code)
}

func TestMalformedBody(t *testing.T) {
	env := newTestEnv(t, testConfig())
	view := decodeBody[core.SessionView](t, env.upload(t, "trucks", "fleet.csv", truckCSV))

	req := httptest.NewRequest(http.MethodPost, "/api/imports/"+view.ID+"/preview", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	env.srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "REQ001", decodeBody[ErrorResponse](t, rec).Code)
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1"}}
	env := newTestEnv(t, cfg)

	rec := env.do(t, http.MethodGet, "/api/entities", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/entities", nil)
	req.Header.Set("X-API-Key", "k1")
	rec = httptest.NewRecorder()
	env.srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open for probes.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", nil).Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2}
	env := newTestEnv(t, cfg)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/entities", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/entities", nil).Code)

	rec := env.do(t, http.MethodGet, "/api/entities", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE001", decodeBody[ErrorResponse](t, rec).Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", core.ErrSessionNotFound), http.StatusNotFound},
		{core.ErrCommitRunning, http.StatusConflict},
		{core.ErrTooManyImports, http.StatusServiceUnavailable},
		{&core.DecodeError{FileName: "a.csv", Err: core.ErrFileTooLarge}, http.StatusRequestEntityTooLarge},
		{&core.DecodeError{FileName: "a.csv", Err: core.ErrEmptyFile}, http.StatusBadRequest},
		{fmt.Errorf("unknown field in fixed values: x"), http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestRowErrorTable(t *testing.T) {
	header, rows := rowErrorTable([]core.RowError{
		{RowIndex: 0, Field: "truckNumber", Message: "required field is empty"},
		{RowIndex: 7, Field: core.BatchField, Message: "connection reset by peer"},
	})
	assert.Len(t, header, 5)
	assert.Equal(t, []string{"0", "2", "truckNumber", "required field is empty", "VAL003"}, rows[0])
	assert.Equal(t, "DB005", rows[1][4])
}

func TestParseWaitParam(t *testing.T) {
	tests := []struct {
		query string
		want  time.Duration
	}{
		{"", 0},
		{"wait=5s", 5 * time.Second},
		{"wait=-1s", 0},
		{"wait=soon", 0},
		{"wait=1h", maxWait},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
		assert.Equal(t, tt.want, parseWaitParam(r, "wait"), tt.query)
	}
}
