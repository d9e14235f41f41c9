package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// The core tests run against a small "shipments" entity so they do not
// depend on the production registrations in the tables package.
const testEntity = "shipments"

type testShipment struct {
	Number   string
	Customer string
	Weight   decimal.Decimal
	Note     string
}

func (s testShipment) NaturalKey() string { return s.Number }

func buildTestShipment(c Candidate, opts EntityOptions) (Record, error) {
	s := testShipment{
		Number:   c.Get("shipmentNumber"),
		Customer: c.Get("customer"),
		Note:     c.Get("note"),
		Weight:   decimal.NewFromInt(1),
	}
	if w, ok := ParseDecimal(c.Get("weight")); ok {
		if w.IsNegative() {
			return nil, &FieldError{Field: "weight", Message: "must not be negative"}
		}
		s.Weight = w
	}
	if opts.Enabled("shout") {
		s.Customer = strings.ToUpper(s.Customer)
	}
	return s, nil
}

func init() {
	Register(EntityDefinition{
		Info: EntityInfo{Key: testEntity, Label: "Shipments", NaturalKey: "shipmentNumber"},
		Fields: []FieldSpec{
			{Name: "shipmentNumber", Label: "Shipment Number", Required: true, Synonyms: []string{"Shipment #", "Ship No", "Load ID"}},
			{Name: "customer", Label: "Customer", Required: true, Synonyms: []string{"Customer Name", "Bill To"}},
			{Name: "pickupDate", Label: "Pickup Date", Type: FieldDate, Recommended: true, Synonyms: []string{"Ship Date", "PU Date"}},
			{Name: "weight", Label: "Weight", Type: FieldNumeric, Synonyms: []string{"Lbs"}},
			{Name: "hazmat", Label: "Hazmat", Type: FieldBool},
			{Name: "mode", Label: "Mode", Type: FieldEnum, EnumValues: []string{"FTL", "LTL"}},
			{Name: "note", Label: "Note", Synonyms: []string{"Comments", "Memo"}},
			{Name: "carrierId", Label: "Carrier"},
		},
		Build: buildTestShipment,
	})
}

// testRows builds rows from a header line and cell lines.
func testRows(headers []string, lines ...[]string) []RawRow {
	rows := make([]RawRow, len(lines))
	for i, cells := range lines {
		rows[i] = NewRawRow(headers, cells)
	}
	return rows
}

// shipmentRows returns n valid rows with numbers S-0000.. and a pickup date.
func shipmentRows(n int) ([]string, []RawRow) {
	headers := []string{"Shipment #", "Customer Name", "Ship Date", "Weight"}
	rows := make([]RawRow, n)
	for i := 0; i < n; i++ {
		rows[i] = NewRawRow(headers, []string{fmt.Sprintf("S-%04d", i), "Acme Foods", "2024-03-15", "42000"})
	}
	return headers, rows
}

// =============================================================================
// In-memory entity store
// =============================================================================

type memRecord struct {
	ID      string
	Record  testShipment
	BatchID string
	Stops   int
}

// memStore is an EntityStore with transaction rollback by snapshot.
type memStore struct {
	mu      sync.Mutex
	records map[string]*memRecord // normalized key -> record
	opts    StoreOptions

	rejectKeys   map[string]error // CreateWithDependents fails for these keys
	failLookup   error
	fatalOnWrite error // every write fails with this error once set
	txCount      int
	lookupCount  int
	onCreate     func(key string)
}

func newMemStore() *memStore {
	return &memStore{
		records:    make(map[string]*memRecord),
		rejectKeys: make(map[string]error),
	}
}

func (m *memStore) seed(keys ...string) {
	for _, k := range keys {
		m.records[NormalizeKey(k)] = &memRecord{ID: uuid.New().String(), Record: testShipment{Number: k}, Stops: 2}
	}
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *memStore) get(key string) (*memRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[NormalizeKey(key)]
	return r, ok
}

func (m *memStore) StoreFor(entityType string, opts StoreOptions) (EntityStore, error) {
	if entityType != testEntity {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entityType)
	}
	m.mu.Lock()
	m.opts = opts
	m.mu.Unlock()
	return m, nil
}

func (m *memStore) FindExistingByNaturalKey(ctx context.Context, keys []string) ([]ExistingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookupCount++
	if m.failLookup != nil {
		return nil, m.failLookup
	}
	var out []ExistingRecord
	for _, k := range keys {
		if r, ok := m.records[NormalizeKey(k)]; ok {
			out = append(out, ExistingRecord{ID: r.ID, NaturalKey: r.Record.Number})
		}
	}
	return out, nil
}

func (m *memStore) CreateWithDependents(ctx context.Context, rec Record) (string, error) {
	s := rec.(testShipment)
	m.mu.Lock()
	if m.fatalOnWrite != nil {
		err := m.fatalOnWrite
		m.mu.Unlock()
		return "", err
	}
	if err, ok := m.rejectKeys[s.Number]; ok {
		m.mu.Unlock()
		return "", err
	}
	key := NormalizeKey(s.Number)
	if _, exists := m.records[key]; exists {
		m.mu.Unlock()
		return "", errors.New("ERROR: duplicate key value violates unique constraint")
	}
	id := uuid.New().String()
	m.records[key] = &memRecord{ID: id, Record: s, BatchID: m.opts.BatchID, Stops: 2}
	hook := m.onCreate
	m.mu.Unlock()

	if hook != nil {
		hook(s.Number)
	}
	return id, nil
}

func (m *memStore) UpdateWithDependents(ctx context.Context, id string, rec Record) error {
	s := rec.(testShipment)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fatalOnWrite != nil {
		return m.fatalOnWrite
	}
	for _, r := range m.records {
		if r.ID == id {
			r.Record = s
			return nil
		}
	}
	return fmt.Errorf("record %s not found", id)
}

func (m *memStore) WithTx(ctx context.Context, fn func(EntityStore) error) error {
	m.mu.Lock()
	m.txCount++
	snapshot := make(map[string]*memRecord, len(m.records))
	for k, v := range m.records {
		cp := *v
		snapshot[k] = &cp
	}
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.records = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

// =============================================================================
// Advisor and profile fakes
// =============================================================================

type stubAdvisor struct {
	suggestion ColumnMapping
	err        error
	delay      chan struct{} // Suggest blocks until closed, when set
	calls      int
	mu         sync.Mutex
}

func (a *stubAdvisor) Suggest(ctx context.Context, headers []string, entityType string) (ColumnMapping, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.delay != nil {
		select {
		case <-a.delay:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.err != nil {
		return nil, a.err
	}
	return a.suggestion.Clone(), nil
}

type memProfiles struct {
	mu       sync.Mutex
	profiles []Profile
}

func (p *memProfiles) List(ctx context.Context, entityType string) ([]Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Profile
	for _, pr := range p.profiles {
		if pr.EntityType == entityType {
			out = append(out, pr)
		}
	}
	return out, nil
}

func (p *memProfiles) Save(ctx context.Context, name, entityType string, mapping ColumnMapping) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := uuid.New().String()
	p.profiles = append(p.profiles, Profile{ID: id, Name: name, EntityType: entityType, Mapping: mapping.Clone()})
	return id, nil
}

// recordingSink captures engine progress.
type recordingSink struct {
	mu       sync.Mutex
	total    int
	chunks   int
	pre      Outcome
	results  []ChunkResult
	prepared int
}

func (s *recordingSink) Prepared(totalRows, chunks int, pre Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prepared++
	s.total, s.chunks, s.pre = totalRows, chunks, pre
}

func (s *recordingSink) ChunkDone(r ChunkResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
}
