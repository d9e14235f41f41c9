package core

import (
	"context"
	"io"
)

// DecodedTable is the output of a TabularDecoder: ordered headers and rows.
type DecodedTable struct {
	Headers []string
	Rows    []RawRow
}

// TabularDecoder turns an uploaded file into an ordered sequence of flat rows.
type TabularDecoder interface {
	Decode(ctx context.Context, r io.Reader, size int64) (*DecodedTable, error)
}

// DecoderResolver picks a decoder for a file name (usually by extension).
type DecoderResolver func(fileName string) (TabularDecoder, error)

// ProfileStore persists named mapping profiles.
type ProfileStore interface {
	List(ctx context.Context, entityType string) ([]Profile, error)
	Save(ctx context.Context, name, entityType string, mapping ColumnMapping) (string, error)
}

// Advisor suggests mappings for headers the deterministic pass missed.
// Results are advisory only.
type Advisor interface {
	Suggest(ctx context.Context, headers []string, entityType string) (ColumnMapping, error)
}

// EntityStore is the persistence capability for one entity type.
type EntityStore interface {
	FindExistingByNaturalKey(ctx context.Context, keys []string) ([]ExistingRecord, error)
	CreateWithDependents(ctx context.Context, rec Record) (string, error)
	UpdateWithDependents(ctx context.Context, id string, rec Record) error

	// WithTx runs fn against a store whose operations share one transaction.
	// The transaction commits if fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(EntityStore) error) error
}

// StoreOptions are per-commit settings passed to the store provider.
type StoreOptions struct {
	BatchID         string // Stamped on created records
	LockNaturalKeys bool   // Serialize writers on the same natural key
}

// StoreProvider resolves the EntityStore for an entity type.
type StoreProvider interface {
	StoreFor(entityType string, opts StoreOptions) (EntityStore, error)
}
