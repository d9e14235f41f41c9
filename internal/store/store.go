// Package store persists imported records in PostgreSQL.
//
// Each entity store implements core.EntityStore. Stores are cheap values
// bound to either the pool or a transaction; WithTx hands the callback a
// copy bound to the transaction, and nested calls become savepoints.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/fleetimport/internal/core"
)

// DBTX is the query surface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
}

// Provider resolves entity stores backed by one pool.
type Provider struct {
	db DBTX
}

// NewProvider creates a store provider.
func NewProvider(pool *pgxpool.Pool) *Provider {
	return &Provider{db: pool}
}

// StoreFor implements core.StoreProvider.
func (p *Provider) StoreFor(entityType string, opts core.StoreOptions) (core.EntityStore, error) {
	switch entityType {
	case "loads":
		return &LoadStore{db: p.db, opts: opts}, nil
	case "trucks":
		return &TruckStore{db: p.db, opts: opts}, nil
	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownEntity, entityType)
	}
}

// lockNaturalKey takes a transaction-scoped advisory lock on entity:key so
// concurrent commits writing the same record serialize. Outside a
// transaction the lock is released as soon as the statement ends.
func lockNaturalKey(ctx context.Context, db DBTX, entity, key string) error {
	_, err := db.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", entity+":"+core.NormalizeKey(key))
	if err != nil {
		return fmt.Errorf("lock %s %q: %w", entity, key, err)
	}
	return nil
}

// findExisting matches natural keys case-insensitively against one column.
func findExisting(ctx context.Context, db DBTX, table, column string, keys []string) ([]core.ExistingRecord, error) {
	norm := uniqueKeys(keys)
	if len(norm) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		"SELECT id::text, %s FROM %s WHERE lower(%s) = ANY($1)",
		quoteIdentifier(column), quoteIdentifier(table), quoteIdentifier(column),
	)
	rows, err := db.Query(ctx, query, norm)
	if err != nil {
		return nil, fmt.Errorf("find existing %s: %w", table, err)
	}
	defer rows.Close()

	var out []core.ExistingRecord
	for rows.Next() {
		var ex core.ExistingRecord
		if err := rows.Scan(&ex.ID, &ex.NaturalKey); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

// existsByKey reports whether a natural key is already stored.
func existsByKey(ctx context.Context, db DBTX, table, column, key string) (bool, error) {
	query := fmt.Sprintf(
		"SELECT EXISTS (SELECT 1 FROM %s WHERE lower(%s) = $1)",
		quoteIdentifier(table), quoteIdentifier(column),
	)
	var exists bool
	if err := db.QueryRow(ctx, query, core.NormalizeKey(key)).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// uniqueKeys normalizes keys and drops blanks and repeats.
func uniqueKeys(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		n := core.NormalizeKey(k)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// quoteIdentifier safely quotes a PostgreSQL identifier.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// nullable maps "" to SQL NULL.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// duplicateKey is the row failure for a natural key taken by a concurrent writer.
func duplicateKey(field, entity, key string) error {
	return &core.PersistenceRowFailure{
		Field: field,
		Err:   fmt.Errorf("duplicate key: %s %q already exists", entity, key),
	}
}

// wrongRecord reports a record of another entity handed to a store.
func wrongRecord(entity string, rec core.Record) error {
	return fmt.Errorf("%s store: unexpected record type %T", entity, rec)
}
