package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/fleetimport/internal/core"
)

// Profiles stores mapping profiles in the import_profiles table.
// Saving an existing (entity, name) pair replaces its mapping and keeps its id.
type Profiles struct {
	db DBTX
}

// NewProfiles creates a PostgreSQL profile store.
func NewProfiles(db DBTX) *Profiles {
	return &Profiles{db: db}
}

// List implements core.ProfileStore.
func (p *Profiles) List(ctx context.Context, entityType string) ([]core.Profile, error) {
	rows, err := p.db.Query(ctx, `
SELECT id::text, name, entity_type, mapping
FROM import_profiles
WHERE entity_type = $1
ORDER BY name`, entityType)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Profile, error) {
		var (
			prof core.Profile
			raw  []byte
		)
		if err := row.Scan(&prof.ID, &prof.Name, &prof.EntityType, &raw); err != nil {
			return prof, err
		}
		if err := json.Unmarshal(raw, &prof.Mapping); err != nil {
			return prof, fmt.Errorf("profile %s mapping: %w", prof.ID, err)
		}
		return prof, nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []core.Profile{}
	}
	return out, nil
}

// Save implements core.ProfileStore.
func (p *Profiles) Save(ctx context.Context, name, entityType string, mapping core.ColumnMapping) (string, error) {
	data, err := json.Marshal(mapping)
	if err != nil {
		return "", err
	}

	var id string
	err = p.db.QueryRow(ctx, `
INSERT INTO import_profiles (id, name, entity_type, mapping)
VALUES ($1, $2, $3, $4)
ON CONFLICT (entity_type, name)
DO UPDATE SET mapping = EXCLUDED.mapping, updated_at = now()
RETURNING id::text`, uuid.NewString(), name, entityType, data).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("save profile %q: %w", name, err)
	}
	return id, nil
}
