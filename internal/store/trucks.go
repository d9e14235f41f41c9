package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/fleetimport/internal/core"
	"github.com/JonMunkholm/fleetimport/internal/core/tables"
)

// TruckStore writes trucks. Trucks have no dependent rows.
type TruckStore struct {
	db   DBTX
	opts core.StoreOptions
}

// FindExistingByNaturalKey implements core.EntityStore.
func (s *TruckStore) FindExistingByNaturalKey(ctx context.Context, keys []string) ([]core.ExistingRecord, error) {
	return findExisting(ctx, s.db, "trucks", "truck_number", keys)
}

// WithTx implements core.EntityStore.
func (s *TruckStore) WithTx(ctx context.Context, fn func(core.EntityStore) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(&TruckStore{db: tx, opts: s.opts})
	})
}

// CreateWithDependents implements core.EntityStore.
func (s *TruckStore) CreateWithDependents(ctx context.Context, rec core.Record) (string, error) {
	t, ok := rec.(*tables.Truck)
	if !ok {
		return "", wrongRecord("trucks", rec)
	}

	if s.opts.LockNaturalKeys {
		if err := lockNaturalKey(ctx, s.db, "trucks", t.TruckNumber); err != nil {
			return "", err
		}
		exists, err := existsByKey(ctx, s.db, "trucks", "truck_number", t.TruckNumber)
		if err != nil {
			return "", err
		}
		if exists {
			return "", duplicateKey("truckNumber", "truck", t.TruckNumber)
		}
	}

	id := uuid.NewString()
	_, err := s.db.Exec(ctx, `
INSERT INTO trucks (
	id, truck_number, vin, make, model, year, license_plate, state,
	status, equipment_type, mc_number_id, odometer_reading, capacity,
	registration_expiry, insurance_expiry, inspection_expiry, import_batch_id
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		id, t.TruckNumber, nullable(t.VIN), t.Make, t.Model, t.Year, t.LicensePlate, t.State,
		t.Status, t.EquipmentType, nullable(t.McNumberID), t.OdometerReading, t.Capacity,
		t.RegistrationExpiry, t.InsuranceExpiry, t.InspectionExpiry, nullable(s.opts.BatchID),
	)
	if err != nil {
		return "", fmt.Errorf("insert truck %q: %w", t.TruckNumber, err)
	}
	return id, nil
}

// UpdateWithDependents implements core.EntityStore.
func (s *TruckStore) UpdateWithDependents(ctx context.Context, id string, rec core.Record) error {
	t, ok := rec.(*tables.Truck)
	if !ok {
		return wrongRecord("trucks", rec)
	}

	if s.opts.LockNaturalKeys {
		if err := lockNaturalKey(ctx, s.db, "trucks", t.TruckNumber); err != nil {
			return err
		}
	}

	tag, err := s.db.Exec(ctx, `
UPDATE trucks SET
	vin = $2, make = $3, model = $4, year = $5, license_plate = $6, state = $7,
	status = $8, equipment_type = $9, mc_number_id = $10, odometer_reading = $11,
	capacity = $12, registration_expiry = $13, insurance_expiry = $14,
	inspection_expiry = $15, updated_at = now()
WHERE id = $1`,
		id, nullable(t.VIN), t.Make, t.Model, t.Year, t.LicensePlate, t.State,
		t.Status, t.EquipmentType, nullable(t.McNumberID), t.OdometerReading,
		t.Capacity, t.RegistrationExpiry, t.InsuranceExpiry,
		t.InspectionExpiry,
	)
	if err != nil {
		return fmt.Errorf("update truck %q: %w", t.TruckNumber, err)
	}
	if tag.RowsAffected() == 0 {
		return &core.PersistenceRowFailure{
			Field: "truckNumber",
			Err:   fmt.Errorf("truck %q no longer exists", t.TruckNumber),
		}
	}
	return nil
}
