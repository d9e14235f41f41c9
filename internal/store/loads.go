package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/fleetimport/internal/core"
	"github.com/JonMunkholm/fleetimport/internal/core/tables"
)

// LoadStore writes loads and their pickup and delivery stops.
type LoadStore struct {
	db   DBTX
	opts core.StoreOptions
}

// FindExistingByNaturalKey implements core.EntityStore.
func (s *LoadStore) FindExistingByNaturalKey(ctx context.Context, keys []string) ([]core.ExistingRecord, error) {
	return findExisting(ctx, s.db, "loads", "load_number", keys)
}

// WithTx implements core.EntityStore.
func (s *LoadStore) WithTx(ctx context.Context, fn func(core.EntityStore) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(&LoadStore{db: tx, opts: s.opts})
	})
}

const insertLoad = `
INSERT INTO loads (
	id, load_number, customer_name, mc_number_id, status, equipment_type,
	pickup_date, delivery_date,
	revenue, driver_pay, fuel_advance, revenue_per_mile,
	total_miles, loaded_miles, empty_miles, weight, pieces, pallets,
	commodity, shipment_id, dispatch_notes, temperature, urgency,
	hazmat, suspicious_pay, import_batch_id
) VALUES (
	$1, $2, $3, $4, $5, $6,
	$7, $8,
	$9, $10, $11, $12,
	$13, $14, $15, $16, $17, $18,
	$19, $20, $21, $22, $23,
	$24, $25, $26
)`

const updateLoad = `
UPDATE loads SET
	customer_name = $2, mc_number_id = $3, status = $4, equipment_type = $5,
	pickup_date = COALESCE($6, pickup_date), delivery_date = COALESCE($7, delivery_date),
	revenue = $8, driver_pay = $9, fuel_advance = $10, revenue_per_mile = $11,
	total_miles = $12, loaded_miles = $13, empty_miles = $14, weight = $15,
	pieces = $16, pallets = $17,
	commodity = $18, shipment_id = $19, dispatch_notes = $20, temperature = $21,
	urgency = $22, hazmat = $23, suspicious_pay = $24,
	updated_at = now()
WHERE id = $1`

const insertStop = `
INSERT INTO load_stops (
	id, load_id, stop_type, sequence, company, address, city, state, zip,
	contact, phone, stop_date
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// patchStop changes only the columns given a non-NULL value.
const patchStop = `
UPDATE load_stops SET
	company = COALESCE($2, company), address = COALESCE($3, address),
	city = COALESCE($4, city), state = COALESCE($5, state), zip = COALESCE($6, zip),
	contact = COALESCE($7, contact), phone = COALESCE($8, phone),
	stop_date = COALESCE($9, stop_date)
WHERE id = $1`

// CreateWithDependents inserts the load with pickup at sequence 1 and
// delivery at sequence 2.
func (s *LoadStore) CreateWithDependents(ctx context.Context, rec core.Record) (string, error) {
	l, ok := rec.(*tables.Load)
	if !ok {
		return "", wrongRecord("loads", rec)
	}

	if s.opts.LockNaturalKeys {
		if err := lockNaturalKey(ctx, s.db, "loads", l.LoadNumber); err != nil {
			return "", err
		}
		exists, err := existsByKey(ctx, s.db, "loads", "load_number", l.LoadNumber)
		if err != nil {
			return "", err
		}
		if exists {
			return "", duplicateKey("loadNumber", "load", l.LoadNumber)
		}
	}

	id := uuid.NewString()
	_, err := s.db.Exec(ctx, insertLoad,
		id, l.LoadNumber, l.CustomerName, nullable(l.McNumberID), l.Status, l.EquipmentType,
		l.PickupDate, l.DeliveryDate,
		l.Revenue, l.DriverPay, l.FuelAdvance, l.RevenuePerMile,
		l.TotalMiles, l.LoadedMiles, l.EmptyMiles, l.Weight, l.Pieces, l.Pallets,
		nullable(l.Commodity), nullable(l.ShipmentID), nullable(l.DispatchNotes), nullable(l.Temperature), l.Urgency,
		l.Hazmat, l.SuspiciousPay, nullable(s.opts.BatchID),
	)
	if err != nil {
		return "", fmt.Errorf("insert load %q: %w", l.LoadNumber, err)
	}

	pickup, delivery := boundaryStops(l)
	if err := s.insertStop(ctx, id, pickup); err != nil {
		return "", err
	}
	if err := s.insertStop(ctx, id, delivery); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateWithDependents rewrites the load's fields and patches its boundary
// stops with the values the row supplied. Dates and stop values the row did
// not supply keep their stored values; intermediate stops are left alone.
func (s *LoadStore) UpdateWithDependents(ctx context.Context, id string, rec core.Record) error {
	l, ok := rec.(*tables.Load)
	if !ok {
		return wrongRecord("loads", rec)
	}

	if s.opts.LockNaturalKeys {
		if err := lockNaturalKey(ctx, s.db, "loads", l.LoadNumber); err != nil {
			return err
		}
	}

	tag, err := s.db.Exec(ctx, updateLoad,
		id, l.CustomerName, nullable(l.McNumberID), l.Status, l.EquipmentType,
		l.PickupPatch.Date, l.DeliveryPatch.Date,
		l.Revenue, l.DriverPay, l.FuelAdvance, l.RevenuePerMile,
		l.TotalMiles, l.LoadedMiles, l.EmptyMiles, l.Weight,
		l.Pieces, l.Pallets,
		nullable(l.Commodity), nullable(l.ShipmentID), nullable(l.DispatchNotes), nullable(l.Temperature),
		l.Urgency, l.Hazmat, l.SuspiciousPay,
	)
	if err != nil {
		return fmt.Errorf("update load %q: %w", l.LoadNumber, err)
	}
	if tag.RowsAffected() == 0 {
		return &core.PersistenceRowFailure{
			Field: "loadNumber",
			Err:   fmt.Errorf("load %q no longer exists", l.LoadNumber),
		}
	}

	existing, err := s.stops(ctx, id)
	if err != nil {
		return err
	}

	for _, w := range planStops(existing, l) {
		if w.ID == "" {
			err = s.insertStop(ctx, id, w.Stop)
		} else {
			err = s.patchStop(ctx, w.ID, w.Type, w.Patch)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// storedStop is the identity of a persisted stop.
type storedStop struct {
	ID       string
	Type     string
	Sequence int
}

// stopWrite is one planned stop write. An empty ID inserts Stop; otherwise
// Patch is applied to the stored stop.
type stopWrite struct {
	ID    string
	Type  string
	Stop  tables.Stop
	Patch tables.StopPatch
}

// planStops decides which stops an update touches. A load without stops gets
// both boundary stops. Otherwise the PICKUP at sequence 1 and the DELIVERY at
// the highest sequence receive the row's supplied values; no stop is added,
// retyped or moved.
func planStops(existing []storedStop, l *tables.Load) []stopWrite {
	if len(existing) == 0 {
		pickup, delivery := boundaryStops(l)
		return []stopWrite{
			{Type: pickup.Type, Stop: pickup},
			{Type: delivery.Type, Stop: delivery},
		}
	}

	var pickup, delivery *storedStop
	for i := range existing {
		st := &existing[i]
		switch {
		case st.Type == tables.StopPickup && st.Sequence == 1:
			pickup = st
		case st.Type == tables.StopDelivery && (delivery == nil || st.Sequence > delivery.Sequence):
			delivery = st
		}
	}

	var out []stopWrite
	if pickup != nil && !l.PickupPatch.Empty() {
		out = append(out, stopWrite{ID: pickup.ID, Type: pickup.Type, Patch: l.PickupPatch})
	}
	if delivery != nil && !l.DeliveryPatch.Empty() {
		out = append(out, stopWrite{ID: delivery.ID, Type: delivery.Type, Patch: l.DeliveryPatch})
	}
	return out
}

// boundaryStops returns the record's stops with types and sequences set.
func boundaryStops(l *tables.Load) (tables.Stop, tables.Stop) {
	pickup, delivery := l.Pickup, l.Delivery
	pickup.Type, pickup.Sequence = tables.StopPickup, 1
	delivery.Type, delivery.Sequence = tables.StopDelivery, 2
	return pickup, delivery
}

func (s *LoadStore) stops(ctx context.Context, loadID string) ([]storedStop, error) {
	rows, err := s.db.Query(ctx, "SELECT id::text, stop_type, sequence FROM load_stops WHERE load_id = $1 ORDER BY sequence", loadID)
	if err != nil {
		return nil, fmt.Errorf("list stops: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (storedStop, error) {
		var st storedStop
		err := row.Scan(&st.ID, &st.Type, &st.Sequence)
		return st, err
	})
}

func (s *LoadStore) insertStop(ctx context.Context, loadID string, st tables.Stop) error {
	_, err := s.db.Exec(ctx, insertStop,
		uuid.NewString(), loadID, st.Type, st.Sequence, st.Company, st.Address, st.City, st.State, st.Zip,
		nullable(st.Contact), nullable(st.Phone), st.Date,
	)
	if err != nil {
		return fmt.Errorf("insert %s stop: %w", st.Type, err)
	}
	return nil
}

func (s *LoadStore) patchStop(ctx context.Context, stopID, stopType string, p tables.StopPatch) error {
	_, err := s.db.Exec(ctx, patchStop,
		stopID, nullable(p.Company), nullable(p.Address), nullable(p.City), nullable(p.State), nullable(p.Zip),
		nullable(p.Contact), nullable(p.Phone), p.Date,
	)
	if err != nil {
		return fmt.Errorf("update %s stop: %w", stopType, err)
	}
	return nil
}
