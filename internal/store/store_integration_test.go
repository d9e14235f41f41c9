package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/fleetimport/internal/core"
	"github.com/JonMunkholm/fleetimport/internal/core/tables"
)

// testPool connects to FLEETIMPORT_TEST_DATABASE_URL or skips.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("FLEETIMPORT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("FLEETIMPORT_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool, nil))
	_, err = pool.Exec(ctx, "TRUNCATE loads, load_stops, trucks, import_profiles")
	require.NoError(t, err)
	return pool
}

func sampleLoad(number string) *tables.Load {
	pickup := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	return &tables.Load{
		LoadNumber:    number,
		CustomerName:  "Acme Freight",
		Status:        tables.LoadPending,
		EquipmentType: tables.EquipDryVan,
		PickupDate:    pickup,
		DeliveryDate:  pickup.Add(24 * time.Hour),
		Revenue:       decimal.NewFromInt(2500),
		TotalMiles:    decimal.NewFromInt(1000),
		Weight:        decimal.NewFromInt(1),
		Urgency:       "NORMAL",
		Pickup:        tables.Stop{Company: "Shipper", Address: "Dallas, TX", City: "Dallas", State: "TX", Zip: "75201", Date: pickup},
		Delivery:      tables.Stop{Company: "Consignee", Address: "Denver, CO", City: "Denver", State: "CO", Zip: "80202", Date: pickup.Add(24 * time.Hour)},
	}
}

func TestLoadStore_Integration(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	s, err := NewProvider(pool).StoreFor("loads", core.StoreOptions{BatchID: "batch-1", LockNaturalKeys: true})
	require.NoError(t, err)

	var id string
	err = s.WithTx(ctx, func(tx core.EntityStore) error {
		var err error
		id, err = tx.CreateWithDependents(ctx, sampleLoad("L-100"))
		return err
	})
	require.NoError(t, err)

	found, err := s.FindExistingByNaturalKey(ctx, []string{"l-100", "L-404"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, id, found[0].ID)

	var batch string
	require.NoError(t, pool.QueryRow(ctx, "SELECT import_batch_id FROM loads WHERE id = $1", id).Scan(&batch))
	assert.Equal(t, "batch-1", batch)

	err = s.WithTx(ctx, func(tx core.EntityStore) error {
		_, err := tx.CreateWithDependents(ctx, sampleLoad("L-100"))
		return err
	})
	assert.Equal(t, "DB001", core.MapError(err).Code)

	updated := sampleLoad("L-100")
	updated.DeliveryPatch = tables.StopPatch{City: "Boulder"}
	require.NoError(t, s.WithTx(ctx, func(tx core.EntityStore) error {
		return tx.UpdateWithDependents(ctx, id, updated)
	}))

	var stops int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM load_stops WHERE load_id = $1", id).Scan(&stops))
	assert.Equal(t, 2, stops)

	delivery := readStop(t, pool, id, 2)
	assert.Equal(t, "Boulder", delivery.City)
	assert.Equal(t, "80202", delivery.Zip)
	assert.Equal(t, tables.StopDelivery, delivery.Type)
}

// readStop loads the stored stop at seq for a load.
func readStop(t *testing.T, pool *pgxpool.Pool, loadID string, seq int) tables.Stop {
	t.Helper()
	var st tables.Stop
	require.NoError(t, pool.QueryRow(context.Background(), `
		SELECT stop_type, sequence, company, address, city, state, zip, stop_date
		FROM load_stops WHERE load_id = $1 AND sequence = $2`, loadID, seq,
	).Scan(&st.Type, &st.Sequence, &st.Company, &st.Address, &st.City, &st.State, &st.Zip, &st.Date))
	st.Date = st.Date.UTC()
	return st
}

func TestLoadStore_UpdateKeepsUnsuppliedStopValues(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	s, err := NewProvider(pool).StoreFor("loads", core.StoreOptions{})
	require.NoError(t, err)

	var id string
	require.NoError(t, s.WithTx(ctx, func(tx core.EntityStore) error {
		var err error
		id, err = tx.CreateWithDependents(ctx, sampleLoad("L-200"))
		return err
	}))

	// A third stop makes the last one a PICKUP; it must not be retyped.
	_, err = pool.Exec(ctx, `
		INSERT INTO load_stops (id, load_id, stop_type, sequence, company, address, city, state, zip, stop_date)
		VALUES ($1, $2, 'PICKUP', 3, 'Relay', 'Tulsa, OK', 'Tulsa', 'OK', '74103', now())`, uuid.NewString(), id)
	require.NoError(t, err)

	before := map[int]tables.Stop{1: readStop(t, pool, id, 1), 2: readStop(t, pool, id, 2), 3: readStop(t, pool, id, 3)}

	def, ok := core.Get("loads")
	require.True(t, ok)
	rec, err := def.Build(core.Candidate{Values: map[string]string{
		"loadNumber":   "L-200",
		"customerName": "Acme Freight",
		"revenue":      "3100",
	}}, nil)
	require.NoError(t, err)

	require.NoError(t, s.WithTx(ctx, func(tx core.EntityStore) error {
		return tx.UpdateWithDependents(ctx, id, rec)
	}))

	for seq, want := range before {
		assert.Equal(t, want, readStop(t, pool, id, seq), "stop %d", seq)
	}

	var pickupDate time.Time
	var revenue decimal.Decimal
	require.NoError(t, pool.QueryRow(ctx, "SELECT pickup_date, revenue FROM loads WHERE id = $1", id).Scan(&pickupDate, &revenue))
	assert.True(t, pickupDate.Equal(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)))
	assert.True(t, revenue.Equal(decimal.NewFromInt(3100)))
}

func TestProfiles_Integration(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	p := NewProfiles(pool)

	id, err := p.Save(ctx, "TMS", "loads", core.ColumnMapping{"Load ID": "loadNumber"})
	require.NoError(t, err)
	again, err := p.Save(ctx, "TMS", "loads", core.ColumnMapping{"Load #": "loadNumber"})
	require.NoError(t, err)
	assert.Equal(t, id, again)

	list, err := p.List(ctx, "loads")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, core.ColumnMapping{"Load #": "loadNumber"}, list[0].Mapping)
}
