package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/mealverify/internal/db"
	"github.com/vbonduro/mealverify/internal/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestPlateStoreListSeeded(t *testing.T) {
	store := NewPlateStore(openTestDB(t))

	plates, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, plates, 10)
	assert.Equal(t, "PL001", plates[0].PlateID)
	assert.Equal(t, "PL010", plates[9].PlateID)
}

func TestPlateStoreGetByID(t *testing.T) {
	store := NewPlateStore(openTestDB(t))
	ctx := context.Background()

	plate, err := store.GetByID(ctx, "PL004")
	require.NoError(t, err)
	require.NotNil(t, plate)
	assert.Equal(t, 30.0, plate.UpperDiameter)
	assert.Equal(t, 22.0, plate.LowerDiameter)
	assert.Equal(t, 4.0, plate.Depth)

	missing, err := store.GetByID(ctx, "PL999")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPlateStoreCreate(t *testing.T) {
	store := NewPlateStore(openTestDB(t))
	ctx := context.Background()

	plate, err := store.Create(ctx, &domain.Plate{PlateID: "PL011", UpperDiameter: 27, LowerDiameter: 19, Depth: 3})
	require.NoError(t, err)
	assert.Equal(t, "PL011", plate.PlateID)
	assert.Equal(t, 27.0, plate.UpperDiameter)

	_, err = store.Create(ctx, &domain.Plate{PlateID: "PL011", UpperDiameter: 1, LowerDiameter: 1, Depth: 1})
	assert.ErrorIs(t, err, ErrDuplicate)
}
