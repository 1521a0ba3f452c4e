package aliases

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/backoffice-backend/pkg/db/dbtest"
	"github.com/angelmondragon/backoffice-backend/pkg/db/models"
	"github.com/angelmondragon/backoffice-backend/pkg/enums"
)

type fakeRecorder struct {
	mu        sync.Mutex
	hits      int
	misses    int
	conflicts int
}

func (f *fakeRecorder) ObserveAliasLookup(hit bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if hit {
		f.hits++
	} else {
		f.misses++
	}
}

func (f *fakeRecorder) IncAliasConflict() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conflicts++
}

type mapCache struct {
	mu    sync.Mutex
	items map[string]uuid.UUID
	gets  int
}

func newMapCache() *mapCache { return &mapCache{items: map[string]uuid.UUID{}} }

func (m *mapCache) GetItem(_ context.Context, tenantID, vendorID uuid.UUID, aliasKey string) (uuid.UUID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	id, ok := m.items[tenantID.String()+vendorID.String()+aliasKey]
	return id, ok, nil
}

func (m *mapCache) SetItem(_ context.Context, tenantID, vendorID uuid.UUID, aliasKey string, itemID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[tenantID.String()+vendorID.String()+aliasKey] = itemID
	return nil
}

func TestUpsertThenLookupByCode(t *testing.T) {
	db := dbtest.NewSQLite(t)
	store := NewStore(db)
	ctx := context.Background()

	key := Key{TenantID: uuid.New(), VendorID: uuid.New(), Code: "x123", Description: "don julio anejo"}
	itemID := uuid.New()
	cost := decimal.RequireFromString("42.50")

	row, err := store.Upsert(ctx, UpsertInput{Key: key, ItemID: itemID, UnitCost: &cost, Provenance: enums.ProvenanceManual})
	require.NoError(t, err)
	assert.Equal(t, "code:X123", row.AliasKey)
	require.NotNil(t, row.VendorItemCode)
	assert.Equal(t, "x123", *row.VendorItemCode)

	got, ok, err := store.Lookup(ctx, Key{TenantID: key.TenantID, VendorID: key.VendorID, Code: "X123"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, itemID, got)
}

func TestLookupFallsBackToDescription(t *testing.T) {
	db := dbtest.NewSQLite(t)
	store := NewStore(db)
	ctx := context.Background()

	tenantID, vendorID, itemID := uuid.New(), uuid.New(), uuid.New()
	_, err := store.Upsert(ctx, UpsertInput{
		Key:    Key{TenantID: tenantID, VendorID: vendorID, Description: "romaine hearts"},
		ItemID: itemID,
	})
	require.NoError(t, err)

	// an unknown code still resolves through the description alias
	got, ok, err := store.Lookup(ctx, Key{TenantID: tenantID, VendorID: vendorID, Code: "NEW-1", Description: "romaine hearts"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, itemID, got)

	// other vendors do not see it
	_, ok, err = store.Lookup(ctx, Key{TenantID: tenantID, VendorID: uuid.New(), Description: "romaine hearts"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpsertConflictPreservesExistingMapping(t *testing.T) {
	db := dbtest.NewSQLite(t)
	rec := &fakeRecorder{}
	store := NewStore(db, WithRecorder(rec))
	ctx := context.Background()

	key := Key{TenantID: uuid.New(), VendorID: uuid.New(), Code: "X123"}
	itemA, itemB := uuid.New(), uuid.New()
	lineID := uuid.New()

	_, err := store.Upsert(ctx, UpsertInput{Key: key, ItemID: itemA})
	require.NoError(t, err)

	_, err = store.Upsert(ctx, UpsertInput{Key: key, ItemID: itemB, InvoiceLineID: &lineID})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAliasConflict))

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, itemA, conflict.ExistingItemID)
	assert.Equal(t, itemB, conflict.AttemptedItemID)

	got, ok, err := store.Lookup(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, itemA, got)

	conflicts, err := store.ListConflicts(ctx, key.TenantID, 10)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "code:X123", conflicts[0].AliasKey)
	require.NotNil(t, conflicts[0].InvoiceLineID)
	assert.Equal(t, lineID, *conflicts[0].InvoiceLineID)
	assert.Equal(t, 1, rec.conflicts)
}

func TestUpsertSameItemRefreshesCost(t *testing.T) {
	db := dbtest.NewSQLite(t)
	store := NewStore(db)
	ctx := context.Background()

	key := Key{TenantID: uuid.New(), VendorID: uuid.New(), Description: "limes"}
	itemID := uuid.New()
	first := decimal.RequireFromString("30")
	second := decimal.RequireFromString("32.75")

	_, err := store.Upsert(ctx, UpsertInput{Key: key, ItemID: itemID, UnitCost: &first})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, UpsertInput{Key: key, ItemID: itemID, UnitCost: &second})
	require.NoError(t, err)

	var rows []models.VendorAlias
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].LastUnitCost)
	assert.True(t, rows[0].LastUnitCost.Equal(second), "got %s", rows[0].LastUnitCost)
}

func TestConcurrentUpsertsYieldOneMapping(t *testing.T) {
	db := dbtest.NewSQLite(t)
	store := NewStore(db)
	ctx := context.Background()

	key := Key{TenantID: uuid.New(), VendorID: uuid.New(), Code: "C-9"}
	items := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}

	var wg sync.WaitGroup
	errs := make([]error, len(items))
	for i, item := range items {
		wg.Add(1)
		go func(i int, item uuid.UUID) {
			defer wg.Done()
			_, errs[i] = store.Upsert(ctx, UpsertInput{Key: key, ItemID: item})
		}(i, item)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.True(t, errors.Is(err, ErrAliasConflict), "unexpected error %v", err)
	}
	assert.Equal(t, 1, succeeded)

	var count int64
	require.NoError(t, db.Model(&models.VendorAlias{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestLookupUsesCache(t *testing.T) {
	db := dbtest.NewSQLite(t)
	cache := newMapCache()
	rec := &fakeRecorder{}
	store := NewStore(db, WithCache(cache), WithRecorder(rec))
	ctx := context.Background()

	key := Key{TenantID: uuid.New(), VendorID: uuid.New(), Code: "A1"}
	itemID := uuid.New()
	_, err := store.Upsert(ctx, UpsertInput{Key: key, ItemID: itemID})
	require.NoError(t, err)

	// remove the row; the cached mapping must still answer
	require.NoError(t, db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.VendorAlias{}).Error)

	got, ok, err := store.Lookup(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, itemID, got)
	assert.Equal(t, 1, rec.hits)
}

func TestUpsertValidatesInput(t *testing.T) {
	store := NewStore(dbtest.NewSQLite(t))
	_, err := store.Upsert(context.Background(), UpsertInput{Key: Key{TenantID: uuid.New(), VendorID: uuid.New(), Description: "x"}})
	assert.Error(t, err)
	_, err = store.Upsert(context.Background(), UpsertInput{Key: Key{TenantID: uuid.New(), VendorID: uuid.New()}, ItemID: uuid.New()})
	assert.Error(t, err)
}
