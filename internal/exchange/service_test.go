package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/backoffice-backend/internal/catalog"
	"github.com/angelmondragon/backoffice-backend/internal/glaccounts"
	"github.com/angelmondragon/backoffice-backend/internal/packs"
	pkgdb "github.com/angelmondragon/backoffice-backend/pkg/db"
	"github.com/angelmondragon/backoffice-backend/pkg/db/dbtest"
	"github.com/angelmondragon/backoffice-backend/pkg/db/models"
	"github.com/angelmondragon/backoffice-backend/pkg/enums"
)

type stubLines struct {
	rows []models.InvoiceLine
}

func (s stubLines) ListUnmapped(context.Context, uuid.UUID) ([]models.InvoiceLine, error) {
	return s.rows, nil
}

func newTestService(t *testing.T, lines stubLines) (*Service, *gorm.DB) {
	t.Helper()
	db := dbtest.NewSQLite(t)
	svc, err := NewService(Deps{
		Tx:      pkgdb.NewFromGorm(db),
		Lines:   lines,
		Catalog: catalog.NewRepository(db, 0),
		Packs:   packs.NewRepository(db),
		GL:      glaccounts.NewService(db),
	})
	require.NoError(t, err)
	return svc, db
}

func TestUnmappedRowsGroupsByVendorAndDescription(t *testing.T) {
	vendorA, vendorB := uuid.New(), uuid.New()
	code := "MW12"
	now := time.Now()
	line := func(vendor uuid.UUID, desc, normalized, cost string, at time.Time) models.InvoiceLine {
		return models.InvoiceLine{
			VendorID:              vendor,
			Description:           desc,
			NormalizedDescription: normalized,
			UnitCost:              decimal.RequireFromString(cost),
			CreatedAt:             at,
		}
	}

	older := line(vendorA, "MYSTERY WIDGET 12CT", "mystery widget", "10", now.Add(-time.Hour))
	newer := line(vendorA, "Mystery Widget 12 ct", "mystery widget", "11", now)
	newer.VendorItemCode = &code
	svc, _ := newTestService(t, stubLines{rows: []models.InvoiceLine{
		older,
		line(vendorA, "ROMAINE HEARTS", "", "30", now),
		newer,
		line(vendorB, "MYSTERY WIDGET 12CT", "mystery widget", "9", now),
		line(vendorA, "****", "", "1", now),
	}})

	rows, err := svc.UnmappedRows(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, rows, 4)

	top := rows[0]
	assert.Equal(t, "Mystery Widget", top.Name)
	assert.Equal(t, vendorA.String(), top.Vendor)
	assert.Equal(t, 2, top.Occurrences)
	assert.Equal(t, "MW12", top.ItemNumber)
	require.NotNil(t, top.LastCost)
	assert.True(t, top.LastCost.Equal(decimal.NewFromInt(11)))
	assert.Equal(t, string(enums.MeasureTypeEach), top.Measure)
	assert.Equal(t, "12ct", top.ReportingUnit)

	names := []string{rows[1].Name, rows[2].Name, rows[3].Name}
	assert.Equal(t, []string{"****", "Mystery Widget", "Romaine Hearts"}, names)
}

func TestImportCatalog(t *testing.T) {
	svc, db := newTestService(t, stubLines{})
	ctx := context.Background()
	tenantID, vendorID := uuid.New(), uuid.New()
	liquor := &models.GLAccount{TenantID: tenantID, ExternalCode: "5230", Name: "Liquor", Section: enums.GLSectionCOGS}
	require.NoError(t, db.Create(liquor).Error)

	rows := []Row{
		{Line: 2, Name: "Don Julio Anejo", Measure: "volume", ReportingUnit: "6 x 750ml", Category: "Beverage",
			ItemNumber: "DJ-A750", CostAccount: "5230", Vendor: vendorID.String(), KeyItem: true},
		{Line: 3, Name: "Romaine Hearts", ReportingUnit: "each", Category: "food"},
		{Line: 4, Name: "Bad Measure", Measure: "Liquid"},
		{Line: 5, Name: "Limes", CostAccount: "9999"},
		{Line: 6, Name: "Don Julio Anejo 750", ItemNumber: "dj-a750", InventoryLevel: "Par 6"},
		{Line: 7, Name: "Tortilla Chips", ReportingUnit: "3 kg"},
	}
	res, err := svc.ImportCatalog(ctx, tenantID, rows)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Created)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 2, res.Packs)
	assert.Zero(t, res.InvalidPacks)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 4, res.Errors[0].Line)
	assert.Equal(t, 5, res.Errors[1].Line)
	assert.Contains(t, res.Errors[1].Message, "cost account 9999 not found")

	items := catalog.NewRepository(db, 0)
	anejo, err := items.FindBySKU(ctx, tenantID, "DJ-A750")
	require.NoError(t, err)
	assert.Equal(t, "Don Julio Anejo 750", anejo.Name)
	assert.Equal(t, "beverage", anejo.Category)
	assert.Equal(t, enums.MeasureTypeVolume, anejo.MeasureType)
	assert.Equal(t, enums.UOMMilliliter, anejo.BaseUOM)
	require.NotNil(t, anejo.CostAccountID)
	assert.Equal(t, liquor.ID, *anejo.CostAccountID)
	require.NotNil(t, anejo.InventoryLevel)
	assert.Equal(t, "Par 6", *anejo.InventoryLevel)

	configs, err := packs.NewRepository(db).ListByItem(ctx, tenantID, anejo.ID)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.True(t, configs[0].ConversionFactor.Equal(decimal.NewFromInt(4500)))
	require.NotNil(t, configs[0].VendorID)
	assert.Equal(t, vendorID, *configs[0].VendorID)

	chips, err := items.FindByName(ctx, tenantID, "tortilla chips")
	require.NoError(t, err)
	assert.Equal(t, enums.MeasureTypeWeight, chips.MeasureType)
	assert.Equal(t, enums.UOMKilogram, chips.BaseUOM)
	assert.Equal(t, defaultCategory, chips.Category)

	_, err = items.FindByName(ctx, tenantID, "Bad Measure")
	assert.ErrorIs(t, err, catalog.ErrItemNotFound)
}
