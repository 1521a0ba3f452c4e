package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/backoffice-backend/internal/aliases"
	"github.com/angelmondragon/backoffice-backend/internal/catalog"
	"github.com/angelmondragon/backoffice-backend/internal/glaccounts"
	"github.com/angelmondragon/backoffice-backend/internal/packs"
	"github.com/angelmondragon/backoffice-backend/internal/scoring"
	pkgdb "github.com/angelmondragon/backoffice-backend/pkg/db"
	"github.com/angelmondragon/backoffice-backend/pkg/db/dbtest"
	"github.com/angelmondragon/backoffice-backend/pkg/db/models"
	"github.com/angelmondragon/backoffice-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/backoffice-backend/pkg/errors"
)

type countingSource struct {
	inner catalog.Source
	calls int32
}

func (c *countingSource) FindCandidates(ctx context.Context, tenantID uuid.UUID, query string) ([]scoring.Candidate, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.inner.FindCandidates(ctx, tenantID, query)
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
	batches  int
	onBatch  func()
}

func (f *fakeRecorder) ObserveOutcome(status, provenance string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[status+"/"+provenance]++
}

func (f *fakeRecorder) ObserveTopScore(float64) {}

func (f *fakeRecorder) ObserveBatch(bool) {
	f.mu.Lock()
	f.batches++
	cb := f.onBatch
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
}

type testEnv struct {
	db       *gorm.DB
	svc      Service
	catalog  *catalog.Repository
	aliases  *aliases.Store
	lines    LineRepository
	source   *countingSource
	recorder *fakeRecorder
	tenantID uuid.UUID
	vendorID uuid.UUID

	anejo   *models.CatalogItem
	blanco  *models.CatalogItem
	romaine *models.CatalogItem
}

func newEnv(t *testing.T, policy Policy) *testEnv {
	t.Helper()
	db := dbtest.NewSQLite(t)
	catalogRepo := catalog.NewRepository(db, 0)
	e := &testEnv{
		db:       db,
		catalog:  catalogRepo,
		aliases:  aliases.NewStore(db),
		lines:    NewLineRepository(db),
		source:   &countingSource{inner: catalogRepo},
		recorder: &fakeRecorder{outcomes: map[string]int{}},
		tenantID: uuid.New(),
		vendorID: uuid.New(),
	}
	svc, err := NewService(Deps{
		Tx:       pkgdb.NewFromGorm(db),
		Lines:    e.lines,
		Catalog:  catalogRepo,
		Aliases:  e.aliases,
		Packs:    packs.NewRepository(db),
		GL:       glaccounts.NewService(db),
		Source:   e.source,
		Recorder: e.recorder,
	}, policy)
	require.NoError(t, err)
	e.svc = svc

	e.anejo = e.item(t, "Don Julio Anejo", "DJ-A750", "beverage", "liquor", enums.MeasureTypeVolume, enums.UOMMilliliter)
	e.blanco = e.item(t, "Don Julio Blanco", "", "beverage", "liquor", enums.MeasureTypeVolume, enums.UOMMilliliter)
	e.romaine = e.item(t, "Romaine Hearts Organic", "", "food", "produce", enums.MeasureTypeEach, enums.UOMEach)
	return e
}

func (e *testEnv) item(t *testing.T, name, sku, category, subcategory string, measure enums.MeasureType, base enums.UOM) *models.CatalogItem {
	t.Helper()
	item := &models.CatalogItem{
		TenantID:    e.tenantID,
		Name:        name,
		Category:    category,
		MeasureType: measure,
		BaseUOM:     base,
		IsActive:    true,
	}
	if sku != "" {
		item.SKU = &sku
	}
	if subcategory != "" {
		item.Subcategory = &subcategory
	}
	created, err := e.catalog.Create(context.Background(), item)
	require.NoError(t, err)
	return created
}

func (e *testEnv) account(t *testing.T, code string) *models.GLAccount {
	t.Helper()
	account := &models.GLAccount{TenantID: e.tenantID, ExternalCode: code, Name: "Account " + code, Section: enums.GLSectionCOGS}
	require.NoError(t, e.db.Create(account).Error)
	return account
}

func (e *testEnv) line(t *testing.T, description, code, unitCost string) *models.InvoiceLine {
	t.Helper()
	invoiceID := uuid.New()
	line := &models.InvoiceLine{
		TenantID:    e.tenantID,
		InvoiceID:   &invoiceID,
		VendorID:    e.vendorID,
		Description: description,
		Quantity:    decimal.NewFromInt(1),
		UnitCost:    decimal.RequireFromString(unitCost),
		LineTotal:   decimal.RequireFromString(unitCost),
		Status:      enums.LineStatusUnmapped,
	}
	if code != "" {
		line.VendorItemCode = &code
	}
	require.NoError(t, e.db.Create(line).Error)
	return line
}

func (e *testEnv) reload(t *testing.T, id uuid.UUID) *models.InvoiceLine {
	t.Helper()
	line, err := e.lines.FindByID(context.Background(), e.tenantID, id)
	require.NoError(t, err)
	return line
}

func TestAliasHitResolvesWithoutMatcher(t *testing.T) {
	e := newEnv(t, DefaultPolicy())
	ctx := context.Background()

	_, err := e.aliases.Upsert(ctx, aliases.UpsertInput{
		Key:    aliases.Key{TenantID: e.tenantID, VendorID: e.vendorID, Code: "X123"},
		ItemID: e.anejo.ID,
	})
	require.NoError(t, err)

	for _, desc := range []string{"DJ ANJ 750", "something else entirely"} {
		res, err := e.svc.ResolveLine(ctx, e.tenantID, LineInput{VendorID: e.vendorID, Description: desc, VendorItemCode: "x123"})
		require.NoError(t, err)
		assert.Equal(t, enums.LineStatusMapped, res.Status)
		require.NotNil(t, res.ItemID)
		assert.Equal(t, e.anejo.ID, *res.ItemID)
		assert.Equal(t, enums.ProvenanceAlias, res.Provenance)
	}
	assert.Zero(t, atomic.LoadInt32(&e.source.calls))
}

func TestResolveLineScenario(t *testing.T) {
	e := newEnv(t, DefaultPolicy())
	ctx := context.Background()

	res, err := e.svc.ResolveLine(ctx, e.tenantID, LineInput{VendorID: e.vendorID, Description: "CASE*DON JULIO ANEJO 6/750ML"})
	require.NoError(t, err)
	assert.Equal(t, "don julio anejo", res.NormalizedDescription)
	assert.Equal(t, enums.LineStatusMapped, res.Status)
	assert.Equal(t, enums.ProvenanceAuto, res.Provenance)
	require.NotNil(t, res.ItemID)
	assert.Equal(t, e.anejo.ID, *res.ItemID)

	// the auto mapping was learned
	itemID, ok, err := e.aliases.Lookup(ctx, aliases.Key{TenantID: e.tenantID, VendorID: e.vendorID, Description: "don julio anejo"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, e.anejo.ID, itemID)

	calls := atomic.LoadInt32(&e.source.calls)
	again, err := e.svc.ResolveLine(ctx, e.tenantID, LineInput{VendorID: e.vendorID, Description: "Don Julio Anejo 750ml"})
	require.NoError(t, err)
	assert.Equal(t, enums.ProvenanceAlias, again.Provenance)
	assert.Equal(t, calls, atomic.LoadInt32(&e.source.calls))

	p, err := packs.ParsePack("CASE*DON JULIO ANEJO 6/750ML")
	require.NoError(t, err)
	assert.Equal(t, enums.PackTypeCase, p.PackType)
	assert.True(t, p.ConversionFactor.Equal(decimal.NewFromInt(4500)))
}

func TestAutoConfirmDisabledSuggests(t *testing.T) {
	policy := DefaultPolicy()
	policy.AutoConfirm = false
	e := newEnv(t, policy)

	res, err := e.svc.ResolveLine(context.Background(), e.tenantID, LineInput{VendorID: e.vendorID, Description: "DON JULIO ANEJO"})
	require.NoError(t, err)
	assert.Equal(t, enums.LineStatusSuggested, res.Status)
	assert.Nil(t, res.ItemID)
	require.NotEmpty(t, res.Candidates)
	assert.Equal(t, e.anejo.ID, res.Candidates[0].ItemID)
}

func TestResolveLineSuggestsBelowAutoThreshold(t *testing.T) {
	e := newEnv(t, DefaultPolicy())

	res, err := e.svc.ResolveLine(context.Background(), e.tenantID, LineInput{VendorID: e.vendorID, Description: "ROMAINE HEARTS 24CT"})
	require.NoError(t, err)
	assert.Equal(t, enums.LineStatusSuggested, res.Status)
	require.NotNil(t, res.Confidence)
	assert.InDelta(t, 0.9333, *res.Confidence, 0.001)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, e.romaine.ID, res.Candidates[0].ItemID)
	assert.False(t, res.NeedsReview)
}

func TestResolveLineAmbiguousNeverAutoPicks(t *testing.T) {
	e := newEnv(t, DefaultPolicy())
	e.item(t, "Roma Tomatoes", "RT-1", "food", "produce", enums.MeasureTypeWeight, enums.UOMPound)
	e.item(t, "Roma Tomatoes", "RT-2", "food", "produce", enums.MeasureTypeWeight, enums.UOMPound)

	res, err := e.svc.ResolveLine(context.Background(), e.tenantID, LineInput{VendorID: e.vendorID, Description: "ROMA TOMATOES 25LB"})
	require.NoError(t, err)
	assert.Equal(t, enums.LineStatusSuggested, res.Status)
	assert.True(t, res.Ambiguous)
	assert.True(t, res.NeedsReview)
	assert.Equal(t, ReasonAmbiguous, res.ReviewReason)
	assert.Len(t, res.Candidates, 2)
	assert.Nil(t, res.ItemID)
}

func TestResolveLineNoMatchAndEmpty(t *testing.T) {
	e := newEnv(t, DefaultPolicy())
	ctx := context.Background()

	res, err := e.svc.ResolveLine(ctx, e.tenantID, LineInput{VendorID: e.vendorID, Description: "MYSTERY WIDGET"})
	require.NoError(t, err)
	assert.Equal(t, enums.LineStatusUnmapped, res.Status)
	assert.Empty(t, res.Candidates)
	assert.False(t, res.NeedsReview)

	calls := atomic.LoadInt32(&e.source.calls)
	res, err = e.svc.ResolveLine(ctx, e.tenantID, LineInput{VendorID: e.vendorID, Description: "**** 750ML"})
	require.NoError(t, err)
	assert.Equal(t, enums.LineStatusUnmapped, res.Status)
	assert.True(t, res.NeedsReview)
	assert.Equal(t, ReasonEmptyDescription, res.ReviewReason)
	assert.Equal(t, calls, atomic.LoadInt32(&e.source.calls), "matcher must not run for empty descriptions")

	_, err = e.svc.ResolveLine(ctx, e.tenantID, LineInput{Description: "x"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestResolveStoredLinePersistsState(t *testing.T) {
	e := newEnv(t, DefaultPolicy())
	ctx := context.Background()
	empty := e.line(t, "**** 750ML", "", "10")
	suggested := e.line(t, "ROMAINE HEARTS 24CT", "", "30")

	_, err := e.svc.ResolveStoredLine(ctx, e.tenantID, empty.ID)
	require.NoError(t, err)
	got := e.reload(t, empty.ID)
	assert.Equal(t, enums.LineStatusUnmapped, got.Status)
	assert.True(t, got.NeedsReview)
	require.NotNil(t, got.ReviewReason)
	assert.Equal(t, ReasonEmptyDescription, *got.ReviewReason)
	assert.NotNil(t, got.LastResolvedAt)

	_, err = e.svc.ResolveStoredLine(ctx, e.tenantID, suggested.ID)
	require.NoError(t, err)
	got = e.reload(t, suggested.ID)
	assert.Equal(t, enums.LineStatusSuggested, got.Status)
	assert.Equal(t, "romaine hearts", got.NormalizedDescription)
	assert.Nil(t, got.ItemID)

	_, err = e.svc.ResolveStoredLine(ctx, e.tenantID, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestIdenticalDescriptionsResolveToSameItem(t *testing.T) {
	e := newEnv(t, DefaultPolicy())
	ctx := context.Background()
	first := e.line(t, "ROMAINE HEARTS 24CT", "", "30")
	second := e.line(t, "Romaine Hearts 24 ct", "", "31")

	res, err := e.svc.ResolveStoredLine(ctx, e.tenantID, first.ID)
	require.NoError(t, err)
	require.Equal(t, enums.LineStatusSuggested, res.Status)

	_, err = e.svc.ConfirmMapping(ctx, e.tenantID, first.ID, e.romaine.ID)
	require.NoError(t, err)

	res, err = e.svc.ResolveStoredLine(ctx, e.tenantID, second.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LineStatusMapped, res.Status)
	assert.Equal(t, enums.ProvenanceAlias, res.Provenance)
	require.NotNil(t, res.ItemID)
	assert.Equal(t, e.romaine.ID, *res.ItemID)
	assert.Equal(t, *e.reload(t, first.ID).ItemID, *e.reload(t, second.ID).ItemID)
}

func TestConfirmMappingAttachesPackAliasAndGL(t *testing.T) {
	e := newEnv(t, DefaultPolicy())
	ctx := context.Background()
	e.account(t, "5200")
	liquor := e.account(t, "5230")
	line := e.line(t, "CASE*DON JULIO ANEJO 6/750ML", "DJ6", "180")

	out, err := e.svc.ConfirmMapping(ctx, e.tenantID, line.ID, e.anejo.ID)
	require.NoError(t, err)
	assert.Empty(t, out.Warnings)

	assert.Equal(t, enums.LineStatusMapped, out.Line.Status)
	require.NotNil(t, out.Line.Provenance)
	assert.Equal(t, enums.ProvenanceManual, *out.Line.Provenance)

	require.NotNil(t, out.Alias)
	assert.Equal(t, "code:DJ6", out.Alias.AliasKey)
	assert.Equal(t, e.anejo.ID, out.Alias.ItemID)

	require.NotNil(t, out.PackConfiguration)
	assert.True(t, out.PackConfiguration.ConversionFactor.Equal(decimal.NewFromInt(4500)))
	assert.True(t, out.CostPerBaseUnit.Equal(decimal.RequireFromString("0.04")), out.CostPerBaseUnit.String())
	assert.False(t, out.CostFallback)

	require.NotNil(t, out.GLAccount)
	assert.Equal(t, "5230", out.GLAccount.ExternalCode)
	item, err := e.catalog.FindByID(ctx, e.tenantID, e.anejo.ID)
	require.NoError(t, err)
	require.NotNil(t, item.CostAccountID)
	assert.Equal(t, liquor.ID, *item.CostAccountID)

	// confirming the same item again is a no-op
	_, err = e.svc.ConfirmMapping(ctx, e.tenantID, line.ID, e.anejo.ID)
	require.NoError(t, err)

	_, err = e.svc.ConfirmMapping(ctx, e.tenantID, line.ID, e.blanco.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestConfirmMappingWarnings(t *testing.T) {
	e := newEnv(t, DefaultPolicy())
	ctx := context.Background()
	line := e.line(t, "ROMAINE HEARTS ORGANIC", "", "2.50")

	out, err := e.svc.ConfirmMapping(ctx, e.tenantID, line.ID, e.romaine.ID)
	require.NoError(t, err)

	codes := map[string]bool{}
	for _, w := range out.Warnings {
		codes[w.Code] = true
	}
	assert.True(t, codes[WarningPackParse])
	assert.True(t, codes[WarningGLMissing])
	assert.True(t, out.CostFallback)
	assert.True(t, out.CostPerBaseUnit.Equal(decimal.RequireFromString("2.50")))
	assert.Nil(t, out.PackConfiguration)
	assert.Nil(t, out.GLAccount)
}

func TestConfirmMappingAliasConflictKeepsExistingMapping(t *testing.T) {
	e := newEnv(t, DefaultPolicy())
	ctx := context.Background()
	e.account(t, "5230")
	key := aliases.Key{TenantID: e.tenantID, VendorID: e.vendorID, Code: "X123"}
	_, err := e.aliases.Upsert(ctx, aliases.UpsertInput{Key: key, ItemID: e.anejo.ID})
	require.NoError(t, err)

	line := e.line(t, "DON JULIO BLANCO 750ML", "X123", "40")
	out, err := e.svc.ConfirmMapping(ctx, e.tenantID, line.ID, e.blanco.ID)
	require.NoError(t, err)
	require.Len(t, out.Warnings, 1)
	assert.Equal(t, WarningAliasConflict, out.Warnings[0].Code)
	assert.Nil(t, out.Alias)
	assert.Equal(t, e.blanco.ID, *out.Line.ItemID)

	itemID, ok, err := e.aliases.Lookup(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, e.anejo.ID, itemID)

	conflicts, err := e.aliases.ListConflicts(ctx, e.tenantID, 10)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, e.blanco.ID, conflicts[0].AttemptedItemID)
}

func TestConfirmMappingValidation(t *testing.T) {
	e := newEnv(t, DefaultPolicy())
	ctx := context.Background()
	line := e.line(t, "DON JULIO BLANCO", "", "40")

	_, err := e.svc.ConfirmMapping(ctx, e.tenantID, line.ID, uuid.Nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = e.svc.ConfirmMapping(ctx, e.tenantID, line.ID, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = e.svc.ConfirmMapping(ctx, e.tenantID, uuid.New(), e.blanco.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	// another tenant cannot confirm this tenant's line
	_, err = e.svc.ConfirmMapping(ctx, uuid.New(), line.ID, e.blanco.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUnmapLineKeepsAlias(t *testing.T) {
	e := newEnv(t, DefaultPolicy())
	ctx := context.Background()
	line := e.line(t, "DON JULIO BLANCO", "B1", "40")

	_, err := e.svc.UnmapLine(ctx, e.tenantID, line.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = e.svc.ConfirmMapping(ctx, e.tenantID, line.ID, e.blanco.ID)
	require.NoError(t, err)

	unmapped, err := e.svc.UnmapLine(ctx, e.tenantID, line.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LineStatusUnmapped, unmapped.Status)
	assert.Nil(t, unmapped.ItemID)

	itemID, ok, err := e.aliases.Lookup(ctx, aliases.Key{TenantID: e.tenantID, VendorID: e.vendorID, Code: "B1"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, e.blanco.ID, itemID)

	// the retained alias maps the line straight back on the next resolve
	res, err := e.svc.ResolveStoredLine(ctx, e.tenantID, line.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ProvenanceAlias, res.Provenance)
}

func TestBulkResolveSummary(t *testing.T) {
	policy := DefaultPolicy()
	policy.BatchSize = 2
	e := newEnv(t, policy)
	ctx := context.Background()
	_, err := e.aliases.Upsert(ctx, aliases.UpsertInput{
		Key:    aliases.Key{TenantID: e.tenantID, VendorID: e.vendorID, Code: "X123"},
		ItemID: e.blanco.ID,
	})
	require.NoError(t, err)

	in := func(desc, code string) LineInput {
		return LineInput{VendorID: e.vendorID, Description: desc, VendorItemCode: code, UnitCost: decimal.NewFromInt(10)}
	}
	lines := []LineInput{
		in("DJ BLANCO 750", "X123"),
		in("DON JULIO BLANCO", "X123"),
		in("CASE*DON JULIO ANEJO 6/750ML", ""),
		in("ROMAINE HEARTS 24CT", ""),
		in("MYSTERY WIDGET", ""),
		in("***", ""),
	}

	summary, err := e.svc.BulkResolve(ctx, e.tenantID, lines, BulkOptions{})
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Total)
	assert.Equal(t, 2, summary.AliasHits)
	assert.Equal(t, 1, summary.AutoMapped)
	assert.Equal(t, 1, summary.Suggested)
	assert.Equal(t, 2, summary.Unmatched)
	assert.Equal(t, 1, summary.NeedsReview)
	assert.Zero(t, summary.Created)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, 3, summary.Batches)
	assert.Zero(t, summary.FailedBatches)
	assert.Zero(t, atomic.LoadInt32(&e.source.calls), "bulk runs use the catalog index")

	e.recorder.mu.Lock()
	assert.Equal(t, 2, e.recorder.outcomes["mapped/alias"])
	assert.Equal(t, 1, e.recorder.outcomes["mapped/auto"])
	assert.Equal(t, 3, e.recorder.batches)
	e.recorder.mu.Unlock()
}

type flakyLines struct {
	LineRepository
	failFor uuid.UUID
	failing atomic.Bool
}

func (f *flakyLines) ApplyResolution(ctx context.Context, tenantID, lineID uuid.UUID, res Result) (bool, error) {
	if f.failing.Load() && lineID == f.failFor {
		return false, errors.New("connection reset by peer")
	}
	return f.LineRepository.ApplyResolution(ctx, tenantID, lineID, res)
}

func TestBulkResolveIsolatesFailedBatch(t *testing.T) {
	policy := DefaultPolicy()
	policy.BatchSize = 1
	e := newEnv(t, policy)
	ctx := context.Background()
	anejo := e.line(t, "DON JULIO ANEJO", "", "40")
	widget := e.line(t, "MYSTERY WIDGET", "", "5")
	gadget := e.line(t, "SPARKLY GADGET", "", "7")

	lines := &flakyLines{LineRepository: e.lines, failFor: gadget.ID}
	lines.failing.Store(true)
	svc, err := NewService(Deps{
		Tx:      pkgdb.NewFromGorm(e.db),
		Lines:   lines,
		Catalog: e.catalog,
		Aliases: e.aliases,
		Packs:   packs.NewRepository(e.db),
		GL:      glaccounts.NewService(e.db),
		Source:  e.source,
	}, policy)
	require.NoError(t, err)

	summary, err := svc.BulkResolveVendor(ctx, e.tenantID, e.vendorID, 0, BulkOptions{})
	require.Error(t, err)
	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	require.NotNil(t, summary)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.Batches)
	assert.Equal(t, 1, summary.FailedBatches)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.AutoMapped)
	assert.Equal(t, 1, summary.Unmatched)

	assert.Equal(t, enums.LineStatusMapped, e.reload(t, anejo.ID).Status)
	assert.NotNil(t, e.reload(t, widget.ID).LastResolvedAt)
	assert.Nil(t, e.reload(t, gadget.ID).LastResolvedAt)

	// a later sweep only retries the line whose write failed
	lines.failing.Store(false)
	again, err := svc.SweepPending(ctx, SweepRequest{ResolvedBefore: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 1, again.Total)
	assert.Equal(t, 1, again.Unmatched)
	assert.NotNil(t, e.reload(t, gadget.ID).LastResolvedAt)
}

func TestBulkResolveCreatesMissingItemsOnce(t *testing.T) {
	e := newEnv(t, DefaultPolicy())
	ctx := context.Background()
	create := true
	first := e.line(t, "MYSTERY WIDGET 12CT", "", "12")
	second := e.line(t, "Mystery Widget 12 ct", "", "12")
	garbage := e.line(t, "ABCDEFGHIJKLMNOPQRSTUV", "", "1")

	summary, err := e.svc.BulkResolveVendor(ctx, e.tenantID, e.vendorID, 0, BulkOptions{CreateMissing: &create})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Created)
	assert.Equal(t, 1, summary.Unmatched)
	assert.Equal(t, 1, summary.NeedsReview)

	a, b := e.reload(t, first.ID), e.reload(t, second.ID)
	require.NotNil(t, a.ItemID)
	require.NotNil(t, b.ItemID)
	assert.Equal(t, *a.ItemID, *b.ItemID)
	assert.Equal(t, enums.ProvenanceCreated, *a.Provenance)

	item, err := e.catalog.FindByID(ctx, e.tenantID, *a.ItemID)
	require.NoError(t, err)
	assert.Equal(t, "Mystery Widget", item.Name)
	assert.Equal(t, enums.MeasureTypeEach, item.MeasureType)

	g := e.reload(t, garbage.ID)
	assert.Equal(t, enums.LineStatusUnmapped, g.Status)
	assert.True(t, g.LowQuality)
	assert.True(t, g.NeedsReview)
}

func TestBulkResolveStopsBetweenBatchesOnCancel(t *testing.T) {
	policy := DefaultPolicy()
	policy.BatchSize = 1
	e := newEnv(t, policy)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.recorder.onBatch = cancel

	lines := []LineInput{
		{VendorID: e.vendorID, Description: "DON JULIO ANEJO"},
		{VendorID: e.vendorID, Description: "ROMAINE HEARTS"},
		{VendorID: e.vendorID, Description: "MYSTERY WIDGET"},
	}
	summary, err := e.svc.BulkResolve(ctx, e.tenantID, lines, BulkOptions{})
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	assert.True(t, summary.Cancelled)
	assert.Equal(t, 1, summary.Batches)
	assert.Equal(t, 1, summary.AutoMapped+summary.Suggested+summary.Unmatched)
}

func TestSweepPendingSkipsReviewAndMapped(t *testing.T) {
	e := newEnv(t, DefaultPolicy())
	ctx := context.Background()
	pending := e.line(t, "DON JULIO ANEJO", "", "40")
	review := e.line(t, "***", "", "1")
	require.NoError(t, e.db.Model(&models.InvoiceLine{}).Where("id = ?", review.ID).Update("needs_review", true).Error)

	summary, err := e.svc.SweepPending(ctx, SweepRequest{ResolvedBefore: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.AutoMapped)
	assert.Equal(t, enums.LineStatusMapped, e.reload(t, pending.ID).Status)
}

func TestSearchCatalog(t *testing.T) {
	e := newEnv(t, DefaultPolicy())
	ctx := context.Background()

	got, err := e.svc.SearchCatalog(ctx, e.tenantID, "don julio", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Don Julio Anejo", got[0].Name)
	assert.Equal(t, "Don Julio Blanco", got[1].Name)

	got, err = e.svc.SearchCatalog(ctx, e.tenantID, "dj-a750", 10)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, e.anejo.ID, got[0].ItemID)
	assert.Equal(t, 1.0, got[0].Confidence)

	got, err = e.svc.SearchCatalog(ctx, e.tenantID, "  ", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSuggestGLAccount(t *testing.T) {
	e := newEnv(t, DefaultPolicy())
	ctx := context.Background()

	account, err := e.svc.SuggestGLAccount(ctx, e.tenantID, e.romaine.ID)
	require.NoError(t, err)
	assert.Nil(t, account)

	e.account(t, "5100")
	account, err = e.svc.SuggestGLAccount(ctx, e.tenantID, e.romaine.ID)
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, "5100", account.ExternalCode)

	e.account(t, "5140")
	account, err = e.svc.SuggestGLAccount(ctx, e.tenantID, e.romaine.ID)
	require.NoError(t, err)
	assert.Equal(t, "5140", account.ExternalCode)

	_, err = e.svc.SuggestGLAccount(ctx, e.tenantID, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestNewServiceRejectsInvertedThresholds(t *testing.T) {
	db := dbtest.NewSQLite(t)
	_, err := NewService(Deps{
		Tx:      pkgdb.NewFromGorm(db),
		Lines:   NewLineRepository(db),
		Catalog: catalog.NewRepository(db, 0),
		Aliases: aliases.NewStore(db),
		Packs:   packs.NewRepository(db),
		GL:      glaccounts.NewService(db),
	}, Policy{AutoAcceptThreshold: 0.7, SuggestThreshold: 0.9})
	assert.Error(t, err)
}
