package exchange

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/angelmondragon/backoffice-backend/internal/catalog"
	"github.com/angelmondragon/backoffice-backend/internal/glaccounts"
	"github.com/angelmondragon/backoffice-backend/internal/normalize"
	"github.com/angelmondragon/backoffice-backend/internal/packs"
	"github.com/angelmondragon/backoffice-backend/pkg/db/models"
	"github.com/angelmondragon/backoffice-backend/pkg/enums"
	"github.com/angelmondragon/backoffice-backend/pkg/logger"
)

// defaultCategory is used for imported items without a category.
const defaultCategory = "uncategorized"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type unmappedLister interface {
	ListUnmapped(ctx context.Context, tenantID uuid.UUID) ([]models.InvoiceLine, error)
}

// Deps wires the exchange service.
type Deps struct {
	Tx      txRunner
	Lines   unmappedLister
	Catalog *catalog.Repository
	Packs   *packs.Repository
	GL      *glaccounts.Service
	Logger  *logger.Logger
}

// Service builds unmapped-item sheets and loads catalog sheets.
type Service struct {
	tx      txRunner
	lines   unmappedLister
	catalog *catalog.Repository
	packs   *packs.Repository
	gl      *glaccounts.Service
	logg    *logger.Logger
}

func NewService(deps Deps) (*Service, error) {
	if deps.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if deps.Lines == nil {
		return nil, fmt.Errorf("line lister required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if deps.Packs == nil {
		return nil, fmt.Errorf("pack repository required")
	}
	if deps.GL == nil {
		return nil, fmt.Errorf("gl service required")
	}
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		tx:      deps.Tx,
		lines:   deps.Lines,
		catalog: deps.Catalog,
		packs:   deps.Packs,
		gl:      deps.GL,
		logg:    logg,
	}, nil
}

// UnmappedRows collapses a tenant's unmapped and suggested lines into one row
// per vendor and normalized description, most frequent first.
func (s *Service) UnmappedRows(ctx context.Context, tenantID uuid.UUID) ([]Row, error) {
	lines, err := s.lines.ListUnmapped(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	title := cases.Title(language.English)
	type bucket struct {
		row  Row
		last models.InvoiceLine
	}
	byKey := map[string]*bucket{}
	order := []string{}
	for _, line := range lines {
		text := line.NormalizedDescription
		if text == "" {
			text = normalize.Normalize(line.Description)
		}
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(line.Description))
		}
		if text == "" {
			continue
		}

		key := line.VendorID.String() + "|" + text
		b, ok := byKey[key]
		if !ok {
			b = &bucket{row: Row{Name: title.String(text), Vendor: line.VendorID.String()}}
			b.row.Measure, b.row.ReportingUnit = measureOf(line.Description)
			byKey[key] = b
			order = append(order, key)
		}
		b.row.Occurrences++
		if b.row.Occurrences == 1 || !line.CreatedAt.Before(b.last.CreatedAt) {
			b.last = line
		}
	}

	rows := make([]Row, 0, len(order))
	for _, key := range order {
		b := byKey[key]
		if b.last.VendorItemCode != nil {
			b.row.ItemNumber = *b.last.VendorItemCode
		}
		if b.last.UnitCost.IsPositive() {
			cost := b.last.UnitCost
			b.row.LastCost = &cost
		}
		rows = append(rows, b.row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Occurrences != rows[j].Occurrences {
			return rows[i].Occurrences > rows[j].Occurrences
		}
		return rows[i].Name < rows[j].Name
	})
	return rows, nil
}

func measureOf(description string) (string, string) {
	parsed, err := packs.ParsePack(description)
	if err != nil {
		return string(enums.MeasureTypeEach), string(enums.UOMEach)
	}
	measure, _ := packs.DefaultMeasure(parsed.UOM)
	return string(measure), parsed.Source
}

// ImportResult summarizes a catalog sheet load.
type ImportResult struct {
	Created      int        `json:"created"`
	Updated      int        `json:"updated"`
	Packs        int        `json:"pack_configurations"`
	InvalidPacks int        `json:"invalid_pack_configurations"`
	Errors       []RowError `json:"errors"`
}

// ImportCatalog creates or updates one item per row. Rows match existing items
// by item number (sku), then by name. A reporting unit that parses as a pack
// attaches a pack configuration, scoped to the row's vendor when it is an id.
// Each row commits on its own; a bad row is reported and skipped.
func (s *Service) ImportCatalog(ctx context.Context, tenantID uuid.UUID, rows []Row) (*ImportResult, error) {
	if tenantID == uuid.Nil {
		return nil, errors.New("tenant id is required")
	}
	out := &ImportResult{Errors: []RowError{}}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		var created bool
		var pack *models.PackConfiguration
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			created, pack, err = s.importRow(ctx, tx, tenantID, row)
			return err
		})
		if err != nil {
			out.Errors = append(out.Errors, RowError{Line: row.Line, Message: err.Error()})
			continue
		}
		if created {
			out.Created++
		} else {
			out.Updated++
		}
		if pack != nil {
			out.Packs++
			if !pack.IsValid {
				out.InvalidPacks++
			}
		}
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"tenant_id": tenantID.String(),
		"rows":      len(rows),
		"created":   out.Created,
		"updated":   out.Updated,
		"packs":     out.Packs,
		"errors":    len(out.Errors),
	})
	s.logg.Info(logCtx, "catalog import finished")
	return out, nil
}

func (s *Service) importRow(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, row Row) (bool, *models.PackConfiguration, error) {
	items := s.catalog.WithTx(tx)

	item, err := s.existing(ctx, items, tenantID, row)
	if err != nil {
		return false, nil, err
	}
	created := item == nil
	if created {
		item = &models.CatalogItem{
			TenantID:    tenantID,
			Category:    defaultCategory,
			MeasureType: enums.MeasureTypeEach,
			BaseUOM:     enums.UOMEach,
			IsActive:    true,
		}
	}
	item.Name = row.Name
	if row.Category != "" {
		item.Category = strings.ToLower(row.Category)
	}
	if row.ItemNumber != "" {
		sku := row.ItemNumber
		item.SKU = &sku
	}
	item.InventoryAccountCode = optional(row.InventoryAccount, item.InventoryAccountCode)
	item.InventoryLevel = optional(row.InventoryLevel, item.InventoryLevel)
	item.CostUpdateMethod = optional(row.CostUpdateMethod, item.CostUpdateMethod)
	item.KeyItem = row.KeyItem

	var parsed *packs.Parsed
	if row.Measure != "" {
		measure, err := enums.ParseMeasureType(row.Measure)
		if err != nil {
			return false, nil, err
		}
		item.MeasureType = measure
	}
	if row.ReportingUnit != "" {
		unit, p, err := reportingUnit(row.ReportingUnit)
		if err != nil {
			return false, nil, err
		}
		parsed = p
		if row.Measure == "" {
			item.MeasureType, _ = packs.DefaultMeasure(unit)
		}
		item.BaseUOM = baseFor(item.MeasureType, unit)
	} else if row.Measure != "" {
		item.BaseUOM = defaultBase(item.MeasureType)
	}
	if err := packs.ValidateMeasure(item.MeasureType, item.BaseUOM); err != nil {
		return false, nil, err
	}

	if row.CostAccount != "" {
		account, err := s.gl.WithTx(tx).FindByCode(ctx, tenantID, row.CostAccount)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil, fmt.Errorf("cost account %s not found", row.CostAccount)
		}
		if err != nil {
			return false, nil, err
		}
		item.CostAccountID = &account.ID
	}

	if created {
		if _, err := items.Create(ctx, item); err != nil {
			return false, nil, err
		}
	} else if err := items.Save(ctx, item); err != nil {
		return false, nil, err
	}

	if parsed == nil {
		return created, nil, nil
	}
	res, err := packs.Resolve(*parsed, item.BaseUOM)
	if err != nil && !errors.Is(err, packs.ErrCrossFamily) {
		return false, nil, err
	}
	var vendorID *uuid.UUID
	if id, err := uuid.Parse(row.Vendor); err == nil {
		vendorID = &id
	}
	cfg, _, err := s.packs.WithTx(tx).Create(ctx, packs.ToModel(tenantID, item.ID, vendorID, res))
	if err != nil {
		return false, nil, err
	}
	return created, cfg, nil
}

func (s *Service) existing(ctx context.Context, items *catalog.Repository, tenantID uuid.UUID, row Row) (*models.CatalogItem, error) {
	if row.ItemNumber != "" {
		item, err := items.FindBySKU(ctx, tenantID, row.ItemNumber)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, catalog.ErrItemNotFound) {
			return nil, err
		}
	}
	item, err := items.FindByName(ctx, tenantID, row.Name)
	if errors.Is(err, catalog.ErrItemNotFound) {
		return nil, nil
	}
	return item, err
}

// reportingUnit accepts a bare unit ("ml", "Each") or a pack description.
// Bare units carry no pack configuration.
func reportingUnit(raw string) (enums.UOM, *packs.Parsed, error) {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if u, err := enums.ParseUOM(lower); err == nil {
		return u, nil, nil
	}
	parsed, err := packs.ParsePack(lower)
	if err != nil {
		return "", nil, fmt.Errorf("reporting unit %q is neither a unit nor a pack size", raw)
	}
	return parsed.UOM, &parsed, nil
}

// baseFor keeps the row's unit as the base when it fits the measure type.
// Each items are always counted in each.
func baseFor(measure enums.MeasureType, unit enums.UOM) enums.UOM {
	if measure != enums.MeasureTypeEach && packs.ValidateMeasure(measure, unit) == nil {
		return unit
	}
	return defaultBase(measure)
}

func defaultBase(measure enums.MeasureType) enums.UOM {
	switch measure {
	case enums.MeasureTypeVolume:
		return enums.UOMMilliliter
	case enums.MeasureTypeWeight:
		return enums.UOMGram
	default:
		return enums.UOMEach
	}
}

func optional(v string, current *string) *string {
	if v == "" {
		return current
	}
	return &v
}
