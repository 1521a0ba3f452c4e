package catalog

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/backoffice-backend/internal/normalize"
	"github.com/angelmondragon/backoffice-backend/internal/scoring"
	"github.com/angelmondragon/backoffice-backend/pkg/db/models"
)

// Source yields match candidates for a normalized query.
type Source interface {
	FindCandidates(ctx context.Context, tenantID uuid.UUID, query string) ([]scoring.Candidate, error)
}

var (
	_ Source = (*Repository)(nil)
	_ Source = (*Index)(nil)
)

type indexedItem struct {
	candidate  scoring.Candidate
	lowerName  string
	normalized string
	lowerSKU   string
}

// Index is an immutable in-memory view of one tenant's active catalog, built
// once per bulk job and shared by reference between concurrent resolutions.
type Index struct {
	tenantID uuid.UUID
	limit    int
	items    []indexedItem
	bySKU    map[string]int
	byName   map[string][]int
}

// BuildIndex loads the tenant's active items and indexes them by sku and by
// normalized name.
func BuildIndex(ctx context.Context, repo *Repository, tenantID uuid.UUID) (*Index, error) {
	items, err := repo.ListActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return NewIndex(tenantID, items, repo.limit), nil
}

// NewIndex indexes already loaded items. Inactive items and other tenants'
// items are skipped.
func NewIndex(tenantID uuid.UUID, items []models.CatalogItem, limit int) *Index {
	if limit <= 0 {
		limit = DefaultMaxCandidates
	}
	sorted := make([]models.CatalogItem, 0, len(items))
	for _, item := range items {
		if item.TenantID == tenantID && item.IsActive {
			sorted = append(sorted, item)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	idx := &Index{
		tenantID: tenantID,
		limit:    limit,
		items:    make([]indexedItem, 0, len(sorted)),
		bySKU:    map[string]int{},
		byName:   map[string][]int{},
	}
	for i, item := range sorted {
		entry := indexedItem{
			candidate:  toCandidate(item, ""),
			lowerName:  strings.ToLower(strings.TrimSpace(item.Name)),
			normalized: normalize.Normalize(item.Name),
		}
		if item.SKU != nil {
			entry.lowerSKU = strings.ToLower(strings.TrimSpace(*item.SKU))
			if _, dup := idx.bySKU[entry.lowerSKU]; !dup && entry.lowerSKU != "" {
				idx.bySKU[entry.lowerSKU] = i
			}
		}
		if entry.normalized != "" {
			idx.byName[entry.normalized] = append(idx.byName[entry.normalized], i)
		}
		idx.items = append(idx.items, entry)
	}
	return idx
}

// Len is the number of indexed items.
func (x *Index) Len() int { return len(x.items) }

// BySKU returns the item with the given sku.
func (x *Index) BySKU(sku string) (scoring.Candidate, bool) {
	i, ok := x.bySKU[strings.ToLower(strings.TrimSpace(sku))]
	if !ok {
		return scoring.Candidate{}, false
	}
	c := x.items[i].candidate
	c.Signal = scoring.SignalSKU
	return c, true
}

// ByName returns the items whose normalized name equals the normalized query.
func (x *Index) ByName(normalized string) []scoring.Candidate {
	hits := x.byName[normalized]
	out := make([]scoring.Candidate, 0, len(hits))
	for _, i := range hits {
		c := x.items[i].candidate
		c.Signal = scoring.SignalNameContainsQuery
		out = append(out, c)
	}
	return out
}

// FindCandidates mirrors Repository.FindCandidates over the in-memory items.
func (x *Index) FindCandidates(_ context.Context, tenantID uuid.UUID, query string) ([]scoring.Candidate, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" || tenantID != x.tenantID {
		return []scoring.Candidate{}, nil
	}

	out := make([]scoring.Candidate, 0, x.limit)
	taken := make(map[int]struct{})
	pass := func(signal scoring.Signal, keep func(it indexedItem) bool) {
		for i, it := range x.items {
			if len(out) >= x.limit {
				return
			}
			if _, ok := taken[i]; ok || !keep(it) {
				continue
			}
			taken[i] = struct{}{}
			c := it.candidate
			c.Signal = signal
			out = append(out, c)
		}
	}

	pass(scoring.SignalNameContainsQuery, func(it indexedItem) bool {
		return strings.Contains(it.lowerName, query) || strings.Contains(it.normalized, query)
	})
	pass(scoring.SignalSKU, func(it indexedItem) bool {
		return it.lowerSKU != "" && strings.Contains(it.lowerSKU, query)
	})
	pass(scoring.SignalQueryContainsName, func(it indexedItem) bool {
		return (it.lowerName != "" && strings.Contains(query, it.lowerName)) ||
			(it.normalized != "" && strings.Contains(query, it.normalized))
	})
	if len(out) == 0 {
		for _, tok := range significantTokens(query) {
			pass(scoring.SignalToken, func(it indexedItem) bool {
				return strings.Contains(it.lowerName, tok) || strings.Contains(it.normalized, tok)
			})
		}
	}
	return out, nil
}
