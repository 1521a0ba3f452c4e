package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/angelmondragon/backoffice-backend/internal/aliases"
	"github.com/angelmondragon/backoffice-backend/internal/catalog"
	"github.com/angelmondragon/backoffice-backend/internal/normalize"
	"github.com/angelmondragon/backoffice-backend/internal/packs"
	"github.com/angelmondragon/backoffice-backend/pkg/db/models"
	"github.com/angelmondragon/backoffice-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/backoffice-backend/pkg/errors"
)

// createdCategory is assigned to items created from unmatched lines.
const createdCategory = "uncategorized"

// defaultVendorLimit bounds a vendor bulk run over persisted lines.
const defaultVendorLimit = 500

type member struct {
	input    LineInput
	analysis normalize.Result
}

// group is the set of lines sharing a vendor and alias key. It is resolved once.
type group struct {
	key     aliases.Key
	members []member

	aliasChecked bool
	aliasHit     bool
	aliasItem    uuid.UUID

	result Result
	err    error
	done   bool
}

func (g *group) lead() member { return g.members[0] }

// eligibleForCreate reports whether the group may spawn a new catalog item.
func (g *group) eligibleForCreate() bool {
	lead := g.lead()
	return g.done && g.err == nil &&
		g.result.Status == enums.LineStatusUnmapped &&
		!g.result.Ambiguous &&
		lead.analysis.Text != "" &&
		!lead.analysis.LowQuality
}

// BatchError reports one failed batch of a bulk run. Lines whose write failed
// keep their previous state and are picked up by the next run.
type BatchError struct {
	Batch int
	Err   error
}

func (e *BatchError) Error() string { return fmt.Sprintf("batch %d: %v", e.Batch, e.Err) }

func (e *BatchError) Unwrap() error { return e.Err }

// SweepRequest selects persisted lines for the scheduled sweep.
type SweepRequest struct {
	ResolvedBefore time.Time
	Limit          int
	Options        BulkOptions
}

func (s *service) BulkResolve(ctx context.Context, tenantID uuid.UUID, lines []LineInput, opts BulkOptions) (*Summary, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	for i, in := range lines {
		if in.VendorID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("lines[%d].vendor_id is required", i))
		}
	}

	policy := s.policy
	if opts.CreateMissing != nil {
		policy.CreateMissing = *opts.CreateMissing
	}
	if opts.BatchDelay != nil {
		policy.BatchDelay = *opts.BatchDelay
	}

	summary := &Summary{Total: len(lines)}
	if len(lines) == 0 {
		return summary, nil
	}

	idx, err := catalog.BuildIndex(ctx, s.catalog, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build catalog index")
	}

	groups := s.buildGroups(tenantID, lines)
	s.primeAliases(ctx, groups, policy.Concurrency)
	ordered := aliasHitsFirst(groups)

	var errs error
	for start := 0; start < len(ordered); start += policy.BatchSize {
		if start > 0 {
			if err := wait(ctx, policy.BatchDelay); err != nil {
				summary.Cancelled = true
				errs = multierr.Append(errs, err)
				break
			}
		} else if err := ctx.Err(); err != nil {
			summary.Cancelled = true
			errs = multierr.Append(errs, err)
			break
		}

		end := start + policy.BatchSize
		if end > len(ordered) {
			end = len(ordered)
		}
		summary.Batches++
		batchErr := s.runBatch(ctx, tenantID, idx, ordered[start:end], policy.Concurrency)
		if batchErr != nil {
			summary.FailedBatches++
			errs = multierr.Append(errs, &BatchError{Batch: summary.Batches, Err: batchErr})
		}
		if s.recorder != nil {
			s.recorder.ObserveBatch(batchErr != nil)
		}
	}

	if policy.CreateMissing && !summary.Cancelled {
		errs = multierr.Append(errs, s.createMissing(ctx, tenantID, groups))
	}

	s.tally(summary, groups)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"tenant_id":      tenantID.String(),
		"total":          summary.Total,
		"auto_mapped":    summary.AutoMapped,
		"alias_hits":     summary.AliasHits,
		"suggested":      summary.Suggested,
		"unmatched":      summary.Unmatched,
		"created":        summary.Created,
		"failed_batches": summary.FailedBatches,
		"cancelled":      summary.Cancelled,
	})
	if errs != nil {
		s.logg.Error(logCtx, "bulk resolve finished with errors", errs)
	} else {
		s.logg.Info(logCtx, "bulk resolve finished")
	}
	return summary, errs
}

func (s *service) BulkResolveVendor(ctx context.Context, tenantID, vendorID uuid.UUID, limit int, opts BulkOptions) (*Summary, error) {
	if tenantID == uuid.Nil || vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant and vendor ids are required")
	}
	if limit <= 0 {
		limit = defaultVendorLimit
	}
	rows, err := s.lines.ListUnmappedByVendor(ctx, tenantID, vendorID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vendor lines")
	}
	return s.BulkResolve(ctx, tenantID, inputsFromLines(rows), opts)
}

// SweepPending re-resolves stale unmapped lines of every tenant. Tenants are
// processed one after another; a failing tenant does not stop the sweep.
func (s *service) SweepPending(ctx context.Context, req SweepRequest) (*Summary, error) {
	if req.Limit <= 0 {
		req.Limit = defaultVendorLimit
	}
	rows, err := s.lines.ListPending(ctx, req.ResolvedBefore, req.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending lines")
	}

	byTenant := map[uuid.UUID][]models.InvoiceLine{}
	tenants := []uuid.UUID{}
	for _, row := range rows {
		if _, ok := byTenant[row.TenantID]; !ok {
			tenants = append(tenants, row.TenantID)
		}
		byTenant[row.TenantID] = append(byTenant[row.TenantID], row)
	}

	total := &Summary{}
	var errs error
	for _, tenantID := range tenants {
		if err := ctx.Err(); err != nil {
			total.Cancelled = true
			errs = multierr.Append(errs, err)
			break
		}
		summary, err := s.BulkResolve(ctx, tenantID, inputsFromLines(byTenant[tenantID]), req.Options)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("tenant %s: %w", tenantID, err))
		}
		if summary != nil {
			total.add(*summary)
		}
	}
	return total, errs
}

func (s *service) buildGroups(tenantID uuid.UUID, lines []LineInput) []*group {
	byKey := map[string]*group{}
	groups := []*group{}
	for _, in := range lines {
		analysis := s.norm.Analyze(in.Description)
		key := aliases.Key{
			TenantID:    tenantID,
			VendorID:    in.VendorID,
			Code:        in.VendorItemCode,
			Description: analysis.Text,
		}
		id := in.VendorID.String() + "|" + key.AliasKey()
		g, ok := byKey[id]
		if !ok {
			g = &group{key: key}
			byKey[id] = g
			groups = append(groups, g)
		}
		g.members = append(g.members, member{input: in, analysis: analysis})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].key.VendorID.String() < groups[j].key.VendorID.String()
	})
	return groups
}

// primeAliases runs the alias fast path for every group before any fuzzy work.
// Lookup failures leave the group unchecked so its batch retries the lookup.
func (s *service) primeAliases(ctx context.Context, groups []*group, limit int) {
	var eg errgroup.Group
	eg.SetLimit(limit)
	for _, g := range groups {
		g := g
		eg.Go(func() error {
			itemID, ok, err := s.aliases.Lookup(ctx, g.key)
			if err != nil {
				s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"alias_key": g.key.AliasKey(), "error": err.Error()}), "alias prefetch failed")
				return nil
			}
			g.aliasChecked = true
			g.aliasHit = ok
			g.aliasItem = itemID
			return nil
		})
	}
	_ = eg.Wait()
}

func aliasHitsFirst(groups []*group) []*group {
	ordered := make([]*group, 0, len(groups))
	for _, g := range groups {
		if g.aliasHit {
			ordered = append(ordered, g)
		}
	}
	for _, g := range groups {
		if !g.aliasHit {
			ordered = append(ordered, g)
		}
	}
	return ordered
}

// runBatch resolves a batch under bounded concurrency. Every group runs to
// completion; the first failure is reported for the batch.
func (s *service) runBatch(ctx context.Context, tenantID uuid.UUID, idx *catalog.Index, batch []*group, limit int) error {
	var eg errgroup.Group
	eg.SetLimit(limit)
	for _, g := range batch {
		g := g
		eg.Go(func() error {
			g.err = s.resolveGroup(ctx, tenantID, idx, g)
			g.done = true
			return g.err
		})
	}
	return eg.Wait()
}

func (s *service) resolveGroup(ctx context.Context, tenantID uuid.UUID, idx *catalog.Index, g *group) error {
	lead := g.lead()
	var res Result
	if g.aliasHit {
		res = aliasHit(Result{NormalizedDescription: lead.analysis.Text, LowQuality: lead.analysis.LowQuality}, g.aliasItem)
	} else {
		var err error
		res, err = s.resolveKey(ctx, tenantID, idx, g.key, lead.analysis, !g.aliasChecked)
		if err != nil {
			return err
		}
		if res.Status == enums.LineStatusMapped && res.Provenance != enums.ProvenanceAlias {
			if err := s.learn(ctx, g.key, &res, lead.input.UnitCost, lead.input.LineID); err != nil {
				return err
			}
		}
	}
	g.result = res
	return s.persistGroup(ctx, tenantID, g)
}

func (s *service) persistGroup(ctx context.Context, tenantID uuid.UUID, g *group) error {
	var errs error
	for _, m := range g.members {
		if m.input.LineID == nil {
			continue
		}
		res := g.result
		res.NormalizedDescription = m.analysis.Text
		res.LowQuality = m.analysis.LowQuality
		if _, err := s.lines.ApplyResolution(ctx, tenantID, *m.input.LineID, res); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// createMissing creates one catalog item per vendor and normalized description
// for eligible unmatched groups and maps their lines to it.
func (s *service) createMissing(ctx context.Context, tenantID uuid.UUID, groups []*group) error {
	created := map[string]uuid.UUID{}
	title := cases.Title(language.English)
	var errs error
	for _, g := range groups {
		if !g.eligibleForCreate() {
			continue
		}
		lead := g.lead()
		dedupe := g.key.VendorID.String() + "|" + lead.analysis.Text

		itemID, ok := created[dedupe]
		if !ok {
			item, err := s.catalog.Create(ctx, newItemFor(tenantID, title.String(lead.analysis.Text), lead.input.Description))
			if err != nil {
				g.err = err
				errs = multierr.Append(errs, err)
				continue
			}
			itemID = item.ID
			created[dedupe] = itemID
		}

		res := g.result
		res.Status = enums.LineStatusMapped
		res.ItemID = &itemID
		res.Provenance = enums.ProvenanceCreated
		res.Candidates = nil
		res.Confidence = nil
		if err := s.learn(ctx, g.key, &res, lead.input.UnitCost, lead.input.LineID); err != nil {
			g.err = err
			errs = multierr.Append(errs, err)
			continue
		}
		g.result = res
		if err := s.persistGroup(ctx, tenantID, g); err != nil {
			g.err = err
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func newItemFor(tenantID uuid.UUID, name, rawDescription string) *models.CatalogItem {
	measure, base := enums.MeasureTypeEach, enums.UOMEach
	if parsed, err := packs.ParsePack(rawDescription); err == nil {
		measure, base = packs.DefaultMeasure(parsed.UOM)
	}
	return &models.CatalogItem{
		TenantID:    tenantID,
		Name:        name,
		Category:    createdCategory,
		MeasureType: measure,
		BaseUOM:     base,
		IsActive:    true,
	}
}

func (s *service) tally(summary *Summary, groups []*group) {
	for _, g := range groups {
		n := len(g.members)
		if !g.done {
			continue
		}
		if g.err != nil {
			summary.Failed += n
			continue
		}
		switch g.result.Status {
		case enums.LineStatusMapped:
			switch g.result.Provenance {
			case enums.ProvenanceAlias:
				summary.AliasHits += n
			case enums.ProvenanceCreated:
				summary.Created += n
			default:
				summary.AutoMapped += n
			}
		case enums.LineStatusSuggested:
			summary.Suggested += n
		default:
			summary.Unmatched += n
		}
		if g.result.NeedsReview {
			summary.NeedsReview += n
		}
		if s.recorder != nil {
			for i := 0; i < n; i++ {
				s.recorder.ObserveOutcome(string(g.result.Status), string(g.result.Provenance))
			}
		}
	}
}

func (s *Summary) add(o Summary) {
	s.Total += o.Total
	s.AutoMapped += o.AutoMapped
	s.AliasHits += o.AliasHits
	s.Suggested += o.Suggested
	s.Unmatched += o.Unmatched
	s.Created += o.Created
	s.NeedsReview += o.NeedsReview
	s.Failed += o.Failed
	s.Batches += o.Batches
	s.FailedBatches += o.FailedBatches
	s.Cancelled = s.Cancelled || o.Cancelled
}

func inputsFromLines(rows []models.InvoiceLine) []LineInput {
	out := make([]LineInput, 0, len(rows))
	for _, row := range rows {
		out = append(out, InputFromLine(row))
	}
	return out
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsCancelled reports whether a bulk error came from context cancellation.
func IsCancelled(err error) bool {
	for _, e := range multierr.Errors(err) {
		if errors.Is(e, context.Canceled) || errors.Is(e, context.DeadlineExceeded) {
			return true
		}
	}
	return false
}
