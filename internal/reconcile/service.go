// Package reconcile composes normalization, alias lookup, candidate matching
// and scoring into the invoice line resolution workflow.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/backoffice-backend/internal/aliases"
	"github.com/angelmondragon/backoffice-backend/internal/catalog"
	"github.com/angelmondragon/backoffice-backend/internal/glaccounts"
	"github.com/angelmondragon/backoffice-backend/internal/normalize"
	"github.com/angelmondragon/backoffice-backend/internal/packs"
	"github.com/angelmondragon/backoffice-backend/internal/scoring"
	"github.com/angelmondragon/backoffice-backend/pkg/db/models"
	"github.com/angelmondragon/backoffice-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/backoffice-backend/pkg/errors"
	"github.com/angelmondragon/backoffice-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Recorder receives resolution outcomes for metrics.
type Recorder interface {
	ObserveOutcome(status, provenance string)
	ObserveTopScore(score float64)
	ObserveBatch(failed bool)
}

// Service exposes line resolution, confirmation and bulk reconciliation.
type Service interface {
	ResolveLine(ctx context.Context, tenantID uuid.UUID, in LineInput) (*Result, error)
	ResolveStoredLine(ctx context.Context, tenantID, lineID uuid.UUID) (*Result, error)
	ConfirmMapping(ctx context.Context, tenantID, lineID, itemID uuid.UUID) (*ConfirmResult, error)
	UnmapLine(ctx context.Context, tenantID, lineID uuid.UUID) (*models.InvoiceLine, error)
	BulkResolve(ctx context.Context, tenantID uuid.UUID, lines []LineInput, opts BulkOptions) (*Summary, error)
	BulkResolveVendor(ctx context.Context, tenantID, vendorID uuid.UUID, limit int, opts BulkOptions) (*Summary, error)
	SweepPending(ctx context.Context, req SweepRequest) (*Summary, error)
	SearchCatalog(ctx context.Context, tenantID uuid.UUID, query string, limit int) ([]scoring.Match, error)
	SuggestGLAccount(ctx context.Context, tenantID, itemID uuid.UUID) (*models.GLAccount, error)
}

// Deps wires the service. Scorer, Normalizer, Source, Recorder and Logger
// are optional.
type Deps struct {
	Tx         txRunner
	Lines      LineRepository
	Catalog    *catalog.Repository
	Aliases    *aliases.Store
	Packs      *packs.Repository
	GL         *glaccounts.Service
	Scorer     *scoring.Scorer
	Normalizer *normalize.Normalizer
	Source     catalog.Source
	Recorder   Recorder
	Logger     *logger.Logger
}

type service struct {
	tx       txRunner
	lines    LineRepository
	catalog  *catalog.Repository
	aliases  *aliases.Store
	packs    *packs.Repository
	gl       *glaccounts.Service
	scorer   *scoring.Scorer
	norm     *normalize.Normalizer
	source   catalog.Source
	recorder Recorder
	logg     *logger.Logger
	policy   Policy
}

// NewService builds the reconciliation orchestrator.
func NewService(deps Deps, policy Policy) (Service, error) {
	if deps.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if deps.Lines == nil {
		return nil, fmt.Errorf("line repository required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if deps.Aliases == nil {
		return nil, fmt.Errorf("alias store required")
	}
	if deps.Packs == nil {
		return nil, fmt.Errorf("pack repository required")
	}
	if deps.GL == nil {
		return nil, fmt.Errorf("gl service required")
	}
	policy = policy.withDefaults()
	if policy.SuggestThreshold > policy.AutoAcceptThreshold {
		return nil, fmt.Errorf("suggest threshold %.2f exceeds auto-accept threshold %.2f", policy.SuggestThreshold, policy.AutoAcceptThreshold)
	}

	s := &service{
		tx:       deps.Tx,
		lines:    deps.Lines,
		catalog:  deps.Catalog,
		aliases:  deps.Aliases,
		packs:    deps.Packs,
		gl:       deps.GL,
		scorer:   deps.Scorer,
		norm:     deps.Normalizer,
		source:   deps.Source,
		recorder: deps.Recorder,
		logg:     deps.Logger,
		policy:   policy,
	}
	if s.scorer == nil {
		s.scorer = scoring.New(nil)
	}
	if s.norm == nil {
		s.norm = normalize.New(nil)
	}
	if s.source == nil {
		s.source = deps.Catalog
	}
	if s.logg == nil {
		s.logg = logger.Nop()
	}
	return s, nil
}

func (s *service) ResolveLine(ctx context.Context, tenantID uuid.UUID, in LineInput) (*Result, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	if in.LineID != nil {
		return s.ResolveStoredLine(ctx, tenantID, *in.LineID)
	}
	if in.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor_id is required")
	}

	res, err := s.resolve(ctx, tenantID, s.source, in)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve line")
	}
	s.observe(res)
	return &res, nil
}

func (s *service) ResolveStoredLine(ctx context.Context, tenantID, lineID uuid.UUID) (*Result, error) {
	if tenantID == uuid.Nil || lineID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant and line ids are required")
	}
	line, err := s.findLine(ctx, s.lines, tenantID, lineID)
	if err != nil {
		return nil, err
	}
	if line.Status == enums.LineStatusMapped {
		return resultFromLine(line), nil
	}

	res, err := s.resolve(ctx, tenantID, s.source, InputFromLine(*line))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve line")
	}
	applied, err := s.lines.ApplyResolution(ctx, tenantID, lineID, res)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist resolution")
	}
	if !applied {
		// confirmed while we were matching
		line, err = s.findLine(ctx, s.lines, tenantID, lineID)
		if err != nil {
			return nil, err
		}
		return resultFromLine(line), nil
	}
	s.observe(res)
	return &res, nil
}

// resolve runs the per-line state machine for an unmapped line. Auto-accepted
// matches are learned as aliases.
func (s *service) resolve(ctx context.Context, tenantID uuid.UUID, src catalog.Source, in LineInput) (Result, error) {
	analysis := s.norm.Analyze(in.Description)
	key := aliases.Key{
		TenantID:    tenantID,
		VendorID:    in.VendorID,
		Code:        in.VendorItemCode,
		Description: analysis.Text,
	}
	res, err := s.resolveKey(ctx, tenantID, src, key, analysis, true)
	if err != nil {
		return res, err
	}
	res.LineID = in.LineID
	if res.Status == enums.LineStatusMapped && res.Provenance != enums.ProvenanceAlias {
		if err := s.learn(ctx, key, &res, in.UnitCost, in.LineID); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (s *service) resolveKey(ctx context.Context, tenantID uuid.UUID, src catalog.Source, key aliases.Key, analysis normalize.Result, checkAlias bool) (Result, error) {
	res := Result{
		Status:                enums.LineStatusUnmapped,
		NormalizedDescription: analysis.Text,
		LowQuality:            analysis.LowQuality,
	}

	if checkAlias {
		itemID, ok, err := s.aliases.Lookup(ctx, key)
		if err != nil {
			return res, err
		}
		if ok {
			return aliasHit(res, itemID), nil
		}
	}

	if analysis.Err() != nil {
		res.NeedsReview = true
		res.ReviewReason = ReasonEmptyDescription
		return res, nil
	}

	ranking, err := s.rank(ctx, tenantID, src, analysis.Text)
	if err != nil {
		return res, err
	}
	s.decide(&res, ranking)
	return res, nil
}

func (s *service) rank(ctx context.Context, tenantID uuid.UUID, src catalog.Source, text string) (scoring.Ranking, error) {
	candidates, err := src.FindCandidates(ctx, tenantID, text)
	if err != nil {
		return scoring.Ranking{}, err
	}
	if rule, ok := s.scorer.Rule(text); ok && rule.Search != "" {
		targets, err := src.FindCandidates(ctx, tenantID, rule.Search)
		if err != nil {
			return scoring.Ranking{}, err
		}
		candidates = append(candidates, targets...)
	}
	return s.scorer.Rank(text, candidates), nil
}

// decide applies the policy thresholds to a ranking.
func (s *service) decide(res *Result, ranking scoring.Ranking) {
	top, ok := ranking.Top()
	if !ok || top.Confidence < s.policy.SuggestThreshold {
		res.Status = enums.LineStatusUnmapped
		res.Candidates = firstN(ranking.Matches, maxSuggestions)
		if res.LowQuality {
			res.NeedsReview = true
			res.ReviewReason = ReasonLowQuality
		}
		if ok && s.recorder != nil {
			s.recorder.ObserveTopScore(top.Confidence)
		}
		return
	}
	if s.recorder != nil {
		s.recorder.ObserveTopScore(top.Confidence)
	}

	confidence := top.Confidence
	res.Confidence = &confidence
	if top.Provenance == enums.ProvenanceCurated {
		res.Provenance = enums.ProvenanceCurated
	}

	switch {
	case ranking.Ambiguous:
		res.Status = enums.LineStatusSuggested
		res.Ambiguous = true
		res.Candidates = ranking.Tied()
		res.NeedsReview = true
		res.ReviewReason = ReasonAmbiguous
	case top.Confidence >= s.policy.AutoAcceptThreshold && s.policy.AutoConfirm:
		itemID := top.ItemID
		res.Status = enums.LineStatusMapped
		res.ItemID = &itemID
		res.Candidates = []scoring.Match{top}
		if res.Provenance == "" {
			res.Provenance = enums.ProvenanceAuto
		}
	default:
		res.Status = enums.LineStatusSuggested
		res.Candidates = firstN(ranking.Matches, maxSuggestions)
	}
}

// learn records an automatic mapping as an alias. When another resolution
// already claimed the key for a different item, that mapping wins.
func (s *service) learn(ctx context.Context, key aliases.Key, res *Result, unitCost decimal.Decimal, lineID *uuid.UUID) error {
	if strings.TrimSpace(key.Code) == "" && strings.TrimSpace(key.Description) == "" {
		return nil
	}
	in := aliases.UpsertInput{
		Key:           key,
		ItemID:        *res.ItemID,
		Provenance:    res.Provenance,
		InvoiceLineID: lineID,
	}
	if unitCost.IsPositive() {
		in.UnitCost = &unitCost
	}
	_, err := s.aliases.Upsert(ctx, in)
	var conflict *aliases.ConflictError
	if errors.As(err, &conflict) {
		*res = aliasHit(*res, conflict.ExistingItemID)
		return nil
	}
	return err
}

func (s *service) ConfirmMapping(ctx context.Context, tenantID, lineID, itemID uuid.UUID) (*ConfirmResult, error) {
	if tenantID == uuid.Nil || lineID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant and line ids are required")
	}
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item_id is required")
	}

	out := &ConfirmResult{Warnings: []Warning{}}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		lines := s.lines.WithTx(tx)
		items := s.catalog.WithTx(tx)

		line, err := s.findLine(ctx, lines, tenantID, lineID)
		if err != nil {
			return err
		}
		item, err := items.FindByID(ctx, tenantID, itemID)
		if errors.Is(err, catalog.ErrItemNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "catalog item not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog item")
		}
		if !item.IsActive {
			return pkgerrors.New(pkgerrors.CodeValidation, "catalog item is inactive")
		}
		if line.Status == enums.LineStatusMapped && line.ItemID != nil && *line.ItemID != itemID {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "line is mapped to another item; unmap it first")
		}

		ok, err := lines.MarkMapped(ctx, line, itemID, enums.ProvenanceManual)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "map line")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "line changed during confirmation")
		}
		out.Line = line

		if err := s.learnConfirmed(ctx, tx, line, itemID, out); err != nil {
			return err
		}
		if err := s.attachPack(ctx, tx, line, item, out); err != nil {
			return err
		}
		if err := packs.ValidateMeasure(item.MeasureType, item.BaseUOM); err != nil {
			out.Warnings = append(out.Warnings, Warning{Code: WarningMeasureMismatch, Message: err.Error()})
		}
		return s.assignGL(ctx, tx, items, item, out)
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm mapping")
	}

	if s.recorder != nil {
		s.recorder.ObserveOutcome(string(enums.LineStatusMapped), string(enums.ProvenanceManual))
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"tenant_id":       tenantID.String(),
		"invoice_line_id": lineID.String(),
		"item_id":         itemID.String(),
		"warnings":        len(out.Warnings),
	})
	s.logg.Info(logCtx, "invoice line mapping confirmed")
	return out, nil
}

func (s *service) learnConfirmed(ctx context.Context, tx *gorm.DB, line *models.InvoiceLine, itemID uuid.UUID, out *ConfirmResult) error {
	text := line.NormalizedDescription
	if text == "" {
		text = s.norm.Normalize(line.Description)
	}
	key := aliases.Key{TenantID: line.TenantID, VendorID: line.VendorID, Description: text}
	if line.VendorItemCode != nil {
		key.Code = *line.VendorItemCode
	}
	if strings.TrimSpace(key.Code) == "" && text == "" {
		return nil
	}

	in := aliases.UpsertInput{
		Key:           key,
		ItemID:        itemID,
		Provenance:    enums.ProvenanceManual,
		InvoiceLineID: &line.ID,
	}
	if line.UnitCost.IsPositive() {
		cost := line.UnitCost
		in.UnitCost = &cost
	}
	alias, err := s.aliases.WithTx(tx).Upsert(ctx, in)
	var conflict *aliases.ConflictError
	switch {
	case errors.As(err, &conflict):
		out.Warnings = append(out.Warnings, Warning{
			Code:    WarningAliasConflict,
			Message: fmt.Sprintf("%s already maps to item %s; alias left unchanged", conflict.AliasKey, conflict.ExistingItemID),
		})
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "learn alias")
	default:
		out.Alias = alias
	}
	return nil
}

func (s *service) attachPack(ctx context.Context, tx *gorm.DB, line *models.InvoiceLine, item *models.CatalogItem, out *ConfirmResult) error {
	res, err := packs.ParseAndResolve(line.Description, item.BaseUOM)
	if errors.Is(err, packs.ErrPackParse) {
		out.CostPerBaseUnit, out.CostFallback = packs.CostPerBaseUnit(line.UnitCost, nil)
		out.Warnings = append(out.Warnings, Warning{Code: WarningPackParse, Message: "no pack size recognized; cost per base unit uses the raw unit cost"})
		return nil
	}
	if err != nil {
		out.Warnings = append(out.Warnings, Warning{Code: WarningPackInvalid, Message: err.Error()})
	}

	vendorID := line.VendorID
	cfg, _, cerr := s.packs.WithTx(tx).Create(ctx, packs.ToModel(line.TenantID, item.ID, &vendorID, res))
	if cerr != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cerr, "attach pack configuration")
	}
	out.PackConfiguration = cfg
	out.CostPerBaseUnit, out.CostFallback = packs.CostPerBaseUnit(line.UnitCost, &res)
	return nil
}

func (s *service) assignGL(ctx context.Context, tx *gorm.DB, items *catalog.Repository, item *models.CatalogItem, out *ConfirmResult) error {
	if item.CostAccountID != nil {
		return nil
	}
	account, err := s.gl.WithTx(tx).SuggestForItem(ctx, item)
	if errors.Is(err, glaccounts.ErrGLMappingMissing) {
		out.Warnings = append(out.Warnings, Warning{
			Code:    WarningGLMissing,
			Message: fmt.Sprintf("no cost account for category %q", item.Category),
		})
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "suggest gl account")
	}
	if _, err := items.SetCostAccount(ctx, item.TenantID, item.ID, account.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign gl account")
	}
	out.GLAccount = account
	return nil
}

func (s *service) UnmapLine(ctx context.Context, tenantID, lineID uuid.UUID) (*models.InvoiceLine, error) {
	if tenantID == uuid.Nil || lineID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant and line ids are required")
	}
	line, err := s.findLine(ctx, s.lines, tenantID, lineID)
	if err != nil {
		return nil, err
	}
	if line.Status != enums.LineStatusMapped {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only mapped lines can be unmapped").
			WithDetails(map[string]any{"status": line.Status})
	}
	ok, err := s.lines.Unmap(ctx, tenantID, lineID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unmap line")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "line changed during unmap")
	}
	if s.recorder != nil {
		s.recorder.ObserveOutcome(string(enums.LineStatusUnmapped), string(enums.ProvenanceManual))
	}
	return s.findLine(ctx, s.lines, tenantID, lineID)
}

func (s *service) SearchCatalog(ctx context.Context, tenantID uuid.UUID, query string, limit int) ([]scoring.Match, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	if limit <= 0 || limit > catalog.DefaultMaxCandidates {
		limit = catalog.DefaultMaxCandidates
	}
	out := []scoring.Match{}
	raw := strings.TrimSpace(query)
	if raw == "" {
		return out, nil
	}

	seen := map[uuid.UUID]struct{}{}
	exact, err := s.catalog.FindBySKU(ctx, tenantID, raw)
	switch {
	case err == nil && exact.IsActive:
		c := scoring.Match{Confidence: 1}
		c.ItemID, c.Name, c.Category, c.Signal = exact.ID, exact.Name, exact.Category, scoring.SignalSKU
		if exact.SKU != nil {
			c.SKU = *exact.SKU
		}
		out = append(out, c)
		seen[exact.ID] = struct{}{}
	case err != nil && !errors.Is(err, catalog.ErrItemNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "search catalog")
	}

	text := s.norm.Normalize(raw)
	if text == "" {
		return out, nil
	}
	ranking, err := s.rank(ctx, tenantID, s.source, text)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "search catalog")
	}
	for _, m := range ranking.Matches {
		if len(out) >= limit {
			break
		}
		if _, dup := seen[m.ItemID]; dup {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *service) SuggestGLAccount(ctx context.Context, tenantID, itemID uuid.UUID) (*models.GLAccount, error) {
	if tenantID == uuid.Nil || itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant and item ids are required")
	}
	item, err := s.catalog.FindByID(ctx, tenantID, itemID)
	if errors.Is(err, catalog.ErrItemNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "catalog item not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog item")
	}
	account, err := s.gl.SuggestForItem(ctx, item)
	if errors.Is(err, glaccounts.ErrGLMappingMissing) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "suggest gl account")
	}
	return account, nil
}

func (s *service) findLine(ctx context.Context, repo LineRepository, tenantID, lineID uuid.UUID) (*models.InvoiceLine, error) {
	line, err := repo.FindByID(ctx, tenantID, lineID)
	if errors.Is(err, ErrLineNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice line not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice line")
	}
	return line, nil
}

func (s *service) observe(res Result) {
	if s.recorder == nil {
		return
	}
	s.recorder.ObserveOutcome(string(res.Status), string(res.Provenance))
}

func aliasHit(res Result, itemID uuid.UUID) Result {
	confidence := 1.0
	res.Status = enums.LineStatusMapped
	res.ItemID = &itemID
	res.Confidence = &confidence
	res.Provenance = enums.ProvenanceAlias
	res.Candidates = nil
	res.Ambiguous = false
	res.NeedsReview = false
	res.ReviewReason = ""
	return res
}

func resultFromLine(line *models.InvoiceLine) *Result {
	id := line.ID
	res := &Result{
		LineID:                &id,
		Status:                line.Status,
		ItemID:                line.ItemID,
		Confidence:            line.MatchConfidence,
		NormalizedDescription: line.NormalizedDescription,
		LowQuality:            line.LowQuality,
		NeedsReview:           line.NeedsReview,
	}
	if line.Provenance != nil {
		res.Provenance = *line.Provenance
	}
	if line.ReviewReason != nil {
		res.ReviewReason = *line.ReviewReason
	}
	return res
}

func firstN(matches []scoring.Match, n int) []scoring.Match {
	if len(matches) > n {
		return matches[:n]
	}
	return matches
}
