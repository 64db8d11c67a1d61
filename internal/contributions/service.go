package contributions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/coffeefund-backend/internal/balances"
	"github.com/angelmondragon/coffeefund-backend/internal/compensations"
	"github.com/angelmondragon/coffeefund-backend/internal/ledger"
	product "github.com/angelmondragon/coffeefund-backend/internal/products"
	"github.com/angelmondragon/coffeefund-backend/pkg/db"
	"github.com/angelmondragon/coffeefund-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/coffeefund-backend/pkg/errors"
	"github.com/angelmondragon/coffeefund-backend/pkg/logger"
	"github.com/angelmondragon/coffeefund-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type memberDirectory interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error)
}

type productCatalog interface {
	Get(ctx context.Context, id uuid.UUID) (*product.ProductDTO, error)
	RecomputeAveragePrice(ctx context.Context, id uuid.UUID) (decimal.Decimal, error)
	SetPhoto(ctx context.Context, id uuid.UUID, url string) error
}

// Reprocessor rebuilds balances after every committed write.
type Reprocessor interface {
	ReprocessAllBalances(ctx context.Context) (*balances.Result, error)
}

// CompensationChecker runs a compensation when every active member is in credit.
type CompensationChecker interface {
	CheckAndExecute(ctx context.Context) (*compensations.CompensationDTO, error)
}

// ServiceParams groups dependencies for the contribution ledger.
type ServiceParams struct {
	Repo          Repository
	Users         memberDirectory
	Products      productCatalog
	Tx            db.TxRunner
	Reprocessor   Reprocessor
	Compensations CompensationChecker
	BestEffort    *ledger.BestEffort
	Metrics       *metrics.LedgerMetrics
	Logger        *logger.Logger
	Clock         func() time.Time
}

// Service records coffee purchases and keeps balances in step with them.
type Service interface {
	Create(ctx context.Context, input CreateInput) (uuid.UUID, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) error
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*ContributionDTO, error)
	List(ctx context.Context) ([]ContributionDTO, error)
	ListByUser(ctx context.Context, userID uuid.UUID, missingArrivalOnly bool) ([]ContributionDTO, error)
}

type service struct {
	repo          Repository
	users         memberDirectory
	products      productCatalog
	tx            db.TxRunner
	reprocessor   Reprocessor
	compensations CompensationChecker
	bestEffort    *ledger.BestEffort
	metrics       *metrics.LedgerMetrics
	logg          *logger.Logger
	now           func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("contribution repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user directory required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product catalog required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Reprocessor == nil {
		return nil, fmt.Errorf("balance reprocessor required")
	}
	if params.Compensations == nil {
		return nil, fmt.Errorf("compensation checker required")
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:          params.Repo,
		users:         params.Users,
		products:      params.Products,
		tx:            params.Tx,
		reprocessor:   params.Reprocessor,
		compensations: params.Compensations,
		bestEffort:    params.BestEffort,
		metrics:       params.Metrics,
		logg:          params.Logger,
		now:           now,
	}, nil
}

// Create validates and stores a purchase with its shares, then refreshes
// the product price, balances and compensation state.
func (s *service) Create(ctx context.Context, input CreateInput) (uuid.UUID, error) {
	contribution := &models.Contribution{
		ID:               uuid.New(),
		UserID:           input.UserID,
		ProductID:        input.ProductID,
		PurchaseDate:     input.PurchaseDate.UTC(),
		Value:            ledger.RoundValue(input.Value),
		QuantityKg:       ledger.RoundKg(input.QuantityKg),
		PurchaseEvidence: normalizeEvidence(input.PurchaseEvidence),
		ArrivalEvidence:  normalizeEvidence(input.ArrivalEvidence),
		ArrivalDate:      utcPtr(input.ArrivalDate),
	}
	if input.UserID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "user_id is required")
	}
	if err := s.validate(contribution); err != nil {
		return uuid.Nil, err
	}
	if err := s.ensureProduct(ctx, contribution.ProductID); err != nil {
		return uuid.Nil, err
	}

	members := []uuid.UUID{contribution.UserID}
	if input.IsDivided && countNonNil(input.ParticipantIDs) > 0 {
		contribution.IsDivided = true
		members = ledger.Participants(contribution.UserID, input.ParticipantIDs)
	}
	names, err := s.memberNames(ctx, members)
	if err != nil {
		return uuid.Nil, err
	}

	var details []models.ContributionDetail
	if contribution.IsDivided {
		details = buildDetails(contribution, members, names)
	}

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := txRepo.Create(ctx, contribution); err != nil {
			return err
		}
		return txRepo.CreateDetails(ctx, details)
	}); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create contribution")
	}

	s.metrics.IncContributionWrite("create")
	s.logInfo(ctx, contribution.ID, "contribution created")

	s.recomputePrice(ctx, contribution.ProductID)
	s.reprocess(ctx)
	s.checkCompensation(ctx)
	return contribution.ID, nil
}

// Update applies a patch. See UpdateInput for SkipBalanceUpdate.
func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) error {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return mapLookupError(err)
	}
	if input.SkipBalanceUpdate {
		return s.updateSettled(ctx, existing, input)
	}

	merged := *existing
	fields := map[string]any{}
	if input.ProductID != nil && *input.ProductID != existing.ProductID {
		merged.ProductID = *input.ProductID
		fields["product_id"] = merged.ProductID
	}
	if input.PurchaseDate != nil {
		merged.PurchaseDate = input.PurchaseDate.UTC()
		fields["purchase_date"] = merged.PurchaseDate
	}
	if input.Value != nil {
		merged.Value = ledger.RoundValue(*input.Value)
		fields["value"] = merged.Value
	}
	if input.QuantityKg != nil {
		merged.QuantityKg = ledger.RoundKg(*input.QuantityKg)
		fields["quantity_kg"] = merged.QuantityKg
	}
	applyArrivalFields(&merged, fields, input)

	if err := s.validate(&merged); err != nil {
		return err
	}
	productChanged := merged.ProductID != existing.ProductID
	if productChanged {
		if err := s.ensureProduct(ctx, merged.ProductID); err != nil {
			return err
		}
	}
	amountsChanged := !merged.Value.Equal(existing.Value) || !merged.QuantityKg.Equal(existing.QuantityKg)

	prior, err := s.repo.ListDetails(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load contribution details")
	}

	wantDivided := existing.IsDivided
	if input.IsDivided != nil {
		wantDivided = *input.IsDivided
	}
	var others []uuid.UUID
	if input.ParticipantIDs != nil {
		others = *input.ParticipantIDs
	} else {
		for _, d := range prior {
			others = append(others, d.UserID)
		}
	}
	members := ledger.Participants(existing.UserID, others)
	// a divided purchase needs someone besides an implicit buyer
	if wantDivided && input.ParticipantIDs == nil && len(prior) == 0 {
		wantDivided = false
	}
	if wantDivided && input.ParticipantIDs != nil && countNonNil(*input.ParticipantIDs) == 0 {
		wantDivided = false
	}
	merged.IsDivided = wantDivided
	if merged.IsDivided != existing.IsDivided {
		fields["is_divided"] = merged.IsDivided
	}

	rebuild := merged.IsDivided &&
		(input.ParticipantIDs != nil || !existing.IsDivided || amountsChanged)
	dropDetails := !merged.IsDivided && len(prior) > 0

	var details []models.ContributionDetail
	if rebuild {
		names, err := s.memberNames(ctx, members)
		if err != nil {
			return err
		}
		details = buildDetails(&merged, members, names)
	}

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := txRepo.Update(ctx, id, fields); err != nil {
			return err
		}
		if rebuild || dropDetails {
			if err := txRepo.DeleteDetails(ctx, id); err != nil {
				return err
			}
		}
		return txRepo.CreateDetails(ctx, details)
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "update contribution")
	}

	s.metrics.IncContributionWrite("update")
	s.logInfo(ctx, id, "contribution updated")

	if amountsChanged || productChanged {
		s.recomputePrice(ctx, merged.ProductID)
	}
	if productChanged {
		s.recomputePrice(ctx, existing.ProductID)
	}
	s.backfillPhoto(ctx, merged.ProductID, input.ArrivalEvidence)
	s.reprocess(ctx)
	s.checkCompensation(ctx)
	return nil
}

// updateSettled handles purchases already folded into a compensation. Only
// fields that cannot move a balance are written and balances are left alone.
func (s *service) updateSettled(ctx context.Context, existing *models.Contribution, input UpdateInput) error {
	merged := *existing
	fields := map[string]any{}
	if input.ProductID != nil && *input.ProductID != existing.ProductID {
		merged.ProductID = *input.ProductID
		fields["product_id"] = merged.ProductID
	}
	applyArrivalFields(&merged, fields, input)
	dropDetails := false
	if input.IsDivided != nil && *input.IsDivided != existing.IsDivided {
		fields["is_divided"] = *input.IsDivided
		// an undivided purchase never keeps shares
		dropDetails = !*input.IsDivided
	}

	if err := s.validate(&merged); err != nil {
		return err
	}
	productChanged := merged.ProductID != existing.ProductID
	if productChanged {
		if err := s.ensureProduct(ctx, merged.ProductID); err != nil {
			return err
		}
	}

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := txRepo.Update(ctx, existing.ID, fields); err != nil {
			return err
		}
		if dropDetails {
			return txRepo.DeleteDetails(ctx, existing.ID)
		}
		return nil
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "update contribution")
	}

	s.metrics.IncContributionWrite("update_settled")
	s.logInfo(ctx, existing.ID, "settled contribution updated")

	if productChanged {
		s.recomputePrice(ctx, merged.ProductID)
		s.recomputePrice(ctx, existing.ProductID)
	}
	s.backfillPhoto(ctx, merged.ProductID, input.ArrivalEvidence)
	return nil
}

// Delete removes the purchase and its shares, then refreshes the product
// price and balances.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return mapLookupError(err)
	}

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := txRepo.DeleteDetails(ctx, id); err != nil {
			return err
		}
		return txRepo.Delete(ctx, id)
	}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return mapLookupError(err)
		}
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "delete contribution")
	}

	s.metrics.IncContributionWrite("delete")
	s.logInfo(ctx, id, "contribution deleted")

	s.recomputePrice(ctx, existing.ProductID)
	s.reprocess(ctx)
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ContributionDTO, error) {
	contribution, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err)
	}
	details, err := s.repo.ListDetails(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load contribution details")
	}
	return toDTO(contribution, details), nil
}

func (s *service) List(ctx context.Context) ([]ContributionDTO, error) {
	list, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list contributions")
	}
	return s.withDetails(ctx, list)
}

// ListByUser returns the member's purchases. With missingArrivalOnly set,
// only purchases lacking an arrival date or arrival evidence are kept.
func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, missingArrivalOnly bool) ([]ContributionDTO, error) {
	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list user contributions")
	}
	if missingArrivalOnly {
		filtered := list[:0]
		for _, c := range list {
			if c.ArrivalDate == nil || c.ArrivalEvidence == nil {
				filtered = append(filtered, c)
			}
		}
		list = filtered
	}
	return s.withDetails(ctx, list)
}

func (s *service) withDetails(ctx context.Context, list []models.Contribution) ([]ContributionDTO, error) {
	ids := make([]uuid.UUID, 0, len(list))
	for _, c := range list {
		if c.IsDivided {
			ids = append(ids, c.ID)
		}
	}
	details, err := s.repo.ListDetailsFor(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load contribution details")
	}
	out := make([]ContributionDTO, 0, len(list))
	for i := range list {
		out = append(out, *toDTO(&list[i], details[list[i].ID]))
	}
	return out, nil
}

func (s *service) validate(c *models.Contribution) error {
	if c.PurchaseDate.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "purchase_date is required")
	}
	if c.PurchaseDate.After(s.now()) {
		return pkgerrors.New(pkgerrors.CodeValidation, "purchase_date cannot be in the future")
	}
	if c.ArrivalDate != nil && c.ArrivalDate.Before(c.PurchaseDate) {
		return pkgerrors.New(pkgerrors.CodeValidation, "arrival_date cannot be before purchase_date")
	}
	if !c.Value.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "value must be greater than zero")
	}
	if !c.QuantityKg.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity_kg must be greater than zero")
	}
	if c.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	return nil
}

func (s *service) ensureProduct(ctx context.Context, id uuid.UUID) error {
	if _, err := s.products.Get(ctx, id); err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return pkgerrors.New(pkgerrors.CodeValidation, "product_id does not reference a product")
		}
		return err
	}
	return nil
}

// memberNames resolves display names, failing when any id is unknown.
func (s *service) memberNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	found, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load participants")
	}
	names := make(map[uuid.UUID]string, len(found))
	for _, u := range found {
		names[u.ID] = u.Name
	}
	var missing []string
	for _, id := range ids {
		if _, ok := names[id]; !ok {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown participants").
			WithDetails(map[string]any{"user_ids": missing})
	}
	return names, nil
}

func (s *service) recomputePrice(ctx context.Context, productID uuid.UUID) {
	s.bestEffort.Run(ctx, ledger.StepRecomputePrice, func(ctx context.Context) error {
		_, err := s.products.RecomputeAveragePrice(ctx, productID)
		return err
	})
}

func (s *service) backfillPhoto(ctx context.Context, productID uuid.UUID, evidence *string) {
	url := normalizeEvidence(evidence)
	if url == nil {
		return
	}
	s.bestEffort.Run(ctx, ledger.StepBackfillPhoto, func(ctx context.Context) error {
		p, err := s.products.Get(ctx, productID)
		if err != nil {
			return err
		}
		if p.PhotoURL != nil && *p.PhotoURL != "" {
			return nil
		}
		return s.products.SetPhoto(ctx, productID, *url)
	})
}

func (s *service) reprocess(ctx context.Context) {
	s.bestEffort.Run(ctx, ledger.StepReprocessBalances, func(ctx context.Context) error {
		_, err := s.reprocessor.ReprocessAllBalances(ctx)
		return err
	})
}

func (s *service) checkCompensation(ctx context.Context) {
	s.bestEffort.Run(ctx, ledger.StepCompensationCheck, func(ctx context.Context) error {
		_, err := s.compensations.CheckAndExecute(ctx)
		return err
	})
}

func (s *service) logInfo(ctx context.Context, id uuid.UUID, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithContributionID(ctx, id.String()), msg)
}

func applyArrivalFields(merged *models.Contribution, fields map[string]any, input UpdateInput) {
	if input.PurchaseEvidence != nil {
		merged.PurchaseEvidence = normalizeEvidence(input.PurchaseEvidence)
		fields["purchase_evidence"] = merged.PurchaseEvidence
	}
	if input.ArrivalEvidence != nil {
		merged.ArrivalEvidence = normalizeEvidence(input.ArrivalEvidence)
		fields["arrival_evidence"] = merged.ArrivalEvidence
	}
	if input.ArrivalDate != nil {
		merged.ArrivalDate = utcPtr(input.ArrivalDate)
		fields["arrival_date"] = merged.ArrivalDate
	}
}

func buildDetails(c *models.Contribution, members []uuid.UUID, names map[uuid.UUID]string) []models.ContributionDetail {
	shares := ledger.Split(members, c.QuantityKg, c.Value)
	details := make([]models.ContributionDetail, 0, len(shares))
	for _, share := range shares {
		details = append(details, models.ContributionDetail{
			ID:             uuid.New(),
			ContributionID: c.ID,
			UserID:         share.UserID,
			UserName:       names[share.UserID],
			QuantityKg:     share.QuantityKg,
			Value:          share.Value,
		})
	}
	return details
}

func normalizeEvidence(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func countNonNil(ids []uuid.UUID) int {
	n := 0
	for _, id := range ids {
		if id != uuid.Nil {
			n++
		}
	}
	return n
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "contribution not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load contribution")
}
