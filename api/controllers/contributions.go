package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/coffeefund-backend/api/responses"
	"github.com/angelmondragon/coffeefund-backend/api/validators"
	"github.com/angelmondragon/coffeefund-backend/internal/contributions"
	pkgerrors "github.com/angelmondragon/coffeefund-backend/pkg/errors"
	"github.com/angelmondragon/coffeefund-backend/pkg/logger"
)

type createContributionRequest struct {
	UserID           string          `json:"user_id" validate:"required,uuid"`
	ProductID        string          `json:"product_id" validate:"required,uuid"`
	PurchaseDate     string          `json:"purchase_date" validate:"required"`
	Value            decimal.Decimal `json:"value"`
	QuantityKg       decimal.Decimal `json:"quantity_kg"`
	PurchaseEvidence *string         `json:"purchase_evidence,omitempty"`
	ArrivalEvidence  *string         `json:"arrival_evidence,omitempty"`
	ArrivalDate      *string         `json:"arrival_date,omitempty"`
	IsDivided        bool            `json:"is_divided"`
	ParticipantIDs   []string        `json:"participant_ids,omitempty" validate:"omitempty,dive,uuid"`
}

type updateContributionRequest struct {
	ProductID         *string          `json:"product_id,omitempty" validate:"omitempty,uuid"`
	PurchaseDate      *string          `json:"purchase_date,omitempty"`
	Value             *decimal.Decimal `json:"value,omitempty"`
	QuantityKg        *decimal.Decimal `json:"quantity_kg,omitempty"`
	PurchaseEvidence  *string          `json:"purchase_evidence,omitempty"`
	ArrivalEvidence   *string          `json:"arrival_evidence,omitempty"`
	ArrivalDate       *string          `json:"arrival_date,omitempty"`
	IsDivided         *bool            `json:"is_divided,omitempty"`
	ParticipantIDs    *[]string        `json:"participant_ids,omitempty"`
	SkipBalanceUpdate bool             `json:"skip_balance_update,omitempty"`
}

// CreateContribution records a purchase and answers with the new id.
func CreateContribution(svc contributions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "contribution service unavailable"))
			return
		}

		var payload createContributionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]uuid.UUID{"id": id})
	}
}

func (p createContributionRequest) toInput() (contributions.CreateInput, error) {
	userID, err := uuid.Parse(p.UserID)
	if err != nil {
		return contributions.CreateInput{}, invalidField("user_id", err)
	}
	productID, err := uuid.Parse(p.ProductID)
	if err != nil {
		return contributions.CreateInput{}, invalidField("product_id", err)
	}
	purchaseDate, err := parseDate(p.PurchaseDate)
	if err != nil {
		return contributions.CreateInput{}, invalidField("purchase_date", err)
	}
	arrivalDate, err := parseOptionalDate(p.ArrivalDate)
	if err != nil {
		return contributions.CreateInput{}, invalidField("arrival_date", err)
	}
	participants, err := parseIDs(p.ParticipantIDs)
	if err != nil {
		return contributions.CreateInput{}, invalidField("participant_ids", err)
	}

	return contributions.CreateInput{
		UserID:           userID,
		ProductID:        productID,
		PurchaseDate:     purchaseDate,
		Value:            p.Value,
		QuantityKg:       p.QuantityKg,
		PurchaseEvidence: p.PurchaseEvidence,
		ArrivalEvidence:  p.ArrivalEvidence,
		ArrivalDate:      arrivalDate,
		IsDivided:        p.IsDivided,
		ParticipantIDs:   participants,
	}, nil
}

func (p updateContributionRequest) toInput() (contributions.UpdateInput, error) {
	input := contributions.UpdateInput{
		Value:             p.Value,
		QuantityKg:        p.QuantityKg,
		PurchaseEvidence:  p.PurchaseEvidence,
		ArrivalEvidence:   p.ArrivalEvidence,
		IsDivided:         p.IsDivided,
		SkipBalanceUpdate: p.SkipBalanceUpdate,
	}
	if p.ProductID != nil {
		id, err := uuid.Parse(*p.ProductID)
		if err != nil {
			return input, invalidField("product_id", err)
		}
		input.ProductID = &id
	}
	if p.PurchaseDate != nil {
		d, err := parseDate(*p.PurchaseDate)
		if err != nil {
			return input, invalidField("purchase_date", err)
		}
		input.PurchaseDate = &d
	}
	arrival, err := parseOptionalDate(p.ArrivalDate)
	if err != nil {
		return input, invalidField("arrival_date", err)
	}
	input.ArrivalDate = arrival
	if p.ParticipantIDs != nil {
		ids, err := parseIDs(*p.ParticipantIDs)
		if err != nil {
			return input, invalidField("participant_ids", err)
		}
		input.ParticipantIDs = &ids
	}
	return input, nil
}

// UpdateContribution patches a contribution and returns its fresh state.
func UpdateContribution(svc contributions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "contribution service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "contributionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateContributionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithContributionID(ctx, id.String())
		}
		if err := svc.Update(ctx, id, input); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		updated, err := svc.Get(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

func DeleteContribution(svc contributions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "contribution service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "contributionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithContributionID(ctx, id.String())
		}
		if err := svc.Delete(ctx, id); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

func GetContribution(svc contributions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "contribution service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "contributionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		found, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, found)
	}
}

func ListContributions(svc contributions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "contribution service unavailable"))
			return
		}
		list, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// ListUserContributions lists a member's purchases, optionally only those
// still waiting for arrival evidence.
func ListUserContributions(svc contributions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "contribution service unavailable"))
			return
		}
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		missingArrival, err := validators.ParseQueryBool(r, "missing_arrival")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListByUser(r.Context(), userID, missingArrival)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// parseDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func parseOptionalDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := parseDate(*raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, v := range raw {
		id, err := uuid.Parse(strings.TrimSpace(v))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func invalidField(field string, err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+field).WithDetails(map[string]any{"field": field})
}
