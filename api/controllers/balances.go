package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/coffeefund-backend/api/responses"
	"github.com/angelmondragon/coffeefund-backend/internal/balances"
	pkgerrors "github.com/angelmondragon/coffeefund-backend/pkg/errors"
	"github.com/angelmondragon/coffeefund-backend/pkg/logger"
)

// BalanceReprocessor rebuilds every cached balance from the ledger.
type BalanceReprocessor interface {
	ReprocessAllBalances(ctx context.Context) (*balances.Result, error)
}

func ReprocessBalances(svc BalanceReprocessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "balance reprocessor unavailable"))
			return
		}
		result, err := svc.ReprocessAllBalances(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
