package controllers

import (
	"net/http"

	"github.com/angelmondragon/coffeefund-backend/api/responses"
	"github.com/angelmondragon/coffeefund-backend/api/validators"
	"github.com/angelmondragon/coffeefund-backend/internal/compensations"
	pkgerrors "github.com/angelmondragon/coffeefund-backend/pkg/errors"
	"github.com/angelmondragon/coffeefund-backend/pkg/logger"
)

type executeCompensationResponse struct {
	Executed     bool                           `json:"executed"`
	Compensation *compensations.CompensationDTO `json:"compensation"`
}

func ListCompensations(svc compensations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "compensation service unavailable"))
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

func GetCompensation(svc compensations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "compensation service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "compensationId")
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

// CompensationTrigger reports whether every active member currently holds credit.
func CompensationTrigger(svc compensations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "compensation service unavailable"))
			return
		}
		should, err := svc.ShouldTrigger(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"should_trigger": should})
	}
}

// ExecuteCompensation runs the trigger check and redistributes when it passes.
func ExecuteCompensation(svc compensations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "compensation service unavailable"))
			return
		}
		comp, err := svc.CheckAndExecute(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, executeCompensationResponse{Executed: comp != nil, Compensation: comp})
	}
}

func DeleteCompensation(svc compensations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "compensation service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "compensationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
