package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/artpar/utilibill/adapters/ledger"
	"github.com/artpar/utilibill/app"
	"github.com/artpar/utilibill/domain/billing"
	"github.com/artpar/utilibill/domain/money"
	"github.com/artpar/utilibill/domain/oracle"
	"github.com/artpar/utilibill/domain/tariff"
	"github.com/artpar/utilibill/domain/utility"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// writeServiceError maps service and domain sentinels to HTTP statuses.
// Unrecognized errors become 500 with a generic message so internal
// details never leak to clients.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Msg("request failed")
		writeError(w, status, code, "Internal server error")
		return
	}
	writeError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, app.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"

	case errors.Is(err, app.ErrProviderNotFound),
		errors.Is(err, app.ErrTariffNotFound),
		errors.Is(err, app.ErrMeterNotFound),
		errors.Is(err, app.ErrFeeNotFound),
		errors.Is(err, app.ErrFeedNotFound),
		errors.Is(err, app.ErrRateNotFound),
		errors.Is(err, app.ErrRecordNotFound):
		return http.StatusNotFound, "not_found"

	case errors.Is(err, app.ErrProviderExists),
		errors.Is(err, app.ErrTariffExists),
		errors.Is(err, app.ErrMeterExists),
		errors.Is(err, app.ErrFeeExists),
		errors.Is(err, app.ErrFeedExists),
		errors.Is(err, app.ErrRateExists),
		errors.Is(err, app.ErrRecordExists):
		return http.StatusConflict, "already_exists"

	case errors.Is(err, utility.ErrInvalidType),
		errors.Is(err, tariff.ErrInvalidFeeType),
		errors.Is(err, oracle.ErrValueOutOfBounds),
		errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_value"

	case errors.Is(err, app.ErrProviderInactive),
		errors.Is(err, app.ErrTariffInactive),
		errors.Is(err, app.ErrMeterInactive),
		errors.Is(err, app.ErrUtilityTypeMismatch),
		errors.Is(err, billing.ErrBelowMinimumPayment),
		errors.Is(err, billing.ErrAboveMaximumPayment),
		errors.Is(err, billing.ErrExchangeRateUnavailable),
		errors.Is(err, oracle.ErrDataTooOld),
		errors.Is(err, oracle.ErrReliabilityTooLow),
		errors.Is(err, oracle.ErrCostExceedsLimit),
		errors.Is(err, money.ErrOverflow),
		errors.Is(err, money.ErrDivideByZero),
		errors.Is(err, ledger.ErrSettlementDisabled),
		errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "rejected"
	}
	return http.StatusInternalServerError, "internal_error"
}
