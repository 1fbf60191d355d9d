package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/artpar/utilibill/app"
	"github.com/artpar/utilibill/domain/billing"
)

// PayBillRequest carries a payment. Currency empty means the tariff's
// own; any other value requires a usable price feed for the pair.
type PayBillRequest struct {
	Payer       string `json:"payer"`
	Asset       string `json:"asset"`
	MeterID     string `json:"meter_id"`
	Consumption int64  `json:"consumption"`
	Currency    string `json:"currency,omitempty"`
	ApplyFees   bool   `json:"apply_fees"`
}

// RecordResponse is a persisted billing record.
type RecordResponse struct {
	MeterID       string `json:"meter_id"`
	Timestamp     int64  `json:"timestamp"`
	Consumption   int64  `json:"consumption"`
	BaseAmount    int64  `json:"base_amount"`
	TaxAmount     int64  `json:"tax_amount"`
	FeeAmount     int64  `json:"fee_amount"`
	FinalAmount   int64  `json:"final_amount"`
	Type          string `json:"type"`
	TariffVersion uint32 `json:"tariff_version"`
}

func recordToResponse(rec billing.Record) RecordResponse {
	return RecordResponse{
		MeterID:       rec.MeterID,
		Timestamp:     rec.Timestamp,
		Consumption:   rec.Consumption,
		BaseAmount:    rec.BaseAmount,
		TaxAmount:     rec.TaxAmount,
		FeeAmount:     rec.FeeAmount,
		FinalAmount:   rec.FinalAmount,
		Type:          rec.Type.String(),
		TariffVersion: rec.TariffVersion,
	}
}

// BreakdownResponse carries the intermediate amounts of one computation.
type BreakdownResponse struct {
	Base      int64  `json:"base"`
	Tax       int64  `json:"tax"`
	Fee       int64  `json:"fee"`
	Subtotal  int64  `json:"subtotal"`
	Final     int64  `json:"final"`
	TierName  string `json:"tier_name,omitempty"`
	TimeOfUse bool   `json:"time_of_use"`
	Converted bool   `json:"converted"`
}

// PayBillResponse is the settled payment.
type PayBillResponse struct {
	Record    RecordResponse    `json:"record"`
	Breakdown BreakdownResponse `json:"breakdown"`
}

// PayBill computes and settles one bill.
func (h *Handler) PayBill(w http.ResponseWriter, r *http.Request) {
	var req PayBillRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, bd, err := h.billing.PayBill(r.Context(), app.PaymentRequest{
		Payer:       req.Payer,
		Asset:       req.Asset,
		MeterID:     req.MeterID,
		Consumption: req.Consumption,
		Currency:    req.Currency,
		ApplyFees:   req.ApplyFees,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, PayBillResponse{
		Record:    recordToResponse(rec),
		Breakdown: BreakdownResponse(bd),
	})
}

// GetTotalPaid returns the lifetime sum paid against a meter.
func (h *Handler) GetTotalPaid(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	total, err := h.billing.TotalPaid(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"meter_id": id, "total_paid": total})
}

// GetBillingDetails returns one billing record by its (meter, timestamp)
// key.
func (h *Handler) GetBillingDetails(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ts, err := strconv.ParseInt(chi.URLParam(r, "timestamp"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Timestamp must be unix seconds")
		return
	}
	rec, found, err := h.billing.BillingDetails(r.Context(), id, ts)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "Billing record not found")
		return
	}
	writeJSON(w, http.StatusOK, recordToResponse(rec))
}
