package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/artpar/utilibill/domain/oracle"
	"github.com/artpar/utilibill/domain/utility"
)

// FeedResponse represents a price feed in API responses.
type FeedResponse struct {
	ID          string `json:"id"`
	Source      string `json:"source,omitempty"`
	Base        string `json:"base"`
	Quote       string `json:"quote"`
	Decimals    uint32 `json:"decimals"`
	Price       int64  `json:"price"`
	Reliability int    `json:"reliability"`
	UpdatedAt   int64  `json:"updated_at"`
}

// AddFeedRequest carries a new exchange-rate feed. ID defaults to
// base + "_" + quote; reliability defaults to the neutral starting score.
type AddFeedRequest struct {
	ID          string `json:"id,omitempty"`
	Source      string `json:"source,omitempty"`
	Base        string `json:"base"`
	Quote       string `json:"quote"`
	Decimals    uint32 `json:"decimals"`
	Price       int64  `json:"price"`
	Reliability int    `json:"reliability,omitempty"`
	UpdatedAt   int64  `json:"updated_at,omitempty"`
}

// AddFeed registers a price feed.
func (h *Handler) AddFeed(w http.ResponseWriter, r *http.Request) {
	var req AddFeedRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	f := oracle.PriceFeed{
		ID:          req.ID,
		Source:      req.Source,
		Base:        req.Base,
		Quote:       req.Quote,
		Decimals:    req.Decimals,
		Price:       req.Price,
		Reliability: req.Reliability,
		UpdatedAt:   req.UpdatedAt,
	}
	if err := h.oracle.AddFeed(r.Context(), h.adminAddr, f); err != nil {
		h.writeServiceError(w, err)
		return
	}
	id := f.ID
	if id == "" {
		id = oracle.FeedID(f.Base, f.Quote)
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// UpdateValueRequest carries a pushed price or rate observation.
// Timestamp zero means "now".
type UpdateValueRequest struct {
	Value     int64 `json:"value"`
	Timestamp int64 `json:"timestamp,omitempty"`
}

// UpdateFeed pushes a new price onto an existing feed.
func (h *Handler) UpdateFeed(w http.ResponseWriter, r *http.Request) {
	var req UpdateValueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.oracle.UpdateFeed(r.Context(), h.adminAddr, id, req.Value, req.Timestamp); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "price": req.Value})
}

// GetFeed returns one price feed.
func (h *Handler) GetFeed(w http.ResponseWriter, r *http.Request) {
	f, found, err := h.oracle.Feed(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "Price feed not found")
		return
	}
	writeJSON(w, http.StatusOK, FeedResponse(f))
}

// RateResponse represents a commodity rate in API responses.
type RateResponse struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Region      string `json:"region"`
	RatePerUnit int64  `json:"rate_per_unit"`
	Currency    string `json:"currency"`
	Reliability int    `json:"reliability"`
	UpdatedAt   int64  `json:"updated_at"`
}

// AddRateRequest carries a new commodity rate. ID defaults to
// type name + "_" + region.
type AddRateRequest struct {
	ID          string `json:"id,omitempty"`
	Type        uint8  `json:"type"`
	Region      string `json:"region"`
	RatePerUnit int64  `json:"rate_per_unit"`
	Currency    string `json:"currency"`
	Reliability int    `json:"reliability,omitempty"`
	UpdatedAt   int64  `json:"updated_at,omitempty"`
}

// AddRate registers a commodity rate.
func (h *Handler) AddRate(w http.ResponseWriter, r *http.Request) {
	var req AddRateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	typ, err := utility.TypeFromWire(req.Type)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	rate := oracle.CommodityRate{
		ID:          req.ID,
		Type:        typ,
		Region:      req.Region,
		RatePerUnit: req.RatePerUnit,
		Currency:    req.Currency,
		Reliability: req.Reliability,
		UpdatedAt:   req.UpdatedAt,
	}
	if err := h.oracle.AddRate(r.Context(), h.adminAddr, rate); err != nil {
		h.writeServiceError(w, err)
		return
	}
	id := rate.ID
	if id == "" {
		id = oracle.RateID(rate.Type, rate.Region)
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// UpdateRate pushes a new value onto an existing commodity rate.
func (h *Handler) UpdateRate(w http.ResponseWriter, r *http.Request) {
	var req UpdateValueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.oracle.UpdateRate(r.Context(), h.adminAddr, id, req.Value, req.Timestamp); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "rate": req.Value})
}

// GetRate returns one commodity rate.
func (h *Handler) GetRate(w http.ResponseWriter, r *http.Request) {
	rate, found, err := h.oracle.Rate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "Commodity rate not found")
		return
	}
	writeJSON(w, http.StatusOK, RateResponse{
		ID:          rate.ID,
		Type:        rate.Type.String(),
		Region:      rate.Region,
		RatePerUnit: rate.RatePerUnit,
		Currency:    rate.Currency,
		Reliability: rate.Reliability,
		UpdatedAt:   rate.UpdatedAt,
	})
}

// OracleConfigDTO mirrors the gate parameters.
type OracleConfigDTO struct {
	MaxAgeSeconds    int64 `json:"max_age_seconds"`
	MinReliability   int   `json:"min_reliability"`
	FallbackEnabled  bool  `json:"fallback_enabled"`
	CostLimitPerCall int64 `json:"cost_limit_per_call"`
	SlowCallMs       int64 `json:"slow_call_ms"`
}

// GetOracleConfig returns the live gate parameters.
func (h *Handler) GetOracleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, OracleConfigDTO(h.oracle.Config()))
}

// UpdateOracleConfig hot-swaps the gate parameters.
func (h *Handler) UpdateOracleConfig(w http.ResponseWriter, r *http.Request) {
	var req OracleConfigDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	h.oracle.SetConfig(oracle.Config(req))
	writeJSON(w, http.StatusOK, req)
}

// ReliabilityResponse is the call-outcome tracker snapshot.
type ReliabilityResponse struct {
	TotalCalls uint64 `json:"total_calls"`
	Successes  uint64 `json:"successes"`
	Failures   uint64 `json:"failures"`
	Score      int    `json:"score"`
}

// GetReliability returns the oracle reliability snapshot.
func (h *Handler) GetReliability(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ReliabilityResponse(h.oracle.ReliabilityScore()))
}

// CostResponse is the spend accumulator snapshot.
type CostResponse struct {
	TotalSpent  int64  `json:"total_spent"`
	CallsMade   uint64 `json:"calls_made"`
	AverageCost int64  `json:"average_cost"`
}

// GetCostStats returns the oracle spend snapshot.
func (h *Handler) GetCostStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CostResponse(h.oracle.CostStats()))
}
