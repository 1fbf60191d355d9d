package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/artpar/utilibill/app"
	"github.com/artpar/utilibill/domain/meter"
	"github.com/artpar/utilibill/domain/provider"
	"github.com/artpar/utilibill/domain/tariff"
	"github.com/artpar/utilibill/domain/utility"
)

// decodeJSON reads a JSON body. On failure it writes the 400 and returns
// false so handlers can bail with a bare return.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return false
	}
	return true
}

// -----------------------------------------------------------------------------
// Providers
// -----------------------------------------------------------------------------

// ProviderResponse represents a provider in API responses.
type ProviderResponse struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Address           string `json:"address"`
	Type              string `json:"type"`
	Region            string `json:"region"`
	Active            bool   `json:"active"`
	RegisteredAt      int64  `json:"registered_at"`
	License           string `json:"license,omitempty"`
	Contact           string `json:"contact,omitempty"`
	Rating            uint8  `json:"rating"`
	TotalTransactions uint64 `json:"total_transactions"`
}

func providerToResponse(p provider.Provider) ProviderResponse {
	return ProviderResponse{
		ID:                p.ID,
		Name:              p.Name,
		Address:           p.Address,
		Type:              p.Type.String(),
		Region:            p.Region,
		Active:            p.Active,
		RegisteredAt:      p.RegisteredAt,
		License:           p.License,
		Contact:           p.Contact,
		Rating:            p.Rating,
		TotalTransactions: p.TotalTransactions,
	}
}

// RegisterProviderRequest carries a provider registration. Type is the
// numeric utility code (1=electricity .. 8=ev_charging).
type RegisterProviderRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Type    uint8  `json:"type"`
	Region  string `json:"region"`
	License string `json:"license,omitempty"`
	Contact string `json:"contact,omitempty"`
}

// RegisterProvider creates a provider.
func (h *Handler) RegisterProvider(w http.ResponseWriter, r *http.Request) {
	var req RegisterProviderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := h.registry.RegisterProvider(r.Context(), h.adminAddr, app.RegisterProviderInput{
		ProviderID: req.ID,
		Name:       req.Name,
		Address:    req.Address,
		Type:       req.Type,
		Region:     req.Region,
		License:    req.License,
		Contact:    req.Contact,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

// GetProvider returns one provider.
func (h *Handler) GetProvider(w http.ResponseWriter, r *http.Request) {
	p, found, err := h.registry.Provider(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "Provider not found")
		return
	}
	writeJSON(w, http.StatusOK, providerToResponse(p))
}

// ListProviders returns active providers filtered by utility type and
// region, both required query parameters.
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	typeWire, err := strconv.ParseUint(r.URL.Query().Get("type"), 10, 8)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Query parameter 'type' must be a utility code")
		return
	}
	region := r.URL.Query().Get("region")

	providers, err := h.registry.ListProviders(r.Context(), uint8(typeWire), region)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]ProviderResponse, 0, len(providers))
	for _, p := range providers {
		out = append(out, providerToResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"providers": out})
}

// UpdateProviderStatusRequest toggles a provider's active flag.
type UpdateProviderStatusRequest struct {
	Active bool `json:"active"`
}

// UpdateProviderStatus activates or deactivates a provider.
func (h *Handler) UpdateProviderStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateProviderStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.registry.UpdateProviderStatus(r.Context(), h.adminAddr, id, req.Active); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "active": req.Active})
}

// -----------------------------------------------------------------------------
// Tariffs
// -----------------------------------------------------------------------------

// TierDTO is a consumption tier.
type TierDTO struct {
	MinUnits    int64  `json:"min_units"`
	MaxUnits    int64  `json:"max_units"`
	RatePerUnit int64  `json:"rate_per_unit"`
	Name        string `json:"name,omitempty"`
}

// TimeOfUseDTO is an hour-window rate multiplier.
type TimeOfUseDTO struct {
	StartHour  uint8   `json:"start_hour"`
	EndHour    uint8   `json:"end_hour"`
	Days       []uint8 `json:"days"`
	Multiplier int64   `json:"multiplier"`
	Season     string  `json:"season,omitempty"`
}

// SeasonalDTO is a month-window rate adjustment.
type SeasonalDTO struct {
	Season     string `json:"season"`
	StartMonth uint8  `json:"start_month"`
	EndMonth   uint8  `json:"end_month"`
	Adjustment int64  `json:"adjustment"`
}

// TaxDTO is a percentage levy.
type TaxDTO struct {
	Name      string `json:"name"`
	Percent   int64  `json:"percent"`
	Compound  bool   `json:"compound,omitempty"`
	MaxAmount *int64 `json:"max_amount,omitempty"`
}

// DiscountDTO is a conditional reduction.
type DiscountDTO struct {
	Name      string `json:"name"`
	Percent   int64  `json:"percent"`
	Condition string `json:"condition,omitempty"`
	Active    bool   `json:"active"`
	ExpiresAt *int64 `json:"expires_at,omitempty"`
}

// LateFeeDTO is the overdue-payment policy.
type LateFeeDTO struct {
	Flat          int64  `json:"flat"`
	Percent       int64  `json:"percent"`
	Max           int64  `json:"max"`
	GraceDays     uint32 `json:"grace_days"`
	CompoundDaily bool   `json:"compound_daily,omitempty"`
}

// TariffResponse represents a tariff in API responses.
type TariffResponse struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	ProviderID     string         `json:"provider_id"`
	Region         string         `json:"region"`
	BaseRate       int64          `json:"base_rate"`
	Currency       string         `json:"currency"`
	Decimals       uint32         `json:"decimals"`
	Tiers          []TierDTO      `json:"tiers,omitempty"`
	TimeOfUse      []TimeOfUseDTO `json:"time_of_use,omitempty"`
	Seasonal       []SeasonalDTO  `json:"seasonal,omitempty"`
	Taxes          []TaxDTO       `json:"taxes,omitempty"`
	Discounts      []DiscountDTO  `json:"discounts,omitempty"`
	LateFee        LateFeeDTO     `json:"late_fee"`
	PaymentMethods []string       `json:"payment_methods,omitempty"`
	CycleDays      uint32         `json:"cycle_days"`
	GraceDays      uint32         `json:"grace_days"`
	MinimumPayment int64          `json:"minimum_payment"`
	MaximumPayment int64          `json:"maximum_payment"`
	Active         bool           `json:"active"`
	Version        uint32         `json:"version"`
	UpdatedAt      int64          `json:"updated_at"`
}

func tariffToResponse(t tariff.Tariff) TariffResponse {
	resp := TariffResponse{
		ID:             t.ID,
		Type:           t.Type.String(),
		ProviderID:     t.ProviderID,
		Region:         t.Region,
		BaseRate:       t.BaseRate,
		Currency:       t.Currency,
		Decimals:       t.Decimals,
		LateFee:        LateFeeDTO(t.LateFee),
		PaymentMethods: t.PaymentMethods,
		CycleDays:      t.CycleDays,
		GraceDays:      t.GraceDays,
		MinimumPayment: t.MinimumPayment,
		MaximumPayment: t.MaximumPayment,
		Active:         t.Active,
		Version:        t.Version,
		UpdatedAt:      t.UpdatedAt,
	}
	for _, v := range t.Tiers {
		resp.Tiers = append(resp.Tiers, TierDTO(v))
	}
	for _, v := range t.TimeOfUse {
		resp.TimeOfUse = append(resp.TimeOfUse, TimeOfUseDTO{
			StartHour:  v.StartHour,
			EndHour:    v.EndHour,
			Days:       v.Days,
			Multiplier: v.Multiplier,
			Season:     v.Season,
		})
	}
	for _, v := range t.Seasonal {
		resp.Seasonal = append(resp.Seasonal, SeasonalDTO(v))
	}
	for _, v := range t.Taxes {
		resp.Taxes = append(resp.Taxes, TaxDTO{Name: v.Name, Percent: v.Percent, Compound: v.Compound, MaxAmount: v.MaxAmount})
	}
	for _, v := range t.Discounts {
		resp.Discounts = append(resp.Discounts, DiscountDTO{
			Name:      v.Name,
			Percent:   v.Percent,
			Condition: v.Condition,
			Active:    v.Active,
			ExpiresAt: v.ExpiresAt,
		})
	}
	return resp
}

// AddTariffRequest carries a new rate schedule. The tariff ID must equal
// provider_id + "_" + region for billing to resolve it.
type AddTariffRequest struct {
	ID             string `json:"id"`
	Type           uint8  `json:"type"`
	ProviderID     string `json:"provider_id"`
	Region         string `json:"region"`
	BaseRate       int64  `json:"base_rate"`
	Currency       string `json:"currency"`
	Decimals       uint32 `json:"decimals"`
	CycleDays      uint32 `json:"cycle_days"`
	GraceDays      uint32 `json:"grace_days"`
	MinimumPayment int64  `json:"minimum_payment"`
	MaximumPayment int64  `json:"maximum_payment"`
}

// AddTariff creates a version-1 tariff.
func (h *Handler) AddTariff(w http.ResponseWriter, r *http.Request) {
	var req AddTariffRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := h.registry.AddTariff(r.Context(), h.adminAddr, app.AddTariffInput{
		TariffID:       req.ID,
		Type:           req.Type,
		ProviderID:     req.ProviderID,
		Region:         req.Region,
		BaseRate:       req.BaseRate,
		Currency:       req.Currency,
		Decimals:       req.Decimals,
		CycleDays:      req.CycleDays,
		GraceDays:      req.GraceDays,
		MinimumPayment: req.MinimumPayment,
		MaximumPayment: req.MaximumPayment,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

// GetTariff returns one tariff.
func (h *Handler) GetTariff(w http.ResponseWriter, r *http.Request) {
	t, found, err := h.registry.Tariff(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "Tariff not found")
		return
	}
	writeJSON(w, http.StatusOK, tariffToResponse(t))
}

// UpgradeTariffRequest carries the full replacement configuration.
type UpgradeTariffRequest struct {
	Type           uint8          `json:"type"`
	ProviderID     string         `json:"provider_id"`
	Region         string         `json:"region"`
	BaseRate       int64          `json:"base_rate"`
	Currency       string         `json:"currency"`
	Decimals       uint32         `json:"decimals"`
	Tiers          []TierDTO      `json:"tiers,omitempty"`
	TimeOfUse      []TimeOfUseDTO `json:"time_of_use,omitempty"`
	Seasonal       []SeasonalDTO  `json:"seasonal,omitempty"`
	Taxes          []TaxDTO       `json:"taxes,omitempty"`
	Discounts      []DiscountDTO  `json:"discounts,omitempty"`
	LateFee        *LateFeeDTO    `json:"late_fee,omitempty"`
	PaymentMethods []string       `json:"payment_methods,omitempty"`
	CycleDays      uint32         `json:"cycle_days"`
	GraceDays      uint32         `json:"grace_days"`
	MinimumPayment int64          `json:"minimum_payment"`
	MaximumPayment int64          `json:"maximum_payment"`
	Active         bool           `json:"active"`
	Description    string         `json:"description,omitempty"`
}

func (req UpgradeTariffRequest) toTariff() (tariff.Tariff, error) {
	typ, err := utility.TypeFromWire(req.Type)
	if err != nil {
		return tariff.Tariff{}, err
	}
	t := tariff.Tariff{
		Type:           typ,
		ProviderID:     req.ProviderID,
		Region:         req.Region,
		BaseRate:       req.BaseRate,
		Currency:       req.Currency,
		Decimals:       req.Decimals,
		PaymentMethods: req.PaymentMethods,
		CycleDays:      req.CycleDays,
		GraceDays:      req.GraceDays,
		MinimumPayment: req.MinimumPayment,
		MaximumPayment: req.MaximumPayment,
		Active:         req.Active,
	}
	if req.LateFee != nil {
		t.LateFee = tariff.LateFee(*req.LateFee)
	} else {
		t.LateFee = tariff.DefaultLateFee(req.GraceDays)
	}
	for _, v := range req.Tiers {
		t.Tiers = append(t.Tiers, tariff.Tier(v))
	}
	for _, v := range req.TimeOfUse {
		t.TimeOfUse = append(t.TimeOfUse, tariff.TimeOfUse{
			StartHour:  v.StartHour,
			EndHour:    v.EndHour,
			Days:       v.Days,
			Multiplier: v.Multiplier,
			Season:     v.Season,
		})
	}
	for _, v := range req.Seasonal {
		t.Seasonal = append(t.Seasonal, tariff.Seasonal(v))
	}
	for _, v := range req.Taxes {
		t.Taxes = append(t.Taxes, tariff.Tax{Name: v.Name, Percent: v.Percent, Compound: v.Compound, MaxAmount: v.MaxAmount})
	}
	for _, v := range req.Discounts {
		t.Discounts = append(t.Discounts, tariff.Discount{
			Name:      v.Name,
			Percent:   v.Percent,
			Condition: v.Condition,
			Active:    v.Active,
			ExpiresAt: v.ExpiresAt,
		})
	}
	return t, nil
}

// UpgradeTariff replaces the live configuration and appends a version
// audit record.
func (h *Handler) UpgradeTariff(w http.ResponseWriter, r *http.Request) {
	var req UpgradeTariffRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	next, err := req.toTariff()
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.registry.UpgradeTariff(r.Context(), h.adminAddr, id, next, req.Description); err != nil {
		h.writeServiceError(w, err)
		return
	}
	t, found, err := h.registry.Tariff(r.Context(), id)
	if err != nil || !found {
		writeJSON(w, http.StatusOK, map[string]string{"id": id})
		return
	}
	writeJSON(w, http.StatusOK, tariffToResponse(t))
}

// VersionResponseItem is one entry in a tariff's upgrade history.
type VersionResponseItem struct {
	TariffID          string `json:"tariff_id"`
	Type              string `json:"type"`
	Version           uint32 `json:"version"`
	DeployedAt        int64  `json:"deployed_at"`
	Active            bool   `json:"active"`
	MigrationRequired bool   `json:"migration_required"`
	Description       string `json:"description,omitempty"`
}

// ListTariffVersions returns the upgrade history, oldest first.
func (h *Handler) ListTariffVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.registry.TariffVersions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]VersionResponseItem, 0, len(versions))
	for _, v := range versions {
		out = append(out, VersionResponseItem{
			TariffID:          v.TariffID,
			Type:              v.Type.String(),
			Version:           v.Version,
			DeployedAt:        v.DeployedAt,
			Active:            v.Active,
			MigrationRequired: v.MigrationRequired,
			Description:       v.Description,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"versions": out})
}

// -----------------------------------------------------------------------------
// Meters
// -----------------------------------------------------------------------------

// MeterResponse represents a meter in API responses.
type MeterResponse struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	ProviderID    string `json:"provider_id"`
	Customer      string `json:"customer"`
	InstalledAt   int64  `json:"installed_at"`
	LastReading   int64  `json:"last_reading"`
	LastReadingAt int64  `json:"last_reading_at"`
	Active        bool   `json:"active"`
	Smart         bool   `json:"smart"`
	Location      string `json:"location,omitempty"`
	Model         string `json:"model,omitempty"`
	Firmware      string `json:"firmware,omitempty"`
}

func meterToResponse(m meter.Meter) MeterResponse {
	return MeterResponse{
		ID:            m.ID,
		Type:          m.Type.String(),
		ProviderID:    m.ProviderID,
		Customer:      m.Customer,
		InstalledAt:   m.InstalledAt,
		LastReading:   m.LastReading,
		LastReadingAt: m.LastReadingAt,
		Active:        m.Active,
		Smart:         m.Smart,
		Location:      m.Location,
		Model:         m.Model,
		Firmware:      m.Firmware,
	}
}

// RegisterMeterRequest carries a meter registration. CallerAddress must
// be the registered address of the owning provider.
type RegisterMeterRequest struct {
	CallerAddress string `json:"caller_address"`
	ID            string `json:"id"`
	Type          uint8  `json:"type"`
	ProviderID    string `json:"provider_id"`
	Customer      string `json:"customer"`
	Location      string `json:"location,omitempty"`
	Model         string `json:"model,omitempty"`
	Firmware      string `json:"firmware,omitempty"`
	Smart         bool   `json:"smart"`
}

// RegisterMeter creates a meter on behalf of its provider.
func (h *Handler) RegisterMeter(w http.ResponseWriter, r *http.Request) {
	var req RegisterMeterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := h.registry.RegisterMeter(r.Context(), req.CallerAddress, app.RegisterMeterInput{
		MeterID:    req.ID,
		Type:       req.Type,
		ProviderID: req.ProviderID,
		Customer:   req.Customer,
		Location:   req.Location,
		Model:      req.Model,
		Firmware:   req.Firmware,
		Smart:      req.Smart,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

// GetMeter returns one meter.
func (h *Handler) GetMeter(w http.ResponseWriter, r *http.Request) {
	m, found, err := h.registry.Meter(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "Meter not found")
		return
	}
	writeJSON(w, http.StatusOK, meterToResponse(m))
}

// RecordReadingRequest advances a meter reading.
type RecordReadingRequest struct {
	CallerAddress string `json:"caller_address"`
	Reading       int64  `json:"reading"`
}

// RecordReading records a manual meter reading.
func (h *Handler) RecordReading(w http.ResponseWriter, r *http.Request) {
	var req RecordReadingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.registry.RecordMeterReading(r.Context(), req.CallerAddress, id, req.Reading); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"meter_id": id, "reading": req.Reading})
}

// -----------------------------------------------------------------------------
// Fees
// -----------------------------------------------------------------------------

// FeeResponse represents a fee in API responses.
type FeeResponse struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	ProviderID  string `json:"provider_id"`
	FeeType     string `json:"fee_type"`
	Amount      int64  `json:"amount"`
	Percent     *int64 `json:"percent,omitempty"`
	IsPercent   bool   `json:"is_percent"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
	CreatedAt   int64  `json:"created_at"`
}

// AddFeeRequest carries a fee registration. FeeType is the numeric fee
// code (1=processing .. 8=emergency).
type AddFeeRequest struct {
	ID          string `json:"id"`
	Type        uint8  `json:"type"`
	ProviderID  string `json:"provider_id"`
	FeeType     uint8  `json:"fee_type"`
	Amount      int64  `json:"amount"`
	Percent     *int64 `json:"percent,omitempty"`
	IsPercent   bool   `json:"is_percent"`
	Description string `json:"description,omitempty"`
}

// AddFee registers a provider fee.
func (h *Handler) AddFee(w http.ResponseWriter, r *http.Request) {
	var req AddFeeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := h.registry.AddFee(r.Context(), h.adminAddr, app.AddFeeInput{
		FeeID:       req.ID,
		Type:        req.Type,
		ProviderID:  req.ProviderID,
		FeeType:     req.FeeType,
		Amount:      req.Amount,
		Percent:     req.Percent,
		IsPercent:   req.IsPercent,
		Description: req.Description,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

// GetFee returns one fee.
func (h *Handler) GetFee(w http.ResponseWriter, r *http.Request) {
	f, found, err := h.registry.Fee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "Fee not found")
		return
	}
	writeJSON(w, http.StatusOK, FeeResponse{
		ID:          f.ID,
		Type:        f.Type.String(),
		ProviderID:  f.ProviderID,
		FeeType:     f.FeeType.String(),
		Amount:      f.Amount,
		Percent:     f.Percent,
		IsPercent:   f.IsPercent,
		Description: f.Description,
		Active:      f.Active,
		CreatedAt:   f.CreatedAt,
	})
}
