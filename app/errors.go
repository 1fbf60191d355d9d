package app

import "errors"

// Command errors. Every mutating operation fails loudly with one of these
// (or a domain sentinel) before any state changes; read-side queries
// signal absence with a found flag instead.
var (
	ErrUnauthorized = errors.New("unauthorized")

	ErrProviderNotFound = errors.New("provider not found")
	ErrTariffNotFound   = errors.New("tariff not found")
	ErrMeterNotFound    = errors.New("meter not found")
	ErrFeeNotFound      = errors.New("fee not found")
	ErrFeedNotFound     = errors.New("price feed not found")
	ErrRateNotFound     = errors.New("utility rate not found")
	ErrRecordNotFound   = errors.New("billing record not found")

	ErrProviderExists = errors.New("provider already registered")
	ErrTariffExists   = errors.New("tariff already exists")
	ErrMeterExists    = errors.New("meter already registered")
	ErrFeeExists      = errors.New("fee already registered")
	ErrFeedExists     = errors.New("price feed already exists")
	ErrRateExists     = errors.New("utility rate already exists")
	ErrRecordExists   = errors.New("billing record already exists")

	ErrProviderInactive = errors.New("provider is not active")
	ErrTariffInactive   = errors.New("tariff is not active")
	ErrMeterInactive    = errors.New("meter is not active")

	ErrUtilityTypeMismatch = errors.New("utility type mismatch")
)
