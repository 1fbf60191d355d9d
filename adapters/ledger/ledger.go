// Package ledger provides Ledger implementations: a no-op for deployments
// without settlement wired up, and an in-memory double-entry ledger for
// testing and demos.
package ledger

import (
	"context"
	"errors"
	"sync"

	"github.com/artpar/utilibill/ports"
)

var (
	// ErrSettlementDisabled is returned when no settlement backend is
	// configured.
	ErrSettlementDisabled = errors.New("settlement is not configured")

	// ErrInsufficientFunds is returned when the payer's balance cannot
	// cover the transfer.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount is returned for zero or negative transfer amounts.
	ErrInvalidAmount = errors.New("invalid transfer amount")
)

// Noop rejects every transfer. Use when settlement is disabled; billing
// then fails before any record is written.
type Noop struct{}

// NewNoop creates a no-op ledger.
func NewNoop() *Noop {
	return &Noop{}
}

// Transfer always fails.
func (*Noop) Transfer(ctx context.Context, asset, from, to string, amount int64) error {
	return ErrSettlementDisabled
}

// Memory is an in-memory ledger with per-asset account balances. A
// transfer either moves the full amount or fails; balances never go
// negative.
type Memory struct {
	mu       sync.Mutex
	balances map[string]map[string]int64 // asset -> account -> balance
}

// NewMemory creates an in-memory ledger.
func NewMemory() *Memory {
	return &Memory{balances: make(map[string]map[string]int64)}
}

// Deposit credits an account. Test and demo setup helper.
func (l *Memory) Deposit(asset, account string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.account(asset)[account] += amount
}

// Balance returns an account's balance for an asset.
func (l *Memory) Balance(asset, account string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.account(asset)[account]
}

// Transfer moves amount from one account to another atomically.
func (l *Memory) Transfer(ctx context.Context, asset, from, to string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	accounts := l.account(asset)
	if accounts[from] < amount {
		return ErrInsufficientFunds
	}
	accounts[from] -= amount
	accounts[to] += amount
	return nil
}

func (l *Memory) account(asset string) map[string]int64 {
	if l.balances[asset] == nil {
		l.balances[asset] = make(map[string]int64)
	}
	return l.balances[asset]
}

// Ensure interface compliance.
var (
	_ ports.Ledger = (*Noop)(nil)
	_ ports.Ledger = (*Memory)(nil)
)
