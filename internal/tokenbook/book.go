package tokenbook

import (
	"errors"
	"fmt"
)

// Ledger is the value-transfer collaborator boundary: a batch of transfer,
// mint, and burn legs applies atomically or not at all.
type Ledger interface {
	ApplyBatch(batch *Batch) error
	Balance(key AccountKey) int64
}

var ErrInsufficientFunds = errors.New("insufficient funds")

// Book maintains in-memory double-entry balances for GOR and GUSD. User and
// custody accounts can never go negative; external boundary accounts absorb
// on/off-ramp flow and stablecoin issuance, so the book stays zero-sum.
type Book struct {
	balances map[AccountKey]int64
}

func NewBook() *Book {
	return &Book{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyBatch stages all legs, validates that no user or custody account
// would go negative, then commits. A rejected batch leaves no effect.
func (b *Book) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	staged := make(map[AccountKey]int64, len(batch.Journals)*2)
	stagedBalance := func(key AccountKey) int64 {
		if v, ok := staged[key]; ok {
			return v
		}
		return b.balances[key]
	}

	for _, j := range batch.Journals {
		staged[j.DebitAccount] = stagedBalance(j.DebitAccount) + j.Amount
		staged[j.CreditAccount] = stagedBalance(j.CreditAccount) - j.Amount
	}

	for key, balance := range staged {
		if key.Scope != AccountScopeExternal && balance < 0 {
			return fmt.Errorf("%w: account %s would reach %d", ErrInsufficientFunds, key.AccountPath(), balance)
		}
	}

	for key, balance := range staged {
		b.balances[key] = balance
	}
	return nil
}

// Balance returns the current balance for an account
func (b *Book) Balance(key AccountKey) int64 {
	return b.balances[key]
}

// SetBalance directly installs a balance (used for snapshot restore)
func (b *Book) SetBalance(key AccountKey, balance int64) {
	b.balances[key] = balance
}

// ComputeGlobalBalance sums all account balances per asset; zero for a
// zero-sum book.
func (b *Book) ComputeGlobalBalance() map[AssetID]int64 {
	totals := make(map[AssetID]int64)
	for key, balance := range b.balances {
		totals[key.AssetID] += balance
	}
	return totals
}

// IssuedSupply returns the outstanding stablecoin supply, read off the
// issuance counter-account.
func (b *Book) IssuedSupply() int64 {
	return -b.Balance(NewExternalAccountKey(ExternalIssuance, AssetGUSD))
}

// Snapshot returns a copy of all balances
func (b *Book) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(b.balances))
	for k, v := range b.balances {
		snapshot[k] = v
	}
	return snapshot
}

// ValidateGlobalBalance verifies the book is zero-sum per asset.
func (b *Book) ValidateGlobalBalance() error {
	for assetID, total := range b.ComputeGlobalBalance() {
		if total != 0 {
			assetName, _ := GetAssetName(assetID)
			return fmt.Errorf("global balance for %s is non-zero: %d", assetName, total)
		}
	}
	return nil
}
