package tokenbook

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeCollateralDeposit JournalType = iota
	JournalTypeCollateralWithdrawal
	JournalTypeStablecoinMint
	JournalTypeStablecoinBurn
	JournalTypeLiquidationRepay
	JournalTypeLiquidationSeize
	JournalTypeExternalFunding
)

// Journal is a single double-entry transfer: a positive amount moves from
// the credit account to the debit account.
type Journal struct {
	JournalID     uuid.UUID
	BatchID       uuid.UUID
	OpRef         string // idempotency key of the source operation
	Sequence      int64
	DebitAccount  AccountKey
	CreditAccount AccountKey
	AssetID       AssetID
	Amount        int64 // always positive
	JournalType   JournalType
	Timestamp     int64 // epoch microseconds
}

// Batch is the unit of atomic application: all legs of one operation.
type Batch struct {
	BatchID   uuid.UUID
	OpRef     string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Validate ensures the batch is well-formed. Each journal entry is a
// balanced transfer by construction, so Σ debits == Σ credits holds
// per-entry; multi-leg operations use multiple entries under one batch_id.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}
	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}
		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}
		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}
		if j.DebitAccount.AssetID != j.AssetID || j.CreditAccount.AssetID != j.AssetID {
			return fmt.Errorf("journal %s crosses assets", j.JournalID)
		}
	}
	return nil
}
