package query

import "github.com/google/uuid"

// ProtocolResponse represents the protocol singleton for API queries.
type ProtocolResponse struct {
	Admin           uuid.UUID `json:"admin"`
	PriceUsd        uint64    `json:"price_usd"`
	TotalCollateral uint64    `json:"total_collateral"`
	TotalDebt       uint64    `json:"total_debt"`
	IsPaused        bool      `json:"is_paused"`
	AsOfSequence    int64     `json:"as_of_sequence"`
}

// VaultResponse represents a vault for API queries, with health metrics
// derived from the projected price at query time.
type VaultResponse struct {
	Owner              uuid.UUID `json:"owner"`
	CollateralAmount   uint64    `json:"collateral_amount"`
	DebtAmount         uint64    `json:"debt_amount"`
	CollateralValueUsd uint64    `json:"collateral_value_usd"`
	RatioBps           uint64    `json:"ratio_bps"` // 0 when debt-free
	Liquidatable       bool      `json:"liquidatable"`
	AsOfSequence       int64     `json:"as_of_sequence"`
}

// VaultHistoryEntry is one state transition of a vault.
type VaultHistoryEntry struct {
	Owner            uuid.UUID `json:"owner"`
	Sequence         int64     `json:"sequence"`
	EventType        string    `json:"event_type"`
	CollateralAmount uint64    `json:"collateral_amount"`
	DebtAmount       uint64    `json:"debt_amount"`
	Payload          []byte    `json:"payload"`
	TimestampUs      int64     `json:"timestamp_us"`
}

// BalanceResponse represents a token balance for API queries.
type BalanceResponse struct {
	AccountPath  string `json:"account_path"`
	Asset        string `json:"asset"`
	Balance      int64  `json:"balance"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// TransferHistoryEntry is one booked token transfer touching an account.
type TransferHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	OpRef         string `json:"op_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport summarizes hash chain and balance checks.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset represents an asset with non-zero global balance sum.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance int64  `json:"imbalance"`
}
