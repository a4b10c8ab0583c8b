package event

import "github.com/google/uuid"

type VaultCreated struct {
	Owner uuid.UUID `json:"owner"`
}

func (e *VaultCreated) EventType() EventType { return EventTypeVaultCreated }

// CollateralDeposited carries before/after amounts so consumers never have
// to reconstruct balances from deltas alone.
type CollateralDeposited struct {
	Owner                uuid.UUID `json:"owner"`
	Amount               uint64    `json:"amount"`
	CollateralBefore     uint64    `json:"collateral_before"`
	CollateralAfter      uint64    `json:"collateral_after"`
	TotalCollateralAfter uint64    `json:"total_collateral_after"`
}

func (e *CollateralDeposited) EventType() EventType { return EventTypeCollateralDeposited }

type GusdMinted struct {
	Owner          uuid.UUID `json:"owner"`
	Amount         uint64    `json:"amount"`
	DebtBefore     uint64    `json:"debt_before"`
	DebtAfter      uint64    `json:"debt_after"`
	TotalDebtAfter uint64    `json:"total_debt_after"`
	RatioBps       uint64    `json:"ratio_bps"`
}

func (e *GusdMinted) EventType() EventType { return EventTypeGusdMinted }

type GusdRepaid struct {
	Owner          uuid.UUID `json:"owner"`
	Amount         uint64    `json:"amount"`
	DebtBefore     uint64    `json:"debt_before"`
	DebtAfter      uint64    `json:"debt_after"`
	TotalDebtAfter uint64    `json:"total_debt_after"`
}

func (e *GusdRepaid) EventType() EventType { return EventTypeGusdRepaid }

type CollateralWithdrawn struct {
	Owner                uuid.UUID `json:"owner"`
	Amount               uint64    `json:"amount"`
	CollateralBefore     uint64    `json:"collateral_before"`
	CollateralAfter      uint64    `json:"collateral_after"`
	TotalCollateralAfter uint64    `json:"total_collateral_after"`
}

func (e *CollateralWithdrawn) EventType() EventType { return EventTypeCollateralWithdrawn }

type VaultClosed struct {
	Owner uuid.UUID `json:"owner"`
}

func (e *VaultClosed) EventType() EventType { return EventTypeVaultClosed }

// AccountFunded records an external-reserve credit from the deposits bridge.
type AccountFunded struct {
	Owner  uuid.UUID `json:"owner"`
	Asset  string    `json:"asset"`
	Amount uint64    `json:"amount"`
}

func (e *AccountFunded) EventType() EventType { return EventTypeAccountFunded }
