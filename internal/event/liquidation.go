package event

import "github.com/google/uuid"

// VaultLiquidated records a full-debt liquidation: the repaid debt, the
// seized collateral (bonus included, capped at the vault's holdings), and
// the ratio that made the vault eligible.
type VaultLiquidated struct {
	Liquidator       uuid.UUID `json:"liquidator"`
	VaultOwner       uuid.UUID `json:"vault_owner"`
	DebtRepaid       uint64    `json:"debt_repaid"`
	CollateralSeized uint64    `json:"collateral_seized"`
	RatioBps         uint64    `json:"ratio_bps"`
	PriceUsd         uint64    `json:"price_usd"`

	CollateralBefore uint64 `json:"collateral_before"`
	CollateralAfter  uint64 `json:"collateral_after"`
	DebtBefore       uint64 `json:"debt_before"`

	// SeizeShortfall is nonzero when the 110% payout exceeded the vault's
	// collateral and the cap applied.
	SeizeShortfall uint64 `json:"seize_shortfall"`
}

func (e *VaultLiquidated) EventType() EventType { return EventTypeVaultLiquidated }
