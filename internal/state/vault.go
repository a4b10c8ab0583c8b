package state

import (
	"GusdLedger/internal/fixedmath"

	"github.com/google/uuid"
)

// Vault is a per-owner collateral/debt record. One per owner identity,
// created explicitly, reusable at zero balances.
type Vault struct {
	Owner            uuid.UUID
	CollateralAmount uint64 // collateral base units
	DebtAmount       uint64 // stablecoin base units
	Version          int64
}

// VaultHealth is the derived read-only view of a vault's solvency.
type VaultHealth struct {
	Owner              uuid.UUID
	CollateralAmount   uint64
	DebtAmount         uint64
	CollateralValueUsd uint64
	RatioBps           uint64 // 0 when debt is zero
	Liquidatable       bool
}

// IsEmpty reports whether the vault holds no collateral and owes no debt.
func (v *Vault) IsEmpty() bool {
	return v.CollateralAmount == 0 && v.DebtAmount == 0
}

// Health computes the solvency view at the given price. Eligibility and
// amounts are always recomputed fresh from current state, never cached.
func (v *Vault) Health(priceUsd uint64) (VaultHealth, error) {
	value, err := fixedmath.CollateralValueUSD(v.CollateralAmount, priceUsd)
	if err != nil {
		return VaultHealth{}, err
	}
	h := VaultHealth{
		Owner:              v.Owner,
		CollateralAmount:   v.CollateralAmount,
		DebtAmount:         v.DebtAmount,
		CollateralValueUsd: value,
	}
	if v.DebtAmount > 0 {
		ratio, err := fixedmath.RatioBps(value, v.DebtAmount)
		if err != nil {
			return VaultHealth{}, err
		}
		h.RatioBps = ratio
		h.Liquidatable = !fixedmath.MeetsRatioBps(value, v.DebtAmount, fixedmath.LiquidationThresholdBps)
	}
	return h, nil
}

// CheckMintRatio validates that the post-mint debt keeps the vault at or
// above the minimum collateral ratio.
func (v *Vault) CheckMintRatio(priceUsd, newDebt uint64) error {
	value, err := fixedmath.CollateralValueUSD(v.CollateralAmount, priceUsd)
	if err != nil {
		return err
	}
	if !fixedmath.MeetsRatioBps(value, newDebt, fixedmath.MinCollateralRatioBps) {
		return ErrInsufficientCollateralRatio
	}
	return nil
}

// CheckWithdrawRatio validates that removing amount keeps any remaining debt
// at or above the minimum collateral ratio. Debt-free vaults may withdraw
// everything.
func (v *Vault) CheckWithdrawRatio(priceUsd, amount uint64) error {
	if amount > v.CollateralAmount {
		return ErrInsufficientCollateral
	}
	if v.DebtAmount == 0 {
		return nil
	}
	remaining := v.CollateralAmount - amount
	value, err := fixedmath.CollateralValueUSD(remaining, priceUsd)
	if err != nil {
		return err
	}
	if !fixedmath.MeetsRatioBps(value, v.DebtAmount, fixedmath.MinCollateralRatioBps) {
		return ErrInsufficientCollateralRatio
	}
	return nil
}

// CanonicalBytes returns deterministic serialization for hashing.
func (v *Vault) CanonicalBytes() []byte {
	buf := make([]byte, 0, 48)
	buf = append(buf, v.Owner[:]...)
	buf = appendUint64LE(buf, v.CollateralAmount)
	buf = appendUint64LE(buf, v.DebtAmount)
	return buf
}
