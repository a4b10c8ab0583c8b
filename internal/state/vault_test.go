package state

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestVaultHealthDebtFree(t *testing.T) {
	v := &Vault{Owner: uuid.New(), CollateralAmount: 50_000_000_000_000}
	h, err := v.Health(4776)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.CollateralValueUsd != 238_800_000 {
		t.Errorf("value = %d, want 238800000", h.CollateralValueUsd)
	}
	if h.RatioBps != 0 || h.Liquidatable {
		t.Errorf("debt-free vault: ratio = %d, liquidatable = %v", h.RatioBps, h.Liquidatable)
	}
}

func TestVaultHealthLiquidatable(t *testing.T) {
	v := &Vault{
		Owner:            uuid.New(),
		CollateralAmount: 50_000_000_000_000,
		DebtAmount:       100_000_000,
	}

	// At 4776 the vault is healthy at 238.8%.
	h, err := v.Health(4776)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.RatioBps != 23_880 || h.Liquidatable {
		t.Errorf("healthy vault: ratio = %d, liquidatable = %v", h.RatioBps, h.Liquidatable)
	}

	// At 1956 the ratio collapses to 97.8%, below the 120% threshold.
	h, err = v.Health(1956)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.RatioBps != 9_780 || !h.Liquidatable {
		t.Errorf("underwater vault: ratio = %d, liquidatable = %v", h.RatioBps, h.Liquidatable)
	}
}

func TestCheckMintRatioBoundary(t *testing.T) {
	// $150.00 of collateral value: 100 GUSD mints at exactly 150%.
	v := &Vault{Owner: uuid.New(), CollateralAmount: 50_000_000_000_000}
	price := uint64(3000) // value = 150,000,000 µUSD

	if err := v.CheckMintRatio(price, 100_000_000); err != nil {
		t.Errorf("exact 150%%: %v", err)
	}
	if err := v.CheckMintRatio(price, 100_000_001); !errors.Is(err, ErrInsufficientCollateralRatio) {
		t.Errorf("below 150%%: err = %v", err)
	}
}

func TestCheckWithdrawRatio(t *testing.T) {
	v := &Vault{
		Owner:            uuid.New(),
		CollateralAmount: 50_000_000_000_000,
		DebtAmount:       100_000_000,
	}

	if err := v.CheckWithdrawRatio(4776, 60_000_000_000_000); !errors.Is(err, ErrInsufficientCollateral) {
		t.Errorf("over-withdraw: err = %v", err)
	}

	// Withdrawing down to a post-ratio below 150% is rejected.
	if err := v.CheckWithdrawRatio(4776, 20_000_000_000_000); !errors.Is(err, ErrInsufficientCollateralRatio) {
		t.Errorf("ratio breach: err = %v", err)
	}

	// A small withdrawal keeping the ratio above 150% passes.
	if err := v.CheckWithdrawRatio(4776, 10_000_000_000_000); err != nil {
		t.Errorf("safe withdraw: %v", err)
	}

	// Debt-free vaults withdraw freely up to their balance.
	v.DebtAmount = 0
	if err := v.CheckWithdrawRatio(4776, 50_000_000_000_000); err != nil {
		t.Errorf("debt-free full withdraw: %v", err)
	}
}

func TestApplyPriceUpdate(t *testing.T) {
	ps := NewProtocolState(uuid.New(), 4776)

	if err := ps.ApplyPriceUpdate(0); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero price: err = %v", err)
	}
	if err := ps.ApplyPriceUpdate(5732); !errors.Is(err, ErrPriceChangeExceedsLimit) {
		t.Errorf("out-of-bound price: err = %v", err)
	}
	if ps.PriceUsd != 4776 {
		t.Errorf("price mutated on rejection: %d", ps.PriceUsd)
	}
	if err := ps.ApplyPriceUpdate(5731); err != nil {
		t.Fatalf("in-bound price: %v", err)
	}
	if ps.PriceUsd != 5731 {
		t.Errorf("price = %d, want 5731", ps.PriceUsd)
	}
}

func TestVaultManagerLifecycle(t *testing.T) {
	vm := NewVaultManager()
	owner := uuid.New()

	v, err := vm.Create(owner)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := vm.Create(owner); !errors.Is(err, ErrVaultAlreadyExists) {
		t.Errorf("duplicate create: err = %v", err)
	}

	v.CollateralAmount = 10
	if err := vm.Remove(owner); !errors.Is(err, ErrVaultNotEmpty) {
		t.Errorf("remove non-empty: err = %v", err)
	}
	v.CollateralAmount = 0
	if err := vm.Remove(owner); err != nil {
		t.Fatalf("remove empty: %v", err)
	}
	if vm.Get(owner) != nil {
		t.Error("vault still present after remove")
	}
	if err := vm.Remove(owner); !errors.Is(err, ErrVaultNotFound) {
		t.Errorf("remove missing: err = %v", err)
	}
}

func TestSumTotals(t *testing.T) {
	vm := NewVaultManager()
	for i := 0; i < 3; i++ {
		v, err := vm.Create(uuid.New())
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		v.CollateralAmount = uint64(i+1) * 100
		v.DebtAmount = uint64(i+1) * 10
	}
	collateral, debt := vm.SumTotals()
	if collateral != 600 || debt != 60 {
		t.Errorf("totals = %d/%d, want 600/60", collateral, debt)
	}
}
