package fixedmath

import (
	"errors"
	"math"
	"testing"
)

func TestCollateralValueUSD(t *testing.T) {
	// 50,000 GOR at 4776 µUSD/GOR = 238,800,000 µUSD ($238.80)
	value, err := CollateralValueUSD(50_000*CollateralScale, 4776)
	if err != nil {
		t.Fatalf("CollateralValueUSD: %v", err)
	}
	if value != 238_800_000 {
		t.Errorf("value = %d, want 238800000", value)
	}
}

func TestCollateralValueUSDZeroPrice(t *testing.T) {
	value, err := CollateralValueUSD(1_000, 0)
	if err != nil {
		t.Fatalf("CollateralValueUSD: %v", err)
	}
	if value != 0 {
		t.Errorf("value = %d, want 0", value)
	}
}

func TestCollateralValueUSDOverflow(t *testing.T) {
	// The 256-bit intermediate never overflows, but the narrowed result can.
	_, err := CollateralValueUSD(math.MaxUint64, math.MaxUint64)
	if !errors.Is(err, ErrArithmeticOverflow) {
		t.Errorf("err = %v, want ErrArithmeticOverflow", err)
	}
}

func TestCollateralForUSD(t *testing.T) {
	// 100 GUSD of debt at 1956 µUSD/GOR needs 51124.74... GOR, truncated.
	got, err := CollateralForUSD(100_000_000, 1956)
	if err != nil {
		t.Fatalf("CollateralForUSD: %v", err)
	}
	want := uint64(51_124_744_376_278) // 1e17/1956 truncated
	if got != want {
		t.Errorf("got = %d, want %d", got, want)
	}
}

func TestCollateralForUSDZeroPrice(t *testing.T) {
	if _, err := CollateralForUSD(1, 0); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("err = %v, want ErrDivisionByZero", err)
	}
}

func TestMeetsRatioBpsBoundary(t *testing.T) {
	// Exactly 150%: value 150, debt 100.
	if !MeetsRatioBps(150, 100, MinCollateralRatioBps) {
		t.Error("exact 150% should meet the minimum ratio")
	}
	if MeetsRatioBps(149, 100, MinCollateralRatioBps) {
		t.Error("149% should not meet the minimum ratio")
	}
	// $238.80 value against 160 GUSD is 149.25%.
	if MeetsRatioBps(238_800_000, 160_000_000, MinCollateralRatioBps) {
		t.Error("149.25% should not meet the minimum ratio")
	}
	if !MeetsRatioBps(238_800_000, 100_000_000, MinCollateralRatioBps) {
		t.Error("238.8% should meet the minimum ratio")
	}
}

func TestPriceChangeWithinBound(t *testing.T) {
	cases := []struct {
		old, new uint64
		ok       bool
	}{
		{4776, 5731, true},  // +19.997%
		{4776, 5732, false}, // just over 20%
		{4776, 3821, true},  // -19.995%
		{4776, 3820, false},
		{1000, 1200, true}, // exactly 20%
		{1000, 1201, false},
		{1000, 800, true},
		{1000, 799, false},
		{4776, 4776, true},
	}
	for _, tc := range cases {
		if got := PriceChangeWithinBound(tc.old, tc.new, MaxPriceChangeBps); got != tc.ok {
			t.Errorf("PriceChangeWithinBound(%d, %d) = %v, want %v", tc.old, tc.new, got, tc.ok)
		}
	}
}

func TestRatioBps(t *testing.T) {
	// $97.80 value on 100 GUSD debt is 97.8%.
	got, err := RatioBps(97_800_000, 100_000_000)
	if err != nil {
		t.Fatalf("RatioBps: %v", err)
	}
	if got != 9_780 {
		t.Errorf("ratio = %d bps, want 9780", got)
	}
	if _, err := RatioBps(1, 0); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("zero debt: err = %v, want ErrDivisionByZero", err)
	}
}

func TestScaleBps(t *testing.T) {
	got, err := ScaleBps(51_124_744_376_278, BpsDenominator+LiquidationBonusBps)
	if err != nil {
		t.Fatalf("ScaleBps: %v", err)
	}
	if got != 56_237_218_813_905 {
		t.Errorf("got = %d, want 56237218813905", got)
	}
}

func TestCheckedAddSub(t *testing.T) {
	if _, err := CheckedAdd(math.MaxUint64, 1); !errors.Is(err, ErrArithmeticOverflow) {
		t.Errorf("add overflow: err = %v", err)
	}
	if v, err := CheckedAdd(1, 2); err != nil || v != 3 {
		t.Errorf("CheckedAdd(1,2) = %d, %v", v, err)
	}
	if _, err := CheckedSub(1, 2); !errors.Is(err, ErrArithmeticOverflow) {
		t.Errorf("sub underflow: err = %v", err)
	}
	if v, err := CheckedSub(5, 2); err != nil || v != 3 {
		t.Errorf("CheckedSub(5,2) = %d, %v", v, err)
	}
}
