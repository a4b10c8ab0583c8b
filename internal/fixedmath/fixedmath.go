package fixedmath

import (
	"errors"

	"github.com/holiman/uint256"
)

// Scales for the three value domains. Collateral (GOR) carries 9 decimals,
// the stablecoin (GUSD) and the price reference carry 6.
const (
	CollateralScale uint64 = 1_000_000_000
	StablecoinScale uint64 = 1_000_000
	PriceScale      uint64 = 1_000_000
)

// Ratio constants in basis points.
const (
	BpsDenominator          uint64 = 10_000
	MinCollateralRatioBps   uint64 = 15_000 // 150%
	LiquidationThresholdBps uint64 = 12_000 // 120%
	LiquidationBonusBps     uint64 = 1_000  // 10%
	MaxPriceChangeBps       uint64 = 2_000  // 20% per update
)

var (
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	ErrDivisionByZero     = errors.New("division by zero")
)

// MulDiv computes a*b/d with a 256-bit intermediate and a checked narrowing
// back to uint64. The quotient is truncated toward zero.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrDivisionByZero
	}
	x := new(uint256.Int).SetUint64(a)
	y := new(uint256.Int).SetUint64(b)
	x.Mul(x, y)
	x.Div(x, y.SetUint64(d))
	if !x.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return x.Uint64(), nil
}

// CollateralValueUSD converts collateral base units at priceUsd (µUSD per
// whole collateral unit) into stablecoin-scale USD.
func CollateralValueUSD(collateralAmount, priceUsd uint64) (uint64, error) {
	return MulDiv(collateralAmount, priceUsd, CollateralScale)
}

// CollateralForUSD converts a stablecoin-scale USD amount into collateral
// base units at priceUsd.
func CollateralForUSD(usdAmount, priceUsd uint64) (uint64, error) {
	if priceUsd == 0 {
		return 0, ErrDivisionByZero
	}
	return MulDiv(usdAmount, CollateralScale, priceUsd)
}

// RatioBps returns the collateral ratio in basis points, truncated.
func RatioBps(collateralValueUsd, debtAmount uint64) (uint64, error) {
	if debtAmount == 0 {
		return 0, ErrDivisionByZero
	}
	return MulDiv(collateralValueUsd, BpsDenominator, debtAmount)
}

// MeetsRatioBps reports whether collateralValueUsd/debtAmount >= ratioBps,
// evaluated by cross-multiplication so boundary cases are exact.
func MeetsRatioBps(collateralValueUsd, debtAmount, ratioBps uint64) bool {
	lhs := new(uint256.Int).SetUint64(collateralValueUsd)
	lhs.Mul(lhs, new(uint256.Int).SetUint64(BpsDenominator))
	rhs := new(uint256.Int).SetUint64(debtAmount)
	rhs.Mul(rhs, new(uint256.Int).SetUint64(ratioBps))
	return lhs.Cmp(rhs) >= 0
}

// PriceChangeWithinBound reports whether |newPrice-oldPrice| relative to
// oldPrice stays within maxBps.
func PriceChangeWithinBound(oldPrice, newPrice, maxBps uint64) bool {
	var delta uint64
	if newPrice >= oldPrice {
		delta = newPrice - oldPrice
	} else {
		delta = oldPrice - newPrice
	}
	lhs := new(uint256.Int).SetUint64(delta)
	lhs.Mul(lhs, new(uint256.Int).SetUint64(BpsDenominator))
	rhs := new(uint256.Int).SetUint64(oldPrice)
	rhs.Mul(rhs, new(uint256.Int).SetUint64(maxBps))
	return lhs.Cmp(rhs) <= 0
}

// ScaleBps computes amount*bps/10000 with the widened intermediate.
func ScaleBps(amount, bps uint64) (uint64, error) {
	return MulDiv(amount, bps, BpsDenominator)
}

// CheckedAdd fails instead of wrapping.
func CheckedAdd(a, b uint64) (uint64, error) {
	c := a + b
	if c < a {
		return 0, ErrArithmeticOverflow
	}
	return c, nil
}

// CheckedSub fails instead of wrapping below zero.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrArithmeticOverflow
	}
	return a - b, nil
}
