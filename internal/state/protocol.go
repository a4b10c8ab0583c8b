package state

import (
	"GusdLedger/internal/fixedmath"

	"github.com/google/uuid"
)

// ProtocolState is the singleton protocol record: admin identity, price
// reference, aggregate totals, pause flag. Created once by initialize and
// mutated in place by every subsequent transition.
type ProtocolState struct {
	Admin           uuid.UUID
	PriceUsd        uint64 // µUSD per whole collateral unit
	TotalCollateral uint64 // collateral base units, sum over all vaults
	TotalDebt       uint64 // stablecoin base units, sum over all vaults
	IsPaused        bool
	Version         int64
}

// NewProtocolState creates the initialized state. Price validation is the
// caller's responsibility.
func NewProtocolState(admin uuid.UUID, initialPrice uint64) *ProtocolState {
	return &ProtocolState{
		Admin:    admin,
		PriceUsd: initialPrice,
	}
}

// RequireAdmin rejects callers other than the current admin.
func (ps *ProtocolState) RequireAdmin(caller uuid.UUID) error {
	if caller != ps.Admin {
		return ErrUnauthorized
	}
	return nil
}

// RequireActive rejects state-mutating vault operations while paused.
func (ps *ProtocolState) RequireActive() error {
	if ps.IsPaused {
		return ErrProtocolPaused
	}
	return nil
}

// ApplyPriceUpdate validates the bounded-delta rule and replaces the price.
func (ps *ProtocolState) ApplyPriceUpdate(newPrice uint64) error {
	if newPrice == 0 {
		return ErrInvalidAmount
	}
	if !fixedmath.PriceChangeWithinBound(ps.PriceUsd, newPrice, fixedmath.MaxPriceChangeBps) {
		return ErrPriceChangeExceedsLimit
	}
	ps.PriceUsd = newPrice
	ps.Version++
	return nil
}

// AddCollateral moves the aggregate collateral total with checked add.
func (ps *ProtocolState) AddCollateral(amount uint64) error {
	total, err := fixedmath.CheckedAdd(ps.TotalCollateral, amount)
	if err != nil {
		return err
	}
	ps.TotalCollateral = total
	ps.Version++
	return nil
}

func (ps *ProtocolState) SubCollateral(amount uint64) error {
	total, err := fixedmath.CheckedSub(ps.TotalCollateral, amount)
	if err != nil {
		return err
	}
	ps.TotalCollateral = total
	ps.Version++
	return nil
}

func (ps *ProtocolState) AddDebt(amount uint64) error {
	total, err := fixedmath.CheckedAdd(ps.TotalDebt, amount)
	if err != nil {
		return err
	}
	ps.TotalDebt = total
	ps.Version++
	return nil
}

func (ps *ProtocolState) SubDebt(amount uint64) error {
	total, err := fixedmath.CheckedSub(ps.TotalDebt, amount)
	if err != nil {
		return err
	}
	ps.TotalDebt = total
	ps.Version++
	return nil
}

// CanonicalBytes returns deterministic serialization for hashing.
func (ps *ProtocolState) CanonicalBytes() []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, ps.Admin[:]...)
	buf = appendUint64LE(buf, ps.PriceUsd)
	buf = appendUint64LE(buf, ps.TotalCollateral)
	buf = appendUint64LE(buf, ps.TotalDebt)
	if ps.IsPaused {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

func appendUint64LE(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}
