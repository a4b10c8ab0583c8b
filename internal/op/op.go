package op

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OpType discriminator for operation payloads
type OpType int32

const (
	OpTypeUnknown OpType = iota
	OpTypeInitialize
	OpTypeUpdatePrice
	OpTypePauseProtocol
	OpTypeUnpauseProtocol
	OpTypeTransferAdmin
	OpTypeCreateVault
	OpTypeDepositCollateral
	OpTypeMintGusd
	OpTypeRepayGusd
	OpTypeWithdrawCollateral
	OpTypeCloseVault
	OpTypeLiquidate
	OpTypeFundAccount
)

// Op is the interface all inbound operations implement. Every operation
// carries a stable idempotency key, the authenticated caller identity, and a
// per-partition source sequence for ordering validation.
type Op interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// OpType returns the discriminator
	OpType() OpType

	// Caller returns the authenticated identity the transport attributed
	// this operation to
	Caller() uuid.UUID

	// Partition returns the source-sequence partition
	Partition() string

	// SourceSequence returns the producer's ordering key within Partition
	SourceSequence() int64

	// Timestamp returns the versioned input timestamp (not wall clock)
	Timestamp() time.Time

	// Validate checks structural well-formedness only; domain preconditions
	// are the engine's job
	Validate() error
}

// Base carries the fields shared by every operation.
type Base struct {
	OpID        uuid.UUID
	CallerID    uuid.UUID
	Sequence    int64
	TimestampUs int64
}

func (b *Base) IdempotencyKey() string { return b.OpID.String() }
func (b *Base) Caller() uuid.UUID      { return b.CallerID }
func (b *Base) SourceSequence() int64  { return b.Sequence }
func (b *Base) Timestamp() time.Time   { return time.UnixMicro(b.TimestampUs) }

func (b *Base) Validate() error {
	if b.OpID == uuid.Nil {
		return fmt.Errorf("missing op_id")
	}
	if b.CallerID == uuid.Nil {
		return fmt.Errorf("missing caller")
	}
	if b.Sequence <= 0 {
		return fmt.Errorf("sequence must be positive, got %d", b.Sequence)
	}
	return nil
}

// callerPartition is the per-producer sequence stream for vault operations.
func (b *Base) callerPartition() string {
	return "user:" + b.CallerID.String()
}

func (ot OpType) String() string {
	switch ot {
	case OpTypeInitialize:
		return "Initialize"
	case OpTypeUpdatePrice:
		return "UpdatePrice"
	case OpTypePauseProtocol:
		return "PauseProtocol"
	case OpTypeUnpauseProtocol:
		return "UnpauseProtocol"
	case OpTypeTransferAdmin:
		return "TransferAdmin"
	case OpTypeCreateVault:
		return "CreateVault"
	case OpTypeDepositCollateral:
		return "DepositCollateral"
	case OpTypeMintGusd:
		return "MintGusd"
	case OpTypeRepayGusd:
		return "RepayGusd"
	case OpTypeWithdrawCollateral:
		return "WithdrawCollateral"
	case OpTypeCloseVault:
		return "CloseVault"
	case OpTypeLiquidate:
		return "Liquidate"
	case OpTypeFundAccount:
		return "FundAccount"
	default:
		return "Unknown"
	}
}
