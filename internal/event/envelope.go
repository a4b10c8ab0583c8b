package event

import (
	"time"

	"github.com/google/uuid"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeProtocolInitialized
	EventTypePriceUpdated
	EventTypeProtocolPaused
	EventTypeProtocolUnpaused
	EventTypeAdminTransferred
	EventTypeVaultCreated
	EventTypeCollateralDeposited
	EventTypeGusdMinted
	EventTypeGusdRepaid
	EventTypeCollateralWithdrawn
	EventTypeVaultClosed
	EventTypeVaultLiquidated
	EventTypeAccountFunded
)

// EventEnvelope wraps every state transition in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Idempotency key of the operation that produced this event
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Name of the operation that produced this event, used together with
	// IdempotencyKey for durable deduplication
	OpType string

	// Affected vault owner (nil for protocol-level events)
	Owner *uuid.UUID

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Source-sequence partition and value of the producing operation
	Partition      string
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this transition
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads implement
type Event interface {
	EventType() EventType
}

func (et EventType) String() string {
	switch et {
	case EventTypeProtocolInitialized:
		return "ProtocolInitialized"
	case EventTypePriceUpdated:
		return "PriceUpdated"
	case EventTypeProtocolPaused:
		return "ProtocolPaused"
	case EventTypeProtocolUnpaused:
		return "ProtocolUnpaused"
	case EventTypeAdminTransferred:
		return "AdminTransferred"
	case EventTypeVaultCreated:
		return "VaultCreated"
	case EventTypeCollateralDeposited:
		return "CollateralDeposited"
	case EventTypeGusdMinted:
		return "GusdMinted"
	case EventTypeGusdRepaid:
		return "GusdRepaid"
	case EventTypeCollateralWithdrawn:
		return "CollateralWithdrawn"
	case EventTypeVaultClosed:
		return "VaultClosed"
	case EventTypeVaultLiquidated:
		return "VaultLiquidated"
	case EventTypeAccountFunded:
		return "AccountFunded"
	default:
		return "Unknown"
	}
}
