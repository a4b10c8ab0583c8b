package event

import "github.com/google/uuid"

// ProtocolInitialized records the creation of the protocol singleton.
type ProtocolInitialized struct {
	Admin        uuid.UUID `json:"admin"`
	InitialPrice uint64    `json:"initial_price"`
}

func (e *ProtocolInitialized) EventType() EventType { return EventTypeProtocolInitialized }

// PriceUpdated records a bounded oracle price replacement.
type PriceUpdated struct {
	OldPrice uint64 `json:"old_price"`
	NewPrice uint64 `json:"new_price"`
}

func (e *PriceUpdated) EventType() EventType { return EventTypePriceUpdated }

type ProtocolPaused struct {
	Admin uuid.UUID `json:"admin"`
}

func (e *ProtocolPaused) EventType() EventType { return EventTypeProtocolPaused }

type ProtocolUnpaused struct {
	Admin uuid.UUID `json:"admin"`
}

func (e *ProtocolUnpaused) EventType() EventType { return EventTypeProtocolUnpaused }

type AdminTransferred struct {
	OldAdmin uuid.UUID `json:"old_admin"`
	NewAdmin uuid.UUID `json:"new_admin"`
}

func (e *AdminTransferred) EventType() EventType { return EventTypeAdminTransferred }
