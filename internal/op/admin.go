package op

import (
	"fmt"

	"github.com/google/uuid"
)

// PartitionProtocol serializes admin operations; PartitionPrice carries the
// oracle feed, which tolerates sequence gaps.
const (
	PartitionProtocol = "protocol"
	PartitionPrice    = "price"
)

// Initialize creates the protocol singleton with the caller as admin.
type Initialize struct {
	Base
	InitialPrice uint64
}

func (o *Initialize) OpType() OpType    { return OpTypeInitialize }
func (o *Initialize) Partition() string { return PartitionProtocol }

// UpdatePrice is the admin-fed oracle update, bounded per update.
type UpdatePrice struct {
	Base
	NewPrice uint64
}

func (o *UpdatePrice) OpType() OpType    { return OpTypeUpdatePrice }
func (o *UpdatePrice) Partition() string { return PartitionPrice }

type PauseProtocol struct {
	Base
}

func (o *PauseProtocol) OpType() OpType    { return OpTypePauseProtocol }
func (o *PauseProtocol) Partition() string { return PartitionProtocol }

type UnpauseProtocol struct {
	Base
}

func (o *UnpauseProtocol) OpType() OpType    { return OpTypeUnpauseProtocol }
func (o *UnpauseProtocol) Partition() string { return PartitionProtocol }

// TransferAdmin replaces the admin identity immediately; single-step.
type TransferAdmin struct {
	Base
	NewAdmin uuid.UUID
}

func (o *TransferAdmin) OpType() OpType    { return OpTypeTransferAdmin }
func (o *TransferAdmin) Partition() string { return PartitionProtocol }

func (o *TransferAdmin) Validate() error {
	if err := o.Base.Validate(); err != nil {
		return err
	}
	if o.NewAdmin == uuid.Nil {
		return fmt.Errorf("missing new_admin")
	}
	return nil
}
