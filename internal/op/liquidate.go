package op

import (
	"fmt"

	"github.com/google/uuid"
)

// Liquidate is the permissionless solvency-repair operation: the caller
// repays the target vault's full debt and seizes collateral plus bonus.
type Liquidate struct {
	Base
	VaultOwner uuid.UUID
}

func (o *Liquidate) OpType() OpType    { return OpTypeLiquidate }
func (o *Liquidate) Partition() string { return o.callerPartition() }

func (o *Liquidate) Validate() error {
	if err := o.Base.Validate(); err != nil {
		return err
	}
	if o.VaultOwner == uuid.Nil {
		return fmt.Errorf("missing vault_owner")
	}
	return nil
}
