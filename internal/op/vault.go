package op

// CreateVault opens a zeroed vault for the caller, one per identity.
type CreateVault struct {
	Base
}

func (o *CreateVault) OpType() OpType    { return OpTypeCreateVault }
func (o *CreateVault) Partition() string { return o.callerPartition() }

// DepositCollateral moves collateral from the caller into vault custody.
type DepositCollateral struct {
	Base
	Amount uint64
}

func (o *DepositCollateral) OpType() OpType    { return OpTypeDepositCollateral }
func (o *DepositCollateral) Partition() string { return o.callerPartition() }

// MintGusd issues stablecoin against the caller's collateral.
type MintGusd struct {
	Base
	Amount uint64
}

func (o *MintGusd) OpType() OpType    { return OpTypeMintGusd }
func (o *MintGusd) Partition() string { return o.callerPartition() }

// RepayGusd burns stablecoin against the caller's outstanding debt.
type RepayGusd struct {
	Base
	Amount uint64
}

func (o *RepayGusd) OpType() OpType    { return OpTypeRepayGusd }
func (o *RepayGusd) Partition() string { return o.callerPartition() }

// WithdrawCollateral moves collateral from custody back to the caller.
type WithdrawCollateral struct {
	Base
	Amount uint64
}

func (o *WithdrawCollateral) OpType() OpType    { return OpTypeWithdrawCollateral }
func (o *WithdrawCollateral) Partition() string { return o.callerPartition() }

// CloseVault removes the caller's vault record; only valid once collateral
// and debt are both zero.
type CloseVault struct {
	Base
}

func (o *CloseVault) OpType() OpType    { return OpTypeCloseVault }
func (o *CloseVault) Partition() string { return o.callerPartition() }

// FundAccount credits the caller from the external reserve. Submitted by the
// trusted deposits bridge, not by end users.
type FundAccount struct {
	Base
	Asset  string
	Amount uint64
}

func (o *FundAccount) OpType() OpType    { return OpTypeFundAccount }
func (o *FundAccount) Partition() string { return o.callerPartition() }
