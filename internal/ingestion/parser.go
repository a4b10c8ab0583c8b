package ingestion

import (
	"GusdLedger/internal/op"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ParseRawOp converts a RawOp (JSON bytes + op type string) into a typed
// op.Op. The ingestion shell validates and converts raw operations before
// they reach the deterministic core.
func ParseRawOp(raw RawOp, opType string) (op.Op, error) {
	switch opType {
	case "Initialize":
		return parseInitialize(raw.Data)
	case "UpdatePrice":
		return parseUpdatePrice(raw.Data)
	case "PauseProtocol":
		return parsePauseProtocol(raw.Data)
	case "UnpauseProtocol":
		return parseUnpauseProtocol(raw.Data)
	case "TransferAdmin":
		return parseTransferAdmin(raw.Data)
	case "CreateVault":
		return parseCreateVault(raw.Data)
	case "DepositCollateral":
		return parseDepositCollateral(raw.Data)
	case "MintGusd":
		return parseMintGusd(raw.Data)
	case "RepayGusd":
		return parseRepayGusd(raw.Data)
	case "WithdrawCollateral":
		return parseWithdrawCollateral(raw.Data)
	case "CloseVault":
		return parseCloseVault(raw.Data)
	case "Liquidate":
		return parseLiquidate(raw.Data)
	case "FundAccount":
		return parseFundAccount(raw.Data)
	default:
		return nil, fmt.Errorf("unknown op type: %s", opType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.

type baseJSON struct {
	OpID        string `json:"op_id"`
	CallerID    string `json:"caller_id"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func (j baseJSON) toBase() (op.Base, error) {
	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return op.Base{}, fmt.Errorf("parse op_id: %w", err)
	}
	callerID, err := uuid.Parse(j.CallerID)
	if err != nil {
		return op.Base{}, fmt.Errorf("parse caller_id: %w", err)
	}
	return op.Base{
		OpID:        opID,
		CallerID:    callerID,
		Sequence:    j.Sequence,
		TimestampUs: j.TimestampUs,
	}, nil
}

type initializeJSON struct {
	baseJSON
	InitialPrice uint64 `json:"initial_price"`
}

func parseInitialize(data []byte) (*op.Initialize, error) {
	var j initializeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Initialize: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	return &op.Initialize{Base: base, InitialPrice: j.InitialPrice}, nil
}

type updatePriceJSON struct {
	baseJSON
	NewPrice uint64 `json:"new_price"`
}

func parseUpdatePrice(data []byte) (*op.UpdatePrice, error) {
	var j updatePriceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse UpdatePrice: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	return &op.UpdatePrice{Base: base, NewPrice: j.NewPrice}, nil
}

func parsePauseProtocol(data []byte) (*op.PauseProtocol, error) {
	var j baseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PauseProtocol: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	return &op.PauseProtocol{Base: base}, nil
}

func parseUnpauseProtocol(data []byte) (*op.UnpauseProtocol, error) {
	var j baseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse UnpauseProtocol: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	return &op.UnpauseProtocol{Base: base}, nil
}

type transferAdminJSON struct {
	baseJSON
	NewAdmin string `json:"new_admin"`
}

func parseTransferAdmin(data []byte) (*op.TransferAdmin, error) {
	var j transferAdminJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TransferAdmin: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	newAdmin, err := uuid.Parse(j.NewAdmin)
	if err != nil {
		return nil, fmt.Errorf("parse new_admin: %w", err)
	}
	return &op.TransferAdmin{Base: base, NewAdmin: newAdmin}, nil
}

func parseCreateVault(data []byte) (*op.CreateVault, error) {
	var j baseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CreateVault: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	return &op.CreateVault{Base: base}, nil
}

type amountJSON struct {
	baseJSON
	Amount uint64 `json:"amount"`
}

func parseDepositCollateral(data []byte) (*op.DepositCollateral, error) {
	var j amountJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse DepositCollateral: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	return &op.DepositCollateral{Base: base, Amount: j.Amount}, nil
}

func parseMintGusd(data []byte) (*op.MintGusd, error) {
	var j amountJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MintGusd: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	return &op.MintGusd{Base: base, Amount: j.Amount}, nil
}

func parseRepayGusd(data []byte) (*op.RepayGusd, error) {
	var j amountJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RepayGusd: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	return &op.RepayGusd{Base: base, Amount: j.Amount}, nil
}

func parseWithdrawCollateral(data []byte) (*op.WithdrawCollateral, error) {
	var j amountJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WithdrawCollateral: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	return &op.WithdrawCollateral{Base: base, Amount: j.Amount}, nil
}

func parseCloseVault(data []byte) (*op.CloseVault, error) {
	var j baseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CloseVault: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	return &op.CloseVault{Base: base}, nil
}

type liquidateJSON struct {
	baseJSON
	VaultOwner string `json:"vault_owner"`
}

func parseLiquidate(data []byte) (*op.Liquidate, error) {
	var j liquidateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Liquidate: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	vaultOwner, err := uuid.Parse(j.VaultOwner)
	if err != nil {
		return nil, fmt.Errorf("parse vault_owner: %w", err)
	}
	return &op.Liquidate{Base: base, VaultOwner: vaultOwner}, nil
}

type fundAccountJSON struct {
	baseJSON
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
}

func parseFundAccount(data []byte) (*op.FundAccount, error) {
	var j fundAccountJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FundAccount: %w", err)
	}
	base, err := j.toBase()
	if err != nil {
		return nil, err
	}
	return &op.FundAccount{Base: base, Asset: j.Asset, Amount: j.Amount}, nil
}
