package ingestion

import (
	"GusdLedger/internal/op"
	"testing"

	"github.com/google/uuid"
)

func TestParseDepositCollateral(t *testing.T) {
	opID := uuid.New()
	caller := uuid.New()
	data := []byte(`{
		"op_id": "` + opID.String() + `",
		"caller_id": "` + caller.String() + `",
		"sequence": 7,
		"timestamp_us": 1700000000000000,
		"amount": 50000000000000
	}`)

	parsed, err := ParseRawOp(RawOp{Data: data}, "DepositCollateral")
	if err != nil {
		t.Fatalf("ParseRawOp: %v", err)
	}

	dep, ok := parsed.(*op.DepositCollateral)
	if !ok {
		t.Fatalf("expected *op.DepositCollateral, got %T", parsed)
	}
	if dep.Amount != 50_000_000_000_000 {
		t.Errorf("amount = %d", dep.Amount)
	}
	if dep.Caller() != caller {
		t.Errorf("caller = %s, want %s", dep.Caller(), caller)
	}
	if dep.SourceSequence() != 7 {
		t.Errorf("sequence = %d", dep.SourceSequence())
	}
	if dep.Partition() != "user:"+caller.String() {
		t.Errorf("partition = %s", dep.Partition())
	}
	if err := dep.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParseUpdatePrice(t *testing.T) {
	data := []byte(`{
		"op_id": "` + uuid.NewString() + `",
		"caller_id": "` + uuid.NewString() + `",
		"sequence": 12,
		"timestamp_us": 1700000000000000,
		"new_price": 4776
	}`)

	parsed, err := ParseRawOp(RawOp{Data: data}, "UpdatePrice")
	if err != nil {
		t.Fatalf("ParseRawOp: %v", err)
	}

	upd, ok := parsed.(*op.UpdatePrice)
	if !ok {
		t.Fatalf("expected *op.UpdatePrice, got %T", parsed)
	}
	if upd.NewPrice != 4776 {
		t.Errorf("new_price = %d", upd.NewPrice)
	}
	if upd.Partition() != op.PartitionPrice {
		t.Errorf("partition = %s, want %s", upd.Partition(), op.PartitionPrice)
	}
}

func TestParseLiquidate(t *testing.T) {
	target := uuid.New()
	data := []byte(`{
		"op_id": "` + uuid.NewString() + `",
		"caller_id": "` + uuid.NewString() + `",
		"sequence": 3,
		"timestamp_us": 1700000000000000,
		"vault_owner": "` + target.String() + `"
	}`)

	parsed, err := ParseRawOp(RawOp{Data: data}, "Liquidate")
	if err != nil {
		t.Fatalf("ParseRawOp: %v", err)
	}

	liq := parsed.(*op.Liquidate)
	if liq.VaultOwner != target {
		t.Errorf("vault_owner = %s, want %s", liq.VaultOwner, target)
	}
}

func TestParseTransferAdmin(t *testing.T) {
	newAdmin := uuid.New()
	data := []byte(`{
		"op_id": "` + uuid.NewString() + `",
		"caller_id": "` + uuid.NewString() + `",
		"sequence": 2,
		"timestamp_us": 1700000000000000,
		"new_admin": "` + newAdmin.String() + `"
	}`)

	parsed, err := ParseRawOp(RawOp{Data: data}, "TransferAdmin")
	if err != nil {
		t.Fatalf("ParseRawOp: %v", err)
	}
	if parsed.(*op.TransferAdmin).NewAdmin != newAdmin {
		t.Errorf("new_admin mismatch")
	}
	if parsed.Partition() != op.PartitionProtocol {
		t.Errorf("partition = %s", parsed.Partition())
	}
}

func TestParseUnknownOpType(t *testing.T) {
	_, err := ParseRawOp(RawOp{Data: []byte(`{}`)}, "OpenPosition")
	if err == nil {
		t.Fatal("expected error for unknown op type")
	}
}

func TestParseBadUUID(t *testing.T) {
	data := []byte(`{
		"op_id": "not-a-uuid",
		"caller_id": "` + uuid.NewString() + `",
		"sequence": 1,
		"timestamp_us": 1700000000000000
	}`)

	if _, err := ParseRawOp(RawOp{Data: data}, "CreateVault"); err == nil {
		t.Fatal("expected error for malformed op_id")
	}
}

func TestParseMalformedJSON(t *testing.T) {
	if _, err := ParseRawOp(RawOp{Data: []byte(`{"op_id": `)}, "MintGusd"); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
