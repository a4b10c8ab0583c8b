package tokenbook

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches for vault operations.
type JournalGenerator struct{}

func NewJournalGenerator() *JournalGenerator {
	return &JournalGenerator{}
}

func checkAmount(amount uint64) (int64, error) {
	if amount == 0 {
		return 0, fmt.Errorf("zero amount")
	}
	if amount > math.MaxInt64 {
		return 0, fmt.Errorf("amount %d exceeds ledger range", amount)
	}
	return int64(amount), nil
}

func newBatch(opRef string, sequence, timestamp int64) *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		OpRef:     opRef,
		Sequence:  sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 2),
	}
}

func (jg *JournalGenerator) appendJournal(b *Batch, debit, credit AccountKey, assetID AssetID, amount int64, jt JournalType) {
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		OpRef:         b.OpRef,
		Sequence:      b.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
}

// GenerateDeposit moves collateral: user → vault custody.
func (jg *JournalGenerator) GenerateDeposit(owner uuid.UUID, amount uint64, opRef string, sequence, timestamp int64) (*Batch, error) {
	amt, err := checkAmount(amount)
	if err != nil {
		return nil, err
	}
	b := newBatch(opRef, sequence, timestamp)
	jg.appendJournal(b,
		NewCustodyAccountKey(owner, AssetGOR),
		NewUserAccountKey(owner, AssetGOR),
		AssetGOR, amt, JournalTypeCollateralDeposit)
	return b, nil
}

// GenerateWithdrawal moves collateral: vault custody → user.
func (jg *JournalGenerator) GenerateWithdrawal(owner uuid.UUID, amount uint64, opRef string, sequence, timestamp int64) (*Batch, error) {
	amt, err := checkAmount(amount)
	if err != nil {
		return nil, err
	}
	b := newBatch(opRef, sequence, timestamp)
	jg.appendJournal(b,
		NewUserAccountKey(owner, AssetGOR),
		NewCustodyAccountKey(owner, AssetGOR),
		AssetGOR, amt, JournalTypeCollateralWithdrawal)
	return b, nil
}

// GenerateMint issues stablecoin to the owner: issuance → user.
func (jg *JournalGenerator) GenerateMint(owner uuid.UUID, amount uint64, opRef string, sequence, timestamp int64) (*Batch, error) {
	amt, err := checkAmount(amount)
	if err != nil {
		return nil, err
	}
	b := newBatch(opRef, sequence, timestamp)
	jg.appendJournal(b,
		NewUserAccountKey(owner, AssetGUSD),
		NewExternalAccountKey(ExternalIssuance, AssetGUSD),
		AssetGUSD, amt, JournalTypeStablecoinMint)
	return b, nil
}

// GenerateBurn retires stablecoin from the owner: user → issuance.
func (jg *JournalGenerator) GenerateBurn(owner uuid.UUID, amount uint64, opRef string, sequence, timestamp int64) (*Batch, error) {
	amt, err := checkAmount(amount)
	if err != nil {
		return nil, err
	}
	b := newBatch(opRef, sequence, timestamp)
	jg.appendJournal(b,
		NewExternalAccountKey(ExternalIssuance, AssetGUSD),
		NewUserAccountKey(owner, AssetGUSD),
		AssetGUSD, amt, JournalTypeStablecoinBurn)
	return b, nil
}

// GenerateLiquidation settles a liquidation in one atomic batch: the
// liquidator's stablecoin is burned against the vault debt, then the seized
// collateral moves from the vault custody to the liquidator.
func (jg *JournalGenerator) GenerateLiquidation(liquidator, vaultOwner uuid.UUID, debtAmount, seizeAmount uint64, opRef string, sequence, timestamp int64) (*Batch, error) {
	debt, err := checkAmount(debtAmount)
	if err != nil {
		return nil, err
	}
	seize, err := checkAmount(seizeAmount)
	if err != nil {
		return nil, err
	}
	b := newBatch(opRef, sequence, timestamp)
	jg.appendJournal(b,
		NewExternalAccountKey(ExternalIssuance, AssetGUSD),
		NewUserAccountKey(liquidator, AssetGUSD),
		AssetGUSD, debt, JournalTypeLiquidationRepay)
	jg.appendJournal(b,
		NewUserAccountKey(liquidator, AssetGOR),
		NewCustodyAccountKey(vaultOwner, AssetGOR),
		AssetGOR, seize, JournalTypeLiquidationSeize)
	return b, nil
}

// GenerateExternalFunding credits a user from the external reserve. Used to
// bring collateral into the book from outside; not a vault operation.
func (jg *JournalGenerator) GenerateExternalFunding(owner uuid.UUID, assetID AssetID, amount uint64, opRef string, sequence, timestamp int64) (*Batch, error) {
	amt, err := checkAmount(amount)
	if err != nil {
		return nil, err
	}
	b := newBatch(opRef, sequence, timestamp)
	jg.appendJournal(b,
		NewUserAccountKey(owner, assetID),
		NewExternalAccountKey(ExternalReserve, assetID),
		assetID, amt, JournalTypeExternalFunding)
	return b, nil
}
