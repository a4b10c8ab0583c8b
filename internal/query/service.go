package query

import (
	"GusdLedger/internal/fixedmath"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned when the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// QueryService provides read-only access to projection tables. Queries are
// served via gRPC-Gateway HTTP/JSON routes, reading from PostgreSQL
// projection tables. All responses include as_of_sequence for freshness
// semantics.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetProtocol returns the projected protocol singleton.
func (qs *QueryService) GetProtocol(ctx context.Context) (*ProtocolResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	var adminStr string
	var price, totalCollateral, totalDebt int64
	var isPaused bool
	err = qs.db.QueryRowContext(ctx, `
		SELECT admin, price_usd, total_collateral, total_debt, is_paused
		FROM projections.protocol WHERE id = 1
	`).Scan(&adminStr, &price, &totalCollateral, &totalDebt, &isPaused)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	admin, err := uuid.Parse(adminStr)
	if err != nil {
		return nil, fmt.Errorf("parse projected admin: %w", err)
	}

	return &ProtocolResponse{
		Admin:           admin,
		PriceUsd:        uint64(price),
		TotalCollateral: uint64(totalCollateral),
		TotalDebt:       uint64(totalDebt),
		IsPaused:        isPaused,
		AsOfSequence:    asOfSeq,
	}, nil
}

// GetVault returns a single vault with health metrics derived from the
// projected price.
func (qs *QueryService) GetVault(ctx context.Context, owner uuid.UUID) (*VaultResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var collateral, debt int64
	err = qs.db.QueryRowContext(ctx, `
		SELECT collateral_amount, debt_amount FROM projections.vaults WHERE owner = $1
	`, owner.String()).Scan(&collateral, &debt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	price, err := qs.getProjectedPrice(ctx)
	if err != nil {
		return nil, err
	}

	resp := &VaultResponse{
		Owner:            owner,
		CollateralAmount: uint64(collateral),
		DebtAmount:       uint64(debt),
		AsOfSequence:     asOfSeq,
	}
	fillHealth(resp, price)
	return resp, nil
}

// ListVaults returns all open vaults with derived health, ordered by owner.
func (qs *QueryService) ListVaults(ctx context.Context, limit int) ([]VaultResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	price, err := qs.getProjectedPrice(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT owner, collateral_amount, debt_amount
		FROM projections.vaults
		ORDER BY owner
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vaults []VaultResponse
	for rows.Next() {
		var ownerStr string
		var collateral, debt int64
		if err := rows.Scan(&ownerStr, &collateral, &debt); err != nil {
			return nil, err
		}
		owner, err := uuid.Parse(ownerStr)
		if err != nil {
			return nil, fmt.Errorf("parse projected owner: %w", err)
		}
		v := VaultResponse{
			Owner:            owner,
			CollateralAmount: uint64(collateral),
			DebtAmount:       uint64(debt),
			AsOfSequence:     asOfSeq,
		}
		fillHealth(&v, price)
		vaults = append(vaults, v)
	}

	return vaults, rows.Err()
}

// ListLiquidatable returns vaults below the liquidation threshold at the
// projected price. Keeper bots poll this endpoint.
func (qs *QueryService) ListLiquidatable(ctx context.Context, limit int) ([]VaultResponse, error) {
	vaults, err := qs.ListVaults(ctx, limit)
	if err != nil {
		return nil, err
	}

	var eligible []VaultResponse
	for _, v := range vaults {
		if v.Liquidatable {
			eligible = append(eligible, v)
		}
	}
	return eligible, nil
}

// GetVaultHistory returns state transitions for a vault with cursor-based
// pagination (descending by sequence).
func (qs *QueryService) GetVaultHistory(
	ctx context.Context,
	owner uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]VaultHistoryEntry, error) {
	queryStr := `
		SELECT sequence, event_type, collateral_amount, debt_amount, payload, timestamp_us
		FROM projections.vault_history
		WHERE owner = $1
	`
	args := []interface{}{owner.String()}
	argIdx := 2

	if afterSequence != nil {
		queryStr += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	queryStr += " ORDER BY sequence DESC"
	queryStr += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []VaultHistoryEntry
	for rows.Next() {
		var h VaultHistoryEntry
		h.Owner = owner
		var collateral, debt int64
		if err := rows.Scan(
			&h.Sequence, &h.EventType, &collateral, &debt, &h.Payload, &h.TimestampUs,
		); err != nil {
			return nil, err
		}
		h.CollateralAmount = uint64(collateral)
		h.DebtAmount = uint64(debt)
		history = append(history, h)
	}

	return history, rows.Err()
}

// GetBalance returns the projected balance of one account path.
func (qs *QueryService) GetBalance(ctx context.Context, accountPath, asset string) (*BalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var balance int64
	err = qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		balance = 0
	} else if err != nil {
		return nil, err
	}

	return &BalanceResponse{
		AccountPath:  accountPath,
		Asset:        asset,
		Balance:      balance,
		AsOfSequence: asOfSeq,
	}, nil
}

// GetTransferHistory returns token transfers touching a user's accounts,
// with cursor-based pagination.
func (qs *QueryService) GetTransferHistory(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]TransferHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("user:%s:%%", userID)

	queryStr := `
		SELECT journal_id, batch_id, op_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type, timestamp
		FROM event_log.token_transfers
		WHERE debit_account LIKE $1 OR credit_account LIKE $1
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		queryStr += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	queryStr += " ORDER BY sequence DESC"
	queryStr += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []TransferHistoryEntry
	for rows.Next() {
		var e TransferHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.OpRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity and per-asset zero-sum over
// the balance projection.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence, e1.prev_hash, e2.state_hash
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 1 AND e1.prev_hash != COALESCE(e2.state_hash, e1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		var prevHash, expectedHash []byte
		if err := rows.Scan(&seq, &prevHash, &expectedHash); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance) as total
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var assetID uint16
		var total int64
		if err := balanceRows.Scan(&assetID, &total); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			AssetID:   assetID,
			Imbalance: total,
		})
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (qs *QueryService) getProjectedPrice(ctx context.Context) (uint64, error) {
	var price int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT price_usd FROM projections.protocol WHERE id = 1
	`).Scan(&price)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(price), nil
}

// fillHealth computes derived health fields at the given price. A vault
// with zero debt reports ratio 0 and is never liquidatable.
func fillHealth(v *VaultResponse, price uint64) {
	value, err := fixedmath.CollateralValueUSD(v.CollateralAmount, price)
	if err != nil {
		return
	}
	v.CollateralValueUsd = value

	if v.DebtAmount == 0 {
		v.RatioBps = 0
		v.Liquidatable = false
		return
	}

	ratio, err := fixedmath.RatioBps(value, v.DebtAmount)
	if err == nil {
		v.RatioBps = ratio
	}
	v.Liquidatable = !fixedmath.MeetsRatioBps(value, v.DebtAmount, fixedmath.LiquidationThresholdBps)
}
