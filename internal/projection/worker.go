package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
)

// ProjectionOutput mirrors the data needed by projection workers.
// The orchestrator bridges between core.CoreOutput and this.
type ProjectionOutput struct {
	Sequence        int64
	EventType       string
	Owner           *string
	Payload         []byte // JSON-encoded event payload
	TransferEntries []TransferEntry
	TimestampUs     int64
}

// TransferEntry is a simplified token transfer for projection consumption.
type TransferEntry struct {
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        int64
	JournalType   int32
}

// ProjectionWorker updates projection tables from processed events.
// The projection channel is non-blocking with drop: if projections fall
// behind, they are rebuilt from the event log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				log.Printf("WARN: projection update failed at seq=%d: %v", output.Sequence, err)
				// Continue: projections are eventually consistent
				// and can be rebuilt from the event log
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := pw.applyEvent(ctx, tx, output); err != nil {
		return fmt.Errorf("apply %s: %w", output.EventType, err)
	}

	// Update balance projections from token transfers
	for _, t := range output.TransferEntries {
		if err := pw.updateBalanceProjection(ctx, tx, t, output.Sequence); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}

	// Update projection watermark
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// applyEvent dispatches on event type and updates the protocol, vault, and
// history projections. Event payloads carry post-state values so no
// reconstruction from deltas is needed.
func (pw *ProjectionWorker) applyEvent(ctx context.Context, tx *sql.Tx, output ProjectionOutput) error {
	switch output.EventType {
	case "ProtocolInitialized":
		var p struct {
			Admin        string `json:"admin"`
			InitialPrice uint64 `json:"initial_price"`
		}
		if err := json.Unmarshal(output.Payload, &p); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.protocol (id, admin, price_usd, total_collateral, total_debt, is_paused, last_sequence)
			VALUES (1, $1, $2, 0, 0, FALSE, $3)
			ON CONFLICT (id) DO UPDATE SET admin = $1, price_usd = $2, last_sequence = $3
		`, p.Admin, int64(p.InitialPrice), output.Sequence)
		return err

	case "PriceUpdated":
		var p struct {
			NewPrice uint64 `json:"new_price"`
		}
		if err := json.Unmarshal(output.Payload, &p); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.protocol SET price_usd = $1, last_sequence = $2 WHERE id = 1
		`, int64(p.NewPrice), output.Sequence)
		return err

	case "ProtocolPaused":
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.protocol SET is_paused = TRUE, last_sequence = $1 WHERE id = 1
		`, output.Sequence)
		return err

	case "ProtocolUnpaused":
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.protocol SET is_paused = FALSE, last_sequence = $1 WHERE id = 1
		`, output.Sequence)
		return err

	case "AdminTransferred":
		var p struct {
			NewAdmin string `json:"new_admin"`
		}
		if err := json.Unmarshal(output.Payload, &p); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.protocol SET admin = $1, last_sequence = $2 WHERE id = 1
		`, p.NewAdmin, output.Sequence)
		return err

	case "VaultCreated":
		var p struct {
			Owner string `json:"owner"`
		}
		if err := json.Unmarshal(output.Payload, &p); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.vaults (owner, collateral_amount, debt_amount, last_sequence)
			VALUES ($1, 0, 0, $2)
			ON CONFLICT (owner) DO NOTHING
		`, p.Owner, output.Sequence); err != nil {
			return err
		}
		return pw.appendVaultHistory(ctx, tx, output, p.Owner, 0, 0)

	case "CollateralDeposited", "CollateralWithdrawn":
		var p struct {
			Owner                string `json:"owner"`
			CollateralAfter      uint64 `json:"collateral_after"`
			TotalCollateralAfter uint64 `json:"total_collateral_after"`
		}
		if err := json.Unmarshal(output.Payload, &p); err != nil {
			return err
		}
		var debt int64
		if err := tx.QueryRowContext(ctx, `
			SELECT debt_amount FROM projections.vaults WHERE owner = $1
		`, p.Owner).Scan(&debt); err != nil && err != sql.ErrNoRows {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE projections.vaults SET collateral_amount = $1, last_sequence = $2 WHERE owner = $3
		`, int64(p.CollateralAfter), output.Sequence, p.Owner); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE projections.protocol SET total_collateral = $1, last_sequence = $2 WHERE id = 1
		`, int64(p.TotalCollateralAfter), output.Sequence); err != nil {
			return err
		}
		return pw.appendVaultHistory(ctx, tx, output, p.Owner, int64(p.CollateralAfter), debt)

	case "GusdMinted", "GusdRepaid":
		var p struct {
			Owner          string `json:"owner"`
			DebtAfter      uint64 `json:"debt_after"`
			TotalDebtAfter uint64 `json:"total_debt_after"`
		}
		if err := json.Unmarshal(output.Payload, &p); err != nil {
			return err
		}
		var collateral int64
		if err := tx.QueryRowContext(ctx, `
			SELECT collateral_amount FROM projections.vaults WHERE owner = $1
		`, p.Owner).Scan(&collateral); err != nil && err != sql.ErrNoRows {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE projections.vaults SET debt_amount = $1, last_sequence = $2 WHERE owner = $3
		`, int64(p.DebtAfter), output.Sequence, p.Owner); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE projections.protocol SET total_debt = $1, last_sequence = $2 WHERE id = 1
		`, int64(p.TotalDebtAfter), output.Sequence); err != nil {
			return err
		}
		return pw.appendVaultHistory(ctx, tx, output, p.Owner, collateral, int64(p.DebtAfter))

	case "VaultLiquidated":
		var p struct {
			VaultOwner       string `json:"vault_owner"`
			DebtRepaid       uint64 `json:"debt_repaid"`
			CollateralSeized uint64 `json:"collateral_seized"`
			CollateralAfter  uint64 `json:"collateral_after"`
		}
		if err := json.Unmarshal(output.Payload, &p); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE projections.vaults SET collateral_amount = $1, debt_amount = 0, last_sequence = $2 WHERE owner = $3
		`, int64(p.CollateralAfter), output.Sequence, p.VaultOwner); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE projections.protocol
			SET total_collateral = total_collateral - $1,
			    total_debt = total_debt - $2,
			    last_sequence = $3
			WHERE id = 1
		`, int64(p.CollateralSeized), int64(p.DebtRepaid), output.Sequence); err != nil {
			return err
		}
		return pw.appendVaultHistory(ctx, tx, output, p.VaultOwner, int64(p.CollateralAfter), 0)

	case "VaultClosed":
		var p struct {
			Owner string `json:"owner"`
		}
		if err := json.Unmarshal(output.Payload, &p); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM projections.vaults WHERE owner = $1
		`, p.Owner); err != nil {
			return err
		}
		return pw.appendVaultHistory(ctx, tx, output, p.Owner, 0, 0)

	case "AccountFunded":
		// Balance-only event; transfers handle the projection update
		return nil
	}

	return nil
}

func (pw *ProjectionWorker) appendVaultHistory(
	ctx context.Context,
	tx *sql.Tx,
	output ProjectionOutput,
	owner string,
	collateral, debt int64,
) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.vault_history
			(owner, sequence, event_type, collateral_amount, debt_amount, payload, timestamp_us)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sequence) DO NOTHING
	`, owner, output.Sequence, output.EventType, collateral, debt, output.Payload, output.TimestampUs)
	return err
}

// updateBalanceProjection mirrors the token book convention: the debited
// account gains, the credited account loses.
func (pw *ProjectionWorker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, t TransferEntry, seq int64) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`, t.DebitAccount, t.AssetID, t.Amount, seq); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, -$3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance - $3, last_sequence = $4
	`, t.CreditAccount, t.AssetID, t.Amount, seq); err != nil {
		return err
	}

	return nil
}

// RebuildProjections rebuilds the balance projection from the event log.
// Vault and protocol projections rebuild through normal event replay.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.vaults`,
		`TRUNCATE projections.vault_history`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Rebuild debit side: debited accounts gain
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			asset_id,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.token_transfers
		GROUP BY debit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	// Subtract the credit side
	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			asset_id,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.token_transfers
		GROUP BY credit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	log.Println("INFO: projection rebuild complete")
	return nil
}
