package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spxlabs/command-core/internal/models"
)

// journalQuerier is the slice of the pgx pool the repository needs; it lets
// tests substitute a mock connection.
type journalQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// JournalRepository archives trade journal artifacts beyond the in-memory
// summarizer window.
type JournalRepository struct {
	db journalQuerier
}

func NewJournalRepository(db journalQuerier) *JournalRepository {
	return &JournalRepository{db: db}
}

const insertArtifactSQL = `
	INSERT INTO trade_journal_artifacts (
		id, setup_id, setup_type, direction, regime,
		opened_at, closed_at, hold_minutes,
		entry_price, exit_price, pnl_points, pnl_currency,
		contract, contract_mid_in, contract_mid_out,
		adherence_score, expectancy_r,
		stop_at_entry, target1_at_entry, target2_at_entry
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
	)
	ON CONFLICT (id) DO NOTHING`

// InsertArtifact persists one artifact. Re-inserting the same id is a no-op.
func (r *JournalRepository) InsertArtifact(ctx context.Context, artifact *models.TradeJournalArtifact) error {
	_, err := r.db.Exec(ctx, insertArtifactSQL,
		artifact.ID, artifact.SetupID, artifact.SetupType, artifact.Direction, artifact.Regime,
		artifact.OpenedAt, artifact.ClosedAt, artifact.HoldMinutes,
		artifact.EntryPrice, artifact.ExitPrice, artifact.PnLPoints, artifact.PnLCurrency,
		artifact.Contract, artifact.ContractMidIn, artifact.ContractMidOut,
		artifact.AdherenceScore, artifact.ExpectancyR,
		artifact.StopAtEntry, artifact.Target1AtEntry, artifact.Target2AtEntry,
	)
	if err != nil {
		return fmt.Errorf("insert journal artifact: %w", err)
	}
	return nil
}

const listArtifactsSQL = `
	SELECT id, setup_id, setup_type, direction, regime,
		opened_at, closed_at, hold_minutes,
		entry_price, exit_price, pnl_points, pnl_currency,
		contract, contract_mid_in, contract_mid_out,
		adherence_score, expectancy_r,
		stop_at_entry, target1_at_entry, target2_at_entry
	FROM trade_journal_artifacts
	ORDER BY closed_at DESC
	LIMIT $1`

// ListArtifacts returns the most recently closed artifacts, newest first.
func (r *JournalRepository) ListArtifacts(ctx context.Context, limit int) ([]models.TradeJournalArtifact, error) {
	if limit <= 0 {
		limit = 240
	}
	rows, err := r.db.Query(ctx, listArtifactsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list journal artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []models.TradeJournalArtifact
	for rows.Next() {
		var a models.TradeJournalArtifact
		if err := rows.Scan(
			&a.ID, &a.SetupID, &a.SetupType, &a.Direction, &a.Regime,
			&a.OpenedAt, &a.ClosedAt, &a.HoldMinutes,
			&a.EntryPrice, &a.ExitPrice, &a.PnLPoints, &a.PnLCurrency,
			&a.Contract, &a.ContractMidIn, &a.ContractMidOut,
			&a.AdherenceScore, &a.ExpectancyR,
			&a.StopAtEntry, &a.Target1AtEntry, &a.Target2AtEntry,
		); err != nil {
			return nil, fmt.Errorf("scan journal artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal artifacts: %w", err)
	}
	return artifacts, nil
}
