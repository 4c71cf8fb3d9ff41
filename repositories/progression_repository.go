package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/oarlock/gauntlet-system/models"
)

type ProgressionRepository interface {
	Create(ctx context.Context, exec SQLExecutor, progression *models.Progression) error
	// ListByGauntlet returns the audit log oldest first. A non-nil lineupID
	// restricts the log to a single lineup.
	ListByGauntlet(ctx context.Context, exec SQLExecutor, gauntletID int, lineupID *int) ([]*models.Progression, error)
	DeleteByLineupID(ctx context.Context, exec SQLExecutor, lineupID int) error
	DeleteByMatchID(ctx context.Context, exec SQLExecutor, matchID int) error
	DeleteByGauntletID(ctx context.Context, exec SQLExecutor, gauntletID int) error
}

type postgresProgressionRepository struct {
	db *sql.DB
}

func NewPostgresProgressionRepository(db *sql.DB) ProgressionRepository {
	return &postgresProgressionRepository{db: db}
}

func (r *postgresProgressionRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresProgressionRepository) Create(ctx context.Context, exec SQLExecutor, progression *models.Progression) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO progressions
			(gauntlet_id, lineup_id, from_position, to_position, change, reason, match_id, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		progression.GauntletID,
		progression.LineupID,
		progression.FromPosition,
		progression.ToPosition,
		progression.Change,
		progression.Reason,
		progression.MatchID,
		progression.Notes,
	).Scan(&progression.ID, &progression.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert progression for lineup %d: %w", progression.LineupID, err)
	}
	return nil
}

func (r *postgresProgressionRepository) ListByGauntlet(ctx context.Context, exec SQLExecutor, gauntletID int, lineupID *int) ([]*models.Progression, error) {
	executor := r.getExecutor(exec)

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT id, gauntlet_id, lineup_id, from_position, to_position, change, reason, match_id, notes, created_at
		FROM progressions
		WHERE gauntlet_id = $1`)

	args := []interface{}{gauntletID}
	if lineupID != nil {
		queryBuilder.WriteString(" AND lineup_id = $")
		queryBuilder.WriteString(strconv.Itoa(len(args) + 1))
		args = append(args, *lineupID)
	}
	queryBuilder.WriteString(" ORDER BY created_at ASC, id ASC")

	rows, err := executor.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query progressions for gauntlet %d: %w", gauntletID, err)
	}
	defer rows.Close()

	progressions := make([]*models.Progression, 0)
	for rows.Next() {
		var p models.Progression
		if scanErr := rows.Scan(
			&p.ID,
			&p.GauntletID,
			&p.LineupID,
			&p.FromPosition,
			&p.ToPosition,
			&p.Change,
			&p.Reason,
			&p.MatchID,
			&p.Notes,
			&p.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan progression row: %w", scanErr)
		}
		progressions = append(progressions, &p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during progression rows iteration: %w", err)
	}
	return progressions, nil
}

func (r *postgresProgressionRepository) DeleteByLineupID(ctx context.Context, exec SQLExecutor, lineupID int) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx, `DELETE FROM progressions WHERE lineup_id = $1`, lineupID)
	return err
}

func (r *postgresProgressionRepository) DeleteByMatchID(ctx context.Context, exec SQLExecutor, matchID int) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx, `DELETE FROM progressions WHERE match_id = $1`, matchID)
	return err
}

func (r *postgresProgressionRepository) DeleteByGauntletID(ctx context.Context, exec SQLExecutor, gauntletID int) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx, `DELETE FROM progressions WHERE gauntlet_id = $1`, gauntletID)
	return err
}
