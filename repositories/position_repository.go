package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/oarlock/gauntlet-system/models"
)

var (
	ErrPositionNotFound       = errors.New("ladder position not found")
	ErrPositionLineupConflict = errors.New("lineup already holds a position in this gauntlet")
)

type PositionRepository interface {
	Create(ctx context.Context, exec SQLExecutor, position *models.Position) error
	GetByGauntletAndLineup(ctx context.Context, exec SQLExecutor, gauntletID, lineupID int) (*models.Position, error)
	// ListByGauntlet returns positions ordered top of the ladder first.
	ListByGauntlet(ctx context.Context, exec SQLExecutor, gauntletID int) ([]*models.Position, error)
	MaxPosition(ctx context.Context, exec SQLExecutor, gauntletID int) (int, error)
	Update(ctx context.Context, exec SQLExecutor, position *models.Position) error
	DeleteByLineupID(ctx context.Context, exec SQLExecutor, lineupID int) error
	DeleteByGauntletID(ctx context.Context, exec SQLExecutor, gauntletID int) error
}

type postgresPositionRepository struct {
	db *sql.DB
}

func NewPostgresPositionRepository(db *sql.DB) PositionRepository {
	return &postgresPositionRepository{db: db}
}

func (r *postgresPositionRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresPositionRepository) Create(ctx context.Context, exec SQLExecutor, position *models.Position) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO positions
			(gauntlet_id, lineup_id, position, previous_position, wins, losses, draws,
			 total_matches, win_rate, points, streak_type, streak_count, last_match_date, joined_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`

	err := executor.QueryRowContext(ctx, query,
		position.GauntletID,
		position.LineupID,
		position.Position,
		position.PreviousPosition,
		position.Wins,
		position.Losses,
		position.Draws,
		position.TotalMatches,
		position.WinRate,
		position.Points,
		position.StreakType,
		position.StreakCount,
		position.LastMatchDate,
		position.JoinedDate,
	).Scan(&position.ID)

	return r.handlePositionError(err)
}

func (r *postgresPositionRepository) scanPosition(rowScanner interface{ Scan(...interface{}) error }) (*models.Position, error) {
	var p models.Position
	err := rowScanner.Scan(
		&p.ID,
		&p.GauntletID,
		&p.LineupID,
		&p.Position,
		&p.PreviousPosition,
		&p.Wins,
		&p.Losses,
		&p.Draws,
		&p.TotalMatches,
		&p.WinRate,
		&p.Points,
		&p.StreakType,
		&p.StreakCount,
		&p.LastMatchDate,
		&p.JoinedDate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *postgresPositionRepository) GetByGauntletAndLineup(ctx context.Context, exec SQLExecutor, gauntletID, lineupID int) (*models.Position, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, gauntlet_id, lineup_id, position, previous_position, wins, losses, draws,
		       total_matches, win_rate, points, streak_type, streak_count, last_match_date, joined_date
		FROM positions
		WHERE gauntlet_id = $1 AND lineup_id = $2`
	return r.scanPosition(executor.QueryRowContext(ctx, query, gauntletID, lineupID))
}

func (r *postgresPositionRepository) ListByGauntlet(ctx context.Context, exec SQLExecutor, gauntletID int) ([]*models.Position, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, gauntlet_id, lineup_id, position, previous_position, wins, losses, draws,
		       total_matches, win_rate, points, streak_type, streak_count, last_match_date, joined_date
		FROM positions
		WHERE gauntlet_id = $1
		ORDER BY position ASC`

	rows, err := executor.QueryContext(ctx, query, gauntletID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions for gauntlet %d: %w", gauntletID, err)
	}
	defer rows.Close()

	positions := make([]*models.Position, 0)
	for rows.Next() {
		p, scanErr := r.scanPosition(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		positions = append(positions, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during position rows iteration: %w", err)
	}
	return positions, nil
}

func (r *postgresPositionRepository) MaxPosition(ctx context.Context, exec SQLExecutor, gauntletID int) (int, error) {
	executor := r.getExecutor(exec)
	query := `SELECT COALESCE(MAX(position), 0) FROM positions WHERE gauntlet_id = $1`

	var max int
	if err := executor.QueryRowContext(ctx, query, gauntletID).Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to compute max position for gauntlet %d: %w", gauntletID, err)
	}
	return max, nil
}

func (r *postgresPositionRepository) Update(ctx context.Context, exec SQLExecutor, position *models.Position) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE positions SET
			position = $1, previous_position = $2, wins = $3, losses = $4, draws = $5,
			total_matches = $6, win_rate = $7, points = $8, streak_type = $9,
			streak_count = $10, last_match_date = $11
		WHERE id = $12`

	result, err := executor.ExecContext(ctx, query,
		position.Position,
		position.PreviousPosition,
		position.Wins,
		position.Losses,
		position.Draws,
		position.TotalMatches,
		position.WinRate,
		position.Points,
		position.StreakType,
		position.StreakCount,
		position.LastMatchDate,
		position.ID,
	)
	if err != nil {
		return r.handlePositionError(err)
	}
	return checkAffectedRows(result, ErrPositionNotFound)
}

func (r *postgresPositionRepository) DeleteByLineupID(ctx context.Context, exec SQLExecutor, lineupID int) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx, `DELETE FROM positions WHERE lineup_id = $1`, lineupID)
	return err
}

func (r *postgresPositionRepository) DeleteByGauntletID(ctx context.Context, exec SQLExecutor, gauntletID int) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx, `DELETE FROM positions WHERE gauntlet_id = $1`, gauntletID)
	return err
}

func (r *postgresPositionRepository) handlePositionError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Constraint {
		case "positions_gauntlet_id_lineup_id_key":
			return ErrPositionLineupConflict
		case "positions_gauntlet_id_fkey":
			return ErrGauntletNotFound
		case "positions_lineup_id_fkey":
			return ErrLineupNotFound
		}
	}
	return err
}
