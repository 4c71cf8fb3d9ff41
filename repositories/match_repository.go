package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/oarlock/gauntlet-system/models"
)

var (
	ErrMatchNotFound        = errors.New("match not found")
	ErrMatchDuplicate       = errors.New("identical match already recorded")
	ErrMatchGauntletInvalid = errors.New("match gauntlet conflict or invalid")
)

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	ListByGauntlet(ctx context.Context, exec SQLExecutor, gauntletID int) ([]*models.Match, error)
	// ExistsForPairOnDate reports whether a match between the two lineups (in
	// either order) is already recorded for the given calendar date.
	ExistsForPairOnDate(ctx context.Context, exec SQLExecutor, gauntletID, lineupAID, lineupBID int, matchDate time.Time) (bool, error)
	Delete(ctx context.Context, exec SQLExecutor, id int) error
	DeleteByGauntletID(ctx context.Context, exec SQLExecutor, gauntletID int) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO matches
			(gauntlet_id, lineup_a_id, lineup_b_id, workout, total_sets,
			 sets_won_a, sets_won_b, match_date, notes, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		match.GauntletID,
		match.LineupAID,
		match.LineupBID,
		match.Workout,
		match.TotalSets,
		match.SetsWonA,
		match.SetsWonB,
		match.MatchDate,
		match.Notes,
		match.IdempotencyKey,
	).Scan(&match.ID, &match.CreatedAt)

	return r.handleMatchError(err)
}

func (r *postgresMatchRepository) scanMatch(rowScanner interface{ Scan(...interface{}) error }) (*models.Match, error) {
	var m models.Match
	err := rowScanner.Scan(
		&m.ID,
		&m.GauntletID,
		&m.LineupAID,
		&m.LineupBID,
		&m.Workout,
		&m.TotalSets,
		&m.SetsWonA,
		&m.SetsWonB,
		&m.MatchDate,
		&m.Notes,
		&m.IdempotencyKey,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, gauntlet_id, lineup_a_id, lineup_b_id, workout, total_sets,
		       sets_won_a, sets_won_b, match_date, notes, idempotency_key, created_at
		FROM matches
		WHERE id = $1`
	return r.scanMatch(executor.QueryRowContext(ctx, query, id))
}

func (r *postgresMatchRepository) ListByGauntlet(ctx context.Context, exec SQLExecutor, gauntletID int) ([]*models.Match, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, gauntlet_id, lineup_a_id, lineup_b_id, workout, total_sets,
		       sets_won_a, sets_won_b, match_date, notes, idempotency_key, created_at
		FROM matches
		WHERE gauntlet_id = $1
		ORDER BY match_date ASC, id ASC`

	rows, err := executor.QueryContext(ctx, query, gauntletID)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for gauntlet %d: %w", gauntletID, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		m, scanErr := r.scanMatch(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		matches = append(matches, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) ExistsForPairOnDate(ctx context.Context, exec SQLExecutor, gauntletID, lineupAID, lineupBID int, matchDate time.Time) (bool, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT EXISTS (
			SELECT 1 FROM matches
			WHERE gauntlet_id = $1
			  AND ((lineup_a_id = $2 AND lineup_b_id = $3) OR (lineup_a_id = $3 AND lineup_b_id = $2))
			  AND match_date::date = $4::date
		)`

	var exists bool
	err := executor.QueryRowContext(ctx, query, gauntletID, lineupAID, lineupBID, matchDate).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate match for gauntlet %d: %w", gauntletID, err)
	}
	return exists, nil
}

func (r *postgresMatchRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `DELETE FROM matches WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) DeleteByGauntletID(ctx context.Context, exec SQLExecutor, gauntletID int) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx, `DELETE FROM matches WHERE gauntlet_id = $1`, gauntletID)
	return err
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		// "23503": foreign_key_violation, "23505": unique_violation
		switch pqErr.Constraint {
		case "matches_gauntlet_id_fkey":
			return ErrMatchGauntletInvalid
		case "matches_lineup_a_id_fkey", "matches_lineup_b_id_fkey":
			return ErrLineupNotFound
		case "matches_idempotency_key_key":
			return ErrMatchDuplicate
		}
	}
	return err
}
