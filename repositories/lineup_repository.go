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
	ErrLineupNotFound        = errors.New("lineup not found")
	ErrLineupGauntletInvalid = errors.New("lineup gauntlet conflict or invalid")
)

type LineupRepository interface {
	Create(ctx context.Context, exec SQLExecutor, lineup *models.Lineup) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Lineup, error)
	ListByGauntlet(ctx context.Context, exec SQLExecutor, gauntletID int) ([]*models.Lineup, error)
	Delete(ctx context.Context, exec SQLExecutor, id int) error
	DeleteByGauntletID(ctx context.Context, exec SQLExecutor, gauntletID int) error
}

type postgresLineupRepository struct {
	db *sql.DB
}

func NewPostgresLineupRepository(db *sql.DB) LineupRepository {
	return &postgresLineupRepository{db: db}
}

func (r *postgresLineupRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresLineupRepository) Create(ctx context.Context, exec SQLExecutor, lineup *models.Lineup) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO lineups (gauntlet_id, is_owner, crew_ref)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		lineup.GauntletID,
		lineup.IsOwner,
		lineup.CrewRef,
	).Scan(&lineup.ID, &lineup.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Constraint == "lineups_gauntlet_id_fkey" {
			return ErrLineupGauntletInvalid
		}
		return err
	}
	return nil
}

func (r *postgresLineupRepository) scanLineup(rowScanner interface{ Scan(...interface{}) error }) (*models.Lineup, error) {
	var l models.Lineup
	err := rowScanner.Scan(&l.ID, &l.GauntletID, &l.IsOwner, &l.CrewRef, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLineupNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r *postgresLineupRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Lineup, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, gauntlet_id, is_owner, crew_ref, created_at
		FROM lineups
		WHERE id = $1`
	return r.scanLineup(executor.QueryRowContext(ctx, query, id))
}

func (r *postgresLineupRepository) ListByGauntlet(ctx context.Context, exec SQLExecutor, gauntletID int) ([]*models.Lineup, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, gauntlet_id, is_owner, crew_ref, created_at
		FROM lineups
		WHERE gauntlet_id = $1
		ORDER BY id ASC`

	rows, err := executor.QueryContext(ctx, query, gauntletID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lineups for gauntlet %d: %w", gauntletID, err)
	}
	defer rows.Close()

	lineups := make([]*models.Lineup, 0)
	for rows.Next() {
		l, scanErr := r.scanLineup(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		lineups = append(lineups, l)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during lineup rows iteration: %w", err)
	}
	return lineups, nil
}

func (r *postgresLineupRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `DELETE FROM lineups WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrLineupNotFound)
}

func (r *postgresLineupRepository) DeleteByGauntletID(ctx context.Context, exec SQLExecutor, gauntletID int) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx, `DELETE FROM lineups WHERE gauntlet_id = $1`, gauntletID)
	return err
}
