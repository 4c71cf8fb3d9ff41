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
	ErrGauntletNotFound       = errors.New("gauntlet not found")
	ErrGauntletCreatorInvalid = errors.New("gauntlet creator conflict or invalid")
	ErrGauntletNameConflict   = errors.New("gauntlet name already exists for this boat class")
)

type GauntletRepository interface {
	Create(ctx context.Context, exec SQLExecutor, gauntlet *models.Gauntlet) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Gauntlet, error)
	ListByStatus(ctx context.Context, exec SQLExecutor, status models.GauntletStatus) ([]*models.Gauntlet, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.GauntletStatus) error
	Delete(ctx context.Context, exec SQLExecutor, id int) error
}

type postgresGauntletRepository struct {
	db *sql.DB
}

func NewPostgresGauntletRepository(db *sql.DB) GauntletRepository {
	return &postgresGauntletRepository{db: db}
}

func (r *postgresGauntletRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresGauntletRepository) Create(ctx context.Context, exec SQLExecutor, gauntlet *models.Gauntlet) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO gauntlets (name, boat_class, creator_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		gauntlet.Name,
		gauntlet.BoatClass,
		gauntlet.CreatorID,
		gauntlet.Status,
	).Scan(&gauntlet.ID, &gauntlet.CreatedAt)

	return r.handleGauntletError(err)
}

func (r *postgresGauntletRepository) scanGauntlet(rowScanner interface{ Scan(...interface{}) error }) (*models.Gauntlet, error) {
	var g models.Gauntlet
	err := rowScanner.Scan(&g.ID, &g.Name, &g.BoatClass, &g.CreatorID, &g.Status, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGauntletNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (r *postgresGauntletRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Gauntlet, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, name, boat_class, creator_id, status, created_at
		FROM gauntlets
		WHERE id = $1`
	return r.scanGauntlet(executor.QueryRowContext(ctx, query, id))
}

func (r *postgresGauntletRepository) ListByStatus(ctx context.Context, exec SQLExecutor, status models.GauntletStatus) ([]*models.Gauntlet, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, name, boat_class, creator_id, status, created_at
		FROM gauntlets
		WHERE status = $1
		ORDER BY id ASC`

	rows, err := executor.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query gauntlets by status %s: %w", status, err)
	}
	defer rows.Close()

	gauntlets := make([]*models.Gauntlet, 0)
	for rows.Next() {
		g, scanErr := r.scanGauntlet(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		gauntlets = append(gauntlets, g)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during gauntlet rows iteration: %w", err)
	}
	return gauntlets, nil
}

func (r *postgresGauntletRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.GauntletStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE gauntlets SET status = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, status, id)
	if err != nil {
		return r.handleGauntletError(err)
	}
	return checkAffectedRows(result, ErrGauntletNotFound)
}

func (r *postgresGauntletRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	query := `DELETE FROM gauntlets WHERE id = $1`
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrGauntletNotFound)
}

func (r *postgresGauntletRepository) handleGauntletError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Constraint {
		case "gauntlets_creator_id_fkey":
			return ErrGauntletCreatorInvalid
		case "gauntlets_name_boat_class_key":
			return ErrGauntletNameConflict
		}
	}
	return err
}
