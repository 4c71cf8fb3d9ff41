package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/oarlock/gauntlet-system/models"
	"github.com/oarlock/gauntlet-system/repositories"
	"golang.org/x/sync/errgroup"
)

type CreateGauntletInput struct {
	Name      string `json:"name"`
	BoatClass string `json:"boat_class"`
	CreatorID int    `json:"creator_id"`
}

type AddLineupInput struct {
	IsOwner bool    `json:"is_owner"`
	CrewRef *string `json:"crew_ref,omitempty"`
}

type GauntletService interface {
	CreateGauntlet(ctx context.Context, input CreateGauntletInput) (*models.Gauntlet, error)
	// GetGauntlet returns the gauntlet with its ladder populated.
	GetGauntlet(ctx context.Context, id int) (*models.Gauntlet, error)
	// CloseGauntlet stops further matches and lineup entries.
	CloseGauntlet(ctx context.Context, id int) (*models.Gauntlet, error)
	// AddLineup registers a crew into the gauntlet and appends it to the
	// bottom of the ladder.
	AddLineup(ctx context.Context, gauntletID int, input AddLineupInput) (*models.Lineup, error)
}

type gauntletService struct {
	db           *sql.DB
	gauntletRepo repositories.GauntletRepository
	lineupRepo   repositories.LineupRepository
	positionRepo repositories.PositionRepository
	engine       RankingEngine
	locker       *GauntletLocker
	hub          LadderBroadcaster
	logger       *slog.Logger
}

func NewGauntletService(
	db *sql.DB,
	gauntletRepo repositories.GauntletRepository,
	lineupRepo repositories.LineupRepository,
	positionRepo repositories.PositionRepository,
	engine RankingEngine,
	locker *GauntletLocker,
	hub LadderBroadcaster,
	logger *slog.Logger,
) GauntletService {
	return &gauntletService{
		db:           db,
		gauntletRepo: gauntletRepo,
		lineupRepo:   lineupRepo,
		positionRepo: positionRepo,
		engine:       engine,
		locker:       locker,
		hub:          hub,
		logger:       logger,
	}
}

func (s *gauntletService) CreateGauntlet(ctx context.Context, input CreateGauntletInput) (*models.Gauntlet, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, ErrGauntletNameRequired
	}
	if strings.TrimSpace(input.BoatClass) == "" {
		return nil, ErrBoatClassRequired
	}

	gauntlet := &models.Gauntlet{
		Name:      strings.TrimSpace(input.Name),
		BoatClass: strings.TrimSpace(input.BoatClass),
		CreatorID: input.CreatorID,
		Status:    models.GauntletStatusActive,
	}
	if err := s.gauntletRepo.Create(ctx, nil, gauntlet); err != nil {
		return nil, fmt.Errorf("failed to create gauntlet: %w", err)
	}
	return gauntlet, nil
}

func (s *gauntletService) GetGauntlet(ctx context.Context, id int) (*models.Gauntlet, error) {
	var (
		gauntlet  *models.Gauntlet
		positions []*models.Position
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		gauntlet, err = s.gauntletRepo.GetByID(gCtx, nil, id)
		if err != nil {
			if errors.Is(err, repositories.ErrGauntletNotFound) {
				return fmt.Errorf("%w: gauntlet %d", ErrGauntletNotFound, id)
			}
			return err
		}
		return nil
	})
	g.Go(func() error {
		var err error
		positions, err = s.positionRepo.ListByGauntlet(gCtx, nil, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	gauntlet.Ladder = make([]models.Position, 0, len(positions))
	for _, p := range positions {
		if p != nil {
			gauntlet.Ladder = append(gauntlet.Ladder, *p)
		}
	}
	return gauntlet, nil
}

func (s *gauntletService) CloseGauntlet(ctx context.Context, id int) (*models.Gauntlet, error) {
	gauntlet, err := s.gauntletRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrGauntletNotFound) {
			return nil, fmt.Errorf("%w: gauntlet %d", ErrGauntletNotFound, id)
		}
		return nil, err
	}
	if gauntlet.Status == models.GauntletStatusClosed {
		return gauntlet, nil
	}

	if err := s.gauntletRepo.UpdateStatus(ctx, nil, id, models.GauntletStatusClosed); err != nil {
		return nil, err
	}
	gauntlet.Status = models.GauntletStatusClosed
	return gauntlet, nil
}

func (s *gauntletService) AddLineup(ctx context.Context, gauntletID int, input AddLineupInput) (*models.Lineup, error) {
	release, err := s.locker.Lock(ctx, gauntletID)
	if err != nil {
		return nil, err
	}
	defer release()

	gauntlet, err := s.gauntletRepo.GetByID(ctx, nil, gauntletID)
	if err != nil {
		if errors.Is(err, repositories.ErrGauntletNotFound) {
			return nil, fmt.Errorf("%w: gauntlet %d", ErrGauntletNotFound, gauntletID)
		}
		return nil, err
	}
	if gauntlet.Status != models.GauntletStatusActive {
		return nil, fmt.Errorf("%w: gauntlet %d", ErrGauntletClosed, gauntletID)
	}

	lineup := &models.Lineup{
		GauntletID: gauntletID,
		IsOwner:    input.IsOwner,
		CrewRef:    input.CrewRef,
	}

	ladder, err := s.addLineupTx(ctx, lineup)
	if err != nil {
		return nil, err
	}

	broadcastLadder(s.hub, gauntletID, ladder)
	return lineup, nil
}

func (s *gauntletService) addLineupTx(ctx context.Context, lineup *models.Lineup) (ladder []*models.Position, txErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if txErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("rollback failed after lineup entry error",
					slog.Int("gauntlet_id", lineup.GauntletID), slog.Any("error", rbErr))
			}
		} else {
			if cErr := tx.Commit(); cErr != nil {
				ladder = nil
				txErr = fmt.Errorf("failed to commit lineup entry: %w", cErr)
			}
		}
	}()

	if txErr = s.lineupRepo.Create(ctx, tx, lineup); txErr != nil {
		return nil, txErr
	}
	if _, txErr = s.engine.EnterLineup(ctx, tx, lineup.GauntletID, lineup.ID, nil); txErr != nil {
		return nil, txErr
	}
	if txErr = s.engine.VerifyInvariants(ctx, tx, lineup.GauntletID); txErr != nil {
		s.logger.Error("ladder invariants violated after lineup entry, aborting",
			slog.Int("gauntlet_id", lineup.GauntletID), slog.Any("error", txErr))
		return nil, txErr
	}
	if ladder, txErr = s.positionRepo.ListByGauntlet(ctx, tx, lineup.GauntletID); txErr != nil {
		return nil, txErr
	}
	return ladder, nil
}
