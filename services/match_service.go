package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/oarlock/gauntlet-system/models"
	"github.com/oarlock/gauntlet-system/repositories"
)

// RecordMatchInput carries one match outcome submitted by a caller.
type RecordMatchInput struct {
	GauntletID     int       `json:"gauntlet_id"`
	LineupAID      int       `json:"lineup_a_id"`
	LineupBID      int       `json:"lineup_b_id"`
	SetsWonA       int       `json:"sets_won_a"`
	SetsWonB       int       `json:"sets_won_b"`
	TotalSets      int       `json:"total_sets"`
	MatchDate      time.Time `json:"match_date"`
	Workout        *string   `json:"workout,omitempty"`
	Notes          *string   `json:"notes,omitempty"`
	IdempotencyKey *string   `json:"idempotency_key,omitempty"`
}

type MatchService interface {
	// RecordMatch validates and persists one match, then synchronously applies
	// its ranking effects in the same transaction. The match either commits
	// fully or nothing is visible.
	RecordMatch(ctx context.Context, input RecordMatchInput) (*models.Match, error)
	GetMatch(ctx context.Context, id int) (*models.Match, error)
	ListMatchesByGauntlet(ctx context.Context, gauntletID int) ([]*models.Match, error)
}

type matchService struct {
	db           *sql.DB
	gauntletRepo repositories.GauntletRepository
	lineupRepo   repositories.LineupRepository
	matchRepo    repositories.MatchRepository
	positionRepo repositories.PositionRepository
	engine       RankingEngine
	locker       *GauntletLocker
	hub          LadderBroadcaster
	logger       *slog.Logger
}

func NewMatchService(
	db *sql.DB,
	gauntletRepo repositories.GauntletRepository,
	lineupRepo repositories.LineupRepository,
	matchRepo repositories.MatchRepository,
	positionRepo repositories.PositionRepository,
	engine RankingEngine,
	locker *GauntletLocker,
	hub LadderBroadcaster,
	logger *slog.Logger,
) MatchService {
	return &matchService{
		db:           db,
		gauntletRepo: gauntletRepo,
		lineupRepo:   lineupRepo,
		matchRepo:    matchRepo,
		positionRepo: positionRepo,
		engine:       engine,
		locker:       locker,
		hub:          hub,
		logger:       logger,
	}
}

func validateRecordMatchInput(input RecordMatchInput) error {
	if input.LineupAID == input.LineupBID {
		return fmt.Errorf("%w: lineup %d on both sides", ErrSameLineup, input.LineupAID)
	}
	if input.TotalSets < 0 || input.SetsWonA < 0 || input.SetsWonB < 0 {
		return ErrNegativeSets
	}
	if input.SetsWonA+input.SetsWonB > input.TotalSets {
		return fmt.Errorf("%w: %d+%d of %d", ErrScoreExceedsSets, input.SetsWonA, input.SetsWonB, input.TotalSets)
	}
	if input.MatchDate.After(time.Now()) {
		return ErrMatchDateInFuture
	}
	return nil
}

func (s *matchService) RecordMatch(ctx context.Context, input RecordMatchInput) (*models.Match, error) {
	if err := validateRecordMatchInput(input); err != nil {
		return nil, err
	}

	release, err := s.locker.Lock(ctx, input.GauntletID)
	if err != nil {
		return nil, err
	}
	defer release()

	gauntlet, err := s.gauntletRepo.GetByID(ctx, nil, input.GauntletID)
	if err != nil {
		if errors.Is(err, repositories.ErrGauntletNotFound) {
			return nil, fmt.Errorf("%w: gauntlet %d", ErrGauntletNotFound, input.GauntletID)
		}
		return nil, err
	}
	if gauntlet.Status != models.GauntletStatusActive {
		return nil, fmt.Errorf("%w: gauntlet %d", ErrGauntletClosed, gauntlet.ID)
	}

	for _, lineupID := range []int{input.LineupAID, input.LineupBID} {
		lineup, err := s.lineupRepo.GetByID(ctx, nil, lineupID)
		if err != nil {
			if errors.Is(err, repositories.ErrLineupNotFound) {
				return nil, fmt.Errorf("%w: lineup %d", ErrLineupNotFound, lineupID)
			}
			return nil, err
		}
		if lineup.GauntletID != input.GauntletID {
			return nil, fmt.Errorf("%w: lineup %d belongs to gauntlet %d", ErrLineupMismatch, lineupID, lineup.GauntletID)
		}
	}

	exists, err := s.matchRepo.ExistsForPairOnDate(ctx, nil, input.GauntletID, input.LineupAID, input.LineupBID, input.MatchDate)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: gauntlet %d, lineups %d/%d on %s",
			ErrDuplicateMatch, input.GauntletID, input.LineupAID, input.LineupBID, input.MatchDate.Format("2006-01-02"))
	}

	key := uuid.NewString()
	if input.IdempotencyKey != nil && *input.IdempotencyKey != "" {
		key = *input.IdempotencyKey
	}
	match := &models.Match{
		GauntletID:     input.GauntletID,
		LineupAID:      input.LineupAID,
		LineupBID:      input.LineupBID,
		Workout:        input.Workout,
		TotalSets:      input.TotalSets,
		SetsWonA:       input.SetsWonA,
		SetsWonB:       input.SetsWonB,
		MatchDate:      input.MatchDate,
		Notes:          input.Notes,
		IdempotencyKey: key,
	}

	ladder, err := s.persistMatchTx(ctx, match)
	if err != nil {
		return nil, err
	}

	// Only after the commit is durable does the live feed hear about it.
	broadcastLadder(s.hub, input.GauntletID, ladder)
	return match, nil
}

func (s *matchService) persistMatchTx(ctx context.Context, match *models.Match) (ladder []*models.Position, txErr error) {
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
				s.logger.Error("rollback failed after record match error",
					slog.Int("gauntlet_id", match.GauntletID), slog.Any("error", rbErr))
			}
		} else {
			if cErr := tx.Commit(); cErr != nil {
				ladder = nil
				txErr = fmt.Errorf("failed to commit match: %w", cErr)
			}
		}
	}()

	if txErr = s.matchRepo.Create(ctx, tx, match); txErr != nil {
		if errors.Is(txErr, repositories.ErrMatchDuplicate) {
			txErr = fmt.Errorf("%w: idempotency key %s", ErrDuplicateMatch, match.IdempotencyKey)
		}
		return nil, txErr
	}

	if txErr = s.engine.ApplyMatch(ctx, tx, match); txErr != nil {
		if errors.Is(txErr, ErrInvariantViolation) {
			// Alert path: an invariant failure is an engine bug, not bad input.
			s.logger.Error("ladder invariants violated after match, aborting transaction",
				slog.Int("gauntlet_id", match.GauntletID),
				slog.Int("match_id", match.ID),
				slog.Any("error", txErr))
		}
		return nil, txErr
	}

	if ladder, txErr = s.positionRepo.ListByGauntlet(ctx, tx, match.GauntletID); txErr != nil {
		return nil, txErr
	}
	return ladder, nil
}

func (s *matchService) GetMatch(ctx context.Context, id int) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, fmt.Errorf("%w: match %d", ErrMatchNotFound, id)
		}
		return nil, err
	}
	return match, nil
}

func (s *matchService) ListMatchesByGauntlet(ctx context.Context, gauntletID int) ([]*models.Match, error) {
	matches, err := s.matchRepo.ListByGauntlet(ctx, nil, gauntletID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches for gauntlet %d: %w", gauntletID, err)
	}
	if matches == nil {
		return []*models.Match{}, nil
	}
	return matches, nil
}
