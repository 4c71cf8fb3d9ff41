package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oarlock/gauntlet-system/models"
	"github.com/oarlock/gauntlet-system/repositories"
)

// LifecycleService keeps the ranking data consistent as upstream entities are
// removed. Every cascade is a single all-or-nothing transaction under the same
// per-gauntlet lock the ranking engine takes, so a cascade never interleaves
// with a match being applied.
type LifecycleService interface {
	// DeleteGauntlet removes the gauntlet and everything entered under it:
	// lineups, matches, positions, progressions.
	DeleteGauntlet(ctx context.Context, gauntletID int) error
	// DeleteLineup removes one lineup with its position and progressions and
	// closes the gap: every lineup below shifts up one rung, audited as
	// manual_adjustment progressions. Matches the lineup rowed in are kept as
	// historical records.
	DeleteLineup(ctx context.Context, lineupID int) error
	// DeleteMatch removes the match and the progressions referencing it.
	// Position statistics are deliberately NOT rolled back: purging a match is
	// a data-retention action, not an undo.
	DeleteMatch(ctx context.Context, matchID int) error
}

type lifecycleService struct {
	db              *sql.DB
	gauntletRepo    repositories.GauntletRepository
	lineupRepo      repositories.LineupRepository
	matchRepo       repositories.MatchRepository
	positionRepo    repositories.PositionRepository
	progressionRepo repositories.ProgressionRepository
	engine          RankingEngine
	locker          *GauntletLocker
	hub             LadderBroadcaster
	logger          *slog.Logger
}

func NewLifecycleService(
	db *sql.DB,
	gauntletRepo repositories.GauntletRepository,
	lineupRepo repositories.LineupRepository,
	matchRepo repositories.MatchRepository,
	positionRepo repositories.PositionRepository,
	progressionRepo repositories.ProgressionRepository,
	engine RankingEngine,
	locker *GauntletLocker,
	hub LadderBroadcaster,
	logger *slog.Logger,
) LifecycleService {
	return &lifecycleService{
		db:              db,
		gauntletRepo:    gauntletRepo,
		lineupRepo:      lineupRepo,
		matchRepo:       matchRepo,
		positionRepo:    positionRepo,
		progressionRepo: progressionRepo,
		engine:          engine,
		locker:          locker,
		hub:             hub,
		logger:          logger,
	}
}

func (s *lifecycleService) DeleteGauntlet(ctx context.Context, gauntletID int) error {
	if _, err := s.gauntletRepo.GetByID(ctx, nil, gauntletID); err != nil {
		if errors.Is(err, repositories.ErrGauntletNotFound) {
			return fmt.Errorf("%w: gauntlet %d", ErrGauntletNotFound, gauntletID)
		}
		return err
	}

	release, err := s.locker.Lock(ctx, gauntletID)
	if err != nil {
		return err
	}
	defer release()

	return s.runTx(ctx, gauntletID, func(tx *sql.Tx) error {
		// Child rows first; the gauntlet row last.
		if err := s.progressionRepo.DeleteByGauntletID(ctx, tx, gauntletID); err != nil {
			return err
		}
		if err := s.positionRepo.DeleteByGauntletID(ctx, tx, gauntletID); err != nil {
			return err
		}
		if err := s.matchRepo.DeleteByGauntletID(ctx, tx, gauntletID); err != nil {
			return err
		}
		if err := s.lineupRepo.DeleteByGauntletID(ctx, tx, gauntletID); err != nil {
			return err
		}
		return s.gauntletRepo.Delete(ctx, tx, gauntletID)
	})
}

func (s *lifecycleService) DeleteLineup(ctx context.Context, lineupID int) error {
	lineup, err := s.lineupRepo.GetByID(ctx, nil, lineupID)
	if err != nil {
		if errors.Is(err, repositories.ErrLineupNotFound) {
			return fmt.Errorf("%w: lineup %d", ErrLineupNotFound, lineupID)
		}
		return err
	}

	release, err := s.locker.Lock(ctx, lineup.GauntletID)
	if err != nil {
		return err
	}
	defer release()

	var ladder []*models.Position
	err = s.runTx(ctx, lineup.GauntletID, func(tx *sql.Tx) error {
		removed, err := s.positionRepo.GetByGauntletAndLineup(ctx, tx, lineup.GauntletID, lineupID)
		if err != nil && !errors.Is(err, repositories.ErrPositionNotFound) {
			return err
		}

		if err := s.progressionRepo.DeleteByLineupID(ctx, tx, lineupID); err != nil {
			return err
		}
		if err := s.positionRepo.DeleteByLineupID(ctx, tx, lineupID); err != nil {
			return err
		}

		if removed != nil {
			if err := s.closeLadderGap(ctx, tx, lineup.GauntletID, removed.Position); err != nil {
				return err
			}
		}

		if err := s.lineupRepo.Delete(ctx, tx, lineupID); err != nil {
			return err
		}

		if err := s.engine.VerifyInvariants(ctx, tx, lineup.GauntletID); err != nil {
			s.logger.Error("ladder invariants violated after lineup removal, aborting",
				slog.Int("gauntlet_id", lineup.GauntletID),
				slog.Int("lineup_id", lineupID),
				slog.Any("error", err))
			return err
		}

		ladder, err = s.positionRepo.ListByGauntlet(ctx, tx, lineup.GauntletID)
		return err
	})
	if err != nil {
		return err
	}

	broadcastLadder(s.hub, lineup.GauntletID, ladder)
	return nil
}

// closeLadderGap shifts every lineup ranked below the removed rung up by one,
// emitting one manual_adjustment progression per shifted lineup so the audit
// trail explains the gap closure.
func (s *lifecycleService) closeLadderGap(ctx context.Context, tx *sql.Tx, gauntletID, removedPosition int) error {
	positions, err := s.positionRepo.ListByGauntlet(ctx, tx, gauntletID)
	if err != nil {
		return err
	}

	note := "ladder closed up after lineup removal"
	for _, p := range positions {
		if p.Position <= removedPosition {
			continue
		}
		p.PreviousPosition = p.Position
		p.Position--
		if err := s.positionRepo.Update(ctx, tx, p); err != nil {
			return err
		}
		if err := s.progressionRepo.Create(ctx, tx, newProgression(p, models.ReasonManualAdjustment, nil, &note)); err != nil {
			return err
		}
	}
	return nil
}

func (s *lifecycleService) DeleteMatch(ctx context.Context, matchID int) error {
	match, err := s.matchRepo.GetByID(ctx, nil, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return fmt.Errorf("%w: match %d", ErrMatchNotFound, matchID)
		}
		return err
	}

	release, err := s.locker.Lock(ctx, match.GauntletID)
	if err != nil {
		return err
	}
	defer release()

	return s.runTx(ctx, match.GauntletID, func(tx *sql.Tx) error {
		if err := s.progressionRepo.DeleteByMatchID(ctx, tx, matchID); err != nil {
			return err
		}
		return s.matchRepo.Delete(ctx, tx, matchID)
	})
}

func (s *lifecycleService) runTx(ctx context.Context, gauntletID int, fn func(tx *sql.Tx) error) (txErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if txErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("rollback failed during cascade",
					slog.Int("gauntlet_id", gauntletID), slog.Any("error", rbErr))
			}
		} else {
			if cErr := tx.Commit(); cErr != nil {
				txErr = fmt.Errorf("failed to commit cascade: %w", cErr)
			}
		}
	}()

	txErr = fn(tx)
	return txErr
}
