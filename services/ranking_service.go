package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/oarlock/gauntlet-system/models"
	"github.com/oarlock/gauntlet-system/repositories"
	"golang.org/x/sync/errgroup"
)

// Фиксированная схема начисления очков: win = 2, draw = 1, loss = 0.
const (
	PointsPerWin  = 2
	PointsPerDraw = 1
	PointsPerLoss = 0
)

// LadderBroadcaster pushes a refreshed ladder to live subscribers after a
// commit. Implemented by live.Hub; nil disables broadcasting.
type LadderBroadcaster interface {
	BroadcastLadderUpdate(gauntletID int, ladder []models.Position)
}

// RankingEngine is the transactional core: it is invoked by the match
// recorder and the lifecycle manager inside their own transactions.
type RankingEngine interface {
	// ApplyMatch updates statistics, streaks, points and positions of both
	// participating lineups for a persisted match and emits the progression
	// rows. Must run inside the caller's transaction, under the gauntlet lock.
	ApplyMatch(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error
	// EnterLineup creates the lineup's position at the bottom of the ladder
	// with a new_lineup progression (change = 0). matchID is non-nil when the
	// lineup enters as a brand-new challenger through a recorded match.
	EnterLineup(ctx context.Context, exec repositories.SQLExecutor, gauntletID, lineupID int, matchID *int) (*models.Position, error)
	// VerifyInvariants re-checks the ladder bookkeeping invariants and
	// returns ErrInvariantViolation if any fails.
	VerifyInvariants(ctx context.Context, exec repositories.SQLExecutor, gauntletID int) error
}

type RankingService interface {
	RankingEngine

	GetLadder(ctx context.Context, gauntletID int) ([]*models.Position, error)
	GetProgressionHistory(ctx context.Context, gauntletID int, lineupID *int) ([]*models.Progression, error)
	// AdjustPosition moves a lineup to targetPosition, shifting the lineups in
	// between. Same commit discipline as a match: per-gauntlet lock, one
	// transaction, manual_adjustment progressions, full invariant re-check.
	AdjustPosition(ctx context.Context, gauntletID, lineupID, targetPosition int, notes *string) ([]*models.Position, error)
	// ReplayLadder folds the progression log from an empty ladder and returns
	// lineup id -> position. The result must match the stored snapshot.
	ReplayLadder(ctx context.Context, gauntletID int) (map[int]int, error)
}

type rankingService struct {
	db              *sql.DB
	gauntletRepo    repositories.GauntletRepository
	positionRepo    repositories.PositionRepository
	progressionRepo repositories.ProgressionRepository
	locker          *GauntletLocker
	hub             LadderBroadcaster
	logger          *slog.Logger
}

func NewRankingService(
	db *sql.DB,
	gauntletRepo repositories.GauntletRepository,
	positionRepo repositories.PositionRepository,
	progressionRepo repositories.ProgressionRepository,
	locker *GauntletLocker,
	hub LadderBroadcaster,
	logger *slog.Logger,
) RankingService {
	return &rankingService{
		db:              db,
		gauntletRepo:    gauntletRepo,
		positionRepo:    positionRepo,
		progressionRepo: progressionRepo,
		locker:          locker,
		hub:             hub,
		logger:          logger,
	}
}

func (s *rankingService) ApplyMatch(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error {
	posA, err := s.positionForLineup(ctx, exec, match.GauntletID, match.LineupAID, &match.ID)
	if err != nil {
		return err
	}
	posB, err := s.positionForLineup(ctx, exec, match.GauntletID, match.LineupBID, &match.ID)
	if err != nil {
		return err
	}

	var outcomeA, outcomeB models.StreakType
	switch {
	case match.SetsWonA > match.SetsWonB:
		outcomeA, outcomeB = models.StreakWin, models.StreakLoss
	case match.SetsWonA < match.SetsWonB:
		outcomeA, outcomeB = models.StreakLoss, models.StreakWin
	default:
		outcomeA, outcomeB = models.StreakDraw, models.StreakDraw
	}

	// total_sets = 0 is a forfeit/placeholder: counted, scoreless, no points.
	forfeit := match.TotalSets == 0
	applyOutcomeStats(posA, outcomeA, forfeit, match.MatchDate)
	applyOutcomeStats(posB, outcomeB, forfeit, match.MatchDate)

	// Challenge-ladder rule: only a lower-ranked winner climbs, by swapping
	// with the loser. Draws and wins by the higher-ranked side change nothing.
	var winner, loser *models.Position
	if outcomeA == models.StreakWin {
		winner, loser = posA, posB
	} else if outcomeB == models.StreakWin {
		winner, loser = posB, posA
	}

	var progressions []*models.Progression
	if winner != nil && winner.Position > loser.Position {
		winner.PreviousPosition = winner.Position
		loser.PreviousPosition = loser.Position
		winner.Position, loser.Position = loser.Position, winner.Position

		progressions = append(progressions,
			newProgression(winner, models.ReasonMatchWin, &match.ID, nil),
			newProgression(loser, models.ReasonMatchLoss, &match.ID, nil),
		)
	}

	if err := s.positionRepo.Update(ctx, exec, posA); err != nil {
		return fmt.Errorf("failed to update position of lineup %d: %w", posA.LineupID, err)
	}
	if err := s.positionRepo.Update(ctx, exec, posB); err != nil {
		return fmt.Errorf("failed to update position of lineup %d: %w", posB.LineupID, err)
	}
	for _, p := range progressions {
		if err := s.progressionRepo.Create(ctx, exec, p); err != nil {
			return err
		}
	}

	return s.VerifyInvariants(ctx, exec, match.GauntletID)
}

// positionForLineup loads the lineup's position, entering it at the bottom of
// the ladder first if it is a brand-new challenger.
func (s *rankingService) positionForLineup(ctx context.Context, exec repositories.SQLExecutor, gauntletID, lineupID int, matchID *int) (*models.Position, error) {
	pos, err := s.positionRepo.GetByGauntletAndLineup(ctx, exec, gauntletID, lineupID)
	if err != nil {
		if errors.Is(err, repositories.ErrPositionNotFound) {
			return s.EnterLineup(ctx, exec, gauntletID, lineupID, matchID)
		}
		return nil, fmt.Errorf("failed to load position of lineup %d: %w", lineupID, err)
	}
	return pos, nil
}

func (s *rankingService) EnterLineup(ctx context.Context, exec repositories.SQLExecutor, gauntletID, lineupID int, matchID *int) (*models.Position, error) {
	max, err := s.positionRepo.MaxPosition(ctx, exec, gauntletID)
	if err != nil {
		return nil, err
	}

	pos := &models.Position{
		GauntletID:       gauntletID,
		LineupID:         lineupID,
		Position:         max + 1,
		PreviousPosition: max + 1,
		StreakType:       models.StreakNone,
		JoinedDate:       time.Now(),
	}
	if err := s.positionRepo.Create(ctx, exec, pos); err != nil {
		return nil, fmt.Errorf("failed to enter lineup %d into gauntlet %d: %w", lineupID, gauntletID, err)
	}

	entry := newProgression(pos, models.ReasonNewLineup, matchID, nil)
	if err := s.progressionRepo.Create(ctx, exec, entry); err != nil {
		return nil, err
	}
	return pos, nil
}

func applyOutcomeStats(p *models.Position, outcome models.StreakType, forfeit bool, matchDate time.Time) {
	switch outcome {
	case models.StreakWin:
		p.Wins++
		p.Points += PointsPerWin
	case models.StreakLoss:
		p.Losses++
		p.Points += PointsPerLoss
	case models.StreakDraw:
		p.Draws++
		if !forfeit {
			p.Points += PointsPerDraw
		}
	}
	p.TotalMatches++
	p.RecomputeWinRate()
	p.ExtendStreak(outcome)
	d := matchDate
	p.LastMatchDate = &d
}

func newProgression(p *models.Position, reason models.ProgressionReason, matchID *int, notes *string) *models.Progression {
	return &models.Progression{
		GauntletID:   p.GauntletID,
		LineupID:     p.LineupID,
		FromPosition: p.PreviousPosition,
		ToPosition:   p.Position,
		Change:       p.PreviousPosition - p.Position,
		Reason:       reason,
		MatchID:      matchID,
		Notes:        notes,
	}
}

func (s *rankingService) VerifyInvariants(ctx context.Context, exec repositories.SQLExecutor, gauntletID int) error {
	positions, err := s.positionRepo.ListByGauntlet(ctx, exec, gauntletID)
	if err != nil {
		return err
	}

	for i, p := range positions {
		// Sorted ascending, so denseness means position i holds value i+1.
		if p.Position != i+1 {
			return fmt.Errorf("%w: gauntlet %d positions are not dense at rank %d (lineup %d holds %d)",
				ErrInvariantViolation, gauntletID, i+1, p.LineupID, p.Position)
		}
		if p.Wins+p.Losses+p.Draws != p.TotalMatches {
			return fmt.Errorf("%w: lineup %d counters do not sum to total_matches (%d+%d+%d != %d)",
				ErrInvariantViolation, p.LineupID, p.Wins, p.Losses, p.Draws, p.TotalMatches)
		}
		expectedRate := 0.0
		if p.TotalMatches > 0 {
			expectedRate = math.Round(float64(p.Wins)/float64(p.TotalMatches)*10000) / 100
		}
		if math.Abs(p.WinRate-expectedRate) > 0.005 {
			return fmt.Errorf("%w: lineup %d win_rate %.2f does not recompute from counters (expected %.2f)",
				ErrInvariantViolation, p.LineupID, p.WinRate, expectedRate)
		}
		if p.StreakType == models.StreakNone {
			if p.StreakCount != 0 || p.TotalMatches != 0 {
				return fmt.Errorf("%w: lineup %d has streak_type none with %d matches and streak_count %d",
					ErrInvariantViolation, p.LineupID, p.TotalMatches, p.StreakCount)
			}
		} else if p.StreakCount < 1 {
			return fmt.Errorf("%w: lineup %d has streak_type %s with streak_count %d",
				ErrInvariantViolation, p.LineupID, p.StreakType, p.StreakCount)
		}
	}
	return nil
}

func (s *rankingService) GetLadder(ctx context.Context, gauntletID int) ([]*models.Position, error) {
	var positions []*models.Position

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if _, err := s.gauntletRepo.GetByID(gCtx, nil, gauntletID); err != nil {
			if errors.Is(err, repositories.ErrGauntletNotFound) {
				return fmt.Errorf("%w: gauntlet %d", ErrGauntletNotFound, gauntletID)
			}
			return err
		}
		return nil
	})
	g.Go(func() error {
		var err error
		positions, err = s.positionRepo.ListByGauntlet(gCtx, nil, gauntletID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return positions, nil
}

func (s *rankingService) GetProgressionHistory(ctx context.Context, gauntletID int, lineupID *int) ([]*models.Progression, error) {
	if _, err := s.gauntletRepo.GetByID(ctx, nil, gauntletID); err != nil {
		if errors.Is(err, repositories.ErrGauntletNotFound) {
			return nil, fmt.Errorf("%w: gauntlet %d", ErrGauntletNotFound, gauntletID)
		}
		return nil, err
	}
	return s.progressionRepo.ListByGauntlet(ctx, nil, gauntletID, lineupID)
}

func (s *rankingService) AdjustPosition(ctx context.Context, gauntletID, lineupID, targetPosition int, notes *string) ([]*models.Position, error) {
	release, err := s.locker.Lock(ctx, gauntletID)
	if err != nil {
		return nil, err
	}
	defer release()

	ladder, err := s.adjustPositionTx(ctx, gauntletID, lineupID, targetPosition, notes)
	if err != nil {
		return nil, err
	}

	broadcastLadder(s.hub, gauntletID, ladder)
	return ladder, nil
}

func (s *rankingService) adjustPositionTx(ctx context.Context, gauntletID, lineupID, targetPosition int, notes *string) (ladder []*models.Position, txErr error) {
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
				s.logger.Error("rollback failed after manual adjustment error",
					slog.Int("gauntlet_id", gauntletID), slog.Any("error", rbErr))
			}
		} else {
			if cErr := tx.Commit(); cErr != nil {
				ladder = nil
				txErr = fmt.Errorf("failed to commit manual adjustment: %w", cErr)
			}
		}
	}()

	positions, err := s.positionRepo.ListByGauntlet(ctx, tx, gauntletID)
	if err != nil {
		txErr = err
		return nil, txErr
	}
	if targetPosition < 1 || targetPosition > len(positions) {
		txErr = fmt.Errorf("%w: %d of %d", ErrTargetOutOfRange, targetPosition, len(positions))
		return nil, txErr
	}

	var moved *models.Position
	for _, p := range positions {
		if p.LineupID == lineupID {
			moved = p
			break
		}
	}
	if moved == nil {
		txErr = fmt.Errorf("%w: lineup %d in gauntlet %d", ErrPositionNotFound, lineupID, gauntletID)
		return nil, txErr
	}
	if moved.Position == targetPosition {
		return positions, nil
	}

	from := moved.Position
	var changed []*models.Position
	for _, p := range positions {
		if p == moved {
			continue
		}
		// Everyone between the old and new rung shifts one step toward the
		// vacated slot.
		if from < targetPosition && p.Position > from && p.Position <= targetPosition {
			p.PreviousPosition = p.Position
			p.Position--
			changed = append(changed, p)
		} else if from > targetPosition && p.Position >= targetPosition && p.Position < from {
			p.PreviousPosition = p.Position
			p.Position++
			changed = append(changed, p)
		}
	}
	moved.PreviousPosition = from
	moved.Position = targetPosition
	changed = append(changed, moved)

	for _, p := range changed {
		if err := s.positionRepo.Update(ctx, tx, p); err != nil {
			txErr = err
			return nil, txErr
		}
		var n *string
		if p == moved {
			n = notes
		}
		if err := s.progressionRepo.Create(ctx, tx, newProgression(p, models.ReasonManualAdjustment, nil, n)); err != nil {
			txErr = err
			return nil, txErr
		}
	}

	if txErr = s.VerifyInvariants(ctx, tx, gauntletID); txErr != nil {
		s.logger.Error("ladder invariants violated after manual adjustment, aborting",
			slog.Int("gauntlet_id", gauntletID), slog.Any("error", txErr))
		return nil, txErr
	}

	if ladder, txErr = s.positionRepo.ListByGauntlet(ctx, tx, gauntletID); txErr != nil {
		return nil, txErr
	}
	return ladder, nil
}

func (s *rankingService) ReplayLadder(ctx context.Context, gauntletID int) (map[int]int, error) {
	progressions, err := s.progressionRepo.ListByGauntlet(ctx, nil, gauntletID, nil)
	if err != nil {
		return nil, err
	}

	replayed := make(map[int]int)
	for _, p := range progressions {
		replayed[p.LineupID] = p.ToPosition
	}
	return replayed, nil
}

func broadcastLadder(hub LadderBroadcaster, gauntletID int, ladder []*models.Position) {
	if hub == nil {
		return
	}
	snapshot := make([]models.Position, 0, len(ladder))
	for _, p := range ladder {
		if p != nil {
			snapshot = append(snapshot, *p)
		}
	}
	hub.BroadcastLadderUpdate(gauntletID, snapshot)
}
