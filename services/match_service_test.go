package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMatchValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.createGauntlet(t)
	a := env.addLineup(t, g.ID)
	b := env.addLineup(t, g.ID)

	base := RecordMatchInput{
		GauntletID: g.ID,
		LineupAID:  a.ID,
		LineupBID:  b.ID,
		SetsWonA:   2,
		SetsWonB:   1,
		TotalSets:  3,
		MatchDate:  yesterday(),
	}

	tests := []struct {
		name    string
		mutate  func(in *RecordMatchInput)
		wantErr error
	}{
		{
			name:    "same lineup on both sides",
			mutate:  func(in *RecordMatchInput) { in.LineupBID = in.LineupAID },
			wantErr: ErrSameLineup,
		},
		{
			name:    "negative total sets",
			mutate:  func(in *RecordMatchInput) { in.TotalSets = -1 },
			wantErr: ErrNegativeSets,
		},
		{
			name:    "negative sets won",
			mutate:  func(in *RecordMatchInput) { in.SetsWonB = -2 },
			wantErr: ErrNegativeSets,
		},
		{
			name:    "score exceeds total sets",
			mutate:  func(in *RecordMatchInput) { in.SetsWonA = 3 },
			wantErr: ErrScoreExceedsSets,
		},
		{
			name:    "match date in the future",
			mutate:  func(in *RecordMatchInput) { in.MatchDate = time.Now().Add(time.Hour) },
			wantErr: ErrMatchDateInFuture,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			_, err := env.matchSvc.RecordMatch(ctx, in)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	// Некорректный ввод не должен оставлять следов.
	matches, err := env.matchSvc.ListMatchesByGauntlet(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRecordMatchRejectsClosedGauntlet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.createGauntlet(t)
	a := env.addLineup(t, g.ID)
	b := env.addLineup(t, g.ID)

	_, err := env.gauntletSvc.CloseGauntlet(ctx, g.ID)
	require.NoError(t, err)

	_, err = env.matchSvc.RecordMatch(ctx, RecordMatchInput{
		GauntletID: g.ID,
		LineupAID:  a.ID,
		LineupBID:  b.ID,
		SetsWonA:   1,
		SetsWonB:   0,
		TotalSets:  1,
		MatchDate:  yesterday(),
	})
	assert.ErrorIs(t, err, ErrGauntletClosed)
}

func TestRecordMatchRejectsLineupFromAnotherGauntlet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g1 := env.createGauntlet(t)
	g2 := env.createGauntlet(t)
	a := env.addLineup(t, g1.ID)
	stranger := env.addLineup(t, g2.ID)

	_, err := env.matchSvc.RecordMatch(ctx, RecordMatchInput{
		GauntletID: g1.ID,
		LineupAID:  a.ID,
		LineupBID:  stranger.ID,
		SetsWonA:   1,
		SetsWonB:   0,
		TotalSets:  1,
		MatchDate:  yesterday(),
	})
	assert.ErrorIs(t, err, ErrLineupMismatch)
}

func TestRecordMatchRejectsUnknownGauntletAndLineup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.createGauntlet(t)
	a := env.addLineup(t, g.ID)

	_, err := env.matchSvc.RecordMatch(ctx, RecordMatchInput{
		GauntletID: 777,
		LineupAID:  a.ID,
		LineupBID:  a.ID + 1,
		SetsWonA:   1,
		SetsWonB:   0,
		TotalSets:  1,
		MatchDate:  yesterday(),
	})
	assert.ErrorIs(t, err, ErrGauntletNotFound)

	_, err = env.matchSvc.RecordMatch(ctx, RecordMatchInput{
		GauntletID: g.ID,
		LineupAID:  a.ID,
		LineupBID:  999,
		SetsWonA:   1,
		SetsWonB:   0,
		TotalSets:  1,
		MatchDate:  yesterday(),
	})
	assert.ErrorIs(t, err, ErrLineupNotFound)
}

func TestRecordMatchDuplicatePairOnSameDay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.createGauntlet(t)
	a := env.addLineup(t, g.ID)
	b := env.addLineup(t, g.ID)

	date := yesterday()
	input := RecordMatchInput{
		GauntletID: g.ID,
		LineupAID:  a.ID,
		LineupBID:  b.ID,
		SetsWonA:   2,
		SetsWonB:   0,
		TotalSets:  2,
		MatchDate:  date,
	}
	_, err := env.matchSvc.RecordMatch(ctx, input)
	require.NoError(t, err)

	_, err = env.matchSvc.RecordMatch(ctx, input)
	assert.ErrorIs(t, err, ErrDuplicateMatch)

	// Та же пара в обратном порядке в тот же день тоже дубликат.
	flipped := input
	flipped.LineupAID, flipped.LineupBID = input.LineupBID, input.LineupAID
	_, err = env.matchSvc.RecordMatch(ctx, flipped)
	assert.ErrorIs(t, err, ErrDuplicateMatch)

	// А в другой день матч проходит.
	nextDay := input
	nextDay.MatchDate = date.AddDate(0, 0, -1)
	_, err = env.matchSvc.RecordMatch(ctx, nextDay)
	assert.NoError(t, err)
}

func TestRecordMatchIdempotencyKeyReuse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.createGauntlet(t)
	a := env.addLineup(t, g.ID)
	b := env.addLineup(t, g.ID)
	c := env.addLineup(t, g.ID)

	key := "retry-2026-08-28-heat-1"
	first := RecordMatchInput{
		GauntletID:     g.ID,
		LineupAID:      a.ID,
		LineupBID:      b.ID,
		SetsWonA:       2,
		SetsWonB:       0,
		TotalSets:      2,
		MatchDate:      yesterday(),
		IdempotencyKey: &key,
	}
	_, err := env.matchSvc.RecordMatch(ctx, first)
	require.NoError(t, err)

	second := first
	second.LineupBID = c.ID
	_, err = env.matchSvc.RecordMatch(ctx, second)
	assert.ErrorIs(t, err, ErrDuplicateMatch)

	// Отклонённый повтор не изменил лестницу.
	matches, err := env.matchSvc.ListMatchesByGauntlet(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestRecordMatchGeneratesIdempotencyKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.createGauntlet(t)
	a := env.addLineup(t, g.ID)
	b := env.addLineup(t, g.ID)

	match, err := env.matchSvc.RecordMatch(ctx, RecordMatchInput{
		GauntletID: g.ID,
		LineupAID:  a.ID,
		LineupBID:  b.ID,
		SetsWonA:   1,
		SetsWonB:   1,
		TotalSets:  2,
		MatchDate:  yesterday(),
	})
	require.NoError(t, err)

	_, err = uuid.Parse(match.IdempotencyKey)
	assert.NoError(t, err)
}

func TestRecordMatchBroadcastsLadderAfterCommit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.createGauntlet(t)
	a := env.addLineup(t, g.ID)
	b := env.addLineup(t, g.ID)

	before := env.hub.count()
	_, err := env.matchSvc.RecordMatch(ctx, RecordMatchInput{
		GauntletID: g.ID,
		LineupAID:  b.ID,
		LineupBID:  a.ID,
		SetsWonA:   2,
		SetsWonB:   0,
		TotalSets:  2,
		MatchDate:  yesterday(),
	})
	require.NoError(t, err)

	require.Equal(t, before+1, env.hub.count())
	update, ok := env.hub.last()
	require.True(t, ok)
	assert.Equal(t, g.ID, update.gauntletID)
	require.Len(t, update.ladder, 2)
	assert.Equal(t, b.ID, update.ladder[0].LineupID)

	// Отклонённый матч рассылку не порождает.
	_, err = env.matchSvc.RecordMatch(ctx, RecordMatchInput{
		GauntletID: g.ID,
		LineupAID:  a.ID,
		LineupBID:  a.ID,
		SetsWonA:   1,
		SetsWonB:   0,
		TotalSets:  1,
		MatchDate:  yesterday(),
	})
	require.Error(t, err)
	assert.Equal(t, before+1, env.hub.count())
}

func TestGetMatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.createGauntlet(t)
	a := env.addLineup(t, g.ID)
	b := env.addLineup(t, g.ID)

	recorded, err := env.matchSvc.RecordMatch(ctx, RecordMatchInput{
		GauntletID: g.ID,
		LineupAID:  a.ID,
		LineupBID:  b.ID,
		SetsWonA:   2,
		SetsWonB:   1,
		TotalSets:  3,
		MatchDate:  yesterday(),
	})
	require.NoError(t, err)

	got, err := env.matchSvc.GetMatch(ctx, recorded.ID)
	require.NoError(t, err)
	assert.Equal(t, recorded.ID, got.ID)
	assert.Equal(t, a.ID, got.LineupAID)

	_, err = env.matchSvc.GetMatch(ctx, 999)
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestListMatchesByGauntletEmpty(t *testing.T) {
	env := newTestEnv(t)
	g := env.createGauntlet(t)

	matches, err := env.matchSvc.ListMatchesByGauntlet(context.Background(), g.ID)
	require.NoError(t, err)
	require.NotNil(t, matches)
	assert.Empty(t, matches)
}
