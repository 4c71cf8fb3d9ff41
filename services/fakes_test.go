package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/oarlock/gauntlet-system/models"
	"github.com/oarlock/gauntlet-system/repositories"
	"github.com/stretchr/testify/require"
)

// Заглушка драйвера БД: сервисы открывают транзакции сами, а все запросы
// уходят в in-memory репозитории, поэтому Commit/Rollback достаточно no-op.
type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) { return &stubConn{}, nil }

type stubConn struct{}

func (*stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (*stubConn) Close() error                        { return nil }
func (*stubConn) Begin() (driver.Tx, error)           { return stubTx{}, nil }

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

func init() {
	sql.Register("stub", stubDriver{})
}

type fakeGauntletRepo struct {
	mu     sync.Mutex
	nextID int
	items  map[int]*models.Gauntlet
}

func newFakeGauntletRepo() *fakeGauntletRepo {
	return &fakeGauntletRepo{items: make(map[int]*models.Gauntlet)}
}

func (f *fakeGauntletRepo) Create(_ context.Context, _ repositories.SQLExecutor, g *models.Gauntlet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	g.ID = f.nextID
	g.CreatedAt = time.Now()
	cp := *g
	f.items[g.ID] = &cp
	return nil
}

func (f *fakeGauntletRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Gauntlet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.items[id]
	if !ok {
		return nil, repositories.ErrGauntletNotFound
	}
	cp := *g
	return &cp, nil
}

func (f *fakeGauntletRepo) ListByStatus(_ context.Context, _ repositories.SQLExecutor, status models.GauntletStatus) ([]*models.Gauntlet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Gauntlet, 0)
	for _, g := range f.items {
		if g.Status == status {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeGauntletRepo) UpdateStatus(_ context.Context, _ repositories.SQLExecutor, id int, status models.GauntletStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.items[id]
	if !ok {
		return repositories.ErrGauntletNotFound
	}
	g.Status = status
	return nil
}

func (f *fakeGauntletRepo) Delete(_ context.Context, _ repositories.SQLExecutor, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return repositories.ErrGauntletNotFound
	}
	delete(f.items, id)
	return nil
}

type fakeLineupRepo struct {
	mu     sync.Mutex
	nextID int
	items  map[int]*models.Lineup
}

func newFakeLineupRepo() *fakeLineupRepo {
	return &fakeLineupRepo{items: make(map[int]*models.Lineup)}
}

func (f *fakeLineupRepo) Create(_ context.Context, _ repositories.SQLExecutor, l *models.Lineup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	l.ID = f.nextID
	l.CreatedAt = time.Now()
	cp := *l
	f.items[l.ID] = &cp
	return nil
}

func (f *fakeLineupRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Lineup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.items[id]
	if !ok {
		return nil, repositories.ErrLineupNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLineupRepo) ListByGauntlet(_ context.Context, _ repositories.SQLExecutor, gauntletID int) ([]*models.Lineup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Lineup, 0)
	for _, l := range f.items {
		if l.GauntletID == gauntletID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeLineupRepo) Delete(_ context.Context, _ repositories.SQLExecutor, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return repositories.ErrLineupNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeLineupRepo) DeleteByGauntletID(_ context.Context, _ repositories.SQLExecutor, gauntletID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, l := range f.items {
		if l.GauntletID == gauntletID {
			delete(f.items, id)
		}
	}
	return nil
}

type fakeMatchRepo struct {
	mu     sync.Mutex
	nextID int
	items  map[int]*models.Match
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{items: make(map[int]*models.Match)}
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (f *fakeMatchRepo) Create(_ context.Context, _ repositories.SQLExecutor, m *models.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.items {
		if existing.IdempotencyKey == m.IdempotencyKey {
			return repositories.ErrMatchDuplicate
		}
	}
	f.nextID++
	m.ID = f.nextID
	m.CreatedAt = time.Now()
	cp := *m
	f.items[m.ID] = &cp
	return nil
}

func (f *fakeMatchRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.items[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMatchRepo) ListByGauntlet(_ context.Context, _ repositories.SQLExecutor, gauntletID int) ([]*models.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Match, 0)
	for _, m := range f.items {
		if m.GauntletID == gauntletID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeMatchRepo) ExistsForPairOnDate(_ context.Context, _ repositories.SQLExecutor, gauntletID, lineupAID, lineupBID int, matchDate time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.items {
		if m.GauntletID != gauntletID || !sameCalendarDay(m.MatchDate, matchDate) {
			continue
		}
		if (m.LineupAID == lineupAID && m.LineupBID == lineupBID) ||
			(m.LineupAID == lineupBID && m.LineupBID == lineupAID) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMatchRepo) Delete(_ context.Context, _ repositories.SQLExecutor, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return repositories.ErrMatchNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeMatchRepo) DeleteByGauntletID(_ context.Context, _ repositories.SQLExecutor, gauntletID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, m := range f.items {
		if m.GauntletID == gauntletID {
			delete(f.items, id)
		}
	}
	return nil
}

type fakePositionRepo struct {
	mu     sync.Mutex
	nextID int
	items  map[int]*models.Position
}

func newFakePositionRepo() *fakePositionRepo {
	return &fakePositionRepo{items: make(map[int]*models.Position)}
}

func (f *fakePositionRepo) Create(_ context.Context, _ repositories.SQLExecutor, p *models.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.items {
		if existing.GauntletID == p.GauntletID && existing.LineupID == p.LineupID {
			return repositories.ErrPositionLineupConflict
		}
	}
	f.nextID++
	p.ID = f.nextID
	cp := *p
	f.items[p.ID] = &cp
	return nil
}

func (f *fakePositionRepo) GetByGauntletAndLineup(_ context.Context, _ repositories.SQLExecutor, gauntletID, lineupID int) (*models.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.items {
		if p.GauntletID == gauntletID && p.LineupID == lineupID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repositories.ErrPositionNotFound
}

func (f *fakePositionRepo) ListByGauntlet(_ context.Context, _ repositories.SQLExecutor, gauntletID int) ([]*models.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Position, 0)
	for _, p := range f.items {
		if p.GauntletID == gauntletID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakePositionRepo) MaxPosition(_ context.Context, _ repositories.SQLExecutor, gauntletID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	max := 0
	for _, p := range f.items {
		if p.GauntletID == gauntletID && p.Position > max {
			max = p.Position
		}
	}
	return max, nil
}

func (f *fakePositionRepo) Update(_ context.Context, _ repositories.SQLExecutor, p *models.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[p.ID]; !ok {
		return repositories.ErrPositionNotFound
	}
	cp := *p
	f.items[p.ID] = &cp
	return nil
}

func (f *fakePositionRepo) DeleteByLineupID(_ context.Context, _ repositories.SQLExecutor, lineupID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, p := range f.items {
		if p.LineupID == lineupID {
			delete(f.items, id)
		}
	}
	return nil
}

func (f *fakePositionRepo) DeleteByGauntletID(_ context.Context, _ repositories.SQLExecutor, gauntletID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, p := range f.items {
		if p.GauntletID == gauntletID {
			delete(f.items, id)
		}
	}
	return nil
}

type fakeProgressionRepo struct {
	mu     sync.Mutex
	nextID int
	items  []*models.Progression
}

func newFakeProgressionRepo() *fakeProgressionRepo {
	return &fakeProgressionRepo{}
}

func (f *fakeProgressionRepo) Create(_ context.Context, _ repositories.SQLExecutor, p *models.Progression) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p.ID = f.nextID
	p.CreatedAt = time.Now()
	cp := *p
	f.items = append(f.items, &cp)
	return nil
}

func (f *fakeProgressionRepo) ListByGauntlet(_ context.Context, _ repositories.SQLExecutor, gauntletID int, lineupID *int) ([]*models.Progression, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Progression, 0)
	for _, p := range f.items {
		if p.GauntletID != gauntletID {
			continue
		}
		if lineupID != nil && p.LineupID != *lineupID {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeProgressionRepo) DeleteByLineupID(_ context.Context, _ repositories.SQLExecutor, lineupID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.items[:0]
	for _, p := range f.items {
		if p.LineupID != lineupID {
			kept = append(kept, p)
		}
	}
	f.items = kept
	return nil
}

func (f *fakeProgressionRepo) DeleteByMatchID(_ context.Context, _ repositories.SQLExecutor, matchID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.items[:0]
	for _, p := range f.items {
		if p.MatchID == nil || *p.MatchID != matchID {
			kept = append(kept, p)
		}
	}
	f.items = kept
	return nil
}

func (f *fakeProgressionRepo) DeleteByGauntletID(_ context.Context, _ repositories.SQLExecutor, gauntletID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.items[:0]
	for _, p := range f.items {
		if p.GauntletID != gauntletID {
			kept = append(kept, p)
		}
	}
	f.items = kept
	return nil
}

// recordingHub запоминает все рассылки вместо отправки по WebSocket.
type recordingHub struct {
	mu      sync.Mutex
	updates []ladderUpdate
}

type ladderUpdate struct {
	gauntletID int
	ladder     []models.Position
}

func (h *recordingHub) BroadcastLadderUpdate(gauntletID int, ladder []models.Position) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, ladderUpdate{gauntletID: gauntletID, ladder: ladder})
}

func (h *recordingHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.updates)
}

func (h *recordingHub) last() (ladderUpdate, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.updates) == 0 {
		return ladderUpdate{}, false
	}
	return h.updates[len(h.updates)-1], true
}

type testEnv struct {
	gauntlets    *fakeGauntletRepo
	lineups      *fakeLineupRepo
	matches      *fakeMatchRepo
	positions    *fakePositionRepo
	progressions *fakeProgressionRepo
	hub          *recordingHub

	ranking     RankingService
	matchSvc    MatchService
	gauntletSvc GauntletService
	lifecycle   LifecycleService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("stub", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	env := &testEnv{
		gauntlets:    newFakeGauntletRepo(),
		lineups:      newFakeLineupRepo(),
		matches:      newFakeMatchRepo(),
		positions:    newFakePositionRepo(),
		progressions: newFakeProgressionRepo(),
		hub:          &recordingHub{},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	locker := NewGauntletLocker()

	env.ranking = NewRankingService(db, env.gauntlets, env.positions, env.progressions, locker, env.hub, logger)
	env.matchSvc = NewMatchService(db, env.gauntlets, env.lineups, env.matches, env.positions, env.ranking, locker, env.hub, logger)
	env.gauntletSvc = NewGauntletService(db, env.gauntlets, env.lineups, env.positions, env.ranking, locker, env.hub, logger)
	env.lifecycle = NewLifecycleService(db, env.gauntlets, env.lineups, env.matches, env.positions, env.progressions, env.ranking, locker, env.hub, logger)

	return env
}

func (e *testEnv) createGauntlet(t *testing.T) *models.Gauntlet {
	t.Helper()
	g, err := e.gauntletSvc.CreateGauntlet(context.Background(), CreateGauntletInput{
		Name:      "Varsity Eight Ladder",
		BoatClass: "8+",
		CreatorID: 1,
	})
	require.NoError(t, err)
	return g
}

func (e *testEnv) addLineup(t *testing.T, gauntletID int) *models.Lineup {
	t.Helper()
	l, err := e.gauntletSvc.AddLineup(context.Background(), gauntletID, AddLineupInput{IsOwner: true})
	require.NoError(t, err)
	return l
}

// seedLineup создаёт строку lineup без позиции на лестнице (новый претендент).
func (e *testEnv) seedLineup(t *testing.T, gauntletID int) *models.Lineup {
	t.Helper()
	l := &models.Lineup{GauntletID: gauntletID, IsOwner: false}
	require.NoError(t, e.lineups.Create(context.Background(), nil, l))
	return l
}

func (e *testEnv) ladder(t *testing.T, gauntletID int) []*models.Position {
	t.Helper()
	ladder, err := e.ranking.GetLadder(context.Background(), gauntletID)
	require.NoError(t, err)
	return ladder
}

func (e *testEnv) progressionsByReason(t *testing.T, gauntletID int, reason models.ProgressionReason) []*models.Progression {
	t.Helper()
	all, err := e.ranking.GetProgressionHistory(context.Background(), gauntletID, nil)
	require.NoError(t, err)
	out := make([]*models.Progression, 0)
	for _, p := range all {
		if p.Reason == reason {
			out = append(out, p)
		}
	}
	return out
}

func yesterday() time.Time {
	return time.Now().Add(-24 * time.Hour)
}
