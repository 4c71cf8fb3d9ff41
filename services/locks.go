package services

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// GauntletLocker serializes ladder mutations per gauntlet. Submissions for
// different gauntlets proceed fully in parallel; submissions for the same
// gauntlet queue behind a weighted-1 semaphore, so the read-modify-write of
// position rows never interleaves.
type GauntletLocker struct {
	mu   sync.Mutex
	sems map[int]*semaphore.Weighted
}

func NewGauntletLocker() *GauntletLocker {
	return &GauntletLocker{sems: make(map[int]*semaphore.Weighted)}
}

func (l *GauntletLocker) sem(gauntletID int) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sems[gauntletID]
	if !ok {
		s = semaphore.NewWeighted(1)
		l.sems[gauntletID] = s
	}
	return s
}

// Lock blocks until the gauntlet is free or ctx is done. The returned release
// func must be called exactly once.
func (l *GauntletLocker) Lock(ctx context.Context, gauntletID int) (release func(), err error) {
	s := l.sem(gauntletID)
	if err := s.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: gauntlet %d: %v", ErrConcurrencyConflict, gauntletID, err)
	}
	return func() { s.Release(1) }, nil
}
