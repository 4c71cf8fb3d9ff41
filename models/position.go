package models

import (
	"math"
	"time"
)

// StreakType представляет тип текущей серии, соответствующий ENUM в БД.
type StreakType string

const (
	StreakWin  StreakType = "win"
	StreakLoss StreakType = "loss"
	StreakDraw StreakType = "draw"
	StreakNone StreakType = "none"
)

// Position is a lineup's current rung and cumulative statistics within its
// gauntlet's ladder. Position 1 is the top; values are dense and unique per
// gauntlet. Exactly one Position exists per (gauntlet, lineup) pair.
type Position struct {
	ID               int        `json:"id" db:"id"`
	GauntletID       int        `json:"gauntlet_id" db:"gauntlet_id"`
	LineupID         int        `json:"lineup_id" db:"lineup_id"`
	Position         int        `json:"position" db:"position"`
	PreviousPosition int        `json:"previous_position" db:"previous_position"`
	Wins             int        `json:"wins" db:"wins"`
	Losses           int        `json:"losses" db:"losses"`
	Draws            int        `json:"draws" db:"draws"`
	TotalMatches     int        `json:"total_matches" db:"total_matches"`
	WinRate          float64    `json:"win_rate" db:"win_rate"`
	Points           int        `json:"points" db:"points"`
	StreakType       StreakType `json:"streak_type" db:"streak_type"`
	StreakCount      int        `json:"streak_count" db:"streak_count"`
	LastMatchDate    *time.Time `json:"last_match_date,omitempty" db:"last_match_date"`
	JoinedDate       time.Time  `json:"joined_date" db:"joined_date"`
}

// RecomputeWinRate derives win_rate from the counters, rounded to two
// decimal places. Zero matches means 0.00, not NaN.
func (p *Position) RecomputeWinRate() {
	if p.TotalMatches == 0 {
		p.WinRate = 0
		return
	}
	p.WinRate = math.Round(float64(p.Wins)/float64(p.TotalMatches)*10000) / 100
}

// ExtendStreak continues or restarts the streak for a new outcome.
func (p *Position) ExtendStreak(outcome StreakType) {
	if p.StreakType == outcome {
		p.StreakCount++
		return
	}
	p.StreakType = outcome
	p.StreakCount = 1
}
