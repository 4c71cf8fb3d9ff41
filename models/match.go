package models

import "time"

// Match is an immutable record of one contest between two lineups of the same
// gauntlet. Created once; never mutated after the ranking engine processed it.
type Match struct {
	ID             int       `json:"id" db:"id"`
	GauntletID     int       `json:"gauntlet_id" db:"gauntlet_id"`
	LineupAID      int       `json:"lineup_a_id" db:"lineup_a_id"`
	LineupBID      int       `json:"lineup_b_id" db:"lineup_b_id"`
	Workout        *string   `json:"workout,omitempty" db:"workout"`
	TotalSets      int       `json:"total_sets" db:"total_sets"`
	SetsWonA       int       `json:"sets_won_a" db:"sets_won_a"`
	SetsWonB       int       `json:"sets_won_b" db:"sets_won_b"`
	MatchDate      time.Time `json:"match_date" db:"match_date"`
	Notes          *string   `json:"notes,omitempty" db:"notes"`
	IdempotencyKey string    `json:"-" db:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
