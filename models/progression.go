package models

import "time"

// ProgressionReason представляет причину изменения позиции, соответствующую ENUM в БД.
type ProgressionReason string

const (
	ReasonMatchWin         ProgressionReason = "match_win"
	ReasonMatchLoss        ProgressionReason = "match_loss"
	ReasonMatchDraw        ProgressionReason = "match_draw"
	ReasonManualAdjustment ProgressionReason = "manual_adjustment"
	ReasonNewLineup        ProgressionReason = "new_lineup"
)

// Progression is one append-only audit entry for a lineup's position change.
// The progression log is the sole source of truth for how a ladder got to its
// current state: replaying to_position values from an empty ladder must
// reproduce the Position snapshot.
//
// Change is signed as from_position - to_position, so climbing the ladder
// (a smaller position value) yields a positive delta.
type Progression struct {
	ID           int               `json:"id" db:"id"`
	GauntletID   int               `json:"gauntlet_id" db:"gauntlet_id"`
	LineupID     int               `json:"lineup_id" db:"lineup_id"`
	FromPosition int               `json:"from_position" db:"from_position"`
	ToPosition   int               `json:"to_position" db:"to_position"`
	Change       int               `json:"change" db:"change"`
	Reason       ProgressionReason `json:"reason" db:"reason"`
	MatchID      *int              `json:"match_id,omitempty" db:"match_id"`
	Notes        *string           `json:"notes,omitempty" db:"notes"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
}
