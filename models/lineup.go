package models

import "time"

// Lineup is one crew assignment entered into a gauntlet's ladder.
// The seat assignment itself lives outside this system; CrewRef points at it.
type Lineup struct {
	ID         int       `json:"id" db:"id"`
	GauntletID int       `json:"gauntlet_id" db:"gauntlet_id"`
	IsOwner    bool      `json:"is_owner" db:"is_owner"` // true for the home lineup, false for challengers
	CrewRef    *string   `json:"crew_ref,omitempty" db:"crew_ref"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
