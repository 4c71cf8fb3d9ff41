package models

import "time"

// GauntletStatus представляет статусы гаунтлета, соответствующие ENUM в БД.
type GauntletStatus string

const (
	GauntletStatusActive GauntletStatus = "active"
	GauntletStatusClosed GauntletStatus = "closed"
)

// Gauntlet is a ladder competition scoped to a single boat class.
// It owns every lineup, match, position and progression entered under it.
type Gauntlet struct {
	ID        int            `json:"id" db:"id"`
	Name      string         `json:"name" db:"name"`
	BoatClass string         `json:"boat_class" db:"boat_class"`
	CreatorID int            `json:"creator_id" db:"creator_id"`
	Status    GauntletStatus `json:"status" db:"status"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`

	// Опциональные связанные сущности (не мапятся напрямую)
	Ladder []Position `json:"ladder,omitempty" db:"-"`
}
