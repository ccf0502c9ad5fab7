package models

import "time"

// Player — участник конкретного турнира. is_rebuy выставляется один раз
// при повторном входе и обратно не сбрасывается.
type Player struct {
	ID           int       `json:"id" db:"id"`
	TournamentID int       `json:"tournament_id" db:"tournament_id"`
	Name         string    `json:"name" db:"name"`
	IsRebuy      bool      `json:"is_rebuy" db:"is_rebuy"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
