package models

import "time"

// Round — один ярус сетки. Раунды на выбывание нумеруются 1..N,
// репешаж — параллельный трек со своим флагом.
type Round struct {
	ID           int       `json:"id" db:"id"`
	TournamentID int       `json:"tournament_id" db:"tournament_id"`
	RoundNumber  int       `json:"round_number" db:"round_number"`
	IsRepechage  bool      `json:"is_repechage" db:"is_repechage"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
