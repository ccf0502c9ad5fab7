package models

import "time"

// Match — матч внутри раунда. player2_id == nil означает "ждёт соперника".
// Для bye: is_bye=true, player2_id=nil, победитель выставлен автоматически.
type Match struct {
	ID                int        `json:"id" db:"id"`
	RoundID           int        `json:"round_id" db:"round_id"`
	TournamentID      int        `json:"tournament_id" db:"tournament_id"`
	PositionInBracket int        `json:"position_in_bracket" db:"position_in_bracket"`
	Player1ID         *int       `json:"player1_id,omitempty" db:"player1_id"`
	Player2ID         *int       `json:"player2_id,omitempty" db:"player2_id"`
	WinnerID          *int       `json:"winner_id,omitempty" db:"winner_id"`
	IsBye             bool       `json:"is_bye" db:"is_bye"`
	Player1Score      *int       `json:"player1_score,omitempty" db:"player1_score"`
	Player2Score      *int       `json:"player2_score,omitempty" db:"player2_score"`
	FinishedAt        *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

// HasPlayer сообщает, занимает ли игрок один из слотов матча.
func (m *Match) HasPlayer(playerID int) bool {
	if m.Player1ID != nil && *m.Player1ID == playerID {
		return true
	}
	return m.Player2ID != nil && *m.Player2ID == playerID
}

// LoserID возвращает проигравшего, если победитель известен и оба слота заняты.
func (m *Match) LoserID() *int {
	if m.WinnerID == nil || m.Player1ID == nil || m.Player2ID == nil {
		return nil
	}
	if *m.WinnerID == *m.Player1ID {
		return m.Player2ID
	}
	return m.Player1ID
}
