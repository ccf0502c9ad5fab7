package brackets

import "github.com/Dosada05/knockout-system/models"

// Pairing — заготовка матча первого раунда до сохранения в БД.
type Pairing struct {
	Position  int
	Player1ID int
	Player2ID *int
	IsBye     bool
}

// DrawResult — жеребьёвка первого раунда и количество раундов основной
// сетки, которые нужно завести под неё.
type DrawResult struct {
	Pairings    []Pairing
	TotalRounds int
}

type DrawGenerator interface {
	Draw(players []*models.Player) (*DrawResult, error)

	GetName() string
}
