package brackets

import (
	"errors"
	"math"
	"math/rand"

	"github.com/Dosada05/knockout-system/models"
)

var ErrNotEnoughPlayers = errors.New("not enough players to draw a single elimination bracket (minimum 2)")

// SingleEliminationGenerator раздаёт только первый раунд: перемешивает
// игроков, ставит пары по позициям, нечётному остатку достаётся bye.
// Все последующие раунды наполняет движок продвижения по мере игры.
type SingleEliminationGenerator struct {
	shuffle func(n int, swap func(i, j int))
}

func NewSingleEliminationGenerator() DrawGenerator {
	return &SingleEliminationGenerator{shuffle: rand.Shuffle}
}

// NewSeededSingleEliminationGenerator — детерминированная жеребьёвка,
// используется в тестах.
func NewSeededSingleEliminationGenerator(seed int64) DrawGenerator {
	rng := rand.New(rand.NewSource(seed))
	return &SingleEliminationGenerator{shuffle: rng.Shuffle}
}

func (g *SingleEliminationGenerator) GetName() string {
	return "SingleElimination"
}

func (g *SingleEliminationGenerator) Draw(players []*models.Player) (*DrawResult, error) {
	n := len(players)
	if n < 2 {
		return nil, ErrNotEnoughPlayers
	}

	shuffled := make([]*models.Player, n)
	copy(shuffled, players)
	g.shuffle(n, func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	pairings := make([]Pairing, 0, (n+1)/2)
	position := 0
	for i := 0; i+1 < n; i += 2 {
		position++
		p2 := shuffled[i+1].ID
		pairings = append(pairings, Pairing{
			Position:  position,
			Player1ID: shuffled[i].ID,
			Player2ID: &p2,
		})
	}
	if n%2 != 0 {
		position++
		pairings = append(pairings, Pairing{
			Position:  position,
			Player1ID: shuffled[n-1].ID,
			IsBye:     true,
		})
	}

	return &DrawResult{
		Pairings:    pairings,
		TotalRounds: int(math.Ceil(math.Log2(float64(n)))),
	}, nil
}
