package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/knockout-system/brackets"
	"github.com/Dosada05/knockout-system/models"
	"github.com/Dosada05/knockout-system/repositories"
	"golang.org/x/sync/errgroup"
)

// RoundView — раунд вместе с его матчами, отсортированными по позиции.
type RoundView struct {
	Round   *models.Round   `json:"round"`
	Matches []*models.Match `json:"matches"`
}

// BracketView — полное состояние сетки для чтения одним запросом.
type BracketView struct {
	Tournament *models.Tournament `json:"tournament"`
	Rounds     []RoundView        `json:"rounds"`
	Players    []*models.Player   `json:"players"`
	Prizes     *PrizeBreakdown    `json:"prizes,omitempty"`
}

type BracketService interface {
	// Start проводит жеребьёвку: создаёт все раунды основной сетки,
	// матчи первого раунда и переводит турнир в running.
	Start(ctx context.Context, userID, tournamentID int) (*BracketView, error)
	GetBracket(ctx context.Context, tournamentID int) (*BracketView, error)
}

type bracketService struct {
	tournamentRepo repositories.TournamentRepository
	roundRepo      repositories.RoundRepository
	matchRepo      repositories.MatchRepository
	playerRepo     repositories.PlayerRepository
	txRunner       repositories.TxRunner
	generator      brackets.DrawGenerator
}

func NewBracketService(
	tournamentRepo repositories.TournamentRepository,
	roundRepo repositories.RoundRepository,
	matchRepo repositories.MatchRepository,
	playerRepo repositories.PlayerRepository,
	txRunner repositories.TxRunner,
	generator brackets.DrawGenerator,
) BracketService {
	return &bracketService{
		tournamentRepo: tournamentRepo,
		roundRepo:      roundRepo,
		matchRepo:      matchRepo,
		playerRepo:     playerRepo,
		txRunner:       txRunner,
		generator:      generator,
	}
}

func (s *bracketService) Start(ctx context.Context, userID, tournamentID int) (*BracketView, error) {
	err := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, tournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}
		if err := ensureOwnership(t, userID); err != nil {
			return err
		}
		if t.Status != models.StatusOpen {
			return ErrInvalidStatusTransition
		}

		existing, err := s.roundRepo.CountEliminationRounds(ctx, exec, t.ID)
		if err != nil {
			return err
		}
		if existing > 0 {
			return ErrTournamentHasBracket
		}

		players, err := s.playerRepo.ListByTournament(ctx, exec, t.ID)
		if err != nil {
			return err
		}

		draw, err := s.generator.Draw(players)
		if err != nil {
			if errors.Is(err, brackets.ErrNotEnoughPlayers) {
				return ErrNotEnoughPlayers
			}
			return fmt.Errorf("draw failed: %w", err)
		}

		// Раунды основной сетки заводятся сразу все: движку продвижения
		// остаётся наполнять их матчами, а "следующего раунда нет"
		// однозначно означает финал.
		var firstRound *models.Round
		for n := 1; n <= draw.TotalRounds; n++ {
			round := &models.Round{TournamentID: t.ID, RoundNumber: n}
			if err := s.roundRepo.Create(ctx, exec, round); err != nil {
				return err
			}
			if n == 1 {
				firstRound = round
			}
		}

		now := time.Now()
		matches := make([]*models.Match, 0, len(draw.Pairings))
		for _, p := range draw.Pairings {
			p1 := p.Player1ID
			m := &models.Match{
				RoundID:           firstRound.ID,
				TournamentID:      t.ID,
				PositionInBracket: p.Position,
				Player1ID:         &p1,
				Player2ID:         p.Player2ID,
				IsBye:             p.IsBye,
			}
			if p.IsBye {
				m.WinnerID = &p1
				finishedAt := now
				m.FinishedAt = &finishedAt
			}
			matches = append(matches, m)
		}
		if err := s.matchRepo.CreateBatch(ctx, exec, matches); err != nil {
			return err
		}

		return s.tournamentRepo.UpdateStatus(ctx, exec, t.ID, models.StatusRunning)
	})
	if err != nil {
		return nil, err
	}
	return s.GetBracket(ctx, tournamentID)
}

func (s *bracketService) GetBracket(ctx context.Context, tournamentID int) (*BracketView, error) {
	var (
		tournament *models.Tournament
		rounds     []*models.Round
		matches    []*models.Match
		players    []*models.Player
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.tournamentRepo.GetByID(gCtx, nil, tournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}
		tournament = t
		return nil
	})
	g.Go(func() error {
		var err error
		rounds, err = s.roundRepo.ListByTournament(gCtx, nil, tournamentID)
		return err
	})
	g.Go(func() error {
		var err error
		matches, err = s.matchRepo.ListByTournament(gCtx, nil, tournamentID)
		return err
	})
	g.Go(func() error {
		var err error
		players, err = s.playerRepo.ListByTournament(gCtx, nil, tournamentID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byRound := make(map[int][]*models.Match, len(rounds))
	for _, m := range matches {
		byRound[m.RoundID] = append(byRound[m.RoundID], m)
	}

	view := &BracketView{
		Tournament: tournament,
		Rounds:     make([]RoundView, 0, len(rounds)),
		Players:    players,
	}
	for _, r := range rounds {
		rm := byRound[r.ID]
		if rm == nil {
			rm = []*models.Match{}
		}
		view.Rounds = append(view.Rounds, RoundView{Round: r, Matches: rm})
	}
	if tournament.PrizePool.IsPositive() {
		prizes := computePrizeBreakdown(tournament)
		view.Prizes = &prizes
	}
	return view, nil
}
