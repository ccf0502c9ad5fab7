package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/knockout-system/brackets"
	"github.com/Dosada05/knockout-system/models"
	"github.com/Dosada05/knockout-system/repositories"
)

type ResultInput struct {
	WinnerID     int  `json:"winner_id"`
	Player1Score *int `json:"player1_score"`
	Player2Score *int `json:"player2_score"`
}

type ResultOutcome struct {
	Match              *models.Match `json:"match"`
	RoundComplete      bool          `json:"round_complete"`
	TournamentFinished bool          `json:"tournament_finished"`
}

type ResultService interface {
	// RecordResult фиксирует исход матча и, если раунд закрыт последним
	// результатом, сразу продвигает сетку в той же транзакции.
	RecordResult(ctx context.Context, userID, tournamentID, matchID int, input ResultInput) (*ResultOutcome, error)
	// UpdateScore правит счёт уже сыгранного матча, не трогая исход.
	UpdateScore(ctx context.Context, userID, tournamentID, matchID int, p1Score, p2Score int) (*models.Match, error)
}

type resultService struct {
	tournamentRepo repositories.TournamentRepository
	roundRepo      repositories.RoundRepository
	matchRepo      repositories.MatchRepository
	txRunner       repositories.TxRunner
	hub            Broadcaster
}

func NewResultService(
	tournamentRepo repositories.TournamentRepository,
	roundRepo repositories.RoundRepository,
	matchRepo repositories.MatchRepository,
	txRunner repositories.TxRunner,
	hub Broadcaster,
) ResultService {
	return &resultService{
		tournamentRepo: tournamentRepo,
		roundRepo:      roundRepo,
		matchRepo:      matchRepo,
		txRunner:       txRunner,
		hub:            hub,
	}
}

// validateScores проверяет пару счетов: оба или ни одного, неотрицательные,
// без ничьей, больший счёт — у победителя.
func validateScores(p1Score, p2Score *int, winnerIsPlayer1 bool) error {
	if p1Score == nil && p2Score == nil {
		return nil
	}
	if p1Score == nil || p2Score == nil {
		return ErrScoresIncomplete
	}
	if *p1Score < 0 || *p2Score < 0 || *p1Score == *p2Score {
		return ErrScoresInvalid
	}
	if (*p1Score > *p2Score) != winnerIsPlayer1 {
		return ErrScoreWinnerMismatch
	}
	return nil
}

func (s *resultService) RecordResult(ctx context.Context, userID, tournamentID, matchID int, input ResultInput) (*ResultOutcome, error) {
	outcome := &ResultOutcome{}
	var events []brackets.Event

	err := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		// Блокировка строки турнира сериализует запись результата,
		// отмену и допуск игроков между собой.
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
		if t.Status != models.StatusRunning {
			return ErrTournamentNotRunning
		}

		m, err := s.matchRepo.GetByID(ctx, exec, matchID)
		if err != nil {
			if errors.Is(err, repositories.ErrMatchNotFound) {
				return ErrMatchNotFound
			}
			return err
		}
		if m.TournamentID != t.ID {
			return ErrMatchNotInTournament
		}
		if m.IsBye {
			return ErrByeImmutable
		}
		if m.WinnerID != nil {
			return ErrMatchAlreadyResolved
		}
		if m.Player2ID == nil {
			return ErrMatchAwaitingOpponent
		}
		if !m.HasPlayer(input.WinnerID) {
			return ErrWinnerNotInMatch
		}
		if err := validateScores(input.Player1Score, input.Player2Score, input.WinnerID == *m.Player1ID); err != nil {
			return err
		}

		round, err := s.roundRepo.GetByID(ctx, exec, m.RoundID)
		if err != nil {
			return err
		}

		// Защита низовья: результат нельзя менять под уже продвинутой парой.
		if !round.IsRepechage {
			next, err := s.roundRepo.FindByNumber(ctx, exec, t.ID, round.RoundNumber+1)
			if err != nil {
				return err
			}
			if next != nil {
				downstream, err := s.matchRepo.FindByRoundPosition(ctx, exec, next.ID, (m.PositionInBracket+1)/2)
				if err != nil {
					return err
				}
				if downstream != nil && downstream.WinnerID != nil {
					return ErrDownstreamResolved
				}
			}
		}

		now := time.Now()
		if err := s.matchRepo.UpdateResult(ctx, exec, m.ID, input.WinnerID, input.Player1Score, input.Player2Score, now); err != nil {
			return err
		}
		m.WinnerID = &input.WinnerID
		m.Player1Score = input.Player1Score
		m.Player2Score = input.Player2Score
		m.FinishedAt = &now
		outcome.Match = m

		events = append(events, brackets.Event{Type: brackets.EventMatchUpdated, Payload: m})

		unresolved, err := s.matchRepo.CountUnresolvedByRound(ctx, exec, round.ID)
		if err != nil {
			return err
		}
		if unresolved > 0 || round.IsRepechage {
			return nil
		}

		outcome.RoundComplete = true
		finished, advEvents, err := s.advanceRound(ctx, exec, t, round)
		if err != nil {
			return err
		}
		outcome.TournamentFinished = finished
		events = append(events, advEvents...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// События уходят только после коммита: подписчики не должны
	// увидеть состояние, которое ещё может откатиться.
	if s.hub != nil {
		room := brackets.RoomForTournament(tournamentID)
		for _, e := range events {
			s.hub.BroadcastToRoom(room, e)
		}
	}
	return outcome, nil
}

// advanceRound строит следующий раунд по завершённому либо закрывает турнир.
// Возвращает события для рассылки после коммита.
func (s *resultService) advanceRound(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, round *models.Round) (bool, []brackets.Event, error) {
	completed, err := s.matchRepo.ListByRound(ctx, exec, round.ID)
	if err != nil {
		return false, nil, err
	}

	next, err := s.roundRepo.FindByNumber(ctx, exec, t.ID, round.RoundNumber+1)
	if err != nil {
		return false, nil, err
	}
	if next == nil {
		// Финальный раунд: чемпионский матч по договорённости на позиции 1.
		event, err := s.finishTournament(ctx, exec, t, completed)
		if err != nil {
			return false, nil, err
		}
		return true, []brackets.Event{event}, nil
	}

	nextMatches, err := s.matchRepo.ListByRound(ctx, exec, next.ID)
	if err != nil {
		return false, nil, err
	}
	for _, nm := range nextMatches {
		if nm.Player1ID != nil || nm.Player2ID != nil || nm.WinnerID != nil {
			return false, nil, ErrRoundAlreadyAdvanced
		}
	}

	totalRounds, err := s.roundRepo.CountEliminationRounds(ctx, exec, t.ID)
	if err != nil {
		return false, nil, err
	}

	now := time.Now()
	var created []*models.Match

	thirdPlaceWanted := t.ThirdPlacePercentage.IsPositive() || t.FourthPlacePercentage.IsPositive()
	if thirdPlaceWanted && round.RoundNumber == totalRounds-1 && next.RoundNumber == totalRounds && len(completed) == 2 {
		created = buildFinalWithThirdPlace(next, t.ID, completed)
	} else {
		created = buildNextRoundMatches(next, t.ID, completed, now)
	}

	if err := s.matchRepo.CreateBatch(ctx, exec, created); err != nil {
		return false, nil, err
	}

	events := []brackets.Event{{
		Type: brackets.EventRoundAdvanced,
		Payload: map[string]interface{}{
			"round_number": next.RoundNumber,
			"matches":      created,
		},
	}}

	// Каскад: раунд из одних автопобед закрыт сразу после создания.
	unresolved, err := s.matchRepo.CountUnresolvedByRound(ctx, exec, next.ID)
	if err != nil {
		return false, nil, err
	}
	if unresolved == 0 {
		finished, more, err := s.advanceRound(ctx, exec, t, next)
		if err != nil {
			return false, nil, err
		}
		return finished, append(events, more...), nil
	}
	return false, events, nil
}

func (s *resultService) finishTournament(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, completed []*models.Match) (brackets.Event, error) {
	var championship *models.Match
	for _, m := range completed {
		if m.PositionInBracket == 1 {
			championship = m
			break
		}
	}
	if championship == nil || championship.WinnerID == nil {
		return brackets.Event{}, fmt.Errorf("final round of tournament %d has no resolved championship match", t.ID)
	}
	loser := championship.LoserID()
	if loser == nil {
		return brackets.Event{}, fmt.Errorf("championship match %d has no determinable runner-up", championship.ID)
	}

	now := time.Now()
	if err := s.tournamentRepo.SetFinished(ctx, exec, t.ID, *championship.WinnerID, *loser, now); err != nil {
		return brackets.Event{}, err
	}
	t.Status = models.StatusFinished
	t.ChampionID = championship.WinnerID
	t.RunnerUpID = loser
	t.FinishedAt = &now

	return brackets.Event{
		Type: brackets.EventTournamentFinished,
		Payload: map[string]interface{}{
			"tournament_id": t.ID,
			"champion_id":   *championship.WinnerID,
			"runner_up_id":  *loser,
		},
	}, nil
}

// buildNextRoundMatches спаривает победителей по порядку позиций:
// пары (1,2)->1, (3,4)->2 и так далее. Нечётный остаток получает
// автопобеду на следующей свободной позиции — единственный способ
// появления bye после первого раунда.
func buildNextRoundMatches(next *models.Round, tournamentID int, completed []*models.Match, now time.Time) []*models.Match {
	created := make([]*models.Match, 0, (len(completed)+1)/2)
	position := 0
	for i := 0; i+1 < len(completed); i += 2 {
		position++
		created = append(created, &models.Match{
			RoundID:           next.ID,
			TournamentID:      tournamentID,
			PositionInBracket: position,
			Player1ID:         completed[i].WinnerID,
			Player2ID:         completed[i+1].WinnerID,
		})
	}
	if len(completed)%2 != 0 {
		position++
		winner := completed[len(completed)-1].WinnerID
		finishedAt := now
		created = append(created, &models.Match{
			RoundID:           next.ID,
			TournamentID:      tournamentID,
			PositionInBracket: position,
			Player1ID:         winner,
			WinnerID:          winner,
			IsBye:             true,
			FinishedAt:        &finishedAt,
		})
	}
	return created
}

// buildFinalWithThirdPlace собирает финал из двух полуфиналов: позиция 1 —
// чемпионский матч победителей, позиция 2 — матч за третье место из
// проигравших, если оба определимы (полуфинал с bye проигравшего не даёт).
func buildFinalWithThirdPlace(next *models.Round, tournamentID int, semifinals []*models.Match) []*models.Match {
	created := []*models.Match{{
		RoundID:           next.ID,
		TournamentID:      tournamentID,
		PositionInBracket: 1,
		Player1ID:         semifinals[0].WinnerID,
		Player2ID:         semifinals[1].WinnerID,
	}}

	loserA := semifinals[0].LoserID()
	loserB := semifinals[1].LoserID()
	if loserA != nil && loserB != nil {
		created = append(created, &models.Match{
			RoundID:           next.ID,
			TournamentID:      tournamentID,
			PositionInBracket: 2,
			Player1ID:         loserA,
			Player2ID:         loserB,
		})
	}
	return created
}

func (s *resultService) UpdateScore(ctx context.Context, userID, tournamentID, matchID int, p1Score, p2Score int) (*models.Match, error) {
	var updated *models.Match

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
		if t.Status == models.StatusFinished {
			return ErrTournamentFinished
		}

		m, err := s.matchRepo.GetByID(ctx, exec, matchID)
		if err != nil {
			if errors.Is(err, repositories.ErrMatchNotFound) {
				return ErrMatchNotFound
			}
			return err
		}
		if m.TournamentID != t.ID {
			return ErrMatchNotInTournament
		}
		if m.IsBye {
			return ErrByeImmutable
		}
		if m.WinnerID == nil {
			return ErrMatchNotResolved
		}
		if err := validateScores(&p1Score, &p2Score, *m.WinnerID == *m.Player1ID); err != nil {
			return err
		}

		if err := s.matchRepo.UpdateScores(ctx, exec, m.ID, p1Score, p2Score); err != nil {
			return err
		}
		m.Player1Score = &p1Score
		m.Player2Score = &p2Score
		updated = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.hub != nil {
		s.hub.BroadcastToRoom(brackets.RoomForTournament(tournamentID), brackets.Event{
			Type:    brackets.EventMatchUpdated,
			Payload: updated,
		})
	}
	return updated, nil
}
