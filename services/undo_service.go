package services

import (
	"context"
	"errors"

	"github.com/Dosada05/knockout-system/brackets"
	"github.com/Dosada05/knockout-system/models"
	"github.com/Dosada05/knockout-system/repositories"
)

type UndoOutcome struct {
	MatchID            int  `json:"match_id"`
	WinnerID           int  `json:"winner_id"`
	RoundNumber        int  `json:"round_number"`
	DeletedDownstream  int  `json:"deleted_downstream"`
	TournamentReopened bool `json:"tournament_reopened"`
}

type UndoService interface {
	// UndoLastResult снимает исход последнего сыгранного матча и удаляет
	// пары, которые успел построить следующий раунд, если в них ещё не играли.
	UndoLastResult(ctx context.Context, userID, tournamentID int) (*UndoOutcome, error)
}

type undoService struct {
	tournamentRepo repositories.TournamentRepository
	roundRepo      repositories.RoundRepository
	matchRepo      repositories.MatchRepository
	txRunner       repositories.TxRunner
	hub            Broadcaster
}

func NewUndoService(
	tournamentRepo repositories.TournamentRepository,
	roundRepo repositories.RoundRepository,
	matchRepo repositories.MatchRepository,
	txRunner repositories.TxRunner,
	hub Broadcaster,
) UndoService {
	return &undoService{
		tournamentRepo: tournamentRepo,
		roundRepo:      roundRepo,
		matchRepo:      matchRepo,
		txRunner:       txRunner,
		hub:            hub,
	}
}

func (s *undoService) UndoLastResult(ctx context.Context, userID, tournamentID int) (*UndoOutcome, error) {
	outcome := &UndoOutcome{}

	err := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		// Та же блокировка турнира, что и у записи результата: отмена не
		// должна выпиливать строки, которые параллельный вызов создаёт.
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

		last, err := s.matchRepo.FindLastFinished(ctx, exec, t.ID)
		if err != nil {
			return err
		}
		if last == nil {
			return ErrNothingToUndo
		}

		round, err := s.roundRepo.GetByID(ctx, exec, last.RoundID)
		if err != nil {
			return err
		}

		if !round.IsRepechage {
			// Сгенерированные раунды сносятся целиком, и не только ближайший:
			// каскад продвижения мог протащить bye сквозь несколько раундов.
			// Идём вверх, пока раунды непустые; сыгранный матч выше по сетке
			// останавливает отмену.
			for number := round.RoundNumber + 1; ; number++ {
				next, err := s.roundRepo.FindByNumber(ctx, exec, t.ID, number)
				if err != nil {
					return err
				}
				if next == nil {
					break
				}
				played, err := s.matchRepo.CountResolvedNonByeByRound(ctx, exec, next.ID)
				if err != nil {
					return err
				}
				if played > 0 {
					return ErrDownstreamPlayed
				}
				deleted, err := s.matchRepo.DeleteByRound(ctx, exec, next.ID)
				if err != nil {
					return err
				}
				if deleted == 0 {
					break
				}
				outcome.DeletedDownstream += deleted
			}
		}

		if t.Status == models.StatusFinished {
			if err := s.tournamentRepo.Reopen(ctx, exec, t.ID); err != nil {
				return err
			}
			outcome.TournamentReopened = true
		}

		outcome.MatchID = last.ID
		outcome.WinnerID = *last.WinnerID
		outcome.RoundNumber = round.RoundNumber

		if err := s.matchRepo.ClearResult(ctx, exec, last.ID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.hub != nil {
		s.hub.BroadcastToRoom(brackets.RoomForTournament(tournamentID), brackets.Event{
			Type:    brackets.EventBracketReverted,
			Payload: outcome,
		})
	}
	return outcome, nil
}
