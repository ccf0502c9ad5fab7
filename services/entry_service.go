package services

import (
	"context"
	"errors"
	"strings"

	"github.com/Dosada05/knockout-system/brackets"
	"github.com/Dosada05/knockout-system/models"
	"github.com/Dosada05/knockout-system/repositories"
	"github.com/shopspring/decimal"
)

type LateEntryInput struct {
	Name  string `json:"name"`
	Force bool   `json:"force"`
}

type LateEntryOutcome struct {
	Player       *models.Player  `json:"player,omitempty"`
	Paired       bool            `json:"paired"`
	MatchID      *int            `json:"match_id,omitempty"`
	FeeCharged   decimal.Decimal `json:"fee_charged"`
	IsDuplicate  bool            `json:"is_duplicate,omitempty"`
	ExistingName string          `json:"existing_name,omitempty"`
}

type RebuyOutcome struct {
	Player     *models.Player  `json:"player"`
	Paired     bool            `json:"paired"`
	MatchID    *int            `json:"match_id,omitempty"`
	FeeCharged decimal.Decimal `json:"fee_charged"`
}

type EntryService interface {
	// LateEntry допускает нового игрока в первый раунд, пока тот не закрыт.
	LateEntry(ctx context.Context, userID, tournamentID int, input LateEntryInput) (*LateEntryOutcome, error)
	// Rebuy возвращает выбитого в первом раунде игрока в утешительный раунд.
	Rebuy(ctx context.Context, userID, tournamentID, playerID int) (*RebuyOutcome, error)
}

type entryService struct {
	tournamentRepo repositories.TournamentRepository
	roundRepo      repositories.RoundRepository
	matchRepo      repositories.MatchRepository
	playerRepo     repositories.PlayerRepository
	txRunner       repositories.TxRunner
	hub            Broadcaster
}

func NewEntryService(
	tournamentRepo repositories.TournamentRepository,
	roundRepo repositories.RoundRepository,
	matchRepo repositories.MatchRepository,
	playerRepo repositories.PlayerRepository,
	txRunner repositories.TxRunner,
	hub Broadcaster,
) EntryService {
	return &entryService{
		tournamentRepo: tournamentRepo,
		roundRepo:      roundRepo,
		matchRepo:      matchRepo,
		playerRepo:     playerRepo,
		txRunner:       txRunner,
		hub:            hub,
	}
}

func (s *entryService) lockRunningTournament(ctx context.Context, exec repositories.SQLExecutor, userID, tournamentID int) (*models.Tournament, error) {
	t, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	if err := ensureOwnership(t, userID); err != nil {
		return nil, err
	}
	if t.Status != models.StatusRunning {
		return nil, ErrTournamentNotRunning
	}
	return t, nil
}

func (s *entryService) chargeFee(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, fee decimal.Decimal) error {
	applyFee(t, fee)
	return s.tournamentRepo.UpdateFinancials(ctx, exec, t.ID, t.TotalCollected, t.OrganizerAmount, t.PrizePool)
}

func (s *entryService) LateEntry(ctx context.Context, userID, tournamentID int, input LateEntryInput) (*LateEntryOutcome, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrPlayerNameRequired
	}

	outcome := &LateEntryOutcome{}
	err := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.lockRunningTournament(ctx, exec, userID, tournamentID)
		if err != nil {
			return err
		}
		if !t.AllowLateEntry {
			return ErrLateEntryDisabled
		}

		// Окно позднего входа живо, пока в первом раунде есть несыгранный
		// матч. После последнего результата раунд "исчезает" из этой
		// выборки, и вход закрыт навсегда.
		round1, err := s.roundRepo.FindOpenByNumber(ctx, exec, t.ID, 1)
		if err != nil {
			return err
		}
		if round1 == nil {
			return ErrLateEntryClosed
		}

		if !input.Force {
			existing, err := s.playerRepo.FindByName(ctx, exec, t.ID, name)
			if err != nil {
				return err
			}
			if existing != nil {
				outcome.IsDuplicate = true
				outcome.ExistingName = existing.Name
				return nil
			}
		}

		fee := lateEntryFee(t)
		if err := s.chargeFee(ctx, exec, t, fee); err != nil {
			return err
		}
		outcome.FeeCharged = fee

		player := &models.Player{TournamentID: t.ID, Name: name}
		if err := s.playerRepo.Create(ctx, exec, player); err != nil {
			return err
		}
		outcome.Player = player

		// Порядок посадки: свободный слот, затем чей-нибудь bye,
		// иначе новый ожидающий матч в хвосте раунда.
		slot, err := s.matchRepo.FindOpenSlotForUpdate(ctx, exec, round1.ID)
		if err != nil {
			return err
		}
		if slot == nil {
			slot, err = s.matchRepo.FindByeForUpdate(ctx, exec, round1.ID)
			if err != nil {
				return err
			}
		}
		if slot != nil {
			if err := s.matchRepo.AssignPlayer2(ctx, exec, slot.ID, player.ID); err != nil {
				return err
			}
			outcome.Paired = true
			outcome.MatchID = &slot.ID
			return nil
		}

		maxPos, err := s.matchRepo.MaxPosition(ctx, exec, round1.ID)
		if err != nil {
			return err
		}
		pending := &models.Match{
			RoundID:           round1.ID,
			TournamentID:      t.ID,
			PositionInBracket: maxPos + 1,
			Player1ID:         &player.ID,
		}
		if err := s.matchRepo.CreateBatch(ctx, exec, []*models.Match{pending}); err != nil {
			return err
		}
		outcome.MatchID = &pending.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.hub != nil && !outcome.IsDuplicate {
		s.hub.BroadcastToRoom(brackets.RoomForTournament(tournamentID), brackets.Event{
			Type:    brackets.EventPlayerAdmitted,
			Payload: outcome,
		})
	}
	return outcome, nil
}

func (s *entryService) Rebuy(ctx context.Context, userID, tournamentID, playerID int) (*RebuyOutcome, error) {
	outcome := &RebuyOutcome{}

	err := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.lockRunningTournament(ctx, exec, userID, tournamentID)
		if err != nil {
			return err
		}
		if !t.AllowRebuy {
			return ErrRebuyDisabled
		}

		player, err := s.playerRepo.GetByID(ctx, exec, playerID)
		if err != nil {
			if errors.Is(err, repositories.ErrPlayerNotFound) {
				return ErrPlayerNotFound
			}
			return err
		}
		if player.TournamentID != t.ID {
			return ErrPlayerNotFound
		}

		// Право на ребай даёт только поражение в первом раунде.
		round1, err := s.roundRepo.FindByNumber(ctx, exec, t.ID, 1)
		if err != nil {
			return err
		}
		if round1 == nil {
			return ErrRebuyNotEliminated
		}
		loss, err := s.matchRepo.FindLossInRound(ctx, exec, round1.ID, player.ID)
		if err != nil {
			return err
		}
		if loss == nil {
			return ErrRebuyNotEliminated
		}
		if player.IsRebuy {
			return ErrRebuyAlreadyUsed
		}

		fee := rebuyFee(t)
		if err := s.chargeFee(ctx, exec, t, fee); err != nil {
			return err
		}
		outcome.FeeCharged = fee

		if err := s.playerRepo.MarkRebuy(ctx, exec, player.ID); err != nil {
			return err
		}
		player.IsRebuy = true
		outcome.Player = player

		repechage, err := s.roundRepo.FindRepechage(ctx, exec, t.ID)
		if err != nil {
			return err
		}
		if repechage == nil {
			// Утешительный раунд заводится один раз и переиспользуется
			// всеми последующими ребаями. Его номер технический: на
			// нумерацию основной сетки он не влияет.
			maxNumber, err := s.roundRepo.MaxRoundNumber(ctx, exec, t.ID)
			if err != nil {
				return err
			}
			repechage = &models.Round{
				TournamentID: t.ID,
				RoundNumber:  maxNumber + 1,
				IsRepechage:  true,
			}
			if err := s.roundRepo.Create(ctx, exec, repechage); err != nil {
				return err
			}
			return s.createPendingRepechageMatch(ctx, exec, t.ID, repechage.ID, player.ID, 1, outcome)
		}

		slot, err := s.matchRepo.FindOpenSlotForUpdate(ctx, exec, repechage.ID)
		if err != nil {
			return err
		}
		if slot != nil {
			if err := s.matchRepo.AssignPlayer2(ctx, exec, slot.ID, player.ID); err != nil {
				return err
			}
			outcome.Paired = true
			outcome.MatchID = &slot.ID
			return nil
		}

		maxPos, err := s.matchRepo.MaxPosition(ctx, exec, repechage.ID)
		if err != nil {
			return err
		}
		return s.createPendingRepechageMatch(ctx, exec, t.ID, repechage.ID, player.ID, maxPos+1, outcome)
	})
	if err != nil {
		return nil, err
	}

	if s.hub != nil {
		s.hub.BroadcastToRoom(brackets.RoomForTournament(tournamentID), brackets.Event{
			Type:    brackets.EventPlayerAdmitted,
			Payload: outcome,
		})
	}
	return outcome, nil
}

func (s *entryService) createPendingRepechageMatch(ctx context.Context, exec repositories.SQLExecutor, tournamentID, roundID, playerID, position int, outcome *RebuyOutcome) error {
	pending := &models.Match{
		RoundID:           roundID,
		TournamentID:      tournamentID,
		PositionInBracket: position,
		Player1ID:         &playerID,
	}
	if err := s.matchRepo.CreateBatch(ctx, exec, []*models.Match{pending}); err != nil {
		return err
	}
	outcome.MatchID = &pending.ID
	return nil
}
