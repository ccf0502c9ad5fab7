package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Dosada05/knockout-system/models"
	"github.com/Dosada05/knockout-system/repositories"
	"github.com/Dosada05/knockout-system/storage"
	"github.com/shopspring/decimal"
)

type CreateTournamentInput struct {
	Name                  string           `json:"name"`
	EntryFee              decimal.Decimal  `json:"entry_fee"`
	LateEntryFee          *decimal.Decimal `json:"late_entry_fee"`
	RebuyFee              *decimal.Decimal `json:"rebuy_fee"`
	OrganizerPercentage   decimal.Decimal  `json:"organizer_percentage"`
	ThirdPlacePercentage  decimal.Decimal  `json:"third_place_percentage"`
	FourthPlacePercentage decimal.Decimal  `json:"fourth_place_percentage"`
	AllowLateEntry        bool             `json:"allow_late_entry"`
	AllowRebuy            bool             `json:"allow_rebuy"`
}

type TournamentService interface {
	Create(ctx context.Context, organizerID int, input CreateTournamentInput) (*models.Tournament, error)
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error)
	Update(ctx context.Context, userID, id int, input CreateTournamentInput) (*models.Tournament, error)
	UpdateStatus(ctx context.Context, userID, id int, next models.TournamentStatus) (*models.Tournament, error)
	Delete(ctx context.Context, userID, id int) error
	// RegisterPlayer записывает игрока, пока идёт набор, и списывает базовый взнос.
	RegisterPlayer(ctx context.Context, userID, tournamentID int, name string) (*models.Player, error)
	ListPlayers(ctx context.Context, tournamentID int) ([]*models.Player, error)
	UploadBanner(ctx context.Context, userID, id int, contentType string, file io.Reader) (*models.Tournament, error)
}

type tournamentService struct {
	tournamentRepo repositories.TournamentRepository
	playerRepo     repositories.PlayerRepository
	txRunner       repositories.TxRunner
	uploader       storage.FileUploader
}

func NewTournamentService(
	tournamentRepo repositories.TournamentRepository,
	playerRepo repositories.PlayerRepository,
	txRunner repositories.TxRunner,
	uploader storage.FileUploader,
) TournamentService {
	return &tournamentService{
		tournamentRepo: tournamentRepo,
		playerRepo:     playerRepo,
		txRunner:       txRunner,
		uploader:       uploader,
	}
}

func validateTournamentInput(input *CreateTournamentInput) error {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return fmt.Errorf("%w: tournament name is required", ErrValidationFailed)
	}
	if input.EntryFee.IsNegative() {
		return fmt.Errorf("%w: entry fee cannot be negative", ErrValidationFailed)
	}
	if input.LateEntryFee != nil && input.LateEntryFee.IsNegative() {
		return fmt.Errorf("%w: late entry fee cannot be negative", ErrValidationFailed)
	}
	if input.RebuyFee != nil && input.RebuyFee.IsNegative() {
		return fmt.Errorf("%w: rebuy fee cannot be negative", ErrValidationFailed)
	}
	for _, pct := range []decimal.Decimal{input.OrganizerPercentage, input.ThirdPlacePercentage, input.FourthPlacePercentage} {
		if pct.IsNegative() || pct.GreaterThan(oneHundred) {
			return fmt.Errorf("%w: percentages must be between 0 and 100", ErrValidationFailed)
		}
	}
	if input.ThirdPlacePercentage.Add(input.FourthPlacePercentage).GreaterThan(oneHundred) {
		return fmt.Errorf("%w: third and fourth place percentages exceed 100", ErrValidationFailed)
	}
	return nil
}

func (s *tournamentService) Create(ctx context.Context, organizerID int, input CreateTournamentInput) (*models.Tournament, error) {
	if err := validateTournamentInput(&input); err != nil {
		return nil, err
	}

	t := &models.Tournament{
		Name:                  input.Name,
		OrganizerID:           organizerID,
		Status:                models.StatusDraft,
		EntryFee:              input.EntryFee,
		LateEntryFee:          input.LateEntryFee,
		RebuyFee:              input.RebuyFee,
		OrganizerPercentage:   input.OrganizerPercentage,
		ThirdPlacePercentage:  input.ThirdPlacePercentage,
		FourthPlacePercentage: input.FourthPlacePercentage,
		AllowLateEntry:        input.AllowLateEntry,
		AllowRebuy:            input.AllowRebuy,
		TotalCollected:        decimal.Zero,
		OrganizerAmount:       decimal.Zero,
		PrizePool:             decimal.Zero,
	}

	if err := s.tournamentRepo.Create(ctx, t); err != nil {
		if errors.Is(err, repositories.ErrTournamentNameConflict) {
			return nil, fmt.Errorf("%w: tournament name already in use", ErrValidationFailed)
		}
		return nil, fmt.Errorf("failed to create tournament: %w", err)
	}
	return t, nil
}

func (s *tournamentService) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.tournamentRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	s.resolveBannerURL(t)
	return t, nil
}

func (s *tournamentService) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	tournaments, err := s.tournamentRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	for i := range tournaments {
		s.resolveBannerURL(&tournaments[i])
	}
	return tournaments, nil
}

func (s *tournamentService) Update(ctx context.Context, userID, id int, input CreateTournamentInput) (*models.Tournament, error) {
	if err := validateTournamentInput(&input); err != nil {
		return nil, err
	}

	t, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ensureOwnership(t, userID); err != nil {
		return nil, err
	}
	// Правки параметров возможны только до жеребьёвки.
	if t.Status != models.StatusDraft && t.Status != models.StatusOpen {
		return nil, ErrInvalidStatusTransition
	}

	t.Name = input.Name
	t.EntryFee = input.EntryFee
	t.LateEntryFee = input.LateEntryFee
	t.RebuyFee = input.RebuyFee
	t.OrganizerPercentage = input.OrganizerPercentage
	t.ThirdPlacePercentage = input.ThirdPlacePercentage
	t.FourthPlacePercentage = input.FourthPlacePercentage
	t.AllowLateEntry = input.AllowLateEntry
	t.AllowRebuy = input.AllowRebuy

	if err := s.tournamentRepo.Update(ctx, t); err != nil {
		if errors.Is(err, repositories.ErrTournamentNameConflict) {
			return nil, fmt.Errorf("%w: tournament name already in use", ErrValidationFailed)
		}
		return nil, fmt.Errorf("failed to update tournament %d: %w", id, err)
	}
	return t, nil
}

func (s *tournamentService) UpdateStatus(ctx context.Context, userID, id int, next models.TournamentStatus) (*models.Tournament, error) {
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ensureOwnership(t, userID); err != nil {
		return nil, err
	}
	// open -> running проходит только через жеребьёвку (BracketService.Start).
	if next == models.StatusRunning || !isValidStatusTransition(t.Status, next) {
		return nil, ErrInvalidStatusTransition
	}

	if err := s.tournamentRepo.UpdateStatus(ctx, nil, id, next); err != nil {
		return nil, fmt.Errorf("failed to update tournament %d status: %w", id, err)
	}
	t.Status = next
	return t, nil
}

func (s *tournamentService) Delete(ctx context.Context, userID, id int) error {
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := ensureOwnership(t, userID); err != nil {
		return err
	}

	if err := s.tournamentRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrTournamentInUse) {
			return fmt.Errorf("%w: tournament has registered players or matches", ErrValidationFailed)
		}
		return fmt.Errorf("failed to delete tournament %d: %w", id, err)
	}

	if t.BannerKey != nil && s.uploader != nil {
		if delErr := s.uploader.Delete(ctx, *t.BannerKey); delErr != nil {
			// Осиротевший баннер не повод ронять удаление турнира.
			return nil
		}
	}
	return nil
}

func (s *tournamentService) RegisterPlayer(ctx context.Context, userID, tournamentID int, name string) (*models.Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrPlayerNameRequired
	}

	var player *models.Player
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
			return ErrRegistrationClosed
		}

		existing, err := s.playerRepo.FindByName(ctx, exec, tournamentID, name)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrPlayerNameTaken
		}

		player = &models.Player{TournamentID: tournamentID, Name: name}
		if err := s.playerRepo.Create(ctx, exec, player); err != nil {
			return fmt.Errorf("failed to create player: %w", err)
		}

		applyFee(t, t.EntryFee)
		return s.tournamentRepo.UpdateFinancials(ctx, exec, t.ID, t.TotalCollected, t.OrganizerAmount, t.PrizePool)
	})
	if err != nil {
		return nil, err
	}
	return player, nil
}

func (s *tournamentService) ListPlayers(ctx context.Context, tournamentID int) ([]*models.Player, error) {
	if _, err := s.GetByID(ctx, tournamentID); err != nil {
		return nil, err
	}
	return s.playerRepo.ListByTournament(ctx, nil, tournamentID)
}

func (s *tournamentService) UploadBanner(ctx context.Context, userID, id int, contentType string, file io.Reader) (*models.Tournament, error) {
	if s.uploader == nil {
		return nil, fmt.Errorf("%w: banner storage is not configured", ErrValidationFailed)
	}
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ensureOwnership(t, userID); err != nil {
		return nil, err
	}

	var ext string
	switch contentType {
	case "image/png":
		ext = "png"
	case "image/jpeg":
		ext = "jpg"
	case "image/webp":
		ext = "webp"
	default:
		return nil, fmt.Errorf("%w: unsupported banner content type %q", ErrValidationFailed, contentType)
	}

	key := fmt.Sprintf("tournaments/%d/banner_%d.%s", t.ID, time.Now().UnixNano(), ext)
	result, err := s.uploader.Upload(ctx, key, contentType, file)
	if err != nil {
		return nil, fmt.Errorf("failed to upload tournament banner: %w", err)
	}

	oldKey := t.BannerKey
	if err := s.tournamentRepo.UpdateBannerKey(ctx, t.ID, &result.Key); err != nil {
		_ = s.uploader.Delete(ctx, result.Key)
		return nil, fmt.Errorf("failed to store banner key: %w", err)
	}
	if oldKey != nil && *oldKey != result.Key {
		_ = s.uploader.Delete(ctx, *oldKey)
	}

	t.BannerKey = &result.Key
	s.resolveBannerURL(t)
	return t, nil
}

func (s *tournamentService) resolveBannerURL(t *models.Tournament) {
	if t.BannerKey == nil || s.uploader == nil {
		return
	}
	if u := s.uploader.GetPublicURL(*t.BannerKey); u != "" {
		t.BannerURL = &u
	}
}
