package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/knockout-system/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

var (
	ErrTournamentNotFound     = errors.New("tournament not found")
	ErrTournamentNameConflict = errors.New("tournament name conflict for this organizer")
	ErrTournamentInvalidOrg   = errors.New("invalid organizer reference")
	ErrTournamentInUse        = errors.New("tournament is in use (players/matches exist)")
)

type ListTournamentsFilter struct {
	OrganizerID *int
	Status      *models.TournamentStatus
	Limit       int
	Offset      int
}

type TournamentRepository interface {
	Create(ctx context.Context, t *models.Tournament) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	// GetByIDForUpdate читает турнир с блокировкой строки (SELECT ... FOR UPDATE).
	// Все мутирующие операции движка сериализуются через эту блокировку.
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error)
	Update(ctx context.Context, t *models.Tournament) error
	UpdateFinancials(ctx context.Context, exec SQLExecutor, id int, total, organizerAmount, prizePool decimal.Decimal) error
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error
	SetFinished(ctx context.Context, exec SQLExecutor, id int, championID, runnerUpID int, finishedAt time.Time) error
	// Reopen возвращает завершённый турнир в running и очищает итоги.
	// Единственный легальный вызов — из движка отмены результата.
	Reopen(ctx context.Context, exec SQLExecutor, id int) error
	UpdateBannerKey(ctx context.Context, id int, bannerKey *string) error
	Delete(ctx context.Context, id int) error
	Count(ctx context.Context, status *models.TournamentStatus) (int, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `
	id, name, organizer_id, status,
	entry_fee, late_entry_fee, rebuy_fee,
	organizer_percentage, third_place_percentage, fourth_place_percentage,
	total_collected, organizer_amount, prize_pool,
	allow_late_entry, allow_rebuy,
	champion_id, runner_up_id, finished_at, created_at, banner_key`

func scanTournament(row interface{ Scan(dest ...interface{}) error }, t *models.Tournament) error {
	return row.Scan(
		&t.ID, &t.Name, &t.OrganizerID, &t.Status,
		&t.EntryFee, &t.LateEntryFee, &t.RebuyFee,
		&t.OrganizerPercentage, &t.ThirdPlacePercentage, &t.FourthPlacePercentage,
		&t.TotalCollected, &t.OrganizerAmount, &t.PrizePool,
		&t.AllowLateEntry, &t.AllowRebuy,
		&t.ChampionID, &t.RunnerUpID, &t.FinishedAt, &t.CreatedAt, &t.BannerKey,
	)
}

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	executor := r.getExecutor(nil)
	query := `
		INSERT INTO tournaments (
			name, organizer_id, status,
			entry_fee, late_entry_fee, rebuy_fee,
			organizer_percentage, third_place_percentage, fourth_place_percentage,
			total_collected, organizer_amount, prize_pool,
			allow_late_entry, allow_rebuy
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		t.Name, t.OrganizerID, t.Status,
		t.EntryFee, t.LateEntryFee, t.RebuyFee,
		t.OrganizerPercentage, t.ThirdPlacePercentage, t.FourthPlacePercentage,
		t.TotalCollected, t.OrganizerAmount, t.PrizePool,
		t.AllowLateEntry, t.AllowRebuy,
	).Scan(&t.ID, &t.CreatedAt)

	return r.handleTournamentError(err)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`

	t := &models.Tournament{}
	err := scanTournament(executor.QueryRowContext(ctx, query, id), t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to scan tournament by id %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1 FOR UPDATE`

	t := &models.Tournament{}
	err := scanTournament(executor.QueryRowContext(ctx, query, id), t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to lock tournament %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	executor := r.getExecutor(nil)
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE 1=1`

	args := []interface{}{}
	argID := 1

	if filter.OrganizerID != nil {
		query += fmt.Sprintf(" AND organizer_id = $%d", argID)
		args = append(args, *filter.OrganizerID)
		argID++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		if scanErr := scanTournament(rows, &t); scanErr != nil {
			return nil, scanErr
		}
		tournaments = append(tournaments, t)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return tournaments, nil
}

func (r *postgresTournamentRepository) Update(ctx context.Context, t *models.Tournament) error {
	executor := r.getExecutor(nil)
	// Финансовые итоги и результат обновляются своими методами.
	query := `
		UPDATE tournaments SET
			name = $1,
			entry_fee = $2,
			late_entry_fee = $3,
			rebuy_fee = $4,
			organizer_percentage = $5,
			third_place_percentage = $6,
			fourth_place_percentage = $7,
			allow_late_entry = $8,
			allow_rebuy = $9
		WHERE id = $10`

	result, err := executor.ExecContext(ctx, query,
		t.Name, t.EntryFee, t.LateEntryFee, t.RebuyFee,
		t.OrganizerPercentage, t.ThirdPlacePercentage, t.FourthPlacePercentage,
		t.AllowLateEntry, t.AllowRebuy,
		t.ID,
	)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateFinancials(ctx context.Context, exec SQLExecutor, id int, total, organizerAmount, prizePool decimal.Decimal) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET total_collected = $1, organizer_amount = $2, prize_pool = $3 WHERE id = $4`
	result, err := executor.ExecContext(ctx, query, total, organizerAmount, prizePool, id)
	if err != nil {
		return fmt.Errorf("failed to update tournament financials for %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET status = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, status, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) SetFinished(ctx context.Context, exec SQLExecutor, id int, championID, runnerUpID int, finishedAt time.Time) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE tournaments
		SET status = $1, champion_id = $2, runner_up_id = $3, finished_at = $4
		WHERE id = $5`
	result, err := executor.ExecContext(ctx, query, models.StatusFinished, championID, runnerUpID, finishedAt, id)
	if err != nil {
		return fmt.Errorf("failed to finish tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) Reopen(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE tournaments
		SET status = $1, champion_id = NULL, runner_up_id = NULL, finished_at = NULL
		WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, models.StatusRunning, id)
	if err != nil {
		return fmt.Errorf("failed to reopen tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateBannerKey(ctx context.Context, id int, bannerKey *string) error {
	executor := r.getExecutor(nil)
	query := `UPDATE tournaments SET banner_key = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, bannerKey, id)
	if err != nil {
		return fmt.Errorf("failed to update tournament banner key: %w", err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) Delete(ctx context.Context, id int) error {
	executor := r.getExecutor(nil)
	query := `DELETE FROM tournaments WHERE id = $1`
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) Count(ctx context.Context, status *models.TournamentStatus) (int, error) {
	executor := r.getExecutor(nil)
	query := `SELECT COUNT(*) FROM tournaments`
	args := []interface{}{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	var count int
	if err := executor.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tournaments: %w", err)
	}
	return count, nil
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "tournaments_organizer_id_name_key" {
				return ErrTournamentNameConflict
			}
		case "23503":
			if pqErr.Constraint == "tournaments_organizer_id_fkey" {
				return ErrTournamentInvalidOrg
			}
			// FK со стороны players/matches/rounds при удалении турнира.
			return ErrTournamentInUse
		}
	}
	return err
}
