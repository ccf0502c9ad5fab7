package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/knockout-system/models"
)

var ErrRoundNotFound = errors.New("round not found")

// RoundRepository. Методы Get* возвращают ErrRoundNotFound,
// методы Find* — (nil, nil), когда записи нет: отсутствие раунда
// для движка часто нормальный случай, а не ошибка.
type RoundRepository interface {
	Create(ctx context.Context, exec SQLExecutor, round *models.Round) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Round, error)
	// FindByNumber ищет раунд на выбывание по номеру; репешаж не учитывается,
	// его номер — технический и с номерами основной сетки не сопоставляется.
	FindByNumber(ctx context.Context, exec SQLExecutor, tournamentID, number int) (*models.Round, error)
	// FindOpenByNumber возвращает раунд только пока в нём остаётся хотя бы
	// один матч без победителя. Именно этим запросом закрывается поздний вход:
	// как только последний матч первого раунда сыгран, раунд "исчезает".
	FindOpenByNumber(ctx context.Context, exec SQLExecutor, tournamentID, number int) (*models.Round, error)
	FindRepechage(ctx context.Context, exec SQLExecutor, tournamentID int) (*models.Round, error)
	MaxRoundNumber(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
	CountEliminationRounds(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Round, error)
}

type postgresRoundRepository struct {
	db *sql.DB
}

func NewPostgresRoundRepository(db *sql.DB) RoundRepository {
	return &postgresRoundRepository{db: db}
}

func (r *postgresRoundRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresRoundRepository) Create(ctx context.Context, exec SQLExecutor, round *models.Round) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO rounds (tournament_id, round_number, is_repechage)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		round.TournamentID, round.RoundNumber, round.IsRepechage,
	).Scan(&round.ID, &round.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create round %d for tournament %d: %w", round.RoundNumber, round.TournamentID, err)
	}
	return nil
}

func (r *postgresRoundRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Round, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, tournament_id, round_number, is_repechage, created_at
		FROM rounds
		WHERE id = $1`

	round := &models.Round{}
	err := executor.QueryRowContext(ctx, query, id).Scan(
		&round.ID, &round.TournamentID, &round.RoundNumber, &round.IsRepechage, &round.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to scan round by id %d: %w", id, err)
	}
	return round, nil
}

func (r *postgresRoundRepository) FindByNumber(ctx context.Context, exec SQLExecutor, tournamentID, number int) (*models.Round, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, tournament_id, round_number, is_repechage, created_at
		FROM rounds
		WHERE tournament_id = $1 AND round_number = $2 AND is_repechage = FALSE`

	round := &models.Round{}
	err := executor.QueryRowContext(ctx, query, tournamentID, number).Scan(
		&round.ID, &round.TournamentID, &round.RoundNumber, &round.IsRepechage, &round.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find round %d for tournament %d: %w", number, tournamentID, err)
	}
	return round, nil
}

func (r *postgresRoundRepository) FindOpenByNumber(ctx context.Context, exec SQLExecutor, tournamentID, number int) (*models.Round, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT r.id, r.tournament_id, r.round_number, r.is_repechage, r.created_at
		FROM rounds r
		WHERE r.tournament_id = $1 AND r.round_number = $2 AND r.is_repechage = FALSE
		  AND EXISTS (
			SELECT 1 FROM matches m
			WHERE m.round_id = r.id AND m.winner_id IS NULL
		  )`

	round := &models.Round{}
	err := executor.QueryRowContext(ctx, query, tournamentID, number).Scan(
		&round.ID, &round.TournamentID, &round.RoundNumber, &round.IsRepechage, &round.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find open round %d for tournament %d: %w", number, tournamentID, err)
	}
	return round, nil
}

func (r *postgresRoundRepository) FindRepechage(ctx context.Context, exec SQLExecutor, tournamentID int) (*models.Round, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, tournament_id, round_number, is_repechage, created_at
		FROM rounds
		WHERE tournament_id = $1 AND is_repechage = TRUE`

	round := &models.Round{}
	err := executor.QueryRowContext(ctx, query, tournamentID).Scan(
		&round.ID, &round.TournamentID, &round.RoundNumber, &round.IsRepechage, &round.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find repechage round for tournament %d: %w", tournamentID, err)
	}
	return round, nil
}

func (r *postgresRoundRepository) MaxRoundNumber(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	executor := r.getExecutor(exec)
	query := `SELECT COALESCE(MAX(round_number), 0) FROM rounds WHERE tournament_id = $1`
	var max int
	if err := executor.QueryRowContext(ctx, query, tournamentID).Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to get max round number for tournament %d: %w", tournamentID, err)
	}
	return max, nil
}

func (r *postgresRoundRepository) CountEliminationRounds(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	executor := r.getExecutor(exec)
	query := `SELECT COUNT(*) FROM rounds WHERE tournament_id = $1 AND is_repechage = FALSE`
	var count int
	if err := executor.QueryRowContext(ctx, query, tournamentID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rounds for tournament %d: %w", tournamentID, err)
	}
	return count, nil
}

func (r *postgresRoundRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Round, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, tournament_id, round_number, is_repechage, created_at
		FROM rounds
		WHERE tournament_id = $1
		ORDER BY is_repechage ASC, round_number ASC`

	rows, err := executor.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	rounds := make([]*models.Round, 0)
	for rows.Next() {
		var round models.Round
		if scanErr := rows.Scan(
			&round.ID, &round.TournamentID, &round.RoundNumber, &round.IsRepechage, &round.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan round row: %w", scanErr)
		}
		rounds = append(rounds, &round)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during round rows iteration: %w", err)
	}
	return rounds, nil
}
