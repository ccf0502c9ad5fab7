package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dosada05/knockout-system/models"
	"github.com/lib/pq"
)

var (
	ErrMatchNotFound      = errors.New("match not found")
	ErrMatchPlayerInvalid = errors.New("match player conflict or invalid")
)

type MatchRepository interface {
	// CreateBatch вставляет матчи раунда одним INSERT: раунд появляется
	// в сетке целиком или не появляется вовсе.
	CreateBatch(ctx context.Context, exec SQLExecutor, matches []*models.Match) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	ListByRound(ctx context.Context, exec SQLExecutor, roundID int) ([]*models.Match, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Match, error)
	FindByRoundPosition(ctx context.Context, exec SQLExecutor, roundID, position int) (*models.Match, error)
	// FindOpenSlotForUpdate ищет матч без второго игрока и без победителя
	// и блокирует строку: два одновременных входа не займут один слот.
	FindOpenSlotForUpdate(ctx context.Context, exec SQLExecutor, roundID int) (*models.Match, error)
	FindByeForUpdate(ctx context.Context, exec SQLExecutor, roundID int) (*models.Match, error)
	// FindLastFinished — последний сыгранный вручную матч турнира.
	// created_at и id разрешают ничью при одинаковом finished_at.
	FindLastFinished(ctx context.Context, exec SQLExecutor, tournamentID int) (*models.Match, error)
	// FindLossInRound — матч раунда, в котором игрок участвовал и проиграл.
	FindLossInRound(ctx context.Context, exec SQLExecutor, roundID, playerID int) (*models.Match, error)
	MaxPosition(ctx context.Context, exec SQLExecutor, roundID int) (int, error)
	CountUnresolvedByRound(ctx context.Context, exec SQLExecutor, roundID int) (int, error)
	CountResolvedNonByeByRound(ctx context.Context, exec SQLExecutor, roundID int) (int, error)
	UpdateResult(ctx context.Context, exec SQLExecutor, id, winnerID int, p1Score, p2Score *int, finishedAt time.Time) error
	UpdateScores(ctx context.Context, exec SQLExecutor, id int, p1Score, p2Score int) error
	ClearResult(ctx context.Context, exec SQLExecutor, id int) error
	// AssignPlayer2 сажает игрока во второй слот и снимает bye,
	// если матч был автопобедой.
	AssignPlayer2(ctx context.Context, exec SQLExecutor, id, playerID int) error
	DeleteByRound(ctx context.Context, exec SQLExecutor, roundID int) (int, error)
	Count(ctx context.Context) (int, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const matchColumns = `
	id, round_id, tournament_id, position_in_bracket,
	player1_id, player2_id, winner_id, is_bye,
	player1_score, player2_score, finished_at, created_at`

func scanMatch(row interface{ Scan(dest ...interface{}) error }, m *models.Match) error {
	return row.Scan(
		&m.ID, &m.RoundID, &m.TournamentID, &m.PositionInBracket,
		&m.Player1ID, &m.Player2ID, &m.WinnerID, &m.IsBye,
		&m.Player1Score, &m.Player2Score, &m.FinishedAt, &m.CreatedAt,
	)
}

func (r *postgresMatchRepository) CreateBatch(ctx context.Context, exec SQLExecutor, matches []*models.Match) error {
	if len(matches) == 0 {
		return nil
	}
	executor := r.getExecutor(exec)

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		INSERT INTO matches
			(round_id, tournament_id, position_in_bracket,
			 player1_id, player2_id, winner_id, is_bye,
			 player1_score, player2_score, finished_at)
		VALUES `)

	args := make([]interface{}, 0, len(matches)*10)
	for i, m := range matches {
		if i > 0 {
			queryBuilder.WriteString(", ")
		}
		base := i * 10
		queryBuilder.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10))
		args = append(args,
			m.RoundID, m.TournamentID, m.PositionInBracket,
			m.Player1ID, m.Player2ID, m.WinnerID, m.IsBye,
			m.Player1Score, m.Player2Score, m.FinishedAt,
		)
	}
	queryBuilder.WriteString(" RETURNING id, created_at")

	rows, err := executor.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return r.handleMatchError(err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		if i >= len(matches) {
			break
		}
		if scanErr := rows.Scan(&matches[i].ID, &matches[i].CreatedAt); scanErr != nil {
			return fmt.Errorf("failed to scan created match id: %w", scanErr)
		}
		i++
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("error during match insert iteration: %w", err)
	}
	return nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + matchColumns + ` FROM matches WHERE id = $1`

	m := &models.Match{}
	if err := scanMatch(executor.QueryRowContext(ctx, query, id), m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match by id %d: %w", id, err)
	}
	return m, nil
}

func (r *postgresMatchRepository) ListByRound(ctx context.Context, exec SQLExecutor, roundID int) ([]*models.Match, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + matchColumns + ` FROM matches WHERE round_id = $1 ORDER BY position_in_bracket ASC`
	return r.queryMatches(ctx, executor, query, roundID)
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Match, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + matchColumns + ` FROM matches WHERE tournament_id = $1 ORDER BY round_id ASC, position_in_bracket ASC`
	return r.queryMatches(ctx, executor, query, tournamentID)
}

func (r *postgresMatchRepository) queryMatches(ctx context.Context, executor SQLExecutor, query string, args ...interface{}) ([]*models.Match, error) {
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		var m models.Match
		if scanErr := scanMatch(rows, &m); scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		matches = append(matches, &m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) findOne(ctx context.Context, executor SQLExecutor, query string, args ...interface{}) (*models.Match, error) {
	m := &models.Match{}
	if err := scanMatch(executor.QueryRowContext(ctx, query, args...), m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan match: %w", err)
	}
	return m, nil
}

func (r *postgresMatchRepository) FindByRoundPosition(ctx context.Context, exec SQLExecutor, roundID, position int) (*models.Match, error) {
	query := `SELECT` + matchColumns + ` FROM matches WHERE round_id = $1 AND position_in_bracket = $2`
	return r.findOne(ctx, r.getExecutor(exec), query, roundID, position)
}

func (r *postgresMatchRepository) FindOpenSlotForUpdate(ctx context.Context, exec SQLExecutor, roundID int) (*models.Match, error) {
	query := `SELECT` + matchColumns + `
		FROM matches
		WHERE round_id = $1 AND player2_id IS NULL AND winner_id IS NULL
		ORDER BY position_in_bracket ASC
		LIMIT 1
		FOR UPDATE`
	return r.findOne(ctx, r.getExecutor(exec), query, roundID)
}

func (r *postgresMatchRepository) FindByeForUpdate(ctx context.Context, exec SQLExecutor, roundID int) (*models.Match, error) {
	query := `SELECT` + matchColumns + `
		FROM matches
		WHERE round_id = $1 AND is_bye = TRUE
		ORDER BY position_in_bracket ASC
		LIMIT 1
		FOR UPDATE`
	return r.findOne(ctx, r.getExecutor(exec), query, roundID)
}

func (r *postgresMatchRepository) FindLastFinished(ctx context.Context, exec SQLExecutor, tournamentID int) (*models.Match, error) {
	query := `SELECT` + matchColumns + `
		FROM matches
		WHERE tournament_id = $1 AND winner_id IS NOT NULL AND is_bye = FALSE
		ORDER BY finished_at DESC, created_at DESC, id DESC
		LIMIT 1`
	return r.findOne(ctx, r.getExecutor(exec), query, tournamentID)
}

func (r *postgresMatchRepository) FindLossInRound(ctx context.Context, exec SQLExecutor, roundID, playerID int) (*models.Match, error) {
	query := `SELECT` + matchColumns + `
		FROM matches
		WHERE round_id = $1
		  AND (player1_id = $2 OR player2_id = $2)
		  AND winner_id IS NOT NULL
		  AND winner_id <> $2
		LIMIT 1`
	return r.findOne(ctx, r.getExecutor(exec), query, roundID, playerID)
}

func (r *postgresMatchRepository) MaxPosition(ctx context.Context, exec SQLExecutor, roundID int) (int, error) {
	executor := r.getExecutor(exec)
	query := `SELECT COALESCE(MAX(position_in_bracket), 0) FROM matches WHERE round_id = $1`
	var max int
	if err := executor.QueryRowContext(ctx, query, roundID).Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to get max position for round %d: %w", roundID, err)
	}
	return max, nil
}

func (r *postgresMatchRepository) CountUnresolvedByRound(ctx context.Context, exec SQLExecutor, roundID int) (int, error) {
	executor := r.getExecutor(exec)
	query := `SELECT COUNT(*) FROM matches WHERE round_id = $1 AND winner_id IS NULL`
	var count int
	if err := executor.QueryRowContext(ctx, query, roundID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unresolved matches for round %d: %w", roundID, err)
	}
	return count, nil
}

func (r *postgresMatchRepository) CountResolvedNonByeByRound(ctx context.Context, exec SQLExecutor, roundID int) (int, error) {
	executor := r.getExecutor(exec)
	query := `SELECT COUNT(*) FROM matches WHERE round_id = $1 AND winner_id IS NOT NULL AND is_bye = FALSE`
	var count int
	if err := executor.QueryRowContext(ctx, query, roundID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count resolved matches for round %d: %w", roundID, err)
	}
	return count, nil
}

func (r *postgresMatchRepository) UpdateResult(ctx context.Context, exec SQLExecutor, id, winnerID int, p1Score, p2Score *int, finishedAt time.Time) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE matches
		SET winner_id = $1, player1_score = $2, player2_score = $3, finished_at = $4
		WHERE id = $5`
	result, err := executor.ExecContext(ctx, query, winnerID, p1Score, p2Score, finishedAt, id)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) UpdateScores(ctx context.Context, exec SQLExecutor, id int, p1Score, p2Score int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE matches SET player1_score = $1, player2_score = $2 WHERE id = $3`
	result, err := executor.ExecContext(ctx, query, p1Score, p2Score, id)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) ClearResult(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	// Счёт не трогаем: отмена снимает только исход.
	query := `UPDATE matches SET winner_id = NULL, finished_at = NULL WHERE id = $1`
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to clear result of match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) AssignPlayer2(ctx context.Context, exec SQLExecutor, id, playerID int) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE matches
		SET player2_id = $1, is_bye = FALSE, winner_id = NULL, finished_at = NULL
		WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, playerID, id)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) DeleteByRound(ctx context.Context, exec SQLExecutor, roundID int) (int, error) {
	executor := r.getExecutor(exec)
	query := `DELETE FROM matches WHERE round_id = $1`
	result, err := executor.ExecContext(ctx, query, roundID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete matches of round %d: %w", roundID, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return int(deleted), nil
}

func (r *postgresMatchRepository) Count(ctx context.Context) (int, error) {
	executor := r.getExecutor(nil)
	var count int
	if err := executor.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count matches: %w", err)
	}
	return count, nil
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Constraint {
		case "matches_player1_id_fkey", "matches_player2_id_fkey", "matches_winner_id_fkey":
			return ErrMatchPlayerInvalid
		}
	}
	return err
}
