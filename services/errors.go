package services

import "errors"

// Сервисные ошибки. Хендлеры мапят их на HTTP-статусы,
// поэтому сервисы не знают про транспорт.
var (
	// Общие
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrMatchNotFound      = errors.New("match not found")
	ErrPlayerNotFound     = errors.New("player not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrForbiddenOperation = errors.New("operation forbidden for this user")
	ErrValidationFailed   = errors.New("validation failed")

	// Аутентификация
	ErrUserEmailExists    = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")

	// Жизненный цикл турнира
	ErrInvalidStatusTransition = errors.New("invalid tournament status transition")
	ErrTournamentNotRunning    = errors.New("tournament is not running")
	ErrTournamentFinished      = errors.New("tournament is already finished")
	ErrRegistrationClosed      = errors.New("tournament registration is closed")
	ErrNotEnoughPlayers        = errors.New("not enough players to start the tournament")
	ErrTournamentHasBracket    = errors.New("tournament bracket already generated")

	// Запись результата
	ErrMatchNotInTournament  = errors.New("match does not belong to this tournament")
	ErrMatchAlreadyResolved  = errors.New("match already has a winner")
	ErrMatchAwaitingOpponent = errors.New("match is awaiting an opponent")
	ErrByeImmutable          = errors.New("bye match result cannot be changed")
	ErrWinnerNotInMatch      = errors.New("winner must be one of the match players")
	ErrDownstreamResolved    = errors.New("downstream match already has a winner")
	ErrScoresInvalid         = errors.New("scores must be non-negative and not equal")
	ErrScoreWinnerMismatch   = errors.New("higher score must belong to the winner")
	ErrScoresIncomplete      = errors.New("both scores must be provided together")
	ErrMatchNotResolved      = errors.New("match has no winner yet")

	// Продвижение раунда
	ErrRoundAlreadyAdvanced = errors.New("next round already contains progress")

	// Отмена
	ErrNothingToUndo    = errors.New("no finished match to undo")
	ErrDownstreamPlayed = errors.New("a downstream match has already been played")

	// Поздний вход
	ErrLateEntryDisabled  = errors.New("late entry is not allowed for this tournament")
	ErrLateEntryClosed    = errors.New("late entry window is closed: round 1 is complete")
	ErrPlayerNameRequired = errors.New("player name is required")
	ErrPlayerNameTaken    = errors.New("player with this name is already registered")

	// Ребай
	ErrRebuyDisabled      = errors.New("rebuy is not allowed for this tournament")
	ErrRebuyNotEliminated = errors.New("only players eliminated in round 1 may rebuy")
	ErrRebuyAlreadyUsed   = errors.New("player has already used their rebuy")
)
