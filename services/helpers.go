package services

import (
	"github.com/Dosada05/knockout-system/brackets"
	"github.com/Dosada05/knockout-system/models"
)

// Broadcaster рассылает события в комнату турнира. Реализуется brackets.Hub;
// в тестах подменяется заглушкой.
type Broadcaster interface {
	BroadcastToRoom(roomID string, event brackets.Event)
}

// isValidStatusTransition описывает легальные переходы жизненного цикла.
// finished -> running существует только для движка отмены и здесь не числится.
func isValidStatusTransition(current, next models.TournamentStatus) bool {
	allowed, ok := map[models.TournamentStatus][]models.TournamentStatus{
		models.StatusDraft: {models.StatusOpen},
		models.StatusOpen:  {models.StatusRunning},
	}[current]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == next {
			return true
		}
	}
	return false
}

// ensureOwnership сверяет организатора турнира с текущим пользователем.
func ensureOwnership(t *models.Tournament, userID int) error {
	if t.OrganizerID != userID {
		return ErrForbiddenOperation
	}
	return nil
}
