package handlers

import (
	"net/http"

	"github.com/Dosada05/knockout-system/middleware"
	"github.com/Dosada05/knockout-system/services"
)

type EntryHandler struct {
	entryService services.EntryService
}

func NewEntryHandler(entryService services.EntryService) *EntryHandler {
	return &EntryHandler{entryService: entryService}
}

// LateEntry допускает нового игрока, пока первый раунд не доигран.
// При совпадении имени без force возвращается 200 с is_duplicate.
func (h *EntryHandler) LateEntry(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}
	tournamentID, err := readIDParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.LateEntryInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	outcome, err := h.entryService.LateEntry(r.Context(), userID, tournamentID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	status := http.StatusCreated
	if outcome.IsDuplicate {
		status = http.StatusOK
	}
	if err := writeJSON(w, status, outcome, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *EntryHandler) Rebuy(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}
	tournamentID, err := readIDParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	playerID, err := readIDParam(r, "playerID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	outcome, err := h.entryService.Rebuy(r.Context(), userID, tournamentID, playerID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, outcome, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
