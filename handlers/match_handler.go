package handlers

import (
	"net/http"

	"github.com/oarlock/gauntlet-system/services"
)

type MatchHandler struct {
	matchService     services.MatchService
	lifecycleService services.LifecycleService
}

func NewMatchHandler(matchService services.MatchService, lifecycleService services.LifecycleService) *MatchHandler {
	return &MatchHandler{
		matchService:     matchService,
		lifecycleService: lifecycleService,
	}
}

func (h *MatchHandler) RecordMatchHandler(w http.ResponseWriter, r *http.Request) {
	gauntletID, err := getIDFromURL(r, "gauntletID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.RecordMatchInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	input.GauntletID = gauntletID

	match, err := h.matchService.RecordMatch(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) ListMatchesHandler(w http.ResponseWriter, r *http.Request) {
	gauntletID, err := getIDFromURL(r, "gauntletID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	matches, err := h.matchService.ListMatchesByGauntlet(r.Context(), gauntletID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"matches": matches}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) DeleteMatchHandler(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.lifecycleService.DeleteMatch(r.Context(), matchID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
