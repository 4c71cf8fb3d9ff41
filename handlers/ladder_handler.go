package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/oarlock/gauntlet-system/services"
)

type LadderHandler struct {
	rankingService services.RankingService
}

func NewLadderHandler(rankingService services.RankingService) *LadderHandler {
	return &LadderHandler{rankingService: rankingService}
}

func (h *LadderHandler) GetLadderHandler(w http.ResponseWriter, r *http.Request) {
	gauntletID, err := getIDFromURL(r, "gauntletID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	ladder, err := h.rankingService.GetLadder(r.Context(), gauntletID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"ladder": ladder}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *LadderHandler) GetProgressionHistoryHandler(w http.ResponseWriter, r *http.Request) {
	gauntletID, err := getIDFromURL(r, "gauntletID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var lineupID *int
	if lineupStr := r.URL.Query().Get("lineup_id"); lineupStr != "" {
		id, convErr := strconv.Atoi(lineupStr)
		if convErr != nil || id < 1 {
			badRequestResponse(w, r, errors.New("invalid lineup_id parameter"))
			return
		}
		lineupID = &id
	}

	progressions, err := h.rankingService.GetProgressionHistory(r.Context(), gauntletID, lineupID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"progressions": progressions}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type adjustPositionRequest struct {
	LineupID       int     `json:"lineup_id"`
	TargetPosition int     `json:"target_position"`
	Notes          *string `json:"notes,omitempty"`
}

func (h *LadderHandler) AdjustPositionHandler(w http.ResponseWriter, r *http.Request) {
	gauntletID, err := getIDFromURL(r, "gauntletID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var req adjustPositionRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	ladder, err := h.rankingService.AdjustPosition(r.Context(), gauntletID, req.LineupID, req.TargetPosition, req.Notes)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"ladder": ladder}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
