package handlers

import (
	"net/http"

	"github.com/oarlock/gauntlet-system/services"
)

type GauntletHandler struct {
	gauntletService  services.GauntletService
	lifecycleService services.LifecycleService
}

func NewGauntletHandler(gauntletService services.GauntletService, lifecycleService services.LifecycleService) *GauntletHandler {
	return &GauntletHandler{
		gauntletService:  gauntletService,
		lifecycleService: lifecycleService,
	}
}

func (h *GauntletHandler) CreateGauntletHandler(w http.ResponseWriter, r *http.Request) {
	var input services.CreateGauntletInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	gauntlet, err := h.gauntletService.CreateGauntlet(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"gauntlet": gauntlet}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *GauntletHandler) GetGauntletHandler(w http.ResponseWriter, r *http.Request) {
	gauntletID, err := getIDFromURL(r, "gauntletID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	gauntlet, err := h.gauntletService.GetGauntlet(r.Context(), gauntletID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"gauntlet": gauntlet}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *GauntletHandler) CloseGauntletHandler(w http.ResponseWriter, r *http.Request) {
	gauntletID, err := getIDFromURL(r, "gauntletID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	gauntlet, err := h.gauntletService.CloseGauntlet(r.Context(), gauntletID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"gauntlet": gauntlet}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *GauntletHandler) DeleteGauntletHandler(w http.ResponseWriter, r *http.Request) {
	gauntletID, err := getIDFromURL(r, "gauntletID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.lifecycleService.DeleteGauntlet(r.Context(), gauntletID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *GauntletHandler) AddLineupHandler(w http.ResponseWriter, r *http.Request) {
	gauntletID, err := getIDFromURL(r, "gauntletID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.AddLineupInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	lineup, err := h.gauntletService.AddLineup(r.Context(), gauntletID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"lineup": lineup}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *GauntletHandler) DeleteLineupHandler(w http.ResponseWriter, r *http.Request) {
	lineupID, err := getIDFromURL(r, "lineupID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.lifecycleService.DeleteLineup(r.Context(), lineupID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
