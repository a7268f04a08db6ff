package handlers

import (
	"context"
	"net/http"

	"github.com/Dosada05/league-orchestrator/services"
)

type SeasonHandler struct {
	seasons   services.SeasonService
	standings services.StandingsService
	reconcile services.ReconcileService
}

func NewSeasonHandler(seasons services.SeasonService, standings services.StandingsService, reconcile services.ReconcileService) *SeasonHandler {
	return &SeasonHandler{
		seasons:   seasons,
		standings: standings,
		reconcile: reconcile,
	}
}

type createSeasonRequest struct {
	DivisionNames []string `json:"division_names"`
}

// Create godoc
// @Summary Создать сезон из листа ожидания
// @Tags seasons
// @Accept json
// @Produce json
// @Param season path int true "Season number"
// @Param input body createSeasonRequest true "Division names"
// @Success 201 {object} map[string]interface{}
// @Failure 409 {object} map[string]string "NAME_TAKEN"
// @Failure 422 {object} map[string]string "EMPTY_WAITLIST / NOT_ENOUGH_DIVISION_NAMES"
// @Router /api/seasons/{season} [post]
func (h *SeasonHandler) Create(w http.ResponseWriter, r *http.Request) {
	season, err := getIDFromURL(r, "season")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input createSeasonRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.seasons.CreateSeason(r.Context(), season, input.DivisionNames)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"season": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Start и End возвращают 200 даже при частичных ошибках; детали в failed.
func (h *SeasonHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, h.seasons.StartSeason)
}

func (h *SeasonHandler) End(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, h.seasons.EndSeason)
}

func (h *SeasonHandler) batch(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, season int) (*services.SeasonBatchResult, error)) {
	season, err := getIDFromURL(r, "season")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := op(r.Context(), season)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *SeasonHandler) Standings(w http.ResponseWriter, r *http.Request) {
	season, err := getIDFromURL(r, "season")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	divisions, err := h.standings.SeasonStandings(r.Context(), season)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"season": season, "divisions": divisions}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Reconcile runs one reconciliation pass on demand.
func (h *SeasonHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reconcile.RunOnce(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"summary": summary}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
