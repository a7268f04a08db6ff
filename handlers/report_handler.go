package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/league-orchestrator/provider"
	"github.com/Dosada05/league-orchestrator/services"
)

type ReportHandler struct {
	reports   services.ReportService
	standings services.StandingsService
}

func NewReportHandler(reports services.ReportService, standings services.StandingsService) *ReportHandler {
	return &ReportHandler{
		reports:   reports,
		standings: standings,
	}
}

// Report godoc
// @Summary Сообщить результат матча
// @Tags matches
// @Accept json
// @Produce json
// @Param instanceID path int true "Instance ID"
// @Param input body services.ReportInput true "Result"
// @Success 200 {object} map[string]interface{}
// @Success 202 {object} map[string]interface{} "Recorded, awaiting reconciliation"
// @Failure 404 {object} map[string]string "PARTICIPANT_NOT_FOUND / MATCH_NOT_FOUND"
// @Failure 409 {object} map[string]string "NOT_STARTED / AMBIGUOUS / RECONCILIATION_PENDING"
// @Failure 422 {object} map[string]string "INVALID_SCORE"
// @Router /api/instances/{instanceID}/reports [post]
func (h *ReportHandler) Report(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "instanceID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.ReportInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	input.InstanceID = id

	result, err := h.reports.Report(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListMatches обрабатывает GET /api/instances/{instanceID}/matches?state=open
func (h *ReportHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "instanceID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	filter := provider.MatchFilter(r.URL.Query().Get("state"))
	switch filter {
	case "", provider.MatchesAll, provider.MatchesOpen, provider.MatchesPending, provider.MatchesComplete:
	default:
		badRequestResponse(w, r, errors.New("invalid state query parameter"))
		return
	}

	matches, err := h.reports.ListMatches(r.Context(), id, filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"matches": matches}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *ReportHandler) Standings(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "instanceID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	rows, err := h.standings.Standings(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"standings": rows}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
