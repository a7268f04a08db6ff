package handlers

import (
	"net/http"

	"github.com/Dosada05/league-orchestrator/services"
)

type WaitlistHandler struct {
	directory services.DirectoryService
}

func NewWaitlistHandler(directory services.DirectoryService) *WaitlistHandler {
	return &WaitlistHandler{directory: directory}
}

// Register godoc
// @Summary Записаться в лист ожидания следующего сезона
// @Tags waitlist
// @Accept json
// @Produce json
// @Param input body participantRequest true "Registration"
// @Success 201 {object} map[string]interface{}
// @Failure 409 {object} map[string]string "ALREADY_REGISTERED"
// @Failure 422 {object} map[string]string "INVALID_INPUT"
// @Router /api/waitlist [post]
func (h *WaitlistHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input participantRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	entry, count, err := h.directory.Register(r.Context(), input.CommunityID, input.DisplayName)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"entry": entry, "count": count}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *WaitlistHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	count, err := h.directory.Unregister(r.Context(), urlParam(r, "communityID"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"count": count}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *WaitlistHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.directory.Waitlist(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	env := jsonResponse{"entries": entries, "count": len(entries)}
	if err := writeJSON(w, http.StatusOK, env, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
