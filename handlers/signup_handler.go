package handlers

import (
	"net/http"

	"github.com/Dosada05/league-orchestrator/services"
)

type SignupHandler struct {
	signup services.SignupService
}

func NewSignupHandler(signup services.SignupService) *SignupHandler {
	return &SignupHandler{signup: signup}
}

type signupRequest struct {
	InstanceName string `json:"instance_name"`
	CommunityID  string `json:"community_id"`
	DisplayName  string `json:"display_name"`
}

// Signup godoc
// @Summary Записаться в турнир по имени (с переходом в следующий при заполнении)
// @Tags signups
// @Accept json
// @Produce json
// @Param input body signupRequest true "Signup"
// @Success 200 {object} map[string]interface{} "Joined an existing instance"
// @Success 201 {object} map[string]interface{} "Instance created for this signup"
// @Failure 409 {object} map[string]string "DUPLICATE_IGN / ALREADY_REGISTERED"
// @Failure 422 {object} map[string]string "INVALID_INPUT"
// @Router /api/signups [post]
func (h *SignupHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var input signupRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.signup.Signup(r.Context(), input.InstanceName, input.CommunityID, input.DisplayName)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Branch == services.BranchCreated {
		status = http.StatusCreated
	}
	if err := writeJSON(w, status, jsonResponse{"signup": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
