package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Dosada05/league-orchestrator/models"
	"github.com/Dosada05/league-orchestrator/repositories"
	"github.com/Dosada05/league-orchestrator/services"
)

const defaultListLimit = 50

type InstanceHandler struct {
	registry  services.RegistryService
	directory services.DirectoryService
}

func NewInstanceHandler(registry services.RegistryService, directory services.DirectoryService) *InstanceHandler {
	return &InstanceHandler{
		registry:  registry,
		directory: directory,
	}
}

type createInstanceRequest struct {
	Name         string        `json:"name"`
	Format       models.Format `json:"format"`
	Capacity     int           `json:"capacity"`
	BestOf       int           `json:"best_of"`
	SeasonNumber *int          `json:"season_number"`
}

// Create godoc
// @Summary Создать экземпляр турнира
// @Tags instances
// @Accept json
// @Produce json
// @Param input body createInstanceRequest true "Instance"
// @Success 201 {object} map[string]interface{}
// @Failure 409 {object} map[string]string "NAME_TAKEN"
// @Failure 422 {object} map[string]string "INVALID_INPUT"
// @Failure 502 {object} map[string]string "Bracket host error"
// @Router /api/instances [post]
func (h *InstanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input createInstanceRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	instance, err := h.registry.Create(r.Context(), services.CreateInstanceInput{
		Name:         input.Name,
		Format:       input.Format,
		Capacity:     input.Capacity,
		BestOf:       input.BestOf,
		SeasonNumber: input.SeasonNumber,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"instance": instance}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// List обрабатывает GET /api/instances?state=pending,in_progress&season=3
func (h *InstanceHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter repositories.ListInstancesFilter

	if raw := r.URL.Query().Get("state"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			state := models.InstanceState(strings.TrimSpace(s))
			if !state.Valid() {
				badRequestResponse(w, r, errors.New("invalid state query parameter"))
				return
			}
			filter.States = append(filter.States, state)
		}
	}
	season, ok, err := queryInt(r, "season")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if ok {
		filter.SeasonNumber = &season
	}
	limit, ok, err := queryInt(r, "limit")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	filter.Limit = defaultListLimit
	if ok && limit > 0 {
		filter.Limit = limit
	}
	if filter.Offset, _, err = queryInt(r, "offset"); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	instances, err := h.registry.List(r.Context(), filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"instances": instances}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *InstanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "instanceID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	instance, err := h.registry.Get(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"instance": instance}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// instanceAction wraps the id-only lifecycle calls that return the updated instance.
func (h *InstanceHandler) instanceAction(action func(r *http.Request, id int) (*models.Instance, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := getIDFromURL(r, "instanceID")
		if err != nil {
			badRequestResponse(w, r, err)
			return
		}

		instance, err := action(r, id)
		if err != nil {
			mapServiceErrorToHTTP(w, r, err)
			return
		}

		if err := writeJSON(w, http.StatusOK, jsonResponse{"instance": instance}, nil); err != nil {
			serverErrorResponse(w, r, err)
		}
	}
}

// Start godoc
// @Summary Запустить турнир (сид случайный)
// @Tags instances
// @Produce json
// @Param instanceID path int true "Instance ID"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]string "ALREADY_STARTED"
// @Router /api/instances/{instanceID}/start [post]
func (h *InstanceHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.instanceAction(func(r *http.Request, id int) (*models.Instance, error) {
		return h.registry.Start(r.Context(), id)
	})(w, r)
}

func (h *InstanceHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.instanceAction(func(r *http.Request, id int) (*models.Instance, error) {
		return h.registry.Reset(r.Context(), id)
	})(w, r)
}

func (h *InstanceHandler) Sync(w http.ResponseWriter, r *http.Request) {
	h.instanceAction(func(r *http.Request, id int) (*models.Instance, error) {
		return h.registry.Sync(r.Context(), id)
	})(w, r)
}

// Finalize godoc
// @Summary Завершить турнир и зафиксировать победителя
// @Tags instances
// @Produce json
// @Param instanceID path int true "Instance ID"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]string "NOT_STARTED / INCOMPLETE_MATCHES"
// @Router /api/instances/{instanceID}/finalize [post]
func (h *InstanceHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "instanceID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.registry.Finalize(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *InstanceHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "instanceID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.registry.Destroy(r.Context(), id); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *InstanceHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "instanceID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	participants, err := h.directory.ListParticipants(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"participants": participants}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type participantRequest struct {
	CommunityID string `json:"community_id"`
	DisplayName string `json:"display_name"`
}

// AddParticipant seats a participant directly, bypassing the rollover chain.
func (h *InstanceHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "instanceID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input participantRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	participant, count, err := h.registry.AddParticipant(r.Context(), id, input.CommunityID, input.DisplayName)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	env := jsonResponse{"participant": participant, "participant_count": count}
	if err := writeJSON(w, http.StatusCreated, env, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type renameRequest struct {
	DisplayName string `json:"display_name"`
}

// RenameParticipant обрабатывает PATCH /api/instances/{instanceID}/participants/{communityID}
func (h *InstanceHandler) RenameParticipant(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "instanceID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input renameRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	participant, err := h.directory.RenameParticipant(r.Context(), id, urlParam(r, "communityID"), input.DisplayName)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"participant": participant}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RemoveParticipant обрабатывает DELETE /api/instances/{instanceID}/participants/{communityID}
// @Summary Убрать участника из турнира до старта
// @Tags instances
// @Produce json
// @Param instanceID path int true "Instance ID"
// @Param communityID path string true "Community ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string "PARTICIPANT_NOT_FOUND"
// @Failure 409 {object} map[string]string "ALREADY_STARTED"
// @Router /api/instances/{instanceID}/participants/{communityID} [delete]
func (h *InstanceHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "instanceID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	count, err := h.registry.RemoveParticipant(r.Context(), id, urlParam(r, "communityID"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"participant_count": count}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
