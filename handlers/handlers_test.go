package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/league-orchestrator/models"
	"github.com/Dosada05/league-orchestrator/provider"
	"github.com/Dosada05/league-orchestrator/repositories"
	"github.com/Dosada05/league-orchestrator/services"
)

// Stubs embed the service interface; calling a method without a Func set panics.

type stubRegistry struct {
	services.RegistryService
	CreateFunc   func(ctx context.Context, input services.CreateInstanceInput) (*models.Instance, error)
	ListFunc     func(ctx context.Context, filter repositories.ListInstancesFilter) ([]*models.Instance, error)
	GetFunc      func(ctx context.Context, id int) (*models.Instance, error)
	FinalizeFunc func(ctx context.Context, id int, assumeComplete ...int64) (*services.FinalizeResult, error)
	RemoveFunc   func(ctx context.Context, instanceID int, communityID string) (int, error)
}

func (s *stubRegistry) Create(ctx context.Context, input services.CreateInstanceInput) (*models.Instance, error) {
	return s.CreateFunc(ctx, input)
}

func (s *stubRegistry) List(ctx context.Context, filter repositories.ListInstancesFilter) ([]*models.Instance, error) {
	return s.ListFunc(ctx, filter)
}

func (s *stubRegistry) Get(ctx context.Context, id int) (*models.Instance, error) {
	return s.GetFunc(ctx, id)
}

func (s *stubRegistry) RemoveParticipant(ctx context.Context, instanceID int, communityID string) (int, error) {
	return s.RemoveFunc(ctx, instanceID, communityID)
}

func (s *stubRegistry) Finalize(ctx context.Context, id int, assumeComplete ...int64) (*services.FinalizeResult, error) {
	return s.FinalizeFunc(ctx, id, assumeComplete...)
}

type stubDirectory struct {
	services.DirectoryService
	UnregisterFunc func(ctx context.Context, communityID string) (int, error)
}

func (s *stubDirectory) Unregister(ctx context.Context, communityID string) (int, error) {
	return s.UnregisterFunc(ctx, communityID)
}

type stubSignup struct {
	SignupFunc func(ctx context.Context, instanceName, communityID, displayName string) (*services.SignupResult, error)
}

func (s *stubSignup) Signup(ctx context.Context, instanceName, communityID, displayName string) (*services.SignupResult, error) {
	return s.SignupFunc(ctx, instanceName, communityID, displayName)
}

type stubReports struct {
	services.ReportService
	ReportFunc func(ctx context.Context, input services.ReportInput) (*services.ReportResult, error)
}

func (s *stubReports) Report(ctx context.Context, input services.ReportInput) (*services.ReportResult, error) {
	return s.ReportFunc(ctx, input)
}

type stubSeasons struct {
	services.SeasonService
	EndSeasonFunc func(ctx context.Context, season int) (*services.SeasonBatchResult, error)
}

func (s *stubSeasons) EndSeason(ctx context.Context, season int) (*services.SeasonBatchResult, error) {
	return s.EndSeasonFunc(ctx, season)
}

func do(t *testing.T, router http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func TestReportHandler(t *testing.T) {
	reports := &stubReports{}
	h := NewReportHandler(reports, nil)
	router := chi.NewRouter()
	router.Post("/api/instances/{instanceID}/reports", h.Report)

	t.Run("ok", func(t *testing.T) {
		reports.ReportFunc = func(ctx context.Context, input services.ReportInput) (*services.ReportResult, error) {
			assert.Equal(t, services.ReportInput{InstanceID: 7, Round: 1, WinnerName: "Alice", WinnerGames: 3, TotalGames: 5}, input)
			return &services.ReportResult{
				Report: &models.MatchReport{ID: "r-1", Status: models.ReportStatusPushed},
				Match:  &models.Match{ExternalID: 11, ScoresCSV: "3-2", State: models.MatchStateComplete},
			}, nil
		}
		rec, env := do(t, router, http.MethodPost, "/api/instances/7/reports",
			`{"round":1,"winner_name":"Alice","winner_games":3,"total_games":5}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		result := env["result"].(map[string]any)
		assert.Equal(t, "3-2", result["match"].(map[string]any)["scores_csv"])
	})

	t.Run("invalid score", func(t *testing.T) {
		reports.ReportFunc = func(ctx context.Context, input services.ReportInput) (*services.ReportResult, error) {
			return nil, &services.ValidationError{Code: services.CodeInvalidScore, Field: "winner_games", Message: "4-1 is not a valid best-of-5 result"}
		}
		rec, env := do(t, router, http.MethodPost, "/api/instances/7/reports",
			`{"round":1,"winner_name":"Alice","winner_games":4,"total_games":5}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "INVALID_SCORE", env["code"])
		assert.Equal(t, "winner_games", env["field"])
	})

	t.Run("needs reconciliation", func(t *testing.T) {
		reports.ReportFunc = func(ctx context.Context, input services.ReportInput) (*services.ReportResult, error) {
			return nil, &services.ReconciliationNeededError{ReportID: "r-9", Op: "update_match", Err: provider.ErrOutcomeUnknown}
		}
		rec, env := do(t, router, http.MethodPost, "/api/instances/7/reports",
			`{"round":1,"winner_name":"Alice","winner_games":3,"total_games":3}`)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "RECONCILIATION_NEEDED", env["code"])
		assert.Equal(t, "r-9", env["report_id"])
	})

	t.Run("provider down", func(t *testing.T) {
		reports.ReportFunc = func(ctx context.Context, input services.ReportInput) (*services.ReportResult, error) {
			return nil, &services.ExternalServiceError{Code: services.CodeProviderUnavailable, Op: "list_matches", Err: provider.ErrUnavailable}
		}
		rec, env := do(t, router, http.MethodPost, "/api/instances/7/reports",
			`{"round":1,"winner_name":"Alice","winner_games":3,"total_games":3}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "PROVIDER_UNAVAILABLE", env["code"])
	})

	t.Run("bad body", func(t *testing.T) {
		rec, env := do(t, router, http.MethodPost, "/api/instances/7/reports", `{"round":1,"winner":"Alice"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, env["error"], "unknown key")

		rec, _ = do(t, router, http.MethodPost, "/api/instances/abc/reports", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSignupHandler_StatusFollowsBranch(t *testing.T) {
	signup := &stubSignup{}
	router := chi.NewRouter()
	router.Post("/api/signups", NewSignupHandler(signup).Signup)

	for branch, want := range map[services.SignupBranch]int{
		services.BranchCreated:  http.StatusCreated,
		services.BranchJoined:   http.StatusOK,
		services.BranchRollover: http.StatusOK,
	} {
		signup.SignupFunc = func(ctx context.Context, instanceName, communityID, displayName string) (*services.SignupResult, error) {
			assert.Equal(t, "T1", instanceName)
			return &services.SignupResult{Branch: branch, Instance: &models.Instance{Name: instanceName}}, nil
		}
		rec, env := do(t, router, http.MethodPost, "/api/signups",
			`{"instance_name":"T1","community_id":"c-1","display_name":"Alice"}`)
		assert.Equal(t, want, rec.Code, branch)
		assert.Equal(t, string(branch), env["signup"].(map[string]any)["branch"])
	}

	signup.SignupFunc = func(ctx context.Context, instanceName, communityID, displayName string) (*services.SignupResult, error) {
		return nil, &services.ConflictError{Code: services.CodeDuplicateIGN, Message: `"Alice" is already used`}
	}
	rec, env := do(t, router, http.MethodPost, "/api/signups",
		`{"instance_name":"T1","community_id":"c-2","display_name":"alice"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_IGN", env["code"])
}

func TestInstanceHandler(t *testing.T) {
	registry := &stubRegistry{}
	h := NewInstanceHandler(registry, nil)
	router := chi.NewRouter()
	router.Get("/api/instances", h.List)
	router.Post("/api/instances", h.Create)
	router.Get("/api/instances/{instanceID}", h.Get)
	router.Post("/api/instances/{instanceID}/finalize", h.Finalize)
	router.Delete("/api/instances/{instanceID}/participants/{communityID}", h.RemoveParticipant)

	t.Run("create", func(t *testing.T) {
		registry.CreateFunc = func(ctx context.Context, input services.CreateInstanceInput) (*models.Instance, error) {
			assert.Equal(t, models.FormatRoundRobin, input.Format)
			require.NotNil(t, input.SeasonNumber)
			assert.Equal(t, 2, *input.SeasonNumber)
			return &models.Instance{ID: 1, Name: input.Name, Format: input.Format, State: models.StatePending}, nil
		}
		rec, env := do(t, router, http.MethodPost, "/api/instances",
			`{"name":"S2 Fire","format":"round_robin","capacity":8,"season_number":2}`)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "S2 Fire", env["instance"].(map[string]any)["name"])
	})

	t.Run("list filters", func(t *testing.T) {
		registry.ListFunc = func(ctx context.Context, filter repositories.ListInstancesFilter) ([]*models.Instance, error) {
			assert.Equal(t, []models.InstanceState{models.StatePending, models.StateInProgress}, filter.States)
			require.NotNil(t, filter.SeasonNumber)
			assert.Equal(t, 3, *filter.SeasonNumber)
			assert.Equal(t, defaultListLimit, filter.Limit)
			return []*models.Instance{}, nil
		}
		rec, env := do(t, router, http.MethodGet, "/api/instances?state=pending,in_progress&season=3", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, env["instances"])

		rec, _ = do(t, router, http.MethodGet, "/api/instances?state=archived", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rec, _ = do(t, router, http.MethodGet, "/api/instances?limit=-1", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not found", func(t *testing.T) {
		registry.GetFunc = func(ctx context.Context, id int) (*models.Instance, error) {
			return nil, &services.NotFoundError{Code: services.CodeNotFound, Resource: "instance", Key: "42"}
		}
		rec, env := do(t, router, http.MethodGet, "/api/instances/42", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NOT_FOUND", env["code"])
	})

	t.Run("finalize conflict", func(t *testing.T) {
		registry.FinalizeFunc = func(ctx context.Context, id int, assumeComplete ...int64) (*services.FinalizeResult, error) {
			assert.Empty(t, assumeComplete)
			return nil, &services.ConflictError{Code: services.CodeIncompleteMatches, Message: "2 matches in \"T1\" are not complete"}
		}
		rec, env := do(t, router, http.MethodPost, "/api/instances/5/finalize", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "INCOMPLETE_MATCHES", env["code"])
	})

	t.Run("remove participant", func(t *testing.T) {
		registry.RemoveFunc = func(ctx context.Context, instanceID int, communityID string) (int, error) {
			assert.Equal(t, 7, instanceID)
			if communityID != "guild/member 1" {
				return 0, &services.ConflictError{Code: services.CodeAlreadyStarted, Message: "instance \"T1\" has started"}
			}
			return 3, nil
		}
		rec, env := do(t, router, http.MethodDelete, "/api/instances/7/participants/guild%2Fmember%201", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.EqualValues(t, 3, env["participant_count"])

		rec, env = do(t, router, http.MethodDelete, "/api/instances/7/participants/other", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "ALREADY_STARTED", env["code"])
	})

	t.Run("unexpected error is hidden", func(t *testing.T) {
		registry.GetFunc = func(ctx context.Context, id int) (*models.Instance, error) {
			return nil, assert.AnError
		}
		rec, env := do(t, router, http.MethodGet, "/api/instances/1", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, env["error"], assert.AnError.Error())
	})
}

func TestWaitlistHandler_UnregisterDecodesCommunityID(t *testing.T) {
	directory := &stubDirectory{
		UnregisterFunc: func(ctx context.Context, communityID string) (int, error) {
			if communityID != "guild/member 1" {
				return 0, &services.NotFoundError{Code: services.CodeNotRegistered, Resource: "waitlist entry", Key: communityID}
			}
			return 4, nil
		},
	}
	router := chi.NewRouter()
	router.Delete("/api/waitlist/{communityID}", NewWaitlistHandler(directory).Unregister)

	rec, env := do(t, router, http.MethodDelete, "/api/waitlist/guild%2Fmember%201", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, env["count"])

	rec, env = do(t, router, http.MethodDelete, "/api/waitlist/stranger", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_REGISTERED", env["code"])
}

func TestSeasonHandler_EndReportsPartialFailure(t *testing.T) {
	seasons := &stubSeasons{
		EndSeasonFunc: func(ctx context.Context, season int) (*services.SeasonBatchResult, error) {
			return &services.SeasonBatchResult{
				Season:    season,
				Succeeded: []services.DivisionOutcome{{InstanceID: 1, Name: "S4 Fire", ArchiveURL: "https://archive.test/s4-fire.json"}},
				Skipped:   []services.DivisionOutcome{},
				Failed:    []services.DivisionOutcome{{InstanceID: 2, Name: "S4 Ice", Error: "INCOMPLETE_MATCHES: 1 matches in \"S4 Ice\" are not complete"}},
			}, nil
		},
	}
	router := chi.NewRouter()
	router.Post("/api/seasons/{season}/end", NewSeasonHandler(seasons, nil, nil).End)

	rec, env := do(t, router, http.MethodPost, "/api/seasons/4/end", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	result := env["result"].(map[string]any)
	assert.EqualValues(t, 4, result["season"])
	assert.Len(t, result["succeeded"], 1)
	assert.Len(t, result["failed"], 1)

	rec, _ = do(t, router, http.MethodPost, "/api/seasons/0/end", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
