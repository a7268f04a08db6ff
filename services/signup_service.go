package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/Dosada05/league-orchestrator/metrics"
	"github.com/Dosada05/league-orchestrator/models"
)

type SignupBranch string

const (
	BranchCreated  SignupBranch = "created"
	BranchJoined   SignupBranch = "joined"
	BranchRollover SignupBranch = "rollover"
)

// maxRolloverChain bounds how far a signup walks T1 -> T1-2 -> ... looking for an open instance.
const maxRolloverChain = 50

type SignupResult struct {
	Branch      SignupBranch        `json:"branch"`
	Instance    *models.Instance    `json:"instance"`
	Participant *models.Participant `json:"participant"`
	Successor   *models.Instance    `json:"successor,omitempty"`
	// PendingRollover is set when the instance filled up but starting it or creating its
	// successor failed. The next signup against the chain retries the rollover.
	PendingRollover bool `json:"pending_rollover,omitempty"`
}

type SignupService interface {
	Signup(ctx context.Context, instanceName, communityID, displayName string) (*SignupResult, error)
}

type signupService struct {
	registry RegistryService
	locks    *keyedMutex
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewSignupService(registry RegistryService, m *metrics.Metrics, logger *slog.Logger) SignupService {
	return &signupService{
		registry: registry,
		locks:    newKeyedMutex(),
		metrics:  m,
		logger:   logger,
	}
}

func (s *signupService) Signup(ctx context.Context, instanceName, communityID, displayName string) (*SignupResult, error) {
	instanceName = strings.TrimSpace(instanceName)
	if instanceName == "" {
		return nil, validationErr(CodeInvalidInput, "instance_name", "instance name is required")
	}
	if err := validateCommunityID(communityID); err != nil {
		return nil, err
	}
	if err := validateDisplayName(displayName); err != nil {
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, "signup:"+normalizeName(instanceName))
	if err != nil {
		return nil, err
	}
	defer unlock()

	instance, branch, err := s.resolveTarget(ctx, instanceName)
	if err != nil {
		return nil, err
	}

	participant, count, err := s.registry.AddParticipant(ctx, instance.ID, communityID, displayName)
	if err != nil {
		return nil, err
	}
	instance.ParticipantCount = count

	result := &SignupResult{
		Branch:      branch,
		Instance:    instance,
		Participant: participant,
	}

	if count == instance.Capacity {
		started, successor, err := s.rollover(ctx, instance)
		if started != nil {
			result.Instance = started
		}
		if err != nil {
			s.logger.ErrorContext(ctx, "rollover failed, will retry on next signup",
				slog.Int("instance_id", instance.ID),
				slog.String("name", instance.Name),
				slog.Any("error", err),
			)
			result.PendingRollover = true
		} else {
			result.Branch = BranchRollover
			result.Successor = successor
		}
	}

	s.metrics.Signup(string(result.Branch))
	s.logger.InfoContext(ctx, "signup accepted",
		slog.String("branch", string(result.Branch)),
		slog.Int("instance_id", result.Instance.ID),
		slog.String("community_id", communityID),
		slog.Int("count", count),
	)
	return result, nil
}

// resolveTarget follows the rollover chain from name to the first Pending instance with a
// free seat, creating the first missing link. An instance left full by an interrupted
// rollover is started on the way.
func (s *signupService) resolveTarget(ctx context.Context, name string) (*models.Instance, SignupBranch, error) {
	var template *models.Instance
	current := name
	for range maxRolloverChain {
		instance, err := s.registry.LookupByNameFuzzy(ctx, current)
		switch {
		case err == nil:
			template = instance
			if instance.State == models.StatePending {
				if !instance.IsFull() {
					return instance, BranchJoined, nil
				}
				if _, _, err := s.rollover(ctx, instance); err != nil {
					return nil, "", err
				}
			}
			current = successorName(instance.Name)

		case errors.Is(err, CodeNotFound):
			input := CreateInstanceInput{Name: current}
			if template != nil {
				input.Format = template.Format
				input.Capacity = template.Capacity
				input.BestOf = template.BestOf
				input.SeasonNumber = template.SeasonNumber
			}
			created, err := s.registry.Create(ctx, input)
			if errors.Is(err, CodeNameTaken) {
				// lost a race with another chain; look the name up again
				continue
			}
			if err != nil {
				return nil, "", err
			}
			return created, BranchCreated, nil

		default:
			return nil, "", err
		}
	}
	return nil, "", conflictErr(CodeCapacityExceeded, "no open instance found after %q", name)
}

// rollover starts a full instance and opens its successor under the next free name.
func (s *signupService) rollover(ctx context.Context, instance *models.Instance) (*models.Instance, *models.Instance, error) {
	started := instance
	if instance.State == models.StatePending {
		var err error
		started, err = s.registry.Start(ctx, instance.ID)
		if err != nil && !errors.Is(err, CodeAlreadyStarted) {
			return nil, nil, err
		}
		if started == nil {
			started = instance
		}
	}

	name := successorName(instance.Name)
	for range maxRolloverChain {
		taken, err := s.registry.NameTaken(ctx, name)
		if err != nil {
			return started, nil, err
		}
		if !taken {
			successor, err := s.registry.Create(ctx, CreateInstanceInput{
				Name:         name,
				Format:       instance.Format,
				Capacity:     instance.Capacity,
				BestOf:       instance.BestOf,
				SeasonNumber: instance.SeasonNumber,
			})
			if err == nil {
				s.logger.InfoContext(ctx, "instance rolled over",
					slog.String("from", instance.Name),
					slog.String("to", successor.Name),
				)
				return started, successor, nil
			}
			if !errors.Is(err, CodeNameTaken) {
				return started, nil, err
			}
		}
		name = successorName(name)
	}
	return started, nil, conflictErr(CodeNameTaken, "no free successor name after %q", instance.Name)
}
