package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/Dosada05/league-orchestrator/models"
	"github.com/Dosada05/league-orchestrator/repositories"
)

// DirectoryService owns the league waitlist and participant name lookups.
type DirectoryService interface {
	Register(ctx context.Context, communityID, displayName string) (*models.WaitlistEntry, int, error)
	Unregister(ctx context.Context, communityID string) (int, error)
	Waitlist(ctx context.Context) ([]*models.WaitlistEntry, error)
	LookupByName(ctx context.Context, instanceID int, name string) (*models.Participant, error)
	ListParticipants(ctx context.Context, instanceID int) ([]*models.Participant, error)
	RenameParticipant(ctx context.Context, instanceID int, communityID, newName string) (*models.Participant, error)
}

type directoryService struct {
	waitlistRepo    repositories.WaitlistRepository
	participantRepo repositories.ParticipantRepository
	instanceRepo    repositories.InstanceRepository
	logger          *slog.Logger
}

func NewDirectoryService(
	waitlistRepo repositories.WaitlistRepository,
	participantRepo repositories.ParticipantRepository,
	instanceRepo repositories.InstanceRepository,
	logger *slog.Logger,
) DirectoryService {
	return &directoryService{
		waitlistRepo:    waitlistRepo,
		participantRepo: participantRepo,
		instanceRepo:    instanceRepo,
		logger:          logger,
	}
}

func (s *directoryService) Register(ctx context.Context, communityID, displayName string) (*models.WaitlistEntry, int, error) {
	if err := validateCommunityID(communityID); err != nil {
		return nil, 0, err
	}
	if err := validateDisplayName(displayName); err != nil {
		return nil, 0, err
	}

	entry := &models.WaitlistEntry{
		CommunityID: strings.TrimSpace(communityID),
		DisplayName: strings.TrimSpace(displayName),
	}
	if err := s.waitlistRepo.Add(ctx, entry); err != nil {
		if errors.Is(err, repositories.ErrWaitlistConflict) {
			return nil, 0, conflictErr(CodeAlreadyRegistered, "already registered for the next season")
		}
		return nil, 0, err
	}

	count, err := s.waitlistRepo.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	s.logger.InfoContext(ctx, "waitlist registration", slog.String("community_id", entry.CommunityID), slog.Int("count", count))
	return entry, count, nil
}

func (s *directoryService) Unregister(ctx context.Context, communityID string) (int, error) {
	if err := validateCommunityID(communityID); err != nil {
		return 0, err
	}
	communityID = strings.TrimSpace(communityID)
	if err := s.waitlistRepo.Remove(ctx, communityID); err != nil {
		if errors.Is(err, repositories.ErrWaitlistEntryNotFound) {
			return 0, notFoundErr(CodeNotRegistered, "waitlist entry", communityID)
		}
		return 0, err
	}
	count, err := s.waitlistRepo.Count(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "waitlist unregistration", slog.String("community_id", communityID), slog.Int("count", count))
	return count, nil
}

func (s *directoryService) Waitlist(ctx context.Context) ([]*models.WaitlistEntry, error) {
	return s.waitlistRepo.List(ctx)
}

func (s *directoryService) LookupByName(ctx context.Context, instanceID int, name string) (*models.Participant, error) {
	participants, err := s.ListParticipants(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if p := findByDisplayName(participants, name); p != nil {
		return p, nil
	}
	return nil, notFoundErr(CodeParticipantNotFound, "participant", strings.TrimSpace(name))
}

func (s *directoryService) ListParticipants(ctx context.Context, instanceID int) ([]*models.Participant, error) {
	if _, err := s.instanceRepo.GetByID(ctx, instanceID); err != nil {
		if errors.Is(err, repositories.ErrInstanceNotFound) {
			return nil, notFoundErr(CodeNotFound, "instance", itoa(instanceID))
		}
		return nil, err
	}
	return s.participantRepo.ListByInstance(ctx, instanceID)
}

// RenameParticipant corrects a display name locally. The provider keeps the name it was given at signup;
// matches are resolved through the external id, so the bracket is unaffected.
func (s *directoryService) RenameParticipant(ctx context.Context, instanceID int, communityID, newName string) (*models.Participant, error) {
	if err := validateCommunityID(communityID); err != nil {
		return nil, err
	}
	if err := validateDisplayName(newName); err != nil {
		return nil, err
	}
	newName = strings.TrimSpace(newName)

	participant, err := s.participantRepo.FindByCommunity(ctx, instanceID, strings.TrimSpace(communityID))
	if err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			return nil, notFoundErr(CodeParticipantNotFound, "participant", communityID)
		}
		return nil, err
	}

	others, err := s.participantRepo.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	for _, p := range others {
		if p.ID != participant.ID && sameName(p.DisplayName, newName) {
			return nil, conflictErr(CodeDuplicateIGN, "%q is already used in this instance", newName)
		}
	}

	if err := s.participantRepo.UpdateDisplayName(ctx, participant.ID, newName); err != nil {
		if errors.Is(err, repositories.ErrParticipantNameConflict) {
			return nil, conflictErr(CodeDuplicateIGN, "%q is already used in this instance", newName)
		}
		return nil, err
	}
	participant.DisplayName = newName
	return participant, nil
}

func findByDisplayName(participants []*models.Participant, name string) *models.Participant {
	for _, p := range participants {
		if sameName(p.DisplayName, name) {
			return p
		}
	}
	return nil
}
