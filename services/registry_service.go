package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Dosada05/league-orchestrator/models"
	"github.com/Dosada05/league-orchestrator/provider"
	"github.com/Dosada05/league-orchestrator/repositories"
)

// LeagueSettings are the defaults applied to newly created instances.
type LeagueSettings struct {
	DefaultCapacity int
	DefaultBestOf   int
	GameName        string
}

type CreateInstanceInput struct {
	Name         string
	Format       models.Format
	Capacity     int
	BestOf       int
	SeasonNumber *int
}

type FinalizeResult struct {
	Instance *models.Instance    `json:"instance"`
	Winner   *models.Participant `json:"winner,omitempty"`

	// AlreadyComplete is set when the call was a no-op.
	AlreadyComplete bool `json:"already_complete"`
}

type RegistryService interface {
	Create(ctx context.Context, input CreateInstanceInput) (*models.Instance, error)
	Get(ctx context.Context, id int) (*models.Instance, error)
	List(ctx context.Context, filter repositories.ListInstancesFilter) ([]*models.Instance, error)
	NameTaken(ctx context.Context, name string) (bool, error)
	LookupByNameFuzzy(ctx context.Context, name string, states ...models.InstanceState) (*models.Instance, error)
	// AddParticipant seats a participant in a Pending instance and returns the new participant count.
	AddParticipant(ctx context.Context, instanceID int, communityID, displayName string) (*models.Participant, int, error)
	// RemoveParticipant withdraws a participant from a Pending instance and returns the new participant count.
	RemoveParticipant(ctx context.Context, instanceID int, communityID string) (int, error)
	Start(ctx context.Context, id int) (*models.Instance, error)
	// Finalize treats the listed provider match ids as complete even if the provider does not show them yet.
	Finalize(ctx context.Context, id int, assumeComplete ...int64) (*FinalizeResult, error)
	Reset(ctx context.Context, id int) (*models.Instance, error)
	Destroy(ctx context.Context, id int) error
	Sync(ctx context.Context, id int) (*models.Instance, error)
}

type registryService struct {
	instanceRepo    repositories.InstanceRepository
	participantRepo repositories.ParticipantRepository
	reportRepo      repositories.ReportRepository
	provider        provider.Provider
	tx              TxRunner
	locks           *InstanceLocks
	settings        LeagueSettings
	logger          *slog.Logger
	now             func() time.Time
}

func NewRegistryService(
	instanceRepo repositories.InstanceRepository,
	participantRepo repositories.ParticipantRepository,
	reportRepo repositories.ReportRepository,
	prov provider.Provider,
	tx TxRunner,
	locks *InstanceLocks,
	settings LeagueSettings,
	logger *slog.Logger,
) RegistryService {
	if settings.DefaultCapacity < 2 {
		settings.DefaultCapacity = models.DefaultCapacity
	}
	if settings.DefaultBestOf < 1 {
		settings.DefaultBestOf = models.DefaultBestOf
	}
	return &registryService{
		instanceRepo:    instanceRepo,
		participantRepo: participantRepo,
		reportRepo:      reportRepo,
		provider:        prov,
		tx:              tx,
		locks:           locks,
		settings:        settings,
		logger:          logger,
		now:             time.Now,
	}
}

func (s *registryService) Create(ctx context.Context, input CreateInstanceInput) (*models.Instance, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, validationErr(CodeInvalidInput, "name", "instance name is required")
	}
	if len([]rune(name)) > maxInstanceNameLength {
		return nil, validationErr(CodeInvalidInput, "name", "instance name must be at most %d characters", maxInstanceNameLength)
	}
	if input.Format == "" {
		input.Format = models.FormatSingleElimination
	}
	if !input.Format.Valid() {
		return nil, validationErr(CodeInvalidInput, "format", "unsupported format %q", input.Format)
	}
	if input.Capacity == 0 {
		input.Capacity = s.settings.DefaultCapacity
	}
	if input.Capacity < 2 {
		return nil, validationErr(CodeInvalidInput, "capacity", "capacity must be at least 2")
	}
	if input.BestOf == 0 {
		input.BestOf = s.settings.DefaultBestOf
	}
	if input.BestOf < 1 || input.BestOf%2 == 0 {
		return nil, validationErr(CodeInvalidInput, "best_of", "best_of must be a positive odd number")
	}

	taken, err := s.instanceRepo.NameExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, conflictErr(CodeNameTaken, "an instance named %q already exists", name)
	}

	url, err := s.freeURL(ctx, name)
	if err != nil {
		return nil, err
	}

	t, err := s.createUpstream(ctx, provider.CreateParams{
		Name:     name,
		URL:      url,
		Format:   input.Format,
		GameName: s.settings.GameName,
	})
	if err != nil {
		return nil, err
	}

	instance := &models.Instance{
		Name:         name,
		URL:          url,
		ExternalID:   t.ID,
		State:        models.StatePending,
		Capacity:     input.Capacity,
		Format:       input.Format,
		BestOf:       input.BestOf,
		SeasonNumber: input.SeasonNumber,
	}
	if err := s.instanceRepo.Create(ctx, nil, instance); err != nil {
		s.discardUpstream(ctx, t.ID)
		if errors.Is(err, repositories.ErrInstanceNameConflict) {
			return nil, conflictErr(CodeNameTaken, "an instance named %q already exists", name)
		}
		return nil, fmt.Errorf("failed to store instance %q: %w", name, err)
	}

	s.logger.InfoContext(ctx, "instance created",
		slog.Int("instance_id", instance.ID),
		slog.String("name", instance.Name),
		slog.Int64("external_id", instance.ExternalID),
	)
	return instance, nil
}

// freeURL picks a timestamped slug that no local instance uses yet.
func (s *registryService) freeURL(ctx context.Context, name string) (string, error) {
	now := s.now()
	for offset := int64(0); offset < 100; offset++ {
		candidate := instanceURL(name, now, offset)
		used, err := s.instanceRepo.URLExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !used {
			return candidate, nil
		}
	}
	return "", conflictErr(CodeNameTaken, "could not allocate a unique url for %q", name)
}

// createUpstream never blindly repeats a create whose outcome is unknown: it first checks
// whether the tournament exists under the requested url.
func (s *registryService) createUpstream(ctx context.Context, params provider.CreateParams) (*provider.Tournament, error) {
	t, err := s.provider.CreateTournament(ctx, params)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, provider.ErrOutcomeUnknown) {
		return nil, externalErr("create_tournament", err)
	}

	s.logger.WarnContext(ctx, "create outcome unknown, checking provider", slog.String("url", params.URL), slog.Any("error", err))
	existing, showErr := s.provider.ShowTournamentByURL(ctx, params.URL)
	switch {
	case showErr == nil:
		return existing, nil
	case errors.Is(showErr, provider.ErrNotFound):
		t, err = s.provider.CreateTournament(ctx, params)
		if err != nil {
			return nil, externalErr("create_tournament", err)
		}
		return t, nil
	default:
		return nil, externalErr("create_tournament", errors.Join(err, showErr))
	}
}

func (s *registryService) discardUpstream(ctx context.Context, externalID int64) {
	if err := s.provider.DestroyTournament(ctx, externalID); err != nil && !errors.Is(err, provider.ErrNotFound) {
		s.logger.ErrorContext(ctx, "failed to discard orphaned provider tournament",
			slog.Int64("external_id", externalID),
			slog.Any("error", err),
		)
	}
}

func (s *registryService) Get(ctx context.Context, id int) (*models.Instance, error) {
	instance, err := s.instanceRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrInstanceNotFound) {
			return nil, notFoundErr(CodeNotFound, "instance", itoa(id))
		}
		return nil, err
	}
	if instance.WinnerParticipantID != nil {
		winner, err := s.participantRepo.GetByID(ctx, *instance.WinnerParticipantID)
		if err == nil {
			instance.Winner = winner
		} else if !errors.Is(err, repositories.ErrParticipantNotFound) {
			return nil, err
		}
	}
	return instance, nil
}

func (s *registryService) List(ctx context.Context, filter repositories.ListInstancesFilter) ([]*models.Instance, error) {
	return s.instanceRepo.List(ctx, filter)
}

func (s *registryService) NameTaken(ctx context.Context, name string) (bool, error) {
	return s.instanceRepo.NameExists(ctx, strings.TrimSpace(name))
}

func (s *registryService) LookupByNameFuzzy(ctx context.Context, name string, states ...models.InstanceState) (*models.Instance, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationErr(CodeInvalidInput, "name", "instance name is required")
	}

	local, err := s.instanceRepo.FindByName(ctx, name, nil)
	if err != nil {
		return nil, err
	}
	if len(local) > 0 {
		matched := make([]*models.Instance, 0, len(local))
		for _, inst := range local {
			if stateIn(inst.State, states) {
				matched = append(matched, inst)
			}
		}
		switch len(matched) {
		case 0:
			return nil, notFoundErr(CodeNotFound, "instance", name)
		case 1:
			return matched[0], nil
		default:
			return nil, conflictErr(CodeAmbiguous, "%d instances match %q", len(matched), name)
		}
	}

	// First discovery: the name is unknown locally, so consult the provider once and adopt the result.
	remote, err := s.provider.ListTournaments(ctx, provider.ListAll)
	if err != nil {
		return nil, externalErr("list_tournaments", err)
	}
	var found []provider.Tournament
	for _, t := range remote {
		if sameName(t.Name, name) && stateIn(t.State.InstanceState(), states) {
			found = append(found, t)
		}
	}
	switch len(found) {
	case 0:
		return nil, notFoundErr(CodeNotFound, "instance", name)
	case 1:
		return s.adopt(ctx, found[0])
	default:
		return nil, conflictErr(CodeAmbiguous, "%d provider tournaments match %q", len(found), name)
	}
}

func (s *registryService) adopt(ctx context.Context, t provider.Tournament) (*models.Instance, error) {
	if existing, err := s.instanceRepo.GetByExternalID(ctx, t.ID); err == nil {
		return existing, nil
	} else if !errors.Is(err, repositories.ErrInstanceNotFound) {
		return nil, err
	}

	capacity := max(s.settings.DefaultCapacity, t.ParticipantsCount)
	instance := &models.Instance{
		Name:             t.Name,
		URL:              t.URL,
		ExternalID:       t.ID,
		State:            t.State.InstanceState(),
		Capacity:         capacity,
		ParticipantCount: t.ParticipantsCount,
		Format:           t.Format,
		BestOf:           s.settings.DefaultBestOf,
	}
	if err := s.instanceRepo.Create(ctx, nil, instance); err != nil {
		if errors.Is(err, repositories.ErrInstanceNameConflict) {
			return nil, conflictErr(CodeAmbiguous, "provider tournament %q collides with a local instance", t.Name)
		}
		return nil, fmt.Errorf("failed to adopt provider tournament %d: %w", t.ID, err)
	}
	s.logger.InfoContext(ctx, "adopted provider tournament",
		slog.Int("instance_id", instance.ID),
		slog.Int64("external_id", t.ID),
		slog.String("name", t.Name),
	)
	return instance, nil
}

func (s *registryService) AddParticipant(ctx context.Context, instanceID int, communityID, displayName string) (*models.Participant, int, error) {
	if err := validateCommunityID(communityID); err != nil {
		return nil, 0, err
	}
	if err := validateDisplayName(displayName); err != nil {
		return nil, 0, err
	}
	communityID = strings.TrimSpace(communityID)
	displayName = strings.TrimSpace(displayName)

	instance, err := s.Get(ctx, instanceID)
	if err != nil {
		return nil, 0, err
	}
	if instance.State != models.StatePending {
		return nil, 0, conflictErr(CodeAlreadyStarted, "instance %q is no longer accepting signups", instance.Name)
	}

	existing, err := s.participantRepo.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, 0, err
	}
	for _, p := range existing {
		if sameName(p.DisplayName, displayName) {
			return nil, 0, conflictErr(CodeDuplicateIGN, "%q is already signed up to %q", displayName, instance.Name)
		}
		if p.CommunityID == communityID {
			return nil, 0, conflictErr(CodeAlreadyRegistered, "already signed up to %q as %q", instance.Name, p.DisplayName)
		}
	}

	participant := &models.Participant{
		CommunityID: communityID,
		InstanceID:  instanceID,
		DisplayName: displayName,
	}
	var (
		count    int
		upstream *provider.Participant
	)
	err = s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		var txErr error
		count, txErr = s.instanceRepo.IncrementParticipantCount(ctx, exec, instanceID)
		if txErr != nil {
			if errors.Is(txErr, repositories.ErrInstanceFull) {
				return conflictErr(CodeCapacityExceeded, "instance %q is full (%d/%d)", instance.Name, instance.Capacity, instance.Capacity)
			}
			return txErr
		}
		if txErr = s.participantRepo.Create(ctx, exec, participant); txErr != nil {
			switch {
			case errors.Is(txErr, repositories.ErrParticipantNameConflict):
				return conflictErr(CodeDuplicateIGN, "%q is already signed up to %q", displayName, instance.Name)
			case errors.Is(txErr, repositories.ErrParticipantConflict):
				return conflictErr(CodeAlreadyRegistered, "already signed up to %q", instance.Name)
			}
			return txErr
		}
		upstream, txErr = s.addUpstream(ctx, instance.ExternalID, displayName)
		if txErr != nil {
			return txErr
		}
		participant.ExternalID = &upstream.ID
		return s.participantRepo.SetExternalID(ctx, exec, participant.ID, upstream.ID)
	})
	if err != nil {
		if upstream != nil {
			if rmErr := s.provider.RemoveParticipant(ctx, instance.ExternalID, upstream.ID); rmErr != nil {
				s.logger.ErrorContext(ctx, "failed to remove provider participant after rollback",
					slog.Int("instance_id", instanceID),
					slog.Int64("participant_external_id", upstream.ID),
					slog.Any("error", rmErr),
				)
			}
		}
		return nil, 0, err
	}

	s.logger.InfoContext(ctx, "participant added",
		slog.Int("instance_id", instanceID),
		slog.Int("participant_id", participant.ID),
		slog.Int("count", count),
	)
	return participant, count, nil
}

func (s *registryService) RemoveParticipant(ctx context.Context, instanceID int, communityID string) (int, error) {
	if err := validateCommunityID(communityID); err != nil {
		return 0, err
	}
	communityID = strings.TrimSpace(communityID)

	unlock, err := s.locks.Lock(ctx, instanceID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	instance, err := s.Get(ctx, instanceID)
	if err != nil {
		return 0, err
	}
	if instance.State != models.StatePending {
		return 0, conflictErr(CodeAlreadyStarted, "instance %q has started; participants can no longer be removed", instance.Name)
	}

	participant, err := s.participantRepo.FindByCommunity(ctx, instanceID, communityID)
	if err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			return 0, notFoundErr(CodeParticipantNotFound, "participant", communityID)
		}
		return 0, err
	}

	var count int
	err = s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		var txErr error
		if count, txErr = s.instanceRepo.DecrementParticipantCount(ctx, exec, instanceID); txErr != nil {
			return txErr
		}
		if txErr = s.participantRepo.Delete(ctx, exec, participant.ID); txErr != nil {
			return txErr
		}
		if participant.ExternalID == nil {
			return nil
		}
		return s.removeUpstream(ctx, instance.ExternalID, *participant.ExternalID)
	})
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "participant removed",
		slog.Int("instance_id", instanceID),
		slog.Int("participant_id", participant.ID),
		slog.Int("count", count),
	)
	return count, nil
}

// removeUpstream treats a participant that is already gone as removed.
func (s *registryService) removeUpstream(ctx context.Context, externalID, participantID int64) error {
	err := s.provider.RemoveParticipant(ctx, externalID, participantID)
	if err == nil || errors.Is(err, provider.ErrNotFound) {
		return nil
	}
	if !errors.Is(err, provider.ErrOutcomeUnknown) {
		return externalErr("remove_participant", err)
	}
	listed, listErr := s.provider.ListParticipants(ctx, externalID)
	if listErr != nil {
		return externalErr("remove_participant", errors.Join(err, listErr))
	}
	for _, p := range listed {
		if p.ID == participantID {
			return externalErr("remove_participant", err)
		}
	}
	return nil
}

// addUpstream adopts an existing provider participant of the same name when the add outcome is unknown.
func (s *registryService) addUpstream(ctx context.Context, externalID int64, name string) (*provider.Participant, error) {
	p, err := s.provider.AddParticipant(ctx, externalID, name)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, provider.ErrOutcomeUnknown) {
		return nil, externalErr("add_participant", err)
	}
	listed, listErr := s.provider.ListParticipants(ctx, externalID)
	if listErr != nil {
		return nil, externalErr("add_participant", errors.Join(err, listErr))
	}
	for i := range listed {
		if sameName(listed[i].Name, name) {
			return &listed[i], nil
		}
	}
	return nil, externalErr("add_participant", err)
}

func (s *registryService) Start(ctx context.Context, id int) (*models.Instance, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	instance, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if instance.State != models.StatePending {
		return nil, conflictErr(CodeAlreadyStarted, "instance %q is already %s", instance.Name, instance.State)
	}

	if err := s.provider.RandomizeSeeds(ctx, instance.ExternalID); err != nil {
		return nil, externalErr("randomize_seeds", err)
	}
	if _, err := s.provider.StartTournament(ctx, instance.ExternalID); err != nil {
		if !errors.Is(err, provider.ErrOutcomeUnknown) {
			return nil, externalErr("start_tournament", err)
		}
		t, showErr := s.provider.ShowTournament(ctx, instance.ExternalID)
		if showErr != nil || t.State == provider.TournamentPending {
			return nil, externalErr("start_tournament", errors.Join(err, showErr))
		}
	}

	if err := s.instanceRepo.UpdateState(ctx, nil, id, models.StateInProgress); err != nil {
		return nil, err
	}
	instance.State = models.StateInProgress
	s.logger.InfoContext(ctx, "instance started", slog.Int("instance_id", id), slog.String("name", instance.Name))
	return instance, nil
}

func (s *registryService) Finalize(ctx context.Context, id int, assumeComplete ...int64) (*FinalizeResult, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	instance, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if instance.State == models.StateComplete {
		return &FinalizeResult{Instance: instance, Winner: instance.Winner, AlreadyComplete: true}, nil
	}
	if instance.State == models.StatePending {
		return nil, conflictErr(CodeNotStarted, "instance %q has not started", instance.Name)
	}

	matches, err := s.provider.ListMatches(ctx, instance.ExternalID, provider.MatchesAll)
	if err != nil {
		return nil, externalErr("list_matches", err)
	}
	if open := incompleteMatches(matches, assumeComplete); open > 0 {
		return nil, conflictErr(CodeIncompleteMatches, "%d matches in %q are not complete", open, instance.Name)
	}

	t, err := s.provider.ShowTournament(ctx, instance.ExternalID)
	if err != nil {
		return nil, externalErr("show_tournament", err)
	}
	if t.State != provider.TournamentComplete {
		if _, err := s.provider.FinalizeTournament(ctx, instance.ExternalID); err != nil {
			if !errors.Is(err, provider.ErrOutcomeUnknown) {
				return nil, externalErr("finalize_tournament", err)
			}
			again, showErr := s.provider.ShowTournament(ctx, instance.ExternalID)
			if showErr != nil || again.State != provider.TournamentComplete {
				return nil, externalErr("finalize_tournament", errors.Join(err, showErr))
			}
		}
	}

	winner, err := s.resolveWinner(ctx, instance, matches)
	if err != nil {
		return nil, err
	}

	var winnerID *int
	if winner != nil {
		winnerID = &winner.ID
	}
	err = s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.instanceRepo.SetWinner(ctx, exec, id, winnerID); err != nil {
			return err
		}
		return s.instanceRepo.UpdateState(ctx, exec, id, models.StateComplete)
	})
	if err != nil {
		return nil, err
	}

	instance.State = models.StateComplete
	instance.WinnerParticipantID = winnerID
	instance.Winner = winner
	s.logger.InfoContext(ctx, "instance finalized", slog.Int("instance_id", id), slog.Any("winner_participant_id", winnerID))
	return &FinalizeResult{Instance: instance, Winner: winner}, nil
}

func incompleteMatches(matches []models.Match, assumeComplete []int64) int {
	open := 0
	for _, m := range matches {
		if m.IsComplete() {
			continue
		}
		assumed := false
		for _, id := range assumeComplete {
			if id == m.ExternalID {
				assumed = true
				break
			}
		}
		if !assumed {
			open++
		}
	}
	return open
}

// resolveWinner prefers the provider's final rank and falls back to the standings leader.
func (s *registryService) resolveWinner(ctx context.Context, instance *models.Instance, matches []models.Match) (*models.Participant, error) {
	remote, err := s.provider.ListParticipants(ctx, instance.ExternalID)
	if err != nil {
		return nil, externalErr("list_participants", err)
	}
	var winnerExt int64
	for _, p := range remote {
		if p.FinalRank != nil && *p.FinalRank == 1 {
			winnerExt = p.ID
			break
		}
	}
	if winnerExt == 0 {
		rows := computeStandings(remote, matches, nil)
		if len(rows) == 0 || rows[0].Participant.ExternalID == nil {
			return nil, nil
		}
		winnerExt = *rows[0].Participant.ExternalID
	}

	winner, err := s.participantRepo.GetByExternalID(ctx, instance.ID, winnerExt)
	if err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			s.logger.WarnContext(ctx, "winner is not mapped locally",
				slog.Int("instance_id", instance.ID),
				slog.Int64("participant_external_id", winnerExt),
			)
			return nil, nil
		}
		return nil, err
	}
	return winner, nil
}

func (s *registryService) Reset(ctx context.Context, id int) (*models.Instance, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	instance, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if instance.State != models.StatePending {
		if _, err := s.provider.ResetTournament(ctx, instance.ExternalID); err != nil {
			return nil, externalErr("reset_tournament", err)
		}
	}

	err = s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if _, err := s.reportRepo.DeleteByInstance(ctx, exec, id); err != nil {
			return err
		}
		if err := s.instanceRepo.SetWinner(ctx, exec, id, nil); err != nil {
			return err
		}
		return s.instanceRepo.UpdateState(ctx, exec, id, models.StatePending)
	})
	if err != nil {
		return nil, err
	}

	instance.State = models.StatePending
	instance.WinnerParticipantID = nil
	instance.Winner = nil
	s.logger.InfoContext(ctx, "instance reset", slog.Int("instance_id", id))
	return instance, nil
}

func (s *registryService) Destroy(ctx context.Context, id int) error {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	instance, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.provider.DestroyTournament(ctx, instance.ExternalID); err != nil && !errors.Is(err, provider.ErrNotFound) {
		return externalErr("destroy_tournament", err)
	}
	if err := s.instanceRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrInstanceNotFound) {
			return notFoundErr(CodeNotFound, "instance", itoa(id))
		}
		return err
	}
	s.logger.InfoContext(ctx, "instance destroyed", slog.Int("instance_id", id), slog.String("name", instance.Name))
	return nil
}

// Sync pulls the provider's lifecycle state and participant count into the local row.
func (s *registryService) Sync(ctx context.Context, id int) (*models.Instance, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	instance, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err := s.provider.ShowTournament(ctx, instance.ExternalID)
	if err != nil {
		return nil, externalErr("show_tournament", err)
	}

	if remoteState := t.State.InstanceState(); remoteState != instance.State {
		s.logger.WarnContext(ctx, "instance state drifted from provider",
			slog.Int("instance_id", id),
			slog.String("local", string(instance.State)),
			slog.String("provider", string(remoteState)),
		)
		// Complete is only entered through Finalize, which also records the winner.
		if remoteState != models.StateComplete {
			if err := s.instanceRepo.UpdateState(ctx, nil, id, remoteState); err != nil {
				return nil, err
			}
			instance.State = remoteState
		}
	}
	if t.ParticipantsCount != instance.ParticipantCount && t.ParticipantsCount <= instance.Capacity {
		if err := s.instanceRepo.SetParticipantCount(ctx, nil, id, t.ParticipantsCount); err != nil {
			return nil, err
		}
		instance.ParticipantCount = t.ParticipantsCount
	}
	return instance, nil
}

func stateIn(state models.InstanceState, states []models.InstanceState) bool {
	if len(states) == 0 {
		return true
	}
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}
