package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Dosada05/league-orchestrator/metrics"
	"github.com/Dosada05/league-orchestrator/models"
	"github.com/Dosada05/league-orchestrator/repositories"
	"github.com/Dosada05/league-orchestrator/storage"
)

// seasonConcurrency caps parallel provider work across the divisions of one season.
const seasonConcurrency = 4

// StandingsArchiver stores the final standings of a finished division.
type StandingsArchiver interface {
	Archive(ctx context.Context, snapshot *storage.StandingsSnapshot) (*storage.UploadResult, error)
}

type DivisionOutcome struct {
	InstanceID int                 `json:"instance_id"`
	Name       string              `json:"name"`
	Winner     *models.Participant `json:"winner,omitempty"`
	ArchiveURL string              `json:"archive_url,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// SeasonBatchResult lists per-division outcomes of a season-wide start or end.
type SeasonBatchResult struct {
	Season    int               `json:"season"`
	Succeeded []DivisionOutcome `json:"succeeded"`
	Skipped   []DivisionOutcome `json:"skipped"`
	Failed    []DivisionOutcome `json:"failed"`
}

type CreateSeasonResult struct {
	Season    int                `json:"season"`
	Divisions []*models.Instance `json:"divisions"`
	Placed    int                `json:"placed"`
}

type SeasonService interface {
	CreateSeason(ctx context.Context, season int, divisionNames []string) (*CreateSeasonResult, error)
	StartSeason(ctx context.Context, season int) (*SeasonBatchResult, error)
	EndSeason(ctx context.Context, season int) (*SeasonBatchResult, error)
}

type seasonService struct {
	registry     RegistryService
	standings    StandingsService
	waitlistRepo repositories.WaitlistRepository
	archiver     StandingsArchiver
	capacity     int
	metrics      *metrics.Metrics
	logger       *slog.Logger
	mu           sync.Mutex
}

// NewSeasonService builds the orchestrator. archiver may be nil.
func NewSeasonService(
	registry RegistryService,
	standings StandingsService,
	waitlistRepo repositories.WaitlistRepository,
	archiver StandingsArchiver,
	settings LeagueSettings,
	m *metrics.Metrics,
	logger *slog.Logger,
) SeasonService {
	capacity := settings.DefaultCapacity
	if capacity < 2 {
		capacity = models.DefaultCapacity
	}
	return &seasonService{
		registry:     registry,
		standings:    standings,
		waitlistRepo: waitlistRepo,
		archiver:     archiver,
		capacity:     capacity,
		metrics:      m,
		logger:       logger,
	}
}

func (s *seasonService) CreateSeason(ctx context.Context, season int, divisionNames []string) (result *CreateSeasonResult, err error) {
	defer func() { s.metrics.SeasonOp("create", err) }()

	if season < 1 {
		return nil, validationErr(CodeInvalidInput, "season", "season number must be positive")
	}
	names, err := cleanDivisionNames(divisionNames)
	if err != nil {
		return nil, err
	}

	// one season is created at a time; it consumes the waitlist as read here
	s.mu.Lock()
	defer s.mu.Unlock()

	waitlist, err := s.waitlistRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(waitlist) == 0 {
		return nil, validationErr(CodeEmptyWaitlist, "waitlist", "nobody is registered for season %d", season)
	}
	needed := (len(waitlist) + s.capacity - 1) / s.capacity
	if needed > len(names) {
		return nil, validationErr(CodeNotEnoughDivisionNames, "division_names",
			"%d registrations need %d divisions of %d, got %d names", len(waitlist), needed, s.capacity, len(names))
	}

	existing, err := s.divisions(ctx, season)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, conflictErr(CodeNameTaken, "season %d already has %d divisions", season, len(existing))
	}

	divisions := make([]*models.Instance, needed)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(seasonConcurrency)
	for i := range needed {
		group := waitlist[i*s.capacity : min((i+1)*s.capacity, len(waitlist))]
		name := models.SeasonInstanceName(season, names[i])
		g.Go(func() error {
			instance, err := s.registry.Create(gctx, CreateInstanceInput{
				Name:         name,
				Format:       models.FormatRoundRobin,
				Capacity:     s.capacity,
				SeasonNumber: &season,
			})
			if err != nil {
				return err
			}
			divisions[i] = instance
			for _, entry := range group {
				if _, _, err := s.registry.AddParticipant(gctx, instance.ID, entry.CommunityID, entry.DisplayName); err != nil {
					return err
				}
			}
			instance.ParticipantCount = len(group)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.discard(ctx, divisions)
		return nil, err
	}

	// registrations that arrived meanwhile stay for the next season
	placed := make([]string, len(waitlist))
	for i, entry := range waitlist {
		placed[i] = entry.CommunityID
	}
	if _, err := s.waitlistRepo.RemoveMany(ctx, nil, placed); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "season created",
		slog.Int("season", season),
		slog.Int("divisions", len(divisions)),
		slog.Int("participants", len(waitlist)),
	)
	return &CreateSeasonResult{Season: season, Divisions: divisions, Placed: len(waitlist)}, nil
}

// discard removes the divisions of a half-created season so the waitlist can be retried.
func (s *seasonService) discard(ctx context.Context, divisions []*models.Instance) {
	ctx = context.WithoutCancel(ctx)
	for _, d := range divisions {
		if d == nil {
			continue
		}
		if err := s.registry.Destroy(ctx, d.ID); err != nil {
			s.logger.ErrorContext(ctx, "failed to discard division", slog.Int("instance_id", d.ID), slog.Any("error", err))
		}
	}
}

func (s *seasonService) StartSeason(ctx context.Context, season int) (*SeasonBatchResult, error) {
	return s.fanOut(ctx, season, "start", func(ctx context.Context, division *models.Instance, out *DivisionOutcome) (bool, error) {
		_, err := s.registry.Start(ctx, division.ID)
		if errors.Is(err, CodeAlreadyStarted) {
			return true, nil
		}
		return false, err
	})
}

func (s *seasonService) EndSeason(ctx context.Context, season int) (*SeasonBatchResult, error) {
	return s.fanOut(ctx, season, "end", func(ctx context.Context, division *models.Instance, out *DivisionOutcome) (bool, error) {
		res, err := s.registry.Finalize(ctx, division.ID)
		if err != nil {
			return false, err
		}
		out.Winner = res.Winner
		if res.AlreadyComplete {
			return true, nil
		}
		out.ArchiveURL = s.archive(ctx, season, res)
		return false, nil
	})
}

// archive is best effort: a failed upload never fails the season end.
func (s *seasonService) archive(ctx context.Context, season int, res *FinalizeResult) string {
	if s.archiver == nil {
		return ""
	}
	rows, err := s.standings.Standings(ctx, res.Instance.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "standings unavailable for archive", slog.Int("instance_id", res.Instance.ID), slog.Any("error", err))
		return ""
	}
	uploaded, err := s.archiver.Archive(ctx, &storage.StandingsSnapshot{
		Season:     season,
		InstanceID: res.Instance.ID,
		Division:   res.Instance.Name,
		Winner:     res.Winner,
		Rows:       rows,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "standings archive failed", slog.Int("instance_id", res.Instance.ID), slog.Any("error", err))
		return ""
	}
	if uploaded.Location != "" {
		return uploaded.Location
	}
	return uploaded.Key
}

type divisionOp func(ctx context.Context, division *models.Instance, out *DivisionOutcome) (skipped bool, err error)

// fanOut runs op on every division and keeps going past failures.
func (s *seasonService) fanOut(ctx context.Context, season int, name string, op divisionOp) (*SeasonBatchResult, error) {
	divisions, err := s.divisions(ctx, season)
	if err != nil {
		return nil, err
	}
	if len(divisions) == 0 {
		return nil, notFoundErr(CodeNotFound, "season", itoa(season))
	}

	outcomes := make([]DivisionOutcome, len(divisions))
	skipped := make([]bool, len(divisions))
	failed := make([]error, len(divisions))

	var g errgroup.Group
	g.SetLimit(seasonConcurrency)
	for i, division := range divisions {
		g.Go(func() error {
			outcomes[i] = DivisionOutcome{InstanceID: division.ID, Name: division.Name}
			skipped[i], failed[i] = op(ctx, division, &outcomes[i])
			return nil
		})
	}
	_ = g.Wait()

	result := &SeasonBatchResult{
		Season:    season,
		Succeeded: []DivisionOutcome{},
		Skipped:   []DivisionOutcome{},
		Failed:    []DivisionOutcome{},
	}
	for i, out := range outcomes {
		switch {
		case failed[i] != nil:
			out.Error = failed[i].Error()
			result.Failed = append(result.Failed, out)
			s.logger.ErrorContext(ctx, "season division failed",
				slog.String("op", name),
				slog.Int("season", season),
				slog.Int("instance_id", out.InstanceID),
				slog.Any("error", failed[i]),
			)
		case skipped[i]:
			result.Skipped = append(result.Skipped, out)
		default:
			result.Succeeded = append(result.Succeeded, out)
		}
		s.metrics.SeasonOp(name, failed[i])
	}

	s.logger.InfoContext(ctx, "season "+name+" finished",
		slog.Int("season", season),
		slog.Int("succeeded", len(result.Succeeded)),
		slog.Int("skipped", len(result.Skipped)),
		slog.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// divisions returns the instances tagged with the season number or named with its prefix,
// in creation order.
func (s *seasonService) divisions(ctx context.Context, season int) ([]*models.Instance, error) {
	all, err := s.registry.List(ctx, repositories.ListInstancesFilter{})
	if err != nil {
		return nil, err
	}
	prefix := normalizeName(models.SeasonPrefix(season)) + " "
	var out []*models.Instance
	for _, inst := range all {
		if inst.SeasonNumber != nil {
			if *inst.SeasonNumber == season {
				out = append(out, inst)
			}
			continue
		}
		if strings.HasPrefix(normalizeName(inst.Name), prefix) {
			out = append(out, inst)
		}
	}
	return out, nil
}

func cleanDivisionNames(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, name := range in {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := normalizeName(name)
		if _, dup := seen[key]; dup {
			return nil, validationErr(CodeInvalidInput, "division_names", "division name %q is listed twice", name)
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}
