package services

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Dosada05/league-orchestrator/models"
	"github.com/Dosada05/league-orchestrator/provider"
	"github.com/Dosada05/league-orchestrator/repositories"
)

type DivisionStandings struct {
	Instance *models.Instance       `json:"instance"`
	Rows     []*models.StandingsRow `json:"rows"`
}

type StandingsService interface {
	Standings(ctx context.Context, instanceID int) ([]*models.StandingsRow, error)
	SeasonStandings(ctx context.Context, season int) ([]DivisionStandings, error)
}

type standingsService struct {
	registry        RegistryService
	participantRepo repositories.ParticipantRepository
	provider        provider.Provider
	logger          *slog.Logger
}

func NewStandingsService(
	registry RegistryService,
	participantRepo repositories.ParticipantRepository,
	prov provider.Provider,
	logger *slog.Logger,
) StandingsService {
	return &standingsService{
		registry:        registry,
		participantRepo: participantRepo,
		provider:        prov,
		logger:          logger,
	}
}

func (s *standingsService) Standings(ctx context.Context, instanceID int) ([]*models.StandingsRow, error) {
	instance, err := s.registry.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return s.forInstance(ctx, instance)
}

func (s *standingsService) forInstance(ctx context.Context, instance *models.Instance) ([]*models.StandingsRow, error) {
	var (
		remote  []provider.Participant
		matches []models.Match
		local   []*models.Participant
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		remote, err = s.provider.ListParticipants(gctx, instance.ExternalID)
		return externalErr("list_participants", err)
	})
	g.Go(func() error {
		var err error
		matches, err = s.provider.ListMatches(gctx, instance.ExternalID, provider.MatchesAll)
		return externalErr("list_matches", err)
	})
	g.Go(func() error {
		var err error
		local, err = s.participantRepo.ListByInstance(gctx, instance.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byExternal := make(map[int64]*models.Participant, len(local))
	for _, p := range local {
		if p.ExternalID != nil {
			byExternal[*p.ExternalID] = p
		}
	}
	return computeStandings(remote, matches, byExternal), nil
}

func (s *standingsService) SeasonStandings(ctx context.Context, season int) ([]DivisionStandings, error) {
	divisions, err := s.registry.List(ctx, repositories.ListInstancesFilter{SeasonNumber: &season})
	if err != nil {
		return nil, err
	}
	if len(divisions) == 0 {
		return nil, notFoundErr(CodeNotFound, "season", strconv.Itoa(season))
	}

	out := make([]DivisionStandings, len(divisions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(seasonConcurrency)
	for i, division := range divisions {
		g.Go(func() error {
			rows, err := s.forInstance(gctx, division)
			if err != nil {
				return err
			}
			out[i] = DivisionStandings{Instance: division, Rows: rows}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// computeStandings folds complete matches into rows keyed by provider participant id.
// Rows follow the provider's participant order and are then stably sorted by win
// percentage and match wins; no further tie-break is applied. Participants without a
// recorded game are left out.
func computeStandings(participants []provider.Participant, matches []models.Match, local map[int64]*models.Participant) []*models.StandingsRow {
	rows := make(map[int64]*models.StandingsRow, len(participants))
	order := make([]int64, 0, len(participants))

	row := func(id int64, name string) *models.StandingsRow {
		if r, ok := rows[id]; ok {
			return r
		}
		p, ok := local[id]
		if !ok {
			extID := id
			p = &models.Participant{DisplayName: name, ExternalID: &extID}
		}
		r := &models.StandingsRow{Participant: p}
		rows[id] = r
		order = append(order, id)
		return r
	}
	for _, p := range participants {
		row(p.ID, p.Name)
	}

	for _, m := range matches {
		if !m.IsComplete() || m.Player1ID == nil || m.Player2ID == nil {
			continue
		}
		p1, p2 := *m.Player1ID, *m.Player2ID
		s1, s2 := parseScores(m.ScoresCSV)

		r1 := row(p1, "")
		r2 := row(p2, "")
		r1.GamesWon += s1
		r1.GamesLost += s2
		r2.GamesWon += s2
		r2.GamesLost += s1

		switch *m.WinnerID {
		case p1:
			r1.MatchWins++
			r2.MatchLosses++
		case p2:
			r2.MatchWins++
			r1.MatchLosses++
		}
	}

	out := make([]*models.StandingsRow, 0, len(order))
	for _, id := range order {
		r := rows[id]
		if r.GamesPlayed() == 0 {
			continue
		}
		r.WinPercentage = float64(r.GamesWon) / float64(r.GamesPlayed())
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].WinPercentage != out[j].WinPercentage {
			return out[i].WinPercentage > out[j].WinPercentage
		}
		return out[i].MatchWins > out[j].MatchWins
	})
	return out
}

// parseScores sums a provider scores string such as "3-2" or "2-1,0-2,2-0".
// Malformed sets count as zero.
func parseScores(csv string) (int, int) {
	var p1, p2 int
	for _, set := range strings.Split(csv, ",") {
		set = strings.TrimSpace(set)
		if set == "" {
			continue
		}
		// a leading minus belongs to the first number
		sep := strings.Index(set[1:], "-")
		if sep < 0 {
			continue
		}
		sep++
		a, errA := strconv.Atoi(strings.TrimSpace(set[:sep]))
		b, errB := strconv.Atoi(strings.TrimSpace(set[sep+1:]))
		if errA != nil || errB != nil || a < 0 || b < 0 {
			continue
		}
		p1 += a
		p2 += b
	}
	return p1, p2
}
