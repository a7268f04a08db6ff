package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Dosada05/league-orchestrator/metrics"
	"github.com/Dosada05/league-orchestrator/models"
	"github.com/Dosada05/league-orchestrator/provider"
	"github.com/Dosada05/league-orchestrator/repositories"
)

type ReportInput struct {
	InstanceID  int    `json:"-"`
	Round       int    `json:"round"`
	WinnerName  string `json:"winner_name"`
	WinnerGames int    `json:"winner_games"`
	TotalGames  int    `json:"total_games"`
}

type ReportResult struct {
	Report    *models.MatchReport `json:"report"`
	Match     *models.Match       `json:"match"`
	Winner    *models.Participant `json:"winner"`
	Finalized *FinalizeResult     `json:"finalized,omitempty"`
}

// MatchView is a provider match with local display names attached.
type MatchView struct {
	models.Match
	Player1Name string `json:"player1_name,omitempty"`
	Player2Name string `json:"player2_name,omitempty"`
	WinnerName  string `json:"winner_name,omitempty"`
}

type ReportService interface {
	Report(ctx context.Context, input ReportInput) (*ReportResult, error)
	ListMatches(ctx context.Context, instanceID int, filter provider.MatchFilter) ([]MatchView, error)
}

type reportService struct {
	registry   RegistryService
	directory  DirectoryService
	reportRepo repositories.ReportRepository
	provider   provider.Provider
	locks      *InstanceLocks
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewReportService(
	registry RegistryService,
	directory DirectoryService,
	reportRepo repositories.ReportRepository,
	prov provider.Provider,
	locks *InstanceLocks,
	m *metrics.Metrics,
	logger *slog.Logger,
) ReportService {
	return &reportService{
		registry:   registry,
		directory:  directory,
		reportRepo: reportRepo,
		provider:   prov,
		locks:      locks,
		metrics:    m,
		logger:     logger,
	}
}

// validateScoreShape rejects tallies that no best-of rule could accept.
func validateScoreShape(input ReportInput) error {
	if input.Round < 1 {
		return validationErr(CodeInvalidInput, "round", "round must be a positive number")
	}
	if strings.TrimSpace(input.WinnerName) == "" {
		return validationErr(CodeInvalidInput, "winner_name", "winner name is required")
	}
	loser := input.TotalGames - input.WinnerGames
	if input.WinnerGames < 1 || loser < 0 || input.WinnerGames <= loser {
		return validationErr(CodeInvalidScore, "winner_games", "%d of %d games is not a winning tally", input.WinnerGames, input.TotalGames)
	}
	return nil
}

// validateScore applies the best-of rule: with best_of N the target is N/2+1 games.
// Elimination matches must be played out to the target; league matches may also end one
// game short of it.
func validateScore(format models.Format, bestOf, winnerGames, totalGames int) error {
	target := bestOf/2 + 1
	loser := totalGames - winnerGames
	if totalGames > bestOf || loser < 0 || winnerGames <= loser {
		return validationErr(CodeInvalidScore, "total_games", "%d-%d is not a valid best-of-%d result", winnerGames, loser, bestOf)
	}
	if winnerGames == target {
		return nil
	}
	if !format.IsElimination() && winnerGames == target-1 {
		return nil
	}
	return validationErr(CodeInvalidScore, "winner_games", "%d-%d is not a valid best-of-%d result", winnerGames, loser, bestOf)
}

func (s *reportService) Report(ctx context.Context, input ReportInput) (*ReportResult, error) {
	if err := validateScoreShape(input); err != nil {
		return nil, err
	}
	instance, err := s.registry.Get(ctx, input.InstanceID)
	if err != nil {
		return nil, err
	}
	if err := validateScore(instance.Format, instance.BestOf, input.WinnerGames, input.TotalGames); err != nil {
		return nil, err
	}

	result, err := s.commit(ctx, instance, input)
	if err != nil {
		return nil, err
	}

	finalized, err := s.autoFinalize(ctx, instance, result.Match.ExternalID)
	if err != nil {
		// the result itself is recorded; the reconciler finalizes later
		s.logger.WarnContext(ctx, "auto-finalize failed",
			slog.Int("instance_id", instance.ID),
			slog.Any("error", err),
		)
	}
	result.Finalized = finalized
	return result, nil
}

func (s *reportService) commit(ctx context.Context, instance *models.Instance, input ReportInput) (*ReportResult, error) {
	unlock, err := s.locks.Lock(ctx, instance.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	switch instance.State {
	case models.StatePending:
		return nil, conflictErr(CodeNotStarted, "instance %q has not started", instance.Name)
	case models.StateComplete:
		return nil, notFoundErr(CodeMatchNotFound, "open match", matchKey(input))
	}

	winner, err := s.directory.LookupByName(ctx, instance.ID, input.WinnerName)
	if err != nil {
		return nil, err
	}
	if winner.ExternalID == nil {
		return nil, notFoundErr(CodeParticipantNotFound, "participant", input.WinnerName)
	}
	winnerExt := *winner.ExternalID

	open, err := s.provider.ListMatches(ctx, instance.ExternalID, provider.MatchesOpen)
	if err != nil {
		return nil, externalErr("list_matches", err)
	}
	var candidates []models.Match
	for _, m := range open {
		if m.Round == input.Round && m.State == models.MatchStateOpen && m.HasPlayer(winnerExt) {
			candidates = append(candidates, m)
		}
	}
	switch len(candidates) {
	case 0:
		return nil, notFoundErr(CodeMatchNotFound, "open match", matchKey(input))
	case 1:
	default:
		return nil, conflictErr(CodeAmbiguous, "%d open matches for %q in round %d", len(candidates), winner.DisplayName, input.Round)
	}
	match := candidates[0]

	// the open listing can lag behind a push; the local record is authoritative
	existing, err := s.reportRepo.FindActive(ctx, instance.ID, match.ExternalID)
	switch {
	case err == nil && existing.Status == models.ReportStatusPushed:
		return nil, notFoundErr(CodeMatchNotFound, "open match", matchKey(input))
	case err == nil:
		return nil, conflictErr(CodeReconciliationPending, "report %s for this match is awaiting reconciliation", existing.ID)
	case !errors.Is(err, repositories.ErrReportNotFound):
		return nil, err
	}

	loserGames := input.TotalGames - input.WinnerGames
	p1, p2 := input.WinnerGames, loserGames
	if match.Player1ID == nil || *match.Player1ID != winnerExt {
		p1, p2 = loserGames, input.WinnerGames
	}

	report := &models.MatchReport{
		ID:                  uuid.NewString(),
		InstanceID:          instance.ID,
		MatchExternalID:     match.ExternalID,
		Round:               input.Round,
		WinnerParticipantID: winner.ID,
		WinnerExternalID:    winnerExt,
		Player1Score:        p1,
		Player2Score:        p2,
		Status:              models.ReportStatusPending,
	}
	if err := s.reportRepo.Create(ctx, nil, report); err != nil {
		return nil, err
	}

	updated, pushErr := s.provider.UpdateMatch(ctx, instance.ExternalID, match.ExternalID, provider.MatchUpdate{
		ScoresCSV: provider.ScoresCSV(p1, p2),
		WinnerID:  winnerExt,
	})
	if pushErr != nil {
		return nil, s.pushFailed(ctx, report, pushErr)
	}

	if err := s.reportRepo.UpdateStatus(ctx, report.ID, models.ReportStatusPushed, nil); err != nil {
		// the provider already holds the result; the reconciler settles the stale pending row
		s.logger.ErrorContext(ctx, "failed to mark report pushed", slog.String("report_id", report.ID), slog.Any("error", err))
	} else {
		report.Status = models.ReportStatusPushed
	}

	if updated == nil {
		match.ScoresCSV = provider.ScoresCSV(p1, p2)
		match.WinnerID = &winnerExt
		match.State = models.MatchStateComplete
		updated = &match
	}

	s.metrics.Report(string(report.Status))
	s.logger.InfoContext(ctx, "match reported",
		slog.Int("instance_id", instance.ID),
		slog.Int("round", input.Round),
		slog.Int64("match_id", match.ExternalID),
		slog.String("scores", updated.ScoresCSV),
	)
	return &ReportResult{Report: report, Match: updated, Winner: winner}, nil
}

// pushFailed records the outcome of a failed provider push. A definite rejection settles the
// report; anything else leaves it flagged for reconciliation.
func (s *reportService) pushFailed(ctx context.Context, report *models.MatchReport, pushErr error) error {
	msg := pushErr.Error()
	// the flag must be written even if the caller has gone away
	bg := context.WithoutCancel(ctx)

	transient := provider.IsTransient(pushErr) ||
		errors.Is(pushErr, context.Canceled) || errors.Is(pushErr, context.DeadlineExceeded)
	if !transient {
		if err := s.reportRepo.UpdateStatus(bg, report.ID, models.ReportStatusResolved, &msg); err != nil {
			s.logger.ErrorContext(ctx, "failed to settle rejected report", slog.String("report_id", report.ID), slog.Any("error", err))
		}
		s.metrics.Report("rejected")
		return externalErr("update_match", pushErr)
	}

	if err := s.reportRepo.UpdateStatus(bg, report.ID, models.ReportStatusNeedsReconciliation, &msg); err != nil {
		// a pending row is also picked up by the reconciler once it is stale
		s.logger.ErrorContext(ctx, "failed to flag report for reconciliation", slog.String("report_id", report.ID), slog.Any("error", err))
	}
	s.metrics.Report(string(models.ReportStatusNeedsReconciliation))
	s.logger.WarnContext(ctx, "match push outcome unknown, flagged for reconciliation",
		slog.String("report_id", report.ID),
		slog.Int("instance_id", report.InstanceID),
		slog.Int64("match_id", report.MatchExternalID),
		slog.Any("error", pushErr),
	)
	return &ReconciliationNeededError{ReportID: report.ID, Op: "update_match", Err: pushErr}
}

// autoFinalize finalizes the instance once every match is complete. The just-reported match
// counts as complete even if the provider listing lags behind.
func (s *reportService) autoFinalize(ctx context.Context, instance *models.Instance, reported int64) (*FinalizeResult, error) {
	matches, err := s.provider.ListMatches(ctx, instance.ExternalID, provider.MatchesAll)
	if err != nil {
		return nil, externalErr("list_matches", err)
	}
	if incompleteMatches(matches, []int64{reported}) > 0 {
		return nil, nil
	}
	return s.registry.Finalize(ctx, instance.ID, reported)
}

func (s *reportService) ListMatches(ctx context.Context, instanceID int, filter provider.MatchFilter) ([]MatchView, error) {
	if filter == "" {
		filter = provider.MatchesAll
	}
	instance, err := s.registry.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	matches, err := s.provider.ListMatches(ctx, instance.ExternalID, filter)
	if err != nil {
		return nil, externalErr("list_matches", err)
	}
	participants, err := s.directory.ListParticipants(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(participants))
	for _, p := range participants {
		if p.ExternalID != nil {
			names[*p.ExternalID] = p.DisplayName
		}
	}
	name := func(id *int64) string {
		if id == nil {
			return ""
		}
		return names[*id]
	}

	views := make([]MatchView, 0, len(matches))
	for _, m := range matches {
		views = append(views, MatchView{
			Match:       m,
			Player1Name: name(m.Player1ID),
			Player2Name: name(m.Player2ID),
			WinnerName:  name(m.WinnerID),
		})
	}
	return views, nil
}

func matchKey(input ReportInput) string {
	return strings.TrimSpace(input.WinnerName) + " round " + itoa(input.Round)
}
