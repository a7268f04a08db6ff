package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Dosada05/league-orchestrator/metrics"
	"github.com/Dosada05/league-orchestrator/models"
	"github.com/Dosada05/league-orchestrator/provider"
	"github.com/Dosada05/league-orchestrator/repositories"
)

const (
	reconcileBatchSize = 100
	// a pending report older than this lost its status update and is treated as flagged
	stalePendingAfter = 5 * time.Minute
)

// ReconcileSummary counts what one reconciliation pass did.
type ReconcileSummary struct {
	Checked    int `json:"checked"`
	Pushed     int `json:"pushed"`
	Resolved   int `json:"resolved"`
	Superseded int `json:"superseded"`
	Left       int `json:"left"`
	Finalized  int `json:"finalized"`
	Synced     int `json:"synced"`
	Errors     int `json:"errors"`
}

type ReconcileService interface {
	RunOnce(ctx context.Context) (*ReconcileSummary, error)
}

type reconcileService struct {
	reportRepo repositories.ReportRepository
	registry   RegistryService
	provider   provider.Provider
	locks      *InstanceLocks
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

func NewReconcileService(
	reportRepo repositories.ReportRepository,
	registry RegistryService,
	prov provider.Provider,
	locks *InstanceLocks,
	m *metrics.Metrics,
	logger *slog.Logger,
) ReconcileService {
	return &reconcileService{
		reportRepo: reportRepo,
		registry:   registry,
		provider:   prov,
		locks:      locks,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

type reconcileOutcome string

const (
	outcomePushed     reconcileOutcome = "pushed"
	outcomeResolved   reconcileOutcome = "resolved"
	outcomeSuperseded reconcileOutcome = "superseded"
	outcomeLeft       reconcileOutcome = "left"
)

// RunOnce settles flagged reports against the provider, then finalizes or syncs every
// InProgress instance.
func (s *reconcileService) RunOnce(ctx context.Context) (*ReconcileSummary, error) {
	reports, err := s.unsettled(ctx)
	if err != nil {
		return nil, err
	}

	summary := &ReconcileSummary{}
	byInstance := make(map[int][]*models.MatchReport)
	var order []int
	for _, r := range reports {
		if _, ok := byInstance[r.InstanceID]; !ok {
			order = append(order, r.InstanceID)
		}
		byInstance[r.InstanceID] = append(byInstance[r.InstanceID], r)
	}
	for _, instanceID := range order {
		if err := s.settleInstance(ctx, instanceID, byInstance[instanceID], summary); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return summary, err
			}
			summary.Errors++
			s.logger.ErrorContext(ctx, "reconcile: instance failed", slog.Int("instance_id", instanceID), slog.Any("error", err))
		}
	}

	if err := s.sweepInProgress(ctx, summary); err != nil {
		return summary, err
	}

	s.logger.InfoContext(ctx, "reconcile pass finished",
		slog.Int("checked", summary.Checked),
		slog.Int("pushed", summary.Pushed),
		slog.Int("resolved", summary.Resolved),
		slog.Int("superseded", summary.Superseded),
		slog.Int("left", summary.Left),
		slog.Int("finalized", summary.Finalized),
		slog.Int("errors", summary.Errors),
	)
	return summary, nil
}

func (s *reconcileService) unsettled(ctx context.Context) ([]*models.MatchReport, error) {
	flagged, err := s.reportRepo.ListByStatus(ctx, models.ReportStatusNeedsReconciliation, reconcileBatchSize)
	if err != nil {
		return nil, err
	}
	pending, err := s.reportRepo.ListByStatus(ctx, models.ReportStatusPending, reconcileBatchSize)
	if err != nil {
		return nil, err
	}
	cutoff := s.now().Add(-stalePendingAfter)
	for _, r := range pending {
		if r.UpdatedAt.Before(cutoff) {
			flagged = append(flagged, r)
		}
	}
	return flagged, nil
}

func (s *reconcileService) settleInstance(ctx context.Context, instanceID int, reports []*models.MatchReport, summary *ReconcileSummary) error {
	instance, err := s.registry.Get(ctx, instanceID)
	if err != nil {
		if errors.Is(err, CodeNotFound) {
			for _, r := range reports {
				s.settle(ctx, r, models.ReportStatusResolved, "instance no longer exists", outcomeResolved, summary)
			}
			return nil
		}
		return err
	}

	unlock, err := s.locks.Lock(ctx, instanceID)
	if err != nil {
		return err
	}
	matches, err := s.provider.ListMatches(ctx, instance.ExternalID, provider.MatchesAll)
	if err != nil {
		unlock()
		return externalErr("list_matches", err)
	}
	byID := make(map[int64]*models.Match, len(matches))
	for i := range matches {
		byID[matches[i].ExternalID] = &matches[i]
	}

	var pushed []int64
	for _, r := range reports {
		summary.Checked++
		match, ok := byID[r.MatchExternalID]
		switch {
		case !ok:
			s.settle(ctx, r, models.ReportStatusResolved, "match no longer exists upstream", outcomeResolved, summary)
		case match.IsComplete() && *match.WinnerID == r.WinnerExternalID:
			s.settle(ctx, r, models.ReportStatusResolved, "", outcomeResolved, summary)
		case match.IsComplete():
			s.settle(ctx, r, models.ReportStatusResolved, "superseded by a different provider result", outcomeSuperseded, summary)
		case match.State == models.MatchStateOpen:
			if s.repush(ctx, instance, r, summary) {
				pushed = append(pushed, r.MatchExternalID)
			}
		default:
			summary.Left++
			s.metrics.Reconciled(string(outcomeLeft))
		}
	}
	unlock()

	if len(pushed) > 0 && incompleteMatches(matches, pushed) == 0 {
		if _, err := s.registry.Finalize(ctx, instance.ID, pushed...); err != nil {
			return err
		}
		summary.Finalized++
	}
	return nil
}

func (s *reconcileService) repush(ctx context.Context, instance *models.Instance, r *models.MatchReport, summary *ReconcileSummary) bool {
	_, err := s.provider.UpdateMatch(ctx, instance.ExternalID, r.MatchExternalID, provider.MatchUpdate{
		ScoresCSV: provider.ScoresCSV(r.Player1Score, r.Player2Score),
		WinnerID:  r.WinnerExternalID,
	})
	switch {
	case err == nil:
		s.settle(ctx, r, models.ReportStatusPushed, "", outcomePushed, summary)
		return true
	case provider.IsTransient(err):
		msg := err.Error()
		if updErr := s.reportRepo.UpdateStatus(ctx, r.ID, models.ReportStatusNeedsReconciliation, &msg); updErr != nil {
			s.logger.ErrorContext(ctx, "reconcile: failed to update report", slog.String("report_id", r.ID), slog.Any("error", updErr))
		}
		summary.Left++
		s.metrics.Reconciled(string(outcomeLeft))
		return false
	default:
		s.settle(ctx, r, models.ReportStatusResolved, err.Error(), outcomeResolved, summary)
		return false
	}
}

func (s *reconcileService) settle(ctx context.Context, r *models.MatchReport, status models.ReportStatus, note string, outcome reconcileOutcome, summary *ReconcileSummary) {
	var lastError *string
	if note != "" {
		lastError = &note
	}
	if err := s.reportRepo.UpdateStatus(ctx, r.ID, status, lastError); err != nil {
		summary.Errors++
		s.logger.ErrorContext(ctx, "reconcile: failed to update report", slog.String("report_id", r.ID), slog.Any("error", err))
		return
	}
	switch outcome {
	case outcomePushed:
		summary.Pushed++
	case outcomeSuperseded:
		summary.Superseded++
	default:
		summary.Resolved++
	}
	s.metrics.Reconciled(string(outcome))
	s.logger.InfoContext(ctx, "report reconciled",
		slog.String("report_id", r.ID),
		slog.String("outcome", string(outcome)),
		slog.String("note", note),
	)
}

// sweepInProgress pulls provider state for running instances and finalizes the ones whose
// matches are all complete.
func (s *reconcileService) sweepInProgress(ctx context.Context, summary *ReconcileSummary) error {
	running, err := s.registry.List(ctx, repositories.ListInstancesFilter{States: []models.InstanceState{models.StateInProgress}})
	if err != nil {
		return err
	}
	for _, instance := range running {
		if err := ctx.Err(); err != nil {
			return err
		}
		synced, err := s.registry.Sync(ctx, instance.ID)
		if err != nil {
			summary.Errors++
			s.logger.WarnContext(ctx, "reconcile: sync failed", slog.Int("instance_id", instance.ID), slog.Any("error", err))
			continue
		}
		summary.Synced++
		if synced.State != models.StateInProgress {
			continue
		}

		matches, err := s.provider.ListMatches(ctx, synced.ExternalID, provider.MatchesAll)
		if err != nil {
			summary.Errors++
			continue
		}
		if len(matches) == 0 || incompleteMatches(matches, nil) > 0 {
			continue
		}
		if _, err := s.registry.Finalize(ctx, synced.ID); err != nil {
			summary.Errors++
			s.logger.WarnContext(ctx, "reconcile: finalize failed", slog.Int("instance_id", synced.ID), slog.Any("error", err))
			continue
		}
		summary.Finalized++
	}
	return nil
}
