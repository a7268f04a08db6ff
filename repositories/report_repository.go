package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/league-orchestrator/models"
)

var (
	ErrReportNotFound = errors.New("match report not found")
)

type ReportRepository interface {
	Create(ctx context.Context, exec SQLExecutor, report *models.MatchReport) error
	UpdateStatus(ctx context.Context, id string, status models.ReportStatus, lastError *string) error
	GetByID(ctx context.Context, id string) (*models.MatchReport, error)
	// FindActive returns the newest report for the match that is pending, flagged or pushed.
	// Resolved reports are ignored.
	FindActive(ctx context.Context, instanceID int, matchExternalID int64) (*models.MatchReport, error)
	ListByStatus(ctx context.Context, status models.ReportStatus, limit int) ([]*models.MatchReport, error)
	ListByInstance(ctx context.Context, instanceID int) ([]*models.MatchReport, error)
	DeleteByInstance(ctx context.Context, exec SQLExecutor, instanceID int) (int64, error)
}

type postgresReportRepository struct {
	db *sql.DB
}

func NewPostgresReportRepository(db *sql.DB) ReportRepository {
	return &postgresReportRepository{db: db}
}

func (r *postgresReportRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const reportColumns = `
	id, instance_id, match_external_id, round, winner_participant_id, winner_external_id,
	player1_score, player2_score, status, last_error, created_at, updated_at`

func scanReport(row interface{ Scan(dest ...any) error }) (*models.MatchReport, error) {
	m := &models.MatchReport{}
	err := row.Scan(
		&m.ID, &m.InstanceID, &m.MatchExternalID, &m.Round, &m.WinnerParticipantID, &m.WinnerExternalID,
		&m.Player1Score, &m.Player2Score, &m.Status, &m.LastError, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *postgresReportRepository) Create(ctx context.Context, exec SQLExecutor, m *models.MatchReport) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO match_reports (
			id, instance_id, match_external_id, round, winner_participant_id, winner_external_id,
			player1_score, player2_score, status, last_error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err := executor.QueryRowContext(ctx, query,
		m.ID, m.InstanceID, m.MatchExternalID, m.Round, m.WinnerParticipantID, m.WinnerExternalID,
		m.Player1Score, m.Player2Score, m.Status, m.LastError,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create match report: %w", err)
	}
	return nil
}

func (r *postgresReportRepository) UpdateStatus(ctx context.Context, id string, status models.ReportStatus, lastError *string) error {
	query := `UPDATE match_reports SET status = $1, last_error = $2, updated_at = NOW() WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, status, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to update match report status: %w", err)
	}
	return checkAffectedRows(result, ErrReportNotFound)
}

func (r *postgresReportRepository) GetByID(ctx context.Context, id string) (*models.MatchReport, error) {
	m, err := scanReport(r.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM match_reports WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *postgresReportRepository) FindActive(ctx context.Context, instanceID int, matchExternalID int64) (*models.MatchReport, error) {
	query := `SELECT ` + reportColumns + ` FROM match_reports
		WHERE instance_id = $1 AND match_external_id = $2 AND status IN ('pending', 'needs_reconciliation', 'pushed')
		ORDER BY created_at DESC LIMIT 1`
	m, err := scanReport(r.db.QueryRowContext(ctx, query, instanceID, matchExternalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *postgresReportRepository) ListByStatus(ctx context.Context, status models.ReportStatus, limit int) ([]*models.MatchReport, error) {
	query := `SELECT ` + reportColumns + ` FROM match_reports WHERE status = $1 ORDER BY created_at`
	args := []interface{}{status}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return r.queryReports(ctx, query, args...)
}

func (r *postgresReportRepository) ListByInstance(ctx context.Context, instanceID int) ([]*models.MatchReport, error) {
	return r.queryReports(ctx, `SELECT `+reportColumns+` FROM match_reports WHERE instance_id = $1 ORDER BY created_at`, instanceID)
}

func (r *postgresReportRepository) queryReports(ctx context.Context, query string, args ...interface{}) ([]*models.MatchReport, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := make([]*models.MatchReport, 0)
	for rows.Next() {
		m, scanErr := scanReport(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		reports = append(reports, m)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return reports, nil
}

func (r *postgresReportRepository) DeleteByInstance(ctx context.Context, exec SQLExecutor, instanceID int) (int64, error) {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `DELETE FROM match_reports WHERE instance_id = $1`, instanceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete match reports: %w", err)
	}
	return result.RowsAffected()
}
