package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/Dosada05/league-orchestrator/models"
)

var (
	ErrWaitlistEntryNotFound = errors.New("waitlist entry not found")
	ErrWaitlistConflict      = errors.New("community member already on the waitlist")
)

type WaitlistRepository interface {
	Add(ctx context.Context, entry *models.WaitlistEntry) error
	Remove(ctx context.Context, communityID string) error
	List(ctx context.Context) ([]*models.WaitlistEntry, error)
	Count(ctx context.Context) (int, error)
	// RemoveMany deletes the listed members and leaves everyone else in place.
	RemoveMany(ctx context.Context, exec SQLExecutor, communityIDs []string) (int64, error)
}

type postgresWaitlistRepository struct {
	db *sql.DB
}

func NewPostgresWaitlistRepository(db *sql.DB) WaitlistRepository {
	return &postgresWaitlistRepository{db: db}
}

func (r *postgresWaitlistRepository) Add(ctx context.Context, e *models.WaitlistEntry) error {
	query := `INSERT INTO waitlist (community_id, display_name) VALUES ($1, $2) RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query, e.CommunityID, e.DisplayName).Scan(&e.CreatedAt)
	if err != nil {
		if code, _, ok := pqError(err); ok && code == pqUniqueViolation {
			return ErrWaitlistConflict
		}
		return err
	}
	return nil
}

func (r *postgresWaitlistRepository) Remove(ctx context.Context, communityID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM waitlist WHERE community_id = $1`, communityID)
	if err != nil {
		return fmt.Errorf("failed to remove waitlist entry: %w", err)
	}
	return checkAffectedRows(result, ErrWaitlistEntryNotFound)
}

func (r *postgresWaitlistRepository) List(ctx context.Context) ([]*models.WaitlistEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT community_id, display_name, created_at FROM waitlist ORDER BY created_at, community_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*models.WaitlistEntry, 0)
	for rows.Next() {
		e := &models.WaitlistEntry{}
		if scanErr := rows.Scan(&e.CommunityID, &e.DisplayName, &e.CreatedAt); scanErr != nil {
			return nil, scanErr
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *postgresWaitlistRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM waitlist`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count waitlist: %w", err)
	}
	return n, nil
}

func (r *postgresWaitlistRepository) RemoveMany(ctx context.Context, exec SQLExecutor, communityIDs []string) (int64, error) {
	if len(communityIDs) == 0 {
		return 0, nil
	}
	executor := exec
	if executor == nil {
		executor = r.db
	}
	result, err := executor.ExecContext(ctx, `DELETE FROM waitlist WHERE community_id = ANY($1)`, pq.Array(communityIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to remove waitlist entries: %w", err)
	}
	return result.RowsAffected()
}
