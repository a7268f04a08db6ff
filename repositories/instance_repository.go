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
	ErrInstanceNotFound         = errors.New("instance not found")
	ErrInstanceNameConflict     = errors.New("instance name already exists")
	ErrInstanceURLConflict      = errors.New("instance url already exists")
	ErrInstanceExternalConflict = errors.New("provider tournament already mapped to another instance")
	ErrInstanceFull             = errors.New("instance is at capacity")
	ErrInstanceInUse            = errors.New("instance is referenced by other records")
)

type ListInstancesFilter struct {
	States       []models.InstanceState
	SeasonNumber *int
	Limit        int
	Offset       int
}

type InstanceRepository interface {
	Create(ctx context.Context, exec SQLExecutor, instance *models.Instance) error
	GetByID(ctx context.Context, id int) (*models.Instance, error)
	GetByExternalID(ctx context.Context, externalID int64) (*models.Instance, error)
	// FindByName matches on models.NameKey; an empty states slice matches every state.
	FindByName(ctx context.Context, name string, states []models.InstanceState) ([]*models.Instance, error)
	NameExists(ctx context.Context, name string) (bool, error)
	URLExists(ctx context.Context, url string) (bool, error)
	List(ctx context.Context, filter ListInstancesFilter) ([]*models.Instance, error)
	UpdateState(ctx context.Context, exec SQLExecutor, id int, state models.InstanceState) error
	SetWinner(ctx context.Context, exec SQLExecutor, id int, winnerParticipantID *int) error
	// IncrementParticipantCount adds one seat only while the instance is below capacity and
	// returns the new count. A full instance yields ErrInstanceFull.
	IncrementParticipantCount(ctx context.Context, exec SQLExecutor, id int) (int, error)
	// DecrementParticipantCount frees one seat and returns the new count. It never goes below zero.
	DecrementParticipantCount(ctx context.Context, exec SQLExecutor, id int) (int, error)
	SetParticipantCount(ctx context.Context, exec SQLExecutor, id int, count int) error
	Delete(ctx context.Context, id int) error
}

type postgresInstanceRepository struct {
	db *sql.DB
}

func NewPostgresInstanceRepository(db *sql.DB) InstanceRepository {
	return &postgresInstanceRepository{db: db}
}

func (r *postgresInstanceRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const instanceColumns = `
	id, name, url, external_id, state, capacity, participant_count, format, best_of,
	season_number, winner_participant_id, created_at, updated_at`

func scanInstance(row interface{ Scan(dest ...any) error }) (*models.Instance, error) {
	i := &models.Instance{}
	err := row.Scan(
		&i.ID, &i.Name, &i.URL, &i.ExternalID, &i.State, &i.Capacity, &i.ParticipantCount, &i.Format, &i.BestOf,
		&i.SeasonNumber, &i.WinnerParticipantID, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return i, nil
}

func (r *postgresInstanceRepository) Create(ctx context.Context, exec SQLExecutor, i *models.Instance) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO instances (name, name_key, url, external_id, state, capacity, participant_count, format, best_of, season_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	err := executor.QueryRowContext(ctx, query,
		i.Name, models.NameKey(i.Name), i.URL, i.ExternalID, i.State, i.Capacity, i.ParticipantCount, i.Format, i.BestOf, i.SeasonNumber,
	).Scan(&i.ID, &i.CreatedAt, &i.UpdatedAt)

	return r.handleInstanceError(err)
}

func (r *postgresInstanceRepository) GetByID(ctx context.Context, id int) (*models.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE id = $1`
	i, err := scanInstance(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return i, nil
}

func (r *postgresInstanceRepository) GetByExternalID(ctx context.Context, externalID int64) (*models.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE external_id = $1`
	i, err := scanInstance(r.db.QueryRowContext(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return i, nil
}

func (r *postgresInstanceRepository) FindByName(ctx context.Context, name string, states []models.InstanceState) ([]*models.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE name_key = $1`
	args := []interface{}{models.NameKey(name)}
	if len(states) > 0 {
		query += ` AND state = ANY($2)`
		args = append(args, pq.Array(statesToStrings(states)))
	}
	query += ` ORDER BY id`
	return r.queryInstances(ctx, query, args...)
}

func (r *postgresInstanceRepository) NameExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM instances WHERE name_key = $1)`, models.NameKey(name)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check instance name: %w", err)
	}
	return exists, nil
}

func (r *postgresInstanceRepository) URLExists(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM instances WHERE url = $1)`, url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check instance url: %w", err)
	}
	return exists, nil
}

func (r *postgresInstanceRepository) List(ctx context.Context, filter ListInstancesFilter) ([]*models.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE 1=1`

	args := []interface{}{}
	argID := 1

	if len(filter.States) > 0 {
		query += fmt.Sprintf(" AND state = ANY($%d)", argID)
		args = append(args, pq.Array(statesToStrings(filter.States)))
		argID++
	}
	if filter.SeasonNumber != nil {
		query += fmt.Sprintf(" AND season_number = $%d", argID)
		args = append(args, *filter.SeasonNumber)
		argID++
	}

	query += " ORDER BY created_at, id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	return r.queryInstances(ctx, query, args...)
}

func (r *postgresInstanceRepository) queryInstances(ctx context.Context, query string, args ...interface{}) ([]*models.Instance, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	instances := make([]*models.Instance, 0)
	for rows.Next() {
		i, scanErr := scanInstance(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		instances = append(instances, i)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return instances, nil
}

func (r *postgresInstanceRepository) UpdateState(ctx context.Context, exec SQLExecutor, id int, state models.InstanceState) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `UPDATE instances SET state = $1, updated_at = NOW() WHERE id = $2`, state, id)
	if err != nil {
		return r.handleInstanceError(err)
	}
	return checkAffectedRows(result, ErrInstanceNotFound)
}

// SetWinner sets or clears the winner of the instance.
func (r *postgresInstanceRepository) SetWinner(ctx context.Context, exec SQLExecutor, id int, winnerParticipantID *int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `UPDATE instances SET winner_participant_id = $1, updated_at = NOW() WHERE id = $2`, winnerParticipantID, id)
	if err != nil {
		return r.handleInstanceError(err)
	}
	return checkAffectedRows(result, ErrInstanceNotFound)
}

func (r *postgresInstanceRepository) IncrementParticipantCount(ctx context.Context, exec SQLExecutor, id int) (int, error) {
	executor := r.getExecutor(exec)
	query := `
		UPDATE instances
		SET participant_count = participant_count + 1, updated_at = NOW()
		WHERE id = $1 AND participant_count < capacity
		RETURNING participant_count`

	var count int
	if err := executor.QueryRowContext(ctx, query, id).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrInstanceFull
		}
		return 0, r.handleInstanceError(err)
	}
	return count, nil
}

func (r *postgresInstanceRepository) DecrementParticipantCount(ctx context.Context, exec SQLExecutor, id int) (int, error) {
	executor := r.getExecutor(exec)
	query := `
		UPDATE instances
		SET participant_count = participant_count - 1, updated_at = NOW()
		WHERE id = $1 AND participant_count > 0
		RETURNING participant_count`

	var count int
	if err := executor.QueryRowContext(ctx, query, id).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrInstanceNotFound
		}
		return 0, r.handleInstanceError(err)
	}
	return count, nil
}

func (r *postgresInstanceRepository) SetParticipantCount(ctx context.Context, exec SQLExecutor, id int, count int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `UPDATE instances SET participant_count = $1, updated_at = NOW() WHERE id = $2`, count, id)
	if err != nil {
		return r.handleInstanceError(err)
	}
	return checkAffectedRows(result, ErrInstanceNotFound)
}

func (r *postgresInstanceRepository) Delete(ctx context.Context, id int) error {
	// The winner reference points back into participants; clear it so the cascade can proceed.
	if _, err := r.db.ExecContext(ctx, `UPDATE instances SET winner_participant_id = NULL WHERE id = $1`, id); err != nil {
		return r.handleInstanceError(err)
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM instances WHERE id = $1`, id)
	if err != nil {
		return r.handleInstanceError(err)
	}
	return checkAffectedRows(result, ErrInstanceNotFound)
}

func (r *postgresInstanceRepository) handleInstanceError(err error) error {
	if err == nil {
		return nil
	}
	code, constraint, ok := pqError(err)
	if !ok {
		return err
	}
	switch code {
	case pqUniqueViolation:
		switch constraint {
		case "idx_instances_name_key":
			return ErrInstanceNameConflict
		case "instances_url_key":
			return ErrInstanceURLConflict
		case "instances_external_id_key":
			return ErrInstanceExternalConflict
		}
	case pqCheckViolation:
		if constraint == "instances_count_within_capacity" {
			return ErrInstanceFull
		}
	case pqForeignKeyViolation:
		return ErrInstanceInUse
	}
	return err
}

func statesToStrings(states []models.InstanceState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}
