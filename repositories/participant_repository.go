package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Dosada05/league-orchestrator/models"
)

var (
	ErrParticipantNotFound        = errors.New("participant not found")
	ErrParticipantConflict        = errors.New("participant conflict: community member already registered for this instance")
	ErrParticipantNameConflict    = errors.New("participant display name already taken in this instance")
	ErrParticipantInstanceInvalid = errors.New("participant instance invalid")
)

type ParticipantRepository interface {
	Create(ctx context.Context, exec SQLExecutor, p *models.Participant) error
	SetExternalID(ctx context.Context, exec SQLExecutor, id int, externalID int64) error
	UpdateDisplayName(ctx context.Context, id int, displayName string) error
	GetByID(ctx context.Context, id int) (*models.Participant, error)
	GetByExternalID(ctx context.Context, instanceID int, externalID int64) (*models.Participant, error)
	FindByCommunity(ctx context.Context, instanceID int, communityID string) (*models.Participant, error)
	// ListByInstance returns participants in signup order.
	ListByInstance(ctx context.Context, instanceID int) ([]*models.Participant, error)
	Delete(ctx context.Context, exec SQLExecutor, id int) error
}

type postgresParticipantRepository struct {
	db *sql.DB
}

func NewPostgresParticipantRepository(db *sql.DB) ParticipantRepository {
	return &postgresParticipantRepository{db: db}
}

func (r *postgresParticipantRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const participantColumns = `id, community_id, instance_id, display_name, external_id, created_at`

func scanParticipant(row interface{ Scan(dest ...any) error }) (*models.Participant, error) {
	p := &models.Participant{}
	if err := row.Scan(&p.ID, &p.CommunityID, &p.InstanceID, &p.DisplayName, &p.ExternalID, &p.CreatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *postgresParticipantRepository) Create(ctx context.Context, exec SQLExecutor, p *models.Participant) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO participants (community_id, instance_id, display_name, external_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query, p.CommunityID, p.InstanceID, p.DisplayName, p.ExternalID).Scan(&p.ID, &p.CreatedAt)
	return r.handleParticipantError(err)
}

func (r *postgresParticipantRepository) SetExternalID(ctx context.Context, exec SQLExecutor, id int, externalID int64) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `UPDATE participants SET external_id = $1 WHERE id = $2`, externalID, id)
	if err != nil {
		return r.handleParticipantError(err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) UpdateDisplayName(ctx context.Context, id int, displayName string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE participants SET display_name = $1 WHERE id = $2`, displayName, id)
	if err != nil {
		return r.handleParticipantError(err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) GetByID(ctx context.Context, id int) (*models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *postgresParticipantRepository) GetByExternalID(ctx context.Context, instanceID int, externalID int64) (*models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE instance_id = $1 AND external_id = $2`
	return r.getOne(ctx, query, instanceID, externalID)
}

func (r *postgresParticipantRepository) FindByCommunity(ctx context.Context, instanceID int, communityID string) (*models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE instance_id = $1 AND community_id = $2`
	return r.getOne(ctx, query, instanceID, communityID)
}

func (r *postgresParticipantRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.Participant, error) {
	p, err := scanParticipant(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *postgresParticipantRepository) ListByInstance(ctx context.Context, instanceID int) ([]*models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE instance_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := make([]*models.Participant, 0)
	for rows.Next() {
		p, scanErr := scanParticipant(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		participants = append(participants, p)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *postgresParticipantRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `DELETE FROM participants WHERE id = $1`, id)
	if err != nil {
		return r.handleParticipantError(err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) handleParticipantError(err error) error {
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
		case "participants_community_id_instance_id_key":
			return ErrParticipantConflict
		case "idx_participants_instance_name_lower":
			return ErrParticipantNameConflict
		}
	case pqForeignKeyViolation:
		if constraint == "participants_instance_id_fkey" {
			return ErrParticipantInstanceInvalid
		}
	}
	return err
}
