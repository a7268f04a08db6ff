package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

type Migration struct {
	Version int
	Name    string
	Up      string
}

// Migrations are applied in order; each runs in its own transaction and is recorded in schema_migrations.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "create_instances",
		Up: `
			CREATE TABLE IF NOT EXISTS instances (
				id                    SERIAL PRIMARY KEY,
				name                  TEXT NOT NULL,
				url                   TEXT NOT NULL UNIQUE,
				external_id           BIGINT NOT NULL UNIQUE,
				state                 VARCHAR(16) NOT NULL DEFAULT 'pending'
				                      CHECK (state IN ('pending', 'in_progress', 'complete')),
				capacity              INT NOT NULL DEFAULT 16 CHECK (capacity >= 2),
				participant_count     INT NOT NULL DEFAULT 0,
				format                VARCHAR(32) NOT NULL,
				best_of               INT NOT NULL DEFAULT 5 CHECK (best_of >= 1),
				season_number         INT,
				winner_participant_id INT,
				created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				CONSTRAINT instances_count_within_capacity CHECK (participant_count BETWEEN 0 AND capacity)
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_instances_name_lower ON instances (lower(name));
			CREATE INDEX IF NOT EXISTS idx_instances_state ON instances (state);
			CREATE INDEX IF NOT EXISTS idx_instances_season ON instances (season_number) WHERE season_number IS NOT NULL;
		`,
	},
	{
		Version: 2,
		Name:    "create_participants",
		Up: `
			CREATE TABLE IF NOT EXISTS participants (
				id           SERIAL PRIMARY KEY,
				community_id TEXT NOT NULL,
				instance_id  INT NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
				display_name TEXT NOT NULL,
				external_id  BIGINT,
				created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (community_id, instance_id)
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_participants_instance_name_lower ON participants (instance_id, lower(display_name));
			CREATE INDEX IF NOT EXISTS idx_participants_external ON participants (instance_id, external_id);
			ALTER TABLE instances DROP CONSTRAINT IF EXISTS instances_winner_fk;
			ALTER TABLE instances ADD CONSTRAINT instances_winner_fk
				FOREIGN KEY (winner_participant_id) REFERENCES participants(id) ON DELETE SET NULL;
		`,
	},
	{
		Version: 3,
		Name:    "create_waitlist",
		Up: `
			CREATE TABLE IF NOT EXISTS waitlist (
				community_id TEXT PRIMARY KEY,
				display_name TEXT NOT NULL,
				created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_waitlist_created_at ON waitlist (created_at);
		`,
	},
	{
		Version: 4,
		Name:    "create_match_reports",
		Up: `
			CREATE TABLE IF NOT EXISTS match_reports (
				id                    UUID PRIMARY KEY,
				instance_id           INT NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
				match_external_id     BIGINT NOT NULL,
				round                 INT NOT NULL,
				winner_participant_id INT NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
				winner_external_id    BIGINT NOT NULL,
				player1_score         INT NOT NULL CHECK (player1_score >= 0),
				player2_score         INT NOT NULL CHECK (player2_score >= 0),
				status                VARCHAR(32) NOT NULL
				                      CHECK (status IN ('pending', 'pushed', 'needs_reconciliation', 'resolved')),
				last_error            TEXT,
				created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_match_reports_instance ON match_reports (instance_id);
			CREATE INDEX IF NOT EXISTS idx_match_reports_status ON match_reports (status) WHERE status = 'needs_reconciliation';
		`,
	},
	{
		Version: 5,
		Name:    "instances_name_key",
		Up: `
			ALTER TABLE instances ADD COLUMN IF NOT EXISTS name_key TEXT;
			UPDATE instances SET name_key = lower(btrim(name)) WHERE name_key IS NULL;
			ALTER TABLE instances ALTER COLUMN name_key SET NOT NULL;
			DROP INDEX IF EXISTS idx_instances_name_lower;
			CREATE UNIQUE INDEX IF NOT EXISTS idx_instances_name_key ON instances (name_key);
		`,
	},
}

// Migrate applies every migration newer than the recorded schema version.
func Migrate(ctx context.Context, conn *sql.DB, logger *slog.Logger) error {
	if _, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range Migrations {
		if m.Version <= current {
			continue
		}
		err := WithTx(ctx, conn, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Up); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
				return fmt.Errorf("record migration %d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		logger.Info("migration applied", slog.Int("version", m.Version), slog.String("name", m.Name))
	}
	return nil
}
