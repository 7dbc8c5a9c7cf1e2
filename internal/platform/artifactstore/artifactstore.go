// Package artifactstore provides best-effort persistence of finalized job
// artifacts (spec.md §1 Non-goals explicitly allow this while excluding a
// durable job queue).
//
// Grounded on the teacher's internal/db package (parameterized INSERT via
// database/sql, lib/pq as the driver, sql.ErrNoRows handling), narrowed to
// a single append-only table since artifacts are never updated once
// written.
package artifactstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/aura-video/studio-engine/internal/engine/model"
	"github.com/aura-video/studio-engine/internal/platform/logging"
)

// Store persists ArtifactRecords to Postgres. A nil *Store (via New with
// an empty DSN) degrades PersistArtifact to a no-op, matching
// SPEC_FULL.md's "if no DSN is configured the store degrades to a no-op".
type Store struct {
	db *sql.DB
}

// New opens a connection pool against dsn. An empty dsn returns a nil
// *Store and a nil error: callers pass it straight to the orchestrator as
// an ArtifactPersister and persistence becomes a no-op.
func New(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, nil
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping artifact store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool, if any.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureSchema creates the artifacts table if it doesn't already exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil {
		return nil
	}
	const stmt = `
		CREATE TABLE IF NOT EXISTS artifacts (
			id          BIGSERIAL PRIMARY KEY,
			job_id      TEXT NOT NULL,
			kind        TEXT NOT NULL,
			path        TEXT NOT NULL,
			size_bytes  BIGINT NOT NULL,
			created_utc TIMESTAMPTZ NOT NULL
		)
	`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

// PersistArtifact inserts one row per finalized artifact. Failures are
// logged and swallowed rather than returned: best-effort persistence must
// never fail the job it's recording, per spec.md §1.
func (s *Store) PersistArtifact(ctx context.Context, jobID string, artifact model.Artifact) error {
	if s == nil || s.db == nil {
		return nil
	}
	const stmt = `
		INSERT INTO artifacts (job_id, kind, path, size_bytes, created_utc)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, stmt, jobID, artifact.Kind, artifact.Path, artifact.SizeBytes, time.Now().UTC())
	if err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("job_id", jobID).Str("kind", artifact.Kind).
			Msg("artifact persistence failed, continuing best-effort")
	}
	return nil
}
