package sqlite

import (
	"context"
	"database/sql"
	"errors"

	aggDomain "github.com/davicafu/eventlab/internal/aggregate/domain"
)

// InitSQLite crea la tabla de snapshots si no existe.
func InitSQLite(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			aggregate_type TEXT NOT NULL,
			aggregate_id   TEXT NOT NULL,
			version        INTEGER NOT NULL,
			state          TEXT NOT NULL,
			created_at     TIMESTAMP NOT NULL,
			PRIMARY KEY (aggregate_type, aggregate_id)
		);
	`)
	return err
}

// SnapshotStoreSQLite guarda un snapshot por agregado, el último gana.
type SnapshotStoreSQLite struct {
	db *sql.DB
}

func NewSnapshotStoreSQLite(db *sql.DB) *SnapshotStoreSQLite {
	return &SnapshotStoreSQLite{db: db}
}

func (s *SnapshotStoreSQLite) Save(ctx context.Context, snap aggDomain.Snapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (aggregate_type, aggregate_id, version, state, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (aggregate_type, aggregate_id)
		 DO UPDATE SET version = excluded.version, state = excluded.state, created_at = excluded.created_at`,
		snap.AggregateType, snap.AggregateID, snap.Version, string(snap.State), snap.CreatedAt,
	)
	if err != nil {
		return &aggDomain.SnapshotError{Err: err}
	}
	return nil
}

func (s *SnapshotStoreSQLite) Load(ctx context.Context, aggregateType, aggregateID string) (aggDomain.Snapshot, error) {
	var (
		snap  aggDomain.Snapshot
		state string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT aggregate_type, aggregate_id, version, state, created_at
		 FROM snapshots WHERE aggregate_type = ? AND aggregate_id = ?`,
		aggregateType, aggregateID,
	).Scan(&snap.AggregateType, &snap.AggregateID, &snap.Version, &state, &snap.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return aggDomain.Snapshot{}, aggDomain.ErrSnapshotNotFound
		}
		return aggDomain.Snapshot{}, &aggDomain.SnapshotError{Err: err}
	}
	snap.State = []byte(state)
	return snap, nil
}

func (s *SnapshotStoreSQLite) Delete(ctx context.Context, aggregateType, aggregateID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE aggregate_type = ? AND aggregate_id = ?`,
		aggregateType, aggregateID,
	)
	if err != nil {
		return &aggDomain.SnapshotError{Err: err}
	}
	return nil
}

// Verificación en tiempo de compilación.
var _ aggDomain.SnapshotStore = (*SnapshotStoreSQLite)(nil)
