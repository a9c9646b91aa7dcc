package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGMappingRepository resolves account mappings from PostgreSQL.
type PGMappingRepository struct {
	db *pgxpool.Pool
}

// NewMappingRepository constructs a PostgreSQL mapping repository.
func NewMappingRepository(db *pgxpool.Pool) *PGMappingRepository {
	return &PGMappingRepository{db: db}
}

// Resolve returns the active mapping for (mappingType, sourceID).
func (r *PGMappingRepository) Resolve(ctx context.Context, mappingType MappingType, sourceID string) (AccountMapping, error) {
	var m AccountMapping
	err := r.db.QueryRow(ctx, `SELECT mapping_type, source_id, account_id, account_name, account_type
FROM account_mappings WHERE mapping_type = $1 AND source_id = $2 AND is_active`,
		string(mappingType), sourceID).
		Scan(&m.MappingType, &m.SourceID, &m.AccountID, &m.AccountName, &m.AccountType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, ErrMappingNotFound
		}
		return AccountMapping{}, err
	}
	return m, nil
}

// PGDepartmentRepository resolves department mappings from PostgreSQL.
type PGDepartmentRepository struct {
	db *pgxpool.Pool
}

// NewDepartmentRepository constructs a PostgreSQL department repository.
func NewDepartmentRepository(db *pgxpool.Pool) *PGDepartmentRepository {
	return &PGDepartmentRepository{db: db}
}

// ErrDepartmentMappingNotFound indicates no mapping row; callers omit the
// department reference rather than fail.
var ErrDepartmentMappingNotFound = errors.New("ledger: department mapping not found")

// Resolve returns the active mapping for an internal department.
func (r *PGDepartmentRepository) Resolve(ctx context.Context, departmentID int64) (DepartmentMapping, error) {
	var m DepartmentMapping
	err := r.db.QueryRow(ctx, `SELECT department_id, external_id, external_name, class_id, class_name
FROM department_mappings WHERE department_id = $1 AND is_active`, departmentID).
		Scan(&m.DepartmentID, &m.ExternalID, &m.ExternalName, &m.ClassID, &m.ClassName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DepartmentMapping{}, ErrDepartmentMappingNotFound
		}
		return DepartmentMapping{}, err
	}
	return m, nil
}

// PGStore persists sync logs and per-document sync status in PostgreSQL.
type PGStore struct {
	db  *pgxpool.Pool
	now func() time.Time
}

// NewStore constructs a PostgreSQL sync store.
func NewStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db, now: time.Now}
}

// CreateLog inserts a pending sync log row and returns its id.
func (s *PGStore) CreateLog(ctx context.Context, syncType, sourceID, sourceRef string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `INSERT INTO sync_logs (sync_type, source_id, source_reference, status, created_at)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		syncType, sourceID, sourceRef, string(SyncStatusPending), s.now()).Scan(&id)
	return id, err
}

// MarkLogStarted flips a log to STARTED.
func (s *PGStore) MarkLogStarted(ctx context.Context, logID int64) error {
	_, err := s.db.Exec(ctx, `UPDATE sync_logs SET status = $2, started_at = $3 WHERE id = $1`,
		logID, string(SyncStatusStarted), s.now())
	return err
}

// MarkLogCompleted records final counters and the external reference.
func (s *PGStore) MarkLogCompleted(ctx context.Context, logID int64, processed, succeeded, failed int, externalRef string) error {
	_, err := s.db.Exec(ctx, `UPDATE sync_logs SET status = $2, records_processed = $3,
records_succeeded = $4, records_failed = $5, external_ref = $6, completed_at = $7 WHERE id = $1`,
		logID, string(SyncStatusCompleted), processed, succeeded, failed, externalRef, s.now())
	return err
}

// MarkLogFailed records the failure message.
func (s *PGStore) MarkLogFailed(ctx context.Context, logID int64, message string) error {
	_, err := s.db.Exec(ctx, `UPDATE sync_logs SET status = $2, error_message = $3, completed_at = $4 WHERE id = $1`,
		logID, string(SyncStatusFailed), message, s.now())
	return err
}

// IsSynced reports whether a source document already has an acknowledged
// external counterpart.
func (s *PGStore) IsSynced(ctx context.Context, syncType, sourceID string) (bool, error) {
	var synced bool
	err := s.db.QueryRow(ctx, `SELECT is_synced FROM sync_status WHERE sync_type = $1 AND source_id = $2`,
		syncType, sourceID).Scan(&synced)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return synced, nil
}

// MarkPending records a submission attempt with is_synced FALSE. Never
// overwrites an acknowledged row, so a late retry of an already-synced
// document cannot re-open it.
func (s *PGStore) MarkPending(ctx context.Context, syncType, sourceID, sourceRef string) error {
	_, err := s.db.Exec(ctx, `INSERT INTO sync_status (sync_type, source_id, source_reference, is_synced)
VALUES ($1, $2, $3, FALSE)
ON CONFLICT (sync_type, source_id) DO NOTHING`, syncType, sourceID, sourceRef)
	return err
}

// MarkSynced upserts the sync status row after connector acknowledgment.
func (s *PGStore) MarkSynced(ctx context.Context, syncType, sourceID, sourceRef, externalID string) error {
	_, err := s.db.Exec(ctx, `INSERT INTO sync_status (sync_type, source_id, source_reference, external_id, is_synced, last_sync_at)
VALUES ($1, $2, $3, $4, TRUE, $5)
ON CONFLICT (sync_type, source_id)
DO UPDATE SET external_id = EXCLUDED.external_id, is_synced = TRUE, last_sync_at = EXCLUDED.last_sync_at`,
		syncType, sourceID, sourceRef, externalID, s.now())
	return err
}

// ListUnsynced returns source ids of a type never acknowledged, for retry.
func (s *PGStore) ListUnsynced(ctx context.Context, syncType string, limit int) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT source_id FROM sync_status
WHERE sync_type = $1 AND NOT is_synced ORDER BY last_sync_at NULLS FIRST LIMIT $2`, syncType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

var (
	_ MappingRepository    = (*PGMappingRepository)(nil)
	_ DepartmentRepository = (*PGDepartmentRepository)(nil)
	_ Store                = (*PGStore)(nil)
)
