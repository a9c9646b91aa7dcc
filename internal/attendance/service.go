package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DeviceClient fetches punches from an attendance terminal. Implementations
// wrap whatever protocol the deployed hardware speaks; the cursor is an
// opaque device-side position token.
type DeviceClient interface {
	FetchPunches(ctx context.Context, since string) ([]Punch, string, error)
}

// Service polls devices and persists punches behind a per-device cursor so
// restarts never re-ingest or skip events.
type Service struct {
	db     *pgxpool.Pool
	client DeviceClient
	logger *slog.Logger
}

// NewService constructs a poll service for one device client.
func NewService(db *pgxpool.Pool, client DeviceClient, logger *slog.Logger) *Service {
	return &Service{db: db, client: client, logger: logger}
}

// Poll fetches punches newer than the stored cursor for the named device,
// persists them, and advances the cursor. Returns the number ingested.
func (s *Service) Poll(ctx context.Context, device string) (int, error) {
	cursor, err := s.cursor(ctx, device)
	if err != nil {
		return 0, fmt.Errorf("attendance: load cursor: %w", err)
	}
	punches, next, err := s.client.FetchPunches(ctx, cursor)
	if err != nil {
		return 0, fmt.Errorf("attendance: fetch punches: %w", err)
	}
	if len(punches) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	for _, p := range punches {
		_, err := tx.Exec(ctx, `INSERT INTO attendance_punches (employee_code, punched_at, direction, device_serial)
VALUES ($1, $2, $3, $4)
ON CONFLICT (employee_code, punched_at, direction) DO NOTHING`,
			p.EmployeeCode, p.Timestamp, string(p.Direction), p.DeviceSerial)
		if err != nil {
			return 0, fmt.Errorf("attendance: insert punch: %w", err)
		}
	}
	if next != "" && next != cursor {
		_, err := tx.Exec(ctx, `INSERT INTO attendance_cursors (device, cursor, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (device) DO UPDATE SET cursor = excluded.cursor, updated_at = now()`, device, next)
		if err != nil {
			return 0, fmt.Errorf("attendance: advance cursor: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	s.logger.Info("attendance punches ingested",
		slog.String("device", device), slog.Int("count", len(punches)))
	return len(punches), nil
}

func (s *Service) cursor(ctx context.Context, device string) (string, error) {
	var cursor string
	err := s.db.QueryRow(ctx, `SELECT cursor FROM attendance_cursors WHERE device = $1`, device).Scan(&cursor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return cursor, nil
}
