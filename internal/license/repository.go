package license

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines persistence operations for licenses and activations.
type Repository interface {
	GetCurrent(ctx context.Context) (License, error)
	GetByKey(ctx context.Context, key string) (License, error)
	GetByID(ctx context.Context, id int64) (License, error)
	Insert(ctx context.Context, l License) (License, error)
	UpdateStatus(ctx context.Context, id int64, status Status, reason string) error
	UpdateExpiry(ctx context.Context, id int64, startsAt, expiresAt time.Time) error
	TouchOnlineCheck(ctx context.Context, id int64, at time.Time) error
	ListActivations(ctx context.Context, licenseID int64) ([]Activation, error)
	FindActivation(ctx context.Context, licenseID int64, fingerprint string) (Activation, error)
	InsertActivation(ctx context.Context, licenseID int64, fingerprint string, at time.Time) error
	CountActivations(ctx context.Context, licenseID int64) (int, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const licenseColumns = `id, company_id, company_name, license_key, tier, issued_at, starts_at,
expires_at, max_activations, activation_count, status, revocation_reason,
online_check_required, last_online_check, online_check_every, grace_window, created_at, updated_at`

func scanLicense(row pgx.Row) (License, error) {
	var l License
	var checkEvery, grace int64
	err := row.Scan(&l.ID, &l.CompanyID, &l.CompanyName, &l.Key, &l.Tier, &l.IssuedAt,
		&l.StartsAt, &l.ExpiresAt, &l.MaxActivations, &l.ActivationCount, &l.Status,
		&l.RevocationReason, &l.OnlineCheckRequired, &l.LastOnlineCheck, &checkEvery, &grace, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return License{}, ErrNotFound
		}
		return License{}, err
	}
	l.OnlineCheckEvery = time.Duration(checkEvery) * time.Second
	l.GraceWindow = time.Duration(grace) * time.Second
	return l, nil
}

func (r *repository) GetCurrent(ctx context.Context) (License, error) {
	return scanLicense(r.db.QueryRow(ctx, `SELECT `+licenseColumns+` FROM licenses ORDER BY created_at DESC LIMIT 1`))
}

func (r *repository) GetByKey(ctx context.Context, key string) (License, error) {
	return scanLicense(r.db.QueryRow(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE license_key = $1`, key))
}

func (r *repository) GetByID(ctx context.Context, id int64) (License, error) {
	return scanLicense(r.db.QueryRow(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE id = $1`, id))
}

func (r *repository) Insert(ctx context.Context, l License) (License, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO licenses (company_id, company_name, license_key, tier,
issued_at, starts_at, expires_at, max_activations, activation_count, status,
online_check_required, online_check_every, grace_window)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,$9,$10,$11,$12) RETURNING id, created_at, updated_at`,
		l.CompanyID, l.CompanyName, l.Key, l.Tier, l.IssuedAt, l.StartsAt, l.ExpiresAt,
		l.MaxActivations, string(l.Status), l.OnlineCheckRequired,
		int64(l.OnlineCheckEvery.Seconds()), int64(l.GraceWindow.Seconds()))
	if err := row.Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return License{}, err
	}
	return l, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status Status, reason string) error {
	_, err := r.db.Exec(ctx, `UPDATE licenses SET status = $2, revocation_reason = $3, updated_at = now() WHERE id = $1`,
		id, string(status), reason)
	return err
}

func (r *repository) UpdateExpiry(ctx context.Context, id int64, startsAt, expiresAt time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE licenses SET starts_at = $2, expires_at = $3, updated_at = now() WHERE id = $1`,
		id, startsAt, expiresAt)
	return err
}

func (r *repository) TouchOnlineCheck(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE licenses SET last_online_check = $2, updated_at = now() WHERE id = $1`, id, at)
	return err
}

func (r *repository) ListActivations(ctx context.Context, licenseID int64) ([]Activation, error) {
	rows, err := r.db.Query(ctx, `SELECT id, license_id, hardware_fingerprint, activated_at
FROM activations WHERE license_id = $1 ORDER BY activated_at`, licenseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Activation
	for rows.Next() {
		var a Activation
		if err := rows.Scan(&a.ID, &a.LicenseID, &a.Fingerprint, &a.ActivatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) FindActivation(ctx context.Context, licenseID int64, fingerprint string) (Activation, error) {
	var a Activation
	err := r.db.QueryRow(ctx, `SELECT id, license_id, hardware_fingerprint, activated_at
FROM activations WHERE license_id = $1 AND hardware_fingerprint = $2`, licenseID, fingerprint).
		Scan(&a.ID, &a.LicenseID, &a.Fingerprint, &a.ActivatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Activation{}, ErrNotFound
		}
		return Activation{}, err
	}
	return a, nil
}

func (r *repository) InsertActivation(ctx context.Context, licenseID int64, fingerprint string, at time.Time) error {
	_, err := r.db.Exec(ctx, `INSERT INTO activations (license_id, hardware_fingerprint, activated_at)
VALUES ($1, $2, $3) ON CONFLICT (license_id, hardware_fingerprint) DO NOTHING`, licenseID, fingerprint, at)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `UPDATE licenses SET activation_count =
(SELECT count(*) FROM activations WHERE license_id = $1), updated_at = now() WHERE id = $1`, licenseID)
	return err
}

func (r *repository) CountActivations(ctx context.Context, licenseID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM activations WHERE license_id = $1`, licenseID).Scan(&n)
	return n, err
}

var _ Repository = (*repository)(nil)
