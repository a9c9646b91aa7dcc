package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	gateCacheKey = "urbix:license:gate"
	gateCacheTTL = 30 * time.Second

	// DefaultOnlineCheckEvery is the re-verification cadence applied when
	// an issued license does not specify one.
	DefaultOnlineCheckEvery = 24 * time.Hour
	// DefaultGraceWindow is how long an unreachable license server is
	// tolerated before the gate degrades to GRACE_EXPIRED.
	DefaultGraceWindow = 7 * 24 * time.Hour
)

// ActivationResult reports the outcome of binding a key to this machine.
type ActivationResult struct {
	License         License
	FirstActivation bool
	SlotsUsed       int
	SlotsTotal      int
}

// Service implements activation, gating, and lifecycle operations.
type Service struct {
	repo     Repository
	verifier Verifier
	cache    *redis.Client
	logger   *slog.Logger
	now      func() time.Time
	fp       func() string
}

// NewService wires a license service. cache and verifier may be nil; the
// service then skips gate caching and online verification respectively.
func NewService(repo Repository, verifier Verifier, cache *redis.Client, logger *slog.Logger) *Service {
	return &Service{repo: repo, verifier: verifier, cache: cache, logger: logger, now: time.Now, fp: Fingerprint}
}

// WithNow overrides the clock. Test hook.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithFingerprint overrides the hardware fingerprint source. Test hook.
func (s *Service) WithFingerprint(fp func() string) *Service {
	s.fp = fp
	return s
}

// Activate binds the supplied key to this machine's hardware fingerprint.
// Re-activating a fingerprint that already holds a slot succeeds without
// consuming another one.
func (s *Service) Activate(ctx context.Context, key string, companyID int64) (ActivationResult, error) {
	if err := ValidateKeyFormat(key); err != nil {
		return ActivationResult{}, err
	}
	lic, err := s.repo.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ActivationResult{}, ErrKeyNotFound
		}
		return ActivationResult{}, fmt.Errorf("license: lookup key: %w", err)
	}
	if companyID != 0 && lic.CompanyID != companyID {
		return ActivationResult{}, ErrKeyAlreadyBound
	}

	fp := s.fp()
	first := false
	if _, err := s.repo.FindActivation(ctx, lic.ID, fp); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return ActivationResult{}, fmt.Errorf("license: find activation: %w", err)
		}
		used, err := s.repo.CountActivations(ctx, lic.ID)
		if err != nil {
			return ActivationResult{}, fmt.Errorf("license: count activations: %w", err)
		}
		if used >= lic.MaxActivations {
			return ActivationResult{}, ErrActivationLimitReached
		}
		if err := s.repo.InsertActivation(ctx, lic.ID, fp, s.now()); err != nil {
			return ActivationResult{}, fmt.Errorf("license: insert activation: %w", err)
		}
		first = used == 0
	}

	used, err := s.repo.CountActivations(ctx, lic.ID)
	if err != nil {
		return ActivationResult{}, fmt.Errorf("license: count activations: %w", err)
	}
	lic.ActivationCount = used
	s.invalidateGate(ctx)
	s.logger.Info("license activated",
		slog.Int64("license_id", lic.ID),
		slog.String("fingerprint", shortFingerprint(fp)),
		slog.Bool("first", first),
		slog.Int("slots_used", used))
	return ActivationResult{License: lic, FirstActivation: first, SlotsUsed: used, SlotsTotal: lic.MaxActivations}, nil
}

// GateState derives the current gate decision, consulting a short-lived
// cache so the per-request middleware avoids a database round trip.
func (s *Service) GateState(ctx context.Context) GateState {
	if s.cache != nil {
		if v, err := s.cache.Get(ctx, gateCacheKey).Result(); err == nil && v != "" {
			return GateState(v)
		}
	}
	state := s.gateStateUncached(ctx)
	if s.cache != nil {
		if err := s.cache.Set(ctx, gateCacheKey, string(state), gateCacheTTL).Err(); err != nil {
			s.logger.Warn("license gate cache set failed", slog.Any("error", err))
		}
	}
	return state
}

func (s *Service) gateStateUncached(ctx context.Context) GateState {
	lic, err := s.repo.GetCurrent(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return GateNoLicense
		}
		s.logger.Error("license lookup failed", slog.Any("error", err))
		// Storage failure is not a licensing decision; keep serving.
		return GateActive
	}
	return lic.GateStateAt(s.now())
}

// Current returns the active license row with activations attached.
func (s *Service) Current(ctx context.Context) (License, []Activation, error) {
	lic, err := s.repo.GetCurrent(ctx)
	if err != nil {
		return License{}, nil, err
	}
	acts, err := s.repo.ListActivations(ctx, lic.ID)
	if err != nil {
		return License{}, nil, fmt.Errorf("license: list activations: %w", err)
	}
	return lic, acts, nil
}

// IssueInput carries the parameters for issuing a new license.
type IssueInput struct {
	CompanyID      int64
	CompanyName    string
	Tier           string
	StartsAt       time.Time
	ExpiresAt      time.Time
	MaxActivations int
}

// Issue creates a fresh license with a generated key.
func (s *Service) Issue(ctx context.Context, in IssueInput) (License, error) {
	if in.MaxActivations <= 0 {
		in.MaxActivations = 1
	}
	now := s.now()
	if in.StartsAt.IsZero() {
		in.StartsAt = now
	}
	lic := License{
		CompanyID:      in.CompanyID,
		CompanyName:    in.CompanyName,
		Key:            GenerateKey(newCompanyUUID(in.CompanyID), in.Tier, in.ExpiresAt),
		Tier:           in.Tier,
		IssuedAt:       now,
		StartsAt:       in.StartsAt,
		ExpiresAt:      in.ExpiresAt,
		MaxActivations: in.MaxActivations,
		Status:         StatusActive,
		// Grace enforcement needs a server that can answer checks; with
		// no verifier configured the license runs fully offline.
		OnlineCheckRequired: s.verifier != nil,
		OnlineCheckEvery:    DefaultOnlineCheckEvery,
		GraceWindow:         DefaultGraceWindow,
	}
	created, err := s.repo.Insert(ctx, lic)
	if err != nil {
		return License{}, fmt.Errorf("license: insert: %w", err)
	}
	s.invalidateGate(ctx)
	s.logger.Info("license issued",
		slog.Int64("license_id", created.ID),
		slog.String("tier", created.Tier),
		slog.Time("expires_at", created.ExpiresAt))
	return created, nil
}

// Revoke marks the license revoked with an operator-supplied reason.
func (s *Service) Revoke(ctx context.Context, id int64, reason string) error {
	if err := s.repo.UpdateStatus(ctx, id, StatusRevoked, reason); err != nil {
		return fmt.Errorf("license: revoke: %w", err)
	}
	s.invalidateGate(ctx)
	s.logger.Warn("license revoked", slog.Int64("license_id", id), slog.String("reason", reason))
	return nil
}

// Renew extends a license and returns it to ACTIVE. Renewal clears a
// revocation along with its reason; the operator issuing the renewal is
// the same authority that revokes.
func (s *Service) Renew(ctx context.Context, id int64, expiresAt time.Time) (License, error) {
	lic, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return License{}, err
	}
	if !expiresAt.After(lic.ExpiresAt) {
		return License{}, fmt.Errorf("license: new expiry %s does not extend %s", expiresAt.Format(time.DateOnly), lic.ExpiresAt.Format(time.DateOnly))
	}
	if err := s.repo.UpdateExpiry(ctx, id, lic.StartsAt, expiresAt); err != nil {
		return License{}, fmt.Errorf("license: update expiry: %w", err)
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusActive, ""); err != nil {
		return License{}, fmt.Errorf("license: reactivate: %w", err)
	}
	s.invalidateGate(ctx)
	return s.repo.GetByID(ctx, id)
}

// VerifyOnline asks the remote license server for the authoritative state
// and reconciles the local row. Invoked from the background scheduler,
// never from the request path.
func (s *Service) VerifyOnline(ctx context.Context) error {
	if s.verifier == nil {
		return nil
	}
	lic, err := s.repo.GetCurrent(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	now := s.now()
	if lic.LastOnlineCheck != nil && now.Sub(*lic.LastOnlineCheck) < lic.OnlineCheckEvery {
		return nil
	}
	result, err := s.verifier.Verify(ctx, lic.Key, s.fp())
	if err != nil {
		// Unreachable server leaves the grace clock running; the gate
		// degrades only once GraceWindow elapses.
		s.logger.Warn("license online verification unreachable", slog.Any("error", err))
		return nil
	}
	if err := s.repo.TouchOnlineCheck(ctx, lic.ID, now); err != nil {
		return fmt.Errorf("license: touch online check: %w", err)
	}
	switch {
	case result.Revoked:
		if err := s.repo.UpdateStatus(ctx, lic.ID, StatusRevoked, result.Reason); err != nil {
			return fmt.Errorf("license: apply revocation: %w", err)
		}
		s.logger.Warn("license revoked by server", slog.String("reason", result.Reason))
	case !result.ExpiresAt.IsZero() && !result.ExpiresAt.Equal(lic.ExpiresAt):
		if err := s.repo.UpdateExpiry(ctx, lic.ID, lic.StartsAt, result.ExpiresAt); err != nil {
			return fmt.Errorf("license: apply expiry: %w", err)
		}
		s.logger.Info("license expiry synced", slog.Time("expires_at", result.ExpiresAt))
	}
	s.invalidateGate(ctx)
	return nil
}

func (s *Service) invalidateGate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, gateCacheKey).Err(); err != nil {
		s.logger.Warn("license gate cache invalidate failed", slog.Any("error", err))
	}
}
