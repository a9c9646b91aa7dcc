package license_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/urbix-hr/urbix/internal/license"
)

type stubRepo struct {
	licenses    map[int64]license.License
	activations map[int64][]license.Activation
	nextID      int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		licenses:    make(map[int64]license.License),
		activations: make(map[int64][]license.Activation),
		nextID:      1,
	}
}

func (r *stubRepo) GetCurrent(_ context.Context) (license.License, error) {
	var latest license.License
	found := false
	for _, l := range r.licenses {
		if !found || l.ID > latest.ID {
			latest = l
			found = true
		}
	}
	if !found {
		return license.License{}, license.ErrNotFound
	}
	return latest, nil
}

func (r *stubRepo) GetByKey(_ context.Context, key string) (license.License, error) {
	for _, l := range r.licenses {
		if l.Key == key {
			return l, nil
		}
	}
	return license.License{}, license.ErrNotFound
}

func (r *stubRepo) GetByID(_ context.Context, id int64) (license.License, error) {
	l, ok := r.licenses[id]
	if !ok {
		return license.License{}, license.ErrNotFound
	}
	return l, nil
}

func (r *stubRepo) Insert(_ context.Context, l license.License) (license.License, error) {
	l.ID = r.nextID
	r.nextID++
	r.licenses[l.ID] = l
	return l, nil
}

func (r *stubRepo) UpdateStatus(_ context.Context, id int64, status license.Status, reason string) error {
	l := r.licenses[id]
	l.Status = status
	l.RevocationReason = reason
	r.licenses[id] = l
	return nil
}

func (r *stubRepo) UpdateExpiry(_ context.Context, id int64, startsAt, expiresAt time.Time) error {
	l := r.licenses[id]
	l.StartsAt = startsAt
	l.ExpiresAt = expiresAt
	r.licenses[id] = l
	return nil
}

func (r *stubRepo) TouchOnlineCheck(_ context.Context, id int64, at time.Time) error {
	l := r.licenses[id]
	l.LastOnlineCheck = &at
	r.licenses[id] = l
	return nil
}

func (r *stubRepo) ListActivations(_ context.Context, licenseID int64) ([]license.Activation, error) {
	return r.activations[licenseID], nil
}

func (r *stubRepo) FindActivation(_ context.Context, licenseID int64, fingerprint string) (license.Activation, error) {
	for _, a := range r.activations[licenseID] {
		if a.Fingerprint == fingerprint {
			return a, nil
		}
	}
	return license.Activation{}, license.ErrNotFound
}

func (r *stubRepo) InsertActivation(_ context.Context, licenseID int64, fingerprint string, at time.Time) error {
	for _, a := range r.activations[licenseID] {
		if a.Fingerprint == fingerprint {
			return nil
		}
	}
	r.activations[licenseID] = append(r.activations[licenseID], license.Activation{
		LicenseID: licenseID, Fingerprint: fingerprint, ActivatedAt: at,
	})
	l := r.licenses[licenseID]
	l.ActivationCount = len(r.activations[licenseID])
	r.licenses[licenseID] = l
	return nil
}

func (r *stubRepo) CountActivations(_ context.Context, licenseID int64) (int, error) {
	return len(r.activations[licenseID]), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedLicense(t *testing.T, repo *stubRepo, maxSlots int) license.License {
	t.Helper()
	lic, err := repo.Insert(context.Background(), license.License{
		CompanyID:      1,
		CompanyName:    "Urbix Test Co",
		Key:            "0f2a7c9d8e1b3a4c5d6e7f8091a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4",
		Tier:           "STANDARD",
		StartsAt:       time.Now().AddDate(0, -1, 0),
		ExpiresAt:      time.Now().AddDate(1, 0, 0),
		MaxActivations: maxSlots,
		Status:         license.StatusActive,
		GraceWindow:    7 * 24 * time.Hour,
	})
	require.NoError(t, err)
	return lic
}

func TestActivateSlotAccounting(t *testing.T) {
	repo := newStubRepo()
	lic := seedLicense(t, repo, 2)
	svc := license.NewService(repo, nil, nil, testLogger())

	fp := "hw-1"
	svc.WithFingerprint(func() string { return fp })

	// First activation consumes slot one.
	res, err := svc.Activate(context.Background(), lic.Key, 0)
	require.NoError(t, err)
	require.True(t, res.FirstActivation)
	require.Equal(t, 1, res.SlotsUsed)

	// Same machine again is a no-op, not a new slot.
	res, err = svc.Activate(context.Background(), lic.Key, 0)
	require.NoError(t, err)
	require.False(t, res.FirstActivation)
	require.Equal(t, 1, res.SlotsUsed)

	// Second machine takes the last slot.
	fp = "hw-2"
	res, err = svc.Activate(context.Background(), lic.Key, 0)
	require.NoError(t, err)
	require.False(t, res.FirstActivation)
	require.Equal(t, 2, res.SlotsUsed)

	// Third machine is refused.
	fp = "hw-3"
	_, err = svc.Activate(context.Background(), lic.Key, 0)
	require.ErrorIs(t, err, license.ErrActivationLimitReached)
}

func TestActivateRejections(t *testing.T) {
	repo := newStubRepo()
	lic := seedLicense(t, repo, 1)
	svc := license.NewService(repo, nil, nil, testLogger())
	svc.WithFingerprint(func() string { return "hw-1" })

	_, err := svc.Activate(context.Background(), "not-a-key", 0)
	require.ErrorIs(t, err, license.ErrInvalidKeyFormat)

	unknown := "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
	_, err = svc.Activate(context.Background(), unknown, 0)
	require.ErrorIs(t, err, license.ErrKeyNotFound)

	_, err = svc.Activate(context.Background(), lic.Key, 999)
	require.ErrorIs(t, err, license.ErrKeyAlreadyBound)
}

func TestGateStateCaching(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	repo := newStubRepo()
	seedLicense(t, repo, 1)
	svc := license.NewService(repo, nil, cache, testLogger())
	now := time.Now()
	checked := now.Add(-time.Hour)
	for id, l := range repo.licenses {
		l.LastOnlineCheck = &checked
		repo.licenses[id] = l
	}

	require.Equal(t, license.GateActive, svc.GateState(context.Background()))

	// A stale cached verdict is served until the TTL lapses.
	for id, l := range repo.licenses {
		l.Status = license.StatusRevoked
		repo.licenses[id] = l
	}
	require.Equal(t, license.GateActive, svc.GateState(context.Background()))

	mr.FastForward(time.Minute)
	require.Equal(t, license.GateRevoked, svc.GateState(context.Background()))
}

func TestGateStateNoLicense(t *testing.T) {
	svc := license.NewService(newStubRepo(), nil, nil, testLogger())
	require.Equal(t, license.GateNoLicense, svc.GateState(context.Background()))
}

func TestRenewClearsRevocation(t *testing.T) {
	repo := newStubRepo()
	lic := seedLicense(t, repo, 1)
	svc := license.NewService(repo, nil, nil, testLogger())

	require.NoError(t, svc.Revoke(context.Background(), lic.ID, "chargeback"))
	require.Equal(t, license.GateRevoked, svc.GateState(context.Background()))

	renewed, err := svc.Renew(context.Background(), lic.ID, lic.ExpiresAt.AddDate(2, 0, 0))
	require.NoError(t, err)
	require.Equal(t, license.StatusActive, renewed.Status)
	require.Empty(t, renewed.RevocationReason)
	require.Equal(t, license.GateActive, svc.GateState(context.Background()))
}

func TestRenewRequiresLaterExpiry(t *testing.T) {
	repo := newStubRepo()
	lic := seedLicense(t, repo, 1)
	svc := license.NewService(repo, nil, nil, testLogger())

	_, err := svc.Renew(context.Background(), lic.ID, lic.ExpiresAt.AddDate(-1, 0, 0))
	require.Error(t, err)

	got, err := repo.GetByID(context.Background(), lic.ID)
	require.NoError(t, err)
	require.Equal(t, lic.ExpiresAt, got.ExpiresAt)
}

func TestIssueOfflineDeploymentNeverDegrades(t *testing.T) {
	repo := newStubRepo()
	svc := license.NewService(repo, nil, nil, testLogger())

	issuedAt := time.Now().Add(-10 * 24 * time.Hour)
	svc.WithNow(func() time.Time { return issuedAt })
	lic, err := svc.Issue(context.Background(), license.IssueInput{
		CompanyID:      1,
		CompanyName:    "Urbix Test Co",
		Tier:           "STANDARD",
		ExpiresAt:      issuedAt.AddDate(1, 0, 0),
		MaxActivations: 1,
	})
	require.NoError(t, err)
	require.False(t, lic.OnlineCheckRequired, "no license server configured")

	// Well past the default grace window and never checked online, the
	// gate stays open because nothing could have answered a check.
	svc.WithNow(time.Now)
	require.Equal(t, license.GateActive, svc.GateState(context.Background()))
}

func TestIssueWithVerifierRequiresOnlineCheck(t *testing.T) {
	repo := newStubRepo()
	svc := license.NewService(repo, &stubVerifier{}, nil, testLogger())

	lic, err := svc.Issue(context.Background(), license.IssueInput{
		CompanyID:      1,
		CompanyName:    "Urbix Test Co",
		Tier:           "STANDARD",
		ExpiresAt:      time.Now().AddDate(1, 0, 0),
		MaxActivations: 1,
	})
	require.NoError(t, err)
	require.True(t, lic.OnlineCheckRequired)
}

type stubVerifier struct {
	result license.VerifyResult
	err    error
	calls  int
}

func (v *stubVerifier) Verify(_ context.Context, _, _ string) (license.VerifyResult, error) {
	v.calls++
	return v.result, v.err
}

func TestVerifyOnlineAppliesRevocation(t *testing.T) {
	repo := newStubRepo()
	lic := seedLicense(t, repo, 1)
	ver := &stubVerifier{result: license.VerifyResult{Revoked: true, Reason: "chargeback"}}
	svc := license.NewService(repo, ver, nil, testLogger())
	svc.WithFingerprint(func() string { return "hw-1" })

	require.NoError(t, svc.VerifyOnline(context.Background()))
	require.Equal(t, 1, ver.calls)

	got, err := repo.GetByID(context.Background(), lic.ID)
	require.NoError(t, err)
	require.Equal(t, license.StatusRevoked, got.Status)
	require.Equal(t, "chargeback", got.RevocationReason)
	require.NotNil(t, got.LastOnlineCheck)
}

func TestVerifyOnlineUnreachableLeavesState(t *testing.T) {
	repo := newStubRepo()
	lic := seedLicense(t, repo, 1)
	ver := &stubVerifier{err: errors.New("dial tcp: timeout")}
	svc := license.NewService(repo, ver, nil, testLogger())
	svc.WithFingerprint(func() string { return "hw-1" })

	require.NoError(t, svc.VerifyOnline(context.Background()))

	got, err := repo.GetByID(context.Background(), lic.ID)
	require.NoError(t, err)
	require.Equal(t, license.StatusActive, got.Status)
	require.Nil(t, got.LastOnlineCheck, "failed check must not advance the grace anchor")
}

func TestVerifyOnlineRespectsCadence(t *testing.T) {
	repo := newStubRepo()
	lic := seedLicense(t, repo, 1)
	recent := time.Now().Add(-time.Hour)
	l := repo.licenses[lic.ID]
	l.LastOnlineCheck = &recent
	l.OnlineCheckEvery = 24 * time.Hour
	repo.licenses[lic.ID] = l

	ver := &stubVerifier{}
	svc := license.NewService(repo, ver, nil, testLogger())
	require.NoError(t, svc.VerifyOnline(context.Background()))
	require.Zero(t, ver.calls, "checked an hour ago, cadence is daily")
}

func TestGateMiddleware(t *testing.T) {
	repo := newStubRepo()
	svc := license.NewService(repo, nil, nil, testLogger())

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := license.Gate(svc)(next)

	// No license row: application routes are blocked.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/payroll/periods", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Activation and health endpoints stay reachable.
	for _, path := range []string{"/api/v1/license/activate", "/api/v1/license/status", "/healthz"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusNoContent, rec.Code, path)
	}

	// Active license opens the gate.
	lic := seedLicense(t, repo, 1)
	checked := time.Now()
	l := repo.licenses[lic.ID]
	l.LastOnlineCheck = &checked
	repo.licenses[lic.ID] = l

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/payroll/periods", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}
