package license

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Status enumerates persisted license states.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
	StatusRevoked Status = "REVOKED"
)

// GateState is the derived per-request decision state. It extends Status
// with the no-row case and the soft degradation when online verification
// has been unreachable past the grace window.
type GateState string

const (
	GateNoLicense    GateState = "NO_LICENSE"
	GateActive       GateState = "ACTIVE"
	GateExpired      GateState = "EXPIRED"
	GateRevoked      GateState = "REVOKED"
	GateGraceExpired GateState = "GRACE_EXPIRED"
)

// License is the one-per-company activation record.
type License struct {
	ID                  int64
	CompanyID           int64
	CompanyName         string
	Key                 string
	Tier                string
	IssuedAt            time.Time
	StartsAt            time.Time
	ExpiresAt           time.Time
	MaxActivations      int
	ActivationCount     int
	Status              Status
	RevocationReason    string
	OnlineCheckRequired bool
	LastOnlineCheck     *time.Time
	OnlineCheckEvery    time.Duration
	GraceWindow         time.Duration
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Activation binds a license to one hardware fingerprint. The pair
// (LicenseID, Fingerprint) is unique, so re-activating the same machine
// does not consume a slot.
type Activation struct {
	ID          int64
	LicenseID   int64
	Fingerprint string
	ActivatedAt time.Time
}

var (
	// ErrKeyNotFound indicates no license matches the supplied key.
	ErrKeyNotFound = errors.New("license: key not found")
	// ErrKeyAlreadyBound indicates the key belongs to a different company.
	ErrKeyAlreadyBound = errors.New("license: key bound to another company")
	// ErrActivationLimitReached indicates all activation slots are in use.
	ErrActivationLimitReached = errors.New("license: maximum activations reached")
	// ErrInvalidKeyFormat indicates a malformed license key.
	ErrInvalidKeyFormat = errors.New("license: invalid key format")
	// ErrNotFound indicates a missing license row.
	ErrNotFound = errors.New("license: not found")
)

// License keys are sha256 hex digests.
var keyPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ValidateKeyFormat rejects keys that cannot be a generated digest.
func ValidateKeyFormat(key string) error {
	if !keyPattern.MatchString(key) {
		return ErrInvalidKeyFormat
	}
	return nil
}

// GenerateKey derives a content-based license key for a company/tier/expiry
// triple. The random salt makes each issuance unique.
func GenerateKey(companyUUID uuid.UUID, tier string, expiresAt time.Time) string {
	base := fmt.Sprintf("%s-%s-%s-%s", companyUUID, tier, expiresAt.Format("2006-01-02"), uuid.NewString())
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}

// newCompanyUUID derives a stable UUID for a numeric company id so key
// generation has a uniform input shape.
func newCompanyUUID(companyID int64) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("urbix-company-%d", companyID)))
}

// FormatKey renders the first five 5-character groups for display.
func FormatKey(key string) string {
	out := ""
	for i := 0; i+5 <= len(key) && i < 25; i += 5 {
		if out != "" {
			out += "-"
		}
		out += key[i : i+5]
	}
	return out
}

// IsExpired reports whether the license expiry has passed.
func (l License) IsExpired(now time.Time) bool {
	return l.ExpiresAt.Before(now)
}

// DaysUntilExpiry returns whole days remaining, floored at zero.
func (l License) DaysUntilExpiry(now time.Time) int {
	if l.IsExpired(now) {
		return 0
	}
	return int(l.ExpiresAt.Sub(now).Hours() / 24)
}

// GraceElapsed reports whether online verification has been silent for
// longer than the grace window. A license never checked online is within
// grace until the window elapses from its start date. Licenses that do
// not require online checks never degrade.
func (l License) GraceElapsed(now time.Time) bool {
	if !l.OnlineCheckRequired || l.GraceWindow <= 0 {
		return false
	}
	anchor := l.StartsAt
	if l.LastOnlineCheck != nil {
		anchor = *l.LastOnlineCheck
	}
	return now.Sub(anchor) > l.GraceWindow
}

// GateStateAt derives the request-time gate state from persisted fields.
// Pure function of the license and the clock; no I/O.
func (l License) GateStateAt(now time.Time) GateState {
	switch {
	case l.Status == StatusRevoked:
		return GateRevoked
	case l.IsExpired(now) || l.Status == StatusExpired:
		return GateExpired
	case l.GraceElapsed(now):
		return GateGraceExpired
	default:
		return GateActive
	}
}

// Blocked reports whether a gate state routes away from the application.
func (s GateState) Blocked() bool {
	return s != GateActive
}
