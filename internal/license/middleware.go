package license

import (
	"net/http"
	"strings"

	"github.com/urbix-hr/urbix/internal/platform/httpx"
)

// Paths every gate state must be able to reach: activation itself, the
// status endpoint the activation UI polls, and health probes.
var exemptPrefixes = []string{
	"/api/v1/license",
	"/healthz",
	"/readyz",
}

func exempt(path string) bool {
	for _, p := range exemptPrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Gate returns middleware that blocks application routes unless the gate
// state is ACTIVE. Blocked requests get a 403 problem response naming the
// state so clients can route to the right remediation screen.
func Gate(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			state := svc.GateState(r.Context())
			if !state.Blocked() {
				next.ServeHTTP(w, r)
				return
			}
			httpx.Problem(w, http.StatusForbidden, "License Required", blockedDetail(state))
		})
	}
}

func blockedDetail(state GateState) string {
	switch state {
	case GateNoLicense:
		return "no license is activated for this installation"
	case GateExpired:
		return "the license has expired"
	case GateRevoked:
		return "the license has been revoked"
	case GateGraceExpired:
		return "online verification overdue; connect to the license server"
	default:
		return string(state)
	}
}
