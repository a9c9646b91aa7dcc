package license

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/urbix-hr/urbix/internal/platform/httpx"
)

// Handler wires HTTP endpoints for license activation and administration.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers license routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/activate", h.handleActivate)
	r.Get("/status", h.handleStatus)
	r.Post("/", h.handleIssue)
	r.Post("/{id}/revoke", h.handleRevoke)
	r.Post("/{id}/renew", h.handleRenew)
}

type activateRequest struct {
	LicenseKey string `json:"license_key" validate:"required,len=64,hexadecimal"`
	CompanyID  int64  `json:"company_id"`
}

type activateResponse struct {
	Status          string `json:"status"`
	FirstActivation bool   `json:"first_activation"`
	SlotsUsed       int    `json:"slots_used"`
	SlotsTotal      int    `json:"slots_total"`
	ExpiresAt       string `json:"expires_at"`
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Activate(r.Context(), req.LicenseKey, req.CompanyID)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidKeyFormat):
			httpx.Problem(w, http.StatusBadRequest, "Invalid Key", "license key format is invalid")
		case errors.Is(err, ErrKeyNotFound):
			httpx.Problem(w, http.StatusNotFound, "Unknown Key", "no license matches this key")
		case errors.Is(err, ErrKeyAlreadyBound):
			httpx.Problem(w, http.StatusConflict, "Key Bound", "license key belongs to another company")
		case errors.Is(err, ErrActivationLimitReached):
			httpx.Problem(w, http.StatusConflict, "Activation Limit", "all activation slots are in use")
		default:
			h.logger.Error("activate license", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}
	httpx.JSON(w, http.StatusOK, activateResponse{
		Status:          string(result.License.Status),
		FirstActivation: result.FirstActivation,
		SlotsUsed:       result.SlotsUsed,
		SlotsTotal:      result.SlotsTotal,
		ExpiresAt:       result.License.ExpiresAt.Format(time.RFC3339),
	})
}

type statusResponse struct {
	State           string   `json:"state"`
	KeyDisplay      string   `json:"key_display,omitempty"`
	Tier            string   `json:"tier,omitempty"`
	ExpiresAt       string   `json:"expires_at,omitempty"`
	DaysUntilExpiry int      `json:"days_until_expiry"`
	SlotsUsed       int      `json:"slots_used"`
	SlotsTotal      int      `json:"slots_total"`
	Fingerprints    []string `json:"fingerprints,omitempty"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	lic, acts, err := h.service.Current(r.Context())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.JSON(w, http.StatusOK, statusResponse{State: string(GateNoLicense)})
			return
		}
		h.logger.Error("license status", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	now := time.Now()
	resp := statusResponse{
		State:           string(lic.GateStateAt(now)),
		KeyDisplay:      FormatKey(lic.Key),
		Tier:            lic.Tier,
		ExpiresAt:       lic.ExpiresAt.Format(time.RFC3339),
		DaysUntilExpiry: lic.DaysUntilExpiry(now),
		SlotsUsed:       lic.ActivationCount,
		SlotsTotal:      lic.MaxActivations,
	}
	for _, a := range acts {
		resp.Fingerprints = append(resp.Fingerprints, shortFingerprint(a.Fingerprint))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type issueRequest struct {
	CompanyID      int64  `json:"company_id" validate:"required"`
	CompanyName    string `json:"company_name" validate:"required"`
	Tier           string `json:"tier" validate:"required,oneof=STARTER STANDARD ENTERPRISE"`
	ExpiresAt      string `json:"expires_at" validate:"required"`
	MaxActivations int    `json:"max_activations" validate:"min=1,max=50"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	expiresAt, err := time.Parse(time.RFC3339, req.ExpiresAt)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "expires_at must be RFC3339")
		return
	}
	lic, err := h.service.Issue(r.Context(), IssueInput{
		CompanyID:      req.CompanyID,
		CompanyName:    req.CompanyName,
		Tier:           req.Tier,
		ExpiresAt:      expiresAt,
		MaxActivations: req.MaxActivations,
	})
	if err != nil {
		h.logger.Error("issue license", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":          lic.ID,
		"license_key": lic.Key,
		"key_display": FormatKey(lic.Key),
		"expires_at":  lic.ExpiresAt.Format(time.RFC3339),
	})
}

type revokeRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid license id")
		return
	}
	var req revokeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Revoke(r.Context(), id, req.Reason); err != nil {
		h.logger.Error("revoke license", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(StatusRevoked)})
}

type renewRequest struct {
	ExpiresAt string `json:"expires_at" validate:"required"`
}

func (h *Handler) handleRenew(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid license id")
		return
	}
	var req renewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	expiresAt, err := time.Parse(time.RFC3339, req.ExpiresAt)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "expires_at must be RFC3339")
		return
	}
	lic, err := h.service.Renew(r.Context(), id, expiresAt)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "license not found")
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Renew Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id":         lic.ID,
		"status":     string(lic.Status),
		"expires_at": lic.ExpiresAt.Format(time.RFC3339),
	})
}
