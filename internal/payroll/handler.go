package payroll

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/urbix-hr/urbix/internal/platform/httpx"
	"github.com/urbix-hr/urbix/internal/shared"
)

// Handler wires HTTP endpoints for payroll periods.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency *shared.IdempotencyStore
	audit       *shared.AuditLogger
}

// NewHandler constructs a Handler instance. idempotency and audit may be nil.
func NewHandler(logger *slog.Logger, service *Service, idempotency *shared.IdempotencyStore, audit *shared.AuditLogger) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idempotency, audit: audit}
}

func (h *Handler) recordAudit(r *http.Request, action string, periodID int64) {
	if h.audit == nil {
		return
	}
	var actorID int64
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		actorID, _ = strconv.ParseInt(sess.User(), 10, 64)
	}
	log := shared.AuditLog{ActorID: actorID, Action: action, Entity: "payroll_period", EntityID: strconv.FormatInt(periodID, 10)}
	if err := h.audit.Record(r.Context(), log); err != nil {
		h.logger.Warn("audit record", slog.Any("error", err))
	}
}

// MountRoutes registers payroll routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/periods", h.listPeriods)
	r.Get("/periods/{id}", h.getPeriod)
	r.Post("/periods/{id}/approve", h.approvePeriod)
	r.Post("/periods/{id}/pay", h.markPaid)
}

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	periods, err := h.service.ListPeriods(r.Context(), limit)
	if err != nil {
		h.logger.Error("list periods", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"periods": periods})
}

func (h *Handler) getPeriod(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid period id")
		return
	}
	p, err := h.service.GetPeriod(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrPeriodNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "period not found")
			return
		}
		h.logger.Error("get period", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) approvePeriod(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid period id")
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, "payroll"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Duplicate", "request already processed")
				return
			}
			h.logger.Error("idempotency check", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
	}
	p, err := h.service.ApprovePeriod(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrPeriodNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "period not found")
			return
		}
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
		return
	}
	h.recordAudit(r, "APPROVE", id)
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) markPaid(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid period id")
		return
	}
	if err := h.service.MarkPeriodPaid(r.Context(), id); err != nil {
		if errors.Is(err, ErrPeriodNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "period not found")
			return
		}
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
		return
	}
	h.recordAudit(r, "PAY", id)
	w.WriteHeader(http.StatusNoContent)
}
