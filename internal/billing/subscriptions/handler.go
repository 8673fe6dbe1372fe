package subscriptions

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lumenhq/lumen/internal/platform/httpx"
	"github.com/lumenhq/lumen/internal/shared"
)

// Handler manages subscription endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers subscription routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/subscriptions", h.list)
	r.Get("/subscriptions/{id}", h.get)
	r.Post("/subscriptions/{id}/status", h.changeStatus)
	r.Post("/subscriptions/{id}/seats", h.changeSeats)
	r.Post("/subscriptions/{id}/plan", h.changePlan)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ident := shared.IdentityFromContext(r.Context())
	req := ListSubscriptionsRequest{}
	if v := r.URL.Query().Get("customer_id"); v != "" {
		id, _ := strconv.ParseInt(v, 10, 64)
		req.CustomerID = &id
	}
	if v := r.URL.Query().Get("status"); v != "" {
		s := Status(v)
		req.Status = &s
	}
	req.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	req.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	subs, err := h.service.List(r.Context(), ident, req)
	if err != nil {
		h.logger.Error("list subscriptions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"subscriptions": subs})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ident := shared.IdentityFromContext(r.Context())
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid subscription id")
		return
	}
	sub, err := h.service.Get(r.Context(), ident, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sub)
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	ident := shared.IdentityFromContext(r.Context())
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid subscription id")
		return
	}
	var req ChangeStatusRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	sub, err := h.service.ChangeStatus(r.Context(), ident, id, req.Status)
	if err != nil {
		h.logger.Error("change subscription status", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sub)
}

func (h *Handler) changeSeats(w http.ResponseWriter, r *http.Request) {
	ident := shared.IdentityFromContext(r.Context())
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid subscription id")
		return
	}
	var req ChangeSeatsRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	sub, err := h.service.ChangeSeats(r.Context(), ident, id, req.Seats)
	if err != nil {
		h.logger.Error("change subscription seats", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sub)
}

func (h *Handler) changePlan(w http.ResponseWriter, r *http.Request) {
	ident := shared.IdentityFromContext(r.Context())
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid subscription id")
		return
	}
	var req ChangePlanRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	sub, err := h.service.ChangePlan(r.Context(), ident, id, req.PlanID)
	if err != nil {
		h.logger.Error("change subscription plan", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sub)
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
