package activity

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lumenhq/lumen/internal/platform/httpx"
	"github.com/lumenhq/lumen/internal/shared"
)

// Handler exposes read-only activity timeline endpoints.
type Handler struct {
	logger *slog.Logger
	store  *Store
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, store *Store) *Handler {
	return &Handler{logger: logger, store: store}
}

// MountRoutes registers activity routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/activity", h.timeline)
	r.Get("/activity/{entityType}/{entityID}", h.listFor)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	entries, hasNext, err := h.store.Timeline(r.Context(), id.TenantID, r.URL.Query().Get("entity_type"), limit, offset)
	if err != nil {
		h.logger.Error("activity timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries, "has_next": hasNext})
}

func (h *Handler) listFor(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	entityID, err := strconv.ParseInt(chi.URLParam(r, "entityID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entity id")
		return
	}
	entries, err := h.store.ListFor(r.Context(), id.TenantID, chi.URLParam(r, "entityType"), entityID)
	if err != nil {
		h.logger.Error("activity list", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}
