package directory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fabtrack/fabtrack/internal/platform/httpx"
)

// RemovalDisabledMessage is returned for every client removal attempt.
const RemovalDisabledMessage = "Client removal is disabled. Clients are managed via Google Sheets."

// Handler exposes the directory to the administrator.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers directory routes. Callers restrict them to admins.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Delete("/{email}", h.remove)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	clients, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Warn("list directory", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, clients)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	httpx.Problem(w, http.StatusConflict, "Conflict", RemovalDisabledMessage)
}
