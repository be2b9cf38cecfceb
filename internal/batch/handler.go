package batch

import (
	"log/slog"
	"net/http"

	"github.com/JaimeStill/manifest/pkg/handlers"
	"github.com/JaimeStill/manifest/pkg/routes"
)

// Handler provides HTTP endpoints for batch submission and tracking.
type Handler struct {
	coord  *Coordinator
	logger *slog.Logger
}

func NewHandler(coord *Coordinator, logger *slog.Logger) *Handler {
	return &Handler{
		coord:  coord,
		logger: logger.With("handler", "batches"),
	}
}

// Routes returns the route group definition for batch endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/batches",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "", Handler: h.Submit},
			{Method: "GET", Pattern: "/{id}", Handler: h.Status},
			{Method: "POST", Pattern: "/{id}/cancel", Handler: h.Cancel},
		},
	}
}

// Submit starts a batch and responds 202 with its initial report.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	cmd, err := handlers.DecodeJSON[SubmitCommand](w, r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	report, err := h.coord.Submit(cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, report)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	report, err := h.coord.Status(id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, report)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	report, err := h.coord.Cancel(id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, report)
}
