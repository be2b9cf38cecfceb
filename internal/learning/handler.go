package learning

import (
	"log/slog"
	"net/http"

	"github.com/JaimeStill/manifest/internal/documents"
	"github.com/JaimeStill/manifest/pkg/handlers"
	"github.com/JaimeStill/manifest/pkg/pagination"
	"github.com/JaimeStill/manifest/pkg/routes"
)

// Handler provides HTTP endpoints for human corrections.
type Handler struct {
	loop       *Loop
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler with the given loop, logger, and pagination config.
func NewHandler(loop *Loop, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		loop:       loop,
		logger:     logger.With("handler", "corrections"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for correction endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/corrections",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "POST", Pattern: "", Handler: h.Correct},
		},
	}
}

// List returns the corrections log, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := documents.CorrectionFiltersFromQuery(r.URL.Query())

	result, err := h.loop.Corrections(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Correct records one reviewer correction.
func (h *Handler) Correct(w http.ResponseWriter, r *http.Request) {
	cmd, err := handlers.DecodeJSON[documents.CorrectCommand](w, r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	outcome, err := h.loop.Correct(r.Context(), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, outcome)
}
