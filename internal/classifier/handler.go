package classifier

import (
	"log/slog"
	"net/http"

	"github.com/JaimeStill/manifest/pkg/handlers"
	"github.com/JaimeStill/manifest/pkg/routes"
)

// Handler exposes a classification preview that does not persist anything.
type Handler struct {
	classifier *Classifier
	logger     *slog.Logger
}

func NewHandler(c *Classifier, logger *slog.Logger) *Handler {
	return &Handler{
		classifier: c,
		logger:     logger.With("handler", "classify"),
	}
}

// Routes returns the route group definition for classification endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/classify",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "", Handler: h.Classify},
		},
	}
}

// Classify runs one description through the tier chain.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	req, err := handlers.DecodeJSON[Request](w, r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	result, err := h.classifier.Classify(r.Context(), req)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}
