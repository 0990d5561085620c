package routes

import (
	"net/http"

	"github.com/trashscanner/predictor/internal/handlers"
	"github.com/trashscanner/predictor/internal/logger"
	"github.com/trashscanner/predictor/internal/middleware"
)

// SetupRoutes registers the API endpoints and wraps the mux with request
// ids, logging, CORS and the shared-secret check.
func SetupRoutes(h *handlers.Handler, authToken string, log *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", h.Root)
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/predict", h.Predict)

	var handler http.Handler = mux
	handler = middleware.Auth(authToken, "/", "/health")(handler)
	handler = middleware.CORS(handler)
	handler = middleware.Logging(log)(handler)
	handler = middleware.WithRequestID(handler)
	return handler
}
