package httpx

import (
	"log/slog"
	"net/http"

	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Analysis       *service.AnalysisService
	MaxUploadBytes int64
	Logger         *slog.Logger // Logger for request logs and panics (optional)
}

// NewRouter creates the API router wrapped in panic recovery and request logging.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	mux := http.NewServeMux()

	analysis := &AnalysisHandlers{
		Svc:            services.Analysis,
		MaxUploadBytes: services.MaxUploadBytes,
		Logger:         logger,
	}
	mux.HandleFunc("POST /analyze", analysis.Submit)
	mux.HandleFunc("GET /results/{task_id}", analysis.Results)

	mux.HandleFunc("GET /{$}", rootHandler)
	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("HEAD /healthz", healthHandler)

	return Recover(logger)(Logging(logger)(mux))
}
