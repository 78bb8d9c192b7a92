package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taskpilot/internal/logging"
)

// NewRouter wires every endpoint behind the CORS, identity, and request-log
// middleware chain.
func NewRouter(api *APIHandler, execute *ExecuteHandler, allowedOrigins []string) http.Handler {
	logger := logging.NewComponentLogger("Router")
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/analyze-task", api.HandleAnalyzeTask)
	mux.HandleFunc("POST /api/execute-task", execute.HandleExecuteTask)
	mux.HandleFunc("POST /api/followup", api.HandleFollowUp)

	mux.HandleFunc("POST /api/tasks", api.HandleCreateTask)
	mux.HandleFunc("GET /api/tasks", api.HandleListTasks)
	mux.HandleFunc("PATCH /api/tasks/{id}", api.HandleUpdateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", api.HandleDeleteTask)
	mux.HandleFunc("GET /api/tasks/{id}/executions", api.HandleListExecutions)
	mux.HandleFunc("GET /api/tasks/{id}/conversation", api.HandleListConversation)
	mux.HandleFunc("PATCH /api/executions/{id}", api.HandleUpdateExecution)

	mux.HandleFunc("GET /api/search", api.HandleSearch)
	mux.HandleFunc("GET /api/health", api.HandleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = mux
	handler = RequestLogMiddleware(logger)(handler)
	handler = IdentityMiddleware(handler)
	handler = CORSMiddleware(allowedOrigins)(handler)
	return handler
}
