// Package httpgw implements the HTTP hook protocol transport: a
// POST /v1/evaluate endpoint mirroring the stdio transport's framing over
// JSON request/response bodies, a GET /healthz endpoint exposing the
// Health Monitor's aggregate Report, and a GET /v1/events SSE stream of
// recent audit decisions. Grounded on the teacher's
// server.HTTPEventsServer (mux route registration, writeEventJSON/
// writeEventError response helpers, fire-and-forget goroutine pattern).
package httpgw

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/toolprint/superego/internal/audit"
	"github.com/toolprint/superego/internal/decision"
	"github.com/toolprint/superego/internal/health"
	"github.com/toolprint/superego/internal/request"
	"github.com/toolprint/superego/internal/transport"
)

// Engine is the subset of decision.Engine the gateway depends on.
type Engine interface {
	Evaluate(ctx context.Context, req request.ToolRequest) (decision.Decision, error)
}

// HealthReporter is the subset of health.Monitor the gateway depends on.
type HealthReporter interface {
	Check() health.Report
}

// RecentAuditor is the subset of audit.Sink the SSE event stream depends
// on -- it polls Recent rather than subscribing to a push feed, since the
// Sink has no broadcast hook and adding one only to serve this endpoint
// would couple the hot evaluation path to transport-layer fan-out.
type RecentAuditor interface {
	Recent(n int) []audit.Entry
}

// Gateway wires the core Engine, Health Monitor, and Audit Sink onto an
// http.ServeMux.
type Gateway struct {
	engine Engine
	health HealthReporter
	logger *slog.Logger
}

// New builds a Gateway. health may be nil, in which case /healthz always
// reports healthy with no component detail.
func New(engine Engine, healthReporter HealthReporter, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{engine: engine, health: healthReporter, logger: logger.With("component", "transport.httpgw")}
}

// RegisterRoutes mounts the gateway's endpoints on mux.
func (g *Gateway) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/evaluate", g.handleEvaluate)
	mux.HandleFunc("GET /healthz", g.handleHealth)
}

func (g *Gateway) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var hookReq transport.HookRequest
	if err := json.NewDecoder(r.Body).Decode(&hookReq); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	defer func() { _ = r.Body.Close() }()

	if hookReq.ToolName == "" {
		writeError(w, http.StatusBadRequest, "tool_name is required")
		return
	}

	dec, err := g.engine.Evaluate(r.Context(), hookReq.ToToolRequest())
	if err != nil {
		writeError(w, http.StatusRequestTimeout, "evaluation cancelled: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, transport.FromDecision(dec))
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if g.health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": health.StatusHealthy.String()})
		return
	}

	report := g.health.Check()
	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"ok": false, "message": message})
}

// streamInterval is how often the SSE endpoint polls for new audit
// entries to push to connected clients.
const streamInterval = 2 * time.Second

// RegisterEventStream mounts an SSE endpoint at path that periodically
// pushes the n most recent audit entries from auditor. Kept as a separate
// registration step (rather than folded into RegisterRoutes) since it is
// the one route that reads the Audit Sink (through RecentAuditor) rather
// than the Engine/HealthReporter interfaces the rest of the gateway uses.
func RegisterEventStream(mux *http.ServeMux, path string, auditor RecentAuditor, n int, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "transport.httpgw.events")

	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		ticker := time.NewTicker(streamInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				entries := auditor.Recent(n)
				data, err := json.Marshal(entries)
				if err != nil {
					logger.Error("failed to marshal audit entries for event stream", "error", err)
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	})
}
