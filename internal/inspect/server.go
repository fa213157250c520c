// Package inspect exposes the read-only inspection surface (spec.md
// §4.11): GET /snapshot/slo/{class} and GET /snapshot/hooks. The router
// setup — mux.NewRouter, a CORS middleware, per-route Methods("GET") —
// is grounded on the teacher's internal/api/server.go APIServer.
package inspect

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/eightbeat/reconciler/internal/hook"
	"github.com/eightbeat/reconciler/internal/receipt"
	"github.com/eightbeat/reconciler/internal/slo"
	"github.com/gorilla/mux"
)

// Server exposes SLO and hook-registry snapshots over HTTP.
type Server struct {
	monitor  *slo.Monitor
	registry *hook.Registry
}

// New builds a Server around an already-running Monitor and Registry.
func New(monitor *slo.Monitor, registry *hook.Registry) *Server {
	return &Server{monitor: monitor, registry: registry}
}

// Router builds the mux.Router serving this Server's endpoints.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.HandleFunc("/snapshot/slo/{class}", s.handleSnapshotSLO).Methods(http.MethodGet)
	r.HandleFunc("/snapshot/slo", s.handleSnapshotSLOAll).Methods(http.MethodGet)
	r.HandleFunc("/snapshot/hooks", s.handleSnapshotHooks).Methods(http.MethodGet)

	return r
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	log.Printf("inspect: listening on %s", addr)
	return http.ListenAndServe(addr, s.Router())
}

func parseClass(s string) (receipt.RuntimeClass, bool) {
	switch s {
	case "R1", "r1":
		return receipt.ClassR1, true
	case "W1", "w1":
		return receipt.ClassW1, true
	case "C1", "c1":
		return receipt.ClassC1, true
	default:
		return 0, false
	}
}

func (s *Server) handleSnapshotSLO(w http.ResponseWriter, r *http.Request) {
	class, ok := parseClass(mux.Vars(r)["class"])
	if !ok {
		http.Error(w, "unknown runtime class", http.StatusNotFound)
		return
	}
	writeJSON(w, s.monitor.SnapshotFor(class))
}

func (s *Server) handleSnapshotSLOAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.monitor.SnapshotAll())
}

// hookSnapshot is the wire shape for one registered hook; Guard functions
// are not serializable so only the metadata travels over the wire.
type hookSnapshot struct {
	HookID           uint64   `json:"hook_id"`
	Predicate        uint64   `json:"predicate"`
	KernelKind       string   `json:"kernel_kind"`
	Invariants       []string `json:"invariants"`
	CompileTimestamp int64    `json:"compile_timestamp"`
}

func (s *Server) handleSnapshotHooks(w http.ResponseWriter, r *http.Request) {
	entries := s.registry.Snapshot()
	out := make([]hookSnapshot, len(entries))
	for i, e := range entries {
		out[i] = hookSnapshot{
			HookID:           e.HookID,
			Predicate:        e.Predicate,
			KernelKind:       e.KernelKind.String(),
			Invariants:       e.Invariants,
			CompileTimestamp: e.CompileTimestamp,
		}
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("inspect: encode response: %v", err)
		http.Error(w, fmt.Sprintf("encode response: %v", err), http.StatusInternalServerError)
	}
}
