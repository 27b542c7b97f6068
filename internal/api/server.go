// Package api provides the HTTP control surface of the tide daemon:
// task lifecycle, wallet groups, a per-task event websocket, health and
// Prometheus metrics.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tide-labs/tide/internal/domain"
	"github.com/tide-labs/tide/internal/health"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TaskRegistry is the task control plane. *task.Registry satisfies it.
type TaskRegistry interface {
	Create(spec domain.TaskSpec) (domain.TaskInfo, error)
	Start(id string) error
	Stop(id string) error
	Remove(id string) error
	Get(id string) (domain.TaskInfo, error)
	List() []domain.TaskInfo
}

// EventSource hands out per-task event subscriptions. *events.Hub satisfies it.
type EventSource interface {
	Subscribe(taskID string) (<-chan domain.Event, func())
}

// WalletGroups manages stored wallet groups. *sqlite.WalletStore satisfies it.
type WalletGroups interface {
	SaveWalletGroup(g domain.WalletGroup) error
	ListWalletGroups() ([]domain.WalletGroupSummary, error)
	DeleteWalletGroup(id string) error
}

// KeyParser decodes one exported private key for chain.
type KeyParser func(chain domain.Chain, s string) (domain.PrivateKey, error)

// Server is the tide HTTP API server.
type Server struct {
	tasks          TaskRegistry
	events         EventSource
	wallets        WalletGroups
	parseKey       KeyParser
	checker        *health.Checker
	metricsEnabled bool
	log            *zap.Logger
}

// NewServer creates a new API server.
func NewServer(tasks TaskRegistry, events EventSource, logger *zap.Logger) *Server {
	return &Server{tasks: tasks, events: events, log: logger}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetWallets mounts the wallet group endpoints.
func (s *Server) SetWallets(w WalletGroups, parse KeyParser) {
	s.wallets = w
	s.parseKey = parse
}

// SetHealth reports c's statuses on /health.
func (s *Server) SetHealth(c *health.Checker) { s.checker = c }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api/tasks", func(r chi.Router) {
		// Websocket upgrades must not sit behind the request timeout.
		r.Get("/{id}/events", s.handleTaskEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleCreateTask)
			r.Get("/{id}", s.handleGetTask)
			r.Post("/{id}/start", s.handleStartTask)
			r.Post("/{id}/stop", s.handleStopTask)
			r.Delete("/{id}", s.handleRemoveTask)
		})
	})

	if s.wallets != nil {
		r.Route("/api/wallet-groups", func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Get("/", s.handleListWalletGroups)
			r.Post("/", s.handleImportWalletGroup)
			r.Delete("/{id}", s.handleDeleteWalletGroup)
		})
	}

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.checker.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.checker.Statuses(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}

// writeDomainError maps a control error to its HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusOf(err), err.Error())
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, domain.ErrWalletGroupNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTaskExists),
		errors.Is(err, domain.ErrTaskRunning),
		errors.Is(err, domain.ErrTaskStopping):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidTaskSpec),
		errors.Is(err, domain.ErrEmptyWalletGroup),
		errors.Is(err, domain.ErrUnsupportedChain):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
