package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthStatus tracks liveness of the engine's moving parts for /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	providers     map[string]bool // provider name -> ws connected
	lastEventTime time.Time
	sessions      map[string]int // endpoint -> open sessions
	mirrorState   string
	historyGaps   int
	startedAt     time.Time
}

func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		providers:   make(map[string]bool),
		sessions:    make(map[string]int),
		mirrorState: "disabled",
		startedAt:   time.Now(),
	}
}

func (h *HealthStatus) SetProviderConnected(name string, connected bool) {
	h.mu.Lock()
	h.providers[name] = connected
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastEventTime(t time.Time) {
	h.mu.Lock()
	h.lastEventTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetSessionCount(endpoint string, n int) {
	h.mu.Lock()
	h.sessions[endpoint] = n
	h.mu.Unlock()
}

func (h *HealthStatus) SetMirrorState(state string) {
	h.mu.Lock()
	h.mirrorState = state
	h.mu.Unlock()
}

func (h *HealthStatus) SetHistoryGaps(n int) {
	h.mu.Lock()
	h.historyGaps = n
	h.mu.Unlock()
}

// ServeHTTP handles /healthz. Degraded (503) when any provider has lost
// its streaming link.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	httpCode := http.StatusOK
	for _, connected := range h.providers {
		if !connected {
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
			break
		}
	}

	eventAge := ""
	if !h.lastEventTime.IsZero() {
		eventAge = time.Since(h.lastEventTime).Round(time.Millisecond).String()
	}

	providers := make(map[string]bool, len(h.providers))
	for name, ok := range h.providers {
		providers[name] = ok
	}
	sessions := make(map[string]int, len(h.sessions))
	for ep, n := range h.sessions {
		sessions[ep] = n
	}

	payload := struct {
		Status        string          `json:"status"`
		Uptime        string          `json:"uptime"`
		Providers     map[string]bool `json:"providers"`
		LastEventTime string          `json:"last_event_time,omitempty"`
		EventAge      string          `json:"event_age,omitempty"`
		Sessions      map[string]int  `json:"sessions"`
		MirrorState   string          `json:"mirror_state"`
		HistoryGaps   int             `json:"history_gaps"`
	}{
		Status:      status,
		Uptime:      time.Since(h.startedAt).Round(time.Second).String(),
		Providers:   providers,
		Sessions:    sessions,
		MirrorState: h.mirrorState,
		HistoryGaps: h.historyGaps,
	}
	if !h.lastEventTime.IsZero() {
		payload.LastEventTime = h.lastEventTime.Format(time.RFC3339)
		payload.EventAge = eventAge
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(payload)
}

// Server exposes /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

func NewServer(addr string, m *Metrics, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
