package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"authguard/internal/alerts"
	"authguard/internal/config"
	"authguard/internal/metrics"
)

type EngineControl interface {
	Reset()
	UpdateConfig(cfg *config.Config)
	KeyCount() int
}

type Server struct {
	cfg     *config.Manager
	metrics *metrics.Store
	alerts  *alerts.Store
	engine  EngineControl
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status     string          `json:"status"`
	Time       string          `json:"time"`
	Version    string          `json:"version"`
	ConfigPath string          `json:"config_path"`
	Ingest     ingestStatus    `json:"ingest"`
	Detection  detectionStatus `json:"detection"`
	Tenants    tenantsStatus   `json:"tenants"`
}

type ingestStatus struct {
	REST   bool `json:"rest"`
	Syslog bool `json:"syslog"`
	Kafka  bool `json:"kafka"`
}

type detectionStatus struct {
	Threshold   int    `json:"threshold"`
	Window      string `json:"window"`
	TrackedKeys int    `json:"tracked_keys"`
}

type tenantsStatus struct {
	Default    string `json:"default"`
	RangeCount int    `json:"range_count"`
}

func Start(ctx context.Context, cfg *config.Manager, metricsStore *metrics.Store, alertsStore *alerts.Store, engine EngineControl, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:     cfg,
		metrics: metricsStore,
		alerts:  alertsStore,
		engine:  engine,
		logger:  logger,
		version: version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/alerts", server.handleAlerts)
	mux.HandleFunc("/windows", server.handleWindows)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/admin/clear", server.handleClear)
	mux.HandleFunc("/admin/reload", server.handleReload)

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	tracked := 0
	if s.engine != nil {
		tracked = s.engine.KeyCount()
	}
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Ingest: ingestStatus{
			REST:   cfg.Ingest.REST.Enabled,
			Syslog: cfg.Ingest.Syslog.Enabled,
			Kafka:  cfg.Ingest.Kafka.Enabled,
		},
		Detection: detectionStatus{
			Threshold:   cfg.Detection.Threshold,
			Window:      cfg.Detection.Window.String(),
			TrackedKeys: tracked,
		},
		Tenants: tenantsStatus{
			Default:    cfg.Tenants.Default,
			RangeCount: len(cfg.Tenants.Ranges),
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAlerts lists recent alerts for one tenant. The tenant query
// parameter is mandatory: there is no cross-tenant view.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenantID := r.URL.Query().Get("tenant")
	if tenantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant query parameter required"})
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, s.alerts.List(tenantID, limit))
}

func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenantID := r.URL.Query().Get("tenant")
	if tenantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant query parameter required"})
		return
	}
	snaps, updatedAt, ok := s.metrics.Get(tenantID)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"tenant": tenantID, "windows": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant":     tenantID,
		"updated_at": updatedAt.Format(time.RFC3339Nano),
		"windows":    snaps,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.alerts.Clear()
	s.metrics.Clear()
	if s.engine != nil {
		s.engine.Reset()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg, err := s.cfg.Reload()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if s.engine != nil {
		s.engine.UpdateConfig(cfg)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
