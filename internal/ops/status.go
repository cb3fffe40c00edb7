package ops

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/logs"

	"tradegw/internal/obs"
)

const statusShutdownGrace = 5 * time.Second

// StatusServerConfig wires the HTTP status endpoint.
type StatusServerConfig struct {
	Addr    string
	Metrics *obs.Metrics
	// Healthy reports whether the gateway session is usable. Nil means
	// always healthy.
	Healthy func() bool
	// Snapshot builds the /statusz payload. Nil disables the route.
	Snapshot func() any
}

// StatusServer serves /healthz, /statusz, and /metrics for operators.
type StatusServer struct {
	cfg StatusServerConfig
	srv *http.Server
}

// NewStatusServer builds a stopped status server; call Run to serve.
func NewStatusServer(cfg StatusServerConfig) *StatusServer {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if cfg.Healthy != nil && !cfg.Healthy() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Snapshot != nil {
		mux.HandleFunc("/statusz", func(w http.ResponseWriter, _ *http.Request) {
			body, err := sonic.ConfigFastest.Marshal(cfg.Snapshot())
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(body)
		})
	}
	if cfg.Metrics != nil {
		registry := prometheus.NewRegistry()
		registry.MustRegister(obs.NewExporter(cfg.Metrics))
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	return &StatusServer{
		cfg: cfg,
		srv: &http.Server{Addr: cfg.Addr, Handler: mux},
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *StatusServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()
	logs.Infof("status server listening, addr: %s", s.cfg.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), statusShutdownGrace)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			logs.Warnf("status server shutdown, err: %+v", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
