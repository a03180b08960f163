package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/irctrakz/sockmgr/pkg/logging"
	"github.com/irctrakz/sockmgr/pkg/socket"
)

// newHealthHandler serves /health (plain "ok") and /metrics (the registry's
// detailed metrics as JSON).
func newHealthHandler(reg *socket.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(reg.DetailedMetrics()); err != nil {
			logging.Warnf("Health: metrics encode failed: %v", err)
		}
	})
	return mux
}

func startHealthServer(addr string, reg *socket.Registry) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newHealthHandler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Warnf("Health: listener on %s failed: %v", addr, err)
		}
	}()
	logging.Infof("Health: serving /health and /metrics on %s", addr)
	return srv
}
