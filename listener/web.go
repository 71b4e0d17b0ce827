package listener

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type statusResponse struct {
	DeviceID  string   `json:"device_id"`
	Connected bool     `json:"connected"`
	SocketID  string   `json:"socket_id,omitempty"`
	Channels  []string `json:"channels"`
	LastEvent string   `json:"last_event,omitempty"`
}

// serveStatus runs the local observability endpoint until ctx is cancelled.
func (l *Listener) serveStatus(ctx context.Context) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(l.status())
	})

	srv := &http.Server{Addr: l.cfg.StatusAddr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	l.logger.Info("Status endpoint listening", "addr", l.cfg.StatusAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		l.logger.Error("Status endpoint failed", "error", err)
	}
}

func (l *Listener) status() statusResponse {
	l.mu.Lock()
	c := l.client
	lastEvent := l.lastEvent
	l.mu.Unlock()

	resp := statusResponse{DeviceID: l.cfg.DeviceID, Channels: []string{}}
	if !lastEvent.IsZero() {
		resp.LastEvent = lastEvent.Format(time.RFC3339)
	}
	if c == nil {
		return resp
	}

	resp.Connected = c.IsConnected()
	resp.SocketID = c.SocketID()
	for _, ch := range c.Channels() {
		resp.Channels = append(resp.Channels, ch.Name())
	}
	return resp
}
