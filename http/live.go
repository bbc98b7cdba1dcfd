package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var liveClients = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "burndrop_live_stats_clients",
	Help: "Open live stats websocket connections.",
})

// handleStatsLive upgrades to a websocket and pushes Stats every
// StatsInterval until the client goes away or the server shuts down.
func (h *Handler) handleStatsLive(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already answered with an HTTP error
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer func() { _ = conn.Close() }()

	liveClients.Inc()
	defer liveClients.Dec()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		drain(conn)
	}()

	h.pushStats(r.Context(), conn, gone)
}

func (h *Handler) pushStats(ctx context.Context, conn *websocket.Conn, gone <-chan struct{}) {
	stats := time.NewTicker(h.config.StatsInterval)
	ping := time.NewTicker(pingPeriod)
	defer stats.Stop()
	defer ping.Stop()

	send := func() bool {
		st, err := h.service.Stats(ctx)
		if err != nil {
			// skip this frame, the next tick retries
			h.logger.Warn("live stats failed", slog.String("error", err.Error()))
			return true
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(st) == nil
	}

	if !send() {
		return
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-gone:
			return
		case <-stats.C:
			if !send() {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drain reads until the connection fails so control frames get processed.
// Clients have nothing to say on this feed.
func drain(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if h.config.CORS.Enabled {
		for _, allowed := range h.config.CORS.AllowedOrigins {
			if allowed == "*" || strings.EqualFold(allowed, origin) {
				return true
			}
		}
		return false
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
