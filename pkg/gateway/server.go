// Package gateway exposes the hub over HTTP and a WebSocket event
// stream.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tinyland-inc/omnichat/pkg/adapters"
	"github.com/tinyland-inc/omnichat/pkg/hub"
	"github.com/tinyland-inc/omnichat/pkg/logger"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsEventBuffer  = 64
)

type Server struct {
	hub      *hub.Hub
	server   *http.Server
	upgrader websocket.Upgrader
}

func New(h *hub.Hub, host string, port int) *Server {
	s := &Server{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The gateway binds to loopback by default; origin checks
			// are left to a fronting proxy in other deployments.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/messages", s.handleMessages)
	mux.HandleFunc("GET /api/channels", s.handleChannels)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/integrations", s.handleIntegrations)
	mux.HandleFunc("POST /api/send", s.handleSend)
	mux.HandleFunc("POST /api/broadcast", s.handleBroadcast)
	mux.HandleFunc("GET /ws", s.handleWS)

	s.server = &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	logger.InfoCF("gateway", "Listening", map[string]any{"addr": ln.Addr().String()})

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("gateway", "Server stopped", map[string]any{"error": err.Error()})
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := hub.Filter{
		Platform:  hub.Platform(q.Get("platform")),
		ChannelID: q.Get("channel"),
		Author:    q.Get("author"),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		f.Limit = limit
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		f.Since = since
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": s.hub.Messages(f)})
}

func (s *Server) handleChannels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"channels": s.hub.Channels()})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Stats())
}

func (s *Server) handleIntegrations(w http.ResponseWriter, r *http.Request) {
	type integrationStatus struct {
		Platform     string `json:"platform"`
		Connected    bool   `json:"connected"`
		LastActivity string `json:"last_activity,omitempty"`
		Error        string `json:"error,omitempty"`
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var out []integrationStatus
	for _, platform := range s.hub.Platforms() {
		integ, ok := s.hub.Integration(platform)
		if !ok {
			continue
		}
		health := integ.HealthCheck(ctx)
		status := integrationStatus{
			Platform:  health.Platform,
			Connected: health.Connected,
			Error:     health.Error,
		}
		if !health.LastActivity.IsZero() {
			status.LastActivity = health.LastActivity.UTC().Format(time.RFC3339)
		}
		out = append(out, status)
	}
	writeJSON(w, http.StatusOK, map[string]any{"integrations": out})
}

type sendRequest struct {
	Platform string `json:"platform"`
	Channel  string `json:"channel"`
	Content  string `json:"content"`
	ReplyTo  string `json:"reply_to,omitempty"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Platform == "" || req.Channel == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "platform, channel and content are required")
		return
	}

	msg, err := s.hub.SendMessage(r.Context(), req.Platform, req.Channel, req.Content,
		adapters.SendOptions{ReplyTo: req.ReplyTo})
	if err != nil {
		if errors.Is(err, hub.ErrNoIntegration) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg})
}

type broadcastRequest struct {
	Content  string   `json:"content"`
	Channels []string `json:"channels,omitempty"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	var destinations []hub.Destination
	for _, ch := range req.Channels {
		platform, channelID, ok := strings.Cut(ch, ":")
		if !ok || platform == "" || channelID == "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("channel %q must be platform:channelID", ch))
			return
		}
		destinations = append(destinations, hub.Destination{Platform: platform, ChannelID: channelID})
	}

	results := s.hub.Broadcast(r.Context(), req.Content, hub.BroadcastOptions{Channels: destinations})
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, cancel := s.hub.Subscribe(wsEventBuffer)
	defer cancel()

	// Reader drains control frames so close is detected.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WarnCF("gateway", "Response encoding failed", map[string]any{"error": err.Error()})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
