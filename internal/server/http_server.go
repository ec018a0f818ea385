package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/obby/tripwire/internal/hub"
)

// HTTPServer serves the feed as Server-Sent Events
type HTTPServer struct {
	hub    *hub.Hub
	mux    *http.ServeMux
	server *http.Server
	logger *slog.Logger
	ping   time.Duration
}

// NewHTTPServer creates a new HTTP SSE server
func NewHTTPServer(h *hub.Hub, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	mux := http.NewServeMux()
	s := &HTTPServer{
		hub:    h,
		mux:    mux,
		logger: logger,
		ping:   30 * time.Second,
		server: &http.Server{
			Handler:     mux,
			ReadTimeout: 30 * time.Second,
			IdleTimeout: 120 * time.Second,
		},
	}

	// Register routes
	mux.HandleFunc("/events", s.handleSSE)
	mux.HandleFunc("/health", s.handleHealth)

	return s
}

// Handler returns the HTTP handler
func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

// handleSSE streams hub messages to one client
func (s *HTTPServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	client := s.hub.NewClient(topicsFromRequest(r)...)
	if !s.hub.Register(client) {
		http.Error(w, "feed is shut down", http.StatusServiceUnavailable)
		return
	}
	defer s.hub.Unregister(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.logger.Debug("sse client connected", "client", client.ID)

	fmt.Fprintf(w, "event: connected\ndata: %s\n\n", client.ID)
	flusher.Flush()

	pingTicker := time.NewTicker(s.ping)
	defer pingTicker.Stop()

	for {
		select {
		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			data, err := json.Marshal(messageFields(msg))
			if err != nil {
				s.logger.Error("marshaling sse message", "error", err)
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", msg.ID, msg.Event, data)
			flusher.Flush()

		case <-pingTicker.C:
			fmt.Fprintf(w, "event: ping\ndata: %s\n\n", time.Now().Format(time.RFC3339))
			flusher.Flush()

		case <-r.Context().Done():
			s.logger.Debug("sse client disconnected", "client", client.ID)
			return
		}
	}
}

// handleHealth provides health check endpoint
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"clients":   s.hub.ClientCount(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// topicsFromRequest reads a comma separated "topics" query parameter
func topicsFromRequest(r *http.Request) []string {
	param := r.URL.Query().Get("topics")
	if param == "" {
		return nil
	}
	var topics []string
	for _, topic := range strings.Split(param, ",") {
		if topic = strings.TrimSpace(topic); topic != "" {
			topics = append(topics, topic)
		}
	}
	return topics
}

// Serve serves on lis until ctx is done
func (s *HTTPServer) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		select {
		case <-ctx.Done():
		case <-s.hub.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartHTTPServer listens on addr and serves the SSE feed until ctx is done
func StartHTTPServer(ctx context.Context, addr string, h *hub.Hub, logger *slog.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s := NewHTTPServer(h, logger)
	s.logger.Info("sse feed listening", "addr", lis.Addr().String())
	return s.Serve(ctx, lis)
}
