package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/muurk/emslink/internal/logging"
	"github.com/muurk/emslink/internal/version"
	"go.uber.org/zap"
)

// Health is the body of GET /healthz
type Health struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Path        string `json:"path"`
	Version     string `json:"version"`
}

// Handler returns the HTTP handler serving the bridge endpoint and /healthz
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, s.handleBridge)
	mux.HandleFunc("/healthz", s.handleHealth)
	return logRequests(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Health{
		Status:      "ok",
		Connections: s.GetActiveConnections(),
		Path:        s.config.Path,
		Version:     version.Get().Version,
	})
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		LogHTTPRequestDetails(r, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

// LogHTTPRequestDetails logs all details of an HTTP request
func LogHTTPRequestDetails(req *http.Request, remoteAddr string) {
	headers := make(map[string]string)
	for key, values := range req.Header {
		headers[key] = strings.Join(values, ", ")
	}

	logging.LogHTTPRequest(remoteAddr, req.Method, req.URL.Path, headers)

	// Log specific WebSocket headers at debug level
	if req.Header.Get("Upgrade") != "" {
		logging.Debug("WebSocket upgrade request details",
			zap.String("remote_addr", remoteAddr),
			zap.String("host", req.Host),
			zap.String("origin", req.Header.Get("Origin")),
			zap.String("sec_websocket_version", req.Header.Get("Sec-WebSocket-Version")),
			zap.String("sec_websocket_protocol", req.Header.Get("Sec-WebSocket-Protocol")),
			zap.String("user_agent", req.Header.Get("User-Agent")),
		)
	}
}
