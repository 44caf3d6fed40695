package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/emslink/internal/discovery"
	"github.com/muurk/emslink/internal/logging"
	"github.com/muurk/emslink/internal/simulator"
	"github.com/muurk/emslink/internal/transport"
	"go.uber.org/zap"
)

// Defaults for the bridge endpoint
const (
	DefaultPort     = 8080
	DefaultPath     = "/bridge"
	DefaultInstance = "emslink-simulator"

	shutdownTimeout = 10 * time.Second
)

// Config holds the server configuration
type Config struct {
	Host        string
	Port        int
	Path        string // WebSocket endpoint path
	CertPath    string // Serve wss:// when both CertPath and KeyPath are set
	KeyPath     string
	LogLevel    string
	AnalysisDir string // Directory to write JSONL captures (empty = disabled)

	// Advertise registers the bridge via mDNS under Instance
	Advertise bool
	Instance  string

	// Profile is the GATT layout the simulated device exposes
	Profile transport.Profile

	// Device options applied to each connection's simulator
	Device []simulator.Option
}

// Server is a BLE bridge lookalike backed by simulated devices. Each
// WebSocket client gets its own device.
type Server struct {
	config     *Config
	listener   net.Listener
	tlsConfig  *tls.Config
	httpServer *http.Server
	upgrader   websocket.Upgrader
	advert     *discovery.Advertisement

	wg          sync.WaitGroup
	mu          sync.Mutex
	activeConns map[string]*bridgeConn
	shutdown    bool
}

// New creates a new Server instance
func New(config *Config) (*Server, error) {
	if config.LogLevel != "" {
		if err := logging.Initialize(config.LogLevel); err != nil {
			return nil, fmt.Errorf("failed to initialize logging: %w", err)
		}
	}

	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.Instance == "" {
		config.Instance = DefaultInstance
	}
	if config.Profile == (transport.Profile{}) {
		config.Profile = transport.DefaultProfile()
	}
	if err := config.Profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid GATT profile: %w", err)
	}

	var tlsConfig *tls.Config
	if config.CertPath != "" || config.KeyPath != "" {
		var err error
		tlsConfig, err = NewTLSConfig(config.CertPath, config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
	}

	if config.AnalysisDir != "" {
		if err := os.MkdirAll(config.AnalysisDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create analysis directory: %w", err)
		}
	}

	s := &Server{
		config:      config,
		tlsConfig:   tlsConfig,
		activeConns: make(map[string]*bridgeConn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Start listens on Host:Port and blocks until a shutdown signal or error
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))

	var (
		listener net.Listener
		err      error
	)
	if s.tlsConfig != nil {
		logging.Info("TLS Configuration", zap.Any("tls_info", GetTLSInfo(s.tlsConfig)))
		listener, err = tls.Listen("tcp", addr, s.tlsConfig)
	} else {
		listener, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Serve(listener)
	}()

	select {
	case <-sigChan:
		logging.Info("Shutdown signal received, stopping server...")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

// Serve accepts bridge clients on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	logging.Info("Starting emslink bridge server",
		zap.String("addr", l.Addr().String()),
		zap.String("path", s.config.Path),
		zap.Bool("tls", s.tlsConfig != nil),
		zap.String("analysis_dir", s.config.AnalysisDir),
	)

	if s.config.Advertise {
		port := s.config.Port
		if tcp, ok := l.Addr().(*net.TCPAddr); ok {
			port = tcp.Port
		}
		advert, err := discovery.Register(s.config.Instance, port, s.config.Path, s.tlsConfig != nil)
		if err != nil {
			// The bridge still works without mDNS.
			logging.Warn("mDNS registration failed", zap.Error(err))
		} else {
			s.mu.Lock()
			s.advert = advert
			s.mu.Unlock()
		}
	}

	err := s.httpServer.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")

	s.mu.Lock()
	s.shutdown = true
	advert := s.advert
	s.advert = nil
	s.mu.Unlock()

	advert.Shutdown()

	// Stop accepting; hijacked WebSocket connections are not tracked by
	// http.Server and are closed below.
	if err := s.httpServer.Shutdown(ctx); err != nil {
		logging.Error("Error stopping HTTP server", zap.Error(err))
	}

	s.mu.Lock()
	for addr, bc := range s.activeConns {
		logging.Info("Closing active connection", zap.String("remote_addr", addr))
		bc.close(websocket.CloseGoingAway, "server shutting down")
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All connections closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	}

	logging.Sync()
	return nil
}

// GetActiveConnections returns the number of active connections
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}

func (s *Server) track(bc *bridgeConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return false
	}
	s.activeConns[bc.remoteAddr] = bc
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(bc *bridgeConn) {
	s.mu.Lock()
	delete(s.activeConns, bc.remoteAddr)
	s.mu.Unlock()
	s.wg.Done()
}
