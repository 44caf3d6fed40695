package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/emslink/internal/logging"
	"go.uber.org/zap"
)

const (
	// ServiceType is the mDNS service type bridges advertise
	ServiceType = "_emslink._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for bridge discovery
	DefaultScanTimeout = 5 * time.Second

	// DefaultPort is used when an entry carries no port
	DefaultPort = 8080

	// DefaultPath is used when an entry carries no "path" TXT record
	DefaultPath = "/bridge"
)

// Scanner handles mDNS bridge discovery
type Scanner struct {
	// Timeout is the maximum time to wait for discovery
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// ScanForBridges collects every bridge that answers before the timeout or
// ctx expires.
func (s *Scanner) ScanForBridges(ctx context.Context) ([]*Bridge, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)

	var (
		mu      sync.Mutex
		bridges = make([]*Bridge, 0)
		seen    = make(map[string]bool)
		done    = make(chan struct{})
	)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		defer close(done)
		for entry := range entries {
			bridge := s.parseServiceEntry(entry)
			if bridge == nil {
				continue
			}
			mu.Lock()
			if !seen[bridge.Instance] {
				seen[bridge.Instance] = true
				bridges = append(bridges, bridge)
				logging.Debug("Discovered bridge", zap.String("bridge", bridge.String()))
			}
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()

	// The resolver closes entries once the browse context ends.
	select {
	case <-done:
	case <-time.After(time.Second):
	}

	mu.Lock()
	defer mu.Unlock()
	return append([]*Bridge(nil), bridges...), nil
}

// WaitForBridge returns the first bridge whose instance name matches, or
// the first bridge found when instance is empty.
func (s *Scanner) WaitForBridge(ctx context.Context, instance string) (*Bridge, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan *Bridge, 1)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		for entry := range entries {
			bridge := s.parseServiceEntry(entry)
			if bridge != nil && (instance == "" || bridge.Instance == instance) {
				select {
				case found <- bridge:
				default:
				}
				cancel()
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case bridge := <-found:
		return bridge, nil
	case <-ctx.Done():
		select {
		case bridge := <-found:
			return bridge, nil
		default:
		}
		if instance == "" {
			return nil, fmt.Errorf("no bridge found within %s", s.Timeout)
		}
		return nil, fmt.Errorf("bridge %q not found within %s", instance, s.Timeout)
	}
}

// parseServiceEntry converts a zeroconf service entry to a Bridge
// Returns nil if the entry has no usable address
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Bridge {
	if entry == nil || entry.Instance == "" {
		return nil
	}

	// Get IP address (prefer IPv4)
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	}
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	metadata := parseTXT(entry.Text)

	path := metadata["path"]
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return &Bridge{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Path:         path,
		Secure:       metadata["tls"] == "1",
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// parseTXT splits "key=value" TXT records. Keys without a value map to "".
func parseTXT(records []string) map[string]string {
	metadata := make(map[string]string, len(records))
	for _, txt := range records {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}
	return metadata
}

// Advertisement is a running mDNS registration
type Advertisement struct {
	server *zeroconf.Server
}

// Register advertises a bridge on the local network until Shutdown.
func Register(instance string, port int, path string, secure bool, extra ...string) (*Advertisement, error) {
	txt := []string{"path=" + path}
	if secure {
		txt = append(txt, "tls=1")
	}
	txt = append(txt, extra...)

	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	logging.Info("Advertising bridge via mDNS",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", port),
		zap.Strings("txt", txt),
	)
	return &Advertisement{server: server}, nil
}

// Shutdown withdraws the advertisement
func (a *Advertisement) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
}

// ScanForBridges is a convenience function to scan with a custom timeout
func ScanForBridges(ctx context.Context, timeout time.Duration) ([]*Bridge, error) {
	scanner := NewScanner()
	scanner.Timeout = timeout
	return scanner.ScanForBridges(ctx)
}

// FindBridge searches for one bridge by instance name with the default timeout
func FindBridge(ctx context.Context, instance string) (*Bridge, error) {
	return NewScanner().WaitForBridge(ctx, instance)
}
