package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Bridge represents a BLE-to-WebSocket bridge found on the network
type Bridge struct {
	// Instance is the mDNS instance name (e.g., "emslink-livingroom")
	Instance string

	// Hostname is the mDNS hostname (e.g., "esp32-bridge.local.")
	Hostname string

	// IP is the address to dial, IPv4 preferred
	IP string

	// Port is the WebSocket port
	Port int

	// Path is the WebSocket endpoint path (from the "path" TXT record)
	Path string

	// Secure is set when the bridge advertises "tls=1"
	Secure bool

	// Metadata contains the raw TXT record data
	Metadata map[string]string

	// DiscoveredAt is when the bridge was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the bridge
func (b *Bridge) String() string {
	return fmt.Sprintf("Bridge %s (%s) at %s", b.Instance, b.Hostname, b.URL())
}

// URL returns the WebSocket URL for transport.DialBridge
func (b *Bridge) URL() string {
	scheme := "ws"
	if b.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s%s", scheme, net.JoinHostPort(b.IP, strconv.Itoa(b.Port)), b.Path)
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (b *Bridge) GetMetadata(key string) string {
	if b.Metadata == nil {
		return ""
	}
	return b.Metadata[key]
}
