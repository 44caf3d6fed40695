package discovery

import (
	"testing"
	"time"
)

func TestBridge_String(t *testing.T) {
	bridge := &Bridge{
		Instance: "emslink-bedroom",
		Hostname: "esp32-bridge.local.",
		IP:       "192.168.4.16",
		Port:     8080,
		Path:     "/bridge",
	}

	expected := "Bridge emslink-bedroom (esp32-bridge.local.) at ws://192.168.4.16:8080/bridge"
	if bridge.String() != expected {
		t.Errorf("Bridge.String() = %v, want %v", bridge.String(), expected)
	}
}

func TestBridge_URL(t *testing.T) {
	tests := []struct {
		name     string
		bridge   *Bridge
		expected string
	}{
		{
			name:     "plain websocket",
			bridge:   &Bridge{IP: "192.168.4.16", Port: 8080, Path: "/bridge"},
			expected: "ws://192.168.4.16:8080/bridge",
		},
		{
			name:     "tls",
			bridge:   &Bridge{IP: "10.0.0.5", Port: 443, Path: "/ble", Secure: true},
			expected: "wss://10.0.0.5:443/ble",
		},
		{
			name:     "ipv6 address is bracketed",
			bridge:   &Bridge{IP: "fe80::1", Port: 8080, Path: "/bridge"},
			expected: "ws://[fe80::1]:8080/bridge",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.bridge.URL(); got != tt.expected {
				t.Errorf("Bridge.URL() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBridge_GetMetadata(t *testing.T) {
	bridge := &Bridge{
		Metadata: map[string]string{
			"path": "/bridge",
			"fw":   "0.4.1",
		},
	}

	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{
			name:     "existing key",
			key:      "path",
			expected: "/bridge",
		},
		{
			name:     "another existing key",
			key:      "fw",
			expected: "0.4.1",
		},
		{
			name:     "non-existent key",
			key:      "missing",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bridge.GetMetadata(tt.key); got != tt.expected {
				t.Errorf("Bridge.GetMetadata(%v) = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

func TestBridge_GetMetadata_NilMap(t *testing.T) {
	bridge := &Bridge{Metadata: nil}

	if got := bridge.GetMetadata("anything"); got != "" {
		t.Errorf("Bridge.GetMetadata() with nil map = %v, want empty string", got)
	}
}

func TestBridge_DiscoveredAt(t *testing.T) {
	now := time.Now()
	bridge := &Bridge{Instance: "emslink", DiscoveredAt: now}

	if !bridge.DiscoveredAt.Equal(now) {
		t.Errorf("Bridge.DiscoveredAt = %v, want %v", bridge.DiscoveredAt, now)
	}
}
