package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func newEntry(instance, host string, port int, v4, v6 []net.IP, txt ...string) *zeroconf.ServiceEntry {
	entry := zeroconf.NewServiceEntry(instance, ServiceType, ServiceDomain)
	entry.HostName = host
	entry.Port = port
	entry.AddrIPv4 = v4
	entry.AddrIPv6 = v6
	entry.Text = txt
	return entry
}

func TestScanner_parseServiceEntry(t *testing.T) {
	scanner := NewScanner()

	tests := []struct {
		name       string
		entry      *zeroconf.ServiceEntry
		wantNil    bool
		wantIP     string
		wantPort   int
		wantPath   string
		wantSecure bool
	}{
		{
			name: "bridge with IPv4 and path",
			entry: newEntry("emslink-a", "esp32.local.", 8080,
				[]net.IP{net.ParseIP("192.168.4.16")}, nil, "path=/ble"),
			wantIP:   "192.168.4.16",
			wantPort: 8080,
			wantPath: "/ble",
		},
		{
			name: "no path defaults",
			entry: newEntry("emslink-b", "esp32.local.", 9000,
				[]net.IP{net.ParseIP("10.0.0.5")}, nil),
			wantIP:   "10.0.0.5",
			wantPort: 9000,
			wantPath: DefaultPath,
		},
		{
			name: "relative path gains a slash",
			entry: newEntry("emslink-c", "esp32.local.", 8080,
				[]net.IP{net.ParseIP("10.0.0.6")}, nil, "path=bridge"),
			wantIP:   "10.0.0.6",
			wantPort: 8080,
			wantPath: "/bridge",
		},
		{
			name: "no port specified (should default)",
			entry: newEntry("emslink-d", "esp32.local.", 0,
				[]net.IP{net.ParseIP("172.16.0.1")}, nil),
			wantIP:   "172.16.0.1",
			wantPort: DefaultPort,
			wantPath: DefaultPath,
		},
		{
			name: "tls flag",
			entry: newEntry("emslink-e", "esp32.local.", 443,
				[]net.IP{net.ParseIP("172.16.0.2")}, nil, "tls=1"),
			wantIP:     "172.16.0.2",
			wantPort:   443,
			wantPath:   DefaultPath,
			wantSecure: true,
		},
		{
			name:    "no IP address",
			entry:   newEntry("emslink-f", "esp32.local.", 8080, nil, nil),
			wantNil: true,
		},
		{
			name:    "no instance name",
			entry:   newEntry("", "esp32.local.", 8080, []net.IP{net.ParseIP("192.168.1.1")}, nil),
			wantNil: true,
		},
		{
			name: "IPv6 only bridge",
			entry: newEntry("emslink-g", "esp32.local.", 8080,
				nil, []net.IP{net.ParseIP("fe80::1")}),
			wantIP:   "fe80::1",
			wantPort: 8080,
			wantPath: DefaultPath,
		},
		{
			name: "both IPv4 and IPv6 (should prefer IPv4)",
			entry: newEntry("emslink-h", "esp32.local.", 8080,
				[]net.IP{net.ParseIP("192.168.1.50")}, []net.IP{net.ParseIP("fe80::2")}),
			wantIP:   "192.168.1.50",
			wantPort: 8080,
			wantPath: DefaultPath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bridge := scanner.parseServiceEntry(tt.entry)

			if tt.wantNil {
				if bridge != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", bridge)
				}
				return
			}

			if bridge == nil {
				t.Fatal("parseServiceEntry() = nil, want non-nil bridge")
			}

			if bridge.Instance != tt.entry.Instance {
				t.Errorf("bridge.Instance = %v, want %v", bridge.Instance, tt.entry.Instance)
			}

			if bridge.IP != tt.wantIP {
				t.Errorf("bridge.IP = %v, want %v", bridge.IP, tt.wantIP)
			}

			if bridge.Port != tt.wantPort {
				t.Errorf("bridge.Port = %v, want %v", bridge.Port, tt.wantPort)
			}

			if bridge.Path != tt.wantPath {
				t.Errorf("bridge.Path = %v, want %v", bridge.Path, tt.wantPath)
			}

			if bridge.Secure != tt.wantSecure {
				t.Errorf("bridge.Secure = %v, want %v", bridge.Secure, tt.wantSecure)
			}

			if time.Since(bridge.DiscoveredAt) > time.Second {
				t.Errorf("bridge.DiscoveredAt is not recent: %v", bridge.DiscoveredAt)
			}
		})
	}
}

func TestScanner_parseServiceEntry_Nil(t *testing.T) {
	if got := NewScanner().parseServiceEntry(nil); got != nil {
		t.Errorf("parseServiceEntry(nil) = %v, want nil", got)
	}
}

func TestParseTXT(t *testing.T) {
	metadata := parseTXT([]string{"path=/", "fw=0.4.1", "flag", "note=a=b"})

	expected := map[string]string{
		"path": "/",
		"fw":   "0.4.1",
		"flag": "", // Key without value
		"note": "a=b",
	}

	if len(metadata) != len(expected) {
		t.Errorf("metadata has %d entries, want %d", len(metadata), len(expected))
	}

	for key, want := range expected {
		if got, ok := metadata[key]; !ok {
			t.Errorf("metadata missing key %q", key)
		} else if got != want {
			t.Errorf("metadata[%q] = %q, want %q", key, got, want)
		}
	}
}

func TestNewScanner(t *testing.T) {
	scanner := NewScanner()

	if scanner == nil {
		t.Fatal("NewScanner() = nil, want scanner")
	}

	if scanner.Timeout != DefaultScanTimeout {
		t.Errorf("scanner.Timeout = %v, want %v", scanner.Timeout, DefaultScanTimeout)
	}
}

func TestAdvertisement_ShutdownNil(t *testing.T) {
	var a *Advertisement
	a.Shutdown()
	(&Advertisement{}).Shutdown()
}
