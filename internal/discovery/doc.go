// Package discovery locates BLE-to-WebSocket bridges with mDNS.
//
// Bridges advertise the "_emslink._tcp" service type with a "path" TXT
// record naming the WebSocket endpoint and an optional "tls=1" flag. This
// finds the transport endpoint only; the EMS device behind the bridge is
// reached through it.
//
// # Usage Example
//
//	bridges, err := discovery.ScanForBridges(ctx, 5*time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, b := range bridges {
//	    fmt.Println(b.Instance, b.URL())
//	}
//
// The bridge server registers itself with Register:
//
//	ad, err := discovery.Register("emslink-sim", 8080, "/bridge", false)
//	defer ad.Shutdown()
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Bridges must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
