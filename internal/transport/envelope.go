package transport

// Bridge envelope operations. A BLE-to-WebSocket bridge relays GATT
// operations as JSON text messages.
const (
	OpWrite     = "write"
	OpSubscribe = "subscribe"
	OpNotify    = "notify"
	OpAck       = "ack"
	OpError     = "error"
)

// Envelope is one JSON message on the bridge socket.
//
// Client to bridge: write and subscribe, each with a request id.
// Bridge to client: ack or error echoing the id, and notify (id 0) carrying
// a base64 frame from the device.
type Envelope struct {
	Op             string `json:"op"`
	ID             uint64 `json:"id,omitempty"`
	Service        string `json:"service,omitempty"`
	Characteristic string `json:"characteristic,omitempty"`
	Value          string `json:"value,omitempty"`
	Error          string `json:"error,omitempty"`
}
