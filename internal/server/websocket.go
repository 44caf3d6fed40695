package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/emslink/internal/logging"
	"github.com/muurk/emslink/internal/protocol"
	"github.com/muurk/emslink/internal/simulator"
	"github.com/muurk/emslink/internal/transport"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next message or pong from the peer
	pongWait = 60 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

// Capture directions
const (
	dirInbound  = "client->bridge"
	dirOutbound = "bridge->client"
)

// handleBridge upgrades the request and serves the envelope protocol until
// the client goes away.
func (s *Server) handleBridge(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Error("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	bc := newBridgeConn(conn, r.RemoteAddr, s.config)
	if !s.track(bc) {
		bc.close(websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer s.untrack(bc)

	bc.serve()
}

// bridgeConn is one client connection and the device behind it.
type bridgeConn struct {
	conn        *websocket.Conn
	remoteAddr  string
	device      *simulator.Device
	link        *transport.Loopback
	analysisDir string
	captureFile string

	ctx    context.Context
	cancel context.CancelFunc

	writeMu    sync.Mutex
	messageNum int
	closeOnce  sync.Once

	subMu sync.Mutex
	subs  []func()
}

func newBridgeConn(conn *websocket.Conn, remoteAddr string, config *Config) *bridgeConn {
	opts := append([]simulator.Option{simulator.WithName(remoteAddr)}, config.Device...)
	device := simulator.New(opts...)

	ctx, cancel := context.WithCancel(context.Background())
	bc := &bridgeConn{
		conn:        conn,
		remoteAddr:  remoteAddr,
		device:      device,
		link:        transport.NewLoopback(config.Profile, device),
		analysisDir: config.AnalysisDir,
		ctx:         ctx,
		cancel:      cancel,
	}
	if config.AnalysisDir != "" {
		bc.captureFile = filepath.Join(config.AnalysisDir, fmt.Sprintf("capture-%s.jsonl",
			time.Now().Format("20060102-150405.000")))
	}
	return bc
}

func (bc *bridgeConn) serve() {
	logging.LogConnection(bc.remoteAddr, "websocket_upgraded")

	defer func() {
		bc.subMu.Lock()
		for _, cancel := range bc.subs {
			cancel()
		}
		bc.subs = nil
		bc.subMu.Unlock()

		bc.cancel()
		_ = bc.link.Close()
		_ = bc.conn.Close()
		logging.LogConnection(bc.remoteAddr, "websocket_closed")
	}()

	bc.conn.SetReadLimit(maxMessageSize)
	bc.conn.SetPongHandler(func(string) error {
		return bc.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if err := bc.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			logging.Info("Failed to set read deadline, connection may be closed",
				zap.String("remote_addr", bc.remoteAddr),
				zap.Error(err),
			)
			return
		}

		msgType, data, err := bc.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Info("Connection closed by client",
					zap.String("remote_addr", bc.remoteAddr),
				)
			} else {
				logging.Info("Connection closed or error reading message",
					zap.String("remote_addr", bc.remoteAddr),
					zap.Error(err),
				)
			}
			return
		}

		if msgType != websocket.TextMessage {
			logging.Warn("Ignoring non-text message",
				zap.String("remote_addr", bc.remoteAddr),
				zap.Int("type", msgType),
			)
			continue
		}

		var env transport.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logging.LogRawBytes("Malformed envelope", data)
			bc.send(transport.Envelope{Op: transport.OpError, Error: "malformed envelope: " + err.Error()})
			continue
		}

		bc.handle(env)
	}
}

func (bc *bridgeConn) handle(env transport.Envelope) {
	bc.record(dirInbound, env)
	logging.LogBridgeMessage(bc.remoteAddr, "received", env.Op, env.Characteristic, env.Value)

	switch env.Op {
	case transport.OpWrite:
		if err := bc.link.Write(bc.ctx, env.Service, env.Characteristic, env.Value); err != nil {
			bc.reject(env, err)
			return
		}
		bc.send(transport.Envelope{Op: transport.OpAck, ID: env.ID})

	case transport.OpSubscribe:
		service, characteristic := env.Service, env.Characteristic
		cancel, err := bc.link.Subscribe(service, characteristic, func(value string) {
			bc.send(transport.Envelope{
				Op:             transport.OpNotify,
				Service:        service,
				Characteristic: characteristic,
				Value:          value,
			})
		})
		if err != nil {
			bc.reject(env, err)
			return
		}
		bc.subMu.Lock()
		bc.subs = append(bc.subs, cancel)
		bc.subMu.Unlock()
		bc.send(transport.Envelope{Op: transport.OpAck, ID: env.ID})

	default:
		bc.reject(env, fmt.Errorf("unsupported op %q", env.Op))
	}
}

func (bc *bridgeConn) reject(env transport.Envelope, err error) {
	logging.Warn("Bridge request failed",
		zap.String("remote_addr", bc.remoteAddr),
		zap.String("op", env.Op),
		zap.Uint64("id", env.ID),
		zap.Error(err),
	)
	bc.send(transport.Envelope{Op: transport.OpError, ID: env.ID, Error: err.Error()})
}

func (bc *bridgeConn) send(env transport.Envelope) {
	bc.writeMu.Lock()
	defer bc.writeMu.Unlock()

	if err := bc.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		logging.Error("Failed to set write deadline",
			zap.String("remote_addr", bc.remoteAddr),
			zap.Error(err),
		)
		return
	}
	bc.recordLocked(dirOutbound, env)
	if err := bc.conn.WriteJSON(env); err != nil {
		logging.Error("Failed to send envelope",
			zap.String("remote_addr", bc.remoteAddr),
			zap.String("op", env.Op),
			zap.Error(err),
		)
		return
	}

	logging.LogBridgeMessage(bc.remoteAddr, "sent", env.Op, env.Characteristic, env.Value)
}

// close sends a close frame and drops the connection. Safe to call from
// any goroutine.
func (bc *bridgeConn) close(code int, reason string) {
	bc.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = bc.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		bc.cancel()
		_ = bc.conn.Close()
	})
}

func (bc *bridgeConn) record(direction string, env transport.Envelope) {
	bc.writeMu.Lock()
	defer bc.writeMu.Unlock()
	bc.recordLocked(direction, env)
}

// recordLocked is called with writeMu held; it also serialises captures.
func (bc *bridgeConn) recordLocked(direction string, env transport.Envelope) {
	bc.messageNum++
	SaveMessageToAnalysis(bc.captureFile, bc.remoteAddr, bc.messageNum, direction, env)
}

// MessageAnalysis represents a captured envelope for offline analysis
type MessageAnalysis struct {
	Timestamp      time.Time `json:"timestamp"`
	MessageNum     int       `json:"message_num"`
	RemoteAddr     string    `json:"remote_addr"`
	Direction      string    `json:"direction"`
	Op             string    `json:"op"`
	ID             uint64    `json:"id,omitempty"`
	Characteristic string    `json:"characteristic,omitempty"`
	Value          string    `json:"value,omitempty"`
	Error          string    `json:"error,omitempty"`

	// Frame fields are filled when Value carries a frame
	FrameHex    string `json:"frame_hex,omitempty"`
	FrameValid  bool   `json:"frame_valid,omitempty"`
	FrameReason string `json:"frame_reason,omitempty"`
	Operation   string `json:"operation,omitempty"`
	Channel     string `json:"channel,omitempty"`
}

// NewMessageAnalysis builds a capture record, decoding the frame if any.
func NewMessageAnalysis(remoteAddr string, messageNum int, direction string, env transport.Envelope) MessageAnalysis {
	analysis := MessageAnalysis{
		Timestamp:      time.Now(),
		MessageNum:     messageNum,
		RemoteAddr:     remoteAddr,
		Direction:      direction,
		Op:             env.Op,
		ID:             env.ID,
		Characteristic: env.Characteristic,
		Value:          env.Value,
		Error:          env.Error,
	}

	if env.Value != "" {
		res := protocol.Decode(env.Value)
		analysis.FrameValid = res.Valid
		analysis.FrameReason = res.Reason.String()
		analysis.Operation = res.Operation().String()
		analysis.Channel = res.Channel.String()
		if raw, err := protocol.DecodeBase64(env.Value); err == nil {
			analysis.FrameHex = hex.EncodeToString(raw)
		}
	}
	return analysis
}

// SaveMessageToAnalysis appends one record to filename as a JSON line.
// If filename is empty, this function does nothing (capture disabled)
func SaveMessageToAnalysis(filename, remoteAddr string, messageNum int, direction string, env transport.Envelope) {
	if filename == "" {
		return
	}

	analysis := NewMessageAnalysis(remoteAddr, messageNum, direction, env)

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logging.Error("Failed to open analysis file",
			zap.String("filename", filename),
			zap.Error(err),
		)
		return
	}
	defer func() { _ = f.Close() }()

	data, err := json.Marshal(analysis)
	if err != nil {
		logging.Error("Failed to marshal message analysis",
			zap.Error(err),
		)
		return
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		logging.Error("Failed to write to analysis file",
			zap.String("filename", filename),
			zap.Error(err),
		)
		return
	}

	logging.Debug("Saved message to analysis file",
		zap.String("filename", filename),
		zap.Int("message_num", messageNum),
	)
}
