package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/emslink/internal/logging"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the bridge
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the bridge
	pongWait = 60 * time.Second

	// Send pings to the bridge with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum envelope size accepted from the bridge
	maxMessageSize = 4096

	// DefaultAckTimeout bounds a Write when the caller's context has no deadline
	DefaultAckTimeout = 5 * time.Second
)

// Bridge is a Transport backed by a BLE-to-WebSocket bridge.
type Bridge struct {
	url  string
	conn *websocket.Conn
	subs subscribers

	writeMu sync.Mutex
	nextID  atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan Envelope
	err     error

	done      chan struct{}
	closeOnce sync.Once
}

// DialBridge connects to a bridge at url (ws:// or wss://).
func DialBridge(ctx context.Context, url string, header http.Header) (*Bridge, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (HTTP %d)", err, resp.StatusCode)
		}
		return nil, &TransportError{Op: "dial", Err: err}
	}

	b := &Bridge{
		url:     url,
		conn:    conn,
		pending: make(map[uint64]chan Envelope),
		done:    make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	logging.LogConnection(url, "bridge_connected")

	go b.readLoop()
	go b.pingLoop()

	return b, nil
}

// Write implements Transport. It blocks until the bridge acknowledges the
// GATT write, ctx is done, or the connection drops.
func (b *Bridge) Write(ctx context.Context, serviceID, characteristicID, payload string) error {
	_, err := b.roundTrip(ctx, Envelope{
		Op:             OpWrite,
		Service:        serviceID,
		Characteristic: characteristicID,
		Value:          payload,
	})
	if err != nil {
		return &TransportError{Op: "write", Characteristic: characteristicID, Err: err}
	}
	return nil
}

// Subscribe implements Transport. The bridge is asked to enable
// notifications; the callback runs on the read goroutine and must not call
// Write.
func (b *Bridge) Subscribe(serviceID, characteristicID string, fn func(string)) (func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultAckTimeout)
	defer cancel()

	cancelSub := b.subs.add(serviceID, characteristicID, fn)
	if _, err := b.roundTrip(ctx, Envelope{
		Op:             OpSubscribe,
		Service:        serviceID,
		Characteristic: characteristicID,
	}); err != nil {
		cancelSub()
		return nil, &TransportError{Op: "subscribe", Characteristic: characteristicID, Err: err}
	}
	return cancelSub, nil
}

// Close implements Transport
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.fail(ErrClosed)

		b.writeMu.Lock()
		_ = b.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = b.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		b.writeMu.Unlock()

		err = b.conn.Close()
		logging.LogConnection(b.url, "bridge_closed")
	})
	return err
}

// Done is closed once the connection has terminated.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Err returns why the connection terminated, or nil while it is open.
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *Bridge) roundTrip(ctx context.Context, env Envelope) (Envelope, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultAckTimeout)
		defer cancel()
	}

	env.ID = b.nextID.Add(1)
	reply := make(chan Envelope, 1)

	b.mu.Lock()
	if b.err != nil {
		err := b.err
		b.mu.Unlock()
		return Envelope{}, err
	}
	b.pending[env.ID] = reply
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, env.ID)
		b.mu.Unlock()
	}()

	if err := b.send(env); err != nil {
		return Envelope{}, err
	}

	select {
	case resp := <-reply:
		if resp.Op == OpError {
			return resp, errors.New(resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	case <-b.done:
		return Envelope{}, b.Err()
	}
}

func (b *Bridge) send(env Envelope) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if err := b.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	logging.LogBridgeMessage(b.url, "sent", env.Op, env.Characteristic, env.Value)
	return b.conn.WriteJSON(env)
}

func (b *Bridge) readLoop() {
	for {
		var env Envelope
		if err := b.conn.ReadJSON(&env); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.fail(ErrClosed)
			} else {
				logging.Info("Bridge connection closed or error reading envelope",
					zap.String("url", b.url),
					zap.Error(err),
				)
				b.fail(err)
			}
			return
		}

		logging.LogBridgeMessage(b.url, "received", env.Op, env.Characteristic, env.Value)

		switch env.Op {
		case OpAck, OpError:
			b.deliver(env)
		case OpNotify:
			b.subs.dispatch(env.Service, env.Characteristic, env.Value)
		default:
			logging.Warn("Unknown bridge envelope",
				zap.String("url", b.url),
				zap.String("op", env.Op),
			)
		}
	}
}

// deliver hands an ack or error to the waiting roundTrip. Each waiter takes
// one response; duplicates are dropped so the read loop never blocks.
func (b *Bridge) deliver(env Envelope) {
	b.mu.Lock()
	ch, ok := b.pending[env.ID]
	b.mu.Unlock()
	if !ok {
		logging.Debug("Unmatched bridge response", zap.Uint64("id", env.ID))
		return
	}

	select {
	case ch <- env:
	default:
		logging.Debug("Duplicate bridge response", zap.Uint64("id", env.ID))
	}
}

func (b *Bridge) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.writeMu.Lock()
			err := b.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			b.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-b.done:
			return
		}
	}
}

// fail records the terminal error once and wakes every waiter.
func (b *Bridge) fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return
	}
	b.err = err
	close(b.done)
}
