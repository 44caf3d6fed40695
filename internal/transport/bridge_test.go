package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBridge answers envelopes with handle and records what it received.
type fakeBridge struct {
	t      *testing.T
	handle func(env Envelope, send func(Envelope))

	mu       sync.Mutex
	received []Envelope
	conns    []*websocket.Conn
}

func (f *fakeBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		f.t.Errorf("upgrade: %v", err)
		return
	}
	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.mu.Unlock()
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(env Envelope) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.WriteJSON(env)
	}

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		f.mu.Lock()
		f.received = append(f.received, env)
		f.mu.Unlock()
		f.handle(env, send)
	}
}

func (f *fakeBridge) dropAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		_ = c.Close()
	}
}

func dialFake(t *testing.T, f *fakeBridge) *Bridge {
	t.Helper()
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	b, err := DialBridge(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func ackAll(env Envelope, send func(Envelope)) {
	send(Envelope{Op: OpAck, ID: env.ID})
}

func TestBridgeWriteAck(t *testing.T) {
	f := &fakeBridge{t: t, handle: ackAll}
	b := dialFake(t, f)

	require.NoError(t, b.Write(context.Background(), DefaultServiceUUID, DefaultWriteCharUUID, "WgEBBAAAYA=="))

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.received, 1)
	assert.Equal(t, OpWrite, f.received[0].Op)
	assert.Equal(t, DefaultWriteCharUUID, f.received[0].Characteristic)
	assert.Equal(t, "WgEBBAAAYA==", f.received[0].Value)
	assert.NotZero(t, f.received[0].ID)
}

func TestBridgeWriteError(t *testing.T) {
	f := &fakeBridge{t: t, handle: func(env Envelope, send func(Envelope)) {
		send(Envelope{Op: OpError, ID: env.ID, Error: "gatt write failed"})
	}}
	b := dialFake(t, f)

	err := b.Write(context.Background(), DefaultServiceUUID, DefaultWriteCharUUID, "AA==")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gatt write failed")

	var terr *TransportError
	assert.ErrorAs(t, err, &terr)
}

func TestBridgeWriteTimeout(t *testing.T) {
	f := &fakeBridge{t: t, handle: func(Envelope, func(Envelope)) {}}
	b := dialFake(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := b.Write(ctx, DefaultServiceUUID, DefaultWriteCharUUID, "AA==")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBridgeDuplicateAcksDoNotBlock(t *testing.T) {
	b := &Bridge{pending: map[uint64]chan Envelope{7: make(chan Envelope, 1)}}

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.deliver(Envelope{Op: OpAck, ID: 7})
		b.deliver(Envelope{Op: OpAck, ID: 7})
		b.deliver(Envelope{Op: OpError, ID: 7, Error: "late"})
		b.deliver(Envelope{Op: OpAck, ID: 8})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deliver blocked on a response nobody is waiting for")
	}
	got := <-b.pending[7]
	assert.Equal(t, OpAck, got.Op)
}

func TestBridgeWritesSurviveRepeatedAcks(t *testing.T) {
	f := &fakeBridge{t: t, handle: func(env Envelope, send func(Envelope)) {
		for i := 0; i < 3; i++ {
			send(Envelope{Op: OpAck, ID: env.ID})
		}
	}}
	b := dialFake(t, f)

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := b.Write(ctx, DefaultServiceUUID, DefaultWriteCharUUID, "AA==")
		cancel()
		require.NoError(t, err, "write %d", i)
	}
}

func TestBridgeNotifications(t *testing.T) {
	f := &fakeBridge{t: t, handle: func(env Envelope, send func(Envelope)) {
		if env.Op == OpWrite {
			send(Envelope{Op: OpNotify, Service: env.Service, Characteristic: DefaultNotifyCharUUID, Value: "reply:" + env.Value})
		}
		send(Envelope{Op: OpAck, ID: env.ID})
	}}
	b := dialFake(t, f)

	got := make(chan string, 1)
	cancel, err := b.Subscribe(DefaultServiceUUID, DefaultNotifyCharUUID, func(v string) { got <- v })
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, b.Write(context.Background(), DefaultServiceUUID, DefaultWriteCharUUID, "x"))

	// The notify envelope precedes the ack, so it has been dispatched already.
	select {
	case v := <-got:
		assert.Equal(t, "reply:x", v)
	default:
		t.Fatal("notification not delivered before write returned")
	}

	f.mu.Lock()
	assert.Equal(t, OpSubscribe, f.received[0].Op)
	f.mu.Unlock()
}

func TestBridgeSubscribeRejected(t *testing.T) {
	f := &fakeBridge{t: t, handle: func(env Envelope, send func(Envelope)) {
		send(Envelope{Op: OpError, ID: env.ID, Error: "no such characteristic"})
	}}
	b := dialFake(t, f)

	_, err := b.Subscribe(DefaultServiceUUID, "0000abcd-0000-1000-8000-00805f9b34fb", func(string) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such characteristic")
}

func TestBridgeConnectionDrop(t *testing.T) {
	f := &fakeBridge{t: t, handle: func(Envelope, func(Envelope)) {}}
	b := dialFake(t, f)

	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.conns) == 1
	}, time.Second, 5*time.Millisecond)

	errc := make(chan error, 1)
	go func() {
		errc <- b.Write(context.Background(), DefaultServiceUUID, DefaultWriteCharUUID, "AA==")
	}()

	f.dropAll()

	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not notice the dropped connection")
	}
	assert.Error(t, b.Err())

	select {
	case err := <-errc:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pending write was not released")
	}

	err := b.Write(context.Background(), DefaultServiceUUID, DefaultWriteCharUUID, "AA==")
	assert.Error(t, err)
}

func TestBridgeClose(t *testing.T) {
	f := &fakeBridge{t: t, handle: ackAll}
	b := dialFake(t, f)

	require.NoError(t, b.Close())
	assert.NoError(t, b.Close())
	<-b.Done()
	assert.ErrorIs(t, b.Err(), ErrClosed)

	err := b.Write(context.Background(), DefaultServiceUUID, DefaultWriteCharUUID, "AA==")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDialBridgeFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	_, err := DialBridge(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}
