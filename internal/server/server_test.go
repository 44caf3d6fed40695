package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/emslink/internal/device"
	"github.com/muurk/emslink/internal/protocol"
	"github.com/muurk/emslink/internal/simulator"
	"github.com/muurk/emslink/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, config *Config) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := New(config)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func TestNewDefaults(t *testing.T) {
	srv, err := New(&Config{})
	require.NoError(t, err)

	assert.Equal(t, DefaultPath, srv.config.Path)
	assert.Equal(t, DefaultInstance, srv.config.Instance)
	assert.Equal(t, transport.DefaultProfile(), srv.config.Profile)
	assert.Nil(t, srv.tlsConfig)
	assert.Nil(t, srv.Addr())
}

func TestNewRejectsBadProfile(t *testing.T) {
	_, err := New(&Config{Profile: transport.Profile{Service: "nope", WriteChar: "x", NotifyChar: "y"}})
	assert.Error(t, err)
}

func TestNewRejectsHalfTLS(t *testing.T) {
	_, err := New(&Config{CertPath: "cert.pem"})
	assert.Error(t, err)
}

func TestBridgeSession(t *testing.T) {
	_, ts := newTestServer(t, &Config{
		Device: []simulator.Option{simulator.WithBattery(66), simulator.WithFirmware(1, 4)},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	br, err := transport.DialBridge(ctx, wsURL(ts, DefaultPath), nil)
	require.NoError(t, err)
	defer br.Close()

	s, err := device.Open(br, transport.DefaultProfile(), protocol.ChannelOne)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SetIntensity(ctx, 7))
	require.NoError(t, s.SetMode(ctx, protocol.ModeVibration))

	pct, err := s.ReadBattery(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(66), pct)

	major, minor, err := s.ReadVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(1), major)
	assert.Equal(t, byte(4), minor)

	st := s.State()
	assert.Equal(t, byte(7), st.Intensity[protocol.ChannelOne])
	assert.Equal(t, protocol.ModeVibration, st.Mode)
}

func TestBridgeRejectsUnknownCharacteristic(t *testing.T) {
	_, ts := newTestServer(t, &Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	br, err := transport.DialBridge(ctx, wsURL(ts, DefaultPath), nil)
	require.NoError(t, err)
	defer br.Close()

	frame, err := protocol.GetBattery(protocol.ChannelOne, 0)
	require.NoError(t, err)

	err = br.Write(ctx, transport.DefaultServiceUUID, transport.DefaultNotifyCharUUID, frame)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown characteristic")

	_, err = br.Subscribe(transport.DefaultServiceUUID, transport.DefaultWriteCharUUID, func(string) {})
	assert.Error(t, err)
}

func TestBridgeMalformedEnvelope(t *testing.T) {
	_, ts := newTestServer(t, &Config{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, DefaultPath), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	var env transport.Envelope
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, transport.OpError, env.Op)
	assert.Contains(t, env.Error, "malformed envelope")

	require.NoError(t, conn.WriteJSON(transport.Envelope{Op: "reboot", ID: 9}))
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, transport.OpError, env.Op)
	assert.Equal(t, uint64(9), env.ID)
}

func TestBridgeRequiresUpgrade(t *testing.T) {
	_, ts := newTestServer(t, &Config{})

	resp, err := http.Get(ts.URL + DefaultPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, &Config{})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var h Health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, DefaultPath, h.Path)
	assert.Zero(t, h.Connections)
	assert.NotEmpty(t, h.Version)
}

func TestCapture(t *testing.T) {
	dir := t.TempDir()
	_, ts := newTestServer(t, &Config{AnalysisDir: dir})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	br, err := transport.DialBridge(ctx, wsURL(ts, DefaultPath), nil)
	require.NoError(t, err)

	s, err := device.Open(br, transport.DefaultProfile(), protocol.ChannelOne)
	require.NoError(t, err)
	require.NoError(t, s.SetIntensity(ctx, 3))
	require.NoError(t, s.Close())
	require.NoError(t, br.Close())

	files, err := filepath.Glob(filepath.Join(dir, "capture-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()

	var records []MessageAnalysis
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec MessageAnalysis
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, sc.Err())

	// subscribe, ack, write, notify, ack
	require.Len(t, records, 5)
	for i, rec := range records {
		assert.Equal(t, i+1, rec.MessageNum)
	}
	assert.Equal(t, transport.OpSubscribe, records[0].Op)
	assert.Equal(t, dirInbound, records[2].Direction)
	assert.Equal(t, "set_intensity", records[2].Operation)
	assert.True(t, records[2].FrameValid)
	assert.Equal(t, "5a01010302010365", records[2].FrameHex)
	assert.Equal(t, transport.OpNotify, records[3].Op)
	assert.Equal(t, dirOutbound, records[3].Direction)
	assert.Equal(t, "intensity_report", records[3].Operation)
}

func TestNewMessageAnalysisWithoutFrame(t *testing.T) {
	rec := NewMessageAnalysis("1.2.3.4:5", 1, dirOutbound, transport.Envelope{Op: transport.OpAck, ID: 4})
	assert.Empty(t, rec.FrameHex)
	assert.Empty(t, rec.Operation)
	assert.Equal(t, uint64(4), rec.ID)
}

func TestServeAndShutdown(t *testing.T) {
	srv, err := New(&Config{Host: "127.0.0.1"})
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(l) }()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, 5*time.Millisecond)

	url := "ws://" + srv.Addr().String() + DefaultPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return srv.GetActiveConnections() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	require.NoError(t, <-errc)

	assert.Zero(t, srv.GetActiveConnections())

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
