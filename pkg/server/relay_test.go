package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vango-dev/collabcode/internal/clock"
	"github.com/vango-dev/collabcode/pkg/protocol"
)

func newTestServer(t *testing.T, c clock.Clock, opts ...func(*Config)) (*Server, *httptest.Server) {
	t.Helper()
	config := DefaultConfig()
	config.Logger = testLogger()
	config.Metrics = prometheus.NewRegistry()
	config.Clock = c
	for _, opt := range opts {
		opt(config)
	}
	srv := New(config)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown(context.Background())
	})
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

// readUntil reads frames until one of type typ arrives.
func readUntil(t *testing.T, ws *websocket.Conn, typ protocol.Type) protocol.Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		m, err := protocol.Decode(data)
		if err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
		if m.Type() == typ {
			return m
		}
	}
}

// waitCount waits for a userCount frame carrying n.
func waitCount(t *testing.T, ws *websocket.Conn, n int) {
	t.Helper()
	for {
		if readUntil(t, ws, protocol.TypeUserCount).(*protocol.UserCount).Count == n {
			return
		}
	}
}

func TestRelayEndToEndChat(t *testing.T) {
	_, ts := newTestServer(t, clock.Real())

	a := dial(t, ts)
	aID := readUntil(t, a, protocol.TypeWelcome).(*protocol.Welcome).SenderID
	b := dial(t, ts)
	readUntil(t, b, protocol.TypeWelcome)
	waitCount(t, a, 2)
	waitCount(t, b, 2)

	if err := a.WriteMessage(websocket.TextMessage, protocol.MustEncode(&protocol.UserInfo{Username: "ann"})); err != nil {
		t.Fatal(err)
	}
	if err := a.WriteMessage(websocket.TextMessage, protocol.MustEncode(&protocol.Chat{Text: "hi", Timestamp: 1})); err != nil {
		t.Fatal(err)
	}

	chat := readUntil(t, b, protocol.TypeChat).(*protocol.Chat)
	if chat.SenderID != aID || chat.Username != "ann" || chat.Text != "hi" {
		t.Errorf("chat = %+v", chat)
	}

	a.Close()
	left := readUntil(t, b, protocol.TypeUserLeft).(*protocol.UserLeft)
	if left.SenderID != aID {
		t.Errorf("userLeft senderId = %q, want %q", left.SenderID, aID)
	}
	waitCount(t, b, 1)
}

func TestRelayMalformedFrameGetsError(t *testing.T) {
	_, ts := newTestServer(t, clock.Real())
	a := dial(t, ts)
	readUntil(t, a, protocol.TypeWelcome)

	a.WriteMessage(websocket.TextMessage, []byte("{nope"))
	if msg := readUntil(t, a, protocol.TypeError).(*protocol.Error).Message; msg == "" {
		t.Error("error frame has empty message")
	}
}

func TestRelayHeartbeatEviction(t *testing.T) {
	fake := clock.Fake(testEpoch)
	srv, ts := newTestServer(t, fake, func(c *Config) {
		c.HeartbeatTimeout = 10 * time.Second
	})

	a := dial(t, ts)
	aID := readUntil(t, a, protocol.TypeWelcome).(*protocol.Welcome).SenderID
	b := dial(t, ts)
	bID := readUntil(t, b, protocol.TypeWelcome).(*protocol.Welcome).SenderID
	waitCount(t, a, 2)

	// B stops answering; only A's liveness is refreshed before the tick.
	fake.Advance(25 * time.Second)
	srv.Registry().Touch(aID)
	fake.Advance(5 * time.Second)

	left := readUntil(t, a, protocol.TypeUserLeft).(*protocol.UserLeft)
	if left.SenderID != bID {
		t.Errorf("userLeft senderId = %q, want %q", left.SenderID, bID)
	}
	waitCount(t, a, 1)
	if srv.Registry().Count() != 1 {
		t.Errorf("Count() = %d, want 1", srv.Registry().Count())
	}
}

func TestRelayHealthAndMetrics(t *testing.T) {
	_, ts := newTestServer(t, clock.Real())
	a := dial(t, ts)
	readUntil(t, a, protocol.TypeWelcome)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var health struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" || health.Connections != 1 {
		t.Errorf("health = %+v", health)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "collabcode_connections 1") {
		t.Errorf("metrics missing connection gauge:\n%s", body)
	}
}

func TestRelayShutdownClosesConnections(t *testing.T) {
	config := DefaultConfig()
	config.Logger = testLogger()
	config.Metrics = prometheus.NewRegistry()
	srv := New(config)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	a := dial(t, ts)
	readUntil(t, a, protocol.TypeWelcome)

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}
	if srv.Registry().Count() != 0 {
		t.Errorf("Count() after shutdown = %d", srv.Registry().Count())
	}
	if got := testutil.ToFloat64(srv.Metrics().departures.WithLabelValues(string(LeaveShutdown))); got != 1 {
		t.Errorf("shutdown departures = %v, want 1", got)
	}
	a.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := a.ReadMessage(); err != nil {
			break
		}
	}
}
