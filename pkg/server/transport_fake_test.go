package server

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/vango-dev/collabcode/internal/clock"
	"github.com/vango-dev/collabcode/pkg/protocol"
	"github.com/vango-dev/collabcode/pkg/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var testEpoch = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

// fakeTransport records everything the relay sends to one connection.
type fakeTransport struct {
	mu      sync.Mutex
	frames  [][]byte
	pings   int
	closed  bool
	pingErr error
	sendErr error
}

func (f *fakeTransport) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	if f.closed {
		return ErrConnectionClosed
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeTransport) Ping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pingErr != nil {
		return f.pingErr
	}
	f.pings++
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

// messages decodes every recorded frame.
func (f *fakeTransport) messages(t *testing.T) []protocol.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Message, 0, len(f.frames))
	for _, frame := range f.frames {
		m, err := protocol.Decode(frame)
		if err != nil {
			t.Fatalf("relay sent undecodable frame %s: %v", frame, err)
		}
		out = append(out, m)
	}
	return out
}

// ofType returns the recorded messages of type typ.
func (f *fakeTransport) ofType(t *testing.T, typ protocol.Type) []protocol.Message {
	t.Helper()
	var out []protocol.Message
	for _, m := range f.messages(t) {
		if m.Type() == typ {
			out = append(out, m)
		}
	}
	return out
}

// relayFixture wires a registry, router and heartbeat monitor on a fake clock.
type relayFixture struct {
	clock     *clock.FakeClock
	registry  *registry.Registry
	router    *Router
	heartbeat *HeartbeatMonitor
}

func newRelayFixture(timeout time.Duration) *relayFixture {
	fake := clock.Fake(testEpoch)
	reg := registry.New(registry.WithClock(fake), registry.WithLogger(testLogger()))
	router := NewRouter(reg, nil, testLogger())
	return &relayFixture{
		clock:     fake,
		registry:  reg,
		router:    router,
		heartbeat: NewHeartbeatMonitor(reg, router, fake, timeout, nil, testLogger()),
	}
}

func (fx *relayFixture) join() (*registry.Connection, *fakeTransport) {
	t := &fakeTransport{}
	return fx.router.Join(t), t
}
