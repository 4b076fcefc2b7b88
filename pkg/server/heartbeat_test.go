package server

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/vango-dev/collabcode/pkg/protocol"
)

func TestHeartbeatProbesLiveConnections(t *testing.T) {
	fx := newRelayFixture(30 * time.Second)
	_, ta := fx.join()
	_, tb := fx.join()

	fx.clock.Advance(10 * time.Second)
	if evicted := fx.heartbeat.Tick(); len(evicted) != 0 {
		t.Fatalf("evicted %v, want none", evicted)
	}
	if ta.pings != 1 || tb.pings != 1 {
		t.Errorf("pings = %d/%d, want 1/1", ta.pings, tb.pings)
	}
}

func TestHeartbeatEvictsSilentConnectionOnce(t *testing.T) {
	fx := newRelayFixture(30 * time.Second)
	a, ta := fx.join()
	b, tb := fx.join()
	tb.reset()

	fx.clock.Advance(20 * time.Second)
	fx.registry.Touch(b.ID)
	fx.clock.Advance(20 * time.Second)

	evicted := fx.heartbeat.Tick()
	if len(evicted) != 1 || evicted[0] != a.ID {
		t.Fatalf("evicted = %v, want [%s]", evicted, a.ID)
	}
	if !ta.isClosed() {
		t.Error("evicted transport not closed")
	}
	if fx.registry.Get(a.ID) != nil {
		t.Error("evicted connection still registered")
	}

	left := tb.ofType(t, protocol.TypeUserLeft)
	if len(left) != 1 || left[0].(*protocol.UserLeft).SenderID != a.ID {
		t.Fatalf("userLeft frames = %+v, want one for A", left)
	}
	counts := tb.ofType(t, protocol.TypeUserCount)
	if len(counts) != 1 || counts[0].(*protocol.UserCount).Count != 1 {
		t.Fatalf("userCount frames = %+v, want one with count 1", counts)
	}
	if n := len(tb.ofType(t, protocol.TypeRoster)); n != 1 {
		t.Errorf("roster frames = %d, want 1", n)
	}

	// The reader noticing the closed socket afterwards must not announce again.
	fx.router.Leave(a.ID, LeaveClosed)
	fx.heartbeat.Tick()
	if n := len(tb.ofType(t, protocol.TypeUserLeft)); n != 1 {
		t.Errorf("userLeft frames after duplicate leave = %d, want 1", n)
	}
}

func TestHeartbeatPingFailureEvicts(t *testing.T) {
	fx := newRelayFixture(30 * time.Second)
	fx.router.metrics = newMetrics(prometheus.NewRegistry(), "test")
	fx.heartbeat.metrics = fx.router.metrics

	a, ta := fx.join()
	_, tb := fx.join()
	ta.pingErr = ErrConnectionClosed
	tb.reset()

	evicted := fx.heartbeat.Tick()
	if len(evicted) != 1 || evicted[0] != a.ID {
		t.Fatalf("evicted = %v, want [%s]", evicted, a.ID)
	}
	if n := len(tb.ofType(t, protocol.TypeUserLeft)); n != 1 {
		t.Errorf("userLeft frames = %d, want 1", n)
	}
	got := testutil.ToFloat64(fx.heartbeat.metrics.evictions.WithLabelValues(string(LeavePingFailed)))
	if got != 1 {
		t.Errorf("ping_failed evictions = %v, want 1", got)
	}
}

func TestHeartbeatTouchKeepsConnectionAlive(t *testing.T) {
	fx := newRelayFixture(30 * time.Second)
	a, _ := fx.join()

	for i := 0; i < 5; i++ {
		fx.clock.Advance(25 * time.Second)
		fx.registry.Touch(a.ID)
		if evicted := fx.heartbeat.Tick(); len(evicted) != 0 {
			t.Fatalf("round %d evicted %v", i, evicted)
		}
	}
	if fx.registry.Count() != 1 {
		t.Errorf("Count() = %d, want 1", fx.registry.Count())
	}
}
