package server

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/vango-dev/collabcode/pkg/protocol"
	"github.com/vango-dev/collabcode/pkg/registry"
)

func TestRouterJoinSendsWelcomeAndMembership(t *testing.T) {
	fx := newRelayFixture(30 * time.Second)
	a, ta := fx.join()
	b, tb := fx.join()

	welcomes := tb.ofType(t, protocol.TypeWelcome)
	if len(welcomes) != 1 {
		t.Fatalf("B got %d welcome frames, want 1", len(welcomes))
	}
	if got := welcomes[0].(*protocol.Welcome).SenderID; got != b.ID {
		t.Errorf("welcome senderId = %q, want %q", got, b.ID)
	}

	joined := ta.ofType(t, protocol.TypeUserJoined)
	if len(joined) != 1 || joined[0].(*protocol.UserJoined).SenderID != b.ID {
		t.Fatalf("A userJoined frames = %+v, want one for B", joined)
	}
	if n := len(tb.ofType(t, protocol.TypeUserJoined)); n != 0 {
		t.Errorf("B received %d userJoined frames about itself", n)
	}

	counts := ta.ofType(t, protocol.TypeUserCount)
	if last := counts[len(counts)-1].(*protocol.UserCount).Count; last != 2 {
		t.Errorf("A last userCount = %d, want 2", last)
	}

	rosters := tb.ofType(t, protocol.TypeRoster)
	users := rosters[len(rosters)-1].(*protocol.Roster).Users
	if len(users) != 2 || users[a.ID] != registry.DefaultName(a.ID) {
		t.Errorf("roster = %v", users)
	}
}

func TestRouterUserCountAfterLastDisconnect(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7} {
		fx := newRelayFixture(30 * time.Second)
		var conns []*registry.Connection
		var transports []*fakeTransport
		for i := 0; i < n; i++ {
			c, tr := fx.join()
			conns = append(conns, c)
			transports = append(transports, tr)
		}

		if !fx.router.Leave(conns[n-1].ID, LeaveClosed) {
			t.Fatalf("n=%d: Leave() = false", n)
		}
		if !transports[n-1].isClosed() {
			t.Errorf("n=%d: leaving transport not closed", n)
		}
		for i := 0; i < n-1; i++ {
			counts := transports[i].ofType(t, protocol.TypeUserCount)
			if got := counts[len(counts)-1].(*protocol.UserCount).Count; got != n-1 {
				t.Errorf("n=%d conn %d: userCount = %d, want %d", n, i, got, n-1)
			}
		}
		if fx.registry.Count() != n-1 {
			t.Errorf("n=%d: registry count = %d", n, fx.registry.Count())
		}
	}
}

func TestRouterLeaveIsIdempotent(t *testing.T) {
	fx := newRelayFixture(30 * time.Second)
	a, _ := fx.join()
	_, tb := fx.join()
	tb.reset()

	fx.router.Leave(a.ID, LeaveClosed)
	if fx.router.Leave(a.ID, LeaveClosed) {
		t.Fatal("second Leave() = true")
	}
	if n := len(tb.ofType(t, protocol.TypeUserLeft)); n != 1 {
		t.Errorf("B got %d userLeft frames, want 1", n)
	}
}

func TestRouterChatScenarioABC(t *testing.T) {
	fx := newRelayFixture(30 * time.Second)
	a, ta := fx.join()
	_, tb := fx.join()
	_, tc := fx.join()
	ta.reset()
	tb.reset()
	tc.reset()

	fx.router.OnMessage(a.ID, []byte(`{"type":"chat","text":"hi","username":"ann","timestamp":1}`))

	for name, tr := range map[string]*fakeTransport{"B": tb, "C": tc} {
		chats := tr.ofType(t, protocol.TypeChat)
		if len(chats) != 1 {
			t.Fatalf("%s got %d chat frames, want 1", name, len(chats))
		}
		chat := chats[0].(*protocol.Chat)
		if chat.SenderID != a.ID || chat.Text != "hi" {
			t.Errorf("%s chat = %+v", name, chat)
		}
	}
	if msgs := ta.messages(t); len(msgs) != 0 {
		t.Errorf("A received %d frames, want none", len(msgs))
	}
}

func TestRouterStampsResolvedName(t *testing.T) {
	fx := newRelayFixture(30 * time.Second)
	a, _ := fx.join()
	_, tb := fx.join()

	fx.router.OnMessage(a.ID, []byte(`{"type":"cursor","position":{"line":1,"character":2},"username":"spoofed"}`))
	cursor := tb.ofType(t, protocol.TypeCursor)[0].(*protocol.Cursor)
	if cursor.Username != registry.DefaultName(a.ID) {
		t.Errorf("username before handshake = %q, want default", cursor.Username)
	}

	fx.router.OnMessage(a.ID, []byte(`{"type":"userInfo","clientId":"local","username":"ann"}`))
	fx.router.OnMessage(a.ID, []byte(`{"type":"cursor","position":{"line":1,"character":3}}`))
	cursors := tb.ofType(t, protocol.TypeCursor)
	last := cursors[len(cursors)-1].(*protocol.Cursor)
	if last.Username != "ann" || last.SenderID != a.ID {
		t.Errorf("cursor after handshake = %+v", last)
	}
	if last.Position != (protocol.Position{Line: 1, Character: 3}) {
		t.Errorf("position = %v", last.Position)
	}
}

func TestRouterHandshakeNotBroadcast(t *testing.T) {
	fx := newRelayFixture(30 * time.Second)
	a, ta := fx.join()
	_, tb := fx.join()
	_, tc := fx.join()
	ta.reset()
	tb.reset()
	tc.reset()

	fx.router.OnMessage(a.ID, []byte(`{"type":"userInfo","clientId":"x","username":"ann"}`))

	for name, tr := range map[string]*fakeTransport{"A": ta, "B": tb, "C": tc} {
		if msgs := tr.messages(t); len(msgs) != 0 {
			t.Errorf("%s received %d frames after handshake, want 0", name, len(msgs))
		}
	}
	if got := fx.registry.Get(a.ID).Name(); got != "ann" {
		t.Errorf("Name() = %q, want ann", got)
	}
}

func TestRouterMalformedFrameAnsweredToSenderOnly(t *testing.T) {
	fx := newRelayFixture(30 * time.Second)
	a, ta := fx.join()
	_, tb := fx.join()
	ta.reset()
	tb.reset()

	inputs := []string{
		`not json`,
		`{"text":"no type"}`,
		`{"type":"teleport"}`,
		`{"type":"userCount","count":99}`,
		`{"type":"cursor","position":{"line":-4,"character":0}}`,
	}
	for _, in := range inputs {
		fx.router.OnMessage(a.ID, []byte(in))
	}

	errs := ta.ofType(t, protocol.TypeError)
	if len(errs) != len(inputs) {
		t.Fatalf("A got %d error frames, want %d", len(errs), len(inputs))
	}
	if msgs := tb.messages(t); len(msgs) != 0 {
		t.Errorf("B received %d frames, want 0", len(msgs))
	}

	// The loop keeps routing after errors.
	fx.router.OnMessage(a.ID, []byte(`{"type":"chat","text":"still here"}`))
	if n := len(tb.ofType(t, protocol.TypeChat)); n != 1 {
		t.Errorf("B got %d chat frames after errors, want 1", n)
	}
}

func TestRouterEditRelayedVerbatim(t *testing.T) {
	fx := newRelayFixture(30 * time.Second)
	a, _ := fx.join()
	_, tb := fx.join()

	fx.router.OnMessage(a.ID, []byte(`{"type":"edit","text":"abc","range":{"start":{"line":0,"character":0},"end":{"line":0,"character":0}}}`))
	edits := tb.ofType(t, protocol.TypeEdit)
	if len(edits) != 1 {
		t.Fatalf("B got %d edits, want 1", len(edits))
	}
	d := edits[0].(*protocol.Edit).Delta()
	if d.Text != "abc" || !d.Range.IsEmpty() {
		t.Errorf("delta = %+v", d)
	}
}

func TestRouterPreservesPerSenderOrder(t *testing.T) {
	fx := newRelayFixture(30 * time.Second)
	a, _ := fx.join()
	_, tb := fx.join()

	for i := 0; i < 20; i++ {
		fx.router.OnMessage(a.ID, protocol.MustEncode(&protocol.Cursor{Position: protocol.Position{Line: i}}))
	}
	cursors := tb.ofType(t, protocol.TypeCursor)
	if len(cursors) != 20 {
		t.Fatalf("got %d cursors, want 20", len(cursors))
	}
	for i, m := range cursors {
		if line := m.(*protocol.Cursor).Position.Line; line != i {
			t.Fatalf("cursor %d has line %d", i, line)
		}
	}
}

func TestRouterDropsOnFullQueue(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := newMetrics(reg, "test")
	fx := newRelayFixture(30 * time.Second)
	fx.router.metrics = metrics

	a, _ := fx.join()
	_, tb := fx.join()
	_, tc := fx.join()
	tb.sendErr = ErrSendQueueFull

	fx.router.OnMessage(a.ID, []byte(`{"type":"chat","text":"hi"}`))

	if n := len(tc.ofType(t, protocol.TypeChat)); n != 1 {
		t.Errorf("C got %d chats, want 1", n)
	}
	if got := testutil.ToFloat64(metrics.dropped.WithLabelValues("queue_full")); got != 1 {
		t.Errorf("queue_full drops = %v, want 1", got)
	}
}

func TestRouterUnknownConnectionIgnored(t *testing.T) {
	fx := newRelayFixture(30 * time.Second)
	_, tb := fx.join()
	tb.reset()

	fx.router.OnMessage("ghost", []byte(`{"type":"chat","text":"boo"}`))
	if msgs := tb.messages(t); len(msgs) != 0 {
		t.Errorf("frame from unknown connection was relayed: %d frames", len(msgs))
	}
}

func TestErrorReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrReservedType, "reserved_type"},
		{&protocol.DecodeError{Err: protocol.ErrMalformed}, "malformed"},
		{&protocol.DecodeError{Err: protocol.ErrUnknownType}, "unknown_type"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		if got := errorReason(tt.err); got != tt.want {
			t.Errorf("errorReason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
