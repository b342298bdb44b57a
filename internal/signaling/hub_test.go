package signaling

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/zlx-network/swarmd/internal/domain"
	"github.com/zlx-network/swarmd/internal/protocol"
)

func TestAcceptSendsIdentity(t *testing.T) {
	h, _ := newTestHub(t)
	ft := newFakeTransport("203.0.113.1:5000")
	s, err := h.Accept("abcde", ft)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}

	if s.State() != domain.SessionActive {
		t.Errorf("State = %s, want ACTIVE", s.State())
	}
	ops := ft.ops()
	if len(ops) != 1 || ops[0] != protocol.Identity {
		t.Fatalf("frames = %v, want [IDENTITY]", ops)
	}
	var id protocol.IdentityMessage
	ft.last(protocol.Identity, &id)
	if id.ID != s.ID() {
		t.Errorf("IDENTITY id = %q, want %q", id.ID, s.ID())
	}
	if got, ok := h.Lookup(s.ID()); !ok || got != s {
		t.Error("session not registered")
	}
}

func TestAcceptRetriesDuplicateID(t *testing.T) {
	h, _ := newTestHub(t)
	ids := []string{"dup", "dup", "fresh"}
	h.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, _ := connect(t, h, "abcde")
	second, _ := connect(t, h, "abcde")
	if first.ID() != "dup" || second.ID() != "fresh" {
		t.Errorf("ids = %q, %q; want dup, fresh", first.ID(), second.ID())
	}
}

// A session terminated between registration and activation, as happens when
// Shutdown races an incoming connection, is unwound once and never greeted.
func TestAcceptTerminatedBeforeActivation(t *testing.T) {
	h, _ := newTestHub(t)
	rec := &fakeRecorder{}
	h.SetRecorder(rec)

	ft := newFakeTransport("203.0.113.9:5000")
	s, err := h.register("abcde", ft)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	s.Terminate(domain.CauseShutdown)

	if err := h.start(s); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("start() error = %v, want ErrSessionClosed", err)
	}
	if _, ok := h.Lookup(s.ID()); ok {
		t.Error("session still registered")
	}
	if st := h.Stats(); st.Sessions != 0 {
		t.Errorf("Stats().Sessions = %d, want 0", st.Sessions)
	}
	if n := ft.count(protocol.Identity); n != 0 {
		t.Errorf("IDENTITY sent %d times to an aborted session", n)
	}
	if !ft.isClosed() {
		t.Error("transport not closed")
	}

	events := rec.snapshot()
	if len(events) != 2 || events[0].event != "opened" || events[1].event != "closed" {
		t.Fatalf("events = %+v, want opened then one closed", events)
	}
	if events[1].info.Cause != domain.CauseShutdown {
		t.Errorf("close cause = %q, want shutdown", events[1].info.Cause)
	}
}

// Scenarios A through E walk two peers through join, negotiation and
// disconnect, then check that another domain is isolated.
func TestSignalingScenario(t *testing.T) {
	h, _ := newTestHub(t)
	a, aT := connect(t, h, "abcde")
	b, bT := connect(t, h, "abcde")

	// A joins an empty swarm.
	join(t, a, "/v.mp4")
	var data protocol.SwarmDataMessage
	if !aT.last(protocol.SwarmData, &data) {
		t.Fatal("A got no SWARM_DATA")
	}
	want := protocol.SwarmDataMessage{FilePath: "/v.mp4", SwarmID: "/v.mp4", Size: 0}
	if data != want {
		t.Errorf("A SWARM_DATA = %+v, want %+v", data, want)
	}
	if n := len(bT.ops()); n != 0 {
		t.Errorf("B received %d frames, want 0", n)
	}

	// B joins; A learns about B.
	aT.reset()
	join(t, b, "/v.mp4")
	bT.last(protocol.SwarmData, &data)
	if data.Size != 1 {
		t.Errorf("B SWARM_DATA size = %d, want 1", data.Size)
	}
	var rp protocol.RemotePeerMessage
	if !aT.last(protocol.RemotePeer, &rp) {
		t.Fatal("A got no REMOTE_PEER")
	}
	if rp.From != b.ID() || rp.SwarmID != "/v.mp4" {
		t.Errorf("REMOTE_PEER = %+v", rp)
	}
	if bT.count(protocol.RemotePeer) != 0 {
		t.Error("B was told about itself")
	}

	// B offers to A.
	aT.reset()
	bT.reset()
	sdp := json.RawMessage(`"v=0 o=- 1 2 IN IP4 127.0.0.1"`)
	send(t, b, protocol.LocalPeerOffer, protocol.OfferRequest{To: a.ID(), SwarmID: "/v.mp4", SDP: sdp})
	var offer protocol.RemoteDescriptionMessage
	if !aT.last(protocol.RemotePeerOffer, &offer) {
		t.Fatal("A got no REMOTE_PEER_OFFER")
	}
	if offer.From != b.ID() || offer.SwarmID != "/v.mp4" || string(offer.SDP) != string(sdp) {
		t.Errorf("REMOTE_PEER_OFFER = %+v", offer)
	}
	if n := len(bT.ops()); n != 0 {
		t.Errorf("B received %d frames after its offer, want 0", n)
	}

	// A goes away.
	a.Terminate(domain.CauseClosed)
	var gone protocol.PeerDisconnectedMessage
	if !bT.last(protocol.PeerDisconnected, &gone) {
		t.Fatal("B got no PEER_DISCONNECTED")
	}
	if gone.From != a.ID() || gone.SwarmID != "/v.mp4" {
		t.Errorf("PEER_DISCONNECTED = %+v", gone)
	}
	if got := h.Directory().Members("abcde", "/v.mp4"); len(got) != 1 || got[0] != b.ID() {
		t.Errorf("members = %v, want [%s]", got, b.ID())
	}
	if _, ok := h.Lookup(a.ID()); ok {
		t.Error("A still registered")
	}

	// C joins the same path in another domain.
	c, cT := connect(t, h, "zzzzz")
	bT.reset()
	join(t, c, "/v.mp4")
	cT.last(protocol.SwarmData, &data)
	if data.Size != 0 {
		t.Errorf("C SWARM_DATA size = %d, want 0", data.Size)
	}
	if bT.count(protocol.RemotePeer) != 0 {
		t.Error("REMOTE_PEER crossed domains")
	}

	if err := h.CheckConsistency(); err != nil {
		t.Errorf("CheckConsistency: %v", err)
	}
}

func TestStatsAndSessions(t *testing.T) {
	h, _ := newTestHub(t)
	a, _ := connect(t, h, "abcde")
	b, _ := connect(t, h, "abcde")
	c, _ := connect(t, h, "fghij")
	join(t, a, "/one")
	join(t, b, "/one")
	join(t, b, "/two")
	join(t, c, "/one")

	got := h.Stats()
	want := Stats{Sessions: 3, Domains: 2, Swarms: 3, Memberships: 4}
	if got != want {
		t.Errorf("Stats = %+v, want %+v", got, want)
	}

	infos := h.Sessions()
	if len(infos) != 3 {
		t.Fatalf("Sessions len = %d", len(infos))
	}
	for _, info := range infos {
		if info.PeerID == b.ID() {
			if len(info.Swarms) != 2 || info.Swarms[0] != "/one" || info.Swarms[1] != "/two" {
				t.Errorf("B swarms = %v", info.Swarms)
			}
			if info.SwarmsJoined != 2 {
				t.Errorf("B SwarmsJoined = %d", info.SwarmsJoined)
			}
		}
	}
}

func TestShutdown(t *testing.T) {
	h, _ := newTestHub(t)
	rec := &fakeRecorder{}
	h.SetRecorder(rec)

	var sessions []*Session
	var transports []*fakeTransport
	for i := 0; i < 5; i++ {
		s, ft := connect(t, h, "abcde")
		join(t, s, "/shared")
		sessions = append(sessions, s)
		transports = append(transports, ft)
	}

	h.Shutdown()

	for i, s := range sessions {
		if s.State() != domain.SessionClosed {
			t.Errorf("session %d state = %s", i, s.State())
		}
		if s.Info().Cause != domain.CauseShutdown {
			t.Errorf("session %d cause = %q", i, s.Info().Cause)
		}
		if !transports[i].isClosed() {
			t.Errorf("transport %d not closed", i)
		}
	}
	if st := h.Stats(); st != (Stats{}) {
		t.Errorf("Stats after shutdown = %+v", st)
	}

	closed := 0
	for _, ev := range rec.snapshot() {
		if ev.event == "closed" {
			closed++
			if ev.info.DisconnectedAt.IsZero() {
				t.Error("closed event without DisconnectedAt")
			}
		}
	}
	if closed != 5 {
		t.Errorf("recorded %d closes, want 5", closed)
	}
}

func TestRecorderSeesLifecycle(t *testing.T) {
	h, _ := newTestHub(t)
	rec := &fakeRecorder{}
	h.SetRecorder(rec)

	s, _ := connect(t, h, "abcde")
	join(t, s, "/a")
	join(t, s, "/b")
	s.Terminate(domain.CauseError)

	events := rec.snapshot()
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].event != "opened" || events[0].info.PeerID != s.ID() {
		t.Errorf("first event = %+v", events[0])
	}
	closed := events[1].info
	if events[1].event != "closed" || closed.Cause != domain.CauseError {
		t.Errorf("second event = %+v", events[1])
	}
	if closed.SwarmsJoined != 2 || len(closed.Swarms) != 2 {
		t.Errorf("closed info swarms = %v (%d joined)", closed.Swarms, closed.SwarmsJoined)
	}
}
