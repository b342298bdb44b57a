package signaling

import (
	"testing"
	"time"

	"github.com/zlx-network/swarmd/internal/domain"
	"github.com/zlx-network/swarmd/internal/protocol"
)

const interval = 30 * time.Second

func waitPing(t *testing.T, ft *fakeTransport) {
	t.Helper()
	select {
	case <-ft.pings:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping")
	}
}

func TestLivenessTerminatesSilentPeer(t *testing.T) {
	h, mock := newTestHub(t)
	s, ft := connect(t, h, "abcde")
	other, otherT := connect(t, h, "abcde")
	join(t, s, "/v.mp4")
	join(t, other, "/v.mp4")
	otherT.reset()

	mock.Add(interval)
	waitPing(t, ft)
	waitPing(t, otherT)
	other.MarkAlive()
	if s.State() != domain.SessionActive {
		t.Fatalf("state after first tick = %s", s.State())
	}

	mock.Add(interval)
	waitDone(t, s)

	if cause := s.Info().Cause; cause != domain.CauseLivenessTimeout {
		t.Errorf("cause = %q", cause)
	}
	if otherT.count(protocol.PeerDisconnected) != 1 {
		t.Error("swarm member not told about the timeout")
	}
	if !ft.isClosed() {
		t.Error("transport left open")
	}
}

func TestLivenessPongKeepsPeer(t *testing.T) {
	h, mock := newTestHub(t)
	s, ft := connect(t, h, "abcde")

	for i := 0; i < 3; i++ {
		mock.Add(interval)
		waitPing(t, ft)
		s.MarkAlive()
	}
	if s.State() != domain.SessionActive {
		t.Errorf("state = %s after answered pings", s.State())
	}
}

func TestLivenessStopsAfterTerminate(t *testing.T) {
	h, mock := newTestHub(t)
	s, ft := connect(t, h, "abcde")
	s.Terminate(domain.CauseClosed)

	mock.Add(interval)
	select {
	case <-ft.pings:
		t.Error("ping after terminate")
	case <-time.After(50 * time.Millisecond):
	}
}
