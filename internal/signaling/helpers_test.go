package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/zlx-network/swarmd/internal/domain"
	"github.com/zlx-network/swarmd/internal/protocol"
)

var errBrokenPipe = errors.New("broken pipe")

// fakeTransport records frames instead of writing them to a socket.
type fakeTransport struct {
	addr  string
	pings chan struct{}

	mu         sync.Mutex
	frames     [][]byte
	closed     bool
	failWrites bool
}

func newFakeTransport(addr string) *fakeTransport {
	return &fakeTransport{addr: addr, pings: make(chan struct{}, 8)}
}

func (f *fakeTransport) WriteFrame(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("use of closed connection")
	}
	if f.failWrites {
		return errBrokenPipe
	}
	f.frames = append(f.frames, append([]byte(nil), frame...))
	return nil
}

func (f *fakeTransport) Ping() error {
	select {
	case f.pings <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) RemoteAddr() string { return f.addr }

func (f *fakeTransport) setFailWrites(v bool) {
	f.mu.Lock()
	f.failWrites = v
	f.mu.Unlock()
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// reset forgets recorded frames.
func (f *fakeTransport) reset() {
	f.mu.Lock()
	f.frames = nil
	f.mu.Unlock()
}

func (f *fakeTransport) ops() []protocol.Opcode {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Opcode, 0, len(f.frames))
	for _, fr := range f.frames {
		op, _, err := protocol.Decode(fr)
		if err != nil {
			panic(err)
		}
		out = append(out, op)
	}
	return out
}

// last decodes the most recent frame carrying op into v and reports
// whether one was found.
func (f *fakeTransport) last(op protocol.Opcode, v any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.frames) - 1; i >= 0; i-- {
		got, payload, err := protocol.Decode(f.frames[i])
		if err != nil || got != op {
			continue
		}
		if v != nil {
			if err := json.Unmarshal(payload, v); err != nil {
				panic(err)
			}
		}
		return true
	}
	return false
}

func (f *fakeTransport) count(op protocol.Opcode) int {
	n := 0
	for _, got := range f.ops() {
		if got == op {
			n++
		}
	}
	return n
}

// newTestHub returns a hub with sequential peer ids and a mock clock.
func newTestHub(t *testing.T) (*Hub, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	h := NewHub(Config{HeartbeatInterval: 30 * time.Second, Clock: mock})
	var mu sync.Mutex
	n := 0
	h.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("peer-%d", n)
	}
	t.Cleanup(h.Shutdown)
	return h, mock
}

func connect(t *testing.T, h *Hub, domainKey string) (*Session, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport("198.51.100.7:40000")
	s, err := h.Accept(domainKey, ft)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	ft.reset()
	return s, ft
}

func send(t *testing.T, s *Session, op protocol.Opcode, payload any) {
	t.Helper()
	frame, err := protocol.Encode(op, payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	s.HandleFrame(frame)
}

func join(t *testing.T, s *Session, path string) {
	t.Helper()
	send(t, s, protocol.JoinSwarm, protocol.JoinSwarmRequest{FilePath: path})
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session %s not closed (state %s)", s.ID(), s.State())
	}
}

type recorded struct {
	event string
	info  domain.SessionInfo
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []recorded
}

func (r *fakeRecorder) SessionOpened(info domain.SessionInfo) {
	r.mu.Lock()
	r.events = append(r.events, recorded{"opened", info})
	r.mu.Unlock()
}

func (r *fakeRecorder) SessionClosed(info domain.SessionInfo) {
	r.mu.Lock()
	r.events = append(r.events, recorded{"closed", info})
	r.mu.Unlock()
}

func (r *fakeRecorder) snapshot() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.events...)
}
