package signaling

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zlx-network/swarmd/internal/domain"
	"github.com/zlx-network/swarmd/internal/infra/metrics"
	"github.com/zlx-network/swarmd/internal/protocol"
)

// Transport is a session's exclusive handle on its connection. Writes must
// be safe to call from several goroutines.
type Transport interface {
	// WriteFrame sends one binary message.
	WriteFrame(frame []byte) error
	// Ping sends a transport-level ping. The pong is reported back through
	// Session.MarkAlive.
	Ping() error
	Close() error
	RemoteAddr() string
}

// Session is one live connection: its identity, its swarm memberships and
// its heartbeat state. Sessions reference each other only by id, resolved
// through the hub's registry.
type Session struct {
	id          string
	domain      string
	remoteAddr  string
	connectedAt time.Time
	hub         *Hub
	transport   Transport

	mu       sync.Mutex
	state    domain.SessionState
	joined   map[string]struct{}
	joins    int
	cause    domain.TerminationCause
	liveness *liveness

	alive atomic.Bool
	done  chan struct{}
}

func newSession(h *Hub, id, domainKey string, t Transport) *Session {
	return &Session{
		id:          id,
		domain:      domainKey,
		remoteAddr:  t.RemoteAddr(),
		connectedAt: time.Now(),
		hub:         h,
		transport:   t,
		state:       domain.SessionConnecting,
		joined:      make(map[string]struct{}),
		done:        make(chan struct{}),
	}
}

// ID returns the peer id assigned at accept time.
func (s *Session) ID() string { return s.id }

// Domain returns the tenant scope supplied by the handshake.
func (s *Session) Domain() string { return s.domain }

// Done is closed once the session reaches Closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// JoinedSwarms returns the sorted names of the swarms this peer belongs to.
func (s *Session) JoinedSwarms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joinedLocked()
}

// Info returns a snapshot of the session.
func (s *Session) Info() domain.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.SessionInfo{
		PeerID:       s.id,
		Domain:       s.domain,
		RemoteAddr:   s.remoteAddr,
		State:        s.state,
		ConnectedAt:  s.connectedAt,
		Cause:        s.cause,
		Swarms:       s.joinedLocked(),
		SwarmsJoined: s.joins,
	}
}

// Send encodes payload behind op and writes it to this peer. A failed write
// is reported but does not terminate the session; a dead transport surfaces
// through its own read error.
func (s *Session) Send(op protocol.Opcode, payload any) error {
	frame, err := protocol.Encode(op, payload)
	if err != nil {
		return err
	}
	return s.sendFrame(frame)
}

func (s *Session) sendFrame(frame []byte) error {
	if s.State() == domain.SessionClosed {
		return domain.ErrSessionClosed
	}
	if err := s.transport.WriteFrame(frame); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSendFailed, err)
	}
	return nil
}

// Broadcast sends payload to every other member of every swarm this peer
// has joined.
func (s *Session) Broadcast(op protocol.Opcode, payload any) (BroadcastResult, error) {
	return s.broadcast(op, payload, s.JoinedSwarms())
}

// BroadcastSwarm sends payload to every other member of swarmID in this
// peer's domain.
func (s *Session) BroadcastSwarm(op protocol.Opcode, payload any, swarmID string) (BroadcastResult, error) {
	return s.broadcast(op, payload, []string{swarmID})
}

func (s *Session) broadcast(op protocol.Opcode, payload any, swarms []string) (BroadcastResult, error) {
	frame, err := protocol.Encode(op, payload)
	if err != nil {
		return BroadcastResult{}, err
	}
	return s.hub.fanOut(s.targets(swarms, func(string) []byte { return frame })), nil
}

// targets lists (member, swarm) pairs for swarms, never including s.
func (s *Session) targets(swarms []string, frameFor func(swarmID string) []byte) []target {
	var out []target
	for _, name := range swarms {
		frame := frameFor(name)
		for _, id := range s.hub.directory.Members(s.domain, name) {
			if id == s.id {
				continue
			}
			out = append(out, target{peerID: id, swarm: name, frame: frame})
		}
	}
	return out
}

// HandleFrame routes one inbound frame. Protocol errors drop the frame and
// are logged; they never end the session.
func (s *Session) HandleFrame(frame []byte) {
	if s.State() != domain.SessionActive {
		return
	}
	metrics.FramesReceived.WithLabelValues(opcodeLabel(frame)).Inc()

	err := s.hub.router.Dispatch(s, frame)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrPeerNotFound):
		s.hub.debugf("peer %s: %v", s.id, err)
	case errors.Is(err, domain.ErrUnknownOpcode):
		metrics.FramesDropped.WithLabelValues("unknown_opcode").Inc()
		s.hub.debugf("peer %s: dropped frame: %v", s.id, err)
	case errors.Is(err, domain.ErrMissingField):
		metrics.FramesDropped.WithLabelValues("missing_field").Inc()
		log.Printf("[signaling] peer %s: dropped frame: %v", s.id, err)
	case errors.Is(err, domain.ErrMalformedPayload), errors.Is(err, domain.ErrShortFrame):
		metrics.FramesDropped.WithLabelValues("malformed").Inc()
		log.Printf("[signaling] peer %s: dropped frame: %v", s.id, err)
	case errors.Is(err, domain.ErrSessionClosed):
	default:
		log.Printf("[signaling] peer %s: %v", s.id, err)
	}
}

// Terminate runs the cleanup sequence exactly once: notify swarm members,
// leave every swarm, stop the heartbeat, deregister, close the transport.
// Later calls are no-ops.
func (s *Session) Terminate(cause domain.TerminationCause) {
	s.mu.Lock()
	if s.state >= domain.SessionTerminating {
		s.mu.Unlock()
		return
	}
	s.state = domain.SessionTerminating
	s.cause = cause
	swarms := s.joinedLocked()
	s.mu.Unlock()

	notified := s.hub.fanOut(s.targets(swarms, func(swarmID string) []byte {
		return protocol.MustEncode(protocol.PeerDisconnected, protocol.PeerDisconnectedMessage{
			From:    s.id,
			SwarmID: swarmID,
		})
	}))

	for _, name := range swarms {
		s.leave(name)
	}
	s.stopLiveness()
	s.hub.registry.Remove(s.id)

	s.mu.Lock()
	s.state = domain.SessionClosed
	s.mu.Unlock()
	close(s.done)

	if err := s.transport.Close(); err != nil {
		s.hub.debugf("peer %s: close transport: %v", s.id, err)
	}

	info := s.Info()
	info.Swarms = swarms
	info.DisconnectedAt = time.Now()
	s.hub.sessionClosed(s, info, notified)
}

// activate moves a registered session to Active and greets the peer.
func (s *Session) activate() error {
	s.mu.Lock()
	if s.state != domain.SessionConnecting {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	s.state = domain.SessionActive
	s.liveness = s.startLiveness(s.hub.cfg.Clock, s.hub.cfg.HeartbeatInterval)
	s.mu.Unlock()

	if err := s.Send(protocol.Identity, protocol.IdentityMessage{ID: s.id}); err != nil {
		log.Printf("[signaling] peer %s: send identity: %v", s.id, err)
	}
	return nil
}

// join records membership of swarmID in both the directory and the joined
// set under the session lock, so the two never disagree.
func (s *Session) join(swarmID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.SessionActive {
		return false, domain.ErrSessionClosed
	}
	added := s.hub.directory.Join(s.domain, swarmID, s.id)
	if _, ok := s.joined[swarmID]; !ok {
		s.joined[swarmID] = struct{}{}
		s.joins++
	}
	return added, nil
}

func (s *Session) leave(swarmID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.joined, swarmID)
	return s.hub.directory.Leave(s.domain, swarmID, s.id)
}

func (s *Session) joinedLocked() []string {
	out := make([]string, 0, len(s.joined))
	for name := range s.joined {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func opcodeLabel(frame []byte) string {
	if len(frame) < protocol.OpcodeSize {
		return "short"
	}
	op := protocol.Opcode(uint16(frame[0])<<8 | uint16(frame[1]))
	if !op.Known() {
		return "unknown"
	}
	return op.String()
}
