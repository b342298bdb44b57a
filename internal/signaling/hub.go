// Package signaling is the swarmd core: it owns the peer sessions, relays
// negotiation frames between them and reclaims dead connections.
//
// A Hub is built once per server and handed every authenticated connection
// through Accept. Each connection becomes a Session whose inbound frames are
// fed to HandleFrame in arrival order by the transport layer.
package signaling

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/zlx-network/swarmd/internal/domain"
	"github.com/zlx-network/swarmd/internal/infra/metrics"
	"github.com/zlx-network/swarmd/internal/swarm"
)

// maxIDAttempts bounds retries when a generated peer id collides.
const maxIDAttempts = 3

// Config controls hub behavior.
type Config struct {
	// HeartbeatInterval is the liveness ping period. A peer must answer at
	// least one ping per interval.
	HeartbeatInterval time.Duration
	// Clock drives the liveness tickers. Defaults to the wall clock.
	Clock clock.Clock
	// Debug enables per-frame logging.
	Debug bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		Clock:             clock.New(),
	}
}

// Recorder observes session lifecycle events. The session history ledger
// implements it.
type Recorder interface {
	SessionOpened(info domain.SessionInfo)
	SessionClosed(info domain.SessionInfo)
}

// Stats summarizes hub state.
type Stats struct {
	Sessions    int `json:"sessions"`
	Domains     int `json:"domains"`
	Swarms      int `json:"swarms"`
	Memberships int `json:"memberships"`
}

// Hub owns the connection registry and swarm directory shared by all
// sessions.
type Hub struct {
	cfg       Config
	registry  *swarm.Registry[*Session]
	directory *swarm.Directory
	router    *Router
	newID     func() string

	mu       sync.RWMutex
	recorder Recorder
}

// NewHub creates a hub with its own empty registry and directory.
func NewHub(cfg Config) *Hub {
	def := DefaultConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}

	h := &Hub{
		cfg:       cfg,
		registry:  swarm.NewRegistry[*Session](),
		directory: swarm.NewDirectory(),
		newID:     uuid.NewString,
	}
	h.router = &Router{hub: h}
	return h
}

// SetRecorder installs a lifecycle recorder. Must be called before Accept.
func (h *Hub) SetRecorder(r Recorder) {
	h.mu.Lock()
	h.recorder = r
	h.mu.Unlock()
}

// Directory exposes the swarm directory for read-only inspection.
func (h *Hub) Directory() *swarm.Directory { return h.directory }

// Accept turns an authenticated connection into an active session: it
// assigns an id, registers the session, sends IDENTITY and starts the
// heartbeat.
func (h *Hub) Accept(domainKey string, t Transport) (*Session, error) {
	s, err := h.register(domainKey, t)
	if err != nil {
		return nil, err
	}
	if err := h.start(s); err != nil {
		return nil, err
	}
	log.Printf("[signaling] peer %s connected (domain %s, %s)", s.id, s.domain, s.remoteAddr)
	return s, nil
}

// register adds a Connecting session under a fresh id and records it as
// opened.
func (h *Hub) register(domainKey string, t Transport) (*Session, error) {
	var (
		s   *Session
		err error
	)
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		s = newSession(h, h.newID(), domainKey, t)
		if _, err = h.registry.Add(s); err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("accept: %w", err)
	}

	metrics.SessionsTotal.Inc()
	metrics.SessionsActive.Inc()
	if r := h.getRecorder(); r != nil {
		r.SessionOpened(s.Info())
	}
	return s, nil
}

// start activates a registered session. A session that cannot be activated
// is terminated, which unregisters it and records the close exactly once.
func (h *Hub) start(s *Session) error {
	if err := s.activate(); err != nil {
		s.Terminate(domain.CauseError)
		return fmt.Errorf("accept %s: %w", s.id, err)
	}
	return nil
}

// Lookup returns the live session for id.
func (h *Hub) Lookup(id string) (*Session, bool) {
	return h.registry.Get(id)
}

// Sessions returns a snapshot of every live session, oldest first.
func (h *Hub) Sessions() []domain.SessionInfo {
	sessions := h.registry.Snapshot()
	out := make([]domain.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Stats returns current counts.
func (h *Hub) Stats() Stats {
	domains, swarms, memberships := h.directory.Counts()
	return Stats{
		Sessions:    h.registry.Len(),
		Domains:     domains,
		Swarms:      swarms,
		Memberships: memberships,
	}
}

// Shutdown terminates every live session and waits for their cleanup.
func (h *Hub) Shutdown() {
	sessions := h.registry.Snapshot()
	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Terminate(domain.CauseShutdown)
		}(s)
	}
	wg.Wait()
	log.Printf("[signaling] shut down %d sessions", len(sessions))
}

// CheckConsistency verifies that the directory and the sessions' joined
// swarms describe the same memberships, and that every directory member is
// registered. Each membership is re-checked under its session lock so
// in-flight joins and leaves are not reported.
func (h *Hub) CheckConsistency() error {
	type membership struct{ domain, swarm, peer string }
	var memberships []membership
	h.directory.Each(func(d, s, p string) {
		memberships = append(memberships, membership{d, s, p})
	})

	var errs error
	for _, m := range memberships {
		s, ok := h.registry.Get(m.peer)
		if !ok {
			if h.directory.Has(m.domain, m.swarm, m.peer) {
				errs = multierr.Append(errs, fmt.Errorf("peer %s in %s%s is not registered", m.peer, m.domain, m.swarm))
			}
			continue
		}
		s.mu.Lock()
		inDir := h.directory.Has(m.domain, m.swarm, m.peer)
		_, joined := s.joined[m.swarm]
		sameDomain := s.domain == m.domain
		s.mu.Unlock()
		if inDir && (!joined || !sameDomain) {
			errs = multierr.Append(errs, fmt.Errorf("peer %s listed in %s%s but session disagrees", m.peer, m.domain, m.swarm))
		}
	}

	for _, s := range h.registry.Snapshot() {
		s.mu.Lock()
		for name := range s.joined {
			if !h.directory.Has(s.domain, name, s.id) {
				errs = multierr.Append(errs, fmt.Errorf("peer %s joined %s%s but directory lacks it", s.id, s.domain, name))
			}
		}
		s.mu.Unlock()
	}
	return errs
}

func (h *Hub) getRecorder() Recorder {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.recorder
}

func (h *Hub) sessionClosed(s *Session, info domain.SessionInfo, notified BroadcastResult) {
	metrics.SessionsActive.Dec()
	metrics.Terminations.WithLabelValues(string(info.Cause)).Inc()
	metrics.SessionDuration.Observe(info.Duration().Seconds())
	h.updateSwarmGauge()

	log.Printf("[signaling] peer %s disconnected (%s), notified %d/%d swarm members",
		s.id, info.Cause, notified.Delivered(), len(notified.Deliveries))

	if r := h.getRecorder(); r != nil {
		r.SessionClosed(info)
	}
}

func (h *Hub) updateSwarmGauge() {
	_, swarms, _ := h.directory.Counts()
	metrics.SwarmsActive.Set(float64(swarms))
}

func (h *Hub) debugf(format string, args ...any) {
	if h.cfg.Debug {
		log.Printf("[signaling] "+format, args...)
	}
}
