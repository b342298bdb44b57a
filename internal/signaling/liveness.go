package signaling

import (
	"log"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/zlx-network/swarmd/internal/domain"
	"github.com/zlx-network/swarmd/internal/infra/metrics"
)

// liveness is the per-session heartbeat. Each tick either reclaims a peer
// that did not answer the previous ping or marks it suspect and pings
// again, giving one full interval of grace.
type liveness struct {
	ticker *clock.Ticker
	stop   chan struct{}
	once   sync.Once
}

// startLiveness creates the ticker synchronously so no tick is missed, then
// runs the loop in the background.
func (s *Session) startLiveness(clk clock.Clock, interval time.Duration) *liveness {
	lv := &liveness{
		ticker: clk.Ticker(interval),
		stop:   make(chan struct{}),
	}
	s.alive.Store(true)
	go s.livenessLoop(lv)
	return lv
}

func (s *Session) livenessLoop(lv *liveness) {
	defer lv.ticker.Stop()
	for {
		select {
		case <-lv.stop:
			return
		case <-lv.ticker.C:
			if !s.heartbeat() {
				return
			}
		}
	}
}

// heartbeat runs one tick and reports whether the loop should continue.
func (s *Session) heartbeat() bool {
	if s.State() != domain.SessionActive {
		return false
	}
	if !s.alive.Swap(false) {
		log.Printf("[liveness] peer %s missed heartbeat, terminating", s.id)
		metrics.LivenessTimeouts.Inc()
		s.Terminate(domain.CauseLivenessTimeout)
		return false
	}
	if err := s.transport.Ping(); err != nil {
		metrics.PingFailures.Inc()
		log.Printf("[liveness] peer %s: ping: %v", s.id, err)
	}
	return true
}

// MarkAlive records a pong from the peer.
func (s *Session) MarkAlive() {
	s.alive.Store(true)
}

func (s *Session) stopLiveness() {
	s.mu.Lock()
	lv := s.liveness
	s.mu.Unlock()
	if lv == nil {
		return
	}
	lv.once.Do(func() { close(lv.stop) })
}
