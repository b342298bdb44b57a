package signaling

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/zlx-network/swarmd/internal/domain"
	"github.com/zlx-network/swarmd/internal/infra/metrics"
)

// Delivery is the outcome of one fan-out send.
type Delivery struct {
	PeerID string
	Swarm  string
	Err    error
}

// BroadcastResult collects one Delivery per recipient. A broadcast never
// fails as a whole; inspect Err for the aggregate of individual failures.
type BroadcastResult struct {
	Deliveries []Delivery
}

// Delivered counts successful sends.
func (r BroadcastResult) Delivered() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Err == nil {
			n++
		}
	}
	return n
}

// Failed counts failed sends.
func (r BroadcastResult) Failed() int {
	return len(r.Deliveries) - r.Delivered()
}

// Recipients lists the peer ids that were addressed, in send order.
func (r BroadcastResult) Recipients() []string {
	out := make([]string, len(r.Deliveries))
	for i, d := range r.Deliveries {
		out[i] = d.PeerID
	}
	return out
}

// Err combines every failed delivery, or returns nil.
func (r BroadcastResult) Err() error {
	var err error
	for _, d := range r.Deliveries {
		if d.Err != nil {
			err = multierr.Append(err, fmt.Errorf("peer %s (%s): %w", d.PeerID, d.Swarm, d.Err))
		}
	}
	return err
}

type target struct {
	peerID string
	swarm  string
	frame  []byte
}

// fanOut sends every target concurrently and waits for all of them. One
// recipient failing neither delays nor cancels the others.
func (h *Hub) fanOut(targets []target) BroadcastResult {
	res := BroadcastResult{Deliveries: make([]Delivery, len(targets))}
	if len(targets) == 0 {
		return res
	}

	var wg sync.WaitGroup
	for i, t := range targets {
		res.Deliveries[i] = Delivery{PeerID: t.peerID, Swarm: t.swarm}
		wg.Add(1)
		go func(i int, t target) {
			defer wg.Done()
			res.Deliveries[i].Err = h.deliver(t)
		}(i, t)
	}
	wg.Wait()

	ok := res.Delivered()
	metrics.BroadcastSends.WithLabelValues("ok").Add(float64(ok))
	metrics.BroadcastSends.WithLabelValues("failed").Add(float64(len(targets) - ok))
	return res
}

// deliver writes through the recipient's own session, looked up by id.
func (h *Hub) deliver(t target) error {
	s, ok := h.registry.Get(t.peerID)
	if !ok {
		return domain.ErrPeerNotFound
	}
	return s.sendFrame(t.frame)
}
