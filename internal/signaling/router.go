package signaling

import (
	"fmt"
	"log"

	"github.com/zlx-network/swarmd/internal/domain"
	"github.com/zlx-network/swarmd/internal/infra/metrics"
	"github.com/zlx-network/swarmd/internal/protocol"
	"github.com/zlx-network/swarmd/internal/swarm"
)

// Router decodes inbound frames and performs the directory operation or
// relay each one asks for.
type Router struct {
	hub *Hub
}

// Dispatch handles one frame from s.
func (r *Router) Dispatch(s *Session, frame []byte) error {
	req, err := protocol.ParseRequest(frame)
	if err != nil {
		return err
	}
	r.hub.debugf("frame %s from %s", req.Opcode(), s.id)

	switch m := req.(type) {
	case protocol.JoinSwarmRequest:
		return r.joinSwarm(s, m)
	case protocol.OfferRequest:
		return r.relay(s, m.To, protocol.RemotePeerOffer, protocol.RemoteDescriptionMessage{
			From:    s.id,
			SwarmID: m.SwarmID,
			SDP:     m.SDP,
		})
	case protocol.AnswerRequest:
		return r.relay(s, m.To, protocol.RemotePeerAnswer, protocol.RemoteDescriptionMessage{
			From:    s.id,
			SwarmID: m.SwarmID,
			SDP:     m.SDP,
		})
	case protocol.CandidateRequest:
		return r.relay(s, m.To, protocol.ICECandidate, protocol.RemoteCandidateMessage{
			From:      s.id,
			SwarmID:   m.SwarmID,
			Candidate: m.Candidate,
			SDP:       m.Candidate,
		})
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnknownOpcode, req.Opcode())
	}
}

// joinSwarm adds s to the swarm for the requested path, tells it how many
// other peers are there and announces it to them.
func (r *Router) joinSwarm(s *Session, m protocol.JoinSwarmRequest) error {
	swarmID := swarm.NormalizePath(m.FilePath)
	if swarmID == "" {
		return fmt.Errorf("%s: %w: filePath %q has no path", protocol.JoinSwarm, domain.ErrMissingField, m.FilePath)
	}

	added, err := s.join(swarmID)
	if err != nil {
		return err
	}
	if added {
		metrics.SwarmJoins.Inc()
		r.hub.updateSwarmGauge()
	}

	size := r.hub.directory.Size(s.domain, swarmID, s.id)
	if err := s.Send(protocol.SwarmData, protocol.SwarmDataMessage{
		FilePath: m.FilePath,
		SwarmID:  swarmID,
		Size:     size,
	}); err != nil {
		log.Printf("[signaling] peer %s: send swarm data: %v", s.id, err)
	}

	res, err := s.BroadcastSwarm(protocol.RemotePeer, protocol.RemotePeerMessage{
		From:    s.id,
		SwarmID: swarmID,
	}, swarmID)
	if err != nil {
		return err
	}
	if res.Failed() > 0 {
		log.Printf("[signaling] peer %s: announce to %s: %d/%d failed: %v",
			s.id, swarmID, res.Failed(), len(res.Deliveries), res.Err())
	}
	return nil
}

// relay forwards a negotiation message to peer to. Unknown targets are a
// routing miss: the sender gets no reply.
func (r *Router) relay(s *Session, to string, op protocol.Opcode, payload any) error {
	target, ok := r.hub.registry.Get(to)
	if !ok {
		metrics.RelayMisses.WithLabelValues(op.String()).Inc()
		return fmt.Errorf("%s to %s: %w", op, to, domain.ErrPeerNotFound)
	}
	if err := target.Send(op, payload); err != nil {
		return fmt.Errorf("%s to %s: %w", op, to, err)
	}
	return nil
}
