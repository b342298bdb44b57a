package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/zlx-network/swarmd/internal/domain"
)

// ─── Requests (client → server) ─────────────────────────────────────────────

// Request is the closed set of inbound messages. Only the types in this
// file implement it.
type Request interface {
	Opcode() Opcode
	validate() error
}

// JoinSwarmRequest asks to join the swarm for FilePath.
type JoinSwarmRequest struct {
	FilePath string `json:"filePath"`
}

// OfferRequest relays an SDP offer to peer To.
type OfferRequest struct {
	To      string          `json:"to"`
	SwarmID string          `json:"swarmId"`
	SDP     json.RawMessage `json:"sdp,omitempty"`
}

// AnswerRequest relays an SDP answer to peer To.
type AnswerRequest struct {
	To      string          `json:"to"`
	SwarmID string          `json:"swarmId"`
	SDP     json.RawMessage `json:"sdp,omitempty"`
}

// CandidateRequest relays an ICE candidate to peer To.
type CandidateRequest struct {
	To        string          `json:"to"`
	SwarmID   string          `json:"swarmId"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

func (JoinSwarmRequest) Opcode() Opcode { return JoinSwarm }
func (OfferRequest) Opcode() Opcode     { return LocalPeerOffer }
func (AnswerRequest) Opcode() Opcode    { return LocalPeerAnswer }
func (CandidateRequest) Opcode() Opcode { return LocalICECandidate }

func (r JoinSwarmRequest) validate() error { return require("filePath", r.FilePath) }
func (r OfferRequest) validate() error     { return require("to", r.To) }
func (r AnswerRequest) validate() error    { return require("to", r.To) }
func (r CandidateRequest) validate() error { return require("to", r.To) }

func require(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s", domain.ErrMissingField, field)
	}
	return nil
}

// ParseRequest decodes an inbound frame into its typed request. Response
// opcodes and unknown opcodes yield domain.ErrUnknownOpcode; a request
// lacking its required field yields domain.ErrMissingField.
func ParseRequest(frame []byte) (Request, error) {
	op, payload, err := Decode(frame)
	if err != nil {
		return nil, err
	}

	var req Request
	switch op {
	case JoinSwarm:
		var r JoinSwarmRequest
		err = unmarshalPayload(op, payload, &r)
		req = r
	case LocalPeerOffer:
		var r OfferRequest
		err = unmarshalPayload(op, payload, &r)
		req = r
	case LocalPeerAnswer:
		var r AnswerRequest
		err = unmarshalPayload(op, payload, &r)
		req = r
	case LocalICECandidate:
		var r CandidateRequest
		err = unmarshalPayload(op, payload, &r)
		req = r
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownOpcode, op)
	}
	if err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return req, nil
}

func unmarshalPayload(op Opcode, payload json.RawMessage, v any) error {
	if payload == nil {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode %s: %w: %v", op, domain.ErrMalformedPayload, err)
	}
	return nil
}

// ─── Responses (server → client) ────────────────────────────────────────────

// RemotePeerMessage announces a new swarm member.
type RemotePeerMessage struct {
	From    string `json:"from"`
	SwarmID string `json:"swarmId"`
}

// RemoteDescriptionMessage carries a relayed offer or answer.
type RemoteDescriptionMessage struct {
	From    string          `json:"from"`
	SwarmID string          `json:"swarmId"`
	SDP     json.RawMessage `json:"sdp,omitempty"`
}

// RemoteCandidateMessage carries a relayed ICE candidate. The candidate is
// mirrored under "sdp" for clients built against the first protocol draft.
type RemoteCandidateMessage struct {
	From      string          `json:"from"`
	SwarmID   string          `json:"swarmId"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
}

// IdentityMessage tells a peer its assigned id.
type IdentityMessage struct {
	ID string `json:"id"`
}

// SwarmDataMessage answers a JOIN_SWARM. Size counts the other members.
type SwarmDataMessage struct {
	FilePath string `json:"filePath"`
	SwarmID  string `json:"swarmId"`
	Size     int    `json:"size"`
}

// PeerDisconnectedMessage tells swarm members that From has gone.
type PeerDisconnectedMessage struct {
	From    string `json:"from"`
	SwarmID string `json:"swarmId"`
}
