// Package protocol implements the swarmd wire format.
//
// Every WebSocket message body is a 2-byte big-endian opcode optionally
// followed by a UTF-8 JSON payload:
//
//	+--------+--------+----------------------+
//	| op hi  | op lo  | JSON payload (opt.)  |
//	+--------+--------+----------------------+
//
// Request opcodes (0x00xx) travel client → server, response opcodes (0x01xx)
// travel server → client. The two ranges never overlap.
package protocol

import "fmt"

// Opcode identifies the meaning of a frame.
type Opcode uint16

// Request opcodes (client → server).
const (
	JoinSwarm         Opcode = 0x0001
	LocalPeerOffer    Opcode = 0x0002
	LocalPeerAnswer   Opcode = 0x0003
	LocalICECandidate Opcode = 0x0004
)

// Response opcodes (server → client).
const (
	RemotePeer       Opcode = 0x0101
	RemotePeerOffer  Opcode = 0x0102
	RemotePeerAnswer Opcode = 0x0103
	ICECandidate     Opcode = 0x0104
	Identity         Opcode = 0x0105
	SwarmData        Opcode = 0x0106
	PeerDisconnected Opcode = 0x0107
)

var opcodeNames = map[Opcode]string{
	JoinSwarm:         "JOIN_SWARM",
	LocalPeerOffer:    "LOCAL_PEER_OFFER",
	LocalPeerAnswer:   "LOCAL_PEER_ANSWER",
	LocalICECandidate: "LOCAL_ICE_CANDIDATE",
	RemotePeer:        "REMOTE_PEER",
	RemotePeerOffer:   "REMOTE_PEER_OFFER",
	RemotePeerAnswer:  "REMOTE_PEER_ANSWER",
	ICECandidate:      "ICE_CANDIDATE",
	Identity:          "IDENTITY",
	SwarmData:         "SWARM_DATA",
	PeerDisconnected:  "PEER_DISCONNECTED",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("0x%04x", uint16(o))
}

// Known reports whether o is one of the defined opcodes.
func (o Opcode) Known() bool {
	_, ok := opcodeNames[o]
	return ok
}

// IsRequest reports whether o is a client → server opcode.
func (o Opcode) IsRequest() bool {
	return o.Known() && o>>8 == 0x00
}

// IsResponse reports whether o is a server → client opcode.
func (o Opcode) IsResponse() bool {
	return o.Known() && o>>8 == 0x01
}

// Bytes returns the on-wire representation of o.
func (o Opcode) Bytes() [OpcodeSize]byte {
	return [OpcodeSize]byte{byte(o >> 8), byte(o)}
}
