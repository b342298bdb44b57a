// Package domain holds the pure types shared by the signaling core:
// session states, termination causes and the sentinel errors.
package domain

import "time"

// SessionState is the lifecycle position of a peer session.
type SessionState int32

const (
	SessionConnecting SessionState = iota
	SessionActive
	SessionTerminating
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "CONNECTING"
	case SessionActive:
		return "ACTIVE"
	case SessionTerminating:
		return "TERMINATING"
	case SessionClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// TerminationCause records why a session left the Active state.
type TerminationCause string

const (
	CauseClosed          TerminationCause = "closed"
	CauseError           TerminationCause = "error"
	CauseLivenessTimeout TerminationCause = "liveness_timeout"
	CauseShutdown        TerminationCause = "shutdown"
)

// SessionInfo is a point-in-time snapshot of a peer session, used by the
// history ledger and the status API.
type SessionInfo struct {
	PeerID         string           `json:"peer_id"`
	Domain         string           `json:"domain"`
	RemoteAddr     string           `json:"remote_addr,omitempty"`
	State          SessionState     `json:"-"`
	ConnectedAt    time.Time        `json:"connected_at"`
	DisconnectedAt time.Time        `json:"disconnected_at,omitzero"`
	Cause          TerminationCause `json:"cause,omitempty"`
	Swarms         []string         `json:"swarms,omitempty"`
	SwarmsJoined   int              `json:"swarms_joined"`
}

// Duration returns how long the session was (or has been) connected.
func (i SessionInfo) Duration() time.Duration {
	if i.DisconnectedAt.IsZero() {
		return time.Since(i.ConnectedAt)
	}
	return i.DisconnectedAt.Sub(i.ConnectedAt)
}
