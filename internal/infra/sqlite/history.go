package sqlite

import (
	"log"

	"github.com/zlx-network/swarmd/internal/domain"
)

// History records session lifecycle events into the ledger. Write failures
// are logged and swallowed so a slow or broken disk never affects
// signaling.
type History struct {
	db *DB
}

// NewHistory creates a recorder backed by db.
func NewHistory(db *DB) *History {
	return &History{db: db}
}

// SessionOpened inserts the session row.
func (h *History) SessionOpened(info domain.SessionInfo) {
	if err := h.db.InsertSession(info); err != nil {
		log.Printf("[sqlite] record open %s: %v", info.PeerID, err)
	}
}

// SessionClosed stamps the disconnect time, cause and swarms.
func (h *History) SessionClosed(info domain.SessionInfo) {
	if err := h.db.CloseSession(info); err != nil {
		log.Printf("[sqlite] record close %s: %v", info.PeerID, err)
	}
}

// Recent returns the latest sessions, optionally filtered to one domain.
func (h *History) Recent(domainKey string, limit int) ([]domain.SessionInfo, error) {
	return h.db.RecentSessions(domainKey, limit)
}
