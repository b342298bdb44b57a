package api

import (
	"fmt"
	"log"
	"net/http"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/zlx-network/swarmd/internal/domain"
	"github.com/zlx-network/swarmd/internal/infra/metrics"
)

// AccessKey extracts the tenant key from an upgrade request. The first
// offered subprotocol wins; otherwise the query parameter is used.
// fromSubprotocol reports which one supplied it, since a subprotocol must be
// echoed back in the handshake response.
func AccessKey(r *http.Request, queryParam string) (key string, fromSubprotocol bool) {
	if protos := websocket.Subprotocols(r); len(protos) > 0 && protos[0] != "" {
		return protos[0], true
	}
	return r.URL.Query().Get(queryParam), false
}

// checkAccessKey applies the only validation the server performs: the key
// has the expected length. It is otherwise opaque and becomes the domain.
func (s *Server) checkAccessKey(key string) error {
	if n := utf8.RuneCountInString(key); n != s.cfg.AccessKeyLength {
		return fmt.Errorf("%w: length %d", domain.ErrInvalidAccessKey, n)
	}
	return nil
}

// handleRoot serves every path not claimed by another route. Non-WebSocket
// requests are redirected; upgrades are authenticated and handed to the hub.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Redirect(w, r, s.cfg.RedirectURL, http.StatusMovedPermanently)
		return
	}

	key, fromSubprotocol := AccessKey(r, s.cfg.KeyQueryParam)
	if err := s.checkAccessKey(key); err != nil {
		metrics.HandshakeRejected.Inc()
		log.Printf("[api] reject upgrade from %s: %v", r.RemoteAddr, err)
		http.Error(w, domain.ErrInvalidAccessKey.Error(), http.StatusUnauthorized)
		return
	}

	header := http.Header{}
	if fromSubprotocol {
		header.Set("Sec-WebSocket-Protocol", key)
	}
	conn, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Printf("[api] upgrade from %s: %v", r.RemoteAddr, err)
		return
	}

	s.serveSession(conn, key, r.RemoteAddr)
}
