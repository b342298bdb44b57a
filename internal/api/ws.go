package api

import (
	"errors"
	"log"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zlx-network/swarmd/internal/domain"
)

// wsTransport adapts a WebSocket connection to signaling.Transport.
// gorilla allows one concurrent writer, so frame writes are serialized;
// control frames may be written alongside them.
type wsTransport struct {
	conn         *websocket.Conn
	remoteAddr   string
	writeTimeout time.Duration

	mu sync.Mutex
}

func newWSTransport(conn *websocket.Conn, remoteAddr string, writeTimeout time.Duration) *wsTransport {
	return &wsTransport{conn: conn, remoteAddr: remoteAddr, writeTimeout: writeTimeout}
}

func (t *wsTransport) WriteFrame(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (t *wsTransport) Ping() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeTimeout))
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

func (t *wsTransport) RemoteAddr() string { return t.remoteAddr }

// serveSession registers the connection with the hub and pumps inbound
// frames into it until the connection ends. It returns after the session is
// terminated.
func (s *Server) serveSession(conn *websocket.Conn, key, remoteAddr string) {
	sess, err := s.hub.Accept(key, newWSTransport(conn, remoteAddr, s.cfg.WriteTimeout))
	if err != nil {
		log.Printf("[api] accept %s: %v", remoteAddr, err)
		conn.Close()
		return
	}

	conn.SetReadLimit(s.cfg.ReadLimit)
	conn.SetPongHandler(func(string) error {
		sess.MarkAlive()
		return nil
	})

	for {
		// Text and binary messages carry the same frame format.
		_, data, err := conn.ReadMessage()
		if err != nil {
			sess.Terminate(readCause(err))
			return
		}
		sess.HandleFrame(data)
	}
}

// readCause classifies a read error. Orderly closes, and reads failing
// because the server already closed the connection, are CauseClosed.
func readCause(err error) domain.TerminationCause {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		return domain.CauseClosed
	}
	if errors.Is(err, net.ErrClosed) {
		return domain.CauseClosed
	}
	log.Printf("[api] read: %v", err)
	return domain.CauseError
}
