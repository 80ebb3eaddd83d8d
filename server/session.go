package server

import (
	"net"
	"time"

	"github.com/google/uuid"
)

// Session is one connected client.
type Session struct {
	ID         string
	RemoteAddr string
	Started    time.Time
	conn       net.Conn
}

func newSession(conn net.Conn) *Session {
	return &Session{
		ID:         uuid.New().String(),
		RemoteAddr: conn.RemoteAddr().String(),
		Started:    time.Now(),
		conn:       conn,
	}
}

// Close drops the client connection, ending the session's read loop.
func (s *Session) Close() error {
	return s.conn.Close()
}
