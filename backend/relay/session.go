// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/efchatnet/efrelay/backend/models"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

type sessionState int32

const (
	stateConnecting sessionState = iota
	stateAuthenticated
	stateActive
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateAuthenticated:
		return "authenticated"
	case stateActive:
		return "active"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// session is one authenticated connection. It implements registry.Handle.
type session struct {
	id         string
	subjectID  string
	credential string

	conn *websocket.Conn
	send chan models.Outbound

	// ctx is cancelled when the session starts closing. send is never
	// closed, so a late Push is dropped rather than panicking.
	ctx    context.Context
	cancel context.CancelFunc

	state     atomic.Int32
	closeOnce sync.Once

	svc *Service
	log *zap.Logger
}

// Push enqueues f without blocking. It reports false when the session is
// closing or its buffer is full.
func (s *session) Push(f models.Outbound) bool {
	if s.ctx.Err() != nil {
		return false
	}
	select {
	case <-s.ctx.Done():
		return false
	case s.send <- f:
		return true
	default:
		return false
	}
}

func (s *session) Credential() string {
	return s.credential
}

func (s *session) currentState() sessionState {
	return sessionState(s.state.Load())
}

// authenticate binds the verified subject to a connecting session.
func (s *session) authenticate(subjectID string) {
	s.subjectID = subjectID
	s.log = s.log.With(zap.String("subject_id", subjectID))
	s.state.Store(int32(stateAuthenticated))
}

// reject closes a connecting session with a policy violation. It was never
// registered, so there is nothing to deactivate.
func (s *session) reject(remoteAddr string, reason error) {
	s.log.Info("rejecting connection", zap.String("remote_addr", remoteAddr), zap.Error(reason))
	s.state.Store(int32(stateClosed))
	s.cancel()
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Invalid Token")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = s.conn.Close()
}

// reply pushes f to this session's own client.
func (s *session) reply(f models.Outbound) {
	if !s.Push(f) {
		s.log.Warn("reply dropped", zap.String("type", string(f.FrameType())))
	}
}

// readPump reads frames until the transport fails, dispatching each one in order.
func (s *session) readPump() {
	defer s.close()

	s.conn.SetReadLimit(s.svc.maxFrameBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		s.svc.dispatch(s, data)
	}
}

// writePump drains the send buffer to the connection and keeps it alive with pings.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-s.ctx.Done():
			return

		case f := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(f); err != nil {
				s.log.Warn("websocket write failed", zap.String("type", string(f.FrameType())), zap.Error(err))
				s.cancel()
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.cancel()
				return
			}
		}
	}
}

// closeWith sends a close frame and tears the transport down. readPump then
// finishes the cleanup.
func (s *session) closeWith(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	s.cancel()
	_ = s.conn.Close()
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.state.Store(int32(stateClosed))
		_ = s.conn.Close()
		s.svc.deactivate(s)
	})
}
