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

// Package relay runs the websocket side of the chat relay: handshake,
// per-connection sessions and frame dispatch.
package relay

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/registry"
	"github.com/efchatnet/efrelay/backend/storage"
)

const (
	defaultSendBuffer    = 32
	defaultMaxFrameBytes = 8192
)

// CredentialVerifier turns a bearer credential into a subject id.
type CredentialVerifier interface {
	Verify(credential string) (string, error)
}

// FriendDirectory is the friend-list cache as seen by the dispatcher.
type FriendDirectory interface {
	Get(ctx context.Context, subjectID, credential string) []string
	ForceRefresh(ctx context.Context, subjectID, credential string) []string
	Invalidate(ctx context.Context, subjectID string)
}

// Options tunes a Service. Zero values pick the defaults.
type Options struct {
	SendBuffer    int
	MaxFrameBytes int64
	Location      *time.Location
	Now           func() time.Time
	CheckOrigin   func(r *http.Request) bool
	Metrics       *Metrics
}

// Service accepts websocket connections and owns their sessions.
type Service struct {
	verifier    CredentialVerifier
	registry    *registry.Registry
	friends     FriendDirectory
	store       storage.MessageStore
	broadcaster *Broadcaster
	log         *zap.Logger
	metrics     *Metrics

	sendBuffer    int
	maxFrameBytes int64
	loc           *time.Location
	now           func() time.Time
	upgrader      websocket.Upgrader

	mu       sync.Mutex
	sessions map[*session]struct{}
}

func NewService(
	verifier CredentialVerifier,
	reg *registry.Registry,
	friends FriendDirectory,
	store storage.MessageStore,
	log *zap.Logger,
	opts Options,
) *Service {
	if log == nil {
		log = zap.NewNop()
	}

	svc := &Service{
		verifier:      verifier,
		registry:      reg,
		friends:       friends,
		store:         store,
		broadcaster:   NewBroadcaster(reg, log, opts.Metrics),
		log:           log,
		metrics:       opts.Metrics,
		sendBuffer:    opts.SendBuffer,
		maxFrameBytes: opts.MaxFrameBytes,
		loc:           opts.Location,
		now:           opts.Now,
		sessions:      make(map[*session]struct{}),
	}
	if svc.sendBuffer <= 0 {
		svc.sendBuffer = defaultSendBuffer
	}
	if svc.maxFrameBytes <= 0 {
		svc.maxFrameBytes = defaultMaxFrameBytes
	}
	if svc.loc == nil {
		svc.loc = time.UTC
	}
	if svc.now == nil {
		svc.now = time.Now
	}

	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	svc.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
	return svc
}

// Broadcaster returns the service's event broadcaster.
func (svc *Service) Broadcaster() *Broadcaster {
	return svc.broadcaster
}

// ServeWS performs the handshake and runs the session until the transport
// closes. The bearer credential travels in the Sec-WebSocket-Protocol header
// and is echoed back as the selected sub-protocol.
func (svc *Service) ServeWS(w http.ResponseWriter, r *http.Request) {
	credential := credentialFromProtocols(websocket.Subprotocols(r))
	subjectID, authErr := svc.verifier.Verify(credential)

	var header http.Header
	if credential != "" {
		header = http.Header{}
		header.Set("Sec-WebSocket-Protocol", credential)
	}

	conn, err := svc.upgrader.Upgrade(w, r, header)
	if err != nil {
		svc.log.Debug("websocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}

	s := svc.newSession(conn, credential)
	if authErr != nil {
		svc.metrics.recordHandshakeFailure()
		s.reject(r.RemoteAddr, authErr)
		return
	}

	s.authenticate(subjectID)
	svc.activate(s)
	go s.writePump()
	s.readPump()
}

func credentialFromProtocols(protocols []string) string {
	if len(protocols) == 0 {
		return ""
	}
	return strings.TrimSpace(protocols[0])
}

// newSession wraps an upgraded connection whose credential has not been
// checked yet.
func (svc *Service) newSession(conn *websocket.Conn, credential string) *session {
	ctx, cancel := context.WithCancel(context.Background())
	connID := uuid.NewString()
	s := &session{
		id:         connID,
		credential: credential,
		conn:       conn,
		send:       make(chan models.Outbound, svc.sendBuffer),
		ctx:        ctx,
		cancel:     cancel,
		svc:        svc,
		log:        svc.log.With(zap.String("conn_id", connID)),
	}
	s.state.Store(int32(stateConnecting))
	return s
}

// activate registers s; the latest connection for a subject wins.
func (svc *Service) activate(s *session) {
	if prev := svc.registry.Register(s.subjectID, s); prev != nil {
		s.log.Info("replaced existing connection")
	}

	svc.mu.Lock()
	svc.sessions[s] = struct{}{}
	svc.mu.Unlock()
	s.state.Store(int32(stateActive))
	svc.metrics.incSession()
	s.log.Info("client connected")
}

// deactivate runs once per session when it closes.
func (svc *Service) deactivate(s *session) {
	svc.registry.UnregisterHandle(s.subjectID, s)

	svc.mu.Lock()
	delete(svc.sessions, s)
	svc.mu.Unlock()

	svc.metrics.decSession()
	s.log.Info("client disconnected")
}

// SessionCount returns the number of open sessions, including ones that
// were replaced in the registry but whose transport is still up.
func (svc *Service) SessionCount() int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return len(svc.sessions)
}

// Shutdown sends a going-away close to every open session.
func (svc *Service) Shutdown() {
	svc.mu.Lock()
	open := make([]*session, 0, len(svc.sessions))
	for s := range svc.sessions {
		open = append(open, s)
	}
	svc.mu.Unlock()

	for _, s := range open {
		s.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
}
