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
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/efchatnet/efrelay/backend/models"
)

// Frame error codes.
const (
	codeMalformed = "malformed"
	codeUnknown   = "unknown_type"
	codeInactive  = "inactive"
)

// dispatch handles one inbound frame on s's read loop. Bad frames are logged
// and ignored; the connection stays open.
func (svc *Service) dispatch(s *session, data []byte) {
	if st := s.currentState(); st != stateActive {
		svc.metrics.recordFrameError(codeInactive)
		s.log.Debug("frame on inactive session", zap.Stringer("state", st))
		return
	}

	frame, err := models.ParseInbound(data)
	if err != nil {
		code := codeMalformed
		if errors.Is(err, models.ErrUnknownFrame) {
			code = codeUnknown
		}
		svc.metrics.recordFrameError(code)
		s.log.Warn("ignoring frame", zap.String("code", code), zap.Error(err))
		return
	}

	frameType := string(frame.FrameType())
	svc.metrics.recordFrame(frameType)
	start := time.Now()
	defer func() { svc.metrics.observeLatency(frameType, time.Since(start)) }()

	// Upstream and store calls outlive a closing transport; their results
	// are simply dropped by Push.
	ctx := context.WithoutCancel(s.ctx)

	switch f := frame.(type) {
	case *models.SendMessage:
		svc.handleSendMessage(ctx, s, f)
	case *models.ChatRequest:
		svc.handleChatRequest(ctx, s, f)
	case *models.FriendsListRequest:
		svc.handleFriendsList(ctx, s)
	case *models.ForcedUpdateList:
		svc.handleForcedUpdate(ctx, s, f)
	case *models.FriendRequest:
		svc.handleFriendEvent(ctx, s, models.TypeFriendshipRequested, f.FriendID)
	case *models.AcceptedFriendRequest:
		svc.handleFriendEvent(ctx, s, models.TypeFriendshipAccepted, f.FriendID)
	case *models.DeletedFriend:
		svc.handleFriendEvent(ctx, s, models.TypeFriendshipDeleted, f.FriendID)
	}
}

// handleSendMessage persists the message and, independently, pushes it to
// the receiver if online. A failed insert does not suppress the push.
func (svc *Service) handleSendMessage(ctx context.Context, s *session, f *models.SendMessage) {
	msg := models.Message{
		MessageID:  uuid.NewString(),
		SenderID:   s.subjectID,
		ReceiverID: f.ReceiverID,
		Content:    f.Content,
		CreatedAt:  svc.now().UTC(),
	}

	if err := svc.store.InsertMessage(ctx, msg); err != nil {
		svc.metrics.recordPersistenceError("insert")
		s.log.Error("persist message",
			zap.String("message_id", msg.MessageID),
			zap.String("receiver_id", msg.ReceiverID),
			zap.Error(err))
	}

	timeOfDay, date := stamp(msg.CreatedAt, svc.loc)
	svc.broadcaster.PushIfOnline(msg.ReceiverID, &models.MessagePush{
		Type:      models.TypeMessage,
		ID:        msg.MessageID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		Timestamp: timeOfDay,
		Date:      date,
	})
	svc.broadcaster.PushIfOnline(msg.ReceiverID, models.NewUnreadHint(msg.SenderID))
}

func (svc *Service) handleChatRequest(ctx context.Context, s *session, f *models.ChatRequest) {
	msgs, err := svc.store.Conversation(ctx, s.subjectID, f.FriendID)
	if err != nil {
		svc.metrics.recordPersistenceError("conversation")
		s.log.Error("load conversation", zap.String("friend_id", f.FriendID), zap.Error(err))
		return
	}

	entries := make([]models.ChatEntry, 0, len(msgs))
	for _, m := range msgs {
		timeOfDay, date := stamp(m.CreatedAt, svc.loc)
		entries = append(entries, models.ChatEntry{
			ID:         m.MessageID,
			SenderID:   m.SenderID,
			ReceiverID: m.ReceiverID,
			Content:    m.Content,
			Timestamp:  timeOfDay,
			Date:       date,
		})
	}
	s.reply(models.NewChatMessages(entries))
}

func (svc *Service) handleFriendsList(ctx context.Context, s *session) {
	ids := svc.friends.Get(ctx, s.subjectID, s.credential)
	s.reply(models.NewFriendsList(svc.registry.Online(ids)))
}

// handleForcedUpdate refreshes friendID's list with friendID's own credential
// and pushes them their online friends. An offline friend only loses their
// cached entry.
func (svc *Service) handleForcedUpdate(ctx context.Context, s *session, f *models.ForcedUpdateList) {
	h, ok := svc.registry.Get(f.FriendID)
	if !ok {
		svc.friends.Invalidate(ctx, f.FriendID)
		s.log.Debug("forced refresh for offline friend", zap.String("friend_id", f.FriendID))
		return
	}

	ids := svc.friends.ForceRefresh(ctx, f.FriendID, h.Credential())
	svc.broadcaster.PushOnlineFriends(f.FriendID, ids)
}

// handleFriendEvent echoes the event to the caller and pushes it to the
// friend. Accepts and deletes change both parties' friend lists, so their
// cached entries are dropped.
func (svc *Service) handleFriendEvent(ctx context.Context, s *session, t models.FrameType, friendID string) {
	if t != models.TypeFriendshipRequested {
		svc.friends.Invalidate(ctx, s.subjectID)
		svc.friends.Invalidate(ctx, friendID)
	}

	event := models.NewFriendshipEvent(t, s.subjectID, friendID)
	s.reply(event)
	svc.broadcaster.PushIfOnline(friendID, event)
}
