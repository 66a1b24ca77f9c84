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

package storage

import (
	"context"
	"errors"

	"github.com/efchatnet/efrelay/backend/models"
)

// ErrPersistence wraps every failure reported by a message store.
var ErrPersistence = errors.New("persistence error")

type MessageStore interface {
	// InsertMessage appends msg with read=false. msg.MessageID and
	// msg.CreatedAt are assigned by the caller.
	InsertMessage(ctx context.Context, msg models.Message) error
	// Conversation returns both directions of the pair, oldest first.
	Conversation(ctx context.Context, userA, userB string) ([]models.Message, error)
	// UnreadCounts groups the receiver's unread messages by sender, ordered by sender id.
	UnreadCounts(ctx context.Context, receiverID string) ([]models.UnreadCount, error)
	// MarkRead flips every unread sender->receiver row to read and reports how many changed.
	MarkRead(ctx context.Context, senderID, receiverID string) (int64, error)
}

type Store interface {
	MessageStore

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// FriendCacheStore holds friend-list snapshots for the friend directory cache.
type FriendCacheStore interface {
	GetFriends(ctx context.Context, subjectID string) (models.FriendList, bool, error)
	PutFriends(ctx context.Context, subjectID string, list models.FriendList) error
	DeleteFriends(ctx context.Context, subjectID string) error
	ClearFriends(ctx context.Context) error
}
