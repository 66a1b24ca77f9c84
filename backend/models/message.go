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

package models

import "time"

// Message is a persisted one-to-one chat message.
// Everything except Read is immutable after insert; Read only moves false -> true.
type Message struct {
	MessageID  string    `json:"message_id" db:"message_id"`
	SenderID   string    `json:"sender_id" db:"sender_id"`
	ReceiverID string    `json:"receiver_id" db:"receiver_id"`
	Content    string    `json:"message" db:"message"`
	CreatedAt  time.Time `json:"timestamp" db:"timestamp"`
	Read       bool      `json:"is_read" db:"is_read"`
}

// UnreadCount is the number of unread messages a receiver holds from one sender.
type UnreadCount struct {
	SenderID    string `json:"senderId"`
	UnreadCount int64  `json:"unreadCount"`
}

// FriendList is a cached snapshot of one subject's friend ids.
type FriendList struct {
	FriendIDs []string  `json:"friend_ids"`
	FetchedAt time.Time `json:"fetched_at"`
}
