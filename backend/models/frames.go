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

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FrameType is the "type" discriminator carried by every websocket frame.
type FrameType string

// Client -> server frames.
const (
	TypeSendMessage           FrameType = "sendMessage"
	TypeChatRequest           FrameType = "chatRequest"
	TypeFriendsListRequest    FrameType = "friendsListRequest"
	TypeFriendRequest         FrameType = "friendRequest"
	TypeAcceptedFriendRequest FrameType = "acceptedFriendRequest"
	TypeDeletedFriend         FrameType = "deletedFriend"
	TypeForcedUpdateList      FrameType = "forcedUpdatelist"
)

// Server -> client frames.
const (
	TypeChatMessages        FrameType = "chatMessages"
	TypeFriendsList         FrameType = "friendsList"
	TypeMessage             FrameType = "message"
	TypeNewUnreadMessage    FrameType = "newUnreadMessage"
	TypeFriendshipRequested FrameType = "friendshipRequested"
	TypeFriendshipAccepted  FrameType = "friendshipAccepted"
	TypeFriendshipDeleted   FrameType = "friendshipDeleted"
)

var (
	// ErrMalformedFrame is returned for frames that are not valid JSON or miss required fields.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrUnknownFrame is returned for well-formed frames with an unrecognized type.
	ErrUnknownFrame = errors.New("unknown frame type")
)

// Inbound is one of the frames a client may send. The set is closed: only
// the types in this file implement it.
type Inbound interface {
	FrameType() FrameType
	validate() error
}

// SendMessage asks the relay to persist and deliver a chat message.
type SendMessage struct {
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

// ChatRequest asks for the full conversation with FriendID.
type ChatRequest struct {
	FriendID string `json:"friendId"`
}

// FriendsListRequest asks for the caller's online friends.
type FriendsListRequest struct{}

// FriendRequest announces that the caller sent FriendID a friend request.
type FriendRequest struct {
	UserID   string `json:"userId"`
	FriendID string `json:"friendId"`
}

// AcceptedFriendRequest announces that the caller accepted FriendID's request.
type AcceptedFriendRequest struct {
	FriendID string `json:"friendId"`
}

// DeletedFriend announces that the caller removed FriendID.
type DeletedFriend struct {
	FriendID string `json:"friendId"`
}

// ForcedUpdateList asks the relay to refresh FriendID's friend list and push it.
type ForcedUpdateList struct {
	FriendID string `json:"friendId"`
}

func (*SendMessage) FrameType() FrameType           { return TypeSendMessage }
func (*ChatRequest) FrameType() FrameType           { return TypeChatRequest }
func (*FriendsListRequest) FrameType() FrameType    { return TypeFriendsListRequest }
func (*FriendRequest) FrameType() FrameType         { return TypeFriendRequest }
func (*AcceptedFriendRequest) FrameType() FrameType { return TypeAcceptedFriendRequest }
func (*DeletedFriend) FrameType() FrameType         { return TypeDeletedFriend }
func (*ForcedUpdateList) FrameType() FrameType      { return TypeForcedUpdateList }

func (f *SendMessage) validate() error {
	if f.ReceiverID == "" {
		return errors.New("receiverId is required")
	}
	return nil
}

func (f *ChatRequest) validate() error           { return requireFriendID(f.FriendID) }
func (*FriendsListRequest) validate() error      { return nil }
func (f *FriendRequest) validate() error         { return requireFriendID(f.FriendID) }
func (f *AcceptedFriendRequest) validate() error { return requireFriendID(f.FriendID) }
func (f *DeletedFriend) validate() error         { return requireFriendID(f.FriendID) }
func (f *ForcedUpdateList) validate() error      { return requireFriendID(f.FriendID) }

func requireFriendID(id string) error {
	if id == "" {
		return errors.New("friendId is required")
	}
	return nil
}

// ParseInbound decodes a text frame into its concrete Inbound type.
func ParseInbound(data []byte) (Inbound, error) {
	var envelope struct {
		Type FrameType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var frame Inbound
	switch envelope.Type {
	case TypeSendMessage:
		frame = &SendMessage{}
	case TypeChatRequest:
		frame = &ChatRequest{}
	case TypeFriendsListRequest:
		frame = &FriendsListRequest{}
	case TypeFriendRequest:
		frame = &FriendRequest{}
	case TypeAcceptedFriendRequest:
		frame = &AcceptedFriendRequest{}
	case TypeDeletedFriend:
		frame = &DeletedFriend{}
	case TypeForcedUpdateList:
		frame = &ForcedUpdateList{}
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, envelope.Type)
	}

	if err := json.Unmarshal(data, frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if err := frame.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, envelope.Type, err)
	}
	return frame, nil
}

// Outbound is any frame the relay writes to a client.
type Outbound interface {
	FrameType() FrameType
}

// ChatEntry is one message inside a chatMessages reply.
type ChatEntry struct {
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
	Date       string `json:"date"`
}

// ChatMessages is the reply to a chatRequest.
type ChatMessages struct {
	Type     FrameType   `json:"type"`
	Messages []ChatEntry `json:"messages"`
}

// FriendsList carries the online subset of a subject's friends.
type FriendsList struct {
	Type    FrameType `json:"type"`
	Friends []string  `json:"friends"`
}

// MessagePush delivers a new chat message to an online receiver.
type MessagePush struct {
	Type      FrameType `json:"type"`
	ID        string    `json:"id"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	Timestamp string    `json:"timestamp"`
	Date      string    `json:"date"`
}

// NewUnreadMessage hints that SenderID has a new unread message for the receiver.
type NewUnreadMessage struct {
	Type     FrameType `json:"type"`
	SenderID string    `json:"senderId"`
}

// FriendshipEvent is a social-graph notification. Type is one of the
// friendship* frame types.
type FriendshipEvent struct {
	Type     FrameType `json:"type"`
	UserID   string    `json:"userId"`
	FriendID string    `json:"friendId"`
}

func (f *ChatMessages) FrameType() FrameType     { return f.Type }
func (f *FriendsList) FrameType() FrameType      { return f.Type }
func (f *MessagePush) FrameType() FrameType      { return f.Type }
func (f *NewUnreadMessage) FrameType() FrameType { return f.Type }
func (f *FriendshipEvent) FrameType() FrameType  { return f.Type }

// NewChatMessages builds a chatMessages reply; entries is never encoded as null.
func NewChatMessages(entries []ChatEntry) *ChatMessages {
	if entries == nil {
		entries = []ChatEntry{}
	}
	return &ChatMessages{Type: TypeChatMessages, Messages: entries}
}

// NewFriendsList builds a friendsList reply; friends is never encoded as null.
func NewFriendsList(friends []string) *FriendsList {
	if friends == nil {
		friends = []string{}
	}
	return &FriendsList{Type: TypeFriendsList, Friends: friends}
}

// NewUnreadHint builds a newUnreadMessage push.
func NewUnreadHint(senderID string) *NewUnreadMessage {
	return &NewUnreadMessage{Type: TypeNewUnreadMessage, SenderID: senderID}
}

// NewFriendshipEvent builds a friendship notification of the given type.
func NewFriendshipEvent(t FrameType, userID, friendID string) *FriendshipEvent {
	return &FriendshipEvent{Type: t, UserID: userID, FriendID: friendID}
}
