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

package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/efrelay/backend/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func insert(t *testing.T, store *Store, id, from, to, content string, at time.Time) {
	t.Helper()
	require.NoError(t, store.InsertMessage(context.Background(), models.Message{
		MessageID:  id,
		SenderID:   from,
		ReceiverID: to,
		Content:    content,
		CreatedAt:  at,
	}))
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, store.Ping(context.Background()))
}

func TestConversationReturnsBothDirectionsInOrder(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	insert(t, store, "m-1", "u1", "u2", "hi", base)
	insert(t, store, "m-2", "u2", "u1", "hey", base.Add(time.Second))
	insert(t, store, "m-3", "u1", "u3", "other pair", base.Add(2*time.Second))
	insert(t, store, "m-4", "u1", "u2", "how are you", base.Add(3*time.Second))

	msgs, err := store.Conversation(context.Background(), "u1", "u2")
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	ids := []string{msgs[0].MessageID, msgs[1].MessageID, msgs[2].MessageID}
	assert.Equal(t, []string{"m-1", "m-2", "m-4"}, ids)
	assert.Equal(t, base.Add(time.Second), msgs[1].CreatedAt)
	for _, m := range msgs {
		assert.False(t, m.Read)
	}

	reverse, err := store.Conversation(context.Background(), "u2", "u1")
	require.NoError(t, err)
	assert.Equal(t, msgs, reverse)
}

func TestConversationBreaksTimestampTiesByInsertionOrder(t *testing.T) {
	store := newTestStore(t)
	at := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	const n = 20
	for i := 0; i < n; i++ {
		insert(t, store, fmt.Sprintf("m-%02d", i), "u1", "u2", fmt.Sprintf("msg %d", i), at)
	}

	msgs, err := store.Conversation(context.Background(), "u1", "u2")
	require.NoError(t, err)
	require.Len(t, msgs, n)
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf("m-%02d", i), m.MessageID)
		if i > 0 {
			assert.False(t, m.CreatedAt.Before(msgs[i-1].CreatedAt))
		}
	}
}

func TestConversationEmpty(t *testing.T) {
	store := newTestStore(t)
	msgs, err := store.Conversation(context.Background(), "u1", "u2")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestUnreadCountsGroupBySender(t *testing.T) {
	store := newTestStore(t)
	at := time.Now().UTC()

	insert(t, store, "m-1", "u1", "me", "a", at)
	insert(t, store, "m-2", "u1", "me", "b", at)
	insert(t, store, "m-3", "u3", "me", "c", at)
	insert(t, store, "m-4", "me", "u1", "mine", at)

	counts, err := store.UnreadCounts(context.Background(), "me")
	require.NoError(t, err)
	assert.Equal(t, []models.UnreadCount{
		{SenderID: "u1", UnreadCount: 2},
		{SenderID: "u3", UnreadCount: 1},
	}, counts)

	none, err := store.UnreadCounts(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	at := time.Now().UTC()

	insert(t, store, "m-1", "u1", "me", "a", at)
	insert(t, store, "m-2", "u1", "me", "b", at)
	insert(t, store, "m-3", "u3", "me", "c", at)

	n, err := store.MarkRead(context.Background(), "u1", "me")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	afterOnce, err := store.UnreadCounts(context.Background(), "me")
	require.NoError(t, err)

	n, err = store.MarkRead(context.Background(), "u1", "me")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	afterTwice, err := store.UnreadCounts(context.Background(), "me")
	require.NoError(t, err)
	assert.Equal(t, afterOnce, afterTwice)
	assert.Equal(t, []models.UnreadCount{{SenderID: "u3", UnreadCount: 1}}, afterTwice)

	msgs, err := store.Conversation(context.Background(), "u1", "me")
	require.NoError(t, err)
	for _, m := range msgs {
		assert.True(t, m.Read)
	}
}

func TestMarkReadOnlyTouchesTheDirectedPair(t *testing.T) {
	store := newTestStore(t)
	at := time.Now().UTC()

	insert(t, store, "m-1", "u1", "u2", "to u2", at)
	insert(t, store, "m-2", "u2", "u1", "to u1", at)

	_, err := store.MarkRead(context.Background(), "u1", "u2")
	require.NoError(t, err)

	counts, err := store.UnreadCounts(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []models.UnreadCount{{SenderID: "u2", UnreadCount: 1}}, counts)
}

func TestDuplicateMessageIDIsRejected(t *testing.T) {
	store := newTestStore(t)
	insert(t, store, "m-1", "u1", "u2", "hi", time.Now())

	err := store.InsertMessage(context.Background(), models.Message{MessageID: "m-1", SenderID: "u1", ReceiverID: "u2"})
	require.Error(t, err)
}
