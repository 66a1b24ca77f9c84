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

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestInsertMessage(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2024, 1, 15, 13, 5, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO messages \(message_id, sender_id, receiver_id, message, timestamp, is_read\)`).
		WithArgs("m-1", "u1", "u2", "hi", at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.InsertMessage(context.Background(), models.Message{
		MessageID: "m-1", SenderID: "u1", ReceiverID: "u2", Content: "hi", CreatedAt: at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMessageWrapsPersistenceError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO messages`).WillReturnError(errors.New("connection reset"))

	err := store.InsertMessage(context.Background(), models.Message{MessageID: "m-1", SenderID: "u1", ReceiverID: "u2"})
	require.ErrorIs(t, err, storage.ErrPersistence)
}

func TestConversationOrdersByTimestampThenSeq(t *testing.T) {
	store, mock := newMockStore(t)
	t1 := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	rows := sqlmock.NewRows([]string{"message_id", "sender_id", "receiver_id", "message", "timestamp", "is_read"}).
		AddRow("m-1", "u1", "u2", "hi", t1, true).
		AddRow("m-2", "u2", "u1", "hey", t2, false)
	mock.ExpectQuery(`SELECT message_id, sender_id, receiver_id, message, timestamp, is_read\s+FROM messages.*ORDER BY timestamp ASC, seq ASC`).
		WithArgs("u1", "u2").
		WillReturnRows(rows)

	msgs, err := store.Conversation(context.Background(), "u1", "u2")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m-1", msgs[0].MessageID)
	assert.True(t, msgs[0].Read)
	assert.Equal(t, "u1", msgs[1].ReceiverID)
	assert.Equal(t, t2, msgs[1].CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnreadCounts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT sender_id, COUNT\(\*\) FROM messages.*GROUP BY sender_id`).
		WithArgs("u2").
		WillReturnRows(sqlmock.NewRows([]string{"sender_id", "count"}).AddRow("u1", 3).AddRow("u3", 1))

	counts, err := store.UnreadCounts(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, []models.UnreadCount{{SenderID: "u1", UnreadCount: 3}, {SenderID: "u3", UnreadCount: 1}}, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnreadCountsEmptyIsNotNil(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT sender_id, COUNT\(\*\) FROM messages`).
		WithArgs("u2").
		WillReturnRows(sqlmock.NewRows([]string{"sender_id", "count"}))

	counts, err := store.UnreadCounts(context.Background(), "u2")
	require.NoError(t, err)
	assert.NotNil(t, counts)
	assert.Empty(t, counts)
}

func TestMarkReadReportsChangedRows(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE messages SET is_read = TRUE\s+WHERE sender_id = \$1 AND receiver_id = \$2 AND is_read = FALSE`).
		WithArgs("u1", "u2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`UPDATE messages SET is_read = TRUE`).
		WithArgs("u1", "u2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := store.MarkRead(context.Background(), "u1", "u2")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = store.MarkRead(context.Background(), "u1", "u2")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateRunsEveryStatement(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS messages`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS idx_messages_pair`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS idx_messages_unread`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
