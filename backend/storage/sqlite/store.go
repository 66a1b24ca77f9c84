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
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/storage"
)

// Store persists chat messages in a local SQLite file. Used for embedded
// deployments and tests.
type Store struct {
	db *sql.DB
}

// Open creates the database directory if needed and opens path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	return &Store{db: db}, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT NOT NULL UNIQUE,
			sender_id TEXT NOT NULL,
			receiver_id TEXT NOT NULL,
			message TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			is_read INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(receiver_id, is_read)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) InsertMessage(ctx context.Context, msg models.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (message_id, sender_id, receiver_id, message, timestamp, is_read)
		VALUES (?, ?, ?, ?, ?, 0)`,
		msg.MessageID, msg.SenderID, msg.ReceiverID, msg.Content, msg.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: insert message: %w", storage.ErrPersistence, err)
	}
	return nil
}

func (s *Store) Conversation(ctx context.Context, userA, userB string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, sender_id, receiver_id, message, timestamp, is_read
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?)
		   OR (sender_id = ? AND receiver_id = ?)
		ORDER BY timestamp ASC, seq ASC`,
		userA, userB, userB, userA)
	if err != nil {
		return nil, fmt.Errorf("%w: query conversation: %w", storage.ErrPersistence, err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var (
			msg   models.Message
			nanos int64
		)
		if err := rows.Scan(&msg.MessageID, &msg.SenderID, &msg.ReceiverID,
			&msg.Content, &nanos, &msg.Read); err != nil {
			return nil, fmt.Errorf("%w: scan message: %w", storage.ErrPersistence, err)
		}
		msg.CreatedAt = time.Unix(0, nanos).UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate conversation: %w", storage.ErrPersistence, err)
	}
	return messages, nil
}

func (s *Store) UnreadCounts(ctx context.Context, receiverID string) ([]models.UnreadCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sender_id, COUNT(*) FROM messages
		WHERE receiver_id = ? AND is_read = 0
		GROUP BY sender_id
		ORDER BY sender_id`,
		receiverID)
	if err != nil {
		return nil, fmt.Errorf("%w: query unread counts: %w", storage.ErrPersistence, err)
	}
	defer rows.Close()

	counts := []models.UnreadCount{}
	for rows.Next() {
		var c models.UnreadCount
		if err := rows.Scan(&c.SenderID, &c.UnreadCount); err != nil {
			return nil, fmt.Errorf("%w: scan unread count: %w", storage.ErrPersistence, err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate unread counts: %w", storage.ErrPersistence, err)
	}
	return counts, nil
}

func (s *Store) MarkRead(ctx context.Context, senderID, receiverID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_read = 1
		WHERE sender_id = ? AND receiver_id = ? AND is_read = 0`,
		senderID, receiverID)
	if err != nil {
		return 0, fmt.Errorf("%w: mark read: %w", storage.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: mark read: %w", storage.ErrPersistence, err)
	}
	return n, nil
}
