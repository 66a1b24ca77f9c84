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
	"fmt"

	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/storage"
)

func (s *Store) InsertMessage(ctx context.Context, msg models.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (message_id, sender_id, receiver_id, message, timestamp, is_read)
		VALUES ($1, $2, $3, $4, $5, FALSE)`,
		msg.MessageID, msg.SenderID, msg.ReceiverID, msg.Content, msg.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("%w: insert message: %w", storage.ErrPersistence, err)
	}
	return nil
}

func (s *Store) Conversation(ctx context.Context, userA, userB string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, sender_id, receiver_id, message, timestamp, is_read
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY timestamp ASC, seq ASC`,
		userA, userB)
	if err != nil {
		return nil, fmt.Errorf("%w: query conversation: %w", storage.ErrPersistence, err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.MessageID, &msg.SenderID, &msg.ReceiverID,
			&msg.Content, &msg.CreatedAt, &msg.Read); err != nil {
			return nil, fmt.Errorf("%w: scan message: %w", storage.ErrPersistence, err)
		}
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
		WHERE receiver_id = $1 AND is_read = FALSE
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
		UPDATE messages SET is_read = TRUE
		WHERE sender_id = $1 AND receiver_id = $2 AND is_read = FALSE`,
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
