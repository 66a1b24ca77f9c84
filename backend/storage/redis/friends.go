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

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/efchatnet/efrelay/backend/models"
)

const (
	// friendCacheKey is a hash: subject id -> JSON encoded models.FriendList
	friendCacheKey = "relay:friends"
)

// FriendStore keeps friend-list snapshots in a single Redis hash so the
// whole cache can be dropped with one DEL.
type FriendStore struct {
	rdb *redis.Client
	key string
}

func NewFriendStore(rdb *redis.Client) *FriendStore {
	return &FriendStore{
		rdb: rdb,
		key: friendCacheKey,
	}
}

// GetFriends returns the cached snapshot for subjectID, if any.
func (s *FriendStore) GetFriends(ctx context.Context, subjectID string) (models.FriendList, bool, error) {
	data, err := s.rdb.HGet(ctx, s.key, subjectID).Result()
	if errors.Is(err, redis.Nil) {
		return models.FriendList{}, false, nil
	} else if err != nil {
		return models.FriendList{}, false, fmt.Errorf("failed to get friend list: %w", err)
	}

	var list models.FriendList
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		// Corrupt entry, drop it and report a miss
		s.rdb.HDel(ctx, s.key, subjectID)
		return models.FriendList{}, false, nil
	}
	return list, true, nil
}

// PutFriends replaces the snapshot for subjectID.
func (s *FriendStore) PutFriends(ctx context.Context, subjectID string, list models.FriendList) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal friend list: %w", err)
	}
	if err := s.rdb.HSet(ctx, s.key, subjectID, data).Err(); err != nil {
		return fmt.Errorf("failed to store friend list: %w", err)
	}
	return nil
}

// DeleteFriends drops one subject's snapshot.
func (s *FriendStore) DeleteFriends(ctx context.Context, subjectID string) error {
	if err := s.rdb.HDel(ctx, s.key, subjectID).Err(); err != nil {
		return fmt.Errorf("failed to delete friend list: %w", err)
	}
	return nil
}

// ClearFriends drops every snapshot.
func (s *FriendStore) ClearFriends(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear friend lists: %w", err)
	}
	return nil
}
