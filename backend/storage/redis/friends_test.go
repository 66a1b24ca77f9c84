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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/efrelay/backend/models"
)

func newTestFriendStore(t *testing.T) (*FriendStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewFriendStore(rdb), mr
}

func TestFriendStoreRoundTrip(t *testing.T) {
	store, _ := newTestFriendStore(t)
	ctx := context.Background()

	_, ok, err := store.GetFriends(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	fetched := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.PutFriends(ctx, "u1", models.FriendList{FriendIDs: []string{"u2", "u3"}, FetchedAt: fetched}))

	list, ok, err := store.GetFriends(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"u2", "u3"}, list.FriendIDs)
	assert.True(t, fetched.Equal(list.FetchedAt))
}

func TestFriendStoreDeleteAndClear(t *testing.T) {
	store, mr := newTestFriendStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutFriends(ctx, "u1", models.FriendList{FriendIDs: []string{"u2"}}))
	require.NoError(t, store.PutFriends(ctx, "u2", models.FriendList{FriendIDs: []string{"u1"}}))

	require.NoError(t, store.DeleteFriends(ctx, "u1"))
	_, ok, err := store.GetFriends(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.GetFriends(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.ClearFriends(ctx))
	assert.False(t, mr.Exists(friendCacheKey))
}

func TestFriendStoreCorruptEntryIsAMiss(t *testing.T) {
	store, mr := newTestFriendStore(t)
	mr.HSet(friendCacheKey, "u1", "not json")

	_, ok, err := store.GetFriends(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, mr.HGet(friendCacheKey, "u1"))
}

func TestFriendStoreUnavailable(t *testing.T) {
	store, mr := newTestFriendStore(t)
	mr.Close()

	_, _, err := store.GetFriends(context.Background(), "u1")
	require.Error(t, err)
}
