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

package friends

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/storage"
)

// DefaultTTL bounds how stale a cached friend list may get.
const DefaultTTL = time.Hour

// Lookup outcomes reported through Options.OnLookup.
const (
	LookupHit           = "hit"
	LookupMiss          = "miss"
	LookupRefresh       = "refresh"
	LookupUpstreamError = "upstream_error"
	LookupStoreError    = "store_error"
)

// Options tunes a Cache.
type Options struct {
	TTL      time.Duration
	Now      func() time.Time
	OnLookup func(result string)
}

// Cache is the process-wide friend directory. Lists are fetched from the
// friendship service on miss, kept for at most TTL and dropped wholesale
// by the sweeper. Upstream failures degrade to an empty list and leave the
// stored entry untouched.
type Cache struct {
	source   Source
	store    storage.FriendCacheStore
	log      *zap.Logger
	ttl      time.Duration
	nowFn    func() time.Time
	onLookup func(string)

	group     singleflight.Group
	sweepOnce sync.Once

	// mu orders store writes against invalidations. A fetch stores its
	// result only if neither its subject's generation nor the epoch moved
	// while the upstream call was in flight.
	mu    sync.Mutex
	epoch uint64
	gens  map[string]uint64
}

// version identifies the cache state a fetch started from.
type version struct {
	epoch uint64
	gen   uint64
}

// NewCache wires a cache over source. A nil store means an in-memory one.
func NewCache(source Source, store storage.FriendCacheStore, log *zap.Logger, opts Options) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Cache{
		source:   source,
		store:    store,
		log:      log,
		ttl:      opts.TTL,
		nowFn:    opts.Now,
		onLookup: opts.OnLookup,
		gens:     make(map[string]uint64),
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.nowFn == nil {
		c.nowFn = time.Now
	}
	return c
}

// Get returns subjectID's friend ids, fetching with credential on a miss.
func (c *Cache) Get(ctx context.Context, subjectID, credential string) []string {
	if list, ok := c.lookup(ctx, subjectID); ok {
		c.record(LookupHit)
		return list.FriendIDs
	}
	c.record(LookupMiss)

	v, _, _ := c.group.Do(subjectID, func() (interface{}, error) {
		return c.fetch(ctx, subjectID, credential, c.current(subjectID)), nil
	})
	ids := v.([]string)
	return append(ids[:0:0], ids...)
}

// ForceRefresh re-fetches subjectID's list regardless of its age. Fetches
// already in flight for subjectID will not overwrite its result.
func (c *Cache) ForceRefresh(ctx context.Context, subjectID, credential string) []string {
	c.record(LookupRefresh)
	c.mu.Lock()
	st := c.bumpLocked(subjectID)
	c.mu.Unlock()
	c.group.Forget(subjectID)
	return c.fetch(ctx, subjectID, credential, st)
}

// Invalidate drops subjectID's entry so the next Get fetches again.
func (c *Cache) Invalidate(ctx context.Context, subjectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bumpLocked(subjectID)
	c.group.Forget(subjectID)
	if err := c.store.DeleteFriends(ctx, subjectID); err != nil {
		c.record(LookupStoreError)
		c.log.Warn("invalidate friend list", zap.String("subject_id", subjectID), zap.Error(err))
	}
}

// InvalidateAll clears the whole cache.
func (c *Cache) InvalidateAll(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.gens = make(map[string]uint64)
	if err := c.store.ClearFriends(ctx); err != nil {
		c.record(LookupStoreError)
		c.log.Warn("clear friend lists", zap.Error(err))
		return
	}
	c.log.Debug("friend list cache cleared")
}

// StartSweeper clears the cache every TTL until ctx is done. Only the first
// call starts a sweeper.
func (c *Cache) StartSweeper(ctx context.Context) {
	c.sweepOnce.Do(func() {
		ticker := time.NewTicker(c.ttl)
		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.InvalidateAll(ctx)
				}
			}
		}()
	})
}

func (c *Cache) lookup(ctx context.Context, subjectID string) (models.FriendList, bool) {
	list, ok, err := c.store.GetFriends(ctx, subjectID)
	if err != nil {
		c.record(LookupStoreError)
		c.log.Warn("read friend list", zap.String("subject_id", subjectID), zap.Error(err))
		return models.FriendList{}, false
	}
	if !ok {
		return models.FriendList{}, false
	}
	if c.nowFn().Sub(list.FetchedAt) >= c.ttl {
		return models.FriendList{}, false
	}
	return list, true
}

func (c *Cache) current(subjectID string) version {
	c.mu.Lock()
	defer c.mu.Unlock()
	return version{epoch: c.epoch, gen: c.gens[subjectID]}
}

func (c *Cache) bumpLocked(subjectID string) version {
	c.gens[subjectID]++
	return version{epoch: c.epoch, gen: c.gens[subjectID]}
}

func (c *Cache) fetch(ctx context.Context, subjectID, credential string, st version) []string {
	ids, err := c.source.Friends(ctx, credential)
	if err != nil {
		c.record(LookupUpstreamError)
		c.log.Warn("fetch friend list", zap.String("subject_id", subjectID), zap.Error(err))
		return []string{}
	}
	if ids == nil {
		ids = []string{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if st != (version{epoch: c.epoch, gen: c.gens[subjectID]}) {
		c.log.Debug("discarding superseded friend list", zap.String("subject_id", subjectID))
		return ids
	}

	list := models.FriendList{FriendIDs: ids, FetchedAt: c.nowFn()}
	if err := c.store.PutFriends(ctx, subjectID, list); err != nil {
		c.record(LookupStoreError)
		c.log.Warn("store friend list", zap.String("subject_id", subjectID), zap.Error(err))
	}
	return ids
}

func (c *Cache) record(result string) {
	if c.onLookup != nil {
		c.onLookup(result)
	}
}
