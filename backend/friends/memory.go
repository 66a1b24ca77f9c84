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

	"github.com/efchatnet/efrelay/backend/models"
)

// MemoryStore is the process-local friend-list store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]models.FriendList
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]models.FriendList)}
}

func (s *MemoryStore) GetFriends(_ context.Context, subjectID string) (models.FriendList, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.entries[subjectID]
	if !ok {
		return models.FriendList{}, false, nil
	}
	list.FriendIDs = append([]string(nil), list.FriendIDs...)
	return list, true, nil
}

func (s *MemoryStore) PutFriends(_ context.Context, subjectID string, list models.FriendList) error {
	list.FriendIDs = append([]string(nil), list.FriendIDs...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[subjectID] = list
	return nil
}

func (s *MemoryStore) DeleteFriends(_ context.Context, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, subjectID)
	return nil
}

func (s *MemoryStore) ClearFriends(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]models.FriendList)
	return nil
}

// Len reports the number of cached subjects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
