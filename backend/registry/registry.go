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

// Package registry tracks which subjects currently hold a live connection.
package registry

import (
	"errors"
	"sync"

	"github.com/efchatnet/efrelay/backend/models"
)

var (
	// ErrNotOnline is returned by Send when the target has no registered handle.
	ErrNotOnline = errors.New("subject is not online")
	// ErrPushDropped is returned by Send when the target's outbound buffer refused the frame.
	ErrPushDropped = errors.New("push dropped")
)

// Handle is the send side of one live connection.
type Handle interface {
	// Push enqueues f without blocking and reports whether it was accepted.
	Push(f models.Outbound) bool
	// Credential is the bearer token the connection authenticated with.
	Credential() string
}

// Registry maps subject ids to their single active handle.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]Handle
}

func New() *Registry {
	return &Registry{handles: make(map[string]Handle)}
}

// Register stores h for subjectID and returns the handle it replaced, if any.
// The replaced handle is not closed here; its owning session does that.
func (r *Registry) Register(subjectID string, h Handle) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.handles[subjectID]
	r.handles[subjectID] = h
	return prev
}

// Unregister removes subjectID's entry. Absent ids are ignored.
func (r *Registry) Unregister(subjectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, subjectID)
}

// UnregisterHandle removes subjectID's entry only while it still points at h,
// so a closing connection never evicts the one that replaced it.
func (r *Registry) UnregisterHandle(subjectID string, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.handles[subjectID]; ok && cur == h {
		delete(r.handles, subjectID)
		return true
	}
	return false
}

func (r *Registry) IsOnline(subjectID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handles[subjectID]
	return ok
}

func (r *Registry) Get(subjectID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[subjectID]
	return h, ok
}

// Send pushes f to subjectID's handle. Lookup and enqueue happen under the
// same read lock, so a concurrent Unregister is observed either before or
// after the push, never in between.
func (r *Registry) Send(subjectID string, f models.Outbound) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handles[subjectID]
	if !ok {
		return ErrNotOnline
	}
	if !h.Push(f) {
		return ErrPushDropped
	}
	return nil
}

// Online returns the members of ids that are currently registered, in input order.
func (r *Registry) Online(ids []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	online := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := r.handles[id]; ok {
			online = append(online, id)
		}
	}
	return online
}

// Count returns the number of online subjects.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
