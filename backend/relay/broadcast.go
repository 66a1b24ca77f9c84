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

package relay

import (
	"errors"

	"go.uber.org/zap"

	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/registry"
)

// Push outcomes.
const (
	pushDelivered = "delivered"
	pushOffline   = "offline"
	pushDropped   = "dropped"
)

// Broadcaster delivers presence and chat events to whichever subjects are
// online. Events for offline subjects are dropped; there is no queue.
type Broadcaster struct {
	registry *registry.Registry
	log      *zap.Logger
	metrics  *Metrics
}

func NewBroadcaster(reg *registry.Registry, log *zap.Logger, metrics *Metrics) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{registry: reg, log: log, metrics: metrics}
}

// PushIfOnline enqueues f for subjectID and reports whether it was accepted.
// It never blocks on the target connection.
func (b *Broadcaster) PushIfOnline(subjectID string, f models.Outbound) bool {
	err := b.registry.Send(subjectID, f)
	switch {
	case err == nil:
		b.metrics.recordPush(pushDelivered)
		return true
	case errors.Is(err, registry.ErrNotOnline):
		b.metrics.recordPush(pushOffline)
		b.log.Debug("push target offline",
			zap.String("target_id", subjectID),
			zap.String("type", string(f.FrameType())))
	default:
		b.metrics.recordPush(pushDropped)
		b.log.Warn("push dropped",
			zap.String("target_id", subjectID),
			zap.String("type", string(f.FrameType())),
			zap.Error(err))
	}
	return false
}

// PushOnlineFriends sends subjectID the online subset of friendIDs.
func (b *Broadcaster) PushOnlineFriends(subjectID string, friendIDs []string) bool {
	return b.PushIfOnline(subjectID, models.NewFriendsList(b.registry.Online(friendIDs)))
}
