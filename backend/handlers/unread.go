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

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/efchatnet/efrelay/backend/middleware"
	"github.com/efchatnet/efrelay/backend/storage"
)

type UnreadHandler struct {
	store storage.MessageStore
	log   *zap.Logger
}

func NewUnreadHandler(store storage.MessageStore, log *zap.Logger) *UnreadHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &UnreadHandler{store: store, log: log}
}

// GetUnreadCounts returns the caller's unread messages grouped by sender.
func (h *UnreadHandler) GetUnreadCounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	counts, err := h.store.UnreadCounts(r.Context(), userID)
	if err != nil {
		h.log.Error("load unread counts", zap.String("user_id", userID), zap.Error(err))
		http.Error(w, "Failed to retrieve unread messages", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, counts)
}

// ResetUnread marks every message from senderId to the caller as read.
func (h *UnreadHandler) ResetUnread(w http.ResponseWriter, r *http.Request) {
	receiverID, ok := middleware.GetUserID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		SenderID string `json:"senderId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.SenderID = strings.TrimSpace(req.SenderID)
	if req.SenderID == "" {
		http.Error(w, "senderId is required", http.StatusBadRequest)
		return
	}

	updated, err := h.store.MarkRead(r.Context(), req.SenderID, receiverID)
	if err != nil {
		h.log.Error("reset unread messages",
			zap.String("sender_id", req.SenderID),
			zap.String("receiver_id", receiverID),
			zap.Error(err))
		http.Error(w, "Failed to reset unread messages", http.StatusInternalServerError)
		return
	}
	h.log.Debug("reset unread messages",
		zap.String("sender_id", req.SenderID),
		zap.String("receiver_id", receiverID),
		zap.Int64("updated", updated))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "marked_read",
		"updated": updated,
	})
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health answers 200 while the database responds, 503 otherwise.
func Health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
