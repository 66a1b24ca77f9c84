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

//go:generate mockgen -destination=mock/mock_source.go -package=mock . Source

package friends

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrUpstreamUnavailable is returned when the friendship service cannot
// produce a friend list.
var ErrUpstreamUnavailable = errors.New("friendship service unavailable")

// Source fetches the friend ids of the subject that owns credential.
type Source interface {
	Friends(ctx context.Context, credential string) ([]string, error)
}

// Client talks to the friendship service over HTTP.
type Client struct {
	http *resty.Client
}

type friendship struct {
	FriendID string `json:"friendId"`
}

// NewClient builds a client for baseURL, e.g. http://localhost:8082/api/friendships.
func NewClient(baseURL string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &Client{http: c}
}

// Friends calls GET {baseURL}/friends with the caller's bearer credential.
func (c *Client) Friends(ctx context.Context, credential string) ([]string, error) {
	var out []friendship
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(credential).
		SetResult(&out).
		Get("/friends")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode())
	}

	ids := make([]string, 0, len(out))
	for _, f := range out {
		if f.FriendID != "" {
			ids = append(ids, f.FriendID)
		}
	}
	return ids, nil
}
