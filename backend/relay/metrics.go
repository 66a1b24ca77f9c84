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
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the relay's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	activeSessions    prometheus.Gauge
	sessionTotal      prometheus.Counter
	handshakeFailures prometheus.Counter
	frames            *prometheus.CounterVec
	frameErrors       *prometheus.CounterVec
	frameLatency      *prometheus.HistogramVec
	pushes            *prometheus.CounterVec
	friendLookups     *prometheus.CounterVec
	persistErrors     *prometheus.CounterVec
}

// NewMetrics registers the relay collectors with reg, or the default
// registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_sessions_active",
			Help: "Current number of authenticated websocket sessions.",
		}),
		sessionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_sessions_total",
			Help: "Total number of sessions accepted since start.",
		}),
		handshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_handshake_failures_total",
			Help: "Connections closed during the handshake for a bad or missing credential.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_frames_total",
			Help: "Inbound frames dispatched, by type.",
		}, []string{"type"}),
		frameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_frame_errors_total",
			Help: "Inbound frames ignored, by reason.",
		}, []string{"code"}),
		frameLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_frame_latency_seconds",
			Help:    "Time spent handling one inbound frame.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"type"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_pushes_total",
			Help: "Pushes to other sessions, by outcome.",
		}, []string{"result"}),
		friendLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_friend_cache_lookups_total",
			Help: "Friend directory lookups, by result.",
		}, []string{"result"}),
		persistErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_persistence_errors_total",
			Help: "Message store failures, by operation.",
		}, []string{"op"}),
	}

	reg.MustRegister(
		m.activeSessions,
		m.sessionTotal,
		m.handshakeFailures,
		m.frames,
		m.frameErrors,
		m.frameLatency,
		m.pushes,
		m.friendLookups,
		m.persistErrors,
	)
	return m
}

func (m *Metrics) incSession() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
	m.sessionTotal.Inc()
}

func (m *Metrics) decSession() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Metrics) recordHandshakeFailure() {
	if m == nil {
		return
	}
	m.handshakeFailures.Inc()
}

func (m *Metrics) recordFrame(frameType string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(frameType).Inc()
}

func (m *Metrics) recordFrameError(code string) {
	if m == nil {
		return
	}
	m.frameErrors.WithLabelValues(code).Inc()
}

func (m *Metrics) observeLatency(frameType string, dur time.Duration) {
	if m == nil || frameType == "" {
		return
	}
	m.frameLatency.WithLabelValues(frameType).Observe(dur.Seconds())
}

func (m *Metrics) recordPush(result string) {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues(result).Inc()
}

func (m *Metrics) recordPersistenceError(op string) {
	if m == nil {
		return
	}
	m.persistErrors.WithLabelValues(op).Inc()
}

// RecordFriendLookup counts one friend directory lookup. It matches the
// friends.Options OnLookup hook.
func (m *Metrics) RecordFriendLookup(result string) {
	if m == nil {
		return
	}
	if result == "" {
		result = "unknown"
	}
	m.friendLookups.WithLabelValues(result).Inc()
}
