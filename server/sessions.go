// MIT License
//
// Copyright (c) 2025 DaggerTech
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package server

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// garbageTimer defines how often disconnected sessions are swept, and
// garbageEpoch how long a disconnected session is kept for inspection.
const (
	garbageTimer = time.Second * 30
	garbageEpoch = time.Minute * 2
)

// Session describes one client known to the embedded broker.
type Session struct {
	ID          string    `json:"id"`
	Remote      string    `json:"remote"`
	Listener    string    `json:"listener"`
	Username    string    `json:"username,omitempty"`
	Connected   bool      `json:"connected"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`
}

// Sessions is a thread-safe registry of broker sessions keyed by client ID.
// Client IDs are compared case-insensitively.
type Sessions struct {
	// Map of lowercase client ID to Session
	sessions map[string]*Session
	// Protects concurrent access
	mutex sync.Mutex
}

// NewSessions creates an empty registry.
func NewSessions() *Sessions {
	return &Sessions{
		sessions: make(map[string]*Session),
	}
}

// Add registers a connected session. An existing session with the same
// client ID is replaced, which is what the broker does with a takeover.
//
// Parameters:
//   - s: The session to register
func (r *Sessions) Add(s Session) {
	now := time.Now()
	s.Connected = true
	if s.ConnectedAt.IsZero() {
		s.ConnectedAt = now
	}
	s.LastSeen = now
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.sessions[strings.ToLower(s.ID)] = &s
}

// Disconnect marks a session as gone. It is kept until the next sweep
// after garbageEpoch so recent disconnects stay visible.
//
// Parameters:
//   - id: The client ID (case-insensitive)
//
// Returns:
//   - bool: True if the session was known
func (r *Sessions) Disconnect(id string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	s, exists := r.sessions[strings.ToLower(id)]
	if !exists {
		return false
	}
	s.Connected = false
	s.LastSeen = time.Now()
	return true
}

// DisconnectRemote marks a session as gone only if it is still the
// connection from remote. A client that lost its ID to a takeover reports
// its disconnect after the new session is registered, and must not mark
// the new session as gone.
//
// Returns:
//   - bool: True if the session was known and belonged to remote
func (r *Sessions) DisconnectRemote(id, remote string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	s, exists := r.sessions[strings.ToLower(id)]
	if !exists || s.Remote != remote {
		return false
	}
	s.Connected = false
	s.LastSeen = time.Now()
	return true
}

// Remove deletes a session. It is a no-op if the session does not exist.
func (r *Sessions) Remove(id string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.sessions, strings.ToLower(id))
}

// Get returns a copy of the session with the given client ID.
func (r *Sessions) Get(id string) (Session, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	s, exists := r.sessions[strings.ToLower(id)]
	if !exists {
		return Session{}, false
	}
	return *s, true
}

// List returns copies of every session ordered by client ID.
func (r *Sessions) List() []Session {
	r.mutex.Lock()
	list := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, *s)
	}
	r.mutex.Unlock()
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list
}

// Connected returns the number of sessions currently connected.
func (r *Sessions) Connected() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.Connected {
			n++
		}
	}
	return n
}

// getExpired returns the IDs of sessions disconnected for longer than d.
func (r *Sessions) getExpired(d time.Duration) []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	epoch := time.Now().Add(-d)
	ids := make([]string, 0, len(r.sessions))
	for id, s := range r.sessions {
		if !s.Connected && epoch.After(s.LastSeen) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Sweep removes sessions that disconnected more than d ago and returns how
// many were removed.
func (r *Sessions) Sweep(d time.Duration) int {
	ids := r.getExpired(d)
	for _, id := range ids {
		r.Remove(id)
	}
	return len(ids)
}

// collectGarbage sweeps every garbageTimer until done is closed.
func (r *Sessions) collectGarbage(done <-chan struct{}, log logrus.FieldLogger) {
	ticker := time.NewTicker(garbageTimer)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if n := r.Sweep(garbageEpoch); n > 0 {
				log.WithField("sessions", n).Debug("garbage collection removed sessions")
			}
		}
	}
}
