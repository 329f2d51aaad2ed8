// Package ws implements the WebSocket fan-out layer: client connection
// tracking, per-client subscription filters, alert broadcast, and the
// heartbeat loop that prunes dead connections.
package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/enterprisehub/alertstream/internal/alert"
)

// socket is the write side of a client transport. *websocket.Conn
// satisfies it; tests use an in-memory fake.
type socket interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Filters holds one subscription set per filter axis. An empty set on an
// axis means "no restriction on this axis".
type Filters struct {
	AlertTypes  map[string]struct{}
	ModelIDs    map[string]struct{}
	Severities  map[string]struct{}
	Regulations map[string]struct{}
}

// NewFilters returns empty filter sets.
func NewFilters() Filters {
	return Filters{
		AlertTypes:  map[string]struct{}{},
		ModelIDs:    map[string]struct{}{},
		Severities:  map[string]struct{}{},
		Regulations: map[string]struct{}{},
	}
}

// FilterUpdate carries the filter values of one subscribe or unsubscribe
// request, as lists straight off the wire.
type FilterUpdate struct {
	AlertTypes  []string `json:"alert_types,omitempty"`
	ModelIDs    []string `json:"model_ids,omitempty"`
	Severities  []string `json:"severities,omitempty"`
	Regulations []string `json:"regulations,omitempty"`
}

func (f *Filters) add(u FilterUpdate) {
	for _, v := range u.AlertTypes {
		f.AlertTypes[v] = struct{}{}
	}
	for _, v := range u.ModelIDs {
		f.ModelIDs[v] = struct{}{}
	}
	for _, v := range u.Severities {
		f.Severities[v] = struct{}{}
	}
	for _, v := range u.Regulations {
		f.Regulations[v] = struct{}{}
	}
}

func (f *Filters) remove(u FilterUpdate) {
	for _, v := range u.AlertTypes {
		delete(f.AlertTypes, v)
	}
	for _, v := range u.ModelIDs {
		delete(f.ModelIDs, v)
	}
	for _, v := range u.Severities {
		delete(f.Severities, v)
	}
	for _, v := range u.Regulations {
		delete(f.Regulations, v)
	}
}

func (f *Filters) empty() bool {
	return len(f.AlertTypes) == 0 && len(f.ModelIDs) == 0 &&
		len(f.Severities) == 0 && len(f.Regulations) == 0
}

// Matches reports whether the alert passes these filters. Empty filters
// on every axis match everything. Otherwise each non-empty axis must
// contain the alert's corresponding attribute; an axis the alert has no
// value for is skipped.
func (f *Filters) Matches(a *alert.Alert) bool {
	if f.empty() {
		return true
	}
	if len(f.AlertTypes) > 0 {
		if _, ok := f.AlertTypes[string(a.Type)]; !ok {
			return false
		}
	}
	if len(f.Severities) > 0 {
		if _, ok := f.Severities[string(a.Severity)]; !ok {
			return false
		}
	}
	if len(f.ModelIDs) > 0 && a.ModelID != "" {
		if _, ok := f.ModelIDs[a.ModelID]; !ok {
			return false
		}
	}
	if len(f.Regulations) > 0 && a.Regulation != "" {
		if _, ok := f.Regulations[a.Regulation]; !ok {
			return false
		}
	}
	return true
}

func setToList(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	return out
}

// ClientConnection tracks one connected dashboard client.
type ClientConnection struct {
	ID            string
	ConnectedAt   time.Time
	LastHeartbeat time.Time
	Filters       Filters
	Received      uint64

	active  atomic.Bool
	sock    socket
	writeMu sync.Mutex
}

func newClientConnection(id string, sock socket) *ClientConnection {
	now := time.Now().UTC()
	c := &ClientConnection{
		ID:            id,
		ConnectedAt:   now,
		LastHeartbeat: now,
		Filters:       NewFilters(),
		sock:          sock,
	}
	c.active.Store(true)
	return c
}

// IsActive reports whether the connection has not been closed.
func (c *ClientConnection) IsActive() bool { return c.active.Load() }

// send serializes and writes one envelope. The per-connection mutex
// keeps concurrent writers (broadcast, heartbeat, read-loop replies)
// from interleaving frames.
func (c *ClientConnection) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sock.WriteMessage(websocket.TextMessage, data)
}

func (c *ClientConnection) close() {
	c.active.Store(false)
	_ = c.sock.Close()
}

// Info summarizes the connection for status queries.
func (c *ClientConnection) Info() map[string]any {
	return map[string]any{
		"client_id":      c.ID,
		"connected_at":   c.ConnectedAt.Format(time.RFC3339),
		"last_heartbeat": c.LastHeartbeat.Format(time.RFC3339),
		"received_count": atomic.LoadUint64(&c.Received),
		"active":         c.IsActive(),
		"filters": map[string][]string{
			"alert_types": setToList(c.Filters.AlertTypes),
			"model_ids":   setToList(c.Filters.ModelIDs),
			"severities":  setToList(c.Filters.Severities),
			"regulations": setToList(c.Filters.Regulations),
		},
	}
}
