package ws

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/enterprisehub/alertstream/internal/alert"
	"github.com/enterprisehub/alertstream/internal/metrics"
)

const (
	// DefaultHeartbeatInterval is how often the heartbeat loop pings
	// every connected client.
	DefaultHeartbeatInterval = 30 * time.Second
	// DefaultHistoryLimit bounds the in-memory alert history ring.
	DefaultHistoryLimit = 100
)

// ManagerConfig holds connection manager configuration.
type ManagerConfig struct {
	HeartbeatInterval time.Duration
	HistoryLimit      int
}

// Manager holds the set of live client connections and broadcasts
// matching alerts to them. One slow or broken client never blocks the
// broadcast for others: sends happen outside the connection map lock
// and a failed send evicts only that client.
type Manager struct {
	cfg       ManagerConfig
	collector *metrics.Collector

	mu      sync.Mutex
	conns   map[string]*ClientConnection
	history []*alert.Alert

	alertsBroadcast atomic.Uint64

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewManager creates a connection manager. The collector may be nil.
func NewManager(cfg ManagerConfig, collector *metrics.Collector) *Manager {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	return &Manager{
		cfg:       cfg,
		collector: collector,
		conns:     map[string]*ClientConnection{},
	}
}

// Connect registers a new client connection. A new connection for an
// existing client id evicts the old one: last writer wins, so a client
// reconnect never leaves a stale entry behind.
func (m *Manager) Connect(sock socket, clientID string) *ClientConnection {
	c := newClientConnection(clientID, sock)

	m.mu.Lock()
	old := m.conns[clientID]
	m.conns[clientID] = c
	total := len(m.conns)
	m.mu.Unlock()

	if old != nil {
		old.close()
		slog.Info("Evicted stale connection for reconnecting client", "client_id", clientID)
	}

	if err := c.send(map[string]any{
		"type":               "connection_established",
		"client_id":          clientID,
		"heartbeat_interval": m.cfg.HeartbeatInterval.Seconds(),
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		slog.Warn("Failed to send welcome envelope", "client_id", clientID, "error", err)
	}

	slog.Info("Client connected", "client_id", clientID, "total_connections", total)
	return c
}

// Subscribe unions the update into the client's filter sets and echoes
// the resulting filters back as confirmation.
func (m *Manager) Subscribe(clientID string, u FilterUpdate) bool {
	m.mu.Lock()
	c, ok := m.conns[clientID]
	var filters map[string][]string
	if ok {
		c.Filters.add(u)
		filters = map[string][]string{
			"alert_types": setToList(c.Filters.AlertTypes),
			"model_ids":   setToList(c.Filters.ModelIDs),
			"severities":  setToList(c.Filters.Severities),
			"regulations": setToList(c.Filters.Regulations),
		}
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	if err := c.send(map[string]any{
		"type":      "subscription_updated",
		"client_id": clientID,
		"filters":   filters,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		m.drop(c)
		return false
	}
	return true
}

// Unsubscribe removes the update's values from the client's filter sets.
func (m *Manager) Unsubscribe(clientID string, u FilterUpdate) bool {
	m.mu.Lock()
	c, ok := m.conns[clientID]
	if ok {
		c.Filters.remove(u)
	}
	m.mu.Unlock()
	return ok
}

// BroadcastAlert records the alert in the history ring and sends it to
// every connected client whose filters match. Returns the number of
// clients that received it.
func (m *Manager) BroadcastAlert(a *alert.Alert) int {
	m.mu.Lock()
	m.history = append(m.history, a)
	if len(m.history) > m.cfg.HistoryLimit {
		m.history = m.history[len(m.history)-m.cfg.HistoryLimit:]
	}
	targets := make([]*ClientConnection, 0, len(m.conns))
	for _, c := range m.conns {
		if c.IsActive() && c.Filters.Matches(a) {
			targets = append(targets, c)
		}
	}
	m.mu.Unlock()

	envelope := map[string]any{
		"type":  "alert",
		"alert": a,
	}

	delivered := 0
	for _, c := range targets {
		if err := c.send(envelope); err != nil {
			slog.Warn("Broadcast send failed, evicting client", "client_id", c.ID, "error", err)
			m.drop(c)
			continue
		}
		atomic.AddUint64(&c.Received, 1)
		delivered++
	}

	m.alertsBroadcast.Add(1)
	if m.collector != nil {
		m.collector.RecordBroadcast()
	}
	slog.Debug("Alert broadcast",
		"alert_id", a.ID,
		"severity", a.Severity,
		"delivered", delivered,
		"candidates", len(targets),
	)
	return delivered
}

// SendToClient delivers one alert to a single client. A send failure
// evicts the client, same as during broadcast.
func (m *Manager) SendToClient(clientID string, a *alert.Alert) bool {
	m.mu.Lock()
	c, ok := m.conns[clientID]
	m.mu.Unlock()
	if !ok || !c.IsActive() {
		return false
	}

	if err := c.send(map[string]any{"type": "alert", "alert": a}); err != nil {
		slog.Warn("Point-to-point send failed, evicting client", "client_id", clientID, "error", err)
		m.drop(c)
		return false
	}
	atomic.AddUint64(&c.Received, 1)
	return true
}

// Disconnect removes and closes the connection currently registered for
// the given client id.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	c := m.conns[clientID]
	m.mu.Unlock()
	if c != nil {
		m.drop(c)
	}
}

// drop closes the connection and removes its map entry, but only when
// the entry still refers to this exact connection. A reconnecting
// client replaces its map entry before the old read loop notices the
// closed socket; matching on identity keeps that late disconnect from
// tearing down the replacement.
func (m *Manager) drop(c *ClientConnection) {
	m.mu.Lock()
	removed := m.conns[c.ID] == c
	if removed {
		delete(m.conns, c.ID)
	}
	m.mu.Unlock()

	c.close()
	if removed {
		slog.Info("Client disconnected", "client_id", c.ID)
	}
}

// Start launches the heartbeat loop. It runs until Stop or context
// cancellation.
func (m *Manager) Start(ctx context.Context) {
	if !m.running.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.heartbeatLoop(ctx)
}

func (m *Manager) heartbeatLoop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sendHeartbeats()
		}
	}
}

func (m *Manager) sendHeartbeats() {
	m.mu.Lock()
	targets := make([]*ClientConnection, 0, len(m.conns))
	for _, c := range m.conns {
		targets = append(targets, c)
	}
	m.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	envelope := map[string]any{
		"type":               "heartbeat",
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
		"active_connections": len(targets),
	}
	for _, c := range targets {
		if err := c.send(envelope); err != nil {
			slog.Info("Heartbeat failed, pruning dead connection", "client_id", c.ID)
			m.drop(c)
		}
	}
}

// Stop cancels the heartbeat loop and force-closes every connection
// with a shutdown reason.
func (m *Manager) Stop() {
	if m.running.CompareAndSwap(true, false) {
		m.cancel()
		<-m.done
	}

	m.mu.Lock()
	conns := m.conns
	m.conns = map[string]*ClientConnection{}
	m.mu.Unlock()

	closeFrame := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range conns {
		c.writeMu.Lock()
		_ = c.sock.WriteMessage(websocket.CloseMessage, closeFrame)
		c.writeMu.Unlock()
		c.close()
	}
	slog.Info("Connection manager stopped", "closed_connections", len(conns))
}

// Touch records a heartbeat/ping from the client.
func (m *Manager) Touch(clientID string) {
	m.mu.Lock()
	if c, ok := m.conns[clientID]; ok {
		c.LastHeartbeat = time.Now().UTC()
	}
	m.mu.Unlock()
}

// History returns the most recent alerts, oldest first, up to limit.
func (m *Manager) History(limit int) []*alert.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.history) {
		limit = len(m.history)
	}
	out := make([]*alert.Alert, limit)
	copy(out, m.history[len(m.history)-limit:])
	return out
}

// ConnectionCount returns the number of registered connections.
func (m *Manager) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// GetConnectionInfo returns a status summary for one client.
func (m *Manager) GetConnectionInfo(clientID string) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[clientID]
	if !ok {
		return nil, false
	}
	return c.Info(), true
}

// Connections returns status summaries for every client.
func (m *Manager) Connections() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]any, 0, len(m.conns))
	for _, c := range m.conns {
		out = append(out, c.Info())
	}
	return out
}

// Stats returns manager counters for external monitoring.
func (m *Manager) Stats() map[string]any {
	m.mu.Lock()
	active := len(m.conns)
	historySize := len(m.history)
	m.mu.Unlock()
	return map[string]any{
		"active_connections": active,
		"history_size":       historySize,
		"alerts_broadcast":   m.alertsBroadcast.Load(),
	}
}
