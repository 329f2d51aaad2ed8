package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/enterprisehub/alertstream/internal/alert"
)

// fakeSocket records frames written to it in place of a live WebSocket.
type fakeSocket struct {
	mu         sync.Mutex
	frames     [][]byte
	failWrites bool
	closed     bool
}

func (f *fakeSocket) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errors.New("write: broken pipe")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSocket) frameTypes(t *testing.T) []string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var types []string
	for _, raw := range f.frames {
		var env map[string]any
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("undecodable frame %q: %v", raw, err)
		}
		s, _ := env["type"].(string)
		types = append(types, s)
	}
	return types
}

func (f *fakeSocket) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newTestManager() *Manager {
	return NewManager(ManagerConfig{HistoryLimit: 5}, nil)
}

func TestFilters_Matches(t *testing.T) {
	critical := alert.NewAlert(alert.TypeViolationDetected, alert.SeverityCritical, "t", "m")
	critical.ModelID = "model-1"
	critical.Regulation = "GDPR"

	tests := []struct {
		name   string
		update FilterUpdate
		want   bool
	}{
		{"no filters matches everything", FilterUpdate{}, true},
		{"matching severity", FilterUpdate{Severities: []string{"critical"}}, true},
		{"severity mismatch", FilterUpdate{Severities: []string{"high"}}, false},
		{"severity mismatch overrides matching type", FilterUpdate{
			AlertTypes: []string{"violation_detected"},
			Severities: []string{"high"},
		}, false},
		{"all axes match", FilterUpdate{
			AlertTypes:  []string{"violation_detected"},
			ModelIDs:    []string{"model-1"},
			Severities:  []string{"critical"},
			Regulations: []string{"GDPR"},
		}, true},
		{"model mismatch", FilterUpdate{ModelIDs: []string{"model-2"}}, false},
		{"type mismatch", FilterUpdate{AlertTypes: []string{"score_changed"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFilters()
			f.add(tt.update)
			if got := f.Matches(critical); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilters_ModelAxisSkippedWhenAlertHasNoModel(t *testing.T) {
	a := alert.NewAlert(alert.TypeCertificationExpiring, alert.SeverityHigh, "t", "m")

	f := NewFilters()
	f.add(FilterUpdate{ModelIDs: []string{"model-1"}, Severities: []string{"high"}})
	if !f.Matches(a) {
		t.Error("alert without model id should skip the model filter axis")
	}
}

func TestManager_ReconnectEvictsOldConnection(t *testing.T) {
	m := newTestManager()
	first := &fakeSocket{}
	second := &fakeSocket{}

	old := m.Connect(first, "dashboard-1")
	m.Subscribe("dashboard-1", FilterUpdate{Severities: []string{"critical"}})
	m.Connect(second, "dashboard-1")

	if got := m.ConnectionCount(); got != 1 {
		t.Errorf("ConnectionCount() = %d, want 1", got)
	}

	// The evicted connection's read loop reports its death late; that
	// must not tear down the replacement registered under the same id.
	m.drop(old)
	if got := m.ConnectionCount(); got != 1 {
		t.Errorf("ConnectionCount() after late disconnect = %d, want 1", got)
	}
	if !first.isClosed() {
		t.Error("old connection not closed on reconnect")
	}
	if second.isClosed() {
		t.Error("new connection unexpectedly closed")
	}

	// The replacement starts with fresh filters.
	info, ok := m.GetConnectionInfo("dashboard-1")
	if !ok {
		t.Fatal("connection info missing after reconnect")
	}
	filters := info["filters"].(map[string][]string)
	if len(filters["severities"]) != 0 {
		t.Errorf("reconnected client inherited filters %v", filters["severities"])
	}
}

func TestManager_BroadcastRespectsSeverityFilters(t *testing.T) {
	m := newTestManager()
	all1, all2, highOnly := &fakeSocket{}, &fakeSocket{}, &fakeSocket{}

	m.Connect(all1, "c1")
	m.Connect(all2, "c2")
	m.Connect(highOnly, "c3")
	m.Subscribe("c3", FilterUpdate{Severities: []string{"high"}})

	a := alert.NewAlert(alert.TypeViolationDetected, alert.SeverityCritical, "Violation", "details")
	if got := m.BroadcastAlert(a); got != 2 {
		t.Errorf("BroadcastAlert() delivered to %d clients, want 2", got)
	}

	for _, ft := range highOnly.frameTypes(t) {
		if ft == "alert" {
			t.Error("filtered client received a non-matching alert")
		}
	}
}

func TestManager_BroadcastEvictsFailedClient(t *testing.T) {
	m := newTestManager()
	healthy := &fakeSocket{}
	broken := &fakeSocket{failWrites: true}

	m.Connect(healthy, "ok")
	m.Connect(broken, "dead")

	a := alert.NewAlert(alert.TypeScoreChanged, alert.SeverityMedium, "Score", "details")
	if got := m.BroadcastAlert(a); got != 1 {
		t.Errorf("BroadcastAlert() = %d, want 1", got)
	}
	if got := m.ConnectionCount(); got != 1 {
		t.Errorf("ConnectionCount() after eviction = %d, want 1", got)
	}
	if _, ok := m.GetConnectionInfo("dead"); ok {
		t.Error("broken client still registered after failed send")
	}
}

func TestManager_HistoryRingDropsOldest(t *testing.T) {
	m := newTestManager() // HistoryLimit: 5

	var last *alert.Alert
	for i := 0; i < 7; i++ {
		last = alert.NewAlert(alert.TypeScoreChanged, alert.SeverityLow, "Score", "details")
		m.BroadcastAlert(last)
	}

	hist := m.History(0)
	if len(hist) != 5 {
		t.Fatalf("History() returned %d alerts, want 5", len(hist))
	}
	if hist[len(hist)-1].ID != last.ID {
		t.Error("History() does not end with the most recent alert")
	}

	if got := m.History(2); len(got) != 2 {
		t.Errorf("History(2) returned %d alerts, want 2", len(got))
	}
}

func TestManager_SendToClient(t *testing.T) {
	m := newTestManager()
	sock := &fakeSocket{}
	m.Connect(sock, "c1")

	a := alert.NewAlert(alert.TypeViolationDetected, alert.SeverityHigh, "Violation", "details")
	if !m.SendToClient("c1", a) {
		t.Error("SendToClient() = false for a live client")
	}
	if m.SendToClient("ghost", a) {
		t.Error("SendToClient() = true for an unknown client")
	}
}

func TestManager_HandleClientMessages(t *testing.T) {
	m := newTestManager()
	sock := &fakeSocket{}
	c := m.Connect(sock, "c1")

	m.handleClientMessage(c, clientMessage{Action: "ping"})
	m.handleClientMessage(c, clientMessage{Action: "status"})
	m.handleClientMessage(c, clientMessage{
		Action:       "subscribe",
		FilterUpdate: FilterUpdate{Severities: []string{"critical"}},
	})
	m.handleClientMessage(c, clientMessage{Action: "history", Limit: 10})
	m.handleClientMessage(c, clientMessage{Action: "dance"})

	want := []string{
		"connection_established",
		"pong",
		"status",
		"subscription_updated",
		"history",
		"error",
	}
	got := sock.frameTypes(t)
	if len(got) != len(want) {
		t.Fatalf("frame types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestManager_StopClosesAllConnections(t *testing.T) {
	m := newTestManager()
	s1, s2 := &fakeSocket{}, &fakeSocket{}
	m.Connect(s1, "c1")
	m.Connect(s2, "c2")

	m.Stop()

	if got := m.ConnectionCount(); got != 0 {
		t.Errorf("ConnectionCount() after Stop = %d, want 0", got)
	}
	if !s1.isClosed() || !s2.isClosed() {
		t.Error("Stop() left connections open")
	}
}
