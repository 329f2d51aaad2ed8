package metrics

import (
	"sync"
	"testing"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector("alertstream", nil)

	c.RecordBroadcast()
	c.RecordBroadcast()
	c.RecordPublished()
	c.RecordPublishFailed()
	c.RecordDelivered()
	c.RecordDeliveryFailed()
	c.RecordRetry()
	c.RecordReconnection()

	snap := c.GetSnapshot()

	if snap.AlertsBroadcast != 2 {
		t.Errorf("AlertsBroadcast = %d, want 2", snap.AlertsBroadcast)
	}
	if snap.EventsPublished != 1 {
		t.Errorf("EventsPublished = %d, want 1", snap.EventsPublished)
	}
	if snap.EventsFailed != 1 {
		t.Errorf("EventsFailed = %d, want 1", snap.EventsFailed)
	}
	if snap.NotificationsDelivered != 1 {
		t.Errorf("NotificationsDelivered = %d, want 1", snap.NotificationsDelivered)
	}
	if snap.NotificationsFailed != 1 {
		t.Errorf("NotificationsFailed = %d, want 1", snap.NotificationsFailed)
	}
	if snap.SendsRetried != 1 {
		t.Errorf("SendsRetried = %d, want 1", snap.SendsRetried)
	}
	if snap.Reconnections != 1 {
		t.Errorf("Reconnections = %d, want 1", snap.Reconnections)
	}
	if snap.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", snap.Status)
	}
}

func TestCollector_CustomCounters(t *testing.T) {
	c := NewCollector("alertstream", nil)

	c.IncrementCustom("handler_errors")
	c.AddCustom("handler_errors", 2)
	c.IncrementCustom("decode_errors")

	snap := c.GetSnapshot()
	if snap.CustomCounters["handler_errors"] != 3 {
		t.Errorf("handler_errors = %d, want 3", snap.CustomCounters["handler_errors"])
	}
	if snap.CustomCounters["decode_errors"] != 1 {
		t.Errorf("decode_errors = %d, want 1", snap.CustomCounters["decode_errors"])
	}
}

func TestCollector_CustomCountersConcurrent(t *testing.T) {
	c := NewCollector("alertstream", nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.IncrementCustom("shared")
			}
		}()
	}
	wg.Wait()

	if got := c.GetSnapshot().CustomCounters["shared"]; got != 1000 {
		t.Errorf("shared counter = %d, want 1000", got)
	}
}
