package presence

import (
	"testing"
	"time"
)

func TestConnect_BasicTracking(t *testing.T) {
	tr := New()

	tr.Connect(Client{ID: "c-1", Remote: "10.0.0.5:4312", Filters: []string{"order-*"}})
	tr.RecordEvent("c-1", "order-update", 7)

	roster := tr.Roster(false)
	if len(roster) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(roster))
	}

	e := roster[0]
	if e.Client != "c-1" {
		t.Errorf("expected client c-1, got %s", e.Client)
	}
	if e.Remote != "10.0.0.5:4312" {
		t.Errorf("expected remote 10.0.0.5:4312, got %s", e.Remote)
	}
	if len(e.Filters) != 1 || e.Filters[0] != "order-*" {
		t.Errorf("expected filters [order-*], got %v", e.Filters)
	}
	if e.LastEvent != "order-update" || e.LastEventID != 7 {
		t.Errorf("expected last event order-update/7, got %s/%d", e.LastEvent, e.LastEventID)
	}
	if e.EventCount != 1 {
		t.Errorf("expected event_count 1, got %d", e.EventCount)
	}
	if !e.Connected {
		t.Error("expected connected=true")
	}
}

func TestRecordEvent_KeepsLastIDForUnnumberedEvents(t *testing.T) {
	tr := New()
	tr.Connect(Client{ID: "c-1"})

	tr.RecordEvent("c-1", "node-update", 3)
	tr.RecordEvent("c-1", "system-status", 0) // status snapshot carries no id

	e := tr.Roster(false)[0]
	if e.LastEvent != "system-status" {
		t.Errorf("expected last_event system-status, got %s", e.LastEvent)
	}
	if e.LastEventID != 3 {
		t.Errorf("expected last_event_id 3, got %d", e.LastEventID)
	}
	if e.EventCount != 2 {
		t.Errorf("expected 2 events, got %d", e.EventCount)
	}
}

func TestConnect_IgnoresEmptyID(t *testing.T) {
	tr := New()

	tr.Connect(Client{ID: ""})
	tr.RecordEvent("unknown", "order-update", 1)
	tr.Touch("unknown")
	tr.Disconnect("unknown")

	if n := len(tr.Roster(true)); n != 0 {
		t.Fatalf("expected 0 entries, got %d", n)
	}
}

func TestRoster_DisconnectedClients(t *testing.T) {
	tr := New()

	tr.Connect(Client{ID: "gone"})
	tr.Connect(Client{ID: "live"})
	tr.Disconnect("gone")

	if n := tr.Connected(); n != 1 {
		t.Errorf("expected 1 connected, got %d", n)
	}

	roster := tr.Roster(false)
	if len(roster) != 1 || roster[0].Client != "live" {
		t.Fatalf("expected only live, got %+v", roster)
	}

	all := tr.Roster(true)
	if len(all) != 2 {
		t.Fatalf("expected 2 entries including disconnected, got %d", len(all))
	}
	for _, e := range all {
		if e.Client == "gone" && (e.Connected || e.DisconnectedAt.IsZero()) {
			t.Errorf("expected gone to be disconnected, got %+v", e)
		}
	}
}

func TestRoster_SortedByMostRecent(t *testing.T) {
	tr := New()

	tr.Connect(Client{ID: "first"})
	time.Sleep(5 * time.Millisecond)
	tr.Connect(Client{ID: "second"})
	time.Sleep(5 * time.Millisecond)
	tr.Connect(Client{ID: "third"})

	roster := tr.Roster(false)
	if len(roster) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(roster))
	}
	if roster[0].Client != "third" {
		t.Errorf("expected third first, got %s", roster[0].Client)
	}
	if roster[2].Client != "first" {
		t.Errorf("expected first last, got %s", roster[2].Client)
	}
}

func TestSweep_FlagsStalledClients(t *testing.T) {
	tr := New()

	tr.Connect(Client{ID: "quiet", Remote: "10.0.0.9:1"})

	tr.mu.Lock()
	tr.clients["quiet"].lastSeen = time.Now().Add(-5 * time.Minute)
	tr.mu.Unlock()

	var stalled []string
	cfg := &ReaperConfig{
		StallThreshold: time.Minute,
		EvictAfter:     10 * time.Minute,
		OnStall: func(client, _ string) {
			stalled = append(stalled, client)
		},
	}

	tr.sweep(cfg)
	tr.sweep(cfg) // already flagged; no second callback

	if len(stalled) != 1 || stalled[0] != "quiet" {
		t.Errorf("expected quiet to be flagged once, got %v", stalled)
	}
	if e := tr.Roster(false)[0]; !e.Stalled {
		t.Error("expected stalled=true")
	}
}

func TestSweep_KeepaliveClearsStall(t *testing.T) {
	tr := New()

	tr.Connect(Client{ID: "slow"})
	tr.mu.Lock()
	tr.clients["slow"].lastSeen = time.Now().Add(-5 * time.Minute)
	tr.mu.Unlock()

	tr.sweep(&ReaperConfig{StallThreshold: time.Minute, EvictAfter: 10 * time.Minute})
	tr.Touch("slow")

	if e := tr.Roster(false)[0]; e.Stalled {
		t.Error("expected keepalive to clear the stall flag")
	}
}

func TestSweep_EvictsDisconnectedClients(t *testing.T) {
	tr := New()

	tr.Connect(Client{ID: "old"})
	tr.Connect(Client{ID: "recent"})
	tr.Disconnect("old")
	tr.Disconnect("recent")

	tr.mu.Lock()
	tr.clients["old"].disconnectedAt = time.Now().Add(-20 * time.Minute)
	tr.mu.Unlock()

	tr.sweep(&ReaperConfig{StallThreshold: time.Minute, EvictAfter: 10 * time.Minute})

	tr.mu.RLock()
	_, oldExists := tr.clients["old"]
	_, recentExists := tr.clients["recent"]
	tr.mu.RUnlock()

	if oldExists {
		t.Error("expected old to be evicted")
	}
	if !recentExists {
		t.Error("expected recent to stay until EvictAfter")
	}
}

func TestStartReaper_StopsCleanly(t *testing.T) {
	tr := New()

	tr.StartReaper(&ReaperConfig{
		SweepInterval: 50 * time.Millisecond,
	})

	// Let it run a couple sweeps.
	time.Sleep(150 * time.Millisecond)

	// Stop should return without hanging.
	done := make(chan struct{})
	go func() {
		tr.Stop()
		close(done)
	}()

	select {
	case <-done:
		// OK
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return within 2 seconds")
	}
}
