package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestBidFeedKey(t *testing.T) {
	if got := BidFeedKey("org_g"); got != "gallery_bids:org_g" {
		t.Errorf("unexpected key %q", got)
	}
}

func newBidWatcherFixture(t *testing.T) (*BidWatcher, *refreshRecorder) {
	t.Helper()
	rec := newRefreshRecorder()
	queue := NewRefreshQueue(10*time.Millisecond, rec.refresh)
	manager := NewManager(newFakeFactory(), time.Second, 15*time.Second, queue)
	return NewBidWatcher(manager, queue, "org_g"), rec
}

func TestBidWatcherEnqueuesMatchingEvent(t *testing.T) {
	w, rec := newBidWatcherFixture(t)

	w.handleEvent(Event{New: json.RawMessage(`{"id":"bid_1","quote_id":"quo_1","gallery_org_id":"org_g"}`)})
	waitForCount(t, rec, "quo_1", 1)
}

func TestBidWatcherUsesOldImageOnDelete(t *testing.T) {
	w, rec := newBidWatcherFixture(t)

	// Deletes carry only the old row image.
	w.handleEvent(Event{Old: json.RawMessage(`{"id":"bid_1","quote_id":"quo_1","gallery_org_id":"org_g"}`)})
	waitForCount(t, rec, "quo_1", 1)
}

func TestBidWatcherDropsForeignOrg(t *testing.T) {
	w, rec := newBidWatcherFixture(t)

	w.handleEvent(Event{New: json.RawMessage(`{"id":"bid_1","quote_id":"quo_1","gallery_org_id":"org_other"}`)})
	w.handleEvent(Event{New: json.RawMessage(`{"id":"bid_2","quote_id":"quo_2","gallery_org_id":""}`)})

	time.Sleep(40 * time.Millisecond)
	if rec.count("quo_1") != 0 || rec.count("quo_2") != 0 {
		t.Error("events for other tenants must be dropped")
	}
}

func TestBidWatcherDropsMalformedPayloads(t *testing.T) {
	w, rec := newBidWatcherFixture(t)

	w.handleEvent(Event{})
	w.handleEvent(Event{New: json.RawMessage(`not-json`)})
	w.handleEvent(Event{New: json.RawMessage(`{"id":"bid_1","gallery_org_id":"org_g"}`)})

	time.Sleep(40 * time.Millisecond)
	if len(rec.calls) != 0 {
		t.Errorf("malformed or quote-less events must be dropped, got %v", rec.calls)
	}
}

func TestBidWatcherStartSubscribesFeed(t *testing.T) {
	rec := newRefreshRecorder()
	queue := NewRefreshQueue(10*time.Millisecond, rec.refresh)
	factory := newFakeFactory()
	manager := NewManager(factory, time.Second, 15*time.Second, queue)
	w := NewBidWatcher(manager, queue, "org_g")

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, ok := manager.State(BidFeedKey("org_g")); !ok {
		t.Fatal("expected the bid feed channel tracked")
	}

	factory.emitEvent(BidFeedKey("org_g"), Event{New: json.RawMessage(`{"id":"bid_1","quote_id":"quo_9","gallery_org_id":"org_g"}`)})
	waitForCount(t, rec, "quo_9", 1)

	w.Stop(context.Background())
	if len(manager.States()) != 0 {
		t.Error("stop must tear down the feed")
	}
}
