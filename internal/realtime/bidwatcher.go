package realtime

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// GalleryBidEvent is the wire payload of a bid change. Trigger only: this
// subsystem never persists it.
type GalleryBidEvent struct {
	ID           string    `json:"id"`
	QuoteID      string    `json:"quote_id"`
	GalleryOrgID string    `json:"gallery_org_id"`
	Amount       float64   `json:"amount"`
	Status       string    `json:"status"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BidFeedKey names the bid feed channel for a gallery org.
func BidFeedKey(galleryOrgID string) string {
	return "gallery_bids:" + galleryOrgID
}

// BidWatcher glues the bid feed to the refresh queue for one gallery org:
// each inbound change enqueues its quote for a coalesced refresh.
type BidWatcher struct {
	manager *Manager
	queue   *RefreshQueue
	orgID   string
}

func NewBidWatcher(manager *Manager, queue *RefreshQueue, galleryOrgID string) *BidWatcher {
	return &BidWatcher{manager: manager, queue: queue, orgID: galleryOrgID}
}

func (w *BidWatcher) Start(ctx context.Context) error {
	return w.manager.Subscribe(ctx, BidFeedKey(w.orgID), w.handleEvent)
}

func (w *BidWatcher) Stop(ctx context.Context) {
	w.manager.UnsubscribeFromAll(ctx)
}

// handleEvent filters by tenant and enqueues the affected quote. The feed is
// filtered server-side already; the re-check here keeps a misrouted event
// from leaking across galleries.
func (w *BidWatcher) handleEvent(evt Event) {
	payload := evt.New
	if len(payload) == 0 {
		payload = evt.Old
	}
	if len(payload) == 0 {
		return
	}

	var bid GalleryBidEvent
	if err := json.Unmarshal(payload, &bid); err != nil {
		log.Printf("realtime: drop malformed bid event: %v", err)
		return
	}
	if bid.GalleryOrgID != w.orgID || bid.QuoteID == "" {
		return
	}
	w.queue.Enqueue(bid.QuoteID)
}
