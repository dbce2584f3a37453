package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/FynbosAI/palettefineart-sub006/internal/cache"
	"github.com/FynbosAI/palettefineart-sub006/internal/chat"
	"github.com/FynbosAI/palettefineart-sub006/internal/realtime"
	"github.com/FynbosAI/palettefineart-sub006/internal/search"
	"github.com/FynbosAI/palettefineart-sub006/internal/store"
)

// dataStore is the slice of the store the app layer reads directly. The chat
// service holds its own, wider store interface.
type dataStore interface {
	GetThreadByID(ctx context.Context, id string) (*store.ChatThread, error)
	GetThreadByQuoteID(ctx context.Context, quoteID string) (*store.ChatThread, error)
	ListGalleryBidsForQuote(ctx context.Context, quoteID string) ([]store.GalleryBid, error)
	Ping(ctx context.Context) error
}

type threadOrchestrator interface {
	EnsureThreadForQuote(ctx context.Context, in chat.EnsureThreadInput) (*chat.ThreadResult, error)
	EnsurePeerThread(ctx context.Context, in chat.EnsurePeerThreadInput) (*chat.PeerThreadResult, error)
	EnsureParticipantInThread(ctx context.Context, in chat.EnsureParticipantInput) (*chat.ParticipantResult, error)
}

type threadSearcher interface {
	Search(q search.Query) search.Response
	IndexThread(t search.ThreadRecord)
}

type summaryCache interface {
	SaveSummary(ctx context.Context, summary cache.BidSummary) error
}

type connectionStates interface {
	States() map[string]realtime.ConnectionState
}

type Service struct {
	store    dataStore
	chat     threadOrchestrator
	search   threadSearcher
	cache    summaryCache
	realtime connectionStates
}

func NewService(st dataStore, orchestrator threadOrchestrator, searcher threadSearcher, summaries summaryCache, states connectionStates) *Service {
	return &Service{
		store:    st,
		chat:     orchestrator,
		search:   searcher,
		cache:    summaries,
		realtime: states,
	}
}

// ThreadPayload is the wire shape of a thread row.
type ThreadPayload struct {
	ID                 string          `json:"id"`
	QuoteID            *string         `json:"quoteId"`
	ShipmentID         *string         `json:"shipmentId"`
	OrganizationID     string          `json:"organizationId"`
	ShipperBranchOrgID *string         `json:"shipperBranchOrgId"`
	GalleryBranchOrgID *string         `json:"galleryBranchOrgId"`
	ConversationSID    string          `json:"conversationSid"`
	UniqueName         string          `json:"uniqueName"`
	Status             string          `json:"status"`
	ConversationType   string          `json:"conversationType"`
	Metadata           json.RawMessage `json:"metadata"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// EnsureThreadResponse reports the thread plus whether this call created it.
// Warnings name provider calls that failed and were swallowed.
type EnsureThreadResponse struct {
	Thread   ThreadPayload `json:"thread"`
	Created  bool          `json:"created"`
	Warnings []string      `json:"warnings,omitempty"`
}

type ParticipantPayload struct {
	ID             string `json:"id"`
	ThreadID       string `json:"threadId"`
	UserID         string `json:"userId"`
	OrganizationID string `json:"organizationId"`
	Role           string `json:"role"`
	Identity       string `json:"identity"`
}

type EnsureParticipantResponse struct {
	Participant ParticipantPayload `json:"participant"`
	Added       bool               `json:"added"`
	Warnings    []string           `json:"warnings,omitempty"`
}

func threadPayload(t *store.ChatThread) ThreadPayload {
	return ThreadPayload{
		ID:                 t.ID,
		QuoteID:            t.QuoteID,
		ShipmentID:         t.ShipmentID,
		OrganizationID:     t.OrganizationID,
		ShipperBranchOrgID: t.ShipperBranchOrgID,
		GalleryBranchOrgID: t.GalleryBranchOrgID,
		ConversationSID:    t.ConversationSID,
		UniqueName:         t.UniqueName,
		Status:             t.Status,
		ConversationType:   t.ConversationType,
		Metadata:           t.Metadata,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

func (s *Service) EnsureThread(ctx context.Context, in chat.EnsureThreadInput) (*EnsureThreadResponse, error) {
	result, err := s.chat.EnsureThreadForQuote(ctx, in)
	if err != nil {
		return nil, mapChatError(err)
	}

	s.indexThread(result.Thread)

	resp := &EnsureThreadResponse{
		Thread:  threadPayload(result.Thread),
		Created: result.Created,
	}
	for _, effect := range result.SideEffects {
		if effect.Failed() {
			resp.Warnings = append(resp.Warnings, effect.Op)
		}
	}
	return resp, nil
}

func (s *Service) EnsurePeerThread(ctx context.Context, in chat.EnsurePeerThreadInput) (*EnsureThreadResponse, error) {
	result, err := s.chat.EnsurePeerThread(ctx, in)
	if err != nil {
		return nil, mapChatError(err)
	}

	s.indexThread(result.Thread)

	resp := &EnsureThreadResponse{
		Thread:  threadPayload(result.Thread),
		Created: result.Created,
	}
	for _, effect := range result.SideEffects {
		if effect.Failed() {
			resp.Warnings = append(resp.Warnings, effect.Op)
		}
	}
	return resp, nil
}

func (s *Service) EnsureParticipant(ctx context.Context, in chat.EnsureParticipantInput) (*EnsureParticipantResponse, error) {
	result, err := s.chat.EnsureParticipantInThread(ctx, in)
	if err != nil {
		return nil, mapChatError(err)
	}

	resp := &EnsureParticipantResponse{
		Participant: ParticipantPayload{
			ID:             result.Participant.ID,
			ThreadID:       result.Participant.ThreadID,
			UserID:         result.Participant.UserID,
			OrganizationID: result.Participant.OrganizationID,
			Role:           result.Participant.Role,
			Identity:       result.Participant.Identity,
		},
		Added: result.Added,
	}
	for _, effect := range result.SideEffects {
		if effect.Failed() {
			resp.Warnings = append(resp.Warnings, effect.Op)
		}
	}

	// Metadata may have changed; keep the search index in step.
	if thread, err := s.store.GetThreadByID(ctx, in.ThreadID); err == nil && thread != nil {
		s.indexThread(thread)
	}
	return resp, nil
}

func (s *Service) GetThread(ctx context.Context, id string) (*ThreadPayload, error) {
	thread, err := s.store.GetThreadByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Thread not found", nil)
	}
	payload := threadPayload(thread)
	return &payload, nil
}

func (s *Service) SearchThreads(q search.Query) search.Response {
	return s.search.Search(q)
}

// RealtimeStates snapshots the connection state of every live channel.
func (s *Service) RealtimeStates() map[string]realtime.ConnectionState {
	if s.realtime == nil {
		return map[string]realtime.ConnectionState{}
	}
	return s.realtime.States()
}

// RefreshQuote rebuilds the cached bid summary for a quote and re-indexes
// its thread. This is the coalesced refresh the bid feed drives.
func (s *Service) RefreshQuote(ctx context.Context, quoteID string) error {
	bids, err := s.store.ListGalleryBidsForQuote(ctx, quoteID)
	if err != nil {
		return fmt.Errorf("list bids for %s: %w", quoteID, err)
	}

	summary := cache.BidSummary{
		QuoteID:     quoteID,
		BidCount:    len(bids),
		RefreshedAt: time.Now().UTC(),
	}
	var latest time.Time
	for _, bid := range bids {
		if summary.LowestAmount == 0 || bid.Amount < summary.LowestAmount {
			summary.LowestAmount = bid.Amount
			summary.Currency = bid.Currency
		}
		if bid.UpdatedAt.After(latest) {
			latest = bid.UpdatedAt
			summary.LatestStatus = bid.Status
		}
	}

	if s.cache != nil {
		if err := s.cache.SaveSummary(ctx, summary); err != nil {
			return fmt.Errorf("cache bid summary for %s: %w", quoteID, err)
		}
	}

	if thread, err := s.store.GetThreadByQuoteID(ctx, quoteID); err == nil && thread != nil {
		s.indexThread(thread)
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// indexThread pushes a thread's denormalized metadata into the search index.
func (s *Service) indexThread(t *store.ChatThread) {
	if s.search == nil || t == nil {
		return
	}

	var meta struct {
		Title   string `json:"title"`
		Partner struct {
			Name string `json:"name"`
		} `json:"partner"`
		Shipper struct {
			Name string `json:"name"`
		} `json:"shipper"`
	}
	_ = json.Unmarshal(t.Metadata, &meta)

	title := meta.Title
	if title == "" {
		title = t.UniqueName
	}
	quoteID := ""
	if t.QuoteID != nil {
		quoteID = *t.QuoteID
	}

	s.search.IndexThread(search.ThreadRecord{
		ID:               t.ID,
		Title:            title,
		ConversationType: t.ConversationType,
		QuoteID:          quoteID,
		OrganizationID:   t.OrganizationID,
		PartnerName:      meta.Partner.Name,
		ShipperName:      meta.Shipper.Name,
	})
}
