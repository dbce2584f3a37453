package chat

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/FynbosAI/palettefineart-sub006/internal/messaging"
	"github.com/FynbosAI/palettefineart-sub006/internal/store"
)

// EnsureThreadInput requests the thread for a quote negotiation. The three
// scope fields are tri-state: omitted, explicitly null, or a value.
type EnsureThreadInput struct {
	QuoteID            string   `json:"quoteId"`
	InitiatorUserID    string   `json:"initiatorUserId"`
	ShipmentID         Optional `json:"shipmentId"`
	ShipperBranchOrgID Optional `json:"shipperBranchOrgId"`
	GalleryBranchOrgID Optional `json:"galleryBranchOrgId"`
}

type ThreadResult struct {
	Thread  *store.ChatThread
	Created bool
	// SideEffects lists best-effort provider calls that failed and were
	// swallowed. Local state remains authoritative.
	SideEffects []messaging.SideEffect
}

// EnsureThreadForQuote finds or creates the thread for a quote under the
// resolved scope. Safe to call concurrently from multiple processes: races
// are settled by the provider's unique-name conflict and the store's unique
// constraint, both recovered by re-fetching.
func (s *Service) EnsureThreadForQuote(ctx context.Context, in EnsureThreadInput) (*ThreadResult, error) {
	if in.QuoteID == "" || in.InitiatorUserID == "" {
		return nil, invalid("quote id and initiator user id are required")
	}

	quote, err := s.store.GetQuoteContext(ctx, in.QuoteID)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, notFound("quote %s not found", in.QuoteID)
	}

	res := resolveScope(quote, in)

	thread, err := s.lookupThread(ctx, in.QuoteID, res)
	if err != nil {
		return nil, err
	}

	if thread != nil {
		if err := s.reconcileScope(ctx, thread, res); err != nil {
			return nil, err
		}
		result := &ThreadResult{Thread: thread}
		result.SideEffects = s.seedDefaultParticipants(ctx, thread, quote, res.Scope, in.InitiatorUserID)
		return result, nil
	}

	thread, err = s.createThread(ctx, quote, in, res)
	if err != nil {
		return nil, err
	}

	result := &ThreadResult{Thread: thread, Created: true}
	result.SideEffects = s.seedDefaultParticipants(ctx, thread, quote, res.Scope, in.InitiatorUserID)
	return result, nil
}

// lookupThread runs the scoped lookups and then the quote-id fallback.
// A fallback hit under a scoped request is accepted only when every provided
// filter matches the stored scope.
func (s *Service) lookupThread(ctx context.Context, quoteID string, res scopeResolution) (*store.ChatThread, error) {
	if res.Scoped {
		thread, err := s.store.GetThreadByQuoteScope(ctx, quoteID, res.Scope.ShipperBranchOrgID, res.Scope.GalleryBranchOrgID)
		if err != nil {
			return nil, err
		}
		if thread == nil && res.Scope.ShipmentID != nil {
			thread, err = s.store.GetThreadByShipmentScope(ctx, *res.Scope.ShipmentID, res.Scope.ShipperBranchOrgID, res.Scope.GalleryBranchOrgID)
			if err != nil {
				return nil, err
			}
		}
		if thread != nil {
			return thread, nil
		}
	}

	fallback, err := s.store.GetThreadByQuoteID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if fallback == nil {
		return nil, nil
	}
	if res.Scoped && !matchesProvidedFilters(fallback, res.Filters) {
		return nil, nil
	}
	return fallback, nil
}

// reconcileScope folds the resolved scope into the found thread. Metadata is
// always refreshed; the stored scope columns are rewritten only when they
// disagree with the resolution, the single case where a thread's top-level
// scope changes after creation.
func (s *Service) reconcileScope(ctx context.Context, thread *store.ChatThread, res scopeResolution) error {
	meta := parseMetadata(thread.Metadata)
	meta.ConversationType = store.ConversationTypeGallery
	meta.mergeScope(res.Scope)
	raw := meta.raw()

	if res.Scoped && scopeColumnsDrift(thread, res.Scope) {
		shipment := mergedField(res.Scope.ShipmentID, thread.ShipmentID)
		shipper := mergedField(res.Scope.ShipperBranchOrgID, thread.ShipperBranchOrgID)
		gallery := mergedField(res.Scope.GalleryBranchOrgID, thread.GalleryBranchOrgID)
		if err := s.store.UpdateThreadScope(ctx, thread.ID, shipment, shipper, gallery, raw); err != nil {
			return err
		}
		thread.ShipmentID = shipment
		thread.ShipperBranchOrgID = shipper
		thread.GalleryBranchOrgID = gallery
	} else {
		if err := s.store.UpdateThreadMetadata(ctx, thread.ID, raw); err != nil {
			return err
		}
	}
	thread.Metadata = raw
	return nil
}

// scopeColumnsDrift reports whether a resolved non-nil scope field differs
// from the stored column. Nil resolutions never count as drift: scope is
// widened, not narrowed.
func scopeColumnsDrift(t *store.ChatThread, scope ConversationScope) bool {
	return fieldDrifts(scope.ShipmentID, t.ShipmentID) ||
		fieldDrifts(scope.ShipperBranchOrgID, t.ShipperBranchOrgID) ||
		fieldDrifts(scope.GalleryBranchOrgID, t.GalleryBranchOrgID)
}

func fieldDrifts(resolved, stored *string) bool {
	if resolved == nil {
		return false
	}
	return stored == nil || *stored != *resolved
}

func mergedField(resolved, stored *string) *string {
	if resolved != nil {
		return resolved
	}
	return stored
}

func (s *Service) createThread(ctx context.Context, quote *store.Quote, in EnsureThreadInput, res scopeResolution) (*store.ChatThread, error) {
	uniqueName := QuoteConversationName(in.QuoteID, res.Scope, res.Scoped)

	meta := ThreadMetadata{
		ConversationType: store.ConversationTypeGallery,
		Title:            quote.Title,
	}
	meta.mergeScope(res.Scope)
	raw := meta.raw()

	conv, err := s.provider.CreateConversation(ctx, messaging.CreateConversationInput{
		UniqueName:   uniqueName,
		FriendlyName: quote.Title,
		Attributes:   raw,
	})
	if errors.Is(err, messaging.ErrDuplicate) {
		// Another caller created the conversation first; adopt it.
		conv, err = s.provider.FetchConversation(ctx, uniqueName)
	}
	if err != nil {
		return nil, fmt.Errorf("ensure conversation %s: %w", uniqueName, err)
	}

	thread, err := s.store.CreateThread(ctx, store.ChatThread{
		QuoteID:            &in.QuoteID,
		ShipmentID:         res.Scope.ShipmentID,
		OrganizationID:     quote.OwnerOrgID,
		ShipperBranchOrgID: res.Scope.ShipperBranchOrgID,
		GalleryBranchOrgID: res.Scope.GalleryBranchOrgID,
		ConversationSID:    conv.SID,
		UniqueName:         uniqueName,
		Metadata:           raw,
		CreatedBy:          in.InitiatorUserID,
		ConversationType:   store.ConversationTypeGallery,
	})
	if errors.Is(err, store.ErrConflict) {
		// A concurrent caller won the insert race. Their thread is ours.
		existing, lookupErr := s.lookupThread(ctx, in.QuoteID, res)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing == nil {
			// Conflict with no findable thread is a logic bug, not a race.
			return nil, err
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}
	return thread, nil
}

// seedDefaultParticipants registers the quote submitter plus the members of
// the resolved gallery and shipper orgs. Each seed is fault-isolated: one
// member's failure never blocks the rest.
func (s *Service) seedDefaultParticipants(ctx context.Context, thread *store.ChatThread, quote *store.Quote, scope ConversationScope, initiatorUserID string) []messaging.SideEffect {
	var effects []messaging.SideEffect

	galleryOrgID := quote.OwnerOrgID
	if scope.GalleryBranchOrgID != nil {
		galleryOrgID = *scope.GalleryBranchOrgID
	}

	seed := func(userID, orgID, role string) {
		result, err := s.EnsureParticipantInThread(ctx, EnsureParticipantInput{
			ThreadID:       thread.ID,
			UserID:         userID,
			OrganizationID: orgID,
			Role:           role,
		})
		if err != nil {
			log.Printf("chat: seed participant %s on thread %s: %v", userID, thread.ID, err)
			effects = append(effects, messaging.SideEffect{Op: "seed-participant:" + userID, Err: err})
			return
		}
		effects = append(effects, result.SideEffects...)
	}

	if quote.SubmittedBy != "" {
		seed(quote.SubmittedBy, galleryOrgID, RoleClient)
	}

	if galleryOrgID != "" {
		members, err := s.store.GetMembersForOrganization(ctx, galleryOrgID)
		if err != nil {
			log.Printf("chat: list gallery members for %s: %v", galleryOrgID, err)
		}
		for _, m := range members {
			if m.UserID == initiatorUserID || m.UserID == quote.SubmittedBy {
				continue
			}
			seed(m.UserID, galleryOrgID, RoleClient)
		}
	}

	if scope.ShipperBranchOrgID != nil {
		members, err := s.store.GetMembersForOrganization(ctx, *scope.ShipperBranchOrgID)
		if err != nil {
			log.Printf("chat: list shipper members for %s: %v", *scope.ShipperBranchOrgID, err)
		}
		for _, m := range members {
			if m.UserID == initiatorUserID {
				continue
			}
			seed(m.UserID, *scope.ShipperBranchOrgID, RoleShipper)
		}
	}

	return effects
}
