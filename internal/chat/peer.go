package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/FynbosAI/palettefineart-sub006/internal/messaging"
	"github.com/FynbosAI/palettefineart-sub006/internal/store"
)

// EnsurePeerThreadInput requests a direct shipper-to-shipper thread.
type EnsurePeerThreadInput struct {
	InitiatorOrgID  string  `json:"initiatorOrgId"`
	TargetOrgID     string  `json:"targetOrgId"`
	InitiatorUserID string  `json:"initiatorUserId"`
	QuoteID         *string `json:"quoteId,omitempty"`
	ShipmentID      *string `json:"shipmentId,omitempty"`
}

type PeerThreadResult struct {
	Thread      *store.ChatThread
	Created     bool
	SideEffects []messaging.SideEffect
}

// EnsurePeerThread finds or creates the thread between two shipper orgs.
// The canonical unique name makes the operation symmetric: swapping
// initiator and target resolves to the same thread. Roles and metadata are
// recomputed on every call so neither can go stale.
func (s *Service) EnsurePeerThread(ctx context.Context, in EnsurePeerThreadInput) (*PeerThreadResult, error) {
	initiator := strings.TrimSpace(in.InitiatorOrgID)
	target := strings.TrimSpace(in.TargetOrgID)
	if initiator == "" || target == "" {
		return nil, invalid("both shipper organization ids are required")
	}
	if initiator == target {
		return nil, invalid("peer thread requires two distinct organizations")
	}
	if in.InitiatorUserID == "" {
		return nil, invalid("initiator user id is required")
	}

	uniqueName := PeerConversationName(initiator, target, in.QuoteID, in.ShipmentID)

	thread, err := s.store.GetThreadByUniqueName(ctx, uniqueName)
	if err != nil {
		return nil, err
	}

	created := false
	if thread == nil {
		thread, err = s.createPeerThread(ctx, in, initiator, target, uniqueName)
		if err != nil {
			return nil, err
		}
		created = true
	}

	// Role assignment is idempotent and recomputed against the thread's
	// recorded initiator, never against this call's arguments alone.
	recordedInitiator := initiator
	if thread.InitiatorShipperOrgID != nil {
		recordedInitiator = *thread.InitiatorShipperOrgID
	}
	for _, orgID := range []string{initiator, target} {
		role := store.ThreadShipperRolePeer
		if orgID == recordedInitiator {
			role = store.ThreadShipperRoleInitiator
		}
		if err := s.store.EnsureThreadShipper(ctx, thread.ID, orgID, role); err != nil {
			return nil, err
		}
	}

	result := &PeerThreadResult{Thread: thread, Created: created}

	effects, err := s.rebuildPeerMetadata(ctx, thread)
	if err != nil {
		return nil, err
	}
	result.SideEffects = append(result.SideEffects, effects...)

	result.SideEffects = append(result.SideEffects,
		s.seedPeerParticipants(ctx, thread, in.InitiatorUserID, initiator, target)...)

	return result, nil
}

func (s *Service) createPeerThread(ctx context.Context, in EnsurePeerThreadInput, initiator, target, uniqueName string) (*store.ChatThread, error) {
	friendly := s.peerFriendlyName(ctx, initiator, target)

	meta := ThreadMetadata{
		ConversationType: store.ConversationTypeShipperPeer,
		Title:            friendly,
	}
	raw := meta.raw()

	conv, err := s.provider.CreateConversation(ctx, messaging.CreateConversationInput{
		UniqueName:   uniqueName,
		FriendlyName: friendly,
		Attributes:   raw,
	})
	if errors.Is(err, messaging.ErrDuplicate) {
		conv, err = s.provider.FetchConversation(ctx, uniqueName)
	}
	if err != nil {
		return nil, fmt.Errorf("ensure conversation %s: %w", uniqueName, err)
	}

	thread, err := s.store.CreateThread(ctx, store.ChatThread{
		QuoteID:               in.QuoteID,
		ShipmentID:            in.ShipmentID,
		OrganizationID:        initiator,
		ConversationSID:       conv.SID,
		UniqueName:            uniqueName,
		Metadata:              raw,
		CreatedBy:             in.InitiatorUserID,
		ConversationType:      store.ConversationTypeShipperPeer,
		InitiatorShipperOrgID: &initiator,
	})
	if errors.Is(err, store.ErrConflict) {
		existing, lookupErr := s.store.GetThreadByUniqueName(ctx, uniqueName)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing == nil {
			return nil, err
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}
	return thread, nil
}

func (s *Service) peerFriendlyName(ctx context.Context, orgIDs ...string) string {
	names := make([]string, 0, len(orgIDs))
	for _, id := range orgIDs {
		org, err := s.store.GetOrganizationByID(ctx, id)
		if err != nil || org == nil {
			names = append(names, id)
			continue
		}
		names = append(names, org.Name)
	}
	return "Shipper network: " + strings.Join(names, " / ")
}

// rebuildPeerMetadata recomputes the shippers list from the current full set
// of ThreadShipper rows, not just the two orgs of this call, and pushes it to
// the store and, best-effort, the conversation attributes.
func (s *Service) rebuildPeerMetadata(ctx context.Context, thread *store.ChatThread) ([]messaging.SideEffect, error) {
	shippers, err := s.store.GetThreadShippers(ctx, thread.ID)
	if err != nil {
		return nil, err
	}

	summaries := make([]OrgSummary, 0, len(shippers))
	for _, ts := range shippers {
		org, err := s.store.GetOrganizationByID(ctx, ts.ShipperOrgID)
		if err != nil || org == nil {
			summaries = append(summaries, OrgSummary{ID: ts.ShipperOrgID, Name: ts.ShipperOrgID})
			continue
		}
		summaries = append(summaries, s.orgSummary(ctx, org))
	}

	meta := parseMetadata(thread.Metadata)
	meta.ConversationType = store.ConversationTypeShipperPeer
	meta.setShippers(summaries)
	raw := meta.raw()

	if err := s.store.UpdateThreadMetadata(ctx, thread.ID, raw); err != nil {
		return nil, err
	}
	thread.Metadata = raw

	var effects []messaging.SideEffect
	if err := s.provider.UpdateAttributes(ctx, thread.ConversationSID, raw); err != nil {
		// Attributes are a mirror of local metadata; losing a sync is
		// recoverable on the next call.
		log.Printf("chat: sync attributes on conversation %s: %v", thread.ConversationSID, err)
		effects = append(effects, messaging.SideEffect{Op: "update-attributes", Err: err})
	}
	return effects, nil
}

// seedPeerParticipants registers the initiator and every member of both orgs.
// Peer threads are shipper-only spaces: role is forced to shipper regardless
// of the member's home-org type.
func (s *Service) seedPeerParticipants(ctx context.Context, thread *store.ChatThread, initiatorUserID, initiatorOrgID, targetOrgID string) []messaging.SideEffect {
	var effects []messaging.SideEffect

	seed := func(userID, orgID string) {
		result, err := s.EnsureParticipantInThread(ctx, EnsureParticipantInput{
			ThreadID:       thread.ID,
			UserID:         userID,
			OrganizationID: orgID,
			Role:           RoleShipper,
		})
		if err != nil {
			log.Printf("chat: seed peer participant %s on thread %s: %v", userID, thread.ID, err)
			effects = append(effects, messaging.SideEffect{Op: "seed-participant:" + userID, Err: err})
			return
		}
		effects = append(effects, result.SideEffects...)
	}

	seed(initiatorUserID, initiatorOrgID)

	for _, orgID := range []string{initiatorOrgID, targetOrgID} {
		members, err := s.store.GetMembersForOrganization(ctx, orgID)
		if err != nil {
			log.Printf("chat: list peer members for %s: %v", orgID, err)
			continue
		}
		for _, m := range members {
			if m.UserID == initiatorUserID {
				continue
			}
			seed(m.UserID, orgID)
		}
	}

	return effects
}
