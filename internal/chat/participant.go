package chat

import (
	"context"
	"fmt"
	"log"

	"github.com/FynbosAI/palettefineart-sub006/internal/messaging"
	"github.com/FynbosAI/palettefineart-sub006/internal/store"
)

type EnsureParticipantInput struct {
	ThreadID string
	UserID   string
	// OrganizationID overrides the membership org; defaults to the thread's
	// primary org.
	OrganizationID string
	// Role overrides role derivation ("client" | "shipper").
	Role string
}

type ParticipantResult struct {
	Participant *store.ChatThreadParticipant
	// Added is false when the user already held an active participant row
	// and the call reduced to a metadata refresh.
	Added       bool
	SideEffects []messaging.SideEffect
}

// Identity builds the stable, role-qualified external identity for a user.
// It is a pure function of (role, user): reconstructible without storage and
// never regenerated once minted for that pair.
func Identity(role, userID string) string {
	return fmt.Sprintf("%s:%s", role, userID)
}

// EnsureParticipantInThread resolves a user's role, upserts their participant
// record, and registers them on the external conversation. Repeat calls for
// the same (thread, user) are an idempotent no-op apart from a display
// metadata refresh.
func (s *Service) EnsureParticipantInThread(ctx context.Context, in EnsureParticipantInput) (*ParticipantResult, error) {
	if in.ThreadID == "" || in.UserID == "" {
		return nil, invalid("thread id and user id are required")
	}

	thread, err := s.store.GetThreadByID(ctx, in.ThreadID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, notFound("thread %s not found", in.ThreadID)
	}

	existing, err := s.store.GetParticipantRecord(ctx, in.ThreadID, in.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// Already a member: refresh display metadata only. No store upsert,
		// no provider add.
		s.syncParticipantMetadata(ctx, thread, existing, s.displayName(ctx, in.UserID))
		return &ParticipantResult{Participant: existing}, nil
	}

	orgID := in.OrganizationID
	if orgID == "" {
		orgID = thread.OrganizationID
	}

	membership, err := s.store.GetMembershipForOrg(ctx, in.UserID, orgID)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		return nil, forbidden("user %s is not a member of organization %s", in.UserID, orgID)
	}

	org, err := s.store.GetOrganizationByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, notFound("organization %s not found", orgID)
	}

	role := in.Role
	if role == "" {
		if org.Type == store.OrgTypePartner {
			role = RoleShipper
		} else {
			role = RoleClient
		}
	}

	roleSID := s.roles.sidFor(role)
	if roleSID == "" {
		return nil, configMissing("no conversation role sid configured for role %q", role)
	}

	identity := Identity(role, in.UserID)
	participant, err := s.store.UpsertParticipant(ctx, store.ChatThreadParticipant{
		ThreadID:       in.ThreadID,
		UserID:         in.UserID,
		OrganizationID: orgID,
		Role:           role,
		Identity:       identity,
		RoleSID:        roleSID,
	})
	if err != nil {
		return nil, err
	}

	result := &ParticipantResult{Participant: participant, Added: true}

	// Provider add is best-effort: the participant row is authoritative and
	// a later idempotent call retries the registration.
	if err := s.provider.AddParticipant(ctx, thread.ConversationSID, identity, roleSID); err != nil {
		log.Printf("chat: add participant %s to conversation %s: %v", identity, thread.ConversationSID, err)
		result.SideEffects = append(result.SideEffects, messaging.SideEffect{Op: "add-participant", Err: err})
	}

	s.syncParticipantMetadata(ctx, thread, participant, s.displayName(ctx, in.UserID))
	return result, nil
}

// syncParticipantMetadata folds the participant into the thread's metadata
// cache. Client-role participants fill the "partner" org slot, shipper-role
// the "shipper" slot; a slot already holding an org is left alone.
func (s *Service) syncParticipantMetadata(ctx context.Context, thread *store.ChatThread, p *store.ChatThreadParticipant, name string) {
	meta := parseMetadata(thread.Metadata)
	meta.upsertParticipant(ParticipantSummary{
		UserID:   p.UserID,
		Name:     name,
		Role:     p.Role,
		Identity: p.Identity,
	})

	slotEmpty := (p.Role == RoleClient && meta.Partner == nil) ||
		(p.Role == RoleShipper && meta.Shipper == nil)
	if slotEmpty {
		org, err := s.store.GetOrganizationByID(ctx, p.OrganizationID)
		if err == nil && org != nil {
			summary := s.orgSummary(ctx, org)
			if p.Role == RoleClient {
				meta.Partner = &summary
			} else {
				meta.Shipper = &summary
			}
		}
	}

	raw := meta.raw()
	if err := s.store.UpdateThreadMetadata(ctx, thread.ID, raw); err != nil {
		log.Printf("chat: sync participant metadata on thread %s: %v", thread.ID, err)
		return
	}
	thread.Metadata = raw
}
