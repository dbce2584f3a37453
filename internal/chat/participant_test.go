package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/FynbosAI/palettefineart-sub006/internal/messaging"
	"github.com/FynbosAI/palettefineart-sub006/internal/store"
)

// seedThread creates a bare thread row for participant tests without running
// the full ensure flow.
func seedThread(t *testing.T, fs *fakeStore, provider *messaging.MemoryProvider) *store.ChatThread {
	t.Helper()
	conv, err := provider.CreateConversation(context.Background(), messaging.CreateConversationInput{
		UniqueName:   "quote::quo_1",
		FriendlyName: "Venice Biennale crating",
	})
	if err != nil {
		t.Fatalf("setup conversation failed: %v", err)
	}
	quoteID := "quo_1"
	thread, err := fs.insertThread(store.ChatThread{
		QuoteID:          &quoteID,
		OrganizationID:   "org_gallery",
		ConversationSID:  conv.SID,
		UniqueName:       "quote::quo_1",
		CreatedBy:        "usr_owner",
		ConversationType: store.ConversationTypeGallery,
	})
	if err != nil {
		t.Fatalf("setup thread failed: %v", err)
	}
	return thread
}

func TestEnsureParticipantAddsClient(t *testing.T) {
	svc, fs, provider := newTestService(t)
	thread := seedThread(t, fs, provider)

	result, err := svc.EnsureParticipantInThread(context.Background(), EnsureParticipantInput{
		ThreadID: thread.ID,
		UserID:   "usr_owner",
	})
	if err != nil {
		t.Fatalf("EnsureParticipantInThread failed: %v", err)
	}
	if !result.Added {
		t.Error("expected added=true")
	}
	if result.Participant.Role != RoleClient {
		t.Errorf("gallery member should derive client role, got %q", result.Participant.Role)
	}
	if result.Participant.Identity != "client:usr_owner" {
		t.Errorf("unexpected identity %q", result.Participant.Identity)
	}
	if result.Participant.RoleSID != "RL_client" {
		t.Errorf("unexpected role sid %q", result.Participant.RoleSID)
	}

	participants := provider.Participants(thread.ConversationSID)
	if participants["client:usr_owner"] != "RL_client" {
		t.Errorf("expected provider registration, got %v", participants)
	}
}

func TestEnsureParticipantDerivesShipperRole(t *testing.T) {
	svc, fs, provider := newTestService(t)
	thread := seedThread(t, fs, provider)

	result, err := svc.EnsureParticipantInThread(context.Background(), EnsureParticipantInput{
		ThreadID:       thread.ID,
		UserID:         "usr_driver",
		OrganizationID: "org_shipper",
	})
	if err != nil {
		t.Fatalf("EnsureParticipantInThread failed: %v", err)
	}
	if result.Participant.Role != RoleShipper {
		t.Errorf("partner-org member should derive shipper role, got %q", result.Participant.Role)
	}
}

func TestEnsureParticipantIdempotent(t *testing.T) {
	svc, fs, provider := newTestService(t)
	thread := seedThread(t, fs, provider)
	ctx := context.Background()

	first, err := svc.EnsureParticipantInThread(ctx, EnsureParticipantInput{
		ThreadID: thread.ID,
		UserID:   "usr_owner",
	})
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	second, err := svc.EnsureParticipantInThread(ctx, EnsureParticipantInput{
		ThreadID: thread.ID,
		UserID:   "usr_owner",
	})
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if second.Added {
		t.Error("expected added=false on repeat call")
	}
	if second.Participant.ID != first.Participant.ID {
		t.Errorf("expected same participant row, got %s then %s", first.Participant.ID, second.Participant.ID)
	}
	if second.Participant.Identity != first.Participant.Identity {
		t.Error("identity must never be re-minted for the same (thread, user)")
	}
	if len(fs.participants) != 1 {
		t.Errorf("expected a single participant row, got %d", len(fs.participants))
	}
}

func TestEnsureParticipantForbiddenWithoutMembership(t *testing.T) {
	svc, fs, provider := newTestService(t)
	thread := seedThread(t, fs, provider)

	_, err := svc.EnsureParticipantInThread(context.Background(), EnsureParticipantInput{
		ThreadID: thread.ID,
		UserID:   "usr_outsider",
	})
	var chatErr *Error
	if !errors.As(err, &chatErr) || chatErr.Code != CodeForbidden {
		t.Errorf("expected FORBIDDEN, got %v", err)
	}
	if len(fs.participants) != 0 {
		t.Error("no participant row may be written on a forbidden call")
	}
}

func TestEnsureParticipantConfigMissing(t *testing.T) {
	_, fs, provider := newTestService(t)
	thread := seedThread(t, fs, provider)

	// No shipper role sid configured: adding a shipper must fail hard.
	svc := New(fs, provider, RoleConfig{ClientRoleSID: "RL_client"}, nil)

	_, err := svc.EnsureParticipantInThread(context.Background(), EnsureParticipantInput{
		ThreadID:       thread.ID,
		UserID:         "usr_driver",
		OrganizationID: "org_shipper",
	})
	var chatErr *Error
	if !errors.As(err, &chatErr) || chatErr.Code != CodeConfigMissing {
		t.Errorf("expected CONFIG_MISSING, got %v", err)
	}
}

func TestEnsureParticipantThreadNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.EnsureParticipantInThread(context.Background(), EnsureParticipantInput{
		ThreadID: "thr_missing",
		UserID:   "usr_owner",
	})
	var chatErr *Error
	if !errors.As(err, &chatErr) || chatErr.Code != CodeNotFound {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestParticipantMetadataFirstWriterWins(t *testing.T) {
	svc, fs, provider := newTestService(t)
	thread := seedThread(t, fs, provider)
	ctx := context.Background()

	fs.addOrg("org_gallery2", "Galerie Sud", store.OrgTypeGallery, "usr_other")

	if _, err := svc.EnsureParticipantInThread(ctx, EnsureParticipantInput{
		ThreadID: thread.ID,
		UserID:   "usr_owner",
	}); err != nil {
		t.Fatalf("first participant failed: %v", err)
	}

	if _, err := svc.EnsureParticipantInThread(ctx, EnsureParticipantInput{
		ThreadID:       thread.ID,
		UserID:         "usr_other",
		OrganizationID: "org_gallery2",
	}); err != nil {
		t.Fatalf("second participant failed: %v", err)
	}

	var meta ThreadMetadata
	if err := json.Unmarshal(thread.Metadata, &meta); err != nil {
		t.Fatalf("bad metadata: %v", err)
	}
	if meta.Partner == nil || meta.Partner.ID != "org_gallery" {
		t.Errorf("partner slot must keep the first writer, got %+v", meta.Partner)
	}
	if len(meta.Participants) != 2 {
		t.Errorf("expected both participants tracked, got %+v", meta.Participants)
	}
}

func TestParticipantMetadataUsesProfileName(t *testing.T) {
	svc, fs, provider := newTestService(t)
	thread := seedThread(t, fs, provider)

	fs.profiles["usr_owner"] = &store.Profile{UserID: "usr_owner", FullName: "Nadia Keller"}

	if _, err := svc.EnsureParticipantInThread(context.Background(), EnsureParticipantInput{
		ThreadID: thread.ID,
		UserID:   "usr_owner",
	}); err != nil {
		t.Fatalf("EnsureParticipantInThread failed: %v", err)
	}

	var meta ThreadMetadata
	if err := json.Unmarshal(thread.Metadata, &meta); err != nil {
		t.Fatalf("bad metadata: %v", err)
	}
	if len(meta.Participants) != 1 || meta.Participants[0].Name != "Nadia Keller" {
		t.Errorf("expected profile display name, got %+v", meta.Participants)
	}
}

func TestIdentityFormat(t *testing.T) {
	if got := Identity(RoleClient, "usr_1"); got != "client:usr_1" {
		t.Errorf("unexpected identity %q", got)
	}
	if got := Identity(RoleShipper, "usr_2"); got != "shipper:usr_2" {
		t.Errorf("unexpected identity %q", got)
	}
}
