package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/FynbosAI/palettefineart-sub006/internal/messaging"
	"github.com/FynbosAI/palettefineart-sub006/internal/store"
)

func TestEnsureThreadCreatesUnscoped(t *testing.T) {
	svc, fs, provider := newTestService(t)

	result, err := svc.EnsureThreadForQuote(context.Background(), EnsureThreadInput{
		QuoteID:         "quo_1",
		InitiatorUserID: "usr_owner",
	})
	if err != nil {
		t.Fatalf("EnsureThreadForQuote failed: %v", err)
	}
	if !result.Created {
		t.Error("expected created=true")
	}
	if result.Thread.UniqueName != "quote::quo_1" {
		t.Errorf("unexpected unique name %q", result.Thread.UniqueName)
	}
	if result.Thread.ConversationSID == "" {
		t.Error("expected a conversation sid")
	}
	if fs.createCalls != 1 {
		t.Errorf("expected 1 thread insert, got %d", fs.createCalls)
	}

	// Submitter plus the other gallery member are seeded as clients.
	participants := provider.Participants(result.Thread.ConversationSID)
	if _, ok := participants["client:usr_owner"]; !ok {
		t.Errorf("expected submitter registered, got %v", participants)
	}
	if _, ok := participants["client:usr_staff"]; !ok {
		t.Errorf("expected gallery member registered, got %v", participants)
	}

	var meta ThreadMetadata
	if err := json.Unmarshal(result.Thread.Metadata, &meta); err != nil {
		t.Fatalf("bad metadata: %v", err)
	}
	if meta.Title != "Venice Biennale crating" {
		t.Errorf("unexpected metadata title %q", meta.Title)
	}
	if meta.Partner == nil || meta.Partner.ID != "org_gallery" {
		t.Errorf("expected partner slot filled with gallery org, got %+v", meta.Partner)
	}
}

func TestEnsureThreadIdempotent(t *testing.T) {
	svc, fs, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.EnsureThreadForQuote(ctx, EnsureThreadInput{
		QuoteID:         "quo_1",
		InitiatorUserID: "usr_owner",
	})
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	second, err := svc.EnsureThreadForQuote(ctx, EnsureThreadInput{
		QuoteID:         "quo_1",
		InitiatorUserID: "usr_owner",
	})
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}

	if second.Created {
		t.Error("expected created=false on repeat call")
	}
	if second.Thread.ID != first.Thread.ID {
		t.Errorf("expected same thread, got %s then %s", first.Thread.ID, second.Thread.ID)
	}
	if fs.createCalls != 1 {
		t.Errorf("expected exactly 1 insert across both calls, got %d", fs.createCalls)
	}
}

func TestEnsureThreadScopedGetsDistinctName(t *testing.T) {
	svc, fs, _ := newTestService(t)
	ctx := context.Background()

	unscoped, err := svc.EnsureThreadForQuote(ctx, EnsureThreadInput{
		QuoteID:         "quo_1",
		InitiatorUserID: "usr_owner",
	})
	if err != nil {
		t.Fatalf("unscoped call failed: %v", err)
	}

	scoped, err := svc.EnsureThreadForQuote(ctx, EnsureThreadInput{
		QuoteID:            "quo_1",
		InitiatorUserID:    "usr_owner",
		ShipperBranchOrgID: Value("org_shipper"),
	})
	if err != nil {
		t.Fatalf("scoped call failed: %v", err)
	}

	if !scoped.Created {
		t.Error("expected scoped request to create a new thread")
	}
	if scoped.Thread.ID == unscoped.Thread.ID {
		t.Error("scoped and unscoped threads must be distinct")
	}
	if scoped.Thread.UniqueName == unscoped.Thread.UniqueName {
		t.Error("scoped thread must get a scope-hashed unique name")
	}
	if scoped.Thread.ShipperBranchOrgID == nil || *scoped.Thread.ShipperBranchOrgID != "org_shipper" {
		t.Errorf("expected shipper branch recorded, got %v", scoped.Thread.ShipperBranchOrgID)
	}
	// Gallery branch defaults to the quote owner when scope is requested.
	if scoped.Thread.GalleryBranchOrgID == nil || *scoped.Thread.GalleryBranchOrgID != "org_gallery" {
		t.Errorf("expected gallery branch default, got %v", scoped.Thread.GalleryBranchOrgID)
	}
	if fs.createCalls != 2 {
		t.Errorf("expected 2 inserts, got %d", fs.createCalls)
	}
}

func TestEnsureThreadFallbackAcceptsMatchingScope(t *testing.T) {
	svc, fs, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.EnsureThreadForQuote(ctx, EnsureThreadInput{
		QuoteID:            "quo_1",
		InitiatorUserID:    "usr_owner",
		ShipperBranchOrgID: Value("org_shipper"),
	})
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	// Only the gallery filter provided: the scoped lookup misses (stored
	// shipper column differs from the resolved nil) but the quote-id fallback
	// matches every provided filter, so no second thread appears.
	second, err := svc.EnsureThreadForQuote(ctx, EnsureThreadInput{
		QuoteID:            "quo_1",
		InitiatorUserID:    "usr_staff",
		GalleryBranchOrgID: Value("org_gallery"),
	})
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if second.Created || second.Thread.ID != first.Thread.ID {
		t.Errorf("expected fallback reuse of %s, got created=%v id=%s", first.Thread.ID, second.Created, second.Thread.ID)
	}
	if fs.createCalls != 1 {
		t.Errorf("expected 1 insert, got %d", fs.createCalls)
	}
}

func TestEnsureThreadFallbackRejectsMismatchedScope(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.EnsureThreadForQuote(ctx, EnsureThreadInput{
		QuoteID:         "quo_1",
		InitiatorUserID: "usr_owner",
	}); err != nil {
		t.Fatalf("setup call failed: %v", err)
	}

	// An explicitly provided shipper filter that the stored thread lacks must
	// not silently reuse it.
	scoped, err := svc.EnsureThreadForQuote(ctx, EnsureThreadInput{
		QuoteID:            "quo_1",
		InitiatorUserID:    "usr_owner",
		ShipperBranchOrgID: Value("org_shipper"),
	})
	if err != nil {
		t.Fatalf("scoped call failed: %v", err)
	}
	if !scoped.Created {
		t.Error("expected a new thread for the mismatched scope")
	}
}

func TestEnsureThreadWidensScope(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.EnsureThreadForQuote(ctx, EnsureThreadInput{
		QuoteID:            "quo_1",
		InitiatorUserID:    "usr_owner",
		ShipperBranchOrgID: Value("org_shipper"),
	})
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if first.Thread.ShipmentID != nil {
		t.Fatalf("fixture quote has no shipment, got %v", first.Thread.ShipmentID)
	}

	// Re-request with a shipment added: same shipper/gallery scope finds the
	// thread, and the shipment column is widened in place.
	second, err := svc.EnsureThreadForQuote(ctx, EnsureThreadInput{
		QuoteID:            "quo_1",
		InitiatorUserID:    "usr_owner",
		ShipmentID:         Value("shp_9"),
		ShipperBranchOrgID: Value("org_shipper"),
	})
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if second.Created {
		t.Error("expected reuse, not creation")
	}
	if second.Thread.ID != first.Thread.ID {
		t.Fatalf("expected same thread, got %s then %s", first.Thread.ID, second.Thread.ID)
	}
	if second.Thread.ShipmentID == nil || *second.Thread.ShipmentID != "shp_9" {
		t.Errorf("expected shipment widened to shp_9, got %v", second.Thread.ShipmentID)
	}

	var meta ThreadMetadata
	if err := json.Unmarshal(second.Thread.Metadata, &meta); err != nil {
		t.Fatalf("bad metadata: %v", err)
	}
	if meta.Scope == nil || meta.Scope.ShipmentID == nil || *meta.Scope.ShipmentID != "shp_9" {
		t.Errorf("expected scope echo widened, got %+v", meta.Scope)
	}
}

func TestEnsureThreadExplicitNullShipment(t *testing.T) {
	svc, _, _ := newTestService(t)

	fs := svc.store.(*fakeStore)
	fs.quotes["quo_1"].ShipmentID = strp("shp_default")

	// shipmentId: null explicitly opts out of the quote's own shipment.
	result, err := svc.EnsureThreadForQuote(context.Background(), EnsureThreadInput{
		QuoteID:            "quo_1",
		InitiatorUserID:    "usr_owner",
		ShipmentID:         Null(),
		GalleryBranchOrgID: Value("org_gallery"),
	})
	if err != nil {
		t.Fatalf("EnsureThreadForQuote failed: %v", err)
	}
	if result.Thread.ShipmentID != nil {
		t.Errorf("explicit null must suppress the shipment default, got %v", result.Thread.ShipmentID)
	}

	// An omitted shipment key picks up the quote default instead.
	other, err := svc.EnsureThreadForQuote(context.Background(), EnsureThreadInput{
		QuoteID:            "quo_1",
		InitiatorUserID:    "usr_owner",
		ShipperBranchOrgID: Value("org_shipper"),
	})
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if other.Thread.ShipmentID == nil || *other.Thread.ShipmentID != "shp_default" {
		t.Errorf("expected quote shipment default, got %v", other.Thread.ShipmentID)
	}
}

func TestEnsureThreadSeedsShipperMembers(t *testing.T) {
	svc, fs, provider := newTestService(t)
	fs.memberships["org_shipper"] = append(fs.memberships["org_shipper"],
		store.Membership{UserID: "usr_dispatch", OrganizationID: "org_shipper"})

	result, err := svc.EnsureThreadForQuote(context.Background(), EnsureThreadInput{
		QuoteID:            "quo_1",
		InitiatorUserID:    "usr_owner",
		ShipperBranchOrgID: Value("org_shipper"),
	})
	if err != nil {
		t.Fatalf("EnsureThreadForQuote failed: %v", err)
	}

	participants := provider.Participants(result.Thread.ConversationSID)
	want := map[string]string{
		"client:usr_owner":     "RL_client",
		"client:usr_staff":     "RL_client",
		"shipper:usr_driver":   "RL_shipper",
		"shipper:usr_dispatch": "RL_shipper",
	}
	for identity, roleSID := range want {
		if participants[identity] != roleSID {
			t.Errorf("expected %s with role sid %s, got %v", identity, roleSID, participants)
		}
	}
	// Gallery branch resolves to the quote owner org.
	if result.Thread.GalleryBranchOrgID == nil || *result.Thread.GalleryBranchOrgID != "org_gallery" {
		t.Errorf("expected gallery branch org_gallery, got %v", result.Thread.GalleryBranchOrgID)
	}
}

func TestEnsureThreadProviderDuplicateRecovery(t *testing.T) {
	svc, _, provider := newTestService(t)
	ctx := context.Background()

	// Another process already owns the conversation name.
	conv, err := provider.CreateConversation(ctx, messaging.CreateConversationInput{
		UniqueName:   "quote::quo_1",
		FriendlyName: "Venice Biennale crating",
	})
	if err != nil {
		t.Fatalf("setup conversation failed: %v", err)
	}

	result, err := svc.EnsureThreadForQuote(ctx, EnsureThreadInput{
		QuoteID:         "quo_1",
		InitiatorUserID: "usr_owner",
	})
	if err != nil {
		t.Fatalf("EnsureThreadForQuote failed: %v", err)
	}
	if result.Thread.ConversationSID != conv.SID {
		t.Errorf("expected adoption of existing conversation %s, got %s", conv.SID, result.Thread.ConversationSID)
	}
}

func TestEnsureThreadInsertRaceRecovery(t *testing.T) {
	svc, fs, _ := newTestService(t)
	ctx := context.Background()

	// Simulate a concurrent writer landing between lookup and insert.
	fs.createThreadFn = func(_ context.Context, in store.ChatThread) (*store.ChatThread, error) {
		fs.createThreadFn = nil
		competitor := in
		competitor.CreatedBy = "usr_rival"
		if _, err := fs.insertThread(competitor); err != nil {
			t.Fatalf("competitor insert failed: %v", err)
		}
		return nil, store.ErrConflict
	}

	result, err := svc.EnsureThreadForQuote(ctx, EnsureThreadInput{
		QuoteID:         "quo_1",
		InitiatorUserID: "usr_owner",
	})
	if err != nil {
		t.Fatalf("expected race recovery, got %v", err)
	}
	if result.Thread.CreatedBy != "usr_rival" {
		t.Errorf("expected the competitor's thread to be adopted, got %+v", result.Thread)
	}
	if len(fs.threads) != 1 {
		t.Errorf("expected a single thread after the race, got %d", len(fs.threads))
	}
}

func TestEnsureThreadQuoteNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.EnsureThreadForQuote(context.Background(), EnsureThreadInput{
		QuoteID:         "quo_missing",
		InitiatorUserID: "usr_owner",
	})
	var chatErr *Error
	if !errors.As(err, &chatErr) || chatErr.Code != CodeNotFound {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestEnsureThreadValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.EnsureThreadForQuote(context.Background(), EnsureThreadInput{})
	var chatErr *Error
	if !errors.As(err, &chatErr) || chatErr.Code != CodeValidation {
		t.Errorf("expected VALIDATION_FAILED, got %v", err)
	}
}
