package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/FynbosAI/palettefineart-sub006/internal/messaging"
	"github.com/FynbosAI/palettefineart-sub006/internal/store"
)

// fakeStore is an in-memory Store with the same contract as the Postgres
// implementation: (nil, nil) lookup misses, ErrConflict on duplicate unique
// names. Individual methods can be overridden per test.
type fakeStore struct {
	threads      []*store.ChatThread
	participants map[string]*store.ChatThreadParticipant
	memberships  map[string][]store.Membership
	orgs         map[string]*store.Organization
	profiles     map[string]*store.Profile
	quotes       map[string]*store.Quote
	shippers     map[string][]store.ThreadShipper
	nextID       int
	createCalls  int

	createThreadFn func(context.Context, store.ChatThread) (*store.ChatThread, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		participants: make(map[string]*store.ChatThreadParticipant),
		memberships:  make(map[string][]store.Membership),
		orgs:         make(map[string]*store.Organization),
		profiles:     make(map[string]*store.Profile),
		quotes:       make(map[string]*store.Quote),
		shippers:     make(map[string][]store.ThreadShipper),
	}
}

func ptrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (f *fakeStore) GetThreadByQuoteScope(_ context.Context, quoteID string, shipperOrgID, galleryOrgID *string) (*store.ChatThread, error) {
	for i := len(f.threads) - 1; i >= 0; i-- {
		t := f.threads[i]
		if t.QuoteID != nil && *t.QuoteID == quoteID &&
			ptrEq(t.ShipperBranchOrgID, shipperOrgID) &&
			ptrEq(t.GalleryBranchOrgID, galleryOrgID) {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetThreadByShipmentScope(_ context.Context, shipmentID string, shipperOrgID, galleryOrgID *string) (*store.ChatThread, error) {
	for i := len(f.threads) - 1; i >= 0; i-- {
		t := f.threads[i]
		if t.ShipmentID != nil && *t.ShipmentID == shipmentID &&
			ptrEq(t.ShipperBranchOrgID, shipperOrgID) &&
			ptrEq(t.GalleryBranchOrgID, galleryOrgID) {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetThreadByQuoteID(_ context.Context, quoteID string) (*store.ChatThread, error) {
	for i := len(f.threads) - 1; i >= 0; i-- {
		if f.threads[i].QuoteID != nil && *f.threads[i].QuoteID == quoteID {
			return f.threads[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetThreadByUniqueName(_ context.Context, uniqueName string) (*store.ChatThread, error) {
	for _, t := range f.threads {
		if t.UniqueName == uniqueName {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetThreadByID(_ context.Context, id string) (*store.ChatThread, error) {
	for _, t := range f.threads {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateThread(ctx context.Context, t store.ChatThread) (*store.ChatThread, error) {
	f.createCalls++
	if f.createThreadFn != nil {
		return f.createThreadFn(ctx, t)
	}
	return f.insertThread(t)
}

func (f *fakeStore) insertThread(t store.ChatThread) (*store.ChatThread, error) {
	for _, existing := range f.threads {
		if existing.UniqueName == t.UniqueName {
			return nil, fmt.Errorf("insert thread: %w", store.ErrConflict)
		}
	}
	f.nextID++
	t.ID = fmt.Sprintf("thr_%d", f.nextID)
	if t.Status == "" {
		t.Status = "active"
	}
	if len(t.Metadata) == 0 {
		t.Metadata = []byte(`{}`)
	}
	f.threads = append(f.threads, &t)
	return &t, nil
}

func (f *fakeStore) UpdateThreadMetadata(_ context.Context, id string, metadata json.RawMessage) error {
	for _, t := range f.threads {
		if t.ID == id {
			t.Metadata = metadata
			return nil
		}
	}
	return fmt.Errorf("thread %s not found", id)
}

func (f *fakeStore) UpdateThreadScope(_ context.Context, id string, shipmentID, shipperOrgID, galleryOrgID *string, metadata json.RawMessage) error {
	for _, t := range f.threads {
		if t.ID == id {
			t.ShipmentID = shipmentID
			t.ShipperBranchOrgID = shipperOrgID
			t.GalleryBranchOrgID = galleryOrgID
			t.Metadata = metadata
			return nil
		}
	}
	return fmt.Errorf("thread %s not found", id)
}

func participantKey(threadID, userID string) string {
	return threadID + "/" + userID
}

func (f *fakeStore) GetParticipantRecord(_ context.Context, threadID, userID string) (*store.ChatThreadParticipant, error) {
	return f.participants[participantKey(threadID, userID)], nil
}

func (f *fakeStore) UpsertParticipant(_ context.Context, p store.ChatThreadParticipant) (*store.ChatThreadParticipant, error) {
	key := participantKey(p.ThreadID, p.UserID)
	if existing, ok := f.participants[key]; ok {
		existing.Role = p.Role
		existing.Identity = p.Identity
		existing.RoleSID = p.RoleSID
		return existing, nil
	}
	f.nextID++
	p.ID = fmt.Sprintf("ctp_%d", f.nextID)
	f.participants[key] = &p
	return &p, nil
}

func (f *fakeStore) GetMembershipForOrg(_ context.Context, userID, orgID string) (*store.Membership, error) {
	for _, m := range f.memberships[orgID] {
		if m.UserID == userID {
			mm := m
			return &mm, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetMembersForOrganization(_ context.Context, orgID string) ([]store.Membership, error) {
	return f.memberships[orgID], nil
}

func (f *fakeStore) GetOrganizationByID(_ context.Context, id string) (*store.Organization, error) {
	return f.orgs[id], nil
}

func (f *fakeStore) GetProfileByUserID(_ context.Context, userID string) (*store.Profile, error) {
	return f.profiles[userID], nil
}

func (f *fakeStore) GetQuoteContext(_ context.Context, id string) (*store.Quote, error) {
	return f.quotes[id], nil
}

func (f *fakeStore) EnsureThreadShipper(_ context.Context, threadID, shipperOrgID, role string) error {
	for i, ts := range f.shippers[threadID] {
		if ts.ShipperOrgID == shipperOrgID {
			f.shippers[threadID][i].Role = role
			return nil
		}
	}
	f.shippers[threadID] = append(f.shippers[threadID], store.ThreadShipper{
		ThreadID:     threadID,
		ShipperOrgID: shipperOrgID,
		Role:         role,
	})
	return nil
}

func (f *fakeStore) GetThreadShippers(_ context.Context, threadID string) ([]store.ThreadShipper, error) {
	return f.shippers[threadID], nil
}

// addOrg registers an org and optional members.
func (f *fakeStore) addOrg(id, name, orgType string, members ...string) {
	f.orgs[id] = &store.Organization{ID: id, Name: name, Type: orgType}
	for _, userID := range members {
		f.memberships[id] = append(f.memberships[id], store.Membership{UserID: userID, OrganizationID: id})
	}
}

func testRoles() RoleConfig {
	return RoleConfig{ClientRoleSID: "RL_client", ShipperRoleSID: "RL_shipper"}
}

// newTestService builds a chat service over the fake store and the in-memory
// provider, pre-populated with a gallery quote fixture.
func newTestService(t *testing.T) (*Service, *fakeStore, *messaging.MemoryProvider) {
	t.Helper()
	fs := newFakeStore()
	fs.addOrg("org_gallery", "Galerie Nord", store.OrgTypeGallery, "usr_owner", "usr_staff")
	fs.addOrg("org_shipper", "ArteMove", store.OrgTypePartner, "usr_driver")
	fs.quotes["quo_1"] = &store.Quote{
		ID:          "quo_1",
		Title:       "Venice Biennale crating",
		OwnerOrgID:  "org_gallery",
		SubmittedBy: "usr_owner",
	}
	provider := messaging.NewMemoryProvider()
	return New(fs, provider, testRoles(), nil), fs, provider
}

func strp(s string) *string { return &s }
