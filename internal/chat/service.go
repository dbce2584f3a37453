package chat

import (
	"context"
	"encoding/json"

	"github.com/FynbosAI/palettefineart-sub006/internal/messaging"
	"github.com/FynbosAI/palettefineart-sub006/internal/store"
)

// Store is the slice of the persistence layer the orchestration consumes.
// Lookups return (nil, nil) when the record is absent; CreateThread reports
// key collisions as store.ErrConflict.
type Store interface {
	GetThreadByQuoteScope(ctx context.Context, quoteID string, shipperOrgID, galleryOrgID *string) (*store.ChatThread, error)
	GetThreadByShipmentScope(ctx context.Context, shipmentID string, shipperOrgID, galleryOrgID *string) (*store.ChatThread, error)
	GetThreadByQuoteID(ctx context.Context, quoteID string) (*store.ChatThread, error)
	GetThreadByUniqueName(ctx context.Context, uniqueName string) (*store.ChatThread, error)
	GetThreadByID(ctx context.Context, id string) (*store.ChatThread, error)
	CreateThread(ctx context.Context, t store.ChatThread) (*store.ChatThread, error)
	UpdateThreadMetadata(ctx context.Context, id string, metadata json.RawMessage) error
	UpdateThreadScope(ctx context.Context, id string, shipmentID, shipperOrgID, galleryOrgID *string, metadata json.RawMessage) error
	GetParticipantRecord(ctx context.Context, threadID, userID string) (*store.ChatThreadParticipant, error)
	UpsertParticipant(ctx context.Context, p store.ChatThreadParticipant) (*store.ChatThreadParticipant, error)
	GetMembershipForOrg(ctx context.Context, userID, orgID string) (*store.Membership, error)
	GetMembersForOrganization(ctx context.Context, orgID string) ([]store.Membership, error)
	GetOrganizationByID(ctx context.Context, id string) (*store.Organization, error)
	GetProfileByUserID(ctx context.Context, userID string) (*store.Profile, error)
	GetQuoteContext(ctx context.Context, id string) (*store.Quote, error)
	EnsureThreadShipper(ctx context.Context, threadID, shipperOrgID, role string) error
	GetThreadShippers(ctx context.Context, threadID string) ([]store.ThreadShipper, error)
}

// Participant roles within a thread.
const (
	RoleClient  = "client"
	RoleShipper = "shipper"
)

// RoleConfig carries the provider role tokens per participant role. A blank
// token for a needed role is a configuration fault, not a retryable error.
type RoleConfig struct {
	ClientRoleSID  string
	ShipperRoleSID string
}

func (c RoleConfig) sidFor(role string) string {
	if role == RoleShipper {
		return c.ShipperRoleSID
	}
	return c.ClientRoleSID
}

// LogoResolver turns a stored logo object key into a servable URL.
type LogoResolver interface {
	ResolveLogoURL(ctx context.Context, key string) string
}

// Service owns thread scope resolution, idempotent thread/conversation
// creation, and participant seeding.
type Service struct {
	store    Store
	provider messaging.Provider
	roles    RoleConfig
	logos    LogoResolver // may be nil
}

func New(st Store, provider messaging.Provider, roles RoleConfig, logos LogoResolver) *Service {
	return &Service{store: st, provider: provider, roles: roles, logos: logos}
}

func (s *Service) logoURL(ctx context.Context, key string) string {
	if key == "" || s.logos == nil {
		return key
	}
	return s.logos.ResolveLogoURL(ctx, key)
}

func (s *Service) orgSummary(ctx context.Context, org *store.Organization) OrgSummary {
	return OrgSummary{
		ID:      org.ID,
		Name:    org.Name,
		LogoURL: s.logoURL(ctx, org.LogoKey),
	}
}

func (s *Service) displayName(ctx context.Context, userID string) string {
	profile, err := s.store.GetProfileByUserID(ctx, userID)
	if err != nil || profile == nil || profile.FullName == "" {
		return userID
	}
	return profile.FullName
}
