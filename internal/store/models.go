package store

import (
	"encoding/json"
	"time"
)

// Organization types. Shipper companies are "partner" organizations; every
// other type (galleries, advisors) maps to the client side of a thread.
const (
	OrgTypePartner = "partner"
	OrgTypeGallery = "gallery"
)

type Organization struct {
	ID        string
	Name      string
	Type      string
	LogoKey   string // object key in the logo bucket; empty when none uploaded
	CreatedAt time.Time
}

// Membership links a user to an organization.
type Membership struct {
	UserID         string
	OrganizationID string
	Role           string
	CreatedAt      time.Time
}

type Profile struct {
	UserID   string
	FullName string
}

// Quote is the slice of the quote record the chat subsystem needs.
type Quote struct {
	ID          string
	Title       string
	OwnerOrgID  string
	ShipmentID  *string
	SubmittedBy string
}

// GalleryBid is read back when a realtime bid event triggers a refresh.
// This subsystem never writes bids.
type GalleryBid struct {
	ID           string
	QuoteID      string
	GalleryOrgID string
	Amount       float64
	Currency     string
	Status       string
	UpdatedAt    time.Time
}

// Conversation types carried on a thread row.
const (
	ConversationTypeGallery     = "gallery"
	ConversationTypeShipperPeer = "shipper_peer"
)

// ChatThread links a negotiation scope to one external conversation.
// UniqueName is the idempotency key: the unique index on it is what keeps
// concurrent ensure calls safe across processes.
type ChatThread struct {
	ID                    string
	QuoteID               *string // nil for peer threads
	ShipmentID            *string
	OrganizationID        string // primary org: quote owner, or initiator for peer threads
	ShipperBranchOrgID    *string
	GalleryBranchOrgID    *string
	ConversationSID       string
	UniqueName            string
	Status                string
	Metadata              json.RawMessage
	CreatedBy             string
	ConversationType      string
	InitiatorShipperOrgID *string // peer threads only
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ChatThreadParticipant is one user's membership in a thread. At most one
// non-departed row exists per (thread, user); Identity is derived from
// (role, user) and never regenerated once minted.
type ChatThreadParticipant struct {
	ID             string
	ThreadID       string
	UserID         string
	OrganizationID string
	Role           string // "client" | "shipper"
	Identity       string
	RoleSID        string
	LeftAt         *time.Time
	CreatedAt      time.Time
}

// ThreadShipper roles for peer threads. Exactly one initiator per thread,
// assigned at creation.
const (
	ThreadShipperRoleInitiator = "initiator"
	ThreadShipperRolePeer      = "peer"
)

type ThreadShipper struct {
	ThreadID     string
	ShipperOrgID string
	Role         string
	CreatedAt    time.Time
}
