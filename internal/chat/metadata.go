package chat

import (
	"encoding/json"
	"log"
	"sort"
	"strings"
)

// OrgSummary is the display shape of an organization embedded in thread
// metadata and pushed to the conversation attributes.
type OrgSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	LogoURL string `json:"logo_url,omitempty"`
}

type ParticipantSummary struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role"`
	Identity string `json:"identity"`
}

type ScopeEcho struct {
	ShipmentID         *string `json:"shipment_id"`
	ShipperBranchOrgID *string `json:"shipper_branch_org_id"`
	GalleryBranchOrgID *string `json:"gallery_branch_org_id"`
}

// ThreadMetadata is the denormalized JSON cache stored on the thread row and
// mirrored into the conversation attributes. It exists so list views never
// need provider round-trips.
type ThreadMetadata struct {
	ConversationType string               `json:"conversation_type,omitempty"`
	Title            string               `json:"title,omitempty"`
	Scope            *ScopeEcho           `json:"scope,omitempty"`
	Participants     []ParticipantSummary `json:"participants,omitempty"`
	// Partner holds the client-side org, Shipper the shipper-side org.
	// Both slots are first-writer-wins.
	Partner *OrgSummary `json:"partner,omitempty"`
	Shipper *OrgSummary `json:"shipper,omitempty"`
	// Shippers lists every member org of a peer thread, canonically sorted.
	Shippers []OrgSummary `json:"shippers,omitempty"`
}

func parseMetadata(raw json.RawMessage) ThreadMetadata {
	var m ThreadMetadata
	if len(raw) == 0 {
		return m
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		// A corrupt cache is rebuilt rather than propagated.
		log.Printf("chat: unreadable thread metadata, rebuilding: %v", err)
		return ThreadMetadata{}
	}
	return m
}

func (m ThreadMetadata) raw() json.RawMessage {
	b, err := json.Marshal(m)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

// mergeScope widens the metadata scope echo with newly resolved values.
// Existing non-nil fields are only replaced by non-nil values, so a thread's
// scope can be widened but never silently narrowed.
func (m *ThreadMetadata) mergeScope(scope ConversationScope) {
	if m.Scope == nil {
		m.Scope = &ScopeEcho{}
	}
	if scope.ShipmentID != nil {
		m.Scope.ShipmentID = scope.ShipmentID
	}
	if scope.ShipperBranchOrgID != nil {
		m.Scope.ShipperBranchOrgID = scope.ShipperBranchOrgID
	}
	if scope.GalleryBranchOrgID != nil {
		m.Scope.GalleryBranchOrgID = scope.GalleryBranchOrgID
	}
}

// upsertParticipant records a participant summary keyed by identity.
func (m *ThreadMetadata) upsertParticipant(p ParticipantSummary) {
	for i := range m.Participants {
		if m.Participants[i].Identity == p.Identity {
			m.Participants[i] = p
			return
		}
	}
	m.Participants = append(m.Participants, p)
}

// setShippers replaces the peer-thread org list in canonical order.
func (m *ThreadMetadata) setShippers(orgs []OrgSummary) {
	sorted := make([]OrgSummary, len(orgs))
	copy(sorted, orgs)
	sort.Slice(sorted, func(i, j int) bool {
		li, lj := strings.ToLower(sorted[i].ID), strings.ToLower(sorted[j].ID)
		if li == lj {
			return sorted[i].ID < sorted[j].ID
		}
		return li < lj
	})
	m.Shippers = sorted
}
