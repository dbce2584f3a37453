package chat

import (
	"strings"
	"testing"
)

func TestQuoteConversationNameUnscoped(t *testing.T) {
	got := QuoteConversationName("quo_1", ConversationScope{}, false)
	if got != "quote::quo_1" {
		t.Errorf("unexpected name %q", got)
	}
}

func TestQuoteConversationNameScoped(t *testing.T) {
	scope := ConversationScope{
		ShipmentID:         strp("shp_1"),
		ShipperBranchOrgID: strp("org_s"),
		GalleryBranchOrgID: strp("org_g"),
	}

	name := QuoteConversationName("quo_1", scope, true)
	if !strings.HasPrefix(name, "quote::quo_1::scope::") {
		t.Fatalf("unexpected name %q", name)
	}
	hash := strings.TrimPrefix(name, "quote::quo_1::scope::")
	if len(hash) != scopeHashLen {
		t.Errorf("expected %d-char hash, got %d (%q)", scopeHashLen, len(hash), hash)
	}

	// Identical scopes hash identically, on every call.
	if again := QuoteConversationName("quo_1", scope, true); again != name {
		t.Errorf("hash not deterministic: %q vs %q", name, again)
	}

	// Any field change produces a different name.
	variants := []ConversationScope{
		{ShipmentID: strp("shp_2"), ShipperBranchOrgID: strp("org_s"), GalleryBranchOrgID: strp("org_g")},
		{ShipmentID: strp("shp_1"), ShipperBranchOrgID: nil, GalleryBranchOrgID: strp("org_g")},
		{ShipmentID: strp("shp_1"), ShipperBranchOrgID: strp("org_s"), GalleryBranchOrgID: nil},
	}
	for i, v := range variants {
		if QuoteConversationName("quo_1", v, true) == name {
			t.Errorf("variant %d collided with the base scope", i)
		}
	}
}

func TestScopeHashIgnoresPointerIdentity(t *testing.T) {
	a := ConversationScope{ShipmentID: strp("shp_1")}
	b := ConversationScope{ShipmentID: strp("shp_1")}
	if scopeHash(a) != scopeHash(b) {
		t.Error("equal values must hash equally regardless of pointer identity")
	}
}

func TestPeerConversationNameSymmetric(t *testing.T) {
	quote := strp("quo_1")
	ab := PeerConversationName("org_a", "org_b", quote, nil)
	ba := PeerConversationName("org_b", "org_a", quote, nil)
	if ab != ba {
		t.Errorf("peer name must be order-independent: %q vs %q", ab, ba)
	}
	if ab != "shipper-peer::org_a::org_b::quote:quo_1::shipment:none" {
		t.Errorf("unexpected canonical name %q", ab)
	}
}

func TestPeerConversationNameCaseInsensitiveOrder(t *testing.T) {
	// Ordering compares case-insensitively so "Org_B" sorts against "org_a"
	// by letter, not by ASCII case.
	name := PeerConversationName("Org_B", "org_a", nil, nil)
	if !strings.HasPrefix(name, "shipper-peer::org_a::Org_B::") {
		t.Errorf("unexpected order in %q", name)
	}
}

func TestPeerConversationNameScopes(t *testing.T) {
	plain := PeerConversationName("org_a", "org_b", nil, nil)
	quoted := PeerConversationName("org_a", "org_b", strp("quo_1"), nil)
	shipped := PeerConversationName("org_a", "org_b", nil, strp("shp_1"))

	if plain == quoted || plain == shipped || quoted == shipped {
		t.Errorf("scope variants must not collide: %q %q %q", plain, quoted, shipped)
	}
	if plain != "shipper-peer::org_a::org_b::quote:none::shipment:none" {
		t.Errorf("unexpected unscoped name %q", plain)
	}
}
