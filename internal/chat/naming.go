package chat

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// scopeHashLen is the number of hex characters kept from the scope digest.
// The name is an idempotency key, not a data carrier, so truncation is fine.
const scopeHashLen = 24

// QuoteConversationName builds the stable unique name for a quote thread.
// Unscoped threads share one name per quote; scoped threads append a content
// hash of the scope triple so distinct scopes get distinct conversations.
func QuoteConversationName(quoteID string, scope ConversationScope, scoped bool) string {
	if !scoped {
		return fmt.Sprintf("quote::%s", quoteID)
	}
	return fmt.Sprintf("quote::%s::scope::%s", quoteID, scopeHash(scope))
}

// scopeHash digests the canonical JSON of the scope triple. Key order is
// fixed by the struct, so identical triples always hash identically.
func scopeHash(scope ConversationScope) string {
	canonical, _ := json.Marshal(struct {
		ShipmentID         *string `json:"shipmentId"`
		ShipperBranchOrgID *string `json:"shipperBranchOrgId"`
		GalleryBranchOrgID *string `json:"galleryBranchOrgId"`
	}{scope.ShipmentID, scope.ShipperBranchOrgID, scope.GalleryBranchOrgID})
	digest := sha256.Sum256(canonical)
	return hex.EncodeToString(digest[:])[:scopeHashLen]
}

// PeerConversationName builds the canonical unique name for a direct
// shipper-to-shipper thread. Orgs are ordered case-insensitively so
// PeerConversationName(a, b, …) == PeerConversationName(b, a, …); that
// symmetry is the idempotency property peer threads hang off.
func PeerConversationName(orgA, orgB string, quoteID, shipmentID *string) string {
	lo, hi := orderOrgIDs(orgA, orgB)
	return fmt.Sprintf("shipper-peer::%s::%s::quote:%s::shipment:%s",
		lo, hi, orNone(quoteID), orNone(shipmentID))
}

func orderOrgIDs(a, b string) (string, string) {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la < lb || (la == lb && a <= b) {
		return a, b
	}
	return b, a
}

func orNone(v *string) string {
	if v == nil || *v == "" {
		return "none"
	}
	return *v
}
