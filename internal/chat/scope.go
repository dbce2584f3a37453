package chat

import "github.com/FynbosAI/palettefineart-sub006/internal/store"

// ConversationScope is the (shipment, shipper branch, gallery branch) triple
// that pins a thread to one negotiation context. All fields optional.
type ConversationScope struct {
	ShipmentID         *string
	ShipperBranchOrgID *string
	GalleryBranchOrgID *string
}

// scopeFilters remembers which fields the caller actually provided, for the
// fallback lookup: a filter that was never provided matches any stored value.
type scopeFilters struct {
	ShipmentID         Optional
	ShipperBranchOrgID Optional
	GalleryBranchOrgID Optional
}

type scopeResolution struct {
	Scope   ConversationScope
	Scoped  bool
	Filters scopeFilters
}

// resolveScope maps the quote context plus caller overrides into a normalized
// scope. A field is "provided" when the input carried the key at all, even as
// null: `shipmentId: null` explicitly requests no shipment, while an omitted
// key falls back to a default. Defaults apply only once scope is requested at
// all: gallery falls back to the quote owner org, shipment to the quote's own
// shipment.
func resolveScope(quote *store.Quote, in EnsureThreadInput) scopeResolution {
	requested := in.ShipmentID.Provided() || in.ShipperBranchOrgID.Provided() || in.GalleryBranchOrgID.Provided()

	res := scopeResolution{
		Filters: scopeFilters{
			ShipmentID:         in.ShipmentID,
			ShipperBranchOrgID: in.ShipperBranchOrgID,
			GalleryBranchOrgID: in.GalleryBranchOrgID,
		},
	}
	if !requested {
		return res
	}

	if in.ShipmentID.Provided() {
		res.Scope.ShipmentID = in.ShipmentID.Ptr()
	} else if quote.ShipmentID != nil {
		v := *quote.ShipmentID
		res.Scope.ShipmentID = &v
	}

	res.Scope.ShipperBranchOrgID = in.ShipperBranchOrgID.Ptr()

	if in.GalleryBranchOrgID.Provided() {
		res.Scope.GalleryBranchOrgID = in.GalleryBranchOrgID.Ptr()
	} else if quote.OwnerOrgID != "" {
		v := quote.OwnerOrgID
		res.Scope.GalleryBranchOrgID = &v
	}

	res.Scoped = res.Scope.ShipmentID != nil || res.Scope.ShipperBranchOrgID != nil || res.Scope.GalleryBranchOrgID != nil
	return res
}

// matchesProvidedFilters accepts a quote-id fallback hit only when every
// filter the caller provided equals the stored scope column. Unprovided
// filters match automatically. Deliberately lenient about unprovided fields
// to avoid spawning duplicate threads for the same quote.
func matchesProvidedFilters(t *store.ChatThread, f scopeFilters) bool {
	return filterMatches(f.ShipmentID, t.ShipmentID) &&
		filterMatches(f.ShipperBranchOrgID, t.ShipperBranchOrgID) &&
		filterMatches(f.GalleryBranchOrgID, t.GalleryBranchOrgID)
}

func filterMatches(f Optional, stored *string) bool {
	if !f.Provided() {
		return true
	}
	want := f.Ptr()
	if want == nil || stored == nil {
		return want == nil && stored == nil
	}
	return *want == *stored
}
