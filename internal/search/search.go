// Package search indexes the thread directory for the inbox search box.
package search

// Result is a single thread directory hit.
type Result struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Snippet          string `json:"snippet"`
	ConversationType string `json:"conversationType"`
	QuoteID          string `json:"quoteId,omitempty"`
	OrganizationID   string `json:"organizationId"`
}

// Query describes a thread directory search.
type Query struct {
	Text                   string
	FilterConversationType string
	FilterOrgID            string
	Limit                  int
	Offset                 int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a thread directory search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// ThreadRecord is the data indexed per thread. Denormalized from thread
// metadata so searches never touch the conversation provider.
type ThreadRecord struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	ConversationType string `json:"conversationType"`
	QuoteID          string `json:"quoteId"`
	OrganizationID   string `json:"organizationId"`
	PartnerName      string `json:"partnerName"`
	ShipperName      string `json:"shipperName"`
}
