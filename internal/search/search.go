package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	IsPublic bool   `json:"isPublic"`
}

// Query describes a search request. CallerID widens the result set to the
// caller's own private maps; empty means anonymous (public maps only).
type Query struct {
	Text     string
	CallerID string
	Limit    int
	Offset   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// MapRecord is the data indexed for a mind map. Content is deliberately not
// indexed: titles and descriptions are the discoverable surface, map bodies
// stay private to the detail endpoint's access check.
type MapRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	OwnerID     string `json:"ownerId"`
	IsPublic    bool   `json:"isPublic"`
}
