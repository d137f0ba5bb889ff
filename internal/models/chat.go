package models

// ChatRequest is a retrieval-chat request. ItemIDs optionally scopes
// retrieval to the given library items.
type ChatRequest struct {
	Query   string   `json:"query"`
	ItemIDs []string `json:"item_ids,omitempty"`
}

// Snippet is one retrieved passage shown to the answer generator, tagged
// with the citation ordinal of its source document.
type Snippet struct {
	CitationID int    `json:"citation_id"`
	Snippet    string `json:"snippet"`
	Title      string `json:"title"`
	Year       string `json:"year"`
	Path       string `json:"path"`
}

// Citation is one unique source document, numbered in first-seen order.
type Citation struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Year  string `json:"year"`
	Path  string `json:"path"`
}

// ChatResponse is the structured chat result. Citations and Snippets are
// always non-nil so they serialize as [] rather than null.
type ChatResponse struct {
	Summary   string     `json:"summary"`
	Citations []Citation `json:"citations"`
	Snippets  []Snippet  `json:"snippets"`
}
