// Package models defines core data structures for library items, indexing, and chat.
package models

// Item represents one logical document in the personal library: the parent
// bibliographic record plus its resolved document attachment, as read from
// the library database. Text is populated by the indexing run and is never
// mutated outside one.
type Item struct {
	ID             string `json:"item_id"`
	Key            string `json:"key"`
	Title          string `json:"title"`
	Date           string `json:"date"`
	Authors        string `json:"authors"`
	Tags           string `json:"tags"`
	Collections    string `json:"collections"`
	AttachmentKey  string `json:"attachment_key,omitempty"`
	AttachmentPath string `json:"attachment_path,omitempty"`
	DocumentPath   string `json:"document_path,omitempty"`
	Text           string `json:"-"`
}

// ItemFilter holds optional substring filters for library item search.
// Multiple values within one field are ORed; fields are ANDed.
type ItemFilter struct {
	Authors []string
	Titles  []string
	Dates   []string
}
