package chat

import (
	"github.com/hyperjump/shoko/internal/models"
	"github.com/hyperjump/shoko/internal/vectorstore"
	"github.com/hyperjump/shoko/pkg/utils"
)

type citationKey struct {
	title string
	year  string
	path  string
}

// DeduplicateCitations folds ranked results into snippets and a deduplicated
// citation list. Results from the same source document (same title, year, and
// path) share one citation ordinal; ordinals are 1-based and assigned in
// first-seen order, so the citation list follows retrieval rank. Snippet text
// is truncated to snippetLen runes.
func DeduplicateCitations(results []vectorstore.Result, snippetLen int) ([]models.Snippet, []models.Citation) {
	snippets := make([]models.Snippet, 0, len(results))
	citations := make([]models.Citation, 0, len(results))
	seen := make(map[citationKey]int)

	for _, r := range results {
		title := r.Metadata["title"]
		if title == "" {
			title = "Untitled"
		}
		year := r.Metadata["year"]
		path := r.Metadata["path"]
		key := citationKey{title: title, year: year, path: path}

		cid, ok := seen[key]
		if !ok {
			cid = len(seen) + 1
			seen[key] = cid
			citations = append(citations, models.Citation{
				ID:    cid,
				Title: title,
				Year:  year,
				Path:  path,
			})
		}

		snippets = append(snippets, models.Snippet{
			CitationID: cid,
			Snippet:    utils.TruncateRunes(r.Document, snippetLen),
			Title:      title,
			Year:       year,
			Path:       path,
		})
	}
	return snippets, citations
}
