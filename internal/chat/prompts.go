// Package chat implements retrieval-augmented chat over the indexed library:
// retrieval prompt construction, citation deduplication, and answer
// generation with fallbacks.
package chat

import (
	"fmt"
	"strings"

	"github.com/hyperjump/shoko/internal/models"
)

// BuildSearchPrompt wraps the user query in retrieval phrasing. The query is
// trimmed and terminated with a question mark so phrasing variants of the
// same question embed consistently.
func BuildSearchPrompt(query string) string {
	base := strings.TrimSpace(query)
	if !strings.HasSuffix(base, "?") {
		base += "?"
	}
	return "You are a professional research assistant. Answer this question using my personal library as sources. " +
		"Focus on concise, factual explanation suitable for an academic summary. " +
		"Question: " + base
}

// BuildAnswerPrompt builds the generation prompt from the question and the
// retrieved snippets. With no snippets it asks the model to say the library
// has no relevant context.
func BuildAnswerPrompt(question string, snippets []models.Snippet) string {
	if len(snippets) == 0 {
		return "You are an academic assistant. The user asked a question, " +
			"but there is no relevant context from their personal library. " +
			"Explain that you cannot answer from their documents and suggest they add relevant articles.\n\n" +
			"Question: " + question
	}

	blocks := make([]string, len(snippets))
	for i, s := range snippets {
		title := s.Title
		if title == "" {
			title = "Untitled"
		}
		blocks[i] = fmt.Sprintf("[%d] %s (%s): %s", s.CitationID, title, s.Year, s.Snippet)
	}

	return "You are a professional research assistant answering questions using ONLY the context below, " +
		"taken from the user's personal library.\n" +
		"Write a clear, readable answer with:\n" +
		"- 1-2 sentences that directly answer the question.\n" +
		"- Then 2-4 short bullet points highlighting key details.\n" +
		"When you state a fact, cite the supporting sources using their IDs in brackets, e.g., [1]. " +
		"If the answer is not in the context, explicitly say you cannot answer from these documents.\n\n" +
		"Question: " + question + "\n\n" +
		"Context:\n" + strings.Join(blocks, "\n\n") + "\n\n" +
		"Answer:"
}
