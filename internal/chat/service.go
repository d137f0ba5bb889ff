package chat

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/shoko/internal/llm"
	"github.com/hyperjump/shoko/internal/models"
	"github.com/hyperjump/shoko/internal/vectorstore"
)

// NoResultsSummary is returned when nothing could be retrieved and the
// generator also failed to produce an explanation.
const NoResultsSummary = "No relevant passages found in your library."

// Service answers questions over the indexed library. Retrieval or
// generation failures degrade the answer instead of failing the request.
type Service struct {
	store         vectorstore.Store
	generator     llm.Generator
	topK          int
	snippetLength int
	logger        *zap.Logger
}

// NewService creates a chat service. topK and snippetLength fall back to 5
// and 500 when not positive.
func NewService(store vectorstore.Store, generator llm.Generator, topK, snippetLength int, logger *zap.Logger) *Service {
	if topK <= 0 {
		topK = 5
	}
	if snippetLength <= 0 {
		snippetLength = 500
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:         store,
		generator:     generator,
		topK:          topK,
		snippetLength: snippetLength,
		logger:        logger,
	}
}

// Chat retrieves passages for the query, deduplicates citations, and asks
// the generator for a summary. It always returns a well-formed response:
// a retrieval failure yields the no-results summary, and a generation
// failure falls back to the first snippet's text.
func (s *Service) Chat(ctx context.Context, query string, itemIDs []string) *models.ChatResponse {
	var filter *vectorstore.Filter
	if len(itemIDs) > 0 {
		filter = &vectorstore.Filter{ItemIDs: itemIDs}
	}

	results, err := s.store.Query(ctx, BuildSearchPrompt(query), s.topK, filter)
	if err != nil {
		s.logger.Warn("retrieval failed", zap.Error(err))
		results = nil
	}

	snippets, citations := DeduplicateCitations(results, s.snippetLength)

	summary, err := s.generator.Generate(ctx, BuildAnswerPrompt(query, snippets))
	if err != nil {
		s.logger.Warn("answer generation failed",
			zap.String("model", s.generator.ModelName()), zap.Error(err))
		if len(snippets) > 0 {
			summary = snippets[0].Snippet
		} else {
			summary = NoResultsSummary
		}
	}

	return &models.ChatResponse{
		Summary:   summary,
		Citations: citations,
		Snippets:  snippets,
	}
}
