package services

import (
	"context"

	"github.com/douremember/go-descriptions-backend/internal/domain"
)

// ConclusionGenerator turns session averages and the per-description
// conclusions into the session narrative. Evaluator errors pass through
// unchanged.
type ConclusionGenerator struct {
	Evaluator Evaluator
}

// Summarize delegates to the evaluator's session summary.
func (g *ConclusionGenerator) Summarize(ctx context.Context, agg domain.SessionAggregates, conclusions []string) (*domain.SessionConclusion, error) {
	kept := make([]string, 0, len(conclusions))
	for _, c := range conclusions {
		if c != "" {
			kept = append(kept, c)
		}
	}
	return g.Evaluator.SummarizeSession(ctx, agg, kept)
}
