package insight

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/website-growth-analyzer/internal/analysis"
)

// Completer sends a single prompt to a language model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Generator implements analysis.Generator on top of a Completer.
type Generator struct {
	client Completer
	rubric Rubric
	logger *zap.Logger
}

// New returns a Generator scoring against rubric.
func New(client Completer, rubric Rubric, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{client: client, rubric: rubric, logger: logger}
}

// Analyze prompts the model once. Transport failures are returned as
// *analysis.GenerationError; an unparseable reply yields FallbackResult.
func (g *Generator) Analyze(ctx context.Context, content analysis.CrawledContent) (analysis.Result, error) {
	if g.client == nil {
		return analysis.Result{}, &analysis.GenerationError{
			Kind:    analysis.GenerationNotConfigured,
			Message: "language model client is not configured",
		}
	}
	raw, err := g.client.Complete(ctx, BuildPrompt(content, g.rubric))
	if err != nil {
		var genErr *analysis.GenerationError
		if errors.As(err, &genErr) {
			return analysis.Result{}, err
		}
		return analysis.Result{}, &analysis.GenerationError{
			Kind:    analysis.GenerationUnknown,
			Message: "language model call failed",
			Err:     err,
		}
	}
	result, err := ParseReply(raw, g.rubric)
	if err != nil {
		g.logger.Warn("unparseable model reply, using fallback",
			zap.String("url", content.URL),
			zap.Int("reply_length", len(raw)),
			zap.Error(err),
		)
		return FallbackResult(), nil
	}
	return result, nil
}
