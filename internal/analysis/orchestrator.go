package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/website-growth-analyzer/internal/metrics"
)

// Stage names a step of the per-request pipeline.
type Stage string

// Pipeline stages, in order.
const (
	StageValidating Stage = "validating"
	StageFetching   Stage = "fetching"
	StageGenerating Stage = "generating"
	StagePersisting Stage = "persisting"
	StageResponding Stage = "responding"
)

// Orchestrator sequences Fetcher, Generator and LeadSaver for one request.
type Orchestrator struct {
	fetcher   Fetcher
	generator Generator
	store     LeadSaver
	publisher Publisher
	topic     string
	clock     Clock
	logger    *zap.Logger
}

// NewOrchestrator wires the pipeline collaborators. store and publisher may be
// nil, in which case persistence or notification is skipped.
func NewOrchestrator(
	fetcher Fetcher,
	generator Generator,
	store LeadSaver,
	clock Clock,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		fetcher:   fetcher,
		generator: generator,
		store:     store,
		clock:     clock,
		logger:    logger,
	}
}

// WithPublisher enables lead notifications on the given topic.
func (o *Orchestrator) WithPublisher(publisher Publisher, topic string) *Orchestrator {
	o.publisher = publisher
	o.topic = topic
	return o
}

// Run executes the pipeline. Fetch and generation failures are returned
// unchanged in kind; persistence failures are logged and never returned.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Response, error) {
	start := o.clock.Now()

	target, err := ValidateURL(req.URL)
	if err != nil {
		o.fail(StageValidating, req.URL, err)
		return Response{}, err
	}
	req.URL = target
	logger := o.logger.With(zap.String("url", target))
	logger.Info("analysis started")

	stageStart := time.Now()
	content, err := o.fetcher.Fetch(ctx, target)
	metrics.ObserveStage(string(StageFetching), time.Since(stageStart))
	if err != nil {
		o.fail(StageFetching, target, err)
		return Response{}, fmt.Errorf("fetch %s: %w", target, err)
	}
	logger.Debug("content fetched",
		zap.Int("content_length", content.ContentLength),
		zap.Duration("crawl_time", content.CrawlTime),
	)

	stageStart = time.Now()
	result, err := o.generator.Analyze(ctx, content)
	metrics.ObserveStage(string(StageGenerating), time.Since(stageStart))
	if err != nil {
		o.fail(StageGenerating, target, err)
		return Response{}, fmt.Errorf("analyze %s: %w", target, err)
	}

	stageStart = time.Now()
	ref := o.persist(ctx, req, content, result, logger)
	metrics.ObserveStage(string(StagePersisting), time.Since(stageStart))

	now := o.clock.Now()
	metrics.ObserveAnalysis("succeeded")
	logger.Info("analysis completed",
		zap.Int("score", result.Score),
		zap.Bool("persisted", ref != nil),
		zap.Duration("elapsed", now.Sub(start)),
	)
	return Response{
		URL:           target,
		Timestamp:     now,
		Result:        result,
		ContentLength: content.ContentLength,
		AnalysisTime:  now.Sub(start),
		Lead:          ref,
	}, nil
}

func (o *Orchestrator) persist(
	ctx context.Context,
	req Request,
	content CrawledContent,
	result Result,
	logger *zap.Logger,
) *SavedRef {
	if o.store == nil {
		return nil
	}
	now := o.clock.Now()
	record, err := NewLeadRecord(req, content, result, now)
	if err != nil {
		logger.Warn("build lead record failed", zap.Error(err))
		return nil
	}
	ref := o.store.Save(ctx, record)
	if ref == nil {
		logger.Warn("lead not persisted")
		return nil
	}
	o.notify(ctx, record, ref, logger)
	return ref
}

func (o *Orchestrator) notify(ctx context.Context, record LeadRecord, ref *SavedRef, logger *zap.Logger) {
	if o.publisher == nil || o.topic == "" {
		return
	}
	event := LeadEvent{
		LeadID:     ref.ID,
		URL:        record.URL,
		Domain:     record.Domain,
		Score:      record.GrowthScore,
		Inserted:   ref.Inserted,
		AnalyzedAt: record.AnalyzedAt,
	}
	if _, err := o.publisher.Publish(ctx, o.topic, event); err != nil {
		logger.Warn("publish lead event failed", zap.String("topic", o.topic), zap.Error(err))
	}
}

func (o *Orchestrator) fail(stage Stage, url string, err error) {
	metrics.ObserveAnalysis(outcomeFor(err))
	o.logger.Warn("analysis failed",
		zap.String("stage", string(stage)),
		zap.String("url", url),
		zap.Error(err),
	)
}

func outcomeFor(err error) string {
	var fetchErr *FetchError
	var genErr *GenerationError
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.As(err, &fetchErr):
		return "fetch_" + string(fetchErr.Kind)
	case errors.As(err, &genErr):
		return "generate_" + string(genErr.Kind)
	default:
		return "error"
	}
}
