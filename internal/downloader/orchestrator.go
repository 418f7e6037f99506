package downloader

import (
	"context"

	"wxexport/pkg/events"
	"wxexport/pkg/logger"
	"wxexport/pkg/models"
)

// DefaultConcurrency is the number of articles processed at once
const DefaultConcurrency = 4

// Orchestrator fans a collected article list out over a WorkerPool
type Orchestrator struct {
	fetcher      ArticleFetcher
	materializer ArticleMaterializer
	workers      int
	sink         events.Sink
	logger       logger.Logger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithConcurrency sets the worker count
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

func WithSink(s events.Sink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(fetcher ArticleFetcher, materializer ArticleMaterializer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher:      fetcher,
		materializer: materializer,
		workers:      DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.GetLogger()
	}
	if o.sink == nil {
		o.sink = events.LogSink(o.logger)
	}
	return o
}

// RunAll exports every article and returns how many ended with at least
// one artifact on disk and how many did not. The two always add up to
// len(articles). Progress events arrive in completion order.
func (o *Orchestrator) RunAll(ctx context.Context, articles []models.ArticleRef, outputRoot string, formats models.FormatSet) (downloaded, skipped int) {
	total := len(articles)
	if total == 0 {
		return 0, 0
	}

	pool := NewWorkerPool(ctx, o.workers, o.fetcher, o.materializer, o.logger)
	pool.Start()

	go func() {
		defer pool.Stop()
		for i, a := range articles {
			job := ArticleJob{Index: i, Article: a, OutputRoot: outputRoot, Formats: formats}
			if err := pool.Submit(job); err != nil {
				o.logger.WithError(err).Warn("Stopped submitting articles")
				return
			}
		}
	}()

	done := 0
	for res := range pool.Results() {
		done++
		e := events.Event{Title: res.Job.Article.Title, Done: done, Total: total}
		if res.Success {
			downloaded++
			e.Kind = events.ArticleDownloaded
		} else {
			skipped++
			e.Kind = events.ArticleSkipped
			e.Err = res.Error
		}
		events.Emit(o.sink, e)
	}

	// jobs abandoned on cancellation
	skipped += total - done

	o.logger.InfoWithFields("Download phase finished", map[string]interface{}{
		"downloaded": downloaded,
		"skipped":    skipped,
		"total":      total,
	})
	return downloaded, skipped
}
