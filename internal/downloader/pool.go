package downloader

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"wxexport/pkg/content"
	"wxexport/pkg/logger"
	"wxexport/pkg/models"
)

var errNothingWritten = errors.New("no requested format could be written")

// ArticleJob is one fetch-and-materialize task
type ArticleJob struct {
	Index      int
	Article    models.ArticleRef
	OutputRoot string
	Formats    models.FormatSet
}

// ArticleResult is the outcome of an ArticleJob
type ArticleResult struct {
	Job      ArticleJob
	Success  bool
	Cached   bool
	Error    error
	Duration time.Duration
}

// ArticleFetcher downloads and sanitizes an article page
type ArticleFetcher interface {
	Fetch(ctx context.Context, ref models.ArticleRef) (*content.Sanitized, error)
}

// ArticleMaterializer writes the requested formats for an article
type ArticleMaterializer interface {
	Satisfied(ref models.ArticleRef, outputRoot string, formats models.FormatSet) bool
	Materialize(ctx context.Context, ref models.ArticleRef, sanitized *content.Sanitized, outputRoot string, formats models.FormatSet) bool
}

// WorkerPool runs article jobs on a fixed number of workers
type WorkerPool struct {
	numWorkers   int
	jobQueue     chan ArticleJob
	resultQueue  chan ArticleResult
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
	fetcher      ArticleFetcher
	materializer ArticleMaterializer
	logger       logger.Logger
}

// NewWorkerPool creates a pool bound to ctx
func NewWorkerPool(
	ctx context.Context,
	numWorkers int,
	fetcher ArticleFetcher,
	materializer ArticleMaterializer,
	log logger.Logger,
) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = DefaultConcurrency
	}
	if log == nil {
		log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		numWorkers:   numWorkers,
		jobQueue:     make(chan ArticleJob, numWorkers*2),
		resultQueue:  make(chan ArticleResult, numWorkers),
		ctx:          ctx,
		cancel:       cancel,
		fetcher:      fetcher,
		materializer: materializer,
		logger:       log,
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the queue, waits for the workers and closes Results
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()

	wp.logger.Debug("Worker pool stopped")
}

// Submit queues a job, blocking while the queue is full
func (wp *WorkerPool) Submit(job ArticleJob) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

// Results returns the channel of finished jobs, in completion order
func (wp *WorkerPool) Results() <-chan ArticleResult {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		select {
		case <-wp.ctx.Done():
			return
		default:
		}

		result := wp.processJob(job, id)

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
			return
		}
	}
}

// processJob never panics; a panic in the pipeline becomes the job's error
func (wp *WorkerPool) processJob(job ArticleJob, workerID int) (result ArticleResult) {
	start := time.Now()
	result = ArticleResult{Job: job}
	log := wp.logger.WithFields(map[string]interface{}{
		"worker_id": workerID,
		"title":     job.Article.Title,
	})

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Error = fmt.Errorf("panic: %v", r)
			log.ErrorWithFields("Worker recovered from panic", map[string]interface{}{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			})
		}
		result.Duration = time.Since(start)
	}()

	if wp.materializer.Satisfied(job.Article, job.OutputRoot, job.Formats) {
		log.Debug("All formats already exported")
		result.Success = true
		result.Cached = true
		return result
	}

	sanitized, err := wp.fetcher.Fetch(wp.ctx, job.Article)
	if err != nil {
		result.Error = fmt.Errorf("fetch failed: %w", err)
		log.WithError(err).Warn("Worker failed to fetch article")
		return result
	}

	if !wp.materializer.Materialize(wp.ctx, job.Article, sanitized, job.OutputRoot, job.Formats) {
		result.Error = errNothingWritten
		return result
	}

	result.Success = true
	log.DebugWithFields("Worker completed job", map[string]interface{}{
		"images":   sanitized.Images,
		"embedded": sanitized.Embedded,
	})
	return result
}
