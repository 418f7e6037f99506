package downloader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wxexport/pkg/content"
	"wxexport/pkg/events"
	"wxexport/pkg/logger"
	"wxexport/pkg/models"
)

// MockFetcher is a mock implementation of the article fetcher
type MockFetcher struct {
	delay    time.Duration
	failFor  map[string]error
	panicFor string
	calls    int32
	inFlight int32
	maxSeen  int32
}

func (m *MockFetcher) Fetch(ctx context.Context, ref models.ArticleRef) (*content.Sanitized, error) {
	atomic.AddInt32(&m.calls, 1)
	n := atomic.AddInt32(&m.inFlight, 1)
	defer atomic.AddInt32(&m.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&m.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&m.maxSeen, seen, n) {
			break
		}
	}

	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if ref.Title == m.panicFor {
		panic("unexpected markup")
	}
	if err := m.failFor[ref.Title]; err != nil {
		return nil, err
	}
	return &content.Sanitized{HTML: "<p>" + ref.Title + "</p>"}, nil
}

func (m *MockFetcher) GetCallCount() int {
	return int(atomic.LoadInt32(&m.calls))
}

// MockMaterializer records written articles in memory
type MockMaterializer struct {
	mu       sync.Mutex
	written  map[string]bool
	existing map[string]bool
	rejects  map[string]bool
}

func NewMockMaterializer() *MockMaterializer {
	return &MockMaterializer{
		written:  make(map[string]bool),
		existing: make(map[string]bool),
		rejects:  make(map[string]bool),
	}
}

func (m *MockMaterializer) Satisfied(ref models.ArticleRef, outputRoot string, formats models.FormatSet) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.existing[ref.Title]
}

func (m *MockMaterializer) Materialize(ctx context.Context, ref models.ArticleRef, sanitized *content.Sanitized, outputRoot string, formats models.FormatSet) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rejects[ref.Title] {
		return false
	}
	m.written[ref.Title] = true
	return true
}

func (m *MockMaterializer) GetWrittenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.written)
}

func makeArticles(n int) []models.ArticleRef {
	articles := make([]models.ArticleRef, n)
	for i := range articles {
		articles[i] = models.ArticleRef{
			Title:         fmt.Sprintf("article-%d", i),
			Link:          fmt.Sprintf("https://mp.weixin.qq.com/s/%d", i),
			PublishedDate: "2024-01-15",
		}
	}
	return articles
}

type countingSink struct {
	mu     sync.Mutex
	counts map[events.Kind]int
	last   events.Event
}

func (s *countingSink) Emit(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = make(map[events.Kind]int)
	}
	s.counts[e.Kind]++
	s.last = e
}

func TestWorkerPoolBasicFunctionality(t *testing.T) {
	fetcher := &MockFetcher{delay: 5 * time.Millisecond}
	materializer := NewMockMaterializer()

	pool := NewWorkerPool(context.Background(), 3, fetcher, materializer, logger.NewTestLogger())
	pool.Start()

	var results []ArticleResult
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for result := range pool.Results() {
			results = append(results, result)
		}
	}()

	numJobs := 10
	for i, a := range makeArticles(numJobs) {
		if err := pool.Submit(ArticleJob{Index: i, Article: a, Formats: models.NewFormatSet(models.FormatHTML)}); err != nil {
			t.Errorf("Failed to submit job %d: %v", i, err)
		}
	}

	pool.Stop()
	wg.Wait()

	if len(results) != numJobs {
		t.Errorf("Expected %d results, got %d", numJobs, len(results))
	}
	for _, result := range results {
		if !result.Success {
			t.Errorf("Expected job %d to succeed, got %v", result.Job.Index, result.Error)
		}
	}
	if fetcher.GetCallCount() != numJobs {
		t.Errorf("Expected %d fetches, got %d", numJobs, fetcher.GetCallCount())
	}
	if materializer.GetWrittenCount() != numJobs {
		t.Errorf("Expected %d written articles, got %d", numJobs, materializer.GetWrittenCount())
	}
}

func TestRunAllIsolatesFailures(t *testing.T) {
	articles := makeArticles(8)
	fetcher := &MockFetcher{failFor: map[string]error{"article-3": fmt.Errorf("connection reset")}}
	materializer := NewMockMaterializer()
	sink := &countingSink{}

	o := NewOrchestrator(fetcher, materializer, WithSink(sink), WithLogger(logger.NewTestLogger()))
	downloaded, skipped := o.RunAll(context.Background(), articles, t.TempDir(), models.NewFormatSet(models.FormatHTML))

	if downloaded+skipped != len(articles) {
		t.Errorf("Expected counts to add up to %d, got %d+%d", len(articles), downloaded, skipped)
	}
	if downloaded != 7 || skipped != 1 {
		t.Errorf("Expected 7 downloaded and 1 skipped, got %d and %d", downloaded, skipped)
	}
	if materializer.written["article-3"] {
		t.Error("Failed article must not be materialized")
	}
	if sink.counts[events.ArticleDownloaded] != 7 || sink.counts[events.ArticleSkipped] != 1 {
		t.Errorf("Unexpected event counts %v", sink.counts)
	}
	if sink.last.Done != len(articles) || sink.last.Total != len(articles) {
		t.Errorf("Expected final progress %d/%d, got %d/%d", len(articles), len(articles), sink.last.Done, sink.last.Total)
	}
}

func TestRunAllRecoversPanics(t *testing.T) {
	articles := makeArticles(5)
	fetcher := &MockFetcher{panicFor: "article-1"}
	materializer := NewMockMaterializer()
	log := logger.NewTestLogger()

	o := NewOrchestrator(fetcher, materializer, WithSink(events.Nop()), WithLogger(log))
	downloaded, skipped := o.RunAll(context.Background(), articles, t.TempDir(), models.NewFormatSet(models.FormatHTML))

	if downloaded != 4 || skipped != 1 {
		t.Errorf("Expected 4 downloaded and 1 skipped, got %d and %d", downloaded, skipped)
	}
	if !log.HasMessage("Worker recovered from panic") {
		t.Error("Expected the panic to be logged")
	}
}

func TestRunAllCountsMaterializeFailureAsSkipped(t *testing.T) {
	articles := makeArticles(3)
	materializer := NewMockMaterializer()
	materializer.rejects["article-2"] = true

	o := NewOrchestrator(&MockFetcher{}, materializer, WithSink(events.Nop()), WithLogger(logger.NewTestLogger()))
	downloaded, skipped := o.RunAll(context.Background(), articles, t.TempDir(), models.NewFormatSet(models.FormatPDF))

	if downloaded != 2 || skipped != 1 {
		t.Errorf("Expected 2 downloaded and 1 skipped, got %d and %d", downloaded, skipped)
	}
}

func TestRunAllSkipsFetchWhenSatisfied(t *testing.T) {
	articles := makeArticles(4)
	fetcher := &MockFetcher{}
	materializer := NewMockMaterializer()
	materializer.existing["article-0"] = true
	materializer.existing["article-2"] = true

	o := NewOrchestrator(fetcher, materializer, WithSink(events.Nop()), WithLogger(logger.NewTestLogger()))
	downloaded, skipped := o.RunAll(context.Background(), articles, t.TempDir(), models.NewFormatSet(models.FormatHTML))

	if downloaded != 4 || skipped != 0 {
		t.Errorf("Expected 4 downloaded, got %d and %d skipped", downloaded, skipped)
	}
	if fetcher.GetCallCount() != 2 {
		t.Errorf("Expected 2 fetches, got %d", fetcher.GetCallCount())
	}
}

func TestRunAllBoundsConcurrency(t *testing.T) {
	fetcher := &MockFetcher{delay: 20 * time.Millisecond}

	o := NewOrchestrator(fetcher, NewMockMaterializer(), WithSink(events.Nop()), WithLogger(logger.NewTestLogger()))
	downloaded, _ := o.RunAll(context.Background(), makeArticles(12), t.TempDir(), models.NewFormatSet(models.FormatHTML))

	if downloaded != 12 {
		t.Errorf("Expected 12 downloaded, got %d", downloaded)
	}
	if max := atomic.LoadInt32(&fetcher.maxSeen); max > DefaultConcurrency || max < 2 {
		t.Errorf("Expected between 2 and %d concurrent fetches, saw %d", DefaultConcurrency, max)
	}
}

func TestRunAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	articles := makeArticles(20)
	o := NewOrchestrator(&MockFetcher{}, NewMockMaterializer(), WithConcurrency(2), WithSink(events.Nop()), WithLogger(logger.NewTestLogger()))
	downloaded, skipped := o.RunAll(ctx, articles, t.TempDir(), models.NewFormatSet(models.FormatHTML))

	if downloaded+skipped != len(articles) {
		t.Errorf("Expected counts to add up to %d, got %d+%d", len(articles), downloaded, skipped)
	}
}

func TestRunAllEmpty(t *testing.T) {
	o := NewOrchestrator(&MockFetcher{}, NewMockMaterializer(), WithLogger(logger.NewTestLogger()))
	downloaded, skipped := o.RunAll(context.Background(), nil, t.TempDir(), models.NewFormatSet(models.FormatHTML))
	if downloaded != 0 || skipped != 0 {
		t.Errorf("Expected 0/0, got %d/%d", downloaded, skipped)
	}
}
