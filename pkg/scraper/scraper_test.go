package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"wxexport/pkg/checkpoint"
	"wxexport/pkg/config"
	errs "wxexport/pkg/errors"
	"wxexport/pkg/events"
	"wxexport/pkg/logger"
	"wxexport/pkg/metadata"
	"wxexport/pkg/models"
	"wxexport/pkg/ui"
	"wxexport/pkg/wechat"
)

const testAccount = "薪火传"

// mockConsole mimics the search, listing and article endpoints
type mockConsole struct {
	server *httptest.Server

	mu           sync.Mutex
	rateLimitAt  int
	failListing  bool
	listOffsets  []int
	articleCalls int32
	imageCalls   int32
}

var listing = []models.AppMsgItem{
	{AID: "1", Title: "春季计划", CreateTime: 1710072000, Digest: "<b>摘要</b>"},
	{AID: "2", Title: "冬日随笔", CreateTime: 1708430400},
	{AID: "3", Title: "新年致辞", CreateTime: 1705320000},
}

func newMockConsole(t *testing.T) *mockConsole {
	t.Helper()
	m := &mockConsole{rateLimitAt: -1}

	mux := http.NewServeMux()
	mux.HandleFunc(wechat.SearchEndpoint, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, models.SearchResponse{
			List: []models.BizCandidate{
				{FakeID: "other", Nickname: testAccount + "2"},
				{FakeID: "MzA5", Nickname: testAccount},
			},
		})
	})
	mux.HandleFunc(wechat.ListEndpoint, func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("begin"))
		count, _ := strconv.Atoi(r.URL.Query().Get("count"))

		m.mu.Lock()
		m.listOffsets = append(m.listOffsets, offset)
		rateLimited := m.rateLimitAt >= 0 && offset >= m.rateLimitAt
		failing := m.failListing
		m.mu.Unlock()

		if failing {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if rateLimited {
			writeJSON(w, models.AppMsgResponse{BaseResp: models.BaseResp{Ret: wechat.RetFreqControl, ErrMsg: "freq control"}})
			return
		}

		var items []models.AppMsgItem
		for i := offset; i < offset+count && i < len(listing); i++ {
			item := listing[i]
			item.Link = m.server.URL + "/s/" + item.AID
			items = append(items, item)
		}
		writeJSON(w, models.AppMsgResponse{AppMsgList: items, AppMsgCnt: len(listing)})
	})
	mux.HandleFunc("/s/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&m.articleCalls, 1)
		fmt.Fprintf(w, `<html><head><title>t</title></head><body><div id="js_content"><p>正文</p><img data-src="%s/img/a.png?wx_fmt=png"></div></body></html>`, m.server.URL)
	})
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&m.imageCalls, 1)
		var buf bytes.Buffer
		_ = png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2)))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	})

	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockConsole) offsets() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.listOffsets...)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingSink) Emit(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) count(k events.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

type notificationLog struct {
	mu     sync.Mutex
	titles []string
}

func (n *notificationLog) Send(title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
	return nil
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.WeChat.BaseURL = baseURL
	cfg.WeChat.Location = "UTC"
	cfg.Output.BaseDirectory = t.TempDir()
	cfg.Output.Formats = []string{"html"}
	cfg.Storage.CheckpointDir = t.TempDir()
	cfg.RateLimit.PageSize = 2
	cfg.Notifications.Enabled = true
	return cfg
}

func newTestScraper(t *testing.T, cfg *config.Config, opts ...Option) (*Scraper, *recordingSink, *notificationLog) {
	t.Helper()
	sink := &recordingSink{}
	notes := &notificationLog{}
	base := []Option{
		WithSink(sink),
		WithLogger(logger.NewTestLogger()),
		WithNotifier(ui.NewNotifierWithSender(notes)),
		WithSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() }),
	}
	s, err := New(cfg, wechat.Credentials{Cookie: "slave_sid=abc", Token: "42"}, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, sink, notes
}

func TestExportEndToEnd(t *testing.T) {
	console := newMockConsole(t)
	cfg := testConfig(t, console.server.URL)
	s, sink, notes := newTestScraper(t, cfg)

	summary, err := s.Export(context.Background(), testAccount, Options{})
	require.NoError(t, err)

	assert.Equal(t, "MzA5", summary.FakeID)
	assert.Equal(t, filepath.Join(cfg.Output.BaseDirectory, testAccount), summary.OutputRoot)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 3, summary.Collected)
	assert.Equal(t, 3, summary.Downloaded)
	assert.Equal(t, 0, summary.Skipped)
	assert.False(t, summary.RateLimited)
	assert.Equal(t, []int{0, 2, 4}, console.offsets())

	path := filepath.Join(summary.OutputRoot, "HTML", "2024-03-10_春季计划.html")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `content="no-referrer"`)
	assert.Contains(t, string(data), "data:image/png;base64,")
	assert.GreaterOrEqual(t, atomic.LoadInt32(&console.imageCalls), int32(1))

	idx, err := metadata.Load(summary.OutputRoot)
	require.NoError(t, err)
	require.NotNil(t, idx)
	assert.Equal(t, summary.RunID, idx.RunID)
	require.Len(t, idx.Articles, 3)
	assert.Equal(t, "摘要", idx.Articles[0].Digest)
	assert.Equal(t, "HTML/2024-03-10_春季计划.html", idx.Articles[0].Artifacts["html"])

	cpMgr, err := checkpoint.NewManager(testAccount, cfg.Storage.CheckpointDir)
	require.NoError(t, err)
	assert.False(t, cpMgr.Exists(), "a complete run leaves no checkpoint")

	assert.Equal(t, 3, sink.count(events.ArticleDownloaded))
	assert.Equal(t, 1, sink.count(events.RunFinished))
	assert.Equal(t, []string{"导出完成"}, notes.titles)
}

func TestExportDateWindow(t *testing.T) {
	console := newMockConsole(t)
	cfg := testConfig(t, console.server.URL)
	s, _, _ := newTestScraper(t, cfg)

	window, err := models.ParseDateWindow("2024-02-01", "2024-02-29")
	require.NoError(t, err)

	summary, err := s.Export(context.Background(), testAccount, Options{Window: window})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Collected)
	assert.Equal(t, 1, summary.Downloaded)

	entries, err := os.ReadDir(filepath.Join(summary.OutputRoot, "HTML"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2024-02-20_冬日随笔.html", entries[0].Name())
}

func TestExportAccountNotFound(t *testing.T) {
	console := newMockConsole(t)
	s, sink, _ := newTestScraper(t, testConfig(t, console.server.URL))

	_, err := s.Export(context.Background(), "不存在", Options{})
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
	assert.Equal(t, 1, sink.count(events.AccountNotFound))
	assert.Empty(t, console.offsets())
}

func TestExportRateLimitedThenResume(t *testing.T) {
	console := newMockConsole(t)
	console.rateLimitAt = 2
	cfg := testConfig(t, console.server.URL)
	s, sink, notes := newTestScraper(t, cfg)

	summary, err := s.Export(context.Background(), testAccount, Options{})
	require.NoError(t, err)
	assert.True(t, summary.RateLimited)
	assert.Equal(t, 2, summary.Collected)
	assert.Equal(t, 2, summary.Downloaded)
	assert.Equal(t, 1, sink.count(events.RateLimitPersisted))
	assert.Equal(t, []string{"频率限制", "导出完成"}, notes.titles)

	cpMgr, err := checkpoint.NewManager(testAccount, cfg.Storage.CheckpointDir)
	require.NoError(t, err)
	cp, err := cpMgr.Load()
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.False(t, cp.Complete)
	assert.Equal(t, 2, cp.NextOffset)
	assert.Len(t, cp.Articles, 2)

	console.mu.Lock()
	console.rateLimitAt = -1
	console.listOffsets = nil
	console.mu.Unlock()
	fetchedBefore := atomic.LoadInt32(&console.articleCalls)

	s2, _, _ := newTestScraper(t, cfg)
	summary, err = s2.Export(context.Background(), testAccount, Options{Resume: true})
	require.NoError(t, err)
	assert.True(t, summary.Resumed)
	assert.Equal(t, 3, summary.Collected)
	assert.Equal(t, 3, summary.Downloaded)
	assert.Equal(t, []int{2, 4}, console.offsets(), "listing resumes at the saved offset")
	assert.Equal(t, int32(1), atomic.LoadInt32(&console.articleCalls)-fetchedBefore, "existing artifacts are not fetched again")
	assert.False(t, cpMgr.Exists())

	backup, err := os.ReadFile(cpMgr.BackupPath())
	require.NoError(t, err, "the resumed checkpoint is backed up before it is extended")
	var saved checkpoint.Checkpoint
	require.NoError(t, json.Unmarshal(backup, &saved))
	assert.Equal(t, 2, saved.NextOffset)
}

func TestExportFreshRunBacksUpPreviousCheckpoint(t *testing.T) {
	console := newMockConsole(t)
	console.rateLimitAt = 2
	cfg := testConfig(t, console.server.URL)
	s, _, _ := newTestScraper(t, cfg)

	_, err := s.Export(context.Background(), testAccount, Options{})
	require.NoError(t, err)

	console.mu.Lock()
	console.rateLimitAt = -1
	console.listOffsets = nil
	console.mu.Unlock()

	log := logger.NewTestLogger()
	s2, _, _ := newTestScraper(t, cfg, WithLogger(log))
	summary, err := s2.Export(context.Background(), testAccount, Options{})
	require.NoError(t, err)
	assert.False(t, summary.Resumed)
	assert.Equal(t, []int{0, 2, 4}, console.offsets())
	assert.True(t, log.HasMessage("Previous checkpoint replaced, pass --resume to continue one"))

	cpMgr, err := checkpoint.NewManager(testAccount, cfg.Storage.CheckpointDir)
	require.NoError(t, err)
	backup, err := os.ReadFile(cpMgr.BackupPath())
	require.NoError(t, err)
	var saved checkpoint.Checkpoint
	require.NoError(t, json.Unmarshal(backup, &saved))
	assert.Equal(t, 2, saved.NextOffset)
	assert.False(t, saved.Complete)
}

func TestExportForceRestartIgnoresCheckpoint(t *testing.T) {
	console := newMockConsole(t)
	console.rateLimitAt = 2
	cfg := testConfig(t, console.server.URL)
	s, _, _ := newTestScraper(t, cfg)

	_, err := s.Export(context.Background(), testAccount, Options{})
	require.NoError(t, err)

	console.mu.Lock()
	console.rateLimitAt = -1
	console.listOffsets = nil
	console.mu.Unlock()

	summary, err := s.Export(context.Background(), testAccount, Options{Resume: true, ForceRestart: true})
	require.NoError(t, err)
	assert.False(t, summary.Resumed)
	assert.Equal(t, []int{0, 2, 4}, console.offsets())
}

func TestExportListingFailure(t *testing.T) {
	console := newMockConsole(t)
	console.failListing = true
	s, sink, _ := newTestScraper(t, testConfig(t, console.server.URL))

	summary, err := s.Export(context.Background(), testAccount, Options{})
	require.Error(t, err)
	assert.False(t, errs.IsRateLimited(err))
	require.NotNil(t, summary)
	assert.Equal(t, 0, summary.Downloaded)
	assert.Equal(t, 0, sink.count(events.RunFinished))
	assert.Equal(t, int32(0), atomic.LoadInt32(&console.articleCalls))
}

func TestExportPerArticleFailureIsIsolated(t *testing.T) {
	console := newMockConsole(t)
	cfg := testConfig(t, console.server.URL)

	broken := &brokenFetcher{title: "冬日随笔"}
	s, sink, _ := newTestScraper(t, cfg, WithFetcher(broken))

	summary, err := s.Export(context.Background(), testAccount, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Downloaded)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, sink.count(events.ArticleSkipped))

	cpMgr, err := checkpoint.NewManager(testAccount, cfg.Storage.CheckpointDir)
	require.NoError(t, err)
	cp, err := cpMgr.Load()
	require.NoError(t, err)
	require.NotNil(t, cp, "skipped articles keep the checkpoint for a retry")
	assert.True(t, cp.Complete)
	assert.Equal(t, 1, cp.TotalSkipped)
}

func TestOutputRoot(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Output.BaseDirectory = "/data"
	s, _, _ := newTestScraper(t, cfg)

	assert.Equal(t, filepath.Join("/data", "ab"), s.OutputRoot("a/b"))

	cfg.Output.CreateAccountFolders = false
	assert.Equal(t, "/data", s.OutputRoot("a/b"))
}
