package scraper

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"wxexport/internal/downloader"
	"wxexport/pkg/catalog"
	"wxexport/pkg/checkpoint"
	"wxexport/pkg/config"
	"wxexport/pkg/content"
	errs "wxexport/pkg/errors"
	"wxexport/pkg/events"
	"wxexport/pkg/export"
	"wxexport/pkg/logger"
	"wxexport/pkg/metadata"
	"wxexport/pkg/models"
	"wxexport/pkg/ratelimit"
	"wxexport/pkg/ui"
	"wxexport/pkg/wechat"
)

// Options select what one export run does
type Options struct {
	Window *models.DateWindow
	// Formats defaults to the configured output formats
	Formats models.FormatSet
	// OutputRoot overrides the directory derived from the configuration
	OutputRoot   string
	Resume       bool
	ForceRestart bool
}

// Summary describes a finished run
type Summary struct {
	RunID       string
	Account     string
	FakeID      string
	OutputRoot  string
	Pages       int
	Collected   int
	Downloaded  int
	Skipped     int
	Stop        catalog.StopReason
	RateLimited bool
	Resumed     bool
	IndexPath   string
	Duration    time.Duration
}

// Scraper orchestrates the export of one official account
type Scraper struct {
	config       *config.Config
	client       APIClient
	fetcher      downloader.ArticleFetcher
	materializer downloader.ArticleMaterializer
	browser      *export.BrowserManager
	notifier     *ui.Notifier
	sink         events.Sink
	logger       logger.Logger
	sleep        ratelimit.SleepFunc
}

// Option configures a Scraper
type Option func(*Scraper)

// WithSink routes progress events to s
func WithSink(s events.Sink) Option {
	return func(sc *Scraper) { sc.sink = s }
}

func WithLogger(l logger.Logger) Option {
	return func(sc *Scraper) { sc.logger = l }
}

// WithNotifier enables completion and rate-limit notifications
func WithNotifier(n *ui.Notifier) Option {
	return func(sc *Scraper) { sc.notifier = n }
}

// WithClient replaces the console API client
func WithClient(c APIClient) Option {
	return func(sc *Scraper) { sc.client = c }
}

// WithFetcher replaces the article fetcher
func WithFetcher(f downloader.ArticleFetcher) Option {
	return func(sc *Scraper) { sc.fetcher = f }
}

// WithMaterializer replaces the format writer
func WithMaterializer(m downloader.ArticleMaterializer) Option {
	return func(sc *Scraper) { sc.materializer = m }
}

// WithSleep replaces the page pause and cooldown sleeper
func WithSleep(fn ratelimit.SleepFunc) Option {
	return func(sc *Scraper) { sc.sleep = fn }
}

// New creates a Scraper from cfg. Components not supplied through
// options are built from the configuration and creds.
func New(cfg *config.Config, creds wechat.Credentials, opts ...Option) (*Scraper, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if creds.UserAgent == "" {
		creds.UserAgent = cfg.WeChat.UserAgent
	}

	s := &Scraper{config: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.GetLogger()
	}
	if s.sink == nil {
		s.sink = events.LogSink(s.logger)
	}

	if s.client == nil {
		clientOpts := []wechat.Option{
			wechat.WithBaseURL(cfg.WeChat.BaseURL),
			wechat.WithTimeout(cfg.WeChat.Timeout),
			wechat.WithCooldown(cfg.RateLimit.Cooldown),
			wechat.WithSink(s.sink),
			wechat.WithLogger(s.logger.WithField("component", "wechat")),
		}
		if s.sleep != nil {
			clientOpts = append(clientOpts, wechat.WithSleep(s.sleep))
		}
		s.client = wechat.NewClient(creds, clientOpts...)
	}

	var images export.ImageSource
	if s.fetcher == nil {
		f := content.NewFetcher(creds,
			content.WithTimeout(cfg.WeChat.Timeout),
			content.WithImageTimeout(cfg.Download.ImageTimeout),
			content.WithLimiter(ratelimit.NewRequestLimiter(cfg.RateLimit.RequestsPerMinute, 1)),
			content.WithLogger(s.logger.WithField("component", "content")),
		)
		s.fetcher = f
		images = f
	} else if src, ok := s.fetcher.(export.ImageSource); ok {
		images = src
	}

	if s.materializer == nil {
		s.browser = export.NewBrowserManager(
			export.ChromeLauncher(export.BrowserOptions{
				ExecPath:  cfg.Browser.ExecPath,
				Headless:  cfg.Browser.Headless,
				NoSandbox: cfg.Browser.NoSandbox,
			}),
			cfg.Download.PDFTimeout,
			s.logger,
		)
		docx := export.NewDocxBuilder(images, cfg.Download.DocxImageWidth, s.logger.WithField("component", "docx"))
		s.materializer = export.NewMaterializer(s.browser, docx,
			export.WithSink(s.sink),
			export.WithLogger(s.logger),
		)
	}

	return s, nil
}

// Close shuts down the headless browser if one was started
func (s *Scraper) Close() error {
	if s.browser == nil {
		return nil
	}
	return s.browser.Close()
}

// OutputRoot returns where artifacts for account are written
func (s *Scraper) OutputRoot(account string) string {
	if s.config.Output.CreateAccountFolders {
		return filepath.Join(s.config.Output.BaseDirectory, models.SanitizeTitle(account))
	}
	return s.config.Output.BaseDirectory
}

// Export runs search, listing and download for account. Frequency control
// during listing is not an error: the articles gathered so far are still
// exported and Summary.RateLimited is set.
func (s *Scraper) Export(ctx context.Context, account string, opts Options) (*Summary, error) {
	start := time.Now()
	summary := &Summary{
		RunID:      uuid.NewString(),
		Account:    account,
		OutputRoot: opts.OutputRoot,
	}
	if summary.OutputRoot == "" {
		summary.OutputRoot = s.OutputRoot(account)
	}

	formats := opts.Formats
	if len(formats) == 0 {
		parsed, err := models.ParseFormats(s.config.Output.Formats)
		if err != nil {
			return nil, err
		}
		formats = parsed
	}

	log := s.logger.WithFields(map[string]interface{}{
		"account": account,
		"run_id":  summary.RunID,
	})
	log.InfoWithFields("Starting export", map[string]interface{}{
		"window":  opts.Window.String(),
		"formats": formats.String(),
		"output":  summary.OutputRoot,
	})

	fakeid, err := s.client.Search(ctx, account)
	if err != nil {
		log.WithError(err).Error("Account lookup failed")
		return nil, fmt.Errorf("failed to find account %q: %w", account, err)
	}
	summary.FakeID = fakeid

	articles, cp, cpMgr, err := s.collect(ctx, account, fakeid, opts, summary, log)
	if err != nil {
		return summary, err
	}

	if summary.RateLimited {
		s.notify(s.config.Notifications.OnRateLimit, "频率限制",
			fmt.Sprintf("%s: 列表获取提前结束，继续导出已获取的 %d 篇文章", account, len(articles)))
	}

	orchestrator := downloader.NewOrchestrator(s.fetcher, s.materializer,
		downloader.WithConcurrency(s.config.Download.ConcurrentDownloads),
		downloader.WithSink(s.sink),
		downloader.WithLogger(log),
	)
	summary.Downloaded, summary.Skipped = orchestrator.RunAll(ctx, articles, summary.OutputRoot, formats)

	s.finishCheckpoint(cpMgr, cp, summary, log)

	if s.config.Storage.SaveMetadata {
		idx := metadata.NewIndex(account, fakeid, opts.Window, summary.RunID, summary.OutputRoot, articles)
		idx.Downloaded = summary.Downloaded
		idx.Skipped = summary.Skipped
		path, err := idx.Save(summary.OutputRoot, s.config.Storage.MetadataFormat)
		if err != nil {
			log.WithError(err).Warn("Failed to write article index")
		} else {
			summary.IndexPath = path
		}
	}

	summary.Duration = time.Since(start)
	logger.LogExportSummary(account, summary.Downloaded, summary.Skipped, len(articles))
	events.Emit(s.sink, events.Event{
		Kind:    events.RunFinished,
		Account: account,
		Done:    summary.Downloaded,
		Total:   len(articles),
		Err:     ctx.Err(),
	})

	if err := ctx.Err(); err != nil {
		return summary, err
	}

	s.notify(s.config.Notifications.OnComplete, "导出完成",
		fmt.Sprintf("%s 下载: %d, 跳过: %d", account, summary.Downloaded, summary.Skipped))

	return summary, nil
}

// collect produces the article list, from the checkpoint where possible.
// The returned checkpoint and manager are nil when checkpointing is
// unavailable.
func (s *Scraper) collect(ctx context.Context, account, fakeid string, opts Options, summary *Summary, log logger.Logger) ([]models.ArticleRef, *checkpoint.Checkpoint, *checkpoint.Manager, error) {
	collector := catalog.NewCollector(s.client,
		catalog.WithPageSize(s.config.RateLimit.PageSize),
		catalog.WithSoftPageLimit(s.config.RateLimit.SoftPageLimit),
		catalog.WithPacer(ratelimit.NewPacer(s.config.RateLimit.MinPageDelay, s.config.RateLimit.MaxPageDelay, s.sleep)),
		catalog.WithLocation(s.config.TimeLocation()),
		catalog.WithSink(s.sink),
		catalog.WithLogger(log),
		catalog.WithAccount(account),
	)

	cpMgr, err := checkpoint.NewManager(account, s.config.Storage.CheckpointDir)
	if err != nil {
		log.WithError(err).Warn("Checkpoint unavailable, collecting without resume support")
		res, err := collector.Collect(ctx, fakeid, opts.Window)
		return s.afterCollect(res, err, nil, nil, summary)
	}

	if opts.ForceRestart {
		if err := cpMgr.Delete(); err != nil {
			log.WithError(err).Warn("Failed to delete existing checkpoint")
		}
	}

	var cp *checkpoint.Checkpoint
	if opts.Resume && !opts.ForceRestart {
		cp, err = cpMgr.Load()
		if err != nil {
			log.WithError(err).Warn("Ignoring unreadable checkpoint")
			cp = nil
		}
		if cp != nil && !cp.Resumable(fakeid, opts.Window) {
			log.InfoWithFields("Checkpoint belongs to a different window, starting over", map[string]interface{}{
				"checkpoint_window": cp.Window,
			})
			cp = nil
		}
	}

	if cp != nil && cp.Complete {
		summary.Resumed = true
		summary.Pages = cp.Pages
		summary.Collected = len(cp.Articles)
		log.InfoWithFields("Using complete catalog from checkpoint", map[string]interface{}{
			"articles": len(cp.Articles),
		})
		events.Emit(s.sink, events.Event{Kind: events.CollectFinished, Account: account, Page: cp.Pages, Total: len(cp.Articles)})
		return cp.Articles, cp, cpMgr, nil
	}

	var res *catalog.Result
	if cp != nil {
		summary.Resumed = true
		log.InfoWithFields("Resuming listing from checkpoint", map[string]interface{}{
			"articles":    len(cp.Articles),
			"next_offset": cp.NextOffset,
		})
		if berr := cpMgr.BackupCheckpoint(); berr != nil {
			log.WithError(berr).Warn("Failed to back up checkpoint")
		}
		res, err = collector.CollectFrom(ctx, fakeid, opts.Window, cp.NextOffset)
	} else {
		if !opts.ForceRestart && cpMgr.Exists() {
			s.replaceCheckpoint(cpMgr, log)
		}
		cp, err = cpMgr.Create(account, fakeid, opts.Window)
		if err != nil {
			log.WithError(err).Warn("Failed to create checkpoint")
			cp = nil
		}
		res, err = collector.Collect(ctx, fakeid, opts.Window)
	}

	if cp != nil {
		complete := res.Stop == catalog.StopExhausted || res.Stop == catalog.StopDateWindow
		if uerr := cpMgr.UpdateCatalog(cp, res.Articles, res.NextOffset, res.Pages, complete, res.Stop.String()); uerr != nil {
			log.WithError(uerr).Warn("Failed to save checkpoint")
		}
		res.Articles = cp.Articles
		res.Pages = cp.Pages
	}

	return s.afterCollect(res, err, cp, cpMgr, summary)
}

// replaceCheckpoint backs up a checkpoint that a fresh listing is about
// to overwrite
func (s *Scraper) replaceCheckpoint(cpMgr *checkpoint.Manager, log logger.Logger) {
	info, err := cpMgr.GetCheckpointInfo()
	if err != nil || info == nil {
		return
	}
	if err := cpMgr.BackupCheckpoint(); err != nil {
		log.WithError(err).Warn("Failed to back up checkpoint")
		return
	}
	info["backup"] = cpMgr.BackupPath()
	log.InfoWithFields("Previous checkpoint replaced, pass --resume to continue one", info)
}

// afterCollect keeps rate-limited results and turns other listing
// failures into a run error
func (s *Scraper) afterCollect(res *catalog.Result, err error, cp *checkpoint.Checkpoint, cpMgr *checkpoint.Manager, summary *Summary) ([]models.ArticleRef, *checkpoint.Checkpoint, *checkpoint.Manager, error) {
	summary.Stop = res.Stop
	summary.Pages = res.Pages
	summary.Collected = len(res.Articles)

	if err != nil {
		if !errs.IsRateLimited(err) {
			return nil, cp, cpMgr, fmt.Errorf("failed to collect articles: %w", err)
		}
		summary.RateLimited = true
	}
	return res.Articles, cp, cpMgr, nil
}

// finishCheckpoint records the export counts, dropping the checkpoint once
// the catalog is complete and every article was exported
func (s *Scraper) finishCheckpoint(mgr *checkpoint.Manager, cp *checkpoint.Checkpoint, summary *Summary, log logger.Logger) {
	if mgr == nil || cp == nil {
		return
	}
	if cp.Complete && summary.Skipped == 0 {
		if err := mgr.Delete(); err != nil {
			log.WithError(err).Warn("Failed to delete checkpoint")
		}
		return
	}
	if err := mgr.RecordExport(cp, summary.Downloaded, summary.Skipped); err != nil {
		log.WithError(err).Warn("Failed to update checkpoint")
		return
	}
	log.InfoWithFields("Checkpoint kept for --resume", map[string]interface{}{
		"path":     mgr.Path(),
		"complete": cp.Complete,
	})
}

func (s *Scraper) notify(enabled bool, title, message string) {
	if s.notifier == nil || !s.config.Notifications.Enabled || !enabled {
		return
	}
	s.notifier.SendNotification(title, message)
}
