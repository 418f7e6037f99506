// Package catalog walks an account's article listing page by page and
// applies the publish-date window.
package catalog

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	errs "wxexport/pkg/errors"
	"wxexport/pkg/events"
	"wxexport/pkg/logger"
	"wxexport/pkg/models"
	"wxexport/pkg/ratelimit"
	"wxexport/pkg/wechat"
)

// PageLister is the part of the API client the collector needs
type PageLister interface {
	ListPage(ctx context.Context, fakeid string, offset, count int) (*wechat.ArticlePage, error)
}

// StopReason explains why pagination ended
type StopReason int

const (
	StopExhausted StopReason = iota
	StopDateWindow
	StopRateLimited
	StopFailed
	StopCancelled
)

func (r StopReason) String() string {
	switch r {
	case StopExhausted:
		return "exhausted"
	case StopDateWindow:
		return "date_window"
	case StopRateLimited:
		return "rate_limited"
	case StopFailed:
		return "failed"
	case StopCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Result is everything gathered before pagination ended, in the order the
// provider returned it (newest first).
type Result struct {
	Articles   []models.ArticleRef
	Pages      int
	NextOffset int
	Stop       StopReason
}

// Collector drives sequential listing calls
type Collector struct {
	lister        PageLister
	pageSize      int
	softPageLimit int
	pacer         *ratelimit.Pacer
	location      *time.Location
	sink          events.Sink
	logger        logger.Logger
	policy        *bluemonday.Policy
	account       string
}

// Option configures a Collector
type Option func(*Collector)

func WithPageSize(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithSoftPageLimit sets the page count after which a warning is emitted
func WithSoftPageLimit(n int) Option {
	return func(c *Collector) { c.softPageLimit = n }
}

func WithPacer(p *ratelimit.Pacer) Option {
	return func(c *Collector) { c.pacer = p }
}

// WithLocation sets the zone used to derive publish dates
func WithLocation(loc *time.Location) Option {
	return func(c *Collector) { c.location = loc }
}

func WithSink(s events.Sink) Option {
	return func(c *Collector) { c.sink = s }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Collector) { c.logger = l }
}

// WithAccount labels events and log lines with the account name
func WithAccount(name string) Option {
	return func(c *Collector) { c.account = name }
}

// NewCollector creates a collector with the provider defaults: 5 items per
// page, a 3-6s pause between pages and a warning after 40 pages.
func NewCollector(lister PageLister, opts ...Option) *Collector {
	c := &Collector{
		lister:        lister,
		pageSize:      wechat.PageSize,
		softPageLimit: 40,
		location:      time.Local,
		policy:        bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pacer == nil {
		c.pacer = ratelimit.NewPacer(3*time.Second, 6*time.Second, nil)
	}
	if c.logger == nil {
		c.logger = logger.GetLogger()
	}
	if c.sink == nil {
		c.sink = events.LogSink(c.logger)
	}
	return c
}

// Collect pages from the newest article
func (c *Collector) Collect(ctx context.Context, fakeid string, window *models.DateWindow) (*Result, error) {
	return c.CollectFrom(ctx, fakeid, window, 0)
}

// CollectFrom pages starting at offset. The returned Result is never nil;
// on error it holds what was gathered before the failure.
func (c *Collector) CollectFrom(ctx context.Context, fakeid string, window *models.DateWindow, offset int) (*Result, error) {
	res := &Result{NextOffset: offset}
	log := c.logger.WithFields(map[string]interface{}{
		"account": c.account,
		"window":  window.String(),
	})
	warned := false

	for {
		page, err := c.lister.ListPage(ctx, fakeid, res.NextOffset, c.pageSize)
		if err != nil {
			return c.finish(res, log, classify(ctx, err), err)
		}

		res.Pages++
		events.Emit(c.sink, events.Event{Kind: events.PageFetched, Account: c.account, Page: res.Pages})

		if len(page.Items) == 0 {
			return c.finish(res, log, StopExhausted, nil)
		}

		for _, item := range page.Items {
			ref := c.toRef(item)
			if window.Before(ref.PublishedDate) {
				return c.finish(res, log, StopDateWindow, nil)
			}
			if window.After(ref.PublishedDate) {
				continue
			}
			res.Articles = append(res.Articles, ref)
		}
		res.NextOffset += c.pageSize

		if c.softPageLimit > 0 && res.Pages >= c.softPageLimit && !warned {
			warned = true
			log.WarnWithFields("soft page limit reached, older history may be unavailable", map[string]interface{}{
				"pages": res.Pages,
			})
			events.Emit(c.sink, events.Event{Kind: events.SoftLimitWarning, Account: c.account, Page: res.Pages})
		}

		if res.Pages%10 == 0 {
			logger.LogCollectProgress(c.account, res.Pages, len(res.Articles))
		}

		if _, err := c.pacer.Pause(ctx); err != nil {
			return c.finish(res, log, StopCancelled, err)
		}
	}
}

func (c *Collector) finish(res *Result, log logger.Logger, reason StopReason, err error) (*Result, error) {
	res.Stop = reason
	fields := map[string]interface{}{
		"pages":    res.Pages,
		"articles": len(res.Articles),
		"stop":     reason.String(),
	}
	events.Emit(c.sink, events.Event{
		Kind:    events.CollectFinished,
		Account: c.account,
		Page:    res.Pages,
		Total:   len(res.Articles),
		Err:     err,
	})

	switch reason {
	case StopRateLimited:
		log.WithError(err).WarnWithFields("pagination ended early by frequency control", fields)
		return res, err
	case StopFailed, StopCancelled:
		log.WithError(err).ErrorWithFields("pagination aborted", fields)
		return res, fmt.Errorf("listing page at offset %d: %w", res.NextOffset, err)
	}
	log.InfoWithFields("pagination finished", fields)
	return res, nil
}

func classify(ctx context.Context, err error) StopReason {
	switch {
	case errs.IsRateLimited(err):
		return StopRateLimited
	case ctx.Err() != nil:
		return StopCancelled
	default:
		return StopFailed
	}
}

// toRef converts a listing item, stripping markup the console sometimes
// leaves in titles and digests.
func (c *Collector) toRef(item models.AppMsgItem) models.ArticleRef {
	item.Title = c.clean(item.Title)
	item.Digest = c.clean(item.Digest)
	if item.Title == "" {
		item.Title = "untitled"
	}
	return models.NewArticleRef(item, c.location)
}

func (c *Collector) clean(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(html.UnescapeString(c.policy.Sanitize(s)))
}
