// Package events defines the typed progress notifications emitted by the
// export pipeline. Presentation is left to the Sink implementation.
package events

import (
	"time"

	"wxexport/pkg/logger"
)

// Kind identifies a progress event
type Kind int

const (
	SearchStarted Kind = iota
	AccountFound
	AccountNotFound
	PageFetched
	RateLimitHit
	RateLimitPersisted
	SoftLimitWarning
	CollectFinished
	ArticleDownloaded
	ArticleSkipped
	ArticleFailed
	FormatSkipped
	RunFinished
)

var kindNames = [...]string{
	"search_started",
	"account_found",
	"account_not_found",
	"page_fetched",
	"rate_limit_hit",
	"rate_limit_persisted",
	"soft_limit_warning",
	"collect_finished",
	"article_downloaded",
	"article_skipped",
	"article_failed",
	"format_skipped",
	"run_finished",
}

func (k Kind) String() string {
	if int(k) < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Event carries whichever fields are meaningful for its Kind
type Event struct {
	Kind    Kind
	Account string
	Page    int
	Title   string
	Format  string
	Done    int
	Total   int
	Err     error
	At      time.Time
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

type nop struct{}

func (nop) Emit(Event) {}

// Nop returns a sink that drops everything
func Nop() Sink { return nop{} }

// Emit stamps e and sends it to sink, tolerating a nil sink
func Emit(sink Sink, e Event) {
	if sink == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	sink.Emit(e)
}

type logSink struct {
	log logger.Logger
}

// LogSink writes events as structured log records. It is the default
// when the caller supplies no sink.
func LogSink(l logger.Logger) Sink {
	if l == nil {
		l = logger.GetLogger()
	}
	return &logSink{log: l}
}

func (s *logSink) Emit(e Event) {
	fields := map[string]interface{}{"event": e.Kind.String()}
	if e.Account != "" {
		fields["account"] = e.Account
	}
	if e.Page > 0 {
		fields["page"] = e.Page
	}
	if e.Title != "" {
		fields["title"] = e.Title
	}
	if e.Format != "" {
		fields["format"] = e.Format
	}
	if e.Total > 0 {
		fields["done"] = e.Done
		fields["total"] = e.Total
	}

	l := s.log.WithError(e.Err)
	switch e.Kind {
	case RateLimitHit, RateLimitPersisted, SoftLimitWarning, ArticleSkipped, AccountNotFound:
		l.WarnWithFields(e.Kind.String(), fields)
	case ArticleFailed:
		l.ErrorWithFields(e.Kind.String(), fields)
	case PageFetched, FormatSkipped:
		l.DebugWithFields(e.Kind.String(), fields)
	default:
		l.InfoWithFields(e.Kind.String(), fields)
	}
}
