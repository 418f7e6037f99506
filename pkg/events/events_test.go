package events

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"wxexport/pkg/logger"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "page_fetched", PageFetched.String())
	assert.Equal(t, "run_finished", RunFinished.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestEmitStampsTime(t *testing.T) {
	var mu sync.Mutex
	var got []Event
	sink := SinkFunc(func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})

	Emit(sink, Event{Kind: PageFetched, Page: 1})
	Emit(nil, Event{Kind: PageFetched, Page: 2})

	assert.Len(t, got, 1)
	assert.False(t, got[0].At.IsZero())
}

func TestLogSinkLevels(t *testing.T) {
	tl := logger.NewTestLogger()
	sink := LogSink(tl)

	sink.Emit(Event{Kind: RateLimitHit, Page: 4})
	sink.Emit(Event{Kind: ArticleFailed, Title: "t", Err: errors.New("boom")})
	sink.Emit(Event{Kind: ArticleDownloaded, Title: "t", Done: 1, Total: 3})

	warns := tl.GetMessagesByLevel("WARN")
	if assert.Len(t, warns, 1) {
		assert.Equal(t, 4, warns[0].Fields["page"])
	}
	errs := tl.GetMessagesByLevel("ERROR")
	if assert.Len(t, errs, 1) {
		assert.EqualError(t, errs[0].Error, "boom")
	}
	assert.True(t, tl.HasMessage("article_downloaded"))

	Nop().Emit(Event{Kind: RunFinished})
}
