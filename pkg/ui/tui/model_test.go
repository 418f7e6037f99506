package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"wxexport/pkg/events"
)

func TestApplyTracksPipeline(t *testing.T) {
	m := NewModel("薪火传", time.Minute)

	m.Apply(events.Event{Kind: events.SearchStarted, Account: "薪火传"})
	assert.Equal(t, PhaseSearching, m.CurrentPhase())

	m.Apply(events.Event{Kind: events.AccountFound, Account: "薪火传"})
	m.Apply(events.Event{Kind: events.PageFetched, Page: 1})
	m.Apply(events.Event{Kind: events.PageFetched, Page: 2})
	assert.Equal(t, PhaseCollecting, m.CurrentPhase())
	assert.Equal(t, 2, m.pages)

	m.Apply(events.Event{Kind: events.CollectFinished, Page: 2, Total: 4})
	assert.Equal(t, PhaseDownloading, m.CurrentPhase())

	m.Apply(events.Event{Kind: events.ArticleDownloaded, Title: "a", Done: 1, Total: 4})
	m.Apply(events.Event{Kind: events.ArticleSkipped, Title: "b", Done: 2, Total: 4, Err: errors.New("timeout")})
	m.Apply(events.Event{Kind: events.ArticleDownloaded, Title: "c", Done: 3, Total: 4})

	downloaded, skipped := m.Counts()
	assert.Equal(t, 2, downloaded)
	assert.Equal(t, 1, skipped)
	assert.InDelta(t, 0.75, m.Percent(), 0.001)

	m.Apply(events.Event{Kind: events.RunFinished})
	assert.Equal(t, PhaseDone, m.CurrentPhase())
}

func TestRateLimitCountdown(t *testing.T) {
	m := NewModel("acct", time.Minute)
	m.Apply(events.Event{Kind: events.RateLimitHit, At: time.Now()})
	assert.Contains(t, m.View(), "冷却")

	m.Apply(events.Event{Kind: events.RateLimitPersisted})
	view := m.View()
	assert.NotContains(t, view, "冷却")
	assert.Contains(t, view, "频率限制")
}

func TestRecentListIsBounded(t *testing.T) {
	m := NewModel("acct", time.Minute)
	for i := 0; i < maxRecent+5; i++ {
		m.Apply(events.Event{Kind: events.ArticleDownloaded, Title: "t", Done: i + 1, Total: 20})
	}
	assert.Len(t, m.recent, maxRecent)

	for i := 0; i < maxLogs+3; i++ {
		m.Apply(events.Event{Kind: events.SoftLimitWarning, Page: 40})
	}
	assert.Len(t, m.logs, maxLogs)
}

func TestUpdateHandlesMessages(t *testing.T) {
	m := NewModel("acct", time.Minute)

	_, cmd := m.Update(EventMsg(events.Event{Kind: events.CollectFinished, Total: 3}))
	assert.Nil(t, cmd)
	assert.Equal(t, 3, m.total)

	m.Update(tea.WindowSizeMsg{Width: 60, Height: 20})
	assert.Equal(t, 40, m.bar.Width)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.NotNil(t, cmd)
	assert.Equal(t, "", m.View())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "短标题", truncate("短标题", 10))
	assert.True(t, strings.HasSuffix(truncate(strings.Repeat("长", 20), 5), "…"))
	assert.Len(t, []rune(truncate(strings.Repeat("长", 20), 5)), 5)
}
