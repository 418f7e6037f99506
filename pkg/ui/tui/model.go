package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"wxexport/pkg/events"
)

// Phase is the pipeline stage shown in the header
type Phase int

const (
	PhaseSearching Phase = iota
	PhaseCollecting
	PhaseDownloading
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseSearching:
		return "搜索公众号"
	case PhaseCollecting:
		return "获取文章列表"
	case PhaseDownloading:
		return "下载文章"
	default:
		return "完成"
	}
}

const (
	maxRecent = 8
	maxLogs   = 6
)

// ArticleLine is one finished article in the recent list
type ArticleLine struct {
	Title string
	OK    bool
	Err   string
}

// LogMessage is a line in the log panel
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
}

// Model is the bubbletea model for an export run. It is driven entirely
// by pipeline events.
type Model struct {
	spinner spinner.Model
	bar     progress.Model

	account       string
	phase         Phase
	pages         int
	collected     int
	done          int
	total         int
	downloaded    int
	skipped       int
	cooldownUntil time.Time
	rateLimited   bool

	recent []ArticleLine
	logs   []LogMessage

	cooldown  time.Duration
	startTime time.Time
	width     int
	quitting  bool
}

// NewModel creates a model for account. cooldown is shown while the
// listing waits out frequency control.
func NewModel(account string, cooldown time.Duration) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = labelStyle

	bar := progress.New(progress.WithSolidFill(string(wechatGreen)))
	bar.Width = 40

	return Model{
		spinner:   s,
		bar:       bar,
		account:   account,
		cooldown:  cooldown,
		startTime: time.Now(),
	}
}

// Apply folds an event into the model
func (m *Model) Apply(e events.Event) {
	switch e.Kind {
	case events.SearchStarted:
		m.phase = PhaseSearching
		m.log("INFO", "搜索公众号: "+e.Account)
	case events.AccountFound:
		m.phase = PhaseCollecting
		m.log("SUCCESS", "找到公众号: "+e.Account)
	case events.AccountNotFound:
		m.phase = PhaseDone
		m.log("ERROR", "未找到公众号: "+e.Account)
	case events.PageFetched:
		m.phase = PhaseCollecting
		m.pages = e.Page
		m.cooldownUntil = time.Time{}
	case events.RateLimitHit:
		m.cooldownUntil = e.At.Add(m.cooldown)
		m.log("WARN", fmt.Sprintf("触发频率限制，等待 %s", m.cooldown))
	case events.RateLimitPersisted:
		m.rateLimited = true
		m.cooldownUntil = time.Time{}
		m.log("ERROR", "频率限制仍然存在，停止获取列表")
	case events.SoftLimitWarning:
		m.log("WARN", fmt.Sprintf("已获取 %d 页，请求较多", e.Page))
	case events.CollectFinished:
		m.collected = e.Total
		m.total = e.Total
		m.phase = PhaseDownloading
		m.log("INFO", fmt.Sprintf("共 %d 篇文章", e.Total))
	case events.ArticleDownloaded:
		m.finishArticle(e, true)
	case events.ArticleSkipped:
		m.finishArticle(e, false)
	case events.ArticleFailed:
		if e.Format != "" {
			m.log("WARN", fmt.Sprintf("%s (%s) 失败", e.Title, e.Format))
		}
	case events.RunFinished:
		m.phase = PhaseDone
		m.log("SUCCESS", fmt.Sprintf("下载: %d, 跳过: %d", m.downloaded, m.skipped))
	}
}

func (m *Model) finishArticle(e events.Event, ok bool) {
	m.phase = PhaseDownloading
	m.done = e.Done
	if e.Total > 0 {
		m.total = e.Total
	}
	line := ArticleLine{Title: e.Title, OK: ok}
	if ok {
		m.downloaded++
	} else {
		m.skipped++
		if e.Err != nil {
			line.Err = e.Err.Error()
		}
	}
	m.recent = append(m.recent, line)
	if len(m.recent) > maxRecent {
		m.recent = m.recent[len(m.recent)-maxRecent:]
	}
}

func (m *Model) log(level, msg string) {
	m.logs = append(m.logs, LogMessage{Time: time.Now(), Level: level, Message: msg})
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Percent returns download progress in [0, 1]
func (m *Model) Percent() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.done) / float64(m.total)
}

// Counts returns the downloaded and skipped totals seen so far
func (m *Model) Counts() (downloaded, skipped int) {
	return m.downloaded, m.skipped
}

// CurrentPhase returns the stage shown in the header
func (m *Model) CurrentPhase() Phase {
	return m.phase
}
