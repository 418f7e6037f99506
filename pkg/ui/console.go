package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"wxexport/pkg/events"
)

// ConsoleSink renders pipeline events as colored console lines with a
// single redrawn progress line during the download phase
type ConsoleSink struct {
	mu         sync.Mutex
	out        io.Writer
	account    string
	startTime  time.Time
	done       int
	total      int
	downloaded int
	skipped    int
	current    string
	verbose    bool
	onProgress bool
}

// NewConsoleSink creates a sink writing to out. verbose prints one line
// per article instead of the progress line.
func NewConsoleSink(out io.Writer, verbose bool) *ConsoleSink {
	return &ConsoleSink{out: out, verbose: verbose, startTime: time.Now()}
}

// Emit implements events.Sink
func (c *ConsoleSink) Emit(e events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e.Kind {
	case events.SearchStarted:
		c.account = e.Account
		c.println("%s %s", Cyan("搜索公众号:"), e.Account)
	case events.AccountFound:
		c.println("%s %s", Green("✓ 找到公众号:"), e.Account)
	case events.AccountNotFound:
		c.println("%s %s", Red("✗ 未找到公众号:"), e.Account)
	case events.PageFetched:
		if c.verbose {
			c.println("%s %d", Dim("  已获取第"), e.Page)
		}
	case events.RateLimitHit:
		c.println("%s", Yellow(fmt.Sprintf("⚠ 第 %d 页触发频率限制，冷却后重试", e.Page)))
	case events.RateLimitPersisted:
		c.println("%s", Red("✗ 频率限制仍然存在，使用已获取的文章继续"))
	case events.SoftLimitWarning:
		c.println("%s", Yellow(fmt.Sprintf("⚠ 已获取 %d 页，请求过多可能触发限制", e.Page)))
	case events.CollectFinished:
		c.total = e.Total
		c.println("%s %d 篇文章 (%d 页)", Cyan("共获取"), e.Total, e.Page)
		if e.Err != nil {
			c.println("%s", Yellow("  列表未完整: "+e.Err.Error()))
		}
	case events.ArticleDownloaded:
		c.downloaded++
		c.advance(e)
		if c.verbose {
			c.println("%s %s", Green("✓"), e.Title)
		}
	case events.ArticleSkipped:
		c.skipped++
		c.advance(e)
		if c.verbose || e.Err != nil {
			reason := ""
			if e.Err != nil {
				reason = " • " + Dim(e.Err.Error())
			}
			c.println("%s %s%s", Red("✗"), e.Title, reason)
		}
	case events.ArticleFailed:
		if c.verbose {
			c.println("%s %s (%s): %v", Yellow("!"), e.Title, e.Format, e.Err)
		}
	case events.FormatSkipped:
		if c.verbose {
			c.println("%s %s (%s)", Dim("="), e.Title, e.Format)
		}
	case events.RunFinished:
		c.complete()
		return
	}

	if !c.verbose && c.total > 0 && (e.Kind == events.ArticleDownloaded || e.Kind == events.ArticleSkipped) {
		c.printProgress()
	}
}

func (c *ConsoleSink) advance(e events.Event) {
	c.done = e.Done
	if e.Total > 0 {
		c.total = e.Total
	}
	c.current = e.Title
}

// println ends an active progress line before printing
func (c *ConsoleSink) println(format string, args ...interface{}) {
	if c.onProgress {
		fmt.Fprintln(c.out)
		c.onProgress = false
	}
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *ConsoleSink) printProgress() {
	progress := float64(c.done) / float64(c.total)
	barWidth := 20
	filled := int(progress * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	line := fmt.Sprintf("%s [%s] %d/%d • %s",
		Cyan(c.account),
		bar,
		c.done,
		c.total,
		c.calculateETA(),
	)
	if c.current != "" {
		line += " • " + truncateRunes(c.current, 30)
	}
	if c.skipped > 0 {
		line += " • " + Red(fmt.Sprintf("%d 跳过", c.skipped))
	}

	fmt.Fprintf(c.out, "\r%s\r%s", strings.Repeat(" ", 120), line)
	c.onProgress = true
}

func (c *ConsoleSink) complete() {
	elapsed := time.Since(c.startTime)
	c.println("\n%s 下载 %d 篇，跳过 %d 篇", Green("✓"), c.downloaded, c.skipped)
	c.println("  %s 用时 %s", Dim("•"), formatDuration(elapsed))
}

// calculateETA estimates time remaining
func (c *ConsoleSink) calculateETA() string {
	if c.done == 0 {
		return "计算中..."
	}
	rate := float64(c.done) / time.Since(c.startTime).Seconds()
	if rate == 0 {
		return "计算中..."
	}
	eta := time.Duration(float64(c.total-c.done)/rate) * time.Second
	return formatDuration(eta)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

var _ events.Sink = (*ConsoleSink)(nil)
