package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"wxexport/pkg/events"
)

func init() {
	SetColors(false)
}

func TestConsoleSinkRendersPipeline(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, false)

	sink.Emit(events.Event{Kind: events.SearchStarted, Account: "薪火传"})
	sink.Emit(events.Event{Kind: events.AccountFound, Account: "薪火传"})
	sink.Emit(events.Event{Kind: events.CollectFinished, Page: 2, Total: 2})
	sink.Emit(events.Event{Kind: events.ArticleDownloaded, Title: "第一篇", Done: 1, Total: 2})
	sink.Emit(events.Event{Kind: events.ArticleSkipped, Title: "第二篇", Done: 2, Total: 2, Err: errors.New("timeout")})
	sink.Emit(events.Event{Kind: events.RunFinished})

	out := buf.String()
	assert.Contains(t, out, "搜索公众号: 薪火传")
	assert.Contains(t, out, "共获取 2 篇文章 (2 页)")
	assert.Contains(t, out, "[━━━━━━━━━━━━━━━━━━━━] 2/2")
	assert.Contains(t, out, "✗ 第二篇 • timeout")
	assert.Contains(t, out, "下载 1 篇，跳过 1 篇")
}

func TestConsoleSinkVerbose(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, true)

	sink.Emit(events.Event{Kind: events.PageFetched, Page: 3})
	sink.Emit(events.Event{Kind: events.ArticleDownloaded, Title: "a", Done: 1, Total: 1})
	sink.Emit(events.Event{Kind: events.FormatSkipped, Title: "a", Format: "pdf"})

	out := buf.String()
	assert.Contains(t, out, "已获取第 3")
	assert.Contains(t, out, "✓ a")
	assert.Contains(t, out, "= a (pdf)")
	assert.False(t, strings.Contains(out, "\r"), "verbose mode should not draw a progress line")
}

type recordingSender struct {
	titles []string
}

func (r *recordingSender) Send(title, message string) error {
	r.titles = append(r.titles, title)
	return nil
}

func TestNotifierUsesSender(t *testing.T) {
	sender := &recordingSender{}
	n := NewNotifierWithSender(sender)
	n.SendSuccess("导出完成", "下载 3 篇")
	n.SendError("导出失败", "boom")
	assert.Equal(t, []string{"导出完成", "导出失败"}, sender.titles)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", formatDuration(45e9))
	assert.Equal(t, "2m5s", formatDuration(125e9))
}

func TestXMLEscape(t *testing.T) {
	assert.Equal(t, "a &amp; &lt;b&gt;", xmlEscape("a & <b>"))
}
