package tui

import (
	"fmt"
	"strings"
	"time"
)

// View renders the dashboard
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("wxexport"))
	b.WriteString(" ")
	b.WriteString(valueStyle.Render(m.account))
	b.WriteString("\n\n")

	b.WriteString(panelStyle.Render(m.statusView()))
	b.WriteString("\n")

	if len(m.recent) > 0 {
		b.WriteString(panelStyle.Render(m.recentView()))
		b.WriteString("\n")
	}

	if len(m.logs) > 0 {
		b.WriteString(m.logView())
	}

	b.WriteString(helpStyle.Render("q: 退出界面 (导出在后台继续)"))
	b.WriteString("\n")
	return b.String()
}

func (m *Model) statusView() string {
	var lines []string

	phase := m.phase.String()
	if m.phase != PhaseDone {
		phase = m.spinner.View() + " " + phase
	}
	lines = append(lines, labelStyle.Render("阶段 ")+valueStyle.Render(phase))

	lines = append(lines, fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("页数"), valueStyle.Render(fmt.Sprint(m.pages)),
		labelStyle.Render("文章"), valueStyle.Render(fmt.Sprint(m.collected))))

	if wait := time.Until(m.cooldownUntil); wait > 0 {
		lines = append(lines, warningStyle.Render(fmt.Sprintf("频率限制冷却中 %ds", int(wait.Seconds()+0.5))))
	}
	if m.rateLimited {
		lines = append(lines, errorStyle.Render("列表获取因频率限制提前结束"))
	}

	if m.total > 0 {
		lines = append(lines, fmt.Sprintf("%s %d/%d", m.bar.ViewAs(m.Percent()), m.done, m.total))
		lines = append(lines, fmt.Sprintf("%s %s   %s %s   %s %s",
			labelStyle.Render("下载"), successStyle.Render(fmt.Sprint(m.downloaded)),
			labelStyle.Render("跳过"), warningStyle.Render(fmt.Sprint(m.skipped)),
			labelStyle.Render("用时"), valueStyle.Render(time.Since(m.startTime).Round(time.Second).String())))
	}

	return strings.Join(lines, "\n")
}

func (m *Model) recentView() string {
	lines := make([]string, 0, len(m.recent))
	for _, a := range m.recent {
		mark := successStyle.Render("✓")
		text := a.Title
		if !a.OK {
			mark = errorStyle.Render("✗")
			if a.Err != "" {
				text += " - " + a.Err
			}
		}
		lines = append(lines, mark+itemStyle.Render(truncate(text, 70)))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) logView() string {
	var b strings.Builder
	for _, l := range m.logs {
		b.WriteString(logTimestampStyle.Render(l.Time.Format("15:04:05")))
		b.WriteString(" ")
		b.WriteString(levelStyle(l.Level).Render(l.Message))
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
