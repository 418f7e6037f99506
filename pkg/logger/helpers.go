package logger

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// LogRequest logs a completed call to the WeChat backend
func LogRequest(endpoint string, ret int, duration time.Duration) {
	fields := map[string]interface{}{
		"endpoint":    endpoint,
		"ret":         ret,
		"duration_ms": duration.Milliseconds(),
	}

	if ret == 0 {
		GetLogger().DebugWithFields("WeChat request completed", fields)
	} else {
		GetLogger().WarnWithFields("WeChat request returned error code", fields)
	}
}

// LogArticle logs the outcome of exporting a single article
func LogArticle(title, link string, downloaded bool, err error) {
	l := GetLogger().WithFields(map[string]interface{}{
		"title": title,
		"link":  link,
	})

	switch {
	case err != nil:
		l.WithError(err).Error("Article export failed")
	case downloaded:
		l.Debug("Article exported")
	default:
		l.Warn("Article skipped")
	}
}

// LogRateLimit logs a frequency-control cooldown
func LogRateLimit(endpoint string, cooldown time.Duration) {
	GetLogger().WithFields(map[string]interface{}{
		"endpoint": endpoint,
		"cooldown": cooldown,
		"action":   "rate_limited",
	}).Warn("Frequency control hit, cooling down")
}

// LogCollectProgress logs catalog paging progress
func LogCollectProgress(account string, pages, collected int) {
	GetLogger().WithFields(map[string]interface{}{
		"account":   account,
		"pages":     pages,
		"collected": collected,
	}).Info("Catalog progress")
}

// LogExportSummary logs the final counters of a run
func LogExportSummary(account string, downloaded, skipped, total int) {
	ratio := 0.0
	if total > 0 {
		ratio = float64(downloaded) / float64(total) * 100
	}

	GetLogger().WithFields(map[string]interface{}{
		"account":    account,
		"downloaded": downloaded,
		"skipped":    skipped,
		"total":      total,
		"success":    fmt.Sprintf("%.1f%%", ratio),
	}).Info("Export finished")
}

// NewNopLogger creates a logger that discards everything
func NewNopLogger() Logger {
	return &zerologLogger{logger: zerolog.Nop()}
}
