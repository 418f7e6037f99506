package logger

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"wxexport/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{name: "info level", cfg: &config.LoggingConfig{Level: "info"}},
		{name: "debug level", cfg: &config.LoggingConfig{Level: "debug"}},
		{name: "invalid level", cfg: &config.LoggingConfig{Level: "loud"}, wantErr: true},
		{
			name: "file output",
			cfg:  &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "wx.log")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
			if tt.cfg.File != "" {
				assert.FileExists(t, tt.cfg.File)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"DEBUG", zerolog.DebugLevel, false},
		{"info", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"invalid", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(&buf, zerolog.WarnLevel)

	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, `"app":"wxexport"`)
}

func TestFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(&buf, zerolog.DebugLevel)

	l.WithField("account", "rmrb").
		WithFields(map[string]interface{}{"page": 3, "cooldown": 60 * time.Second}).
		WithError(errors.New("freq control")).
		Info("chained")

	out := buf.String()
	assert.Contains(t, out, `"account":"rmrb"`)
	assert.Contains(t, out, `"page":3`)
	assert.Contains(t, out, `"error":"freq control"`)
	assert.Contains(t, out, "chained")
}

func TestWithFieldDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(&buf, zerolog.DebugLevel)

	_ = l.WithField("scoped", true)
	l.Info("plain")

	assert.NotContains(t, buf.String(), "scoped")
}

func TestWithErrorNil(t *testing.T) {
	l := newWithWriter(&bytes.Buffer{}, zerolog.InfoLevel)
	assert.Same(t, l, l.WithError(nil))
}

func TestStructuredLogging(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(&buf, zerolog.DebugLevel)

	l.WarnWithFields("listing failed", map[string]interface{}{
		"ret":     200013,
		"offset":  int64(15),
		"formats": []string{"html", "pdf"},
	})

	out := buf.String()
	assert.Contains(t, out, `"ret":200013`)
	assert.Contains(t, out, `"offset":15`)
	assert.Contains(t, out, `"formats":["html","pdf"]`)
}

func TestGlobalLogger(t *testing.T) {
	require.NoError(t, Initialize(&config.LoggingConfig{Level: "debug"}))
	assert.NotNil(t, GetLogger())

	tl := NewTestLogger()
	SetLogger(tl)
	defer SetLogger(NewNopLogger())

	LogRateLimit("/cgi-bin/appmsg", time.Minute)
	LogArticle("标题", "https://mp.weixin.qq.com/s/x", false, errors.New("boom"))
	LogExportSummary("rmrb", 3, 1, 4)

	assert.Len(t, tl.GetMessagesByLevel("WARN"), 1)
	assert.True(t, tl.HasError())
	assert.True(t, tl.HasMessage("Export finished"))
	assert.True(t, strings.Contains(tl.String(), "rate_limited"))
}
