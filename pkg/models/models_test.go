package models

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a/b:c*d", "abcd"},
		{`报告<2024>|"年度"?`, "报告2024年度"},
		{"tab\there\nnewline", "tabherenewline"},
		{"  ///  ", "untitled"},
		{"", "untitled"},
		{"..", "untitled"},
		{"正常标题", "正常标题"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeTitle(tt.in))
		})
	}
}

func TestArtifactPath(t *testing.T) {
	ref := ArticleRef{Title: "a/b:c*d", PublishedDate: "2024-01-15"}

	path := ref.ArtifactPath("/out", FormatDOCX)
	assert.Equal(t, filepath.Join("/out", "Word", "2024-01-15_abcd.docx"), path)

	base := filepath.Base(path)
	assert.False(t, strings.ContainsAny(base, `\/*?:"<>|`))

	other := ArticleRef{Title: "a/b:c*d", PublishedDate: "2024-01-16"}
	assert.NotEqual(t, path, other.ArtifactPath("/out", FormatDOCX))

	assert.Equal(t, filepath.Join("/out", "HTML", "2024-01-15_abcd.html"), ref.ArtifactPath("/out", FormatHTML))
	assert.Equal(t, filepath.Join("/out", "PDF", "2024-01-15_abcd.pdf"), ref.ArtifactPath("/out", FormatPDF))
}

func TestNewArticleRef(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	// 2024-01-31T17:00:00Z is already Feb 1 in UTC+8
	item := AppMsgItem{AID: "1", Title: "t", Link: "https://mp.weixin.qq.com/s/x", CreateTime: 1706720400}

	ref := NewArticleRef(item, loc)
	assert.Equal(t, "2024-02-01", ref.PublishedDate)
	assert.Equal(t, "https://mp.weixin.qq.com/s/x", ref.Link)

	utc := NewArticleRef(item, time.UTC)
	assert.Equal(t, "2024-01-31", utc.PublishedDate)
}

func TestParseDateWindow(t *testing.T) {
	w, err := ParseDateWindow("", "")
	require.NoError(t, err)
	assert.Nil(t, w)
	assert.True(t, w.Contains("1999-01-01"))
	assert.Equal(t, "all", w.String())

	w, err = ParseDateWindow("2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.True(t, w.Contains("2024-01-01"))
	assert.True(t, w.Contains("2024-01-31"))
	assert.True(t, w.Before("2023-12-31"))
	assert.True(t, w.After("2024-02-01"))

	w, err = ParseDateWindow("2024-01-01", "")
	require.NoError(t, err)
	assert.False(t, w.After("2030-01-01"))

	_, err = ParseDateWindow("2024-02-01", "2024-01-01")
	assert.Error(t, err)

	_, err = ParseDateWindow("2024/01/01", "")
	assert.Error(t, err)
}

func TestParseFormats(t *testing.T) {
	set, err := ParseFormats([]string{"PDF", " word ", "html"})
	require.NoError(t, err)
	assert.Equal(t, []Format{FormatHTML, FormatPDF, FormatDOCX}, set.Ordered())
	assert.Equal(t, "html,pdf,docx", set.String())

	set, err = ParseFormats([]string{"docx"})
	require.NoError(t, err)
	assert.True(t, set.Has(FormatDOCX))
	assert.False(t, set.Has(FormatHTML))

	_, err = ParseFormats([]string{"epub"})
	assert.Error(t, err)

	_, err = ParseFormats(nil)
	assert.Error(t, err)
}
