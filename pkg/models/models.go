package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// BaseResp is the status envelope every mp.weixin.qq.com JSON response carries
type BaseResp struct {
	Ret    int    `json:"ret"`
	ErrMsg string `json:"err_msg"`
}

type SearchResponse struct {
	BaseResp BaseResp       `json:"base_resp"`
	List     []BizCandidate `json:"list"`
	Total    int            `json:"total"`
}

type BizCandidate struct {
	FakeID      string `json:"fakeid"`
	Nickname    string `json:"nickname"`
	Alias       string `json:"alias"`
	RoundHead   string `json:"round_head_img"`
	ServiceType int    `json:"service_type"`
}

type AppMsgResponse struct {
	BaseResp   BaseResp     `json:"base_resp"`
	AppMsgList []AppMsgItem `json:"app_msg_list"`
	AppMsgCnt  int          `json:"app_msg_cnt"`
}

type AppMsgItem struct {
	AID        string `json:"aid"`
	Title      string `json:"title"`
	Link       string `json:"link"`
	CreateTime int64  `json:"create_time"`
	UpdateTime int64  `json:"update_time"`
	Digest     string `json:"digest"`
	Cover      string `json:"cover"`
}

// ArticleRef is one listed article. Values are produced by the catalog
// collector and never mutated afterwards.
type ArticleRef struct {
	AID           string    `json:"aid" yaml:"aid"`
	Title         string    `json:"title" yaml:"title"`
	Link          string    `json:"link" yaml:"link"`
	PublishedAt   time.Time `json:"published_at" yaml:"published_at"`
	PublishedDate string    `json:"published_date" yaml:"published_date"`
	Digest        string    `json:"digest,omitempty" yaml:"digest,omitempty"`
	Cover         string    `json:"cover,omitempty" yaml:"cover,omitempty"`
}

// NewArticleRef converts a listing item, deriving the calendar date in loc
func NewArticleRef(item AppMsgItem, loc *time.Location) ArticleRef {
	if loc == nil {
		loc = time.Local
	}
	at := time.Unix(item.CreateTime, 0).In(loc)
	return ArticleRef{
		AID:           item.AID,
		Title:         item.Title,
		Link:          item.Link,
		PublishedAt:   at,
		PublishedDate: at.Format(DateLayout),
		Digest:        item.Digest,
		Cover:         item.Cover,
	}
}

// DateLayout is the calendar-date format used in file names and flags
const DateLayout = "2006-01-02"

// DateWindow is an inclusive filter on calendar dates. A nil *DateWindow
// means all history.
type DateWindow struct {
	Start string
	End   string
}

// ParseDateWindow validates YYYY-MM-DD bounds. Both empty returns nil.
// A single empty bound is open-ended on that side.
func ParseDateWindow(start, end string) (*DateWindow, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	for _, s := range []string{start, end} {
		if s == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, s); err != nil {
			return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
		}
	}
	if start != "" && end != "" && start > end {
		return nil, fmt.Errorf("start date %s is after end date %s", start, end)
	}
	return &DateWindow{Start: start, End: end}, nil
}

// Before reports whether date falls before the window start
func (w *DateWindow) Before(date string) bool {
	return w != nil && w.Start != "" && date < w.Start
}

// After reports whether date falls after the window end
func (w *DateWindow) After(date string) bool {
	return w != nil && w.End != "" && date > w.End
}

// Contains reports whether date lies inside the window
func (w *DateWindow) Contains(date string) bool {
	return !w.Before(date) && !w.After(date)
}

func (w *DateWindow) String() string {
	if w == nil {
		return "all"
	}
	start, end := w.Start, w.End
	if start == "" {
		start = "…"
	}
	if end == "" {
		end = "…"
	}
	return start + ".." + end
}

// Format is an export artifact kind
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// AllFormats lists formats in processing order. PDF depends on the HTML
// file being on disk, so HTML must come first.
var AllFormats = []Format{FormatHTML, FormatPDF, FormatDOCX}

// Dir returns the per-format subdirectory under the output root
func (f Format) Dir() string {
	switch f {
	case FormatHTML:
		return "HTML"
	case FormatPDF:
		return "PDF"
	case FormatDOCX:
		return "Word"
	}
	return strings.ToUpper(string(f))
}

// Ext returns the file extension without the dot
func (f Format) Ext() string {
	return string(f)
}

// FormatSet is the set of requested formats
type FormatSet map[Format]bool

// NewFormatSet builds a set from the given formats
func NewFormatSet(formats ...Format) FormatSet {
	s := make(FormatSet, len(formats))
	for _, f := range formats {
		s[f] = true
	}
	return s
}

// ParseFormats parses names like "html", "PDF", "word"
func ParseFormats(names []string) (FormatSet, error) {
	s := FormatSet{}
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "html", "markup":
			s[FormatHTML] = true
		case "pdf":
			s[FormatPDF] = true
		case "docx", "word":
			s[FormatDOCX] = true
		case "":
		default:
			return nil, fmt.Errorf("unknown format %q", n)
		}
	}
	if len(s) == 0 {
		return nil, fmt.Errorf("at least one format is required")
	}
	return s, nil
}

// Has reports whether f was requested
func (s FormatSet) Has(f Format) bool {
	return s[f]
}

// Ordered returns the requested formats in processing order
func (s FormatSet) Ordered() []Format {
	var out []Format
	for _, f := range AllFormats {
		if s[f] {
			out = append(out, f)
		}
	}
	return out
}

func (s FormatSet) String() string {
	var names []string
	for _, f := range s.Ordered() {
		names = append(names, string(f))
	}
	return strings.Join(names, ",")
}

// SanitizeTitle removes characters that are illegal in file names on
// common platforms, along with control characters.
func SanitizeTitle(title string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\\', '/', '*', '?', ':', '"', '<', '>', '|':
			return -1
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, title)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "untitled"
	}
	return cleaned
}

// FileName returns "{publishedDate}_{sanitizedTitle}.{ext}"
func (a ArticleRef) FileName(f Format) string {
	return fmt.Sprintf("%s_%s.%s", a.PublishedDate, SanitizeTitle(a.Title), f.Ext())
}

// ArtifactPath returns the deterministic artifact path for a format
func (a ArticleRef) ArtifactPath(outputRoot string, f Format) string {
	return filepath.Join(outputRoot, f.Dir(), a.FileName(f))
}
