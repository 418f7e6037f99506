// Package content downloads article pages and makes them self-contained:
// hotlink protection is disabled and every image is inlined as a data URI.
package content

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/sync/singleflight"
	errs "wxexport/pkg/errors"
	"wxexport/pkg/logger"
	"wxexport/pkg/models"
	"wxexport/pkg/ratelimit"
	"wxexport/pkg/retry"
	"wxexport/pkg/wechat"
)

const (
	// DefaultImageTimeout bounds a single image download
	DefaultImageTimeout = 10 * time.Second

	maxImageBytes = 32 << 20
)

// Sanitized is one article's rewritten markup. It only lives for the
// duration of a fetch-and-materialize pass.
type Sanitized struct {
	HTML     string
	Images   int
	Embedded int
	Failed   int
}

// Fetcher downloads and rewrites article pages
type Fetcher struct {
	httpClient   *http.Client
	creds        wechat.Credentials
	imageTimeout time.Duration
	limiter      ratelimit.Limiter
	retry        retry.Config
	group        singleflight.Group
	logger       logger.Logger
}

// Option configures a Fetcher
type Option func(*Fetcher)

func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) { f.httpClient = hc }
}

// WithTimeout sets the article page timeout
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.httpClient.Timeout = d }
}

func WithImageTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.imageTimeout = d }
}

// WithLimiter shares a request limiter across all image downloads
func WithLimiter(l ratelimit.Limiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithRetry sets how transient article page failures are retried
func WithRetry(cfg retry.Config) Option {
	return func(f *Fetcher) { f.retry = cfg }
}

func WithLogger(l logger.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher creates a Fetcher that authenticates with creds
func NewFetcher(creds wechat.Credentials, opts ...Option) *Fetcher {
	f := &Fetcher{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		creds:        creds,
		imageTimeout: DefaultImageTimeout,
		retry:        *retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.limiter == nil {
		f.limiter = ratelimit.NewRequestLimiter(0, 0)
	}
	if f.logger == nil {
		f.logger = logger.GetLogger()
	}
	return f
}

// Fetch downloads ref.Link and returns the self-contained markup
func (f *Fetcher) Fetch(ctx context.Context, ref models.ArticleRef) (*Sanitized, error) {
	base, err := url.Parse(ref.Link)
	if err != nil || base.Host == "" {
		return nil, errs.New(errs.ErrorTypeParsing, 0, "invalid article link %q", ref.Link)
	}

	log := f.logger.WithField("title", ref.Title)

	cfg := f.retry
	cfg.Context = ctx
	cfg.Logger = log
	body, err := retry.DoWithResult(func() ([]byte, error) {
		return f.get(ctx, ref.Link, 0)
	}, &cfg)
	if err != nil {
		return nil, err
	}

	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "failed to parse article markup")
	}
	doc := goquery.NewDocumentFromNode(root)

	ensureNoReferrer(doc)

	out := &Sanitized{}
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src := EffectiveSource(img)
		if src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		out.Images++

		abs := resolve(base, src)
		data, mime, err := f.FetchImage(ctx, abs)
		if err != nil {
			out.Failed++
			log.WithError(err).DebugWithFields("image not inlined", map[string]interface{}{"url": abs})
			img.SetAttr("src", abs)
			return
		}
		img.SetAttr("src", EncodeDataURI(mime, data))
		out.Embedded++
	})

	rendered, err := doc.Html()
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "failed to serialize article")
	}
	out.HTML = rendered

	log.DebugWithFields("article sanitized", map[string]interface{}{
		"images":   out.Images,
		"embedded": out.Embedded,
		"failed":   out.Failed,
	})
	return out, nil
}

type imageResult struct {
	data []byte
	mime string
}

// FetchImage downloads one image with the session headers. Concurrent
// requests for the same URL share a single download, which is detached
// from any one caller's cancellation and bounded by the image timeout.
func (f *Fetcher) FetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	ch := f.group.DoChan(imageURL, func() (interface{}, error) {
		shared := context.WithoutCancel(ctx)
		if err := f.limiter.Wait(shared); err != nil {
			return nil, err
		}
		ictx, cancel := context.WithTimeout(shared, f.imageTimeout)
		defer cancel()

		data, err := f.get(ictx, imageURL, maxImageBytes)
		if err != nil {
			return nil, err
		}
		return imageResult{data: data, mime: MimeFromURL(imageURL)}, nil
	})

	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, "", res.Err
		}
		img := res.Val.(imageResult)
		return img.data, img.mime, nil
	}
}

// get performs an authenticated GET and returns the body. limit <= 0 means
// no size cap.
func (f *Fetcher) get(ctx context.Context, u string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "failed to create request")
	}
	f.creds.Apply(req)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "GET %s", u)
	}
	defer resp.Body.Close()

	if err := wechat.CheckResponseStatus(resp); err != nil {
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}

	var r io.Reader = resp.Body
	if limit > 0 {
		r = io.LimitReader(resp.Body, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "failed to read %s", u)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, errs.New(errs.ErrorTypeParsing, 0, "%s exceeds %d bytes", u, limit)
	}
	return data, nil
}

// ensureNoReferrer upserts <meta name="referrer" content="no-referrer"> so
// the image CDN does not see the article page as referrer.
func ensureNoReferrer(doc *goquery.Document) {
	meta := doc.Find(`meta[name="referrer"]`)
	if meta.Length() > 0 {
		meta.SetAttr("content", "no-referrer")
		return
	}
	head := doc.Find("head").First()
	if head.Length() == 0 {
		doc.Find("html").First().PrependHtml("<head></head>")
		head = doc.Find("head").First()
	}
	head.PrependHtml(`<meta name="referrer" content="no-referrer">`)
}

// EffectiveSource prefers the lazy-load data-src over src
func EffectiveSource(img *goquery.Selection) string {
	if v, ok := img.Attr("data-src"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	v, _ := img.Attr("src")
	return strings.TrimSpace(v)
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// MimeFromURL infers an image media type from the URL's extension or the
// wx_fmt parameter the CDN uses instead. Anything unrecognised, WebP
// included, is reported as JPEG.
func MimeFromURL(raw string) string {
	ext := ""
	if u, err := url.Parse(raw); err == nil {
		ext = strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
		if ext == "" {
			ext = strings.ToLower(u.Query().Get("wx_fmt"))
		}
	}
	switch ext {
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "svg", "svg+xml":
		return "image/svg+xml"
	default:
		return "image/jpeg"
	}
}

// EncodeDataURI renders data as a base64 data URI
func EncodeDataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI parses a base64 data URI back into bytes and media type
func DecodeDataURI(uri string) ([]byte, string, error) {
	if !strings.HasPrefix(uri, "data:") {
		return nil, "", fmt.Errorf("not a data URI")
	}
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data URI")
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return nil, "", err
		}
		return []byte(unescaped), mime, nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode data URI: %w", err)
	}
	return data, mime, nil
}
