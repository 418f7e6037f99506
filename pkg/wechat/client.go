package wechat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	errs "wxexport/pkg/errors"
	"wxexport/pkg/events"
	"wxexport/pkg/logger"
	"wxexport/pkg/models"
	"wxexport/pkg/retry"
)

// DefaultUserAgent mimics desktop Chrome; the console rejects obvious bots
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Credentials is an already-harvested console session. The client never
// refreshes or validates it; a stale session surfaces as an API error.
type Credentials struct {
	Cookie    string
	Token     string
	UserAgent string
}

// Apply sets the session headers on req
func (c Credentials) Apply(req *http.Request) {
	ua := c.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	if c.Cookie != "" {
		req.Header.Set("Cookie", c.Cookie)
	}
}

// ArticlePage is one page of the listing endpoint
type ArticlePage struct {
	Offset int
	Items  []models.AppMsgItem
	Total  int
}

// Client talks to the mp.weixin.qq.com console API
type Client struct {
	httpClient *http.Client
	baseURL    string
	creds      Credentials
	cooldown   time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	sink       events.Sink
	logger     logger.Logger
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL points the client at another host, mainly for tests
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithCooldown sets how long to wait after a frequency-control response
func WithCooldown(d time.Duration) Option {
	return func(c *Client) { c.cooldown = d }
}

// WithSleep overrides the cooldown sleeper
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// WithSink sets the progress sink
func WithSink(s events.Sink) Option {
	return func(c *Client) { c.sink = s }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a console API client
func NewClient(creds Credentials, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    BaseURL,
		creds:      creds,
		cooldown:   60 * time.Second,
		sleep:      retry.Wait,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.GetLogger()
	}
	if c.sink == nil {
		c.sink = events.LogSink(c.logger)
	}
	return c
}

// Search resolves an account name to its fakeid. Only an exact nickname
// match counts; the first one in result order wins.
func (c *Client) Search(ctx context.Context, name string) (string, error) {
	events.Emit(c.sink, events.Event{Kind: events.SearchStarted, Account: name})

	var resp models.SearchResponse
	if err := c.getJSON(ctx, searchURL(c.baseURL, c.creds.Token, name), &resp); err != nil {
		return "", err
	}

	if resp.BaseResp.Ret != RetOK {
		c.logger.WarnWithFields("account search rejected", map[string]interface{}{
			"account": name,
			"ret":     resp.BaseResp.Ret,
			"err_msg": resp.BaseResp.ErrMsg,
		})
		events.Emit(c.sink, events.Event{Kind: events.AccountNotFound, Account: name})
		return "", &errs.Error{
			Type:    errs.ErrorTypeNotFound,
			Message: fmt.Sprintf("search for %q failed: %s", name, resp.BaseResp.ErrMsg),
			Code:    resp.BaseResp.Ret,
		}
	}

	for _, cand := range resp.List {
		if cand.Nickname == name {
			c.logger.DebugWithFields("account resolved", map[string]interface{}{
				"account": name,
				"fakeid":  cand.FakeID,
			})
			events.Emit(c.sink, events.Event{Kind: events.AccountFound, Account: name})
			return cand.FakeID, nil
		}
	}

	events.Emit(c.sink, events.Event{Kind: events.AccountNotFound, Account: name})
	return "", errs.New(errs.ErrorTypeNotFound, 0, "no account named %q among %d candidates", name, len(resp.List))
}

// ListPage fetches up to count items at offset. A frequency-control
// response triggers one cooldown and one identical retry; if that retry
// fails for any reason the result is a rate_limit error.
func (c *Client) ListPage(ctx context.Context, fakeid string, offset, count int) (*ArticlePage, error) {
	if count <= 0 {
		count = PageSize
	}
	u := listURL(c.baseURL, c.creds.Token, fakeid, offset, count)

	cooledDown := false
	page, err := retry.DoWithResult(func() (*ArticlePage, error) {
		return c.listOnce(ctx, u, offset)
	}, &retry.Config{
		MaxAttempts: 2,
		Backoff:     &retry.ConstantBackoff{Delay: c.cooldown},
		RetryIf:     errs.IsRateLimited,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			cooledDown = true
			logger.LogRateLimit(ListEndpoint, delay)
			events.Emit(c.sink, events.Event{Kind: events.RateLimitHit, Page: offset/count + 1})
		},
		Sleep:   c.sleep,
		Context: ctx,
	})
	if err == nil {
		return page, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return nil, err
	}
	if cooledDown {
		events.Emit(c.sink, events.Event{Kind: events.RateLimitPersisted, Page: offset/count + 1, Err: err})
		return nil, &errs.Error{
			Type:    errs.ErrorTypeRateLimit,
			Message: "frequency control persisted after cooldown",
			Code:    RetFreqControl,
			Err:     err,
		}
	}
	return nil, err
}

func (c *Client) listOnce(ctx context.Context, u string, offset int) (*ArticlePage, error) {
	start := time.Now()
	var resp models.AppMsgResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	logger.LogRequest(ListEndpoint, resp.BaseResp.Ret, time.Since(start))

	switch resp.BaseResp.Ret {
	case RetOK:
		return &ArticlePage{Offset: offset, Items: resp.AppMsgList, Total: resp.AppMsgCnt}, nil
	case RetFreqControl:
		return nil, errs.New(errs.ErrorTypeRateLimit, RetFreqControl, "frequency control: %s", resp.BaseResp.ErrMsg)
	case RetInvalidSession:
		return nil, errs.New(errs.ErrorTypeAuth, RetInvalidSession, "session expired or invalid: %s", resp.BaseResp.ErrMsg)
	default:
		return nil, errs.New(errs.ErrorTypeUnknown, resp.BaseResp.Ret, "listing failed: %s", resp.BaseResp.ErrMsg)
	}
}

// newRequest builds an authenticated GET
func (c *Client) newRequest(ctx context.Context, u string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "failed to create request")
	}
	c.creds.Apply(req)
	req.Header.Set("Referer", c.baseURL+"/")
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	return req, nil
}

// getJSON performs the request and decodes a JSON body into target
func (c *Client) getJSON(ctx context.Context, u string, target interface{}) error {
	req, err := c.newRequest(ctx, u)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errs.Wrap(errs.ErrorTypeNetwork, err, "request to %s failed", req.URL.Path)
	}
	defer resp.Body.Close()

	if err := checkResponseStatus(resp); err != nil {
		c.logger.WarnWithFields("unexpected HTTP status", map[string]interface{}{
			"path":   req.URL.Path,
			"status": resp.StatusCode,
		})
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeNetwork, err, "failed to read response body")
	}

	if err := json.Unmarshal(body, target); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"path":         req.URL.Path,
			"body_preview": preview,
		})
		return errs.Wrap(errs.ErrorTypeParsing, err, "failed to parse JSON")
	}
	return nil
}

// checkResponseStatus maps non-2xx HTTP statuses to typed errors
func checkResponseStatus(resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errs.New(errs.ErrorTypeAuth, code, "access denied")
	case code == http.StatusNotFound:
		return errs.New(errs.ErrorTypeNotFound, code, "resource not found")
	case code == http.StatusTooManyRequests:
		return errs.New(errs.ErrorTypeServerError, code, "too many requests")
	case code >= 500:
		return errs.New(errs.ErrorTypeServerError, code, "server error")
	default:
		return errs.New(errs.ErrorTypeUnknown, code, "unexpected status code: %d", code)
	}
}

// CheckResponseStatus is exported for the content fetcher, which shares
// the same status semantics.
func CheckResponseStatus(resp *http.Response) error {
	return checkResponseStatus(resp)
}
