package tables

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/five82/tables/internal/statuslog"
)

const (
	defaultServerURL     = "http://127.0.0.1:5000"
	defaultUserAgent     = "tables/0.1"
	defaultTimeout       = 30 * time.Second
	defaultAttempts      = 3
	defaultRetryDelay    = time.Second
	defaultRedirectDelay = 2 * time.Second
	excerptLimit         = 200
	maxJSONBody          = 8 << 20
)

// Options configure a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL       string
	Timeout       time.Duration
	Attempts      int
	RetryDelay    time.Duration
	RedirectDelay time.Duration

	Jar       http.CookieJar
	Transport http.RoundTripper
	Sink      statuslog.Sink
	Logger    *slog.Logger

	// OnAuthExpired runs once RedirectDelay after a 401, to send the user back
	// to the login surface.
	OnAuthExpired func()
}

// RequestOptions configure a single Send.
type RequestOptions struct {
	Body        []byte
	ContentType string
	Attempts    int // zero uses the client default
}

// Client talks to the tables server.
type Client struct {
	baseURL    *url.URL
	http       *http.Client
	userAgent  string
	timeout    time.Duration
	attempts   int
	retryDelay time.Duration
	sink       statuslog.Sink
	logger     *slog.Logger
	redirect   *redirectGuard
}

// NewClient builds a Client for the server at opts.BaseURL.
func NewClient(opts Options) (*Client, error) {
	base, err := parseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: base,
		http: &http.Client{
			Jar:       opts.Jar,
			Transport: opts.Transport,
		},
		userAgent:  defaultUserAgent,
		timeout:    opts.Timeout,
		attempts:   opts.Attempts,
		retryDelay: opts.RetryDelay,
		sink:       opts.Sink,
		logger:     opts.Logger,
		redirect:   &redirectGuard{delay: opts.RedirectDelay, fn: opts.OnAuthExpired},
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.attempts <= 0 {
		c.attempts = defaultAttempts
	}
	if c.retryDelay < 0 {
		c.retryDelay = 0
	} else if c.retryDelay == 0 {
		c.retryDelay = defaultRetryDelay
	}
	if c.redirect.delay <= 0 {
		c.redirect.delay = defaultRedirectDelay
	}
	if c.sink == nil {
		c.sink = statuslog.Discard
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// BaseURL returns the server root the client resolves endpoints against.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// RedirectPending reports whether a login redirect is scheduled.
func (c *Client) RedirectPending() bool {
	return c.redirect.pending.Load()
}

// Send performs a request against ep, retrying timeouts and network failures.
// On success exactly one of Outcome.JSON and Outcome.Binary is set; a binary
// payload must be closed by the caller.
func (c *Client) Send(ctx context.Context, ep Endpoint, opts RequestOptions) (Outcome, error) {
	if c == nil {
		return Outcome{}, fmt.Errorf("client is nil")
	}
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = c.attempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := c.sendOnce(ctx, ep, opts)
		if err == nil {
			return out, nil
		}
		lastErr = err

		var reqErr *Error
		if !errors.As(err, &reqErr) || !reqErr.Retryable() || attempt == attempts || ctx.Err() != nil {
			break
		}
		c.logger.Warn("request attempt failed", "endpoint", ep.Path, "attempt", attempt, "attempts", attempts, "error", err)
		c.sink.Append(fmt.Sprintf("Retrying request... (%d/%d)", attempt, attempts), statuslog.Info)
		if err := sleepContext(ctx, c.retryDelay); err != nil {
			break
		}
	}
	return Outcome{}, lastErr
}

func (c *Client) sendOnce(ctx context.Context, ep Endpoint, opts RequestOptions) (Outcome, error) {
	// The timeout covers the call up to the response headers. A binary body
	// is read afterwards and is bounded only by ctx.
	reqCtx, cancel := context.WithCancelCause(ctx)
	timer := time.AfterFunc(c.timeout, func() { cancel(context.DeadlineExceeded) })
	keep := false
	defer func() {
		if !keep {
			timer.Stop()
			cancel(nil)
		}
	}()

	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}
	reqURL := c.baseURL.ResolveReference(&url.URL{Path: ep.Path})
	req, err := http.NewRequestWithContext(reqCtx, ep.Method, reqURL.String(), body)
	if err != nil {
		return Outcome{}, fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("User-Agent", c.userAgent)
	if opts.ContentType != "" {
		req.Header.Set("Content-Type", opts.ContentType)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Outcome{}, c.transportError(ctx, reqCtx, ep, err)
	}
	defer func() {
		if !keep {
			_ = resp.Body.Close()
		}
	}()
	c.logger.Debug("response received",
		"endpoint", ep.Path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"elapsed", time.Since(started),
	)

	if resp.StatusCode == http.StatusUnauthorized && ep.Path != EndpointLogin.Path {
		if c.redirect.schedule() {
			c.logger.Info("session expired, login redirect scheduled", "endpoint", ep.Path, "delay", c.redirect.delay)
		}
		return Outcome{}, &Error{Kind: KindAuthExpired, Status: resp.StatusCode, Endpoint: ep.Path, Message: "authorization required"}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := serverMessage(detail)
		if msg == "" {
			msg = fmt.Sprintf("returned status %d", resp.StatusCode)
		}
		return Outcome{}, &Error{Kind: KindHTTP, Status: resp.StatusCode, Endpoint: ep.Path, Message: msg}
	}

	mediaType := mediaTypeOf(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/json":
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBody))
		if err != nil {
			return Outcome{}, c.transportError(ctx, reqCtx, ep, err)
		}
		if !json.Valid(data) {
			return Outcome{}, newError(KindParse, ep.Path, "invalid JSON response", nil)
		}
		return Outcome{JSON: data}, nil

	case isBinaryType(mediaType):
		if !timer.Stop() {
			return Outcome{}, newError(KindTimeout, ep.Path, fmt.Sprintf("request timed out after %s", c.timeout), context.DeadlineExceeded)
		}
		keep = true
		return Outcome{Binary: &Payload{
			ContentType: mediaType,
			Filename:    attachmentName(resp.Header.Get("Content-Disposition")),
			Size:        resp.ContentLength,
			body:        resp.Body,
			release:     func() { cancel(nil) },
		}}, nil

	default:
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBody))
		if err != nil {
			return Outcome{}, c.transportError(ctx, reqCtx, ep, err)
		}
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && json.Valid(trimmed) {
			c.logger.Warn("accepted JSON body with unexpected content type", "endpoint", ep.Path, "content_type", mediaType)
			return Outcome{JSON: trimmed}, nil
		}
		return Outcome{}, newError(KindUnexpectedContentType, ep.Path,
			fmt.Sprintf("unexpected response (%s): %q", orUnknown(mediaType), excerpt(trimmed)), nil)
	}
}

func (c *Client) transportError(parent, reqCtx context.Context, ep Endpoint, err error) error {
	if parent.Err() != nil {
		return newError(KindNetwork, ep.Path, "request cancelled", parent.Err())
	}
	var netErr net.Error
	if errors.Is(context.Cause(reqCtx), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return newError(KindTimeout, ep.Path, fmt.Sprintf("request timed out after %s", c.timeout), err)
	}
	return newError(KindNetwork, ep.Path, "request failed", err)
}

// redirectGuard keeps at most one login redirect pending.
type redirectGuard struct {
	pending atomic.Bool
	delay   time.Duration
	fn      func()
}

func (g *redirectGuard) schedule() bool {
	if g == nil || g.fn == nil {
		return false
	}
	if !g.pending.CompareAndSwap(false, true) {
		return false
	}
	time.AfterFunc(g.delay, func() {
		g.pending.Store(false)
		g.fn()
	})
	return true
}

func isBinaryType(mediaType string) bool {
	switch {
	case strings.HasPrefix(mediaType, "application/vnd.openxmlformats"),
		mediaType == "application/vnd.ms-excel",
		mediaType == "application/excel",
		mediaType == "application/octet-stream":
		return true
	}
	return false
}

func mediaTypeOf(header string) string {
	if strings.TrimSpace(header) == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(header, ";", 2)[0]))
	}
	return mediaType
}

func attachmentName(header string) string {
	if header == "" {
		return ResultFilename
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil || strings.TrimSpace(params["filename"]) == "" {
		return ResultFilename
	}
	return params["filename"]
}

func serverMessage(body []byte) string {
	var msg StatusMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return ""
	}
	return strings.TrimSpace(msg.Message)
}

func excerpt(body []byte) string {
	if len(body) <= excerptLimit {
		return string(body)
	}
	return string(body[:excerptLimit])
}

func orUnknown(value string) string {
	if value == "" {
		return "no content type"
	}
	return value
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultServerURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse server url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse server url %q: missing host", raw)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
