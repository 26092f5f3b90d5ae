// Package apiclient implements the signed fallback client for the target
// application's backend API. It is used only when the rendered page cannot
// expose a durable resource reference, notably video asset resolution.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Classified request failures. Callers branch on these with errors.Is.
var (
	// ErrDataFetch marks a malformed or unexpected payload. Transient.
	ErrDataFetch = errors.New("unexpected api payload")
	// ErrAccessBlocked marks throttling or a ban. Never retried.
	ErrAccessBlocked = errors.New("access blocked by platform")
	// ErrAuthExpired marks an invalid session. One cookie refresh is
	// attempted before it surfaces.
	ErrAuthExpired = errors.New("session auth expired")
)

// Platform response codes with classified meanings.
const (
	codeIPBlock     = 300012
	codeAuthExpired = -100
)

const feedURI = "/api/sns/web/v1/feed"

// Config controls transport behavior.
type Config struct {
	Host          string
	Timeout       time.Duration
	RetryAttempts int
	RetryWait     time.Duration
	UserAgent     string
}

// Client issues signed calls to the backend API. It borrows the live page
// only through the Signer and CookieSource capabilities; the HTTP call itself
// travels a separate network path.
type Client struct {
	http         *resty.Client
	cfg          Config
	signer       Signer
	cookies      CookieSource
	logger       *zap.Logger
	cookieHeader string
}

// New builds a Client. The signer and cookie source are typically backed by
// the same authenticated surface the orchestrator drives.
func New(cfg Config, signer Signer, cookies CookieSource, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(cfg.Host).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json;charset=UTF-8")
	if cfg.UserAgent != "" {
		httpClient.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Client{
		http:    httpClient,
		cfg:     cfg,
		signer:  signer,
		cookies: cookies,
		logger:  logger,
	}
}

// FetchNoteDetail retrieves the structured detail payload for one unit.
// No caching is performed here; callers memoize by unit id if they need to.
func (c *Client) FetchNoteDetail(ctx context.Context, noteID string, hint DetailHint) (NoteCard, error) {
	source := hint.XsecSource
	if source == "" {
		source = "pc_feed"
	}
	body := feedRequest{
		SourceNoteID: noteID,
		ImageFormats: []string{"jpg", "webp", "avif"},
		Extra:        feedExtra{NeedBodyTopic: 1},
		XsecSource:   source,
		XsecToken:    hint.XsecToken,
	}

	data, err := c.post(ctx, feedURI, body)
	if err != nil {
		return NoteCard{}, fmt.Errorf("fetch note %s: %w", noteID, err)
	}

	var feed feedData
	if err := json.Unmarshal(data, &feed); err != nil {
		return NoteCard{}, fmt.Errorf("decode feed for note %s: %w: %v", noteID, ErrDataFetch, err)
	}
	if len(feed.Items) == 0 {
		return NoteCard{}, fmt.Errorf("feed for note %s has no items: %w", noteID, ErrDataFetch)
	}
	return feed.Items[0].NoteCard, nil
}

// post signs and issues the request, retrying transient failures up to the
// configured attempt count. Block errors propagate immediately; an expired
// session triggers exactly one cookie refresh before surfacing.
func (c *Client) post(ctx context.Context, uri string, body any) (json.RawMessage, error) {
	var lastErr error
	refreshed := false

	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		data, err := c.do(ctx, uri, body)
		if err == nil {
			return data, nil
		}
		lastErr = err

		switch {
		case errors.Is(err, ErrAccessBlocked):
			return nil, err
		case errors.Is(err, ErrAuthExpired):
			if refreshed {
				return nil, err
			}
			refreshed = true
			if rerr := c.refreshCookies(ctx); rerr != nil {
				return nil, fmt.Errorf("refresh after expiry: %w", errors.Join(err, rerr))
			}
			c.logger.Info("session cookies refreshed after auth expiry")
			// Refresh does not consume a retry attempt.
			attempt--
			continue
		case ctx.Err() != nil:
			return nil, ctx.Err()
		}

		c.logger.Warn("api call failed, retrying",
			zap.String("uri", uri),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < c.cfg.RetryAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.cfg.RetryWait):
			}
		}
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, uri string, body any) (json.RawMessage, error) {
	headers, err := c.signer.Sign(ctx, uri, body)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	cookieHeader, err := c.cookieHeaderValue(ctx)
	if err != nil {
		return nil, fmt.Errorf("cookie header: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetHeader("Cookie", cookieHeader).
		SetBody(payload).
		Post(uri)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", uri, err)
	}

	if resp.StatusCode() == 471 || resp.StatusCode() == 461 {
		return nil, fmt.Errorf("captcha challenge (verify type %s): %w",
			resp.Header().Get("Verifytype"), ErrAccessBlocked)
	}

	var envelope apiResponse
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope (status %d): %w: %v", resp.StatusCode(), ErrDataFetch, err)
	}
	if envelope.Success {
		return envelope.Data, nil
	}

	switch {
	case envelope.Code == codeIPBlock:
		return nil, fmt.Errorf("platform code %d %q: %w", envelope.Code, envelope.Msg, ErrAccessBlocked)
	case envelope.Code == codeAuthExpired || resp.StatusCode() == http.StatusUnauthorized:
		return nil, fmt.Errorf("platform code %d %q: %w", envelope.Code, envelope.Msg, ErrAuthExpired)
	default:
		return nil, fmt.Errorf("platform code %d %q: %w", envelope.Code, envelope.Msg, ErrDataFetch)
	}
}

// refreshCookies re-reads session cookies from the live surface and rebuilds
// the Cookie header for subsequent calls.
func (c *Client) refreshCookies(ctx context.Context) error {
	c.cookieHeader = ""
	_, err := c.cookieHeaderValue(ctx)
	return err
}

func (c *Client) cookieHeaderValue(ctx context.Context) (string, error) {
	if c.cookieHeader != "" {
		return c.cookieHeader, nil
	}
	cookies, err := c.cookies.Cookies(ctx)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+cookies[name])
	}
	c.cookieHeader = strings.Join(pairs, "; ")
	return c.cookieHeader, nil
}
