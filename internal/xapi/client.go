// Package xapi is the client for the remote social API: the signed-in user's
// profile and the paginated liked-posts and mentions timelines.
//
// Every call goes through one shared token-bucket limiter and a per-call
// timeout. Failures come back as *apperror.AppError values:
//
//	non-2xx              → apperror.ErrUpstreamData (status + provider detail)
//	429                  → apperror.ErrRateLimited (RetryAfter from x-rate-limit-reset)
//	deadline / timeout   → apperror.ErrUpstreamTimeout
//
// The client never retries. A failed page aborts the whole fetch.
package xapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/sakif/mutual-radar/internal/apperror"
	"github.com/sakif/mutual-radar/internal/metrics"
	"github.com/sakif/mutual-radar/internal/model"
)

// maxErrorBody bounds how much of a failed response we read.
const maxErrorBody = 64 << 10

// Options configures a Client.
type Options struct {
	BaseURL string        // e.g. https://api.twitter.com
	Timeout time.Duration // per call, including reading the body
	RPS     float64       // outbound calls per second across all users
	Burst   int

	// Transport is the base RoundTripper under the bearer and tracing
	// layers. nil means http.DefaultTransport.
	Transport http.RoundTripper
	Logger    *slog.Logger

	// TracerProvider and Propagator default to the otel globals that
	// telemetry.Setup installs.
	TracerProvider trace.TracerProvider
	Propagator     propagation.TextMapPropagator
}

// Client calls the remote API on behalf of a signed-in user.
type Client struct {
	baseURL string
	timeout time.Duration
	base    http.RoundTripper
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Client.
func New(opts Options) *Client {
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Limit(opts.RPS)
	if opts.RPS <= 0 {
		limit = rate.Inf
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}

	var traceOpts []otelhttp.Option
	if opts.TracerProvider != nil {
		traceOpts = append(traceOpts, otelhttp.WithTracerProvider(opts.TracerProvider))
	}
	if opts.Propagator != nil {
		traceOpts = append(traceOpts, otelhttp.WithPropagators(opts.Propagator))
	}
	traceOpts = append(traceOpts, otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
		// Last path segment keeps span names free of user IDs.
		p := r.URL.Path
		return "xapi " + r.Method + " " + p[strings.LastIndexByte(p, '/')+1:]
	}))

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		timeout: opts.Timeout,
		base:    otelhttp.NewTransport(base, traceOpts...),
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
		now:     time.Now,
	}
}

// httpClient returns a client that sends accessToken as a bearer token.
func (c *Client) httpClient(accessToken string) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   c.base,
		},
		Timeout: c.timeout,
	}
}

// Me fetches the profile of the user that owns accessToken.
func (c *Client) Me(ctx context.Context, accessToken string) (*model.User, error) {
	q := url.Values{}
	q.Set("user.fields", "profile_image_url")

	var body struct {
		Data *User `json:"data"`
	}
	if err := c.get(ctx, "users/me", accessToken, "/2/users/me", q, &body); err != nil {
		return nil, err
	}
	if body.Data == nil || body.Data.ID == "" {
		return nil, apperror.UpstreamData("users/me", http.StatusOK, "response carried no user")
	}

	u := body.Data.Snapshot()
	return &u, nil
}

// FetchPage fetches one page of req.Source for req.UserID.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	if req.UserID == "" || req.AccessToken == "" {
		return nil, fmt.Errorf("xapi: page request needs a user ID and an access token")
	}
	if _, ok := minResults[req.Source]; !ok {
		return nil, fmt.Errorf("xapi: unknown source %q", req.Source)
	}

	q := url.Values{}
	q.Set("max_results", strconv.Itoa(clampResults(req.Source, req.MaxResults)))
	q.Set("expansions", "author_id")
	q.Set("user.fields", "profile_image_url")
	if req.PaginationToken != "" {
		q.Set("pagination_token", req.PaginationToken)
	}

	path := "/2/users/" + url.PathEscape(req.UserID) + "/" + string(req.Source)

	var page Page
	if err := c.get(ctx, string(req.Source), req.AccessToken, path, q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// FetchAllPages follows next tokens from req until the timeline is exhausted
// or maxPages pages were read (0 means no limit). The returned page merges
// all posts and included users; Meta.NextToken is non-empty only when the
// page limit stopped the walk early.
func (c *Client) FetchAllPages(ctx context.Context, req PageRequest, maxPages int) (*Page, error) {
	all := &Page{}
	seenUsers := make(map[string]bool)

	for n := 0; maxPages <= 0 || n < maxPages; n++ {
		page, err := c.FetchPage(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("xapi: page %d of %s: %w", n+1, req.Source, err)
		}

		all.Data = append(all.Data, page.Data...)
		for _, u := range page.Includes.Users {
			if !seenUsers[u.ID] {
				seenUsers[u.ID] = true
				all.Includes.Users = append(all.Includes.Users, u)
			}
		}
		all.Meta.ResultCount += page.Meta.ResultCount
		all.Meta.NextToken = page.Meta.NextToken

		// A repeated token would loop forever.
		if page.Meta.NextToken == "" || page.Meta.NextToken == req.PaginationToken {
			all.Meta.NextToken = ""
			break
		}
		req.PaginationToken = page.Meta.NextToken
	}

	return all, nil
}

func clampResults(src Source, n int) int {
	if n < minResults[src] {
		return minResults[src]
	}
	if n > maxResults {
		return maxResults
	}
	return n
}

// get performs one rate-limited GET and decodes the JSON body into out.
//
// The per-call timeout covers the limiter wait, the round trip and the body
// read together, so a throttled call fails with UpstreamTimeout instead of
// queueing behind the token backlog.
func (c *Client) get(ctx context.Context, endpoint, accessToken, path string, q url.Values, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	outcome := metrics.OutcomeError
	defer func() {
		metrics.UpstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		// Wait fails early when the deadline cannot fit the next token.
		if errors.Is(ctx.Err(), context.Canceled) {
			return fmt.Errorf("xapi: %s: %w", endpoint, ctx.Err())
		}
		if _, ok := ctx.Deadline(); ok {
			outcome = metrics.OutcomeTimeout
			return apperror.UpstreamTimeout(endpoint)
		}
		outcome = metrics.OutcomeRateLimited
		return apperror.RateLimited(endpoint, 0)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("xapi: building %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient(accessToken).Do(req)
	if err != nil {
		if isTimeout(err) {
			outcome = metrics.OutcomeTimeout
			c.logger.Warn("remote API call timed out", slog.String("endpoint", endpoint))
			return apperror.UpstreamTimeout(endpoint)
		}
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("xapi: %s: %w", endpoint, err)
		}
		c.logger.Warn("remote API call failed", slog.String("endpoint", endpoint), slog.String("error", err.Error()))
		return apperror.UpstreamData(endpoint, 0, "remote API unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var apiErr apiError
		_ = json.Unmarshal(raw, &apiErr)
		detail := apiErr.message()
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}

		c.logger.Warn("remote API error",
			slog.String("endpoint", endpoint),
			slog.Int("status", resp.StatusCode),
			slog.String("detail", detail),
		)

		if resp.StatusCode == http.StatusTooManyRequests {
			outcome = metrics.OutcomeRateLimited
			return apperror.RateLimited(endpoint, c.retryAfter(resp.Header))
		}
		return apperror.UpstreamData(endpoint, resp.StatusCode, detail)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if isTimeout(err) {
			outcome = metrics.OutcomeTimeout
			return apperror.UpstreamTimeout(endpoint)
		}
		return apperror.UpstreamData(endpoint, resp.StatusCode, "malformed response body")
	}

	outcome = metrics.OutcomeOK
	return nil
}

// retryAfter reads the window reset time the API sends with a 429.
func (c *Client) retryAfter(h http.Header) time.Duration {
	reset, err := strconv.ParseInt(h.Get("x-rate-limit-reset"), 10, 64)
	if err != nil || reset <= 0 {
		return 0
	}
	d := time.Unix(reset, 0).Sub(c.now())
	if d <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(d.Seconds())) * time.Second
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
