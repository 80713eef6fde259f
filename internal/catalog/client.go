package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/user/bookscan-service/internal/entity"
	"github.com/user/bookscan-service/pkg/logger"
	"github.com/user/bookscan-service/pkg/metrics"
	"github.com/user/bookscan-service/pkg/proxy"
	"github.com/user/bookscan-service/pkg/utils"
)

const (
	productSearchPath = "/search/product"
	facetSearchPath   = "/search/facet-search"

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36"
	maxBodyBytes     = 10 << 20
)

// CredentialSource is what the client needs from the Credential Store.
type CredentialSource interface {
	// Get returns the current credential, or nil when none is available.
	Get(ctx context.Context) (*entity.AuthCredential, error)
	// TriggerRefresh schedules a credential refresh job.
	TriggerRefresh(ctx context.Context) error
	// AwaitRefresh polls until the token differs from stale or maxWait elapses.
	AwaitRefresh(ctx context.Context, stale string, maxWait, poll time.Duration) (*entity.AuthCredential, error)
}

// Options configures a Client.
type Options struct {
	BaseURL  string
	SiteURL  string
	ImageURL string
	CityID   int
	UserID   string

	DelayMin   time.Duration
	DelayMax   time.Duration
	MaxRetries int
	Timeout    time.Duration
	RPS        float64

	// RateLimitWaits bounds how many 429 responses one request tolerates.
	// They are not counted against MaxRetries.
	RateLimitWaits    int
	DefaultRetryAfter time.Duration

	RefreshWait time.Duration
	RefreshPoll time.Duration

	CacheTTL  time.Duration
	CacheSize int

	// ScanPageSize is the per-page size of search requests. Filtering happens
	// after the fetch, so pages are wider than any budget.
	ScanPageSize int
	MaxScanPages int

	Filters FilterConfig
}

// DefaultOptions returns the production settings for chitai-gorod.ru.
func DefaultOptions() Options {
	return Options{
		BaseURL:           "https://web-agr.chitai-gorod.ru/web/api/v2",
		SiteURL:           "https://www.chitai-gorod.ru",
		ImageURL:          "https://content.img-gorod.ru",
		CityID:            39,
		DelayMin:          500 * time.Millisecond,
		DelayMax:          1500 * time.Millisecond,
		MaxRetries:        3,
		Timeout:           30 * time.Second,
		RPS:               2,
		RateLimitWaits:    5,
		DefaultRetryAfter: 10 * time.Second,
		RefreshWait:       30 * time.Second,
		RefreshPoll:       2 * time.Second,
		CacheTTL:          time.Minute,
		CacheSize:         256,
		ScanPageSize:      60,
		MaxScanPages:      3,
		Filters:           DefaultFilters(),
	}
}

// RateLimitState is a diagnostic snapshot of one client's traffic.
type RateLimitState struct {
	Attempted   int64     `json:"attempted"`
	Succeeded   int64     `json:"succeeded"`
	Failed      int64     `json:"failed"`
	LastRequest time.Time `json:"last_request"`
}

// SuccessRate returns Succeeded/Attempted as a percentage.
func (s RateLimitState) SuccessRate() float64 {
	if s.Attempted == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Attempted) * 100
}

// SearchQuery describes one product search. Offset and Limit are expressed in
// products; the client maps them onto the catalog's page parameters.
type SearchQuery struct {
	Phrase       string
	Offset       int
	Limit        int
	FetchDetails bool
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Client is the rate-limited, self-healing catalog API client. It is safe for
// concurrent use. The token bucket, response cache, jitter source and stats
// are shared with every Session derived from it; the refresh flag is not.
type Client struct {
	opts       Options
	httpClient *http.Client
	creds      CredentialSource
	normalizer *Normalizer
	proxies    *proxy.Manager
	metrics    *metrics.Metrics
	logger     *zap.Logger
	sleep      SleepFunc
	shared     *sharedState

	refreshTriggered atomic.Bool
}

type sharedState struct {
	limiter *rate.Limiter
	cache   *expirable.LRU[string, []byte]

	rndMu sync.Mutex
	rnd   *rand.Rand

	statsMu sync.Mutex
	stats   RateLimitState
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default otelhttp-instrumented client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithProxyManager routes requests through rotating proxies and user agents.
func WithProxyManager(pm *proxy.Manager) ClientOption {
	return func(c *Client) { c.proxies = pm }
}

func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithSleep replaces the context-aware timer used for delays and backoff.
func WithSleep(fn SleepFunc) ClientOption {
	return func(c *Client) { c.sleep = fn }
}

// WithRandom seeds the politeness jitter.
func WithRandom(r *rand.Rand) ClientOption {
	return func(c *Client) { c.shared.rnd = r }
}

// NewClient builds a client. creds may be nil, in which case requests go out
// without a token and a 401 is returned as Unauthorized.
func NewClient(opts Options, creds CredentialSource, log *zap.Logger, options ...ClientOption) *Client {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.DefaultRetryAfter <= 0 {
		opts.DefaultRetryAfter = 10 * time.Second
	}
	c := &Client{
		opts:   opts,
		creds:  creds,
		logger: log,
		sleep:  sleepContext,
		shared: &sharedState{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))},
	}
	for _, o := range options {
		o(c)
	}

	if c.httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if c.proxies != nil {
			transport = c.proxies.Transport()
		}
		c.httpClient = &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(transport),
		}
	}

	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	c.shared.limiter = rate.NewLimiter(limit, 1)

	if opts.CacheSize > 0 && opts.CacheTTL > 0 {
		c.shared.cache = expirable.NewLRU[string, []byte](opts.CacheSize, nil, opts.CacheTTL)
	}
	c.normalizer = NewNormalizer(opts.SiteURL, opts.ImageURL, opts.Filters, log)
	return c
}

// Session returns a client for one job. It shares transport, token bucket,
// cache, stats and metrics with c but carries a fresh refresh flag, so each
// job may heal one expired token on its own.
func (c *Client) Session() *Client {
	return &Client{
		opts:       c.opts,
		httpClient: c.httpClient,
		creds:      c.creds,
		normalizer: c.normalizer,
		proxies:    c.proxies,
		metrics:    c.metrics,
		logger:     c.logger,
		sleep:      c.sleep,
		shared:     c.shared,
	}
}

// Stats returns a snapshot of the request counters shared by all sessions.
func (c *Client) Stats() RateLimitState {
	c.shared.statsMu.Lock()
	defer c.shared.statsMu.Unlock()
	return c.shared.stats
}

// SearchProducts fetches one window of accepted products. Offset and Limit
// count items that passed the post-filters, so a full window means the
// catalog had more to give. Pages of ScanPageSize are read in order until
// the window is filled, the catalog runs out, or MaxScanPages is reached.
func (c *Client) SearchProducts(ctx context.Context, q SearchQuery) ([]entity.ScrapedItem, NormalizeReport, error) {
	report := NormalizeReport{Rejected: make(map[RejectReason]int)}
	if q.Limit <= 0 {
		return nil, report, nil
	}
	perPage := c.opts.ScanPageSize
	if perPage <= 0 {
		perPage = q.Offset + q.Limit
	}
	maxPages := max(c.opts.MaxScanPages, 1)

	skip := q.Offset
	items := make([]entity.ScrapedItem, 0, q.Limit)
	pages := 0
	for page := 1; page <= maxPages && len(items) < q.Limit; page++ {
		params := c.baseParams()
		params.Set("products[page]", strconv.Itoa(page))
		params.Set("products[per-page]", strconv.Itoa(perPage))
		params.Set("phrase", q.Phrase)

		body, err := c.Get(ctx, productSearchPath, params)
		if err != nil {
			return nil, report, err
		}
		accepted, pageReport, err := c.normalizer.Normalize(body)
		if err != nil {
			return nil, report, err
		}
		report.merge(pageReport)
		pages++

		if skip >= len(accepted) {
			skip -= len(accepted)
			accepted = nil
		} else {
			accepted = accepted[skip:]
			skip = 0
		}
		items = append(items, accepted[:min(len(accepted), q.Limit-len(items))]...)

		if pageReport.Products < perPage {
			break
		}
	}

	c.logger.Info("catalog search normalized",
		zap.String("phrase", q.Phrase),
		zap.Int("offset", q.Offset),
		zap.Int("limit", q.Limit),
		zap.Int("pages", pages),
		zap.Int("products", report.Products),
		zap.Int("accepted", report.Accepted),
		zap.Int("returned", len(items)),
		zap.Int("malformed", report.Malformed),
		zap.Any("rejected", report.Rejected),
	)

	if q.FetchDetails {
		for i := range items {
			c.EnrichDetails(ctx, &items[i])
		}
	}
	return items, report, nil
}

// Facets returns the raw facet-search document for phrase. Each call runs in
// its own session.
func (c *Client) Facets(ctx context.Context, phrase string) (json.RawMessage, error) {
	params := c.baseParams()
	params.Set("phrase", phrase)
	body, err := c.Session().Get(ctx, facetSearchPath, params)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// Probe sends one minimal search with the given credential instead of the
// stored one and reports the HTTP status. It never retries or refreshes.
func (c *Client) Probe(ctx context.Context, cred *entity.AuthCredential, withCookies bool) (int, error) {
	params := c.baseParams()
	params.Set("products[page]", "1")
	params.Set("products[per-page]", "1")
	params.Set("phrase", "python")

	status, _, _, err := c.roundTrip(ctx, c.endpoint(productSearchPath, params), cred, withCookies)
	if err != nil {
		return 0, &APIError{Kind: KindTransient, Err: err}
	}
	return status, nil
}

// Get performs an authenticated GET against the catalog API and returns the
// JSON body. Non-nil errors are always *APIError.
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	target := c.endpoint(path, params)
	cacheKey := utils.HashKey(target)
	if c.shared.cache != nil {
		if body, ok := c.shared.cache.Get(cacheKey); ok {
			return body, nil
		}
	}

	cred := c.loadCredential(ctx)
	refreshed := false
	rateLimited := 0
	var lastErr *APIError

	for attempt := 0; attempt < c.opts.MaxRetries; {
		if err := c.politeness(ctx); err != nil {
			return nil, &APIError{Kind: KindTransient, Err: err}
		}

		start := time.Now()
		status, body, header, err := c.roundTrip(ctx, target, cred, true)
		elapsed := time.Since(start)

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, &APIError{Kind: KindTransient, Err: ctx.Err()}
			}
			lastErr = &APIError{Kind: KindTransient, Err: err}
			c.metrics.ObserveCatalogRequest("transient", elapsed)
			c.logger.Warn("catalog request failed", zap.String("path", path), zap.Int("attempt", attempt+1), zap.Error(err))

		case status == http.StatusOK:
			c.metrics.ObserveCatalogRequest("success", elapsed)
			if !json.Valid(body) {
				c.metrics.ObserveCatalogRequest("malformed", 0)
				return nil, &APIError{Kind: KindMalformed, Status: status, Err: fmt.Errorf("response is not JSON")}
			}
			if c.shared.cache != nil {
				c.shared.cache.Add(cacheKey, body)
			}
			return body, nil

		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			c.metrics.ObserveCatalogRequest("unauthorized", elapsed)
			if refreshed || !c.refreshTriggered.CompareAndSwap(false, true) {
				c.logger.Error("catalog rejected credential", zap.String("path", path), zap.Int("status", status))
				return nil, &APIError{Kind: KindUnauthorized, Status: status}
			}
			refreshed = true
			cred = c.refreshCredential(ctx, cred, status)
			continue

		case status == http.StatusTooManyRequests:
			c.metrics.ObserveCatalogRequest("rate_limited", elapsed)
			wait := retryAfter(header.Get("Retry-After"), c.opts.DefaultRetryAfter)
			limited := &APIError{Kind: KindRateLimited, Status: status, RetryAfter: wait}
			rateLimited++
			if rateLimited > c.opts.RateLimitWaits {
				c.metrics.ObserveCatalogRequest("exhausted", 0)
				return nil, &APIError{Kind: KindExhausted, Status: status, Err: limited}
			}
			c.logger.Warn("catalog rate limited", zap.String("path", path), zap.Duration("retry_after", wait))
			if err := c.sleep(ctx, wait); err != nil {
				return nil, &APIError{Kind: KindTransient, Err: err}
			}
			continue

		default:
			lastErr = &APIError{Kind: KindTransient, Status: status, Err: fmt.Errorf("unexpected status %d", status)}
			c.metrics.ObserveCatalogRequest("http_error", elapsed)
			c.logger.Warn("catalog returned error status", zap.String("path", path), zap.Int("status", status), zap.Int("attempt", attempt+1))
		}

		attempt++
		if attempt < c.opts.MaxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, &APIError{Kind: KindTransient, Err: err}
			}
		}
	}

	c.metrics.ObserveCatalogRequest("exhausted", 0)
	return nil, &APIError{Kind: KindExhausted, Status: lastErr.Status, Err: lastErr}
}

// refreshCredential triggers one refresh and waits for a new token. Whatever
// the store holds afterwards is used for the single retry.
func (c *Client) refreshCredential(ctx context.Context, stale *entity.AuthCredential, status int) *entity.AuthCredential {
	staleToken := ""
	if stale != nil {
		staleToken = stale.Token
	}
	c.logger.Warn("catalog credential rejected, triggering refresh",
		zap.Int("status", status), zap.String("token", logger.TokenPreview(staleToken)))

	if c.creds == nil {
		return stale
	}
	if err := c.creds.TriggerRefresh(ctx); err != nil {
		c.logger.Error("failed to trigger credential refresh", zap.Error(err))
	}
	fresh, err := c.creds.AwaitRefresh(ctx, staleToken, c.opts.RefreshWait, c.opts.RefreshPoll)
	if err != nil {
		c.logger.Warn("credential refresh did not complete in time", zap.Error(err))
	}
	if fresh != nil {
		return fresh
	}
	return c.loadCredential(ctx)
}

func (c *Client) loadCredential(ctx context.Context) *entity.AuthCredential {
	if c.creds == nil {
		return nil
	}
	cred, err := c.creds.Get(ctx)
	if err != nil {
		c.logger.Warn("failed to load credential", zap.Error(err))
		return nil
	}
	return cred
}

// politeness waits for the token bucket and then a random delay in the
// configured window.
func (c *Client) politeness(ctx context.Context) error {
	if err := c.shared.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.sleep(ctx, c.jitter())
}

func (c *Client) jitter() time.Duration {
	lo, hi := c.opts.DelayMin, c.opts.DelayMax
	if hi <= lo {
		return lo
	}
	c.shared.rndMu.Lock()
	defer c.shared.rndMu.Unlock()
	return lo + time.Duration(c.shared.rnd.Int63n(int64(hi-lo)))
}

// roundTrip performs exactly one HTTP exchange.
func (c *Client) roundTrip(ctx context.Context, target string, cred *entity.AuthCredential, withCookies bool) (int, []byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, nil, err
	}
	c.setHeaders(req, cred, withCookies)

	c.recordAttempt()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordResult(false)
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.recordResult(false)
		return 0, nil, nil, fmt.Errorf("read body: %w", err)
	}
	c.recordResult(resp.StatusCode == http.StatusOK)
	return resp.StatusCode, body, resp.Header, nil
}

func (c *Client) setHeaders(req *http.Request, cred *entity.AuthCredential, withCookies bool) {
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "ru,en;q=0.9")
	req.Header.Set("Initial-Feature", "index")
	req.Header.Set("Platform", "desktop")
	req.Header.Set("Shop-Brand", "chitaiGorod")
	req.Header.Set("User-Agent", c.userAgent())
	if c.opts.SiteURL != "" {
		req.Header.Set("Origin", c.opts.SiteURL)
		req.Header.Set("Referer", c.opts.SiteURL+"/")
	}
	if c.opts.UserID != "" {
		req.Header.Set("User-Id", c.opts.UserID)
	}
	if cred == nil {
		return
	}
	if cred.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	}
	if withCookies {
		for name, value := range cred.Cookies {
			req.AddCookie(&http.Cookie{Name: name, Value: value})
		}
	}
}

func (c *Client) userAgent() string {
	if c.proxies != nil {
		return c.proxies.UserAgent()
	}
	return defaultUserAgent
}

func (c *Client) baseParams() url.Values {
	params := url.Values{}
	params.Set("customerCityId", strconv.Itoa(c.opts.CityID))
	return params
}

func (c *Client) endpoint(path string, params url.Values) string {
	return strings.TrimRight(c.opts.BaseURL, "/") + path + "?" + params.Encode()
}

func (c *Client) recordAttempt() {
	c.shared.statsMu.Lock()
	defer c.shared.statsMu.Unlock()
	c.shared.stats.Attempted++
	c.shared.stats.LastRequest = time.Now()
}

func (c *Client) recordResult(ok bool) {
	c.shared.statsMu.Lock()
	defer c.shared.statsMu.Unlock()
	if ok {
		c.shared.stats.Succeeded++
	} else {
		c.shared.stats.Failed++
	}
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(value string, fallback time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
		return 0
	}
	return fallback
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
