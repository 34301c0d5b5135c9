package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"swissdamed/internal/etl"
)

// ── HTTP Source ─────────────────────────────────────────────
// Walks a paginated POST endpoint until an empty or short page.
// Each source owns its client and cookie jar; the upstream expects
// the session cookie from the first page on every later request.

// DefaultURL is the public swissdamed basic-UDI listing.
const DefaultURL = "https://swissdamed.ch/public/udi/basic-udis"

// DefaultUserAgent mimics a desktop browser; the endpoint rejects bare clients.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36"

// HTTPConfig configures an HTTPSource. Zero fields take defaults.
type HTTPConfig struct {
	URL       string
	PageSize  int
	UserAgent string

	// Concurrency is the number of pages fetched per window. Pages are
	// reassembled in order; 1 fetches strictly sequentially.
	Concurrency int
	// MaxPages stops pagination early; 0 means unlimited.
	MaxPages int

	// RateLimitRPS caps requests per second across the window. <=0 disables.
	RateLimitRPS float64
	Timeout      time.Duration

	MaxRetries        int
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	BackoffJitterFrac float64
}

func (c HTTPConfig) withDefaults() HTTPConfig {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = 500 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 10 * time.Second
	}
	if c.BackoffJitterFrac <= 0 {
		c.BackoffJitterFrac = 0.2
	}
	return c
}

// HTTPSource reads every page of the remote catalog.
type HTTPSource struct {
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPSource builds a source with its own client and cookie jar.
func NewHTTPSource(cfg HTTPConfig) (*HTTPSource, error) {
	cfg = cfg.withDefaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", cfg.URL, err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	s := &HTTPSource{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout, Jar: jar},
	}
	if cfg.RateLimitRPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)
	}
	return s, nil
}

func (s *HTTPSource) Name() string { return "http" }

// Read fetches pages 0, 1, ... until a page comes back empty or shorter
// than the page size.
func (s *HTTPSource) Read(ctx context.Context) ([]etl.Record, error) {
	var all []etl.Record
	for base := 0; ; base += s.cfg.Concurrency {
		n := s.cfg.Concurrency
		if s.cfg.MaxPages > 0 {
			n = min(n, s.cfg.MaxPages-base)
		}
		if n <= 0 {
			log.Printf("source http: page limit %d reached", s.cfg.MaxPages)
			break
		}

		pages, errs := s.fetchWindow(ctx, base, n)
		done := false
		for i := range n {
			if errs[i] != nil {
				return nil, errs[i]
			}
			all = append(all, pages[i]...)
			log.Printf("source http: page %d: got %d items (total so far: %d)", base+i, len(pages[i]), len(all))
			if len(pages[i]) < s.cfg.PageSize {
				done = true
				break
			}
		}
		if done {
			break
		}
	}
	log.Printf("source http: download complete: %d items total", len(all))
	return all, nil
}

// fetchWindow fetches pages [base, base+n) concurrently. Results are
// indexed by offset; a failing page does not cancel its neighbours since
// an earlier short page may make the failure irrelevant.
func (s *HTTPSource) fetchWindow(ctx context.Context, base, n int) ([][]etl.Record, []error) {
	pages := make([][]etl.Record, n)
	errs := make([]error, n)

	var g errgroup.Group
	g.SetLimit(n)
	for i := range n {
		g.Go(func() error {
			pages[i], errs[i] = s.fetchWithRetry(ctx, base+i)
			return nil
		})
	}
	_ = g.Wait()
	return pages, errs
}

func (s *HTTPSource) fetchWithRetry(ctx context.Context, page int) ([]etl.Record, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &AcquireError{Source: s.Name(), Page: page, Err: err}
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, &AcquireError{Source: s.Name(), Page: page, Err: err}
			}
		}

		records, err := s.fetchPage(ctx, page)
		if err == nil {
			return records, nil
		}
		if !isTransient(err) || attempt >= s.cfg.MaxRetries || ctx.Err() != nil {
			return nil, &AcquireError{Source: s.Name(), Page: page, Err: err}
		}

		sleep := backoffSleep(s.cfg.BackoffInitial, s.cfg.BackoffMax, s.cfg.BackoffJitterFrac, attempt)
		log.Printf("source http: page %d: %v (retrying in %s)", page, err, sleep.Round(time.Millisecond))
		t := time.NewTimer(sleep)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, &AcquireError{Source: s.Name(), Page: page, Err: ctx.Err()}
		}
	}
}

func (s *HTTPSource) fetchPage(ctx context.Context, page int) ([]etl.Record, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(s.cfg.PageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader("{}"))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status, Snippet: snippet(body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	records, err := etl.DecodeRecords(data, "values")
	if errors.Is(err, etl.ErrNoValues) {
		return nil, errors.New("response missing 'values' array")
	}
	return records, err
}

// ── Errors ──────────────────────────────────────────────────

// AcquireError reports a failure to obtain the record set.
// Page is -1 for sources that are not paginated.
type AcquireError struct {
	Source string
	Page   int
	Err    error
}

func (e *AcquireError) Error() string {
	if e == nil {
		return "acquire error"
	}
	if e.Page < 0 {
		return fmt.Sprintf("source %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("source %s: page %d: %v", e.Source, e.Page, e.Err)
}

func (e *AcquireError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code    int
	Status  string
	Snippet string
}

func (e *StatusError) Error() string {
	if e.Snippet == "" {
		return "http error: " + e.Status
	}
	return fmt.Sprintf("http error: %s: %s", e.Status, e.Snippet)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

func backoffSleep(initial, max time.Duration, jitterFrac float64, attempt int) time.Duration {
	sleep := initial
	for i := 0; i < attempt && sleep < max; i++ {
		sleep *= 2
		if sleep > max {
			sleep = max
			break
		}
	}
	if jitterFrac <= 0 {
		return sleep
	}
	j := 1 + (rand.Float64()*2-1)*jitterFrac
	return time.Duration(float64(sleep) * j)
}

func snippet(body []byte) string {
	s := string(bytes.TrimSpace(body))
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}
