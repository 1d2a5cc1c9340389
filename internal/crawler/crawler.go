package crawler

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/seanblong/docqa/pkg/models"
)

const maxBodyBytes = 2 << 20

// Fetcher abstracts the HTTP client for testing.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config controls one crawl run.
type Config struct {
	Seeds           []string
	AllowedDomain   string // host boundary; derived from the first seed when empty
	MaxPages        int
	Workers         int
	PolitenessDelay time.Duration // minimum spacing between requests to one host
	FetchTimeout    time.Duration
	MaxRetries      int
	UserAgent       string
}

// Crawler fetches pages reachable from the seeds within the domain
// boundary and streams them as Documents. A run is finite and not
// restartable; construct a new Crawler per run.
type Crawler struct {
	cfg    Config
	client Fetcher

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []string
	inflight int
	visited  map[string]bool
	seenHash map[string]bool
	failed   []string
	stopped  bool

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter
}

// New validates the config and prepares a crawler. The zero value of any
// tuning field falls back to a sensible default.
func New(cfg Config, client Fetcher) (*Crawler, error) {
	if len(cfg.Seeds) == 0 {
		return nil, errors.New("at least one seed URL is required")
	}
	if cfg.AllowedDomain == "" {
		u, err := url.Parse(cfg.Seeds[0])
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid seed URL %q", cfg.Seeds[0])
		}
		cfg.AllowedDomain = u.Host
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 200
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.PolitenessDelay <= 0 {
		cfg.PolitenessDelay = 500 * time.Millisecond
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "docqa-crawler/1.0"
	}
	if client == nil {
		client = &http.Client{}
	}

	c := &Crawler{
		cfg:      cfg,
		client:   client,
		visited:  make(map[string]bool),
		seenHash: make(map[string]bool),
		limiters: make(map[string]*rate.Limiter),
	}
	c.cond = sync.NewCond(&c.mu)
	return c, nil
}

// Run starts the worker pool and returns the document stream. The channel
// is closed when the frontier is exhausted, the page cap is reached, or
// ctx is cancelled.
func (c *Crawler) Run(ctx context.Context) <-chan models.Document {
	out := make(chan models.Document)

	c.mu.Lock()
	for _, s := range c.cfg.Seeds {
		norm, err := normalizeURL(s)
		if err != nil {
			log.Warn().Str("url", s).Err(err).Msg("invalid seed, skipping")
			continue
		}
		if !c.visited[norm] {
			c.visited[norm] = true
			c.queue = append(c.queue, norm)
		}
	}
	c.mu.Unlock()

	// Unblock waiting workers on cancellation.
	finished := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.stopped = true
			c.cond.Broadcast()
			c.mu.Unlock()
		case <-finished:
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				u, ok := c.next()
				if !ok {
					return
				}
				c.process(ctx, u, out)
				c.done()
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(finished)
		close(out)
	}()
	return out
}

// Failed returns the URLs that exhausted their retries, valid after the
// document stream is closed.
func (c *Crawler) Failed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.failed...)
}

// next blocks until a URL is available or the crawl is finished. This is
// the single mutation point for the frontier.
func (c *Crawler) next() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if c.stopped {
			return "", false
		}
		if len(c.queue) > 0 {
			u := c.queue[0]
			c.queue = c.queue[1:]
			c.inflight++
			return u, true
		}
		if c.inflight == 0 {
			c.cond.Broadcast()
			return "", false
		}
		c.cond.Wait()
	}
}

func (c *Crawler) done() {
	c.mu.Lock()
	c.inflight--
	c.cond.Broadcast()
	c.mu.Unlock()
}

func (c *Crawler) process(ctx context.Context, pageURL string, out chan<- models.Document) {
	body, err := c.fetchWithRetry(ctx, pageURL)
	if err != nil {
		c.mu.Lock()
		c.failed = append(c.failed, pageURL)
		c.mu.Unlock()
		log.Warn().Str("url", pageURL).Err(err).Msg("fetch failed, skipping")
		return
	}

	base, _ := url.Parse(pageURL)
	p, err := parsePage(base, strings.NewReader(string(body)))
	if err != nil {
		log.Warn().Str("url", pageURL).Err(&ParseError{URL: pageURL, Err: err}).Msg("parse failed, skipping")
		return
	}

	c.enqueueLinks(p.Links)

	if p.Text == "" {
		return
	}

	h := sha1.Sum([]byte(p.Text))
	hash := hex.EncodeToString(h[:])

	// Pages reachable under several URLs collapse to one document.
	c.mu.Lock()
	dup := c.seenHash[hash]
	c.seenHash[hash] = true
	c.mu.Unlock()
	if dup {
		log.Debug().Str("url", pageURL).Msg("duplicate content, skipping")
		return
	}

	doc := models.Document{
		URL:         pageURL,
		Title:       p.Title,
		Text:        p.Text,
		ContentHash: hash,
		FetchedAt:   time.Now().UTC(),
	}
	select {
	case out <- doc:
	case <-ctx.Done():
	}
}

func (c *Crawler) enqueueLinks(links []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range links {
		if !shouldFollow(l, c.cfg.AllowedDomain) {
			continue
		}
		norm, err := normalizeURL(l)
		if err != nil || norm == "" {
			continue
		}
		if c.visited[norm] || len(c.visited) >= c.cfg.MaxPages {
			continue
		}
		c.visited[norm] = true
		c.queue = append(c.queue, norm)
	}
	c.cond.Broadcast()
}

func (c *Crawler) fetchWithRetry(ctx context.Context, pageURL string) ([]byte, error) {
	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}
		body, err := c.fetch(ctx, pageURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (c *Crawler) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	if err := c.limiter(u.Host).Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{URL: pageURL, Err: fmt.Errorf("status %s", resp.Status)}
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "text/html") && !strings.Contains(ct, "text/plain") {
		return nil, &ParseError{URL: pageURL, Err: fmt.Errorf("unsupported content type %q", ct)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	return body, nil
}

// limiter returns the politeness limiter for a host, creating it on first
// use.
func (c *Crawler) limiter(host string) *rate.Limiter {
	c.limMu.Lock()
	defer c.limMu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(c.cfg.PolitenessDelay), 1)
		c.limiters[host] = l
	}
	return l
}
