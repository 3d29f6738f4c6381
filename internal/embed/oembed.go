package embed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	oembedTimeout     = 10 * time.Second
	oembedUserAgent   = "pdigest/1.0 (+https://github.com/ppiankov/pdigest)"
	oembedMaxBodySize = 1 << 20
	oembedDefaultTTL  = 24 * time.Hour
)

var (
	errNoMarkup = errors.New("oembed: response has no html")

	// The player iframe is kept; anything the provider appends after it
	// (attribution blocks) is dropped.
	slidesCloseRe = regexp.MustCompile(`>\s*</iframe>.*`)
)

const slidesClose = ` class="slides"></iframe>`

// MarkupStore persists raw provider markup across runs.
type MarkupStore interface {
	GetEmbed(ctx context.Context, contentURL string) (html string, found bool, err error)
	PutEmbed(ctx context.Context, contentURL, html string, fetchedAt time.Time) error
}

// OEmbedClient resolves SlideShare URLs through the provider's oEmbed
// endpoint. Successful results are memoized in process and, when a store is
// configured, persisted. Failures are never cached.
type OEmbedClient struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	memo     *cache.Cache
	store    MarkupStore
	policy   *bluemonday.Policy
	log      logrus.FieldLogger
}

// OEmbedOption configures an OEmbedClient.
type OEmbedOption func(*OEmbedClient)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) OEmbedOption {
	return func(o *OEmbedClient) { o.client = c }
}

// WithCacheTTL sets how long resolved markup stays in the in-process memo.
func WithCacheTTL(ttl time.Duration) OEmbedOption {
	return func(o *OEmbedClient) {
		if ttl > 0 {
			o.memo = cache.New(ttl, 2*ttl)
		}
	}
}

// WithStore persists raw markup in s.
func WithStore(s MarkupStore) OEmbedOption {
	return func(o *OEmbedClient) { o.store = s }
}

// WithRateLimit paces lookups. rps <= 0 disables pacing.
func WithRateLimit(rps float64) OEmbedOption {
	return func(o *OEmbedClient) {
		if rps <= 0 {
			o.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		o.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) OEmbedOption {
	return func(o *OEmbedClient) { o.log = l }
}

// NewOEmbedClient creates a client for the oEmbed endpoint.
func NewOEmbedClient(endpoint string, opts ...OEmbedOption) (*OEmbedClient, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("oembed: endpoint is required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("oembed: parse endpoint: %w", err)
	}
	o := &OEmbedClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: oembedTimeout},
		limiter:  rate.NewLimiter(rate.Inf, 1),
		memo:     cache.New(oembedDefaultTTL, 2*oembedDefaultTTL),
		policy:   slidesPolicy(),
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Lookup implements Lookup. Errors are logged at debug level and reported
// as false.
func (o *OEmbedClient) Lookup(ctx context.Context, contentURL string) (string, bool) {
	if v, ok := o.memo.Get(contentURL); ok {
		return v.(string), true
	}

	log := o.log.WithField("url", contentURL)

	raw, fromStore := o.cached(ctx, contentURL, log)
	if !fromStore {
		var err error
		raw, err = o.fetch(ctx, contentURL)
		if err != nil {
			log.WithError(err).Debug("oembed lookup failed")
			return "", false
		}
	}

	markup := o.render(raw)
	if markup == "" {
		log.Debug("oembed markup empty after sanitizing")
		return "", false
	}

	o.memo.SetDefault(contentURL, markup)
	if o.store != nil && !fromStore {
		if err := o.store.PutEmbed(ctx, contentURL, raw, time.Now()); err != nil {
			log.WithError(err).Warn("persist oembed markup")
		}
	}
	return markup, true
}

func (o *OEmbedClient) cached(ctx context.Context, contentURL string, log logrus.FieldLogger) (string, bool) {
	if o.store == nil {
		return "", false
	}
	raw, found, err := o.store.GetEmbed(ctx, contentURL)
	if err != nil {
		log.WithError(err).Warn("read oembed cache")
		return "", false
	}
	return raw, found
}

func (o *OEmbedClient) fetch(ctx context.Context, contentURL string) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("url", contentURL)
	q.Set("format", "json")

	sep := "?"
	if strings.Contains(o.endpoint, "?") {
		sep = "&"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.endpoint+sep+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", oembedUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oembed: HTTP %d", resp.StatusCode)
	}

	var payload struct {
		HTML string `json:"html"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, oembedMaxBodySize)).Decode(&payload); err != nil {
		return "", fmt.Errorf("oembed: decode: %w", err)
	}
	if strings.TrimSpace(payload.HTML) == "" {
		return "", errNoMarkup
	}
	return payload.HTML, nil
}

// render tags the player iframe with the "slides" class and sanitizes the
// result, since the markup comes from a third party.
func (o *OEmbedClient) render(raw string) string {
	html := slidesCloseRe.ReplaceAllString(raw, slidesClose)
	return strings.TrimSpace(o.policy.Sanitize(html))
}

func slidesPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("iframe")
	p.AllowAttrs("src", "width", "height", "frameborder", "marginwidth", "marginheight",
		"scrolling", "allowfullscreen", "class", "title").OnElements("iframe")
	p.RequireParseableURLs(true)
	p.AllowURLSchemes("http", "https")
	// Providers use protocol-relative player URLs.
	p.AllowRelativeURLs(true)
	return p
}
