package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/pdigest/internal/auth"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	graphSourceName  = "graph"
	graphTimeout     = 30 * time.Second
	graphUserAgent   = "pdigest/1.0 (+https://github.com/ppiankov/pdigest)"
	graphMaxPages    = 100
	graphMaxBodySize = 64 << 20
	graphPageLimit   = 9999
	graphTimeLayout  = "2006-01-02T15:04:05-0700"
)

// graphFeedFields lists every field the digest needs downstream.
const graphFeedFields = "id,attachments,full_picture,from,message,picture,link,name," +
	"caption,description,created_time,updated_time," +
	"comments.limit(9999){created_time,message}"

// GraphSource walks a group feed on the Graph API page by page.
type GraphSource struct {
	baseURL   string
	version   string
	pageLimit int
	client    *http.Client
	limiter   *rate.Limiter
	log       logrus.FieldLogger
}

// GraphOption configures a GraphSource.
type GraphOption func(*GraphSource)

// WithVersion prefixes request paths with an API version such as "v19.0".
func WithVersion(v string) GraphOption {
	return func(g *GraphSource) { g.version = strings.Trim(v, "/") }
}

// WithPageLimit sets the per-request item limit.
func WithPageLimit(n int) GraphOption {
	return func(g *GraphSource) {
		if n > 0 {
			g.pageLimit = n
		}
	}
}

// WithRateLimit paces page requests. rps <= 0 disables pacing.
func WithRateLimit(rps float64) GraphOption {
	return func(g *GraphSource) {
		if rps <= 0 {
			g.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) GraphOption {
	return func(g *GraphSource) { g.client = c }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) GraphOption {
	return func(g *GraphSource) { g.log = l }
}

// NewGraph creates a Graph API feed source rooted at baseURL.
func NewGraph(baseURL string, opts ...GraphOption) (*GraphSource, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("graph: base URL is required")
	}
	g := &GraphSource{
		baseURL:   strings.TrimRight(baseURL, "/"),
		pageLimit: graphPageLimit,
		client:    &http.Client{Timeout: graphTimeout},
		limiter:   rate.NewLimiter(rate.Inf, 1),
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *GraphSource) Name() string {
	return graphSourceName
}

// FetchOptions tunes a single feed walk.
type FetchOptions struct {
	// Resume starts the walk from a page URL previously reported in
	// FeedError.Cursor instead of the first page.
	Resume string
}

// graphPage is one response of the feed endpoint.
type graphPage struct {
	Data   []graphPost `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

type graphPost struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Link        string          `json:"link"`
	Message     string          `json:"message"`
	CreatedTime string          `json:"created_time"`
	UpdatedTime string          `json:"updated_time"`
	Attachments json.RawMessage `json:"attachments"`
	Comments    struct {
		Data []graphComment `json:"data"`
	} `json:"comments"`
}

type graphComment struct {
	CreatedTime string `json:"created_time"`
	Message     string `json:"message"`
}

// FetchPosts returns the in-window posts of groupID in fetch order.
//
// The feed is newest-first: a post updated after w.Until is skipped, and the
// first post updated before w.Since ends the walk, including the rest of its
// page. Posts without updated_time are ignored. The walk also ends when the
// response has no next cursor. At most graphMaxPages pages are fetched.
func (g *GraphSource) FetchPosts(ctx context.Context, groupID string, cred auth.Credential, w Window, opts FetchOptions) ([]Post, error) {
	if strings.TrimSpace(groupID) == "" {
		return nil, errors.New("graph: group id is required")
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}

	next := g.feedURL(groupID, cred.Token, w)
	if opts.Resume != "" {
		next = withAccessToken(opts.Resume, cred.Token)
	}

	log := g.log.WithFields(logrus.Fields{"source": g.Name(), "group": groupID})

	var posts []Post
	for page := 1; ; page++ {
		if page > graphMaxPages {
			return nil, &FeedError{Kind: TooManyPages, Page: page, Cursor: next}
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("graph: wait for page %d: %w", page, err)
		}

		resp, err := g.fetchPage(ctx, next, page)
		if err != nil {
			return nil, err
		}

		if len(resp.Data) == 0 {
			if len(posts) == 0 {
				return nil, &FeedError{Kind: EmptyFeed, Page: page, Cursor: next}
			}
			break
		}

		kept, stop := collectPage(resp.Data, w, log)
		posts = append(posts, kept...)

		log.WithFields(logrus.Fields{
			"page":  page,
			"items": len(resp.Data),
			"kept":  len(kept),
		}).Debug("fetched feed page")

		if resp.Paging.Next == "" {
			stop = true
		}
		if stop {
			break
		}
		next = withAccessToken(resp.Paging.Next, cred.Token)
	}

	return posts, nil
}

// collectPage applies the window to one page. stop is true once an item
// older than the window was seen; later items on the page are not inspected.
func collectPage(items []graphPost, w Window, log logrus.FieldLogger) (kept []Post, stop bool) {
	for _, item := range items {
		updated := parseGraphTime(item.UpdatedTime)
		if updated.IsZero() {
			log.WithField("post_id", item.ID).Debug("skipping post without updated_time")
			continue
		}
		if w.AfterUntil(updated) {
			continue
		}
		if w.BeforeSince(updated) {
			return kept, true
		}
		kept = append(kept, item.toPost())
	}
	return kept, false
}

func (g *GraphSource) fetchPage(ctx context.Context, pageURL string, page int) (*graphPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("graph: create request: %w", err)
	}
	req.Header.Set("User-Agent", graphUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph: fetch page %d: %w", page, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &FeedError{Kind: BadStatus, Status: resp.StatusCode, Page: page, Cursor: pageURL}
	}

	var out graphPage
	if err := json.NewDecoder(io.LimitReader(resp.Body, graphMaxBodySize)).Decode(&out); err != nil {
		return nil, &FeedError{Kind: MalformedJSON, Page: page, Cursor: pageURL, Err: err}
	}
	return &out, nil
}

// feedURL builds the first page request for groupID.
func (g *GraphSource) feedURL(groupID, token string, w Window) string {
	path := g.baseURL
	if g.version != "" {
		path += "/" + g.version
	}
	path += "/" + url.PathEscape(groupID) + "/feed"

	q := url.Values{}
	q.Set("fields", graphFeedFields)
	q.Set("limit", strconv.Itoa(g.pageLimit))
	q.Set("since", strconv.FormatInt(w.Since.Unix(), 10))
	q.Set("until", strconv.FormatInt(w.end().Unix(), 10))
	if token != "" {
		q.Set("access_token", token)
	}
	return path + "?" + q.Encode()
}

// withAccessToken adds access_token to a cursor URL that lacks one.
func withAccessToken(raw, token string) string {
	if token == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Get("access_token") != "" {
		return raw
	}
	q.Set("access_token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (p graphPost) toPost() Post {
	post := Post{
		ID:          p.ID,
		Name:        p.Name,
		Link:        p.Link,
		Message:     p.Message,
		CreatedTime: parseGraphTime(p.CreatedTime),
		UpdatedTime: parseGraphTime(p.UpdatedTime),
		Attachments: p.Attachments,
	}
	if n := len(p.Comments.Data); n > 0 {
		post.Comments = make([]Comment, 0, n)
		for _, c := range p.Comments.Data {
			post.Comments = append(post.Comments, Comment{
				CreatedTime: parseGraphTime(c.CreatedTime),
				Message:     c.Message,
			})
		}
	}
	return post
}

// parseGraphTime parses "2024-03-01T10:00:00+0000" and RFC 3339. It returns
// the zero time for empty or unparsable values.
func parseGraphTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(graphTimeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
