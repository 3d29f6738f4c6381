// Package digest turns a window of feed posts into display-ready entries and
// renders them.
package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/pdigest/internal/auth"
	"github.com/ppiankov/pdigest/internal/comment"
	"github.com/ppiankov/pdigest/internal/embed"
	"github.com/ppiankov/pdigest/internal/normalize"
	"github.com/ppiankov/pdigest/internal/source"
)

const defaultWorkers = 4

var errMissingCreatedTime = errors.New("post has no created_time")

// TokenSource exchanges app identity for a bearer credential.
type TokenSource interface {
	Token(ctx context.Context, appID, appSecret string) (auth.Credential, error)
}

// PostFetcher walks the group feed for a window.
type PostFetcher interface {
	FetchPosts(ctx context.Context, groupID string, cred auth.Credential, w source.Window, opts source.FetchOptions) ([]source.Post, error)
}

// Options configures a Builder.
type Options struct {
	GroupID   string
	AppID     string
	AppSecret string
	Workers   int // posts normalized concurrently
	Location  *time.Location
	Redactor  *normalize.Redactor
	Logger    logrus.FieldLogger
}

// Builder produces digest entries for a window. Each Build obtains its own
// credential and shares nothing with concurrent builds.
type Builder struct {
	tokens TokenSource
	feed   PostFetcher
	embeds comment.Extractor
	opts   Options
	log    logrus.FieldLogger
	now    func() time.Time
}

// NewBuilder wires a builder. All collaborators are required.
func NewBuilder(tokens TokenSource, feed PostFetcher, embeds comment.Extractor, opts Options) (*Builder, error) {
	if tokens == nil || feed == nil || embeds == nil {
		return nil, errors.New("digest: token source, feed and embed extractor are required")
	}
	if opts.GroupID == "" {
		return nil, errors.New("digest: group id is required")
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Builder{
		tokens: tokens,
		feed:   feed,
		embeds: embeds,
		opts:   opts,
		log:    log.WithField("group", opts.GroupID),
		now:    time.Now,
	}, nil
}

// Build fetches the window and normalizes every post. Entries keep fetch
// order. Any token or feed failure fails the whole build; posts that cannot
// be normalized are dropped and logged.
func (b *Builder) Build(ctx context.Context, w source.Window) ([]Entry, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	cred, err := b.tokens.Token(ctx, b.opts.AppID, b.opts.AppSecret)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	posts, err := b.feed.FetchPosts(ctx, b.opts.GroupID, cred, w, source.FetchOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch posts: %w", err)
	}

	slots := make([]*Entry, len(posts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)
	for i, p := range posts {
		i, p := i, p
		g.Go(func() error {
			e, err := b.normalizePost(gctx, p, w)
			if err != nil {
				b.log.WithFields(logrus.Fields{"post_id": p.ID, "error": err}).Warn("dropping post")
				return nil
			}
			slots[i] = &e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(slots))
	for _, e := range slots {
		if e != nil {
			entries = append(entries, *e)
		}
	}
	b.log.WithFields(logrus.Fields{"posts": len(posts), "entries": len(entries)}).Debug("digest built")
	return entries, nil
}

// Window resolves a consumer's date pair. A nil until means today in the
// builder's timezone.
func (b *Builder) Window(since time.Time, until *time.Time) (source.Window, error) {
	if since.IsZero() {
		return source.Window{}, errors.New("since is required")
	}
	u := b.now()
	if until != nil {
		u = *until
	}
	return source.NewWindow(since, u, b.opts.Location)
}

// Digest is the fail-soft entry point for presentation layers. It reports
// false for invalid input or any upstream failure, without distinguishing
// between them.
func (b *Builder) Digest(ctx context.Context, since time.Time, until *time.Time) ([]Entry, bool) {
	w, err := b.Window(since, until)
	if err != nil {
		b.log.WithError(err).Debug("no range selected")
		return nil, false
	}
	entries, err := b.Build(ctx, w)
	if err != nil {
		b.log.WithError(err).Warn("no digest available")
		return nil, false
	}
	return entries, true
}

func (b *Builder) normalizePost(ctx context.Context, p source.Post, w source.Window) (Entry, error) {
	if p.CreatedTime.IsZero() {
		return Entry{}, errMissingCreatedTime
	}

	msg := b.opts.Redactor.Apply(p.Message)
	link := p.Link
	if link == "" {
		link = normalize.FirstURL(msg)
	}

	var tags []embed.Tag
	if link != "" {
		tags = append(tags, b.embeds.Extract(ctx, link)...)
	}
	tags = append(tags, b.embeds.Extract(ctx, msg)...)

	fromComments := comment.Filter(ctx, p.Comments, w.Since, b.embeds, b.opts.Redactor)
	tags = append(tags, fromComments.Embeds...)

	return Entry{
		ID:          p.ID,
		Name:        normalize.CollapseName(b.opts.Redactor.Apply(p.Name)),
		Link:        link,
		Message:     normalize.Sanitize(msg, link),
		Comments:    fromComments.Links,
		Embeds:      embed.Dedupe(tags),
		IsOld:       w.BeforeSince(p.CreatedTime),
		CreatedTime: p.CreatedTime.In(b.opts.Location),
	}, nil
}
