// Package embed turns media URLs into embeddable player markup.
package embed

import (
	"context"
	"fmt"
	"regexp"

	"github.com/ppiankov/pdigest/internal/normalize"
	"github.com/sirupsen/logrus"
)

// Provider names the service an embed renders.
type Provider string

const (
	YouTube    Provider = "youtube"
	Vimeo      Provider = "vimeo"
	SlideShare Provider = "slideshare"
)

const (
	youtubeTemplate = `<iframe width="560" height="315" src="//www.youtube.com/embed/%s"` +
		` frameborder="0" allowfullscreen class="video"></iframe>`
	vimeoTemplate = `<iframe src="//player.vimeo.com/video/%s" width="500" height="281"` +
		` frameborder="0" webkitallowfullscreen mozallowfullscreen allowfullscreen` +
		` class="video"></iframe>`
)

var (
	youtubeRe    = regexp.MustCompile(`(?i)^https?://www\.youtube\.com/watch\?v=(.*?)(&.*)?$`)
	vimeoRe      = regexp.MustCompile(`(?i)^https?://vimeo\.com/(\d+)(?:\?.*)?$`)
	slideshareRe = regexp.MustCompile(`(?i)^https?://(?:www\.)?slideshare\.net/`)
)

// Tag is rendered embed markup. Two tags are the same embed when their HTML
// is equal.
type Tag struct {
	Provider Provider
	HTML     string
}

func (t Tag) String() string { return t.HTML }

// Lookup resolves a content URL to embeddable markup through a provider's
// oEmbed endpoint. It reports false when nothing usable came back.
type Lookup interface {
	Lookup(ctx context.Context, contentURL string) (string, bool)
}

// rule renders one provider. A match on a final rule skips the remaining
// rules for that URL.
type rule struct {
	provider Provider
	pattern  *regexp.Regexp
	render   func(ctx context.Context, url string, match []string) (string, bool)
	final    bool
}

// Extractor scans text for URLs and renders the ones it recognizes.
type Extractor struct {
	rules []rule
	log   logrus.FieldLogger
}

// NewExtractor builds an extractor. slides resolves SlideShare URLs; when
// nil, SlideShare links produce no embed.
func NewExtractor(slides Lookup, log logrus.FieldLogger) *Extractor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	e := &Extractor{log: log}
	e.rules = []rule{
		{provider: YouTube, pattern: youtubeRe, render: templateRenderer(youtubeTemplate), final: true},
		{provider: Vimeo, pattern: vimeoRe, render: templateRenderer(vimeoTemplate)},
		{provider: SlideShare, pattern: slideshareRe, render: lookupRenderer(slides)},
	}
	return e
}

// Extract returns one tag per recognized URL match, in text order. Failed
// oEmbed lookups are skipped silently.
func (e *Extractor) Extract(ctx context.Context, text string) []Tag {
	var tags []Tag
	for _, u := range normalize.FindURLs(text) {
		for _, r := range e.rules {
			m := r.pattern.FindStringSubmatch(u)
			if m == nil {
				continue
			}
			if html, ok := r.render(ctx, u, m); ok {
				tags = append(tags, Tag{Provider: r.provider, HTML: html})
			} else {
				e.log.WithFields(logrus.Fields{"provider": r.provider, "url": u}).Debug("no embed produced")
			}
			if r.final {
				break
			}
		}
	}
	return tags
}

func templateRenderer(tmpl string) func(context.Context, string, []string) (string, bool) {
	return func(_ context.Context, _ string, m []string) (string, bool) {
		if len(m) < 2 || m[1] == "" {
			return "", false
		}
		return fmt.Sprintf(tmpl, m[1]), true
	}
}

func lookupRenderer(l Lookup) func(context.Context, string, []string) (string, bool) {
	return func(ctx context.Context, u string, _ []string) (string, bool) {
		if l == nil {
			return "", false
		}
		return l.Lookup(ctx, u)
	}
}

// Dedupe drops tags whose HTML was already seen. The result is a set; its
// order is the order of first appearance but callers must not rely on it.
func Dedupe(tags []Tag) []Tag {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]Tag, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t.HTML]; ok {
			continue
		}
		seen[t.HTML] = struct{}{}
		out = append(out, t)
	}
	return out
}
