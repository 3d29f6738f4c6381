// Package comment selects the comments worth surfacing next to a post.
package comment

import (
	"context"
	"time"

	"github.com/ppiankov/pdigest/internal/embed"
	"github.com/ppiankov/pdigest/internal/normalize"
	"github.com/ppiankov/pdigest/internal/source"
)

// Extractor renders embeds found in text.
type Extractor interface {
	Extract(ctx context.Context, text string) []embed.Tag
}

// Result holds what a post's comments contributed.
type Result struct {
	// Links are linkified comments, in comment order.
	Links []string
	// Embeds found in comments. Comments that produced embeds are not
	// linkified.
	Embeds []embed.Tag
}

// Filter keeps comments created at or after since and turns them into
// embeds or anchors. Comments without a parseable timestamp, with no URL,
// or with several URLs are dropped.
func Filter(ctx context.Context, comments []source.Comment, since time.Time, ex Extractor, redact *normalize.Redactor) Result {
	var res Result
	for _, c := range comments {
		if c.CreatedTime.IsZero() || c.CreatedTime.Before(since) {
			continue
		}
		msg := redact.Apply(c.Message)

		if ex != nil {
			if tags := ex.Extract(ctx, msg); len(tags) > 0 {
				res.Embeds = append(res.Embeds, tags...)
				continue
			}
		}
		if a, ok := normalize.Linkify(msg); ok {
			res.Links = append(res.Links, a)
		}
	}
	return res
}
