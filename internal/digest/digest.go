package digest

import (
	"io"
	"time"

	"github.com/ppiankov/pdigest/internal/embed"
	"github.com/ppiankov/pdigest/internal/source"
)

// Entry is one display-ready post.
type Entry struct {
	ID          string
	Name        string
	Link        string
	Message     string      // sanitized markup
	Comments    []string    // rendered anchors, in comment order
	Embeds      []embed.Tag // deduplicated, order not significant
	IsOld       bool        // created before the window start
	CreatedTime time.Time
}

// DigestInput is the full input for a digest formatter.
type DigestInput struct {
	Entries     []Entry
	Window      source.Window
	Group       string
	GeneratedAt time.Time
	Notice      string // shown instead of entries when no digest is available
}

// Formatter writes a formatted digest to w.
type Formatter interface {
	Format(w io.Writer, input DigestInput) error
}

func countOld(entries []Entry) int {
	n := 0
	for _, e := range entries {
		if e.IsOld {
			n++
		}
	}
	return n
}

func windowLabel(w source.Window) string {
	if w.Since.IsZero() {
		return "no range selected"
	}
	if w.Until.IsZero() || w.Until.Equal(w.Since) {
		return w.Since.Format(time.DateOnly)
	}
	return w.Since.Format(time.DateOnly) + " .. " + w.Until.Format(time.DateOnly)
}
