package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Post is a feed item as returned by the upstream API. It is treated as an
// immutable snapshot once fetched.
type Post struct {
	ID          string
	Name        string
	Link        string
	Message     string
	CreatedTime time.Time // zero when upstream omitted it
	UpdatedTime time.Time // zero when upstream omitted it
	Attachments json.RawMessage
	Comments    []Comment
}

// Comment is a single comment on a post.
type Comment struct {
	CreatedTime time.Time // zero when upstream omitted it
	Message     string
}

// Window is an inclusive range of calendar dates. Since and Until are
// midnight in the digest timezone.
type Window struct {
	Since time.Time
	Until time.Time
}

// NewWindow truncates since and until to calendar dates in loc.
func NewWindow(since, until time.Time, loc *time.Location) (Window, error) {
	w := Window{Since: StartOfDay(since, loc), Until: StartOfDay(until, loc)}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

// Validate checks Since <= Until.
func (w Window) Validate() error {
	if w.Since.IsZero() || w.Until.IsZero() {
		return errors.New("window: since and until are required")
	}
	if w.Since.After(w.Until) {
		return fmt.Errorf("window: since %s is after until %s",
			w.Since.Format(time.DateOnly), w.Until.Format(time.DateOnly))
	}
	return nil
}

// BeforeSince reports whether t falls on a date earlier than Since.
func (w Window) BeforeSince(t time.Time) bool {
	return t.Before(w.Since)
}

// AfterUntil reports whether t falls on a date later than Until.
func (w Window) AfterUntil(t time.Time) bool {
	return !t.Before(w.end())
}

// end is the first instant after the Until date.
func (w Window) end() time.Time {
	return w.Until.AddDate(0, 0, 1)
}

// StartOfDay returns midnight of t's calendar date in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// FeedErrorKind classifies a failed feed walk.
type FeedErrorKind int

const (
	BadStatus FeedErrorKind = iota + 1
	MalformedJSON
	EmptyFeed
	TooManyPages
)

func (k FeedErrorKind) String() string {
	switch k {
	case BadStatus:
		return "bad status"
	case MalformedJSON:
		return "malformed json"
	case EmptyFeed:
		return "empty feed"
	case TooManyPages:
		return "too many pages"
	default:
		return "unknown"
	}
}

// FeedError is returned when a feed walk fails. Cursor is the page URL the
// walk failed on and can be passed back as FetchOptions.Resume.
type FeedError struct {
	Kind   FeedErrorKind
	Status int
	Page   int
	Cursor string
	Err    error
}

func (e *FeedError) Error() string {
	msg := fmt.Sprintf("feed: page %d: %s", e.Page, e.Kind)
	if e.Kind == BadStatus {
		msg = fmt.Sprintf("feed: page %d: HTTP %d", e.Page, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FeedError) Unwrap() error { return e.Err }

// IsKind reports whether err is a *FeedError of the given kind.
func IsKind(err error, kind FeedErrorKind) bool {
	var fe *FeedError
	return errors.As(err, &fe) && fe.Kind == kind
}
