package digest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/pdigest/internal/auth"
	"github.com/ppiankov/pdigest/internal/embed"
	"github.com/ppiankov/pdigest/internal/normalize"
	"github.com/ppiankov/pdigest/internal/source"
)

type fakeTokens struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeTokens) Token(_ context.Context, appID, _ string) (auth.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return auth.Credential{}, f.err
	}
	return auth.Credential{Token: "tok", IssuedFor: appID}, nil
}

type fakeFeed struct {
	posts   []source.Post
	err     error
	gotCred auth.Credential
	gotWin  source.Window
	calls   int
}

func (f *fakeFeed) FetchPosts(_ context.Context, _ string, cred auth.Credential, w source.Window, _ source.FetchOptions) ([]source.Post, error) {
	f.calls++
	f.gotCred = cred
	f.gotWin = w
	if f.err != nil {
		return nil, f.err
	}
	return f.posts, nil
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func marchWindow(t *testing.T) source.Window {
	t.Helper()
	w, err := source.NewWindow(day(1), day(7), time.UTC)
	require.NoError(t, err)
	return w
}

func newTestBuilder(t *testing.T, feed *fakeFeed, opts Options) *Builder {
	t.Helper()
	if opts.GroupID == "" {
		opts.GroupID = "123"
	}
	b, err := NewBuilder(&fakeTokens{}, feed, embed.NewExtractor(nil, nil), opts)
	require.NoError(t, err)
	return b
}

func TestNewBuilder_Validation(t *testing.T) {
	ex := embed.NewExtractor(nil, nil)

	_, err := NewBuilder(nil, &fakeFeed{}, ex, Options{GroupID: "1"})
	require.Error(t, err)
	_, err = NewBuilder(&fakeTokens{}, nil, ex, Options{GroupID: "1"})
	require.Error(t, err)
	_, err = NewBuilder(&fakeTokens{}, &fakeFeed{}, nil, Options{GroupID: "1"})
	require.Error(t, err)
	_, err = NewBuilder(&fakeTokens{}, &fakeFeed{}, ex, Options{})
	require.Error(t, err)

	b, err := NewBuilder(&fakeTokens{}, &fakeFeed{}, ex, Options{GroupID: "1"})
	require.NoError(t, err)
	assert.Equal(t, defaultWorkers, b.opts.Workers)
	assert.Equal(t, time.UTC, b.opts.Location)
}

func TestBuild_LinkFromMessage(t *testing.T) {
	feed := &fakeFeed{posts: []source.Post{{
		ID:          "1_1",
		Message:     "Great talk: https://vimeo.com/12345",
		CreatedTime: day(2).Add(9 * time.Hour),
		UpdatedTime: day(2).Add(9 * time.Hour),
	}}}
	b := newTestBuilder(t, feed, Options{})

	entries, err := b.Build(context.Background(), marchWindow(t))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "https://vimeo.com/12345", e.Link)
	assert.Equal(t, "Great talk", e.Message)
	require.Len(t, e.Embeds, 1)
	assert.Equal(t, embed.Vimeo, e.Embeds[0].Provider)
	assert.Contains(t, e.Embeds[0].HTML, "player.vimeo.com/video/12345")
	assert.False(t, e.IsOld)
	assert.Equal(t, "1_1", e.ID)
}

func TestBuild_TokenObtainedOnceAndPassed(t *testing.T) {
	tokens := &fakeTokens{}
	feed := &fakeFeed{}
	b, err := NewBuilder(tokens, feed, embed.NewExtractor(nil, nil), Options{GroupID: "g", AppID: "app"})
	require.NoError(t, err)

	w := marchWindow(t)
	_, err = b.Build(context.Background(), w)
	require.NoError(t, err)

	assert.Equal(t, 1, tokens.calls)
	assert.Equal(t, auth.Credential{Token: "tok", IssuedFor: "app"}, feed.gotCred)
	assert.Equal(t, w, feed.gotWin)
}

func TestBuild_ExplicitLinkStrippedFromMessage(t *testing.T) {
	feed := &fakeFeed{posts: []source.Post{{
		ID:          "1",
		Name:        "Article\ntitle",
		Link:        "https://example.com/article",
		Message:     "Read this - https://example.com/article\nmore <3",
		CreatedTime: day(3),
	}}}
	b := newTestBuilder(t, feed, Options{})

	entries, err := b.Build(context.Background(), marchWindow(t))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Article title", entries[0].Name)
	assert.Equal(t, "https://example.com/article", entries[0].Link)
	assert.Equal(t, "Read this<br><br>more &lt;3", entries[0].Message)
	assert.Empty(t, entries[0].Embeds)
}

func TestBuild_IsOld(t *testing.T) {
	feed := &fakeFeed{posts: []source.Post{
		{ID: "before", CreatedTime: day(1).Add(-time.Second)},
		{ID: "at", CreatedTime: day(1)},
		{ID: "inside", CreatedTime: day(5)},
	}}
	b := newTestBuilder(t, feed, Options{})

	entries, err := b.Build(context.Background(), marchWindow(t))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, e.CreatedTime.Before(day(1)), e.IsOld, e.ID)
	}
	assert.True(t, entries[0].IsOld)
	assert.False(t, entries[1].IsOld)
}

func TestBuild_DropsPostWithoutCreatedTime(t *testing.T) {
	feed := &fakeFeed{posts: []source.Post{
		{ID: "a", CreatedTime: day(2)},
		{ID: "undated"},
		{ID: "b", CreatedTime: day(3)},
	}}
	b := newTestBuilder(t, feed, Options{})

	entries, err := b.Build(context.Background(), marchWindow(t))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].ID)
	assert.Equal(t, "b", entries[1].ID)
}

func TestBuild_PreservesFetchOrder(t *testing.T) {
	var posts []source.Post
	for i := 0; i < 50; i++ {
		posts = append(posts, source.Post{
			ID:          fmt.Sprintf("p%02d", i),
			Message:     fmt.Sprintf("video https://vimeo.com/%d", i+1),
			CreatedTime: day(2),
		})
	}
	b := newTestBuilder(t, &fakeFeed{posts: posts}, Options{Workers: 7})

	entries, err := b.Build(context.Background(), marchWindow(t))
	require.NoError(t, err)
	require.Len(t, entries, 50)
	for i, e := range entries {
		assert.Equal(t, fmt.Sprintf("p%02d", i), e.ID)
		assert.Contains(t, e.Embeds[0].HTML, fmt.Sprintf("/video/%d\"", i+1))
	}
}

func TestBuild_Comments(t *testing.T) {
	feed := &fakeFeed{posts: []source.Post{{
		ID:          "1",
		Message:     "thread",
		CreatedTime: day(2),
		Comments: []source.Comment{
			{CreatedTime: day(1).Add(-time.Hour), Message: "old https://vimeo.com/999"},
			{CreatedTime: day(2), Message: "also https://www.youtube.com/watch?v=yt1"},
			{CreatedTime: day(3), Message: "Slides: https://example.com/deck"},
			{CreatedTime: day(4), Message: "no links"},
		},
	}}}
	b := newTestBuilder(t, feed, Options{})

	entries, err := b.Build(context.Background(), marchWindow(t))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, []string{`<a href="https://example.com/deck">Slides</a>`}, e.Comments)
	require.Len(t, e.Embeds, 1)
	assert.Equal(t, embed.YouTube, e.Embeds[0].Provider)
	for _, tag := range e.Embeds {
		assert.NotContains(t, tag.HTML, "999")
	}
}

func TestBuild_EmbedsDeduplicated(t *testing.T) {
	feed := &fakeFeed{posts: []source.Post{{
		ID:          "1",
		Link:        "https://vimeo.com/7",
		Message:     "https://vimeo.com/7 and https://vimeo.com/8",
		CreatedTime: day(2),
		Comments: []source.Comment{
			{CreatedTime: day(3), Message: "https://vimeo.com/8"},
		},
	}}}
	b := newTestBuilder(t, feed, Options{})

	entries, err := b.Build(context.Background(), marchWindow(t))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var srcs []string
	for _, tag := range entries[0].Embeds {
		srcs = append(srcs, tag.HTML)
	}
	assert.Len(t, srcs, 2)
	assert.ElementsMatch(t, []string{
		embed.NewExtractor(nil, nil).Extract(context.Background(), "https://vimeo.com/7")[0].HTML,
		embed.NewExtractor(nil, nil).Extract(context.Background(), "https://vimeo.com/8")[0].HTML,
	}, srcs)
}

func TestBuild_Redacts(t *testing.T) {
	r, err := normalize.NewRedactor([]string{`\+?\d{3}-\d{4}`})
	require.NoError(t, err)

	feed := &fakeFeed{posts: []source.Post{{
		ID:          "1",
		Name:        "call 555-1234",
		Message:     "ring 555-1234 now",
		CreatedTime: day(2),
	}}}
	b := newTestBuilder(t, feed, Options{Redactor: r})

	entries, err := b.Build(context.Background(), marchWindow(t))
	require.NoError(t, err)
	assert.Equal(t, "call [REDACTED]", entries[0].Name)
	assert.Equal(t, "ring [REDACTED] now", entries[0].Message)
}

func TestBuild_Errors(t *testing.T) {
	ex := embed.NewExtractor(nil, nil)

	tokenErr := &auth.Error{Kind: auth.BadStatus, Status: 400}
	b, err := NewBuilder(&fakeTokens{err: tokenErr}, &fakeFeed{}, ex, Options{GroupID: "g"})
	require.NoError(t, err)
	_, err = b.Build(context.Background(), marchWindow(t))
	require.Error(t, err)
	assert.True(t, auth.IsKind(err, auth.BadStatus))

	feedErr := &source.FeedError{Kind: source.EmptyFeed, Page: 1}
	feed := &fakeFeed{err: feedErr}
	b, err = NewBuilder(&fakeTokens{}, feed, ex, Options{GroupID: "g"})
	require.NoError(t, err)
	_, err = b.Build(context.Background(), marchWindow(t))
	require.Error(t, err)
	assert.True(t, source.IsKind(err, source.EmptyFeed))

	_, err = b.Build(context.Background(), source.Window{Since: day(5), Until: day(1)})
	require.Error(t, err)
	assert.Equal(t, 1, feed.calls)
}

func TestBuild_CancelledContext(t *testing.T) {
	feed := &fakeFeed{posts: []source.Post{{ID: "1", CreatedTime: day(2)}}}
	b := newTestBuilder(t, feed, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Build(ctx, marchWindow(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDigest(t *testing.T) {
	feed := &fakeFeed{posts: []source.Post{{ID: "1", Message: "hi", CreatedTime: day(2)}}}
	b := newTestBuilder(t, feed, Options{})
	b.now = func() time.Time { return day(7).Add(15 * time.Hour) }

	entries, ok := b.Digest(context.Background(), day(1), nil)
	require.True(t, ok)
	require.Len(t, entries, 1)
	assert.Equal(t, day(7), feed.gotWin.Until)

	until := day(3)
	_, ok = b.Digest(context.Background(), day(1), &until)
	require.True(t, ok)
	assert.Equal(t, day(3), feed.gotWin.Until)
}

func TestDigest_FailSoft(t *testing.T) {
	b := newTestBuilder(t, &fakeFeed{err: &source.FeedError{Kind: source.TooManyPages}}, Options{})

	entries, ok := b.Digest(context.Background(), day(1), nil)
	assert.False(t, ok)
	assert.Nil(t, entries)

	_, ok = b.Digest(context.Background(), time.Time{}, nil)
	assert.False(t, ok)

	until := day(1)
	_, ok = b.Digest(context.Background(), day(5), &until)
	assert.False(t, ok)
}

func TestDigest_EmptyWindowIsNotFailure(t *testing.T) {
	b := newTestBuilder(t, &fakeFeed{}, Options{})

	entries, ok := b.Digest(context.Background(), day(1), nil)
	assert.True(t, ok)
	assert.Empty(t, entries)
}

func TestBuild_LocalizesCreatedTime(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	feed := &fakeFeed{posts: []source.Post{{ID: "1", CreatedTime: day(2)}}}
	b := newTestBuilder(t, feed, Options{Location: loc})

	w, err := source.NewWindow(day(1), day(7), loc)
	require.NoError(t, err)
	entries, err := b.Build(context.Background(), w)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(entries[0].CreatedTime.Format(time.RFC3339), "+03:00"))
}
