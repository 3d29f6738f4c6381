package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	markup map[string]string
	calls  []string
}

func (f *fakeLookup) Lookup(_ context.Context, u string) (string, bool) {
	f.calls = append(f.calls, u)
	html, ok := f.markup[u]
	return html, ok
}

func TestExtract_YouTube(t *testing.T) {
	e := NewExtractor(nil, nil)

	tags := e.Extract(context.Background(), "watch https://www.youtube.com/watch?v=abc123&t=10 now")
	require.Len(t, tags, 1)
	assert.Equal(t, YouTube, tags[0].Provider)
	assert.Contains(t, tags[0].HTML, `src="//www.youtube.com/embed/abc123"`)
	assert.Contains(t, tags[0].HTML, `class="video"`)
	assert.NotContains(t, tags[0].HTML, "t=10")
}

func TestExtract_Vimeo(t *testing.T) {
	e := NewExtractor(nil, nil)

	tags := e.Extract(context.Background(), "Great talk: https://vimeo.com/12345")
	require.Len(t, tags, 1)
	assert.Equal(t, Vimeo, tags[0].Provider)
	assert.Contains(t, tags[0].HTML, `src="//player.vimeo.com/video/12345"`)
	assert.Contains(t, tags[0].HTML, `width="500" height="281"`)
}

func TestExtract_SlideShare(t *testing.T) {
	slides := &fakeLookup{markup: map[string]string{
		"https://www.slideshare.net/user/deck": `<iframe src="https://www.slideshare.net/slideshow/embed_code/1" class="slides"></iframe>`,
	}}
	e := NewExtractor(slides, nil)

	tags := e.Extract(context.Background(), "deck https://www.slideshare.net/user/deck and https://slideshare.net/user/missing")
	require.Len(t, tags, 1)
	assert.Equal(t, SlideShare, tags[0].Provider)
	assert.Equal(t, []string{"https://www.slideshare.net/user/deck", "https://slideshare.net/user/missing"}, slides.calls)
}

func TestExtract_Unrecognized(t *testing.T) {
	slides := &fakeLookup{}
	e := NewExtractor(slides, nil)

	tests := []struct {
		name string
		text string
	}{
		{"no urls", "just text"},
		{"plain site", "https://example.com/page"},
		{"youtube without www", "https://youtube.com/watch?v=abc"},
		{"vimeo non numeric", "https://vimeo.com/channels/staff"},
		{"empty video id", "https://www.youtube.com/watch?v="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, e.Extract(context.Background(), tt.text))
		})
	}
	assert.Empty(t, slides.calls)
}

func TestExtract_NilLookupSkipsSlideShare(t *testing.T) {
	e := NewExtractor(nil, nil)
	assert.Empty(t, e.Extract(context.Background(), "https://www.slideshare.net/user/deck"))
}

func TestExtract_MultipleInOrder(t *testing.T) {
	e := NewExtractor(nil, nil)

	tags := e.Extract(context.Background(),
		"https://vimeo.com/1 then https://www.youtube.com/watch?v=x then https://vimeo.com/1")
	require.Len(t, tags, 3)
	assert.Equal(t, Vimeo, tags[0].Provider)
	assert.Equal(t, YouTube, tags[1].Provider)
	assert.Equal(t, tags[0].HTML, tags[2].HTML)
}

func TestDedupe(t *testing.T) {
	a := Tag{Provider: Vimeo, HTML: "a"}
	b := Tag{Provider: YouTube, HTML: "b"}

	assert.Nil(t, Dedupe(nil))
	assert.ElementsMatch(t, []Tag{a, b}, Dedupe([]Tag{a, b, a, b, a}))
	assert.Len(t, Dedupe([]Tag{a, a}), 1)
}

func TestTagString(t *testing.T) {
	assert.Equal(t, "<iframe></iframe>", Tag{HTML: "<iframe></iframe>"}.String())
}
