package digest

import (
	"time"

	"github.com/ppiankov/pdigest/internal/embed"
	"github.com/ppiankov/pdigest/internal/source"
)

const vimeoTag = `<iframe src="//player.vimeo.com/video/12345" width="500" height="281" frameborder="0" allowfullscreen class="video"></iframe>`

func sampleInput() DigestInput {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return DigestInput{
		Group:       "123",
		Window:      source.Window{Since: since, Until: since.AddDate(0, 0, 6)},
		GeneratedAt: time.Date(2024, 3, 7, 18, 0, 0, 0, time.UTC),
		Entries: []Entry{
			{
				ID:          "123_1",
				Name:        "Conference recap",
				Link:        "https://vimeo.com/12345",
				Message:     "Great talk<br><br>see you &lt;3",
				Comments:    []string{`<a href="https://example.com/slides">Slides</a>`},
				Embeds:      []embed.Tag{{Provider: embed.Vimeo, HTML: vimeoTag}},
				CreatedTime: time.Date(2024, 3, 2, 9, 30, 0, 0, time.UTC),
			},
			{
				ID:          "123_2",
				Message:     "Older thread still active",
				IsOld:       true,
				CreatedTime: time.Date(2024, 2, 20, 8, 0, 0, 0, time.UTC),
			},
		},
	}
}
