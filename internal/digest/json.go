package digest

import (
	"encoding/json"
	"io"
	"time"
)

type jsonDigest struct {
	Meta    jsonMeta    `json:"meta"`
	Entries []jsonEntry `json:"entries"`
}

type jsonMeta struct {
	Group       string `json:"group"`
	Since       string `json:"since,omitempty"`
	Until       string `json:"until,omitempty"`
	Posts       int    `json:"posts"`
	Old         int    `json:"old"`
	GeneratedAt string `json:"generated_at,omitempty"`
	Notice      string `json:"notice,omitempty"`
}

type jsonEntry struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Link        string      `json:"link,omitempty"`
	Message     string      `json:"message"`
	CreatedTime string      `json:"created_time"`
	IsOld       bool        `json:"is_old"`
	Comments    []string    `json:"comments"`
	Embeds      []jsonEmbed `json:"embeds"`
}

type jsonEmbed struct {
	Provider string `json:"provider"`
	HTML     string `json:"html"`
}

// JSONFormatter formats a digest as JSON.
type JSONFormatter struct{}

// NewJSON creates a JSON formatter.
func NewJSON() *JSONFormatter {
	return &JSONFormatter{}
}

// Format writes the digest as JSON to w. Markup fields are emitted
// unescaped so they can be inserted into a page as is.
func (f *JSONFormatter) Format(w io.Writer, input DigestInput) error {
	out := jsonDigest{
		Meta: jsonMeta{
			Group:  input.Group,
			Posts:  len(input.Entries),
			Old:    countOld(input.Entries),
			Notice: input.Notice,
		},
		Entries: toJSONEntries(input.Entries),
	}
	if !input.Window.Since.IsZero() {
		out.Meta.Since = input.Window.Since.Format(time.DateOnly)
		out.Meta.Until = input.Window.Until.Format(time.DateOnly)
	}
	if !input.GeneratedAt.IsZero() {
		out.Meta.GeneratedAt = input.GeneratedAt.Format(time.RFC3339)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}

func toJSONEntries(entries []Entry) []jsonEntry {
	result := make([]jsonEntry, 0, len(entries))
	for _, e := range entries {
		je := jsonEntry{
			ID:          e.ID,
			Name:        e.Name,
			Link:        e.Link,
			Message:     e.Message,
			CreatedTime: e.CreatedTime.Format(time.RFC3339),
			IsOld:       e.IsOld,
			Comments:    e.Comments,
			Embeds:      make([]jsonEmbed, 0, len(e.Embeds)),
		}
		if je.Comments == nil {
			je.Comments = []string{}
		}
		for _, t := range e.Embeds {
			je.Embeds = append(je.Embeds, jsonEmbed{Provider: string(t.Provider), HTML: t.HTML})
		}
		result = append(result, je)
	}
	return result
}
