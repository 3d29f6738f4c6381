package digest

import (
	"fmt"
	"io"
	"strings"
)

// MarkdownFormatter formats a digest as Markdown.
type MarkdownFormatter struct{}

// NewMarkdown creates a Markdown formatter.
func NewMarkdown() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Format writes the digest as Markdown to w.
func (f *MarkdownFormatter) Format(w io.Writer, input DigestInput) error {
	fmt.Fprintf(w, "# pdigest digest\n\n")
	fmt.Fprintf(w, "Group %s, %s, %d posts\n\n", input.Group, windowLabel(input.Window), len(input.Entries))

	if input.Notice != "" {
		fmt.Fprintln(w, input.Notice)
		return nil
	}
	if len(input.Entries) == 0 {
		fmt.Fprintln(w, "No posts found.")
		return nil
	}

	for _, e := range input.Entries {
		f.writeEntry(w, e)
	}
	return nil
}

func (f *MarkdownFormatter) writeEntry(w io.Writer, e Entry) {
	text := plainText(e.Message)

	title := e.Name
	if title == "" {
		title = firstLine(text)
	}
	if title == "" {
		title = e.ID
	}
	if e.Link != "" {
		fmt.Fprintf(w, "## [%s](%s)\n\n", title, e.Link)
	} else {
		fmt.Fprintf(w, "## %s\n\n", title)
	}

	meta := e.CreatedTime.Format("2006-01-02 15:04")
	if e.IsOld {
		meta += " · `old`"
	}
	fmt.Fprintf(w, "_%s_\n\n", meta)

	if text != "" {
		for _, para := range strings.Split(text, "\n") {
			if strings.TrimSpace(para) == "" {
				continue
			}
			fmt.Fprintf(w, "%s\n\n", para)
		}
	}

	if len(e.Embeds) > 0 {
		fmt.Fprintln(w, "Media:")
		for _, t := range e.Embeds {
			fmt.Fprintf(w, "- [%s](%s)\n", t.Provider, embedSource(t))
		}
		fmt.Fprintln(w)
	}

	if len(e.Comments) > 0 {
		fmt.Fprintln(w, "Comments:")
		for _, c := range e.Comments {
			label, href := anchorParts(c)
			if label == "" {
				label = href
			}
			fmt.Fprintf(w, "- [%s](%s)\n", label, href)
		}
		fmt.Fprintln(w)
	}
}
