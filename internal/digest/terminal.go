package digest

import (
	"fmt"
	"io"
	"strings"
)

// TerminalFormatter formats a digest for terminal output.
type TerminalFormatter struct {
	color bool
}

// NewTerminal creates a terminal formatter. Set color=true for ANSI colors.
func NewTerminal(color bool) *TerminalFormatter {
	return &TerminalFormatter{color: color}
}

// Format writes the digest to w, one block per post in feed order.
func (f *TerminalFormatter) Format(w io.Writer, input DigestInput) error {
	header := fmt.Sprintf("pdigest — group %s, %s, %d posts",
		input.Group, windowLabel(input.Window), len(input.Entries))
	fmt.Fprintln(w, f.bold(header))
	fmt.Fprintln(w)

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

	if old := countOld(input.Entries); old > 0 {
		fmt.Fprintln(w, f.dim(fmt.Sprintf("%d posts started before the window and were updated inside it", old)))
	}
	return nil
}

func (f *TerminalFormatter) writeEntry(w io.Writer, e Entry) {
	title := e.Name
	if title == "" {
		title = firstLine(plainText(e.Message))
	}
	if title == "" {
		title = e.ID
	}

	marker := ""
	if e.IsOld {
		marker = " " + f.yellow("[old]")
	}
	fmt.Fprintf(w, "  %s%s\n", f.green(f.bold(title)), marker)

	if !e.CreatedTime.IsZero() {
		fmt.Fprintf(w, "      %s\n", f.dim(e.CreatedTime.Format("2006-01-02 15:04")))
	}
	if text := plainText(e.Message); text != "" {
		for _, line := range strings.Split(text, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			fmt.Fprintf(w, "      %s\n", line)
		}
	}
	if e.Link != "" {
		fmt.Fprintf(w, "      %s\n", f.dim(e.Link))
	}
	for _, t := range e.Embeds {
		fmt.Fprintf(w, "      %s %s\n", f.bold("["+string(t.Provider)+"]"), embedSource(t))
	}
	for _, c := range e.Comments {
		label, href := anchorParts(c)
		if label == "" {
			fmt.Fprintf(w, "      > %s\n", href)
			continue
		}
		fmt.Fprintf(w, "      > %s %s\n", label, f.dim(href))
	}
	fmt.Fprintln(w)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// ANSI helpers, no-op when color=false.

func (f *TerminalFormatter) bold(s string) string {
	if !f.color {
		return s
	}
	return "\033[1m" + s + "\033[0m"
}

func (f *TerminalFormatter) green(s string) string {
	if !f.color {
		return s
	}
	return "\033[32m" + s + "\033[0m"
}

func (f *TerminalFormatter) yellow(s string) string {
	if !f.color {
		return s
	}
	return "\033[33m" + s + "\033[0m"
}

func (f *TerminalFormatter) dim(s string) string {
	if !f.color {
		return s
	}
	return "\033[2m" + s + "\033[0m"
}
