package normalize

import (
	"fmt"
	"regexp"
	"strings"
)

const lineBreak = "<br><br>"

var (
	paragraphTagRe = regexp.MustCompile(`</?p>`)
	newlinesRe     = regexp.MustCompile(`\n+`)

	// Only raw angle brackets are escaped, so "&lt;" survives a second pass.
	angleEscaper = strings.NewReplacer("<", "&lt;", ">", "&gt;")
)

// Sanitize prepares a post message for display. It removes <p> tags, turns
// newline runs into a double line break, escapes raw angle brackets (but
// not the inserted breaks), and finally strips knownLink, which is shown
// separately, along with its separator.
func Sanitize(raw, knownLink string) string {
	text := reflow(paragraphTagRe.ReplaceAllString(raw, ""))
	if knownLink != "" {
		text = StripLink(text, knownLink)
	}
	return text
}

// CollapseName joins a multi-line post name into one line.
func CollapseName(name string) string {
	return newlinesRe.ReplaceAllString(name, " ")
}

// Linkify renders text as an anchor when it contains exactly one URL. The
// label is the text without the URL and its separator. It reports false for
// text with no URL or several.
func Linkify(text string) (string, bool) {
	urls := FindURLs(text)
	if len(urls) != 1 {
		return "", false
	}
	link := urls[0]

	label := StripLink(text, link)
	label = reflow(paragraphTagRe.ReplaceAllString(label, ""))

	return fmt.Sprintf(`<a href="%s">%s</a>`, link, label), true
}

// reflow escapes each line run and joins them with lineBreak.
func reflow(text string) string {
	parts := newlinesRe.Split(text, -1)
	for i, p := range parts {
		parts[i] = angleEscaper.Replace(p)
	}
	return strings.Join(parts, lineBreak)
}
