// Package normalize turns raw feed text into display-ready markup: it
// escapes and reflows message bodies, strips links that are shown
// separately, renders single-link comments as anchors, and redacts
// configured patterns.
package normalize

import (
	"regexp"
)

// urlRe is deliberately conservative: http(s) scheme at a word boundary,
// a restricted path/query character class, and no trailing punctuation.
var urlRe = regexp.MustCompile(`(?i)\bhttps?://[a-z0-9\-+&@#/%?=~_|!:,.;]*[a-z0-9\-+&@#/%=~_|]`)

// FindURLs returns every URL in text, in order, duplicates included.
func FindURLs(text string) []string {
	return urlRe.FindAllString(text, -1)
}

// FirstURL returns the first URL in text, or "".
func FirstURL(text string) string {
	return urlRe.FindString(text)
}

// separatorRe matches the optional "whitespace + dash/colon" run that
// introduces a link, as in "Slides: https://..." or "video - https://...".
const separatorRe = `(?:\s*[-:\x{2013}\x{2014}\x{2015}]\s*)?`

// StripLink removes the first occurrence of link from text together with a
// preceding separator, if any.
func StripLink(text, link string) string {
	if link == "" {
		return text
	}
	re, err := regexp.Compile(separatorRe + regexp.QuoteMeta(link))
	if err != nil {
		return text
	}
	loc := re.FindStringIndex(text)
	if loc == nil {
		return text
	}
	return text[:loc[0]] + text[loc[1]:]
}
