package digest

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ppiankov/pdigest/internal/embed"
)

// plainText renders sanitized message markup as text. Line breaks become
// newlines and entities are decoded.
func plainText(markup string) string {
	if markup == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return markup
	}
	doc.Find("br").ReplaceWithHtml("\n")
	return strings.TrimSpace(doc.Text())
}

// anchorParts splits a rendered comment anchor into its label and target.
func anchorParts(anchor string) (label, href string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(anchor))
	if err != nil {
		return anchor, ""
	}
	a := doc.Find("a").First()
	if a.Length() == 0 {
		return plainText(anchor), ""
	}
	a.Find("br").ReplaceWithHtml(" ")
	return strings.Join(strings.Fields(a.Text()), " "), a.AttrOr("href", "")
}

// embedSource returns the player URL of an embed, made absolute.
func embedSource(t embed.Tag) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(t.HTML))
	if err != nil {
		return ""
	}
	src := doc.Find("iframe").First().AttrOr("src", "")
	if strings.HasPrefix(src, "//") {
		src = "https:" + src
	}
	return src
}
