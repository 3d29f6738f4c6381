package digest

import (
	"html/template"
	"io"
	"time"
)

// Messages, comments and embeds were produced by the normalizer and the
// embed extractor and are inserted as trusted markup. Everything else is
// escaped by the template.
const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Digest {{.Range}}</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; }
.entry { border-bottom: 1px solid #ddd; padding: 1rem 0; }
.old { color: #a60; font-size: 0.8rem; }
.meta { color: #777; font-size: 0.8rem; }
iframe.video, iframe.slides { display: block; margin: 0.5rem 0; max-width: 100%; }
</style>
</head>
<body>
{{- if .Form}}
<form method="get" action="/">
<label>Since <input type="date" name="since" value="{{.Since}}"></label>
<label>Until <input type="date" name="until" value="{{.Until}}"></label>
<button type="submit">Show</button>
</form>
{{- end}}
<h1>Group {{.Group}}: {{.Range}}</h1>
{{- if .Notice}}
<p class="notice">{{.Notice}}</p>
{{- else if not .Entries}}
<p>No posts found.</p>
{{- end}}
{{- range .Entries}}
<article class="entry" id="post-{{.ID}}">
<h2>{{if .Link}}<a href="{{.Link}}">{{.Title}}</a>{{else}}{{.Title}}{{end}}{{if .IsOld}} <span class="old">old</span>{{end}}</h2>
<div class="meta">{{.Created}}</div>
{{- if .Message}}
<p>{{.Message}}</p>
{{- end}}
{{- range .Embeds}}
{{.}}
{{- end}}
{{- if .Comments}}
<ul class="comments">
{{- range .Comments}}
<li>{{.}}</li>
{{- end}}
</ul>
{{- end}}
</article>
{{- end}}
</body>
</html>
`

var page = template.Must(template.New("digest").Parse(pageTemplate))

type htmlPage struct {
	Form    bool
	Since   string
	Until   string
	Group   string
	Range   string
	Notice  string
	Entries []htmlEntry
}

type htmlEntry struct {
	ID       string
	Title    string
	Link     string
	IsOld    bool
	Created  string
	Message  template.HTML
	Embeds   []template.HTML
	Comments []template.HTML
}

// HTMLFormatter renders a digest as a standalone page.
type HTMLFormatter struct {
	form bool
}

// NewHTML creates an HTML formatter. With form=true the page starts with a
// date range form submitting to "/".
func NewHTML(form bool) *HTMLFormatter {
	return &HTMLFormatter{form: form}
}

// Format writes the page to w.
func (f *HTMLFormatter) Format(w io.Writer, input DigestInput) error {
	p := htmlPage{
		Form:    f.form,
		Group:   input.Group,
		Range:   windowLabel(input.Window),
		Notice:  input.Notice,
		Entries: make([]htmlEntry, 0, len(input.Entries)),
	}
	if !input.Window.Since.IsZero() {
		p.Since = input.Window.Since.Format(time.DateOnly)
		p.Until = input.Window.Until.Format(time.DateOnly)
	}

	for _, e := range input.Entries {
		he := htmlEntry{
			ID:      e.ID,
			Title:   e.Name,
			Link:    e.Link,
			IsOld:   e.IsOld,
			Created: e.CreatedTime.Format("2006-01-02 15:04"),
			Message: template.HTML(e.Message),
		}
		if he.Title == "" {
			he.Title = firstLine(plainText(e.Message))
		}
		for _, t := range e.Embeds {
			he.Embeds = append(he.Embeds, template.HTML(t.HTML))
		}
		for _, c := range e.Comments {
			he.Comments = append(he.Comments, template.HTML(c))
		}
		p.Entries = append(p.Entries, he)
	}

	return page.Execute(w, p)
}
