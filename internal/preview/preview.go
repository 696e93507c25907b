// Package preview renders cached text files as HTML. Markdown is rendered
// as a document; every other text file becomes a highlighted code block.
package preview

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/kanha321/mnnit-dark-web-reborn/pkg/filetype"
)

const defaultStyle = "github"

// Renderer converts file content to HTML.
type Renderer struct {
	md    goldmark.Markdown
	style string
	css   template.CSS
}

// New creates a renderer highlighting code with the named chroma style.
// An empty or unknown style falls back to "github".
func New(style string) (*Renderer, error) {
	if style == "" || styles.Get(style) == styles.Fallback {
		style = defaultStyle
	}

	var css bytes.Buffer
	formatter := html.New(html.WithClasses(true))
	if err := formatter.WriteCSS(&css, styles.Get(style)); err != nil {
		return nil, fmt.Errorf("write highlight css: %w", err)
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Typographer,
			highlighting.NewHighlighting(
				highlighting.WithStyle(style),
				highlighting.WithFormatOptions(
					html.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)

	return &Renderer{md: md, style: style, css: template.CSS(css.String())}, nil
}

// Style returns the highlight style in use.
func (r *Renderer) Style() string { return r.style }

// fence returns a backtick fence longer than any backtick run in content.
func fence(content string) string {
	longest, run := 0, 0
	for _, c := range content {
		if c == '`' {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	if longest < 3 {
		return "```"
	}
	return strings.Repeat("`", longest+1)
}

// Source returns the markdown rendered for name: the content itself for
// markdown files, otherwise the content in a fenced block tagged with the
// file's language.
func Source(name, content string) string {
	if filetype.IsMarkdown(name) {
		return content
	}
	f := fence(content)
	var b strings.Builder
	b.WriteString(f)
	b.WriteString(filetype.Language(name))
	b.WriteByte('\n')
	b.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(f)
	b.WriteByte('\n')
	return b.String()
}

// Render writes the HTML fragment for a file.
func (r *Renderer) Render(w io.Writer, name, content string) error {
	if err := r.md.Convert([]byte(Source(name, content)), w); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	return nil
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>{{.CSS}}</style>
</head>
<body>
<article class="preview">
{{.Body}}
</article>
</body>
</html>
`))

// Page writes a standalone HTML document previewing the file at path.
func (r *Renderer) Page(w io.Writer, path, content string) error {
	name := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		name = path[i+1:]
	}

	var body bytes.Buffer
	if err := r.Render(&body, name, content); err != nil {
		return err
	}
	return pageTmpl.Execute(w, struct {
		Title string
		CSS   template.CSS
		Body  template.HTML
	}{
		Title: path,
		CSS:   r.css,
		// goldmark escapes raw HTML in the source unless WithUnsafe is set.
		Body: template.HTML(body.String()),
	})
}
