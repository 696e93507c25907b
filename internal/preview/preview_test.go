package preview

import (
	"bytes"
	"strings"
	"testing"
)

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestFence(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"plain", "```"},
		{"a ``` b", "````"},
		{"x ````` y ``", "``````"},
	}
	for _, tt := range tests {
		if got := fence(tt.content); got != tt.want {
			t.Errorf("fence(%q) = %q, want %q", tt.content, got, tt.want)
		}
	}
}

func TestSourceWrapsCode(t *testing.T) {
	src := Source("main.go", "package main")
	if !strings.HasPrefix(src, "```go\n") || !strings.HasSuffix(src, "\n```\n") {
		t.Errorf("Source = %q", src)
	}

	md := "# Title\n"
	if got := Source("README.md", md); got != md {
		t.Errorf("markdown should pass through, got %q", got)
	}
}

func TestRenderMarkdown(t *testing.T) {
	r := newRenderer(t)

	var buf bytes.Buffer
	if err := r.Render(&buf, "guide.md", "# Getting Started\n\n| a | b |\n|---|---|\n| 1 | 2 |\n"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `<h1 id="getting-started">`) {
		t.Errorf("missing heading id: %s", out)
	}
	if !strings.Contains(out, "<table>") {
		t.Errorf("missing GFM table: %s", out)
	}
}

func TestRenderEscapesRawHTML(t *testing.T) {
	r := newRenderer(t)

	var buf bytes.Buffer
	if err := r.Render(&buf, "evil.md", "<script>alert(1)</script>\n"); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "<script>") {
		t.Errorf("raw HTML should not pass through: %s", buf.String())
	}
}

func TestRenderCodeHighlighted(t *testing.T) {
	r := newRenderer(t)

	var buf bytes.Buffer
	if err := r.Render(&buf, "app.py", "def main():\n    return 1\n"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `class="chroma"`) {
		t.Errorf("expected chroma classes: %s", out)
	}
	if !strings.Contains(out, "main") {
		t.Errorf("expected code in output: %s", out)
	}
}

func TestPage(t *testing.T) {
	r := newRenderer(t)

	var buf bytes.Buffer
	if err := r.Page(&buf, "/docs/<notes>.txt", "hello"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "<title>/docs/&lt;notes&gt;.txt</title>") {
		t.Errorf("title not escaped: %s", out)
	}
	if !strings.Contains(out, ".chroma") {
		t.Error("expected highlight CSS in page")
	}
	if !strings.Contains(out, "hello") {
		t.Error("expected content in page")
	}
}

func TestUnknownStyleFallsBack(t *testing.T) {
	r, err := New("no-such-style")
	if err != nil {
		t.Fatal(err)
	}
	if r.Style() != defaultStyle {
		t.Errorf("Style = %s, want %s", r.Style(), defaultStyle)
	}
}
