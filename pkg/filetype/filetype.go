// Package filetype classifies files by name for prefetching and preview.
package filetype

import (
	"path"
	"strings"
)

var textExtensions = map[string]bool{
	"txt": true, "md": true, "markdown": true,
	"js": true, "jsx": true, "ts": true, "tsx": true,
	"html": true, "htm": true,
	"css": true, "scss": true, "sass": true, "less": true,
	"json": true, "xml": true, "yaml": true, "yml": true,
	"ini": true, "config": true, "conf": true,
	"sh": true, "bash": true,
	"py": true, "rb": true, "php": true, "java": true,
	"c": true, "cpp": true, "h": true, "hpp": true, "cs": true,
	"go": true, "rs": true, "swift": true, "kt": true,
	"sql": true, "graphql": true, "vue": true, "svelte": true,
}

// Highlighter names keyed by extension. Unlisted text files render as plain text.
var languages = map[string]string{
	"js": "javascript", "jsx": "jsx", "ts": "typescript", "tsx": "tsx",
	"html": "html", "htm": "html", "xml": "xml",
	"css": "css", "scss": "scss", "sass": "sass", "less": "less",
	"json": "json", "yaml": "yaml", "yml": "yaml",
	"md": "markdown", "markdown": "markdown",
	"py": "python", "rb": "ruby", "php": "php", "java": "java",
	"c": "c", "cpp": "cpp", "h": "c", "hpp": "cpp", "cs": "csharp",
	"go": "go", "rs": "rust", "swift": "swift", "kt": "kotlin",
	"sh": "bash", "bash": "bash",
	"sql": "sql", "graphql": "graphql",
	"ini": "ini", "conf": "ini", "config": "ini",
	"vue": "vue", "svelte": "svelte",
}

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	ext := path.Ext(name)
	if ext == "" {
		return ""
	}
	return strings.ToLower(ext[1:])
}

// IsText reports whether name has an extension on the text allow-list.
func IsText(name string) bool {
	return textExtensions[Extension(name)]
}

// IsMarkdown reports whether name is a markdown document.
func IsMarkdown(name string) bool {
	ext := Extension(name)
	return ext == "md" || ext == "markdown"
}

// Language returns the syntax highlighting language for name.
func Language(name string) string {
	if lang, ok := languages[Extension(name)]; ok {
		return lang
	}
	return "plaintext"
}

// IsTextMIME reports whether a MIME type describes viewable text.
func IsTextMIME(mimeType string) bool {
	mimeType = strings.ToLower(mimeType)
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return strings.HasPrefix(mimeType, "text/") ||
		strings.Contains(mimeType, "javascript") ||
		strings.Contains(mimeType, "json") ||
		strings.Contains(mimeType, "xml")
}
