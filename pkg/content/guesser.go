// Package content guesses the MIME type and charset of scanned blobs, both
// from their file extension and from their actual bytes. A content-based
// guess is preferred when available, since extensions lie (a renamed
// binary, an extensionless script) far more often than magic bytes do.
package content

import (
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Input describes what is available to guess from: a display path (which
// may be empty, e.g. for a blob found only inside an archive) and some
// prefix of the blob's content. Full is true when Content is the entire
// blob rather than a truncated prefix.
type Input struct {
	Path    string
	Content []byte
	Full    bool
}

// Output is a guess pair: mime_guess is the extension-based guess and
// magic_guess is the content-based guess. Either may be empty.
type Output struct {
	MimeGuess  string
	MagicGuess string
}

// Guesser guesses MIME essence and charset for blobs.
type Guesser struct {
	extTable map[string]string
}

// NewGuesser creates a Guesser with the built-in extension table.
func NewGuesser() *Guesser {
	return &Guesser{extTable: defaultExtTable}
}

// Guess produces both the path-based and content-based guesses for in.
func (g *Guesser) Guess(in Input) Output {
	var out Output
	if in.Path != "" {
		ext := strings.ToLower(filepath.Ext(in.Path))
		out.MimeGuess = g.extTable[ext]
	}
	if len(in.Content) > 0 {
		out.MagicGuess = http.DetectContentType(in.Content)
	}
	return out
}

// BestGuess collapses an Output to a single MIME essence, preferring the
// content-based guess over the path-based one since magic bytes are harder
// to fake by accident than a file extension.
func (o Output) BestGuess() string {
	if o.MagicGuess != "" && o.MagicGuess != "application/octet-stream" && o.MagicGuess != "text/plain; charset=utf-8" {
		return stripParams(o.MagicGuess)
	}
	if o.MimeGuess != "" {
		return o.MimeGuess
	}
	if o.MagicGuess != "" {
		return stripParams(o.MagicGuess)
	}
	return ""
}

func stripParams(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		return strings.TrimSpace(mime[:i])
	}
	return mime
}

// Charset returns a best-effort charset guess for content: "utf-8" if the
// bytes are valid UTF-8 (including pure ASCII), "binary" if they contain a
// NUL byte or invalid UTF-8 within the sampled prefix, and "" if content is
// empty.
func Charset(content []byte) string {
	if len(content) == 0 {
		return ""
	}
	for _, b := range content {
		if b == 0 {
			return "binary"
		}
	}
	if !utf8.Valid(content) {
		return "binary"
	}
	return "utf-8"
}

// defaultExtTable maps lowercased file extensions (including the leading
// dot) to MIME essences. It intentionally covers source and config formats
// this scanner is most likely to encounter, not the full IANA registry.
var defaultExtTable = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".json": "application/json",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".xml":  "application/xml",
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".ts":   "application/typescript",
	".go":   "text/x-go",
	".py":   "text/x-python",
	".rb":   "text/x-ruby",
	".java": "text/x-java",
	".c":    "text/x-c",
	".h":    "text/x-c",
	".cpp":  "text/x-c++",
	".rs":   "text/x-rust",
	".sh":   "text/x-shellscript",
	".toml": "application/toml",
	".ini":  "text/plain",
	".env":  "text/plain",
	".pem":  "application/x-pem-file",
	".key":  "application/octet-stream",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".tar":  "application/x-tar",
	".gz":   "application/gzip",
	".7z":   "application/x-7z-compressed",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".sql":  "application/sql",
	".sqlite": "application/vnd.sqlite3",
	".ipynb": "application/x-ipynb+json",
}
