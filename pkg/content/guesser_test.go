package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuess_PathOnly(t *testing.T) {
	g := NewGuesser()
	out := g.Guess(Input{Path: "config/settings.YAML"})
	assert.Equal(t, "application/yaml", out.MimeGuess)
	assert.Empty(t, out.MagicGuess)
}

func TestGuess_ContentOnly_PNG(t *testing.T) {
	g := NewGuesser()
	png := []byte("\x89PNG\r\n\x1a\n" + "rest of file")
	out := g.Guess(Input{Content: png, Full: true})
	assert.Equal(t, "image/png", out.MagicGuess)
	assert.Equal(t, "image/png", out.BestGuess())
}

func TestBestGuess_PrefersContentOverPath(t *testing.T) {
	g := NewGuesser()
	// .txt extension but actually a PNG
	png := []byte("\x89PNG\r\n\x1a\n")
	out := g.Guess(Input{Path: "picture.txt", Content: png})
	assert.Equal(t, "image/png", out.BestGuess())
}

func TestBestGuess_FallsBackToPathWhenContentIsGenericText(t *testing.T) {
	g := NewGuesser()
	out := g.Guess(Input{Path: "notes.md", Content: []byte("just some plain text")})
	assert.Equal(t, "text/markdown", out.BestGuess())
}

func TestCharset(t *testing.T) {
	assert.Equal(t, "utf-8", Charset([]byte("hello world")))
	assert.Equal(t, "utf-8", Charset([]byte("héllo wörld")))
	assert.Equal(t, "binary", Charset([]byte{0x00, 0x01, 0x02}))
	assert.Equal(t, "binary", Charset([]byte{0xff, 0xfe, 0x00}))
	assert.Equal(t, "", Charset(nil))
}
