package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxChunkSize is used when Config.MaxChunkSize is not positive.
const DefaultMaxChunkSize = 1000

// Config controls the chunking behaviour.
type Config struct {
	MaxChunkSize int // Nominal maximum chunk length in characters.
}

// Chunker packs sentences of extracted text into bounded chunks.
type Chunker struct {
	cfg Config
}

// New returns a Chunker with the given configuration.
// Zero-value fields are replaced with sensible defaults.
func New(cfg Config) *Chunker {
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = DefaultMaxChunkSize
	}
	return &Chunker{cfg: cfg}
}

// MaxChunkSize returns the configured nominal chunk length.
func (c *Chunker) MaxChunkSize() int {
	return c.cfg.MaxChunkSize
}

// Chunk splits text using the configured size.
func (c *Chunker) Chunk(text string) []string {
	return Chunk(text, c.cfg.MaxChunkSize)
}

// Chunk greedily packs the sentences of text into chunks of at most
// maxChunkSize characters. A sentence longer than maxChunkSize is emitted
// whole as its own chunk. Chunks are trimmed and empty ones dropped;
// consecutive chunks never overlap.
func Chunk(text string, maxChunkSize int) []string {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}

	var chunks []string
	var buf strings.Builder
	bufLen := 0

	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			chunks = append(chunks, s)
		}
		buf.Reset()
		bufLen = 0
	}

	for _, sentence := range Sentences(text) {
		n := utf8.RuneCountInString(sentence)
		if bufLen+n <= maxChunkSize {
			buf.WriteString(sentence)
			bufLen += n
			continue
		}
		if bufLen > 0 {
			flush()
		}
		buf.WriteString(sentence)
		bufLen = n
	}
	flush()

	return chunks
}

// Sentences splits text into sentence-like units. A unit ends after a run
// of '.', '!' or '?' that is followed by whitespace or the end of the
// text. Each unit keeps its leading whitespace, so concatenating the
// result reproduces text exactly. Text without any boundary is returned
// as a single unit.
func Sentences(text string) []string {
	if text == "" {
		return nil
	}

	var out []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if !isTerminal(r) {
			continue
		}
		// Consume the whole punctuation run ("?!", "...").
		for i < len(text) {
			next, nsize := utf8.DecodeRuneInString(text[i:])
			if !isTerminal(next) {
				break
			}
			i += nsize
		}
		if i == len(text) {
			break
		}
		next, _ := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(next) {
			out = append(out, text[start:i])
			start = i
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
