package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Sentence splitting
// ---------------------------------------------------------------------------

func TestSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", nil},
		{"single", "Hello world.", []string{"Hello world."}},
		{"three", "One. Two! Three?", []string{"One.", " Two!", " Three?"}},
		{"punctuation run", "Wait... What?! Yes.", []string{"Wait...", " What?!", " Yes."}},
		{"no boundary", "no terminal punctuation here", []string{"no terminal punctuation here"}},
		{"trailing remainder", "First. and then some", []string{"First.", " and then some"}},
		{"decimal stays inside", "Pi is 3.14 roughly. Done.", []string{"Pi is 3.14 roughly.", " Done."}},
		{"newline boundary", "Line one.\nLine two.", []string{"Line one.", "\nLine two."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sentences(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("Sentences(%q) = %q, want %q", tt.text, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sentence[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSentencesReconstructText(t *testing.T) {
	texts := []string{
		"A. B. C.",
		"   leading space. trailing space.   ",
		"...starts with dots. ok",
		"Unicode café. Ünïcödé!  Done?",
	}
	for _, text := range texts {
		if got := strings.Join(Sentences(text), ""); got != text {
			t.Errorf("join(Sentences(%q)) = %q", text, got)
		}
	}
}

// ---------------------------------------------------------------------------
// Packing
// ---------------------------------------------------------------------------

func TestChunkSingleChunk(t *testing.T) {
	text := "The sky is blue. Grass is green. Snow is white."
	chunks := Chunk(text, 1000)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d: %q", len(chunks), chunks)
	}
	if chunks[0] != text {
		t.Errorf("chunk = %q, want %q", chunks[0], text)
	}
}

func TestChunkPacksGreedily(t *testing.T) {
	// The first sentence is 10 characters, the others 11 with their leading space.
	text := "Aaaaaaaaa. Bbbbbbbbb. Ccccccccc. Ddddddddd."
	chunks := Chunk(text, 22)
	want := []string{"Aaaaaaaaa. Bbbbbbbbb.", "Ccccccccc. Ddddddddd."}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks %q, want %q", len(chunks), chunks, want)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk[%d] = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestChunkOversizedSentenceEmittedWhole(t *testing.T) {
	long := strings.Repeat("x", 50) + "."
	text := "Short. " + long + " Tail."
	chunks := Chunk(text, 10)

	found := 0
	for _, c := range chunks {
		if c == long {
			found++
		}
	}
	if found != 1 {
		t.Fatalf("oversized sentence should appear whole exactly once, chunks = %q", chunks)
	}
	if chunks[0] != "Short." {
		t.Errorf("first chunk = %q, want %q", chunks[0], "Short.")
	}
	if chunks[len(chunks)-1] != "Tail." {
		t.Errorf("last chunk = %q, want %q", chunks[len(chunks)-1], "Tail.")
	}
}

func TestChunkDropsEmpty(t *testing.T) {
	tests := []string{"", "   ", "\n\n\t"}
	for _, text := range tests {
		if got := Chunk(text, 100); len(got) != 0 {
			t.Errorf("Chunk(%q) = %q, want no chunks", text, got)
		}
	}
}

func TestChunkNoBoundary(t *testing.T) {
	text := "a single run of words with no terminal punctuation"
	chunks := Chunk(text, 10)
	if len(chunks) != 1 || chunks[0] != text {
		t.Fatalf("expected whole text as one chunk, got %q", chunks)
	}
}

func TestChunkLossless(t *testing.T) {
	text := "First sentence here. Second one follows! Is this the third? " +
		"Yes it is. Another short one. And a final sentence without a stop"
	for _, size := range []int{1, 15, 30, 60, 1000} {
		chunks := Chunk(text, size)

		var want []string
		for _, s := range Sentences(text) {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				want = append(want, trimmed)
			}
		}
		var got []string
		for _, c := range chunks {
			if strings.TrimSpace(c) == "" {
				t.Fatalf("size %d: empty chunk in %q", size, chunks)
			}
			got = append(got, strings.Fields(c)...)
		}
		if strings.Join(got, " ") != strings.Join(strings.Fields(strings.Join(want, " ")), " ") {
			t.Errorf("size %d: words changed\n got: %q\nwant: %q", size, got, want)
		}
	}
}

func TestChunkRespectsLimitForShortSentences(t *testing.T) {
	text := strings.Repeat("Tiny bit. ", 40)
	for _, c := range Chunk(text, 50) {
		if n := utf8.RuneCountInString(c); n > 50 {
			t.Errorf("chunk length %d exceeds limit: %q", n, c)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	c := New(Config{})
	if c.MaxChunkSize() != DefaultMaxChunkSize {
		t.Errorf("MaxChunkSize() = %d, want %d", c.MaxChunkSize(), DefaultMaxChunkSize)
	}
	if got := Chunk("One. Two.", 0); len(got) != 1 {
		t.Errorf("non-positive size should use default, got %q", got)
	}
}
