package chunker

import (
	"errors"
	"strings"
	"testing"

	"document-chat/internal/models"
)

func TestSplitOffsets(t *testing.T) {
	text := strings.Repeat("abcdefghij", 250) // 2500 chars

	windows, err := Split(text, 1000, 400)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	wantOffsets := []int{0, 600, 1200, 1800, 2400}
	if len(windows) != len(wantOffsets) {
		t.Fatalf("got %d windows, want %d", len(windows), len(wantOffsets))
	}
	for i, w := range windows {
		if w.Offset != wantOffsets[i] {
			t.Errorf("window %d offset = %d, want %d", i, w.Offset, wantOffsets[i])
		}
		if w.Text != text[w.Offset:min(w.Offset+1000, len(text))] {
			t.Errorf("window %d text does not match source", i)
		}
	}
	if got := len(windows[4].Text); got != 100 {
		t.Errorf("last window length = %d, want 100", got)
	}
}

func TestSplitRoundTrip(t *testing.T) {
	texts := []string{
		"a",
		"hello world",
		strings.Repeat("lorem ipsum dolor sit amet ", 97),
		"ünïcödé → text with 日本語 characters and emoji 🙂 mixed in",
	}
	params := []struct{ size, overlap int }{
		{1, 0}, {2, 1}, {5, 0}, {7, 3}, {10, 9}, {1000, 400}, {64, 16},
	}

	for _, text := range texts {
		for _, p := range params {
			windows, err := Split(text, p.size, p.overlap)
			if err != nil {
				t.Fatalf("Split(size=%d, overlap=%d) error = %v", p.size, p.overlap, err)
			}
			if got := Reassemble(windows); got != text {
				t.Errorf("Reassemble(Split(%q, %d, %d)) = %q", text, p.size, p.overlap, got)
			}
			for _, w := range windows {
				if n := len([]rune(w.Text)); n > p.size {
					t.Errorf("window longer than size: %d > %d", n, p.size)
				}
			}
		}
	}
}

func TestSplitInvalid(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
	}{
		{"overlap equals size", 10, 10},
		{"overlap larger", 10, 11},
		{"negative overlap", 10, -1},
		{"zero size", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Split("text", tt.size, tt.overlap); !errors.Is(err, ErrInvalidWindow) {
				t.Errorf("Split() error = %v, want ErrInvalidWindow", err)
			}
			if _, err := New(tt.size, tt.overlap); !errors.Is(err, ErrInvalidWindow) {
				t.Errorf("New() error = %v, want ErrInvalidWindow", err)
			}
		})
	}
}

func TestSplitEmpty(t *testing.T) {
	windows, err := Split("", 10, 2)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(windows) != 0 {
		t.Errorf("got %d windows for empty text", len(windows))
	}
}

func TestChunkerChunk(t *testing.T) {
	c, err := New(4, 1)
	if err != nil {
		t.Fatal(err)
	}
	segments := []models.Segment{
		{PageNumber: 1, Text: "abcdefg"},
		{PageNumber: 2, Text: "   \n"},
		{PageNumber: 3, Text: "xyz"},
	}

	chunks := c.Chunk("doc.pdf", segments)

	want := []models.Chunk{
		{Content: "abcd", Source: "doc.pdf", PageNumber: 1, ChunkID: 1, Offset: 0},
		{Content: "defg", Source: "doc.pdf", PageNumber: 1, ChunkID: 2, Offset: 3},
		{Content: "g", Source: "doc.pdf", PageNumber: 1, ChunkID: 3, Offset: 6},
		{Content: "xyz", Source: "doc.pdf", PageNumber: 3, ChunkID: 4, Offset: 0},
	}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d: %+v", len(chunks), len(want), chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %+v, want %+v", i, chunks[i], want[i])
		}
	}
	if got := GetCompleteContent(chunks[:3]); got != "abcdefg" {
		t.Errorf("GetCompleteContent() = %q", got)
	}
}

func TestChunkerNothingToIndex(t *testing.T) {
	c, _ := New(10, 2)
	if chunks := c.Chunk("empty.pdf", nil); len(chunks) != 0 {
		t.Errorf("expected no chunks, got %d", len(chunks))
	}
}
