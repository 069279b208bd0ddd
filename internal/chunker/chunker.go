package chunker

import (
	"errors"
	"fmt"
	"strings"

	"document-chat/internal/models"
)

var ErrInvalidWindow = errors.New("chunk size must be greater than overlap and overlap must not be negative")

// Window is a contiguous slice of text starting at Offset (in runes)
type Window struct {
	Text   string
	Offset int
}

// Split cuts text into windows of size runes, each starting size-overlap
// runes after the previous one. The last window may be shorter.
func Split(text string, size, overlap int) ([]Window, error) {
	if overlap < 0 || size <= overlap {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidWindow, size, overlap)
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := size - overlap
	windows := make([]Window, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		windows = append(windows, Window{
			Text:   string(runes[start:end]),
			Offset: start,
		})
	}
	return windows, nil
}

// Reassemble rebuilds the original text from windows produced by Split,
// dropping the overlapping prefix of every window.
func Reassemble(windows []Window) string {
	var out []rune
	for _, w := range windows {
		runes := []rune(w.Text)
		if w.Offset+len(runes) <= len(out) {
			continue
		}
		skip := max(len(out)-w.Offset, 0)
		out = append(out, runes[skip:]...)
	}
	return string(out)
}

// Chunker turns document segments into chunks
type Chunker struct {
	size    int
	overlap int
}

func New(size, overlap int) (*Chunker, error) {
	if overlap < 0 || size <= overlap {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidWindow, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Chunk splits every segment in order. Chunk ids are 1-based and keep
// counting across pages. Blank segments produce nothing.
func (c *Chunker) Chunk(source string, segments []models.Segment) []models.Chunk {
	var chunks []models.Chunk
	for _, seg := range segments {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		// size and overlap were validated in New
		windows, _ := Split(seg.Text, c.size, c.overlap)
		for _, w := range windows {
			chunks = append(chunks, models.Chunk{
				Content:    w.Text,
				Source:     source,
				PageNumber: seg.PageNumber,
				ChunkID:    len(chunks) + 1,
				Offset:     w.Offset,
			})
		}
	}
	return chunks
}

// GetCompleteContent rebuilds the text of one page from its chunks
func GetCompleteContent(chunks []models.Chunk) string {
	windows := make([]Window, len(chunks))
	for i, ch := range chunks {
		windows[i] = Window{Text: ch.Content, Offset: ch.Offset}
	}
	return Reassemble(windows)
}
