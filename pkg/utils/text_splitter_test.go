package utils

import (
	"strings"
	"testing"
)

func TestSplitText(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		chunkSize  int
		overlap    int
		wantChunks int
	}{
		{
			name:       "empty text",
			text:       "",
			chunkSize:  10,
			overlap:    2,
			wantChunks: 0,
		},
		{
			name:       "shorter than chunk size",
			text:       "hello",
			chunkSize:  10,
			overlap:    2,
			wantChunks: 1,
		},
		{
			name:       "exact chunk size",
			text:       strings.Repeat("a", 10),
			chunkSize:  10,
			overlap:    2,
			wantChunks: 1,
		},
		{
			name:       "two chunks with overlap",
			text:       strings.Repeat("a", 15),
			chunkSize:  10,
			overlap:    2,
			wantChunks: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := SplitText(tt.text, tt.chunkSize, tt.overlap)
			if len(chunks) != tt.wantChunks {
				t.Errorf("chunk count = %d, want %d", len(chunks), tt.wantChunks)
			}
			for i, c := range chunks {
				if len([]rune(c)) > tt.chunkSize {
					t.Errorf("chunk %d exceeds size: %d", i, len([]rune(c)))
				}
			}
		})
	}
}

func TestSplitTextOverlapContinuity(t *testing.T) {
	text := "abcdefghijklmnopqrstuvwxyz"
	chunks := SplitText(text, 10, 3)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// Each chunk after the first must start with the tail of its predecessor.
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		tail := string(prev[len(prev)-3:])
		if !strings.HasPrefix(chunks[i], tail) {
			t.Errorf("chunk %d does not begin with previous tail %q: %q", i, tail, chunks[i])
		}
	}

	// Joining with overlap removed must reproduce the input.
	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0])
	for i := 1; i < len(chunks); i++ {
		rebuilt.WriteString(string([]rune(chunks[i])[3:]))
	}
	if rebuilt.String() != text {
		t.Errorf("rebuilt text = %q, want %q", rebuilt.String(), text)
	}
}

func TestSplitTextMultibyte(t *testing.T) {
	text := strings.Repeat("é", 12)
	chunks := SplitText(text, 10, 2)
	for i, c := range chunks {
		if !strings.HasPrefix(c, "é") {
			t.Errorf("chunk %d split inside a rune: %q", i, c)
		}
	}
}
