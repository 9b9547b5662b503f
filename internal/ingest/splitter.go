package ingest

import (
	"strings"
	"unicode/utf8"
)

const (
	defaultChunkSize = 1000
	defaultOverlap   = 200
)

// Splitter breaks extracted document text into overlapping chunks sized in
// characters. Cuts prefer paragraph boundaries, then line boundaries, then
// word boundaries, falling back to a hard cut for unbroken runs.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

// NewSplitter returns a Splitter with zero-value fields replaced by the
// defaults (1000-character chunks, 200-character overlap).
func NewSplitter(chunkSize, overlap int) Splitter {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = defaultOverlap
	}
	return Splitter{ChunkSize: chunkSize, Overlap: overlap}
}

// Split returns the chunked text. Chunks are trimmed and empty fragments are
// dropped; consecutive chunks share up to Overlap trailing characters.
func (s Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= s.ChunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + s.ChunkSize
		if end >= len(text) {
			if chunk := strings.TrimSpace(text[start:]); chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		cut := findBreak(text, start, end)
		if chunk := strings.TrimSpace(text[start:cut]); chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := cut - s.Overlap
		if next <= start {
			next = cut
		}
		for next < len(text) && !utf8.RuneStart(text[next]) {
			next++
		}
		start = next
	}

	return chunks
}

// findBreak picks the cut position for a chunk spanning [start, end).
// Preference order: last paragraph break, last line break, last space.
// Without any separator the chunk is cut hard at the nearest rune
// boundary at or before end, so a multi-byte rune is never split.
func findBreak(text string, start, end int) int {
	window := text[start:end]
	for _, sep := range []string{"\n\n", "\n", " "} {
		if idx := strings.LastIndex(window, sep); idx > 0 {
			return start + idx
		}
	}

	cut := end
	for cut > start && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if cut == start {
		return end
	}
	return cut
}
