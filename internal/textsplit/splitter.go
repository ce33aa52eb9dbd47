// Package textsplit splits documents into overlapping, size-bounded chunks.
package textsplit

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mike-a-ellis/docubot/internal/document"
)

const (
	// DefaultChunkSize is the target maximum chunk length in runes.
	DefaultChunkSize = 500
	// DefaultChunkOverlap is how many runes neighbouring chunks may share.
	DefaultChunkOverlap = 20
)

// DefaultSeparators are tried in order: paragraph, line, word, then single runes.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

var ErrInvalidConfig = errors.New("invalid splitter configuration")

// RecursiveSplitter splits text on the first separator that occurs in it, merges the
// pieces back up to ChunkSize, and recurses with the next separator on any piece that
// is still too long.
type RecursiveSplitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// New creates a splitter. Separators defaults to DefaultSeparators when empty.
func New(chunkSize, chunkOverlap int, separators ...string) (*RecursiveSplitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d must be > 0", ErrInvalidConfig, chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be >= 0 and < chunk size %d",
			ErrInvalidConfig, chunkOverlap, chunkSize)
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	return &RecursiveSplitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   separators,
	}, nil
}

// NewDefault returns the 500/20 splitter.
func NewDefault() *RecursiveSplitter {
	s, _ := New(DefaultChunkSize, DefaultChunkOverlap)
	return s
}

// SplitDocuments splits every document and returns the chunks in order. Each chunk
// carries a copy of its parent's metadata plus its position in the result.
func (s *RecursiveSplitter) SplitDocuments(docs []document.Document) []document.Document {
	var chunks []document.Document
	for _, doc := range docs {
		for _, text := range s.SplitText(doc.PageContent) {
			meta := doc.CloneMetadata()
			meta[document.MetaChunkIndex] = len(chunks)
			chunks = append(chunks, document.Document{PageContent: text, Metadata: meta})
		}
	}
	return chunks
}

// SplitText splits text into chunks of at most chunkSize runes where separators allow.
func (s *RecursiveSplitter) SplitText(text string) []string {
	return s.split(text, s.separators)
}

func (s *RecursiveSplitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var next []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			next = separators[i+1:]
			break
		}
	}

	var (
		final []string
		good  []string
	)
	for _, piece := range splitKeepSeparator(text, separator) {
		if runeLen(piece) < s.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good)...)
			good = nil
		}
		if len(next) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, next)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good)...)
	}
	return final
}

// merge greedily packs pieces into chunks, carrying up to chunkOverlap runes of
// trailing pieces into the next chunk.
func (s *RecursiveSplitter) merge(pieces []string) []string {
	var (
		chunks  []string
		current []string
		total   int
	)
	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > s.chunkSize && len(current) > 0 {
			if chunk := join(current); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for total > s.chunkOverlap || (total+n > s.chunkSize && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}
	if chunk := join(current); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// splitKeepSeparator splits text on sep, keeping sep at the start of each following
// piece. An empty sep splits into single runes. Empty pieces are dropped.
func splitKeepSeparator(text, sep string) []string {
	var pieces []string
	if sep == "" {
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}

	parts := strings.Split(text, sep)
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return pieces
}

func join(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
