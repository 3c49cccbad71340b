// Package text splits long text into bounded-size chunks and persists them.
package text

import (
	"strconv"
	"strings"
	"unicode"
)

const (
	// DefaultMaxLength is the chunk size used when none (or a degenerate one) is given.
	DefaultMaxLength = 2500
	// MinChunkLength is the floor applied to user-supplied max lengths.
	MinChunkLength = 100
	// DefaultTerminator marks sentence ends.
	DefaultTerminator = '.'
)

// Config controls how Split cuts text. The zero value is usable and
// resolves to DefaultConfig.
type Config struct {
	// MaxLength is the upper bound on a chunk's length in characters (runes).
	// Values <= 0 fall back to DefaultMaxLength.
	MaxLength int
	// Terminator is the preferred cut character, kept at the end of its chunk.
	Terminator rune
}

// DefaultConfig returns a 2500 character limit cutting at periods.
func DefaultConfig() Config {
	return Config{
		MaxLength:  DefaultMaxLength,
		Terminator: DefaultTerminator,
	}
}

func (c Config) normalized() Config {
	if c.MaxLength <= 0 {
		c.MaxLength = DefaultMaxLength
	}
	if c.Terminator == 0 {
		c.Terminator = DefaultTerminator
	}
	return c
}

// ParseMaxLength converts a user-supplied max length into a usable value.
// Malformed or non-positive input yields DefaultMaxLength; positive values
// below MinChunkLength are raised to MinChunkLength.
func ParseMaxLength(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return DefaultMaxLength
	}
	if n < MinChunkLength {
		return MinChunkLength
	}
	return n
}

// Split cuts text into contiguous, trimmed chunks of at most cfg.MaxLength
// characters in a single left-to-right pass.
//
// A cut lands on the last terminator inside the window when there is one
// past the chunk start. Otherwise it lands before the nearest preceding
// whitespace, and if the window has none the text is hard cut at exactly
// MaxLength characters, which may split a word.
//
// Split never fails: empty or all-whitespace input returns nil.
func Split(text string, cfg Config) []string {
	cfg = cfg.normalized()

	runes := []rune(strings.TrimSpace(text))
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []string
	pos := 0
	for pos < n {
		end := min(pos+cfg.MaxLength, n)
		if end == n {
			if chunk := strings.TrimSpace(string(runes[pos:])); chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		chunkEnd, next := cutPoint(runes, pos, end, cfg.Terminator)
		if chunk := strings.TrimSpace(string(runes[pos:chunkEnd])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		pos = skipSpace(runes, next)
	}

	return chunks
}

// cutPoint picks where the chunk starting at pos ends (exclusive) and where
// scanning resumes, for a window [pos, end) that does not reach the end of text.
func cutPoint(runes []rune, pos, end int, terminator rune) (chunkEnd, next int) {
	for i := end - 1; i > pos; i-- {
		if runes[i] == terminator {
			return i + 1, i + 1
		}
	}

	for i := end - 1; i > pos; i-- {
		if unicode.IsSpace(runes[i]) {
			return i, i
		}
	}

	return end, end
}

func skipSpace(runes []rune, i int) int {
	for i < len(runes) && unicode.IsSpace(runes[i]) {
		i++
	}
	return i
}
