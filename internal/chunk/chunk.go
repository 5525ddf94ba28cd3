// Package chunk splits long replies into segments that fit the messaging
// platform's per-message length limit.
//
// Lengths are measured in Unicode code points, so a multibyte character is
// never cut in half.
package chunk

import (
	"strings"
	"unicode/utf8"
)

// DefaultSize is the chunk size used when configuration does not provide one.
const DefaultSize = 1500

// Split breaks text into ordered chunks of at most maxLength code points,
// preferring sentence boundaries (".", ";" and blank lines) and then word
// boundaries. Text already within the limit is returned unchanged.
// Whitespace-only text longer than the limit yields a single empty chunk.
func Split(text string, maxLength int) []string {
	if maxLength < 1 {
		maxLength = 1
	}
	if utf8.RuneCountInString(text) <= maxLength {
		return []string{text}
	}

	packed := pack(sentences(text), maxLength, " ")

	out := make([]string, 0, len(packed))
	for _, c := range packed {
		if utf8.RuneCountInString(c) <= maxLength {
			out = append(out, c)
			continue
		}
		out = append(out, forceSplit(c, maxLength)...)
	}

	// Whitespace-only input longer than the limit has no content left.
	if len(out) == 0 {
		return []string{""}
	}
	return out
}

// Combine merges already-split chunks back toward maxLength-sized messages,
// joining neighbours with a blank line. A chunk that is individually larger
// than maxLength is passed through as-is.
func Combine(chunks []string, maxLength int) []string {
	if maxLength < 1 {
		maxLength = 1
	}
	return pack(chunks, maxLength, "\n\n")
}

// sentences splits text after every ".", ";" or "\n\n", keeping the
// delimiter with the text before it. Pieces are trimmed and empty ones dropped.
func sentences(text string) []string {
	var (
		pieces []string
		cur    strings.Builder
	)
	flush := func() {
		if p := strings.TrimSpace(cur.String()); p != "" {
			pieces = append(pieces, p)
		}
		cur.Reset()
	}

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case r == '.' || r == ';':
			cur.WriteRune(r)
			i += size
			flush()
		case r == '\n' && i+1 < len(text) && text[i+1] == '\n':
			cur.WriteString("\n\n")
			i += 2
			flush()
		default:
			cur.WriteRune(r)
			i += size
		}
	}
	flush()
	return pieces
}

// pack greedily appends pieces to the current chunk while the result stays
// within maxLength.
func pack(pieces []string, maxLength int, sep string) []string {
	var (
		out    []string
		cur    string
		curLen int
	)
	sepLen := utf8.RuneCountInString(sep)

	for _, p := range pieces {
		pLen := utf8.RuneCountInString(p)
		if cur == "" {
			cur, curLen = p, pLen
			continue
		}
		if curLen+sepLen+pLen <= maxLength {
			cur += sep + p
			curLen += sepLen + pLen
			continue
		}
		out = append(out, cur)
		cur, curLen = p, pLen
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

// forceSplit cuts text at the last space at or before maxLength, or exactly at
// maxLength when the window has no space.
func forceSplit(text string, maxLength int) []string {
	var out []string
	remaining := []rune(strings.TrimSpace(text))

	for len(remaining) > maxLength {
		cut := lastSpace(remaining, maxLength)
		if cut <= 0 {
			cut = maxLength
		}
		if piece := strings.TrimSpace(string(remaining[:cut])); piece != "" {
			out = append(out, piece)
		}
		remaining = []rune(strings.TrimSpace(string(remaining[cut:])))
	}
	if len(remaining) > 0 {
		out = append(out, string(remaining))
	}
	return out
}

func lastSpace(r []rune, maxLength int) int {
	end := maxLength
	if end >= len(r) {
		end = len(r) - 1
	}
	for i := end; i >= 0; i-- {
		if r[i] == ' ' {
			return i
		}
	}
	return -1
}
