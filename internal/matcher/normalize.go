package matcher

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// normalized is the matching form of a text. Every rune of the
// original maps to exactly one rune here, so rune windows measured in
// the normalized text are the same windows in the original.
type normalized struct {
	text string

	// orig maps a byte offset of text (at a rune start) to the byte
	// offset of the same rune in the original. orig[len(text)] is the
	// original length.
	orig []int

	// breaks are the byte offsets in text of clause terminators.
	breaks []int
}

// isWordRune reports whether r is part of a word for boundary checks.
func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isClauseBreak(r rune) bool {
	switch r {
	case ',', ';', '.', '!', '?', '\n':
		return true
	}
	return false
}

// foldRune lower-cases r and turns punctuation into a space.
func foldRune(r rune) rune {
	if isWordRune(r) {
		return unicode.ToLower(r)
	}
	if unicode.IsSpace(r) {
		return r
	}
	return ' '
}

func normalize(s string) normalized {
	var b strings.Builder
	b.Grow(len(s))
	n := normalized{orig: make([]int, 0, len(s)+1)}

	for i, r := range s {
		at := b.Len()
		if isClauseBreak(r) {
			n.breaks = append(n.breaks, at)
		}
		b.WriteRune(foldRune(r))
		for len(n.orig) <= b.Len()-1 {
			n.orig = append(n.orig, i)
		}
	}
	n.orig = append(n.orig, len(s))
	n.text = b.String()
	return n
}

// phrasePattern turns a keyword or cue into a regexp source that
// matches its normalized words separated by any whitespace. It
// returns the normalized phrase and "" when nothing is left.
func phrasePattern(s string) (phrase, pattern string) {
	folded := strings.Map(foldRune, s)
	words := strings.Fields(folded)
	if len(words) == 0 {
		return "", ""
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(words, " "), strings.Join(quoted, `\s+`)
}

// atBoundary reports whether text[start:end] is a whole word or
// phrase: the runes on either side are not word runes.
func atBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

// findWhole returns every whole-word match of re in text. A match
// rejected for its boundaries only advances the search by one rune,
// so it cannot hide a valid overlapping match.
func findWhole(re *regexp.Regexp, text string) [][2]int {
	var out [][2]int
	pos := 0
	for pos <= len(text) {
		loc := re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if end > start && atBoundary(text, start, end) {
			out = append(out, [2]int{start, end})
			pos = end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		if size == 0 {
			break
		}
		pos = start + size
	}
	return out
}

// back returns the byte offset n runes before off.
func back(text string, off, n int) int {
	for ; n > 0 && off > 0; n-- {
		_, size := utf8.DecodeLastRuneInString(text[:off])
		off -= size
	}
	return off
}

// forward returns the byte offset n runes after off.
func forward(text string, off, n int) int {
	for ; n > 0 && off < len(text); n-- {
		_, size := utf8.DecodeRuneInString(text[off:])
		off += size
	}
	return off
}
