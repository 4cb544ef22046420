package matcher

// Normalize is exported for testing. See normalize.
func Normalize(s string) (text string, breaks []int) {
	n := normalize(s)
	return n.text, n.breaks
}

// PhrasePattern is exported for testing. See phrasePattern.
func PhrasePattern(s string) (phrase, pattern string) {
	return phrasePattern(s)
}
