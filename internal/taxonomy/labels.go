package taxonomy

import "strings"

// ParseConfidence maps a model-supplied confidence label to a
// Confidence. Matching is case-insensitive; anything outside the
// allowed set, including the empty string, maps to ConfidenceUnknown.
func ParseConfidence(s string) Confidence {
	c, ok := confidenceMap[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return ConfidenceUnknown
	}
	return c
}

var confidenceMap = map[string]Confidence{
	"low":    ConfidenceLow,
	"medium": ConfidenceMedium,
	"high":   ConfidenceHigh,
}

// BandRank returns the ordinal of a severity band (Low = 0). Unknown
// bands rank below Low.
func BandRank(b SeverityBand) int {
	for i, known := range SeverityBands {
		if known == b {
			return i
		}
	}
	return -1
}
