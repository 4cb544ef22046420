package response

import (
	"encoding/json"
	"strings"
	"unicode"
)

// envelopeFields are the keys of the first choice that may carry the
// generated text, in lookup order.
var envelopeFields = []string{"messages", "message", "text"}

// Unwrap extracts the generated text from a completion API envelope.
// Two envelope shapes are recognized: an object with a "choices" array
// whose first element carries messages, message or text, and the
// persisted form {"response": "..."} when the object has no
// "indicators" key. Anything else is returned unchanged with ok false.
func Unwrap(raw string) (text string, ok bool) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return raw, false
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return raw, false
	}

	if choicesRaw, found := obj["choices"]; found {
		var choices []map[string]json.RawMessage
		if err := json.Unmarshal(choicesRaw, &choices); err != nil || len(choices) == 0 {
			return raw, false
		}
		for _, field := range envelopeFields {
			if v, found := choices[0][field]; found {
				if s, ok := contentText(v); ok {
					return s, true
				}
			}
		}
		return raw, false
	}

	if _, hasIndicators := obj["indicators"]; !hasIndicators {
		if v, found := obj["response"]; found {
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				return s, true
			}
		}
	}
	return raw, false
}

// contentText reads a JSON string, or an object with a string
// "content" field.
func contentText(v json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, true
	}
	var msg struct {
		Content *string `json:"content"`
	}
	if err := json.Unmarshal(v, &msg); err == nil && msg.Content != nil {
		return *msg.Content, true
	}
	return "", false
}

// StripFences removes a leading markdown code fence (with or without
// a language tag) and a trailing fence.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimLeftFunc(s[3:], func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r)
		})
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ExtractCandidate returns the substring from the first "{" to the
// last "}". When no "}" follows the first "{" the candidate runs to
// the end of the text so truncation repair can still close it. ok is
// false when the text contains no "{" at all.
func ExtractCandidate(s string) (candidate string, ok bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	end := strings.LastIndexByte(s, '}')
	if end < start {
		return s[start:], true
	}
	return s[start : end+1], true
}

// RepairSyntax removes trailing commas before a closing brace or
// bracket and inserts a comma between two values that sit on separate
// lines without a separator. String literals are copied untouched.
func RepairSyntax(s string) string {
	out := make([]byte, 0, len(s)+8)
	inString, escaped := false, false
	valueEnd := -1 // offset in out just past the last value, -1 after a separator
	newline := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				valueEnd = len(out)
				newline = false
			}
			continue
		}

		switch {
		case c == '\n':
			newline = true
		case c == ' ' || c == '\t' || c == '\r':
		case c == ',':
			if next := nextSignificant(s, i+1); next == '}' || next == ']' {
				continue
			}
			valueEnd = -1
		case c == '"' || c == '{' || c == '[':
			if valueEnd >= 0 && newline {
				out = append(out[:valueEnd], append([]byte{','}, out[valueEnd:]...)...)
			}
			if c == '"' {
				inString = true
			}
			valueEnd = -1
		case c == '}' || c == ']' || (c >= '0' && c <= '9'):
			out = append(out, c)
			valueEnd = len(out)
			newline = false
			continue
		default:
			valueEnd = -1
		}
		if c != '\n' && c != ' ' && c != '\t' && c != '\r' {
			newline = false
		}
		out = append(out, c)
	}
	return string(out)
}

// nextSignificant returns the first non-whitespace byte of s at or
// after i, or 0.
func nextSignificant(s string, i int) byte {
	for ; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
		default:
			return s[i]
		}
	}
	return 0
}

// scan walks s outside of string literals and reports the stack of
// unclosed openers, the offset of the opening quote when s ends inside
// a string (-1 otherwise), and the offset of the last comma outside any
// string (-1 if none).
func scan(s string) (stack []byte, openQuote int, lastComma int) {
	openQuote, lastComma = -1, -1
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if openQuote >= 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				openQuote = -1
			}
			continue
		}
		switch c {
		case '"':
			openQuote = i
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
		case ',':
			lastComma = i
		}
	}
	return stack, openQuote, lastComma
}

// RepairTruncation closes a structure that was cut off mid-stream. A
// string left open is dropped whole rather than closed, so a partial
// id or key never reaches the decoder. It then drops one trailing
// comma, completes a dangling key with null, and appends the closers
// for every unclosed "[" and "{" in reverse order of opening. ok is
// false when s has nothing left open.
func RepairTruncation(s string) (repaired string, ok bool) {
	stack, openQuote, _ := scan(s)
	if len(stack) == 0 && openQuote < 0 {
		return s, false
	}

	body := s
	if openQuote >= 0 {
		body = body[:openQuote]
	}
	body = strings.TrimRightFunc(body, unicode.IsSpace)
	body = strings.TrimSuffix(body, ",")
	if strings.HasSuffix(body, ":") {
		body += "null"
	}

	var b strings.Builder
	b.WriteString(body)
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String(), true
}

// backOff cuts s at its last comma outside any string, dropping the
// incomplete trailing element. ok is false when there is no such
// comma.
func backOff(s string) (string, bool) {
	_, _, i := scan(s)
	if i < 0 {
		return s, false
	}
	return s[:i], true
}
