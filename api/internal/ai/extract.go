package ai

import (
	"regexp"
	"strings"
)

var fencedBlockRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// ExtractJSON pulls the most likely JSON object out of free-form model output.
//
// A fenced code block wins. Otherwise the object starting at the first '{' is cut
// at its matching '}', tracking string and escape state so braces inside string
// values do not count. If the braces never balance, the text up to the last '}'
// is used. Text without any '{' is returned unchanged.
func ExtractJSON(text string) string {
	if m := fencedBlockRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}

	first := strings.IndexByte(text, '{')
	if first < 0 {
		return text
	}
	if end := matchingBrace(text, first); end >= 0 {
		return text[first : end+1]
	}
	if last := strings.LastIndexByte(text, '}'); last > first {
		return text[first : last+1]
	}
	return text
}

// matchingBrace returns the index of the '}' closing the '{' at start, or -1.
func matchingBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = true
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return i
				}
			}
		}
	}
	return -1
}

// ExtractTag returns the trimmed text between the first <name> and the last </name>.
// Taking the last closing tag keeps look-alike tags inside the body intact.
func ExtractTag(text, name string) (string, bool) {
	open := "<" + name + ">"
	closing := "</" + name + ">"
	start := strings.Index(text, open)
	end := strings.LastIndex(text, closing)
	if start < 0 || end < 0 || start+len(open) > end {
		return "", false
	}
	return strings.TrimSpace(text[start+len(open) : end]), true
}
