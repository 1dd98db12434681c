package llm

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kaptinlin/jsonrepair"
)

// SanitizeJSON normalizes raw model output into parseable JSON:
// code fences are stripped, the first balanced JSON value is extracted,
// and literal newlines inside string values are escaped. The logical
// string contents are preserved.
func SanitizeJSON(raw string) string {
	text := StripCodeFences(raw)
	if extracted := ExtractBalancedJSON(text); extracted != "" {
		text = extracted
	}
	return escapeNewlinesInStrings(text)
}

// RepairJSON is the last-resort pass over output that still fails to
// parse after sanitizing. It delegates to a structural JSON repairer.
func RepairJSON(raw string) (string, error) {
	repaired, err := jsonrepair.JSONRepair(SanitizeJSON(raw))
	if err != nil {
		return "", fmt.Errorf("json repair failed: %w", err)
	}
	return repaired, nil
}

// StripCodeFences removes a surrounding markdown code fence, with or
// without a language tag.
func StripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	// Drop the opening fence line
	newline := strings.IndexByte(trimmed, '\n')
	if newline == -1 {
		return strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	}
	body := trimmed[newline+1:]

	if idx := strings.LastIndex(body, "```"); idx != -1 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

// ExtractBalancedJSON returns the first balanced JSON object or array in
// the text, or "" when none is found. Braces inside string literals are
// ignored.
func ExtractBalancedJSON(text string) string {
	start := -1
	var open, close rune
	for i, r := range text {
		if r == '{' || r == '[' {
			start = i
			open = r
			if r == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i, r := range text[start:] {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : start+i+1]
			}
		}
	}
	return ""
}

// escapeNewlinesInStrings escapes literal control characters that appear
// inside JSON string literals, which some models emit instead of \n.
func escapeNewlinesInStrings(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inString := false
	escaped := false
	for _, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
				b.WriteRune(r)
				continue
			case r == '\\':
				escaped = true
				b.WriteRune(r)
				continue
			case r == '"':
				inString = false
				b.WriteRune(r)
				continue
			case r == '\n':
				b.WriteString(`\n`)
				continue
			case r == '\r':
				b.WriteString(`\r`)
				continue
			case r == '\t':
				b.WriteString(`\t`)
				continue
			case unicode.IsControl(r):
				fmt.Fprintf(&b, `\u%04x`, r)
				continue
			}
			b.WriteRune(r)
			continue
		}
		if r == '"' {
			inString = true
		}
		b.WriteRune(r)
	}
	return b.String()
}
