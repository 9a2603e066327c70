package extract

import (
	"strings"
	"unicode"
)

const fence = "```"

// StripFence removes one outer fenced-code wrapper, with or without a
// language tag, from both ends. Text without a fence is returned trimmed.
func StripFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, fence) {
		body := trimmed[len(fence):]
		tagEnd := strings.IndexFunc(body, func(r rune) bool {
			return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '+')
		})
		if tagEnd < 0 {
			tagEnd = len(body)
		}
		trimmed = strings.TrimSpace(body[tagEnd:])
	}
	if strings.HasSuffix(trimmed, fence) {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, fence))
	}
	return trimmed
}

// RemoveComments strips // line comments and /* block */ comments that sit
// outside string literals, double- or single-quoted. An unterminated block comment runs to the end.
func RemoveComments(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '"':
			end := stringEnd(text, i)
			b.WriteString(text[i:end])
			i = end - 1
		case c == '\'' && singleQuoteEnd(text, i) > i:
			end := singleQuoteEnd(text, i)
			b.WriteString(text[i : end+1])
			i = end
		case c == '/' && i+1 < len(text) && text[i+1] == '/':
			nl := strings.IndexByte(text[i:], '\n')
			if nl < 0 {
				return strings.TrimSpace(b.String())
			}
			i += nl - 1
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				return strings.TrimSpace(b.String())
			}
			i += end + 3
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// RemoveTrailingSeparators drops commas that directly precede a closing
// brace or bracket, ignoring whitespace in between.
func RemoveTrailingSeparators(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '"':
			end := stringEnd(text, i)
			b.WriteString(text[i:end])
			i = end - 1
		case ',':
			next := skipSpace(text, i+1)
			if next < len(text) && (text[next] == '}' || text[next] == ']') {
				continue
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// RemoveLeadingSeparators drops commas that directly follow an opening
// brace or bracket, ignoring whitespace in between.
func RemoveLeadingSeparators(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '"':
			end := stringEnd(text, i)
			b.WriteString(text[i:end])
			i = end - 1
		case '{', '[':
			b.WriteByte(c)
			for {
				next := skipSpace(text, i+1)
				if next < len(text) && text[next] == ',' {
					i = next
					continue
				}
				break
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// DropDanglingKeys removes key-only entries ("key": with no value) that sit
// directly before a closing brace or bracket, together with the separator
// that introduced them. These are left behind by truncated generation.
func DropDanglingKeys(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '"' {
			b.WriteByte(c)
			continue
		}
		end := stringEnd(text, i)
		colon := skipSpace(text, end)
		if colon < len(text) && text[colon] == ':' {
			after := skipSpace(text, colon+1)
			if after < len(text) && (text[after] == '}' || text[after] == ']') {
				trimDanglingSeparator(&b)
				i = after - 1
				continue
			}
		}
		b.WriteString(text[i:end])
		i = end - 1
	}
	return b.String()
}

func trimDanglingSeparator(b *strings.Builder) {
	kept := strings.TrimRightFunc(b.String(), unicode.IsSpace)
	kept = strings.TrimSuffix(kept, ",")
	b.Reset()
	b.WriteString(kept)
}

// NormalizeQuotes rewrites single-quoted strings outside double-quoted
// literals into double-quoted JSON strings, escaping as needed.
func NormalizeQuotes(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '"':
			end := stringEnd(text, i)
			b.WriteString(text[i:end])
			i = end - 1
		case '\'':
			end := singleQuoteEnd(text, i)
			if end < 0 {
				b.WriteByte(c)
				continue
			}
			b.WriteString(requote(text[i+1 : end]))
			i = end
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// singleQuoteEnd returns the index of the quote closing the one at start, or -1.
func singleQuoteEnd(text string, start int) int {
	for i := start + 1; i < len(text); i++ {
		switch text[i] {
		case '\\':
			i++
		case '\'':
			return i
		case '\n':
			return -1
		}
	}
	return -1
}

func requote(inner string) string {
	var b strings.Builder
	b.Grow(len(inner) + 2)
	b.WriteByte('"')
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		switch {
		case c == '\\' && i+1 < len(inner) && inner[i+1] == '\'':
			b.WriteByte('\'')
			i++
		case c == '\\' && i+1 < len(inner):
			b.WriteByte(c)
			b.WriteByte(inner[i+1])
			i++
		case c == '"':
			b.WriteString(`\"`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// stringEnd returns the index just past the double-quoted literal starting
// at start. Unterminated literals run to the end of text.
func stringEnd(text string, start int) int {
	for i := start + 1; i < len(text); i++ {
		switch text[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		}
	}
	return len(text)
}

func skipSpace(text string, i int) int {
	for i < len(text) && (text[i] == ' ' || text[i] == '\t' || text[i] == '\n' || text[i] == '\r') {
		i++
	}
	return i
}
