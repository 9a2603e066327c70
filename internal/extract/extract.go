package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Policy selects how much repair is attempted before parsing.
type Policy int

const (
	// Simple strips a fence and parses strictly.
	Simple Policy = iota
	// Repair runs the full repair chain and the brace-span fallback.
	Repair
)

func (p Policy) String() string {
	switch p {
	case Simple:
		return "simple"
	case Repair:
		return "repair"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Result is one extraction attempt. Text is the candidate that was parsed
// (or the last candidate tried when nothing parsed).
type Result struct {
	Text   string
	Object map[string]any
}

// Unrecoverable reports whether extraction produced the empty sentinel object.
func (r Result) Unrecoverable() bool {
	return len(r.Object) == 0
}

// Decode unmarshals the recovered text into target.
func (r Result) Decode(target any) error {
	if r.Unrecoverable() {
		return fmt.Errorf("decode: unrecoverable output (snippet: %s)", Snippet(r.Text))
	}
	if err := json.Unmarshal([]byte(r.Text), target); err != nil {
		return fmt.Errorf("decode: %w (snippet: %s)", err, Snippet(r.Text))
	}
	return nil
}

// Pass is a single deterministic text transform in the repair chain.
type Pass struct {
	Name  string
	Apply func(string) string
}

// RepairPasses is the ordered repair chain. Each pass assumes the previous
// ones have already run.
var RepairPasses = []Pass{
	{Name: "strip_fence", Apply: StripFence},
	{Name: "remove_comments", Apply: RemoveComments},
	{Name: "remove_trailing_separators", Apply: RemoveTrailingSeparators},
	{Name: "remove_leading_separators", Apply: RemoveLeadingSeparators},
	{Name: "drop_dangling_keys", Apply: DropDanglingKeys},
	{Name: "normalize_quotes", Apply: NormalizeQuotes},
}

// Extract applies the policy to raw generator text.
func Extract(policy Policy, raw string) Result {
	switch policy {
	case Repair:
		return extractRepair(raw)
	default:
		return extractSimple(raw)
	}
}

func extractSimple(raw string) Result {
	text := StripFence(raw)
	if obj, ok := parseObject(text); ok {
		return Result{Text: text, Object: obj}
	}
	return unrecoverable(text)
}

func extractRepair(raw string) Result {
	text := strings.TrimSpace(raw)
	for _, pass := range RepairPasses {
		text = pass.Apply(text)
	}
	if obj, ok := parseObject(text); ok {
		return Result{Text: text, Object: obj}
	}
	for _, span := range braceSpans(text) {
		if obj, ok := parseObject(span); ok {
			return Result{Text: span, Object: obj}
		}
	}
	return unrecoverable(text)
}

func unrecoverable(text string) Result {
	return Result{Text: text, Object: map[string]any{}}
}

func parseObject(text string) (map[string]any, bool) {
	text = strings.TrimSpace(text)
	if text == "" || text[0] != '{' {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// braceSpans returns fallback candidates: the first balanced outermost
// {...} span, then the span from the first '{' to the last '}'.
func braceSpans(text string) []string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil
	}
	var spans []string
	if end := matchingBrace(text, start); end > start {
		spans = append(spans, text[start:end+1])
	}
	if last := strings.LastIndexByte(text, '}'); last > start {
		greedy := text[start : last+1]
		if len(spans) == 0 || spans[0] != greedy {
			spans = append(spans, greedy)
		}
	}
	return spans
}

// matchingBrace returns the index of the brace closing the one at start, or -1.
func matchingBrace(text string, start int) int {
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '"':
			i = stringEnd(text, i) - 1
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// Snippet condenses text to a single short line for diagnostics.
func Snippet(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "<empty>"
	}
	clean := strings.Join(strings.Fields(trimmed), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
