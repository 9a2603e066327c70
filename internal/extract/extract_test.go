package extract_test

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"docpipe/internal/extract"
)

func TestCleanJSONPassesThroughBothPolicies(t *testing.T) {
	inputs := []string{
		`{"x": true}`,
		`{"a": 1, "b": [1, 2, {"c": null}], "d": "text, with ] and } inside"}`,
		`{"url": "http://example.com/a//b", "note": "it's /* not */ a comment", "s": "trailing  "}`,
		`{"nested": {"k": "v\"quoted\""}, "empty": {}, "list": []}`,
	}
	for _, input := range inputs {
		var direct map[string]any
		if err := json.Unmarshal([]byte(input), &direct); err != nil {
			t.Fatalf("fixture is not valid JSON: %v", err)
		}
		for _, policy := range []extract.Policy{extract.Simple, extract.Repair} {
			result := extract.Extract(policy, input)
			if result.Unrecoverable() {
				t.Fatalf("%s: unexpected sentinel for %s", policy, input)
			}
			if !reflect.DeepEqual(result.Object, direct) {
				t.Fatalf("%s: got %#v, want %#v", policy, result.Object, direct)
			}
		}
	}
}

func TestFenceStripping(t *testing.T) {
	raw := "```json\n{\"x\":true}\n```"
	for _, policy := range []extract.Policy{extract.Simple, extract.Repair} {
		result := extract.Extract(policy, raw)
		if result.Text != `{"x":true}` {
			t.Fatalf("%s: unexpected text %q", policy, result.Text)
		}
		if result.Object["x"] != true {
			t.Fatalf("%s: unexpected object %#v", policy, result.Object)
		}
	}
}

func TestUntaggedFence(t *testing.T) {
	result := extract.Extract(extract.Simple, "```\n{\"a\": 2}\n```")
	if result.Object["a"] != float64(2) {
		t.Fatalf("unexpected object %#v", result.Object)
	}
}

func TestTrailingCommaRepair(t *testing.T) {
	result := extract.Extract(extract.Repair, `{"a": 1,}`)
	if result.Unrecoverable() {
		t.Fatal("expected repair to succeed")
	}
	if !reflect.DeepEqual(result.Object, map[string]any{"a": float64(1)}) {
		t.Fatalf("unexpected object %#v", result.Object)
	}
	if simple := extract.Extract(extract.Simple, `{"a": 1,}`); !simple.Unrecoverable() {
		t.Fatalf("simple policy should not repair, got %#v", simple.Object)
	}
}

func TestUnrecoverableInput(t *testing.T) {
	for _, raw := range []string{"", "no structure here at all", "[1, 2, 3]", "}{"} {
		for _, policy := range []extract.Policy{extract.Simple, extract.Repair} {
			result := extract.Extract(policy, raw)
			if !result.Unrecoverable() {
				t.Fatalf("%s: expected sentinel for %q, got %#v", policy, raw, result.Object)
			}
			if result.Object == nil {
				t.Fatalf("%s: sentinel should be an empty object, not nil", policy)
			}
		}
	}
}

func TestRepairRecoversMessyOutput(t *testing.T) {
	raw := "```json\n" + `{
  // customer block
  "customers": [
    {"name": 'Mario Rossi', "city": "Roma",},
  ],
  /* truncated below */
  "tickets": [,],
  "policies": [{"number": "P-1", "premium": }],
}` + "\n```"
	result := extract.Extract(extract.Repair, raw)
	if result.Unrecoverable() {
		t.Fatalf("expected recovery, text was %q", result.Text)
	}
	customers, ok := result.Object["customers"].([]any)
	if !ok || len(customers) != 1 {
		t.Fatalf("unexpected customers %#v", result.Object["customers"])
	}
	first := customers[0].(map[string]any)
	if first["name"] != "Mario Rossi" {
		t.Fatalf("unexpected name %#v", first["name"])
	}
	policies := result.Object["policies"].([]any)
	if got := policies[0].(map[string]any); len(got) != 1 || got["number"] != "P-1" {
		t.Fatalf("expected dangling key dropped, got %#v", got)
	}
}

func TestRepairKeepsURLsInSingleQuotedValues(t *testing.T) {
	result := extract.Extract(extract.Repair, `{'url': 'http://example.com', 'success': true}`)
	if result.Unrecoverable() {
		t.Fatalf("expected recovery, text was %q", result.Text)
	}
	if result.Object["url"] != "http://example.com" || result.Object["success"] != true {
		t.Fatalf("unexpected object %#v", result.Object)
	}
}

func TestRepairFallsBackToBraceSpan(t *testing.T) {
	raw := `Here is the mapping you asked for: {"customers": [], "note": "done"} Let me know if you need more.`
	result := extract.Extract(extract.Repair, raw)
	if result.Unrecoverable() {
		t.Fatal("expected brace span fallback to succeed")
	}
	if result.Object["note"] != "done" {
		t.Fatalf("unexpected object %#v", result.Object)
	}
	if !strings.HasPrefix(result.Text, "{") || !strings.HasSuffix(result.Text, "}") {
		t.Fatalf("expected text to be the brace span, got %q", result.Text)
	}
}

func TestRepairUsesFirstOutermostSpan(t *testing.T) {
	raw := `first {"a": 1} then {"b": 2}`
	result := extract.Extract(extract.Repair, raw)
	if !reflect.DeepEqual(result.Object, map[string]any{"a": float64(1)}) {
		t.Fatalf("expected first span, got %#v", result.Object)
	}
}

func TestDecode(t *testing.T) {
	result := extract.Extract(extract.Simple, `{"success": true, "count": 3}`)
	var out struct {
		Success bool `json:"success"`
		Count   int  `json:"count"`
	}
	if err := result.Decode(&out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !out.Success || out.Count != 3 {
		t.Fatalf("unexpected decode %+v", out)
	}
	if err := extract.Extract(extract.Simple, "nope").Decode(&out); err == nil {
		t.Fatal("expected decode of sentinel to fail")
	}
}

func TestSnippet(t *testing.T) {
	if got := extract.Snippet("  a\n\tb  "); got != "a b" {
		t.Fatalf("unexpected snippet %q", got)
	}
	if got := extract.Snippet(strings.Repeat("x", 500)); len(got) != 163 {
		t.Fatalf("expected truncated snippet, got length %d", len(got))
	}
}
