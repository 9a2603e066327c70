package extract

import "testing"

func TestPasses(t *testing.T) {
	cases := []struct {
		name string
		pass func(string) string
		in   string
		want string
	}{
		{"fence tagged", StripFence, "```json\n{}\n```", "{}"},
		{"fence untagged", StripFence, "```\n{}\n```", "{}"},
		{"fence absent", StripFence, "  {\"a\":1}  ", "{\"a\":1}"},
		{"fence trailing only", StripFence, "{}\n```", "{}"},
		{"line comment", RemoveComments, "{\"a\": 1 // one\n}", "{\"a\": 1 \n}"},
		{"block comment", RemoveComments, "{/* c */\"a\": 1}", "{\"a\": 1}"},
		{"comment marker in string", RemoveComments, `{"u": "http://x"}`, `{"u": "http://x"}`},
		{"comment marker in single-quoted string", RemoveComments, `{'u': 'http://x'} // tail`, `{'u': 'http://x'}`},
		{"block marker in single-quoted string", RemoveComments, `{'p': '/*.md'}`, `{'p': '/*.md'}`},
		{"trailing object", RemoveTrailingSeparators, `{"a": 1, }`, `{"a": 1 }`},
		{"trailing array", RemoveTrailingSeparators, "[1,2,\n]", "[1,2\n]"},
		{"trailing in string", RemoveTrailingSeparators, `{"a": ",}"}`, `{"a": ",}"}`},
		{"leading object", RemoveLeadingSeparators, `{, "a": 1}`, `{ "a": 1}`},
		{"leading array", RemoveLeadingSeparators, "[ ,, 1]", "[ 1]"},
		{"dangling key", DropDanglingKeys, `{"a": 1, "b": }`, `{"a": 1}`},
		{"dangling only key", DropDanglingKeys, "{\n  \"b\":\n}", "{}"},
		{"no dangling", DropDanglingKeys, `{"a": "b"}`, `{"a": "b"}`},
		{"single quotes", NormalizeQuotes, `{'a': 'it\'s "x"'}`, `{"a": "it's \"x\""}`},
		{"apostrophe in string", NormalizeQuotes, `{"a": "it's"}`, `{"a": "it's"}`},
	}
	for _, tc := range cases {
		if got := tc.pass(tc.in); got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestMatchingBraceSkipsStrings(t *testing.T) {
	text := `{"a": "}"} tail`
	if got := matchingBrace(text, 0); got != 9 {
		t.Fatalf("matchingBrace = %d, want 9", got)
	}
	if got := matchingBrace(`{"a": 1`, 0); got != -1 {
		t.Fatalf("expected -1 for unbalanced text, got %d", got)
	}
}
