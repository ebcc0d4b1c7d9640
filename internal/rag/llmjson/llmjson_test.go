package llmjson

import "testing"

func TestStripThinkBlocks(t *testing.T) {
	cases := map[string]string{
		"<think>reasoning</think>answer":          "answer",
		"before <think>a</think>mid<think>b</think> after": "before mid after",
		"<think>never closed":                     "",
		"no blocks here":                          "no blocks here",
	}
	for in, want := range cases {
		if got := StripThinkBlocks(in); got != want {
			t.Fatalf("StripThinkBlocks(%q): want=%q got=%q", in, want, got)
		}
	}
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\": 1}\n```":     `{"a": 1}`,
		"```\n{\"a\": 1}\n```":         `{"a": 1}`,
		"{\"a\": 1}":                   `{"a": 1}`,
		"<think>x</think>```json\n{}\n```": "{}",
	}
	for in, want := range cases {
		if got := StripFences(in); got != want {
			t.Fatalf("StripFences(%q): want=%q got=%q", in, want, got)
		}
	}
}

func TestFirstObjectBalancedScan(t *testing.T) {
	obj, err := FirstObject(`Sure, here you go: {"type": "list", "entities": ["task"]} hope that helps`)
	if err != nil {
		t.Fatalf("FirstObject: %v", err)
	}
	if obj["type"] != "list" {
		t.Fatalf("type: %v", obj["type"])
	}
}

func TestFirstObjectNestedAndStrings(t *testing.T) {
	obj, err := FirstObject(`{"name": "create_task", "arguments": {"title": "A {weird} \"title\""}}`)
	if err != nil {
		t.Fatalf("FirstObject: %v", err)
	}
	args, ok := obj["arguments"].(map[string]any)
	if !ok {
		t.Fatalf("arguments: %v", obj["arguments"])
	}
	if args["title"] != `A {weird} "title"` {
		t.Fatalf("title: %v", args["title"])
	}
}

func TestFirstObjectTrimsTrailingBraces(t *testing.T) {
	obj, err := FirstObject(`{"a": "b"}}}`)
	if err != nil {
		t.Fatalf("FirstObject: %v", err)
	}
	if obj["a"] != "b" {
		t.Fatalf("a: %v", obj["a"])
	}
}

func TestFirstObjectErrors(t *testing.T) {
	for _, in := range []string{"", "no json at all", "{broken", "[1, 2, 3]"} {
		if _, err := FirstObject(in); err == nil {
			t.Fatalf("FirstObject(%q): want error", in)
		}
	}
}

func TestStringField(t *testing.T) {
	obj := map[string]any{"a": "  x  ", "b": 3}
	if got := StringField(obj, "a"); got != "x" {
		t.Fatalf("a: %q", got)
	}
	if got := StringField(obj, "b"); got != "" {
		t.Fatalf("non-string: %q", got)
	}
	if got := StringField(obj, "missing"); got != "" {
		t.Fatalf("missing: %q", got)
	}
}

func TestStringSliceField(t *testing.T) {
	obj := map[string]any{"items": []any{"a", 2, " b ", ""}}
	got := StringSliceField(obj, "items")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("items: %v", got)
	}
	if StringSliceField(obj, "missing") != nil {
		t.Fatalf("missing must be nil")
	}
}
