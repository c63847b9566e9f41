package jsonutil

import (
	"errors"
	"testing"
)

func TestStripMarkdownFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"no fence", "  {\"a\":1}  ", `{"a":1}`},
		{"unterminated", "```json\n{\"a\":1}", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripMarkdownFences(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeObject_Prose(t *testing.T) {
	obj, err := DecodeObject("Here you go:\n{\"result\": {\"x\": 1}} hope it helps")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := obj["result"]; !ok {
		t.Error("expected result key")
	}
}

func TestDecodeObject_NoJSON(t *testing.T) {
	_, err := DecodeObject("I'm sorry, I can't help with that.")
	if !errors.Is(err, ErrNoJSON) {
		t.Fatalf("expected ErrNoJSON, got %v", err)
	}
}

func TestDecodeObject_Invalid(t *testing.T) {
	if _, err := DecodeObject(`{"result": }`); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestDecodeObject_Null(t *testing.T) {
	if _, err := DecodeObject("null"); err == nil {
		t.Fatal("expected error for null document")
	}
}

func TestLookup(t *testing.T) {
	obj, err := DecodeObject(`{"proposal":{"bestColors":{"c1":{"hex":"#AABBCC"}}}}`)
	if err != nil {
		t.Fatal(err)
	}
	v, ok := Lookup(obj, "proposal.bestColors.c1.hex")
	if !ok || v != "#AABBCC" {
		t.Errorf("got %v, %v", v, ok)
	}
	if _, ok := Lookup(obj, "proposal.makeup"); ok {
		t.Error("expected missing path")
	}
	if _, ok := Lookup(obj, "proposal.bestColors.c1.hex.deeper"); ok {
		t.Error("expected non-object traversal to fail")
	}
}

func TestParseJSON(t *testing.T) {
	type doc struct {
		Name string `json:"name"`
	}
	got, err := ParseJSON[doc]("```json\n{\"name\":\"bob\"}\n```")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "bob" {
		t.Errorf("got %q", got.Name)
	}
}
