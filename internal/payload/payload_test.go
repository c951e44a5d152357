package payload

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStripFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"leading whitespace", "  \n```json\n{\"a\":1}\n```\n  ", `{"a":1}`},
		{"unterminated fence", "```json\n{\"a\":1}", `{"a":1}`},
		{"no fence trailing text", `{"a":1}`, `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripFences(tc.in); got != tc.want {
				t.Fatalf("StripFences(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestExtractDecodesFencedObject(t *testing.T) {
	type labTest struct {
		Name string `json:"name"`
		Flag string `json:"flag"`
	}
	type report struct {
		Tests []labTest `json:"tests"`
	}

	var got report
	text := "```json\n{\"tests\":[{\"name\":\"HbA1c\",\"flag\":\"HIGH\"}]}\n```"
	if err := Extract(text, &got); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	want := report{Tests: []labTest{{Name: "HbA1c", Flag: "HIGH"}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("decoded value mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractPreservesRawOnFailure(t *testing.T) {
	raw := "I'm sorry, I can't produce JSON for that."
	var v map[string]any
	err := Extract(raw, &v)
	if err == nil {
		t.Fatal("expected parse error")
	}

	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if perr.Raw != raw {
		t.Fatalf("raw text not preserved: %q", perr.Raw)
	}
}

func TestExtractArray(t *testing.T) {
	var codes []struct {
		Code string `json:"code"`
	}
	text := "```json\n[{\"code\":\"E11.9\"},{\"code\":\"I10\"}]\n```"
	if err := Extract(text, &codes); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(codes) != 2 || codes[0].Code != "E11.9" {
		t.Fatalf("unexpected decode: %+v", codes)
	}
}
