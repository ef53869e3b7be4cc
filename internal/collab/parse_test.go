package collab

import (
	"errors"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bare object",
			in:   `{"a": 1}`,
			want: `{"a": 1}`,
		},
		{
			name: "markdown fence",
			in:   "```json\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "surrounding prose",
			in:   `Sure! Here is the result: {"a": {"b": 2}} hope that helps`,
			want: `{"a": {"b": 2}}`,
		},
		{
			name: "braces inside strings",
			in:   `{"msg": "use {curly} braces", "n": 1}`,
			want: `{"msg": "use {curly} braces", "n": 1}`,
		},
		{
			name: "escaped quotes",
			in:   `{"msg": "she said \"hi {\" loudly"}`,
			want: `{"msg": "she said \"hi {\" loudly"}`,
		},
		{
			name: "no object",
			in:   `just prose, no json here`,
			want: "",
		},
		{
			name: "unterminated object",
			in:   `{"a": 1`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.in); got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeResponseWrapsMalformed(t *testing.T) {
	var out struct {
		A int `json:"a"`
	}

	if err := decodeResponse(`prefix {"a": 7} suffix`, &out); err != nil {
		t.Fatalf("decodeResponse: %v", err)
	}
	if out.A != 7 {
		t.Errorf("a = %d, want 7", out.A)
	}

	for _, bad := range []string{"no json", `{"a": "not a number"}`} {
		err := decodeResponse(bad, &out)
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("decodeResponse(%q) error = %v, want ErrMalformedResponse", bad, err)
		}
	}
}

func TestNormalizeCommandType(t *testing.T) {
	valid := map[string]string{
		"create_or_destroy": "create_or_destroy",
		"ADD/DELETE":        "create_or_destroy",
		"transform":         "transform",
		"Pos/Rotate":        "transform",
		"complex_or_vague":  "complex_or_vague",
		"Vague/Complex":     "complex_or_vague",
	}
	for in, want := range valid {
		got, err := normalizeCommandType(in)
		if err != nil {
			t.Errorf("normalizeCommandType(%q): %v", in, err)
			continue
		}
		if string(got) != want {
			t.Errorf("normalizeCommandType(%q) = %q, want %q", in, got, want)
		}
	}

	if _, err := normalizeCommandType("teleport"); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("unknown type error = %v, want ErrMalformedResponse", err)
	}
}
