package narrate

import (
	"reflect"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain text unchanged",
			input:    "Hello world",
			expected: "Hello world",
		},
		{
			name:     "collapses whitespace runs",
			input:    "Hello   world\n\ttoday",
			expected: "Hello world today",
		},
		{
			name:     "strips unsafe characters",
			input:    "Hello <b>world</b> & friends",
			expected: "Hello b world b friends",
		},
		{
			name:     "keeps safe punctuation",
			input:    `He said, "wait... really?!"`,
			expected: `He said, "wait... really?!"`,
		},
		{
			name:     "trims leading and trailing space",
			input:    "  padded text  ",
			expected: "padded text",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "only unsafe characters",
			input:    "@#$%^&*",
			expected: "",
		},
		{
			name:     "unicode letters survive",
			input:    "café über naïve",
			expected: "café über naïve",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.input)
			if got != tt.expected {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("Hello, world - again!")
	texts := make([]string, len(tokens))
	for i, tok := range tokens {
		texts[i] = tok.Text
		if tok.Index != i {
			t.Errorf("token %d has Index %d", i, tok.Index)
		}
	}
	expected := []string{"Hello,", "world", "-", "again!"}
	if !reflect.DeepEqual(texts, expected) {
		t.Errorf("Tokenize texts = %v, want %v", texts, expected)
	}

	if tokens[0].IsPunctuation {
		t.Error("'Hello,' should not classify as punctuation")
	}
	if !tokens[2].IsPunctuation {
		t.Error("'-' should classify as punctuation")
	}
}

func TestTokenizeDeterministic(t *testing.T) {
	input := "The   quick\tbrown fox, jumps over... the lazy dog?!"
	first := Tokenize(input)
	for i := 0; i < 10; i++ {
		if got := Tokenize(input); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d produced different tokens: %v vs %v", i, got, first)
		}
	}
}

func TestTokenizeEmpty(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\t", "@#$"} {
		if got := Tokenize(input); len(got) != 0 {
			t.Errorf("Tokenize(%q) = %v, want empty", input, got)
		}
	}
}

func TestTokenOffsets(t *testing.T) {
	tokens := Tokenize("abcd efgh ijklmno x")
	offsets := tokenOffsets(tokens)
	expected := []int{0, 5, 10, 18}
	if !reflect.DeepEqual(offsets, expected) {
		t.Fatalf("tokenOffsets = %v, want %v", offsets, expected)
	}
}

func TestTokenAtOffset(t *testing.T) {
	offsets := []int{0, 5, 10, 18}

	tests := []struct {
		name     string
		offset   int
		expected int
	}{
		{"start of first token", 0, 0},
		{"inside first token", 3, 0},
		{"start of second token", 5, 1},
		{"inside third token", 12, 2},
		{"start of last token", 18, 3},
		{"past the end", 100, 3},
		{"negative offset", -4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tokenAtOffset(offsets, tt.offset); got != tt.expected {
				t.Errorf("tokenAtOffset(%d) = %d, want %d", tt.offset, got, tt.expected)
			}
		})
	}

	if got := tokenAtOffset(nil, 5); got != -1 {
		t.Errorf("tokenAtOffset with no offsets = %d, want -1", got)
	}
}

func TestTokenOffsetsCountRunes(t *testing.T) {
	tokens := Tokenize("café au lait")
	offsets := tokenOffsets(tokens)
	// "café" is 4 runes, so "au" starts at rune offset 5 even though the
	// byte offset differs.
	expected := []int{0, 5, 8}
	if !reflect.DeepEqual(offsets, expected) {
		t.Fatalf("tokenOffsets = %v, want %v", offsets, expected)
	}
}
