package llm

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		wantChars int
		truncated bool
	}{
		{name: "short_text_untouched", input: "Invoice 1", wantChars: 9},
		{name: "exactly_at_budget", input: strings.Repeat("a", MaxPromptChars), wantChars: MaxPromptChars},
		{name: "twenty_thousand_chars", input: strings.Repeat("x", 20000), wantChars: MaxPromptChars, truncated: true},
		{name: "multibyte_counted_as_chars", input: strings.Repeat("é", MaxPromptChars+5), wantChars: MaxPromptChars, truncated: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, cut := Truncate(tc.input)
			assert.Equal(t, tc.truncated, cut)
			if !tc.truncated {
				assert.Equal(t, tc.input, out)
				return
			}
			assert.True(t, strings.HasSuffix(out, TruncationMarker))
			kept := strings.TrimSuffix(out, TruncationMarker)
			assert.Equal(t, tc.wantChars, utf8.RuneCountInString(kept))
			assert.True(t, strings.HasPrefix(tc.input, kept))
		})
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	p := BuildSystemPrompt()

	for _, want := range []string{
		"purchase, sale, return, compra, gasto",
		"use 'gasto'",
		"'N/A' or 'unknown'",
		"YYYY-MM-DD",
		"Return ONLY a JSON object",
	} {
		assert.Contains(t, p, want)
	}
}

func TestBuildUserPrompt_AppliesTruncation(t *testing.T) {
	out := BuildUserPrompt(strings.Repeat("z", 20000))
	assert.Equal(t, MaxPromptChars+utf8.RuneCountInString(TruncationMarker), utf8.RuneCountInString(out))
}
