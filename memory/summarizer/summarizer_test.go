package summarizer

import (
	"strings"
	"testing"
)

func TestClean(t *testing.T) {
	plain := Cleaner{}
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "punctuation only", in: "?!... ,;", want: ""},
		{name: "urls html mentions hashtags", in: "Check https://example.com/x?y=1 <b>build</b> @bob #news www.foo.org", want: "check build"},
		{name: "emoticons", in: "great job :) but tests :-(", want: "great job smile tests sad"},
		{name: "diacritics", in: "Zürich café", want: "zurich cafe"},
		{name: "single letters and stopwords", in: "I think a b c is the answer", want: "think answer"},
		{name: "apostrophes", in: "Don't stop", want: "stop"},
		{name: "digits kept", in: "highs in the 70s", want: "highs 70s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := plain.Clean(tt.in); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleanStems(t *testing.T) {
	c := Cleaner{Stem: true}
	got := c.Clean("Running cities, cloudy highs")
	if want := "run citi cloudi high"; got != want {
		t.Errorf("Clean() = %q, want %q", got, want)
	}
}

func TestSummarize(t *testing.T) {
	s := New()
	got := s.Summarize(
		"Hey, what's the weather like in NYC today?",
		"Sure! The weather in New York City today is partly cloudy with highs in the 70s.",
	)

	user, assistant, ok := strings.Cut(got, "\n")
	if !ok {
		t.Fatalf("Summarize() = %q, want two lines", got)
	}
	if !strings.HasPrefix(user, "User: ") || !strings.HasPrefix(assistant, "Assistant: ") {
		t.Fatalf("Summarize() = %q, want User:/Assistant: prefixes", got)
	}
	for _, want := range []string{"weather", "nyc"} {
		if !strings.Contains(user, want) {
			t.Errorf("user line %q missing %q", user, want)
		}
	}
	for _, want := range []string{"weather", "york", "citi", "cloudi"} {
		if !strings.Contains(assistant, want) {
			t.Errorf("assistant line %q missing %q", assistant, want)
		}
	}
	for _, stop := range []string{" the ", " in "} {
		if strings.Contains(got+" ", stop) {
			t.Errorf("Summarize() = %q kept stopword %q", got, stop)
		}
	}

	if again := s.Summarize(
		"Hey, what's the weather like in NYC today?",
		"Sure! The weather in New York City today is partly cloudy with highs in the 70s.",
	); again != got {
		t.Errorf("Summarize() not deterministic: %q vs %q", got, again)
	}
}

func TestSummarizeEmptyInput(t *testing.T) {
	if got := New().Summarize("", ""); got != "User: \nAssistant: " {
		t.Errorf("Summarize(\"\", \"\") = %q", got)
	}
}
