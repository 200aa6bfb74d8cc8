package pipeline

import "testing"

func TestSanitizeForSpeech(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "Hello there.", "Hello there."},
		{"code block dropped", "Run this:\n```go\nfmt.Println(1)\n```\nDone.", "Run this: Done."},
		{"unterminated code block dropped", "Here:\n```py\nprint(", "Here:"},
		{"inline code kept as text", "Use `go vet` before pushing.", "Use go vet before pushing."},
		{"link keeps label", "See [the docs](https://example.com) for more.", "See the docs for more."},
		{"emphasis stripped", "This is **very** _important_!", "This is very important!"},
		{"heading markers stripped", "## Summary", "Summary"},
		{"emoji stripped", "Nice work! \U0001F389\U0001F44D", "Nice work!"},
		{"whitespace collapsed", "too \t many\n\n spaces", "too many spaces"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := sanitizeForSpeech(c.in); got != c.want {
				t.Fatalf("sanitizeForSpeech(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}

func TestPronounceable(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"Hello there.", true},
		{"ok", true},
		{"42", true},
		{"", false},
		{".", false},
		{"!?", false},
		{" a ", false},
	}

	for _, c := range cases {
		if got := pronounceable(c.in); got != c.want {
			t.Fatalf("pronounceable(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
