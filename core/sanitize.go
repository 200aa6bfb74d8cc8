package pipeline

import (
	"regexp"
	"strings"
	"unicode"
)

// minPronounceableLength is the shortest sanitized sentence worth sending to
// synthesis.
const minPronounceableLength = 2

var (
	codeBlockPattern  = regexp.MustCompile("(?s)```.*?(```|$)")
	inlineCodePattern = regexp.MustCompile("`([^`]*)`")
	markdownLink      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	emphasisPattern   = regexp.MustCompile(`[*_~#]+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// sanitizeForSpeech strips formatting artifacts that read fine on screen but
// sound wrong when spoken: code blocks, markdown markup and emoji.
func sanitizeForSpeech(text string) string {
	text = codeBlockPattern.ReplaceAllString(text, "")
	text = inlineCodePattern.ReplaceAllString(text, "$1")
	text = markdownLink.ReplaceAllString(text, "$1")
	text = emphasisPattern.ReplaceAllString(text, "")
	text = stripEmoji(text)
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// pronounceable reports whether a sanitized sentence has enough speakable
// content to be worth synthesizing.
func pronounceable(text string) bool {
	text = strings.TrimSpace(text)
	if len([]rune(text)) < minPronounceableLength {
		return false
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func stripEmoji(text string) string {
	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range text {
		if isEmoji(r) {
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // pictographs, emoticons, symbols
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols and dingbats
		return true
	case r == 0xFE0F || r == 0x200D: // variation selector, zero-width joiner
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators
		return true
	}
	return false
}
