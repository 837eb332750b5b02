// Package llm - util.go provides shared cleanup for model output that reaches users.
package llm

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	reasoningBlockRe = regexp.MustCompile(`(?is)<think>.*?</think>|<thinking>.*?</thinking>|<reasoning>.*?</reasoning>`)
	danglingCloseRe  = regexp.MustCompile(`(?is)^.*</(?:think|thinking|reasoning)>`)
	danglingOpenRe   = regexp.MustCompile(`(?is)<(?:think|thinking|reasoning)>.*$`)
	emphasisRe       = regexp.MustCompile(`\*\*|\*|__`)
	parentheticalRe  = regexp.MustCompile(`\([^()]*\)`)
	spaceRunRe       = regexp.MustCompile(`[ \t]+`)
	spaceBeforePunct = regexp.MustCompile(`[ \t]+([,.;:!?])`)
)

const quoteChars = "\"'“”‘’`"

// CleanCompletion strips reasoning blocks, surrounding quotes, markdown emphasis
// and parenthetical asides from model output, then normalizes whitespace.
// Applying it twice yields the same result as applying it once.
func CleanCompletion(text string) string {
	// every pass only removes text, so the loop reaches a fixpoint
	for {
		next := cleanPass(text)
		if next == text {
			return next
		}
		text = next
	}
}

func cleanPass(text string) string {
	text = reasoningBlockRe.ReplaceAllString(text, "")
	// a close tag without its opener means everything before it was reasoning
	text = danglingCloseRe.ReplaceAllString(text, "")
	text = danglingOpenRe.ReplaceAllString(text, "")

	text = strings.TrimSpace(text)
	text = strings.Trim(text, quoteChars)
	text = emphasisRe.ReplaceAllString(text, "")
	text = parentheticalRe.ReplaceAllString(text, "")
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = spaceBeforePunct.ReplaceAllString(text, "$1")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")

	return strings.Trim(strings.TrimSpace(text), quoteChars)
}

// TruncateOnWord shortens text to at most limit characters, cutting at the last
// word boundary so no word is split.
func TruncateOnWord(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:limit])
	if idx := strings.LastIndexAny(cut, " \n"); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(strings.TrimSpace(cut), ",;:-")
}
