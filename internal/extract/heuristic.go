package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/ai-memoryd/memoryd/internal/model"
)

// heuristicExtract builds a complete Extraction without any LLM call:
// title from the first salient line, topics from up to 10 distinct
// capitalized words, summary from the first 200 bytes. Used whenever the
// LLM path times out, errors, or returns something unparseable.
func heuristicExtract(text string) model.Extraction {
	title := firstSalientLine(text)
	summary := text
	if len(summary) > 200 {
		summary = summary[:200]
	}
	topics := capitalizedNGrams(text)

	return model.Extraction{
		Title:     title,
		Summary:   strings.TrimSpace(summary),
		Topics:    topics,
		Subjects:  topics,
		Intent:    "",
		Questions: extractQuestions(text),
		Heuristic: true,
	}
}

func firstSalientLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > 120 {
			line = line[:120]
		}
		return line
	}
	return "untitled"
}

var capitalizedWord = regexp.MustCompile(`\b[A-Z][A-Za-z0-9_-]{2,}\b`)

// capitalizedNGrams collects distinct capitalized tokens (proper nouns,
// identifiers, acronyms) as a cheap topic signal when no LLM is available.
func capitalizedNGrams(text string) []string {
	matches := capitalizedWord.FindAllString(text, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		key := strings.ToLower(m)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
		if len(out) >= 10 {
			break
		}
	}
	return out
}

func extractQuestions(text string) []string {
	var out []string
	for _, sentence := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '\n'
	}) {
		s := strings.TrimSpace(sentence)
		if strings.HasSuffix(s, "?") && len(s) > 3 {
			out = append(out, s)
		}
	}
	return out
}

// hasLetter reports whether s contains at least one letter rune.
func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
