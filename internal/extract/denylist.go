package extract

import (
	_ "embed"
	"strings"
	"unicode"

	"github.com/coregx/ahocorasick"
	"github.com/orsinium-labs/stopwords"
	"gopkg.in/yaml.v3"
)

//go:embed denylist.yaml
var denylistYAML []byte

// Denylist filters prompt-template artifacts and generic code-shape noise
// out of LLM-produced topic/subject lists, plus English/French stopwords.
type Denylist struct {
	ac *ahocorasick.Automaton
}

// DefaultDenylist loads the embedded word list and builds the matcher.
// Panics only on a malformed embedded asset, which would be a build-time
// defect, not a runtime one.
func DefaultDenylist() *Denylist {
	var words []string
	if err := yaml.Unmarshal(denylistYAML, &words); err != nil {
		panic("extract: malformed denylist.yaml: " + err.Error())
	}
	automaton, err := ahocorasick.NewBuilder().
		AddStrings(normalizeAll(words)).
		SetMatchKind(ahocorasick.LeftmostLongest).
		Build()
	if err != nil {
		panic("extract: building denylist automaton: " + err.Error())
	}
	return &Denylist{ac: automaton}
}

// Filter drops tokens that are denylisted, stopwords, shorter than 3
// characters, contain no letter at all, or look like code punctuation
// rather than a topic word.
func (d *Denylist) Filter(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if len(t) < 3 || !hasLetter(t) {
			continue
		}
		if isCodeShape(t) {
			continue
		}
		if d.isDenylisted(t) {
			continue
		}
		if isStopword(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (d *Denylist) isDenylisted(token string) bool {
	norm := normalize(token)
	matches := d.ac.FindAllOverlapping([]byte(norm))
	for _, m := range matches {
		if m.End-m.Start == len(norm) {
			return true
		}
	}
	return false
}

func isStopword(token string) bool {
	lower := strings.ToLower(token)
	return stopwords.EN.In(lower) || stopwords.FR.In(lower)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = normalize(s)
	}
	return out
}

// isCodeShape reports whether a token looks like generic code punctuation
// (identifiers with brackets, braces, or symbols) rather than a topic
// word; Denylist.Filter uses it to drop such tokens.
func isCodeShape(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return true
		}
	}
	return false
}
