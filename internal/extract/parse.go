package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ai-memoryd/memoryd/internal/model"
)

// llmTimeout bounds a single extraction call.
const llmTimeout = 30 * time.Second

// rawExtraction mirrors the prompted JSON shape before domain conversion.
type rawExtraction struct {
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	Topics    []string `json:"topics"`
	Subjects  []string `json:"subjects"`
	Intent    string   `json:"intent"`
	Questions []string `json:"questions"`
}

// parseExtraction runs the fence-strip -> struct-unmarshal -> regex-repair
// cascade against a raw LLM response. Never assumes a clean JSON reply.
func parseExtraction(raw string) (model.Extraction, error) {
	cleaned := stripCodeFence(strings.TrimSpace(raw))
	if cleaned == "" {
		return model.Extraction{}, fmt.Errorf("extract: empty response")
	}

	var r rawExtraction
	if err := json.Unmarshal([]byte(cleaned), &r); err == nil {
		return toExtraction(r), nil
	}

	if repaired, ok := repairObject(cleaned); ok {
		var r2 rawExtraction
		if err := json.Unmarshal([]byte(repaired), &r2); err == nil {
			return toExtraction(r2), nil
		}
	}

	return model.Extraction{}, fmt.Errorf("extract: failed to parse LLM response")
}

func toExtraction(r rawExtraction) model.Extraction {
	return model.Extraction{
		Title:     strings.TrimSpace(r.Title),
		Summary:   strings.TrimSpace(r.Summary),
		Topics:    trimAll(r.Topics),
		Subjects:  trimAll(r.Subjects),
		Intent:    strings.TrimSpace(r.Intent),
		Questions: trimAll(r.Questions),
	}
}

func trimAll(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// stripCodeFence removes a leading/trailing markdown code block wrapper.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 0 {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// objectPattern matches the outermost-looking JSON object in a blob that
// otherwise failed to parse (stray prose before/after the object) so a
// single regex extraction can recover it. The extracted text is not
// otherwise repaired: a trailing comma inside it still fails to parse.
var objectPattern = regexp.MustCompile(`(?s)\{.*\}`)

func repairObject(s string) (string, bool) {
	m := objectPattern.FindString(s)
	if m == "" {
		return "", false
	}
	return m, true
}
