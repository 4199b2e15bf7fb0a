// Package extract turns raw captured text into a structured Extraction
// (title, summary, topics, subjects, intent, questions), backed by an
// external LLM with a heuristic fallback that never fails.
package extract

import (
	"context"
	"strings"

	"github.com/ai-memoryd/memoryd/internal/model"
)

// maxInputChars bounds the text sent to the LLM prompt.
const maxInputChars = 3000

// Client is the black-box chat call the Extractor prompts against. It is
// satisfied by internal/llmclient.Client.
type Client interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Extractor maps text to an Extraction. It never returns an error: any
// failure downgrades to the heuristic path with Heuristic=true set.
type Extractor struct {
	client   Client
	denylist *Denylist
}

// New builds an Extractor. client may be nil, in which case every call
// uses the heuristic path (useful for tests and for a daemon started
// without LLM credentials).
func New(client Client) *Extractor {
	return &Extractor{client: client, denylist: DefaultDenylist()}
}

// Extract runs the LLM extraction prompt and falls back to heuristics on
// any failure (timeout, transport error, unparseable response).
func (e *Extractor) Extract(ctx context.Context, text string, source model.SourceType) model.Extraction {
	truncated := text
	if len(truncated) > maxInputChars {
		truncated = truncated[:maxInputChars]
	}

	if e.client != nil {
		if ex, ok := e.extractViaLLM(ctx, truncated, source); ok {
			return e.clean(ex)
		}
	}
	return e.clean(heuristicExtract(truncated))
}

func (e *Extractor) extractViaLLM(ctx context.Context, text string, source model.SourceType) (model.Extraction, bool) {
	ctx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()

	raw, err := e.client.Complete(ctx, extractionSystemPrompt, buildExtractionPrompt(text, source))
	if err != nil {
		return model.Extraction{}, false
	}
	ex, err := parseExtraction(raw)
	if err != nil {
		return model.Extraction{}, false
	}
	return ex, true
}

// clean applies the shared denylist/stopword/length filtering to topics
// and subjects regardless of which path produced the Extraction.
func (e *Extractor) clean(ex model.Extraction) model.Extraction {
	ex.Topics = e.denylist.Filter(ex.Topics)
	ex.Subjects = e.denylist.Filter(ex.Subjects)
	return ex
}

func buildExtractionPrompt(text string, source model.SourceType) string {
	var b strings.Builder
	b.WriteString("Source type: ")
	b.WriteString(string(source))
	b.WriteString("\n\nContent:\n")
	b.WriteString(text)
	return b.String()
}

const extractionSystemPrompt = `You extract structured metadata from a single piece of captured text.
Respond with a single JSON object with exactly these fields:
{"title": "...", "summary": "...", "topics": ["..."], "subjects": ["..."], "intent": "...", "questions": ["..."]}
Respond with JSON only, no prose, no markdown fences.`
