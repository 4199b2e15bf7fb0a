package retrieve

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/ai-memoryd/memoryd/internal/model"
)

const (
	injectBudgetChars   = 8000
	sessionGapThreshold = 30 * time.Minute
	maxUserRules        = 20
	synthesisMaxAge     = 2 * time.Hour
	marker              = "system-reminder"
)

// cliPassthroughPattern matches a prompt that is really a direct CLI
// invocation (e.g. "ai threads --status ACTIVE"); the injector runs it
// and returns its stdout as the entire block instead of building sections.
var cliPassthroughPattern = regexp.MustCompile(`^ai\s+(status|threads?|bridges?|search|reindex|health|daemon|mode|help)(?:\s+.*)?$`)

// SessionInfo carries the caller-provided session identity used to decide
// whether this turn needs new-session onboarding.
type SessionInfo struct {
	SessionID string
	Now       time.Time
}

// BuildInjection assembles the ordered injection payload for prompt under
// sess, wraps it in the marker tag, and records the interaction on the
// heartbeat. cliBinary is the path used for CLI-in-prompt passthrough; if
// empty, passthrough is disabled.
func (r *Retriever) BuildInjection(ctx context.Context, prompt string, sess SessionInfo, cliBinary string) (string, error) {
	if cliBinary != "" {
		if m := cliPassthroughPattern.FindString(strings.TrimSpace(prompt)); m != "" {
			out, err := runCLIPassthrough(ctx, cliBinary, strings.TrimSpace(prompt))
			if err != nil {
				return "", err
			}
			return wrap(out), nil
		}
	}

	hb, err := r.store.GetHeartbeat()
	if err != nil {
		return "", fmt.Errorf("retrieve: loading heartbeat: %w", err)
	}

	promptEmbedding, err := r.embedder.Embed(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("retrieve: embedding prompt: %w", err)
	}

	focus, err := r.store.GetFocus()
	if err != nil {
		return "", fmt.Errorf("retrieve: loading focus: %w", err)
	}
	rules, err := r.store.GetUserRules()
	if err != nil {
		return "", fmt.Errorf("retrieve: loading user rules: %w", err)
	}
	active := r.store.ThreadsByStatus(model.StatusActive)
	ranked := Rank(promptEmbedding, active, focus)
	synthesis, _ := r.store.LatestSynthesis()
	subscribed := r.store.SubscribedSnapshots()

	// priority orders trimToBudget's whole-section drops — lower drops
	// first, independent of the section's position in the final rendered
	// payload. Heartbeat is never dropped, and relevance is only shrunk
	// entry by entry once the other sections are gone.
	var sections []section
	if isNewSession(hb, sess) {
		sections = append(sections, section{name: "onboarding", priority: 6, text: onboardingSection(hb, synthesis, prompt, active)})
	}
	if synthesis != nil && synthesis.Fresh(sess.Now, synthesisMaxAge) {
		sections = append(sections, section{name: "synthesis", priority: 5, text: synthesisSection(synthesis)})
	}
	if len(focus) > 0 {
		sections = append(sections, section{name: "focus", priority: 4, text: focusSection(focus)})
	}
	if len(rules) > 0 {
		sections = append(sections, section{name: "rules", priority: 1, text: rulesSection(rules)})
	}
	if len(ranked) > 0 {
		sections = append(sections, relevanceSection(ranked))
	}
	if len(subscribed) > 0 {
		sections = append(sections, section{name: "shared", priority: 2, text: sharedSection(subscribed)})
	}
	sections = append(sections, section{name: "heartbeat", priority: 7, text: heartbeatSection(hb)})

	body := trimToBudget(sections, injectBudgetChars)

	var currentID, currentTitle string
	if len(ranked) > 0 {
		currentID, currentTitle = ranked[0].Thread.ID, ranked[0].Thread.Title
	}
	hb.LastSessionID = sess.SessionID
	hb.LastInteractionAt = sess.Now
	hb.LastInteractionBeat = hb.Beat
	if currentID != "" {
		hb.LastThreadID = currentID
		hb.LastThreadTitle = currentTitle
	}
	if err := r.store.PutHeartbeat(hb); err != nil {
		return "", fmt.Errorf("retrieve: recording interaction: %w", err)
	}

	return wrap(body), nil
}

func isNewSession(hb *model.Heartbeat, sess SessionInfo) bool {
	if hb.LastSessionID == "" || hb.LastSessionID != sess.SessionID {
		return true
	}
	return sess.Now.Sub(hb.LastInteractionAt) > sessionGapThreshold
}

func onboardingSection(hb *model.Heartbeat, synthesis *model.Synthesis, prompt string, active []*model.Thread) string {
	var b strings.Builder
	b.WriteString("## Session start\n")
	if hb.LastThreadID != "" {
		fmt.Fprintf(&b, "Last active thread: %s\n", hb.LastThreadTitle)
	} else if synthesis != nil {
		fmt.Fprintf(&b, "Recent synthesis: %s\n", truncate(synthesis.Summary, summaryTruncateLen))
	}
	lowerPrompt := strings.ToLower(prompt)
	for _, t := range active {
		for _, topic := range t.Topics {
			if strings.Contains(lowerPrompt, strings.ToLower(topic)) {
				fmt.Fprintf(&b, "This may relate to the existing thread %q — consider `ai recall %q`.\n", t.Title, topic)
				return b.String()
			}
		}
	}
	return b.String()
}

func synthesisSection(s *model.Synthesis) string {
	return fmt.Sprintf("## Recent synthesis\n%s\n", s.Summary)
}

func focusSection(focus []model.FocusEntry) string {
	var b strings.Builder
	b.WriteString("## Focus\n")
	for _, f := range focus {
		fmt.Fprintf(&b, "- %s (weight %.2f)\n", f.Topic, f.Weight)
	}
	return b.String()
}

func rulesSection(rules []model.UserRule) string {
	if len(rules) > maxUserRules {
		rules = rules[len(rules)-maxUserRules:]
	}
	var b strings.Builder
	b.WriteString("## User rules\n")
	for _, r := range rules {
		fmt.Fprintf(&b, "- %s\n", r.Text)
	}
	return b.String()
}

const relevanceHeader = "## Relevant threads\n"

// relevanceSection builds the relevance block as a header plus one entry
// per ranked thread, kept separate so trimToBudget can drop whole entries
// from the end rather than cutting the section's rendered text mid-byte.
func relevanceSection(ranked []Ranked) section {
	entries := make([]string, 0, len(ranked))
	for _, r := range ranked {
		t := r.Thread
		entries = append(entries, fmt.Sprintf("- %s: %s (topics: %s)\n", t.Title, truncate(t.Summary, summaryTruncateLen), strings.Join(t.Topics, ", ")))
	}
	return section{name: "relevance", priority: 0, text: relevanceHeader + strings.Join(entries, ""), entries: entries}
}

func sharedSection(snapshots []*model.SharedSnapshot) string {
	var b strings.Builder
	b.WriteString("## Shared snapshots\n")
	for _, s := range snapshots {
		fmt.Fprintf(&b, "- %s: %s\n", s.Title, truncate(s.Summary, summaryTruncateLen))
	}
	return b.String()
}

func heartbeatSection(hb *model.Heartbeat) string {
	return fmt.Sprintf("## Heartbeat\nbeat %d, since_last %d\n", hb.Beat, hb.Beat-hb.LastInteractionBeat)
}

// section is one injection block: a stable name, a trim priority (lower
// drops first), and its rendered text. entries is set only for the
// relevance section, letting it shrink thread-entry-by-entry instead of
// being dropped whole.
type section struct {
	name     string
	priority int
	text     string
	entries  []string
}

// trimToBudget renders sections in their given (display) order. When over
// budget it first drops whole non-relevance sections lowest-priority-first
// — user rules, shared snapshots, … — then, if still over, shrinks the
// relevance section entry-by-entry from its least-relevant (last) thread
// until the remainder fits. The heartbeat section is never dropped. The
// result is always a join of whole sections and whole relevance entries:
// it never cuts a section, or a rune within one, mid-byte.
func trimToBudget(sections []section, budget int) string {
	kept := make(map[string]bool, len(sections))
	byName := make(map[string]*section, len(sections))
	for i := range sections {
		kept[sections[i].name] = true
		byName[sections[i].name] = &sections[i]
	}

	render := func() string {
		parts := make([]string, 0, len(sections))
		for _, s := range sections {
			if kept[s.name] {
				parts = append(parts, s.text)
			}
		}
		return strings.Join(parts, "\n")
	}

	ordered := append([]section(nil), sections...)
	sortByPriority(ordered)

	body := render()
	for i := 0; len(body) > budget && i < len(ordered); i++ {
		if ordered[i].name == "heartbeat" || ordered[i].name == "relevance" {
			continue
		}
		delete(kept, ordered[i].name)
		body = render()
	}

	if len(body) > budget {
		if rel, ok := byName["relevance"]; ok && kept["relevance"] {
			entries := rel.entries
			for len(body) > budget && len(entries) > 0 {
				entries = entries[:len(entries)-1]
				if len(entries) == 0 {
					delete(kept, "relevance")
				} else {
					rel.text = relevanceHeader + strings.Join(entries, "")
				}
				body = render()
			}
		}
	}

	return body
}

func sortByPriority(s []section) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].priority < s[j-1].priority; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func wrap(body string) string {
	return fmt.Sprintf("<%s>\n%s\n</%s>", marker, body, marker)
}

func runCLIPassthrough(ctx context.Context, binary, prompt string) (string, error) {
	fields := strings.Fields(prompt)
	out, err := exec.CommandContext(ctx, binary, fields[1:]...).Output()
	if err != nil {
		return "", fmt.Errorf("retrieve: CLI passthrough failed: %w", err)
	}
	return string(out), nil
}
