package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/ai-memoryd/memoryd/internal/compact"
	"github.com/ai-memoryd/memoryd/internal/model"
	"github.com/ai-memoryd/memoryd/internal/retrieve"
	"github.com/ai-memoryd/memoryd/internal/store"
	"github.com/ai-memoryd/memoryd/internal/threadmgr"
)

// mergeCandidateWeight is the bridge weight above which two active
// threads are surfaced as a merge candidate by `suggestions`.
const mergeCandidateWeight = 0.75

// splitCandidateMessages is the message count above which a thread is
// surfaced as a split candidate by `suggestions`.
const splitCandidateMessages = 40

// reply is the envelope every op returns: {"status":"ok"|"error", ...}.
type reply map[string]any

func okReply(result map[string]any) reply {
	out := reply{"status": "ok"}
	for k, v := range result {
		out[k] = v
	}
	return out
}

func errorReply(kind, message string) reply {
	return reply{
		"status": "error",
		"error":  map[string]string{"kind": kind, "message": message},
	}
}

// envelope extracts the op name; remaining fields are re-decoded per-op
// into each handler's own args struct.
type envelope struct {
	Op string `json:"op"`
}

func (s *Server) dispatch(ctx context.Context, line []byte) reply {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return errorReply(string(store.ErrInvalidArg), "malformed request: "+err.Error())
	}

	handler, ok := s.handlers()[env.Op]
	if !ok {
		return errorReply(string(store.ErrInvalidArg), "unknown op: "+env.Op)
	}
	return handler(ctx, line)
}

type opHandler func(ctx context.Context, raw []byte) reply

func (s *Server) handlers() map[string]opHandler {
	return map[string]opHandler{
		"ping":            s.handlePing,
		"capture":         s.handleCapture,
		"prompt_classify": s.handlePromptClassify,
		"recall":          s.handleRecall,
		"merge":           s.handleMerge,
		"split":           s.handleSplit,
		"unlock":          s.handleUnlock,
		"focus":           s.handleFocus,
		"unfocus":         s.handleUnfocus,
		"pin":             s.handlePin,
		"rate_context":    s.handleRateContext,
		"suggestions":     s.handleSuggestions,
		"compact":         s.handleCompact,
		"threads":         s.handleThreads,
		"thread_get":      s.handleThreadGet,
		"bridges":         s.handleBridgesList,
		"status":          s.handleStatus,
		"heartbeat":       s.handleHeartbeat,
		"reindex":         s.handleReindex,
		"inject":          s.handleInject,
		"share_publish":   s.handleSharePublish,
		"share_sync":      s.handleShareSync,
		"share_list":      s.handleShareList,
		"share_propose":   s.handleSharePropose,
		"share_accept":    s.handleShareAccept,
		"share_reject":    s.handleShareReject,
		"shutdown":        s.handleShutdown,
	}
}

type threadsArgs struct {
	Status string `json:"status"`
	Limit  int    `json:"limit"`
}

func threadSummary(t *model.Thread) map[string]any {
	return map[string]any{
		"id":              t.ID,
		"title":           t.Title,
		"status":          string(t.Status),
		"weight":          t.Weight,
		"relevance_score": t.RelevanceScore,
		"messages":        len(t.Messages),
		"topics":          t.Topics,
		"tags":            t.Tags,
		"split_locked":    t.SplitLocked,
		"last_active":     t.LastActive,
	}
}

// handleThreads lists threads, optionally filtered by status and capped
// at limit (0 = unbounded), most-recently-active first.
func (s *Server) handleThreads(ctx context.Context, raw []byte) reply {
	var args threadsArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReply(string(store.ErrInvalidArg), err.Error())
	}
	var threads []*model.Thread
	if args.Status != "" {
		threads = s.store.ThreadsByStatus(model.Status(args.Status))
	} else {
		threads = s.store.AllThreads()
	}
	sort.Slice(threads, func(i, j int) bool { return threads[i].LastActive.After(threads[j].LastActive) })
	if args.Limit > 0 && len(threads) > args.Limit {
		threads = threads[:args.Limit]
	}
	out := make([]map[string]any, 0, len(threads))
	for _, t := range threads {
		out = append(out, threadSummary(t))
	}
	return okReply(map[string]any{"threads": out})
}

func (s *Server) handleThreadGet(ctx context.Context, raw []byte) reply {
	var args threadIDArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReply(string(store.ErrInvalidArg), err.Error())
	}
	t, err := s.store.GetThread(args.ThreadID)
	if err != nil {
		return mapError(err)
	}
	summary := threadSummary(t)
	summary["summary"] = t.Summary
	summary["parent_id"] = t.ParentID
	summary["child_ids"] = t.ChildIDs
	summary["created_at"] = t.CreatedAt
	summary["activation_count"] = t.ActivationCount
	bridges := s.store.LoadBridgesTouching(t.ID)
	bridgeOut := make([]map[string]any, 0, len(bridges))
	for _, b := range bridges {
		bridgeOut = append(bridgeOut, bridgeSummary(b))
	}
	summary["bridges"] = bridgeOut
	return okReply(summary)
}

type bridgesArgs struct {
	ThreadID string `json:"thread_id"`
}

func bridgeSummary(b *model.ThinkBridge) map[string]any {
	return map[string]any{
		"id":            b.ID,
		"source_id":     b.SourceID,
		"target_id":     b.TargetID,
		"relation_type": string(b.RelationType),
		"weight":        b.Weight,
		"confidence":    b.Confidence,
		"use_count":     b.UseCount,
		"last_used":     b.LastUsed,
	}
}

func (s *Server) handleBridgesList(ctx context.Context, raw []byte) reply {
	var args bridgesArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReply(string(store.ErrInvalidArg), err.Error())
	}
	var bridges []*model.ThinkBridge
	if args.ThreadID != "" {
		bridges = s.store.LoadBridgesTouching(args.ThreadID)
	} else {
		bridges = s.store.AllBridges()
	}
	out := make([]map[string]any, 0, len(bridges))
	for _, b := range bridges {
		out = append(out, bridgeSummary(b))
	}
	return okReply(map[string]any{"bridges": out})
}

func (s *Server) handlePing(ctx context.Context, raw []byte) reply {
	return okReply(map[string]any{"pong": true})
}

type captureArgs struct {
	Tool      string `json:"tool"`
	Content   string `json:"content"`
	FilePath  string `json:"file_path"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleCapture(ctx context.Context, raw []byte) reply {
	var args captureArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReply(string(store.ErrInvalidArg), err.Error())
	}
	if !s.cfg.Settings.AutoCapture {
		return okReply(map[string]any{"action": "skipped"})
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return errorReply(string(store.ErrTransient), "rate limiter: "+err.Error())
	}

	source := sourceForTool(args.Tool)
	metadata := map[string]string{}
	if args.FilePath != "" {
		metadata["file_path"] = args.FilePath
	}

	thread, decision, err := s.manager.ProcessInput(ctx, args.Content, source, metadata)
	if err != nil {
		return mapError(err)
	}
	if decision.Kind == model.DecisionSkip {
		return okReply(map[string]any{"action": string(decision.Kind)})
	}
	return okReply(map[string]any{
		"thread_id": thread.ID,
		"action":    string(decision.Kind),
		"title":     thread.Title,
	})
}

func sourceForTool(tool string) model.SourceType {
	switch tool {
	case "read":
		return model.SourceRead
	case "write", "edit":
		return model.SourceWrite
	case "task":
		return model.SourceTask
	case "fetch", "webfetch":
		return model.SourceFetch
	case "bash", "command":
		return model.SourceCommand
	default:
		return model.SourcePrompt
	}
}

func (s *Server) handlePromptClassify(ctx context.Context, raw []byte) reply {
	var args captureArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReply(string(store.ErrInvalidArg), err.Error())
	}
	return s.handleCapture(ctx, raw)
}

type injectArgs struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id"`
}

// handleInject builds the per-turn injection block (§4.8). The CLI-in-prompt
// passthrough shells out to the ai binary itself, so it is given the ai
// path New resolved from PATH (empty when not found, which disables the
// passthrough) rather than a fixed config value.
func (s *Server) handleInject(ctx context.Context, raw []byte) reply {
	var args injectArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReply(string(store.ErrInvalidArg), err.Error())
	}
	block, err := s.retriever.BuildInjection(ctx, args.Prompt, retrieve.SessionInfo{
		SessionID: args.SessionID,
		Now:       time.Now(),
	}, s.cliBinary)
	if err != nil {
		return mapError(err)
	}
	return okReply(map[string]any{"block": block})
}

type recallArgs struct {
	Query            string `json:"query"`
	IncludeSuspended bool   `json:"include_suspended"`
}

func (s *Server) handleRecall(ctx context.Context, raw []byte) reply {
	var args recallArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReply(string(store.ErrInvalidArg), err.Error())
	}
	text, matched, err := s.retriever.Recall(ctx, args.Query, args.IncludeSuspended)
	if err != nil {
		return errorReply(string(store.ErrTransient), err.Error())
	}
	results := make([]map[string]any, 0, len(matched))
	for _, m := range matched {
		results = append(results, map[string]any{
			"id":          m.Thread.ID,
			"score":       m.Score,
			"reactivated": m.Reactivated,
		})
	}
	return okReply(map[string]any{"text": text, "matched": results})
}

type mergeArgs struct {
	SurvivorID string `json:"survivor_id"`
	AbsorbedID string `json:"absorbed_id"`
}

func (s *Server) handleMerge(ctx context.Context, raw []byte) reply {
	var args mergeArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReply(string(store.ErrInvalidArg), err.Error())
	}
	survivor, err := s.manager.Merge(args.SurvivorID, args.AbsorbedID)
	if err != nil {
		return mapError(err)
	}
	return okReply(map[string]any{"survivor_id": survivor.ID})
}

type splitArgs struct {
	ThreadID      string          `json:"thread_id"`
	Confirm       bool            `json:"confirm"`
	Titles        []string        `json:"titles"`
	MessageGroups [][]string      `json:"message_groups"`
	Lock          model.LockMode  `json:"lock"`
}

func (s *Server) handleSplit(ctx context.Context, raw []byte) reply {
	var args splitArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReply(string(store.ErrInvalidArg), err.Error())
	}
	if !args.Confirm {
		positions, err := s.manager.PlanSplit(args.ThreadID)
		if err != nil {
			return mapError(err)
		}
		return okReply(map[string]any{"messages": positions})
	}
	lockMode := args.Lock
	if lockMode == "" {
		lockMode = model.LockAgentRelease
	}
	children, err := s.manager.ConfirmSplit(ctx, args.ThreadID, args.Titles, args.MessageGroups, lockMode)
	if err != nil {
		return mapError(err)
	}
	ids := make([]string, len(children))
	for i, c := range children {
		ids[i] = c.ID
	}
	return okReply(map[string]any{"new_ids": ids})
}

type threadIDArgs struct {
	ThreadID string `json:"thread_id"`
}

func (s *Server) handleUnlock(ctx context.Context, raw []byte) reply {
	var args threadIDArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReply(string(store.ErrInvalidArg), err.Error())
	}
	if _, err := s.manager.Unlock(args.ThreadID); err != nil {
		return mapError(err)
	}
	return okReply(map[string]any{"unlocked": true})
}

type focusArgs struct {
	Topic  string  `json:"topic"`
	Weight float64 `json:"weight"`
}

func (s *Server) handleFocus(ctx context.Context, raw []byte) reply {
	var args focusArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReply(string(store.ErrInvalidArg), err.Error())
	}
	entries, err := s.store.GetFocus()
	if err != nil {
		return errorReply(string(store.ErrTransient), err.Error())
	}
	weight := args.Weight
	if weight <= 0 {
		weight = 1
	}
	replaced := false
	for i, e := range entries {
		if e.Topic == args.Topic {
			entries[i].Weight = weight
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, model.FocusEntry{Topic: args.Topic, Weight: weight})
	}
	if err := s.store.PutFocus(entries); err != nil {
		return errorReply(string(store.ErrTransient), err.Error())
	}
	return okReply(map[string]any{"active_focus": entries})
}

func (s *Server) handleUnfocus(ctx context.Context, raw []byte) reply {
	var args focusArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReply(string(store.ErrInvalidArg), err.Error())
	}
	entries, err := s.store.GetFocus()
	if err != nil {
		return errorReply(string(store.ErrTransient), err.Error())
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.Topic != args.Topic {
			kept = append(kept, e)
		}
	}
	if err := s.store.PutFocus(kept); err != nil {
		return errorReply(string(store.ErrTransient), err.Error())
	}
	return okReply(map[string]any{"active_focus": kept})
}

type pinArgs struct {
	ExistingID  string   `json:"existing_id"`
	Content     string   `json:"content"`
	Title       string   `json:"title"`
	Topics      []string `json:"topics"`
	WeightBoost float64  `json:"weight_boost"`
}

func (s *Server) handlePin(ctx context.Context, raw []byte) reply {
	var args pinArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReply(string(store.ErrInvalidArg), err.Error())
	}
	t, err := s.manager.Pin(ctx, args.ExistingID, args.Content, args.Title, args.Topics, args.WeightBoost)
	if err != nil {
		return mapError(err)
	}
	return okReply(map[string]any{"thread_id": t.ID})
}

type rateContextArgs struct {
	ThreadID string `json:"thread_id"`
	Useful   bool   `json:"useful"`
	Reason   string `json:"reason"`
}

func (s *Server) handleRateContext(ctx context.Context, raw []byte) reply {
	var args rateContextArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReply(string(store.ErrInvalidArg), err.Error())
	}
	t, err := s.manager.RateContext(args.ThreadID, args.Useful, args.Reason)
	if err != nil {
		return mapError(err)
	}
	return okReply(map[string]any{"relevance_score": t.RelevanceScore})
}

type compactArgs struct {
	Strategy compact.Strategy `json:"strategy"`
	DryRun   bool             `json:"dry_run"`
}

func (s *Server) handleCompact(ctx context.Context, raw []byte) reply {
	var args compactArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReply(string(store.ErrInvalidArg), err.Error())
	}
	if args.Strategy == "" {
		args.Strategy = compact.StrategyNormal
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return errorReply(string(store.ErrTransient), "rate limiter: "+err.Error())
	}
	report, err := s.compactor.Compact(ctx, args.Strategy, args.DryRun)
	if err != nil {
		return errorReply(string(store.ErrTransient), err.Error())
	}
	return okReply(map[string]any{
		"synthesis_id":   report.Synthesis.ID,
		"threads_folded": report.ThreadsFolded,
		"suspended":      report.Suspended,
		"dry_run":        report.DryRun,
	})
}

func (s *Server) handleSuggestions(ctx context.Context, raw []byte) reply {
	active := s.store.ThreadsByStatus(model.StatusActive)

	type candidate struct {
		A      string  `json:"thread_a"`
		B      string  `json:"thread_b"`
		Weight float64 `json:"weight"`
	}
	var mergeCandidates []candidate
	for _, b := range s.store.AllBridges() {
		if b.Weight < mergeCandidateWeight {
			continue
		}
		mergeCandidates = append(mergeCandidates, candidate{A: b.SourceID, B: b.TargetID, Weight: b.Weight})
	}

	var splitCandidates []string
	for _, t := range active {
		if len(t.Messages) > splitCandidateMessages {
			splitCandidates = append(splitCandidates, t.ID)
		}
	}

	var recallHints []string
	for _, t := range active {
		if t.RelevanceScore < 0.3 {
			recallHints = append(recallHints, t.ID)
		}
	}

	return okReply(map[string]any{
		"merge_candidates": mergeCandidates,
		"split_candidates": splitCandidates,
		"recall_hints":     recallHints,
		"active_threads":   len(active),
	})
}

func (s *Server) handleStatus(ctx context.Context, raw []byte) reply {
	active := s.store.ThreadsByStatus(model.StatusActive)
	suspended := s.store.ThreadsByStatus(model.StatusSuspended)
	archived := s.store.ThreadsByStatus(model.StatusArchived)
	hb, err := s.store.GetHeartbeat()
	if err != nil {
		return errorReply(string(store.ErrTransient), err.Error())
	}
	return okReply(map[string]any{
		"active_threads":    len(active),
		"suspended_threads": len(suspended),
		"archived_threads":  len(archived),
		"bridges":           len(s.store.AllBridges()),
		"mode":              string(s.cfg.Settings.ThreadMode),
		"quota":             s.cfg.Quota(),
		"beat":              hb.Beat,
		"last_beat_at":      hb.LastBeatAt,
	})
}

func (s *Server) handleHeartbeat(ctx context.Context, raw []byte) reply {
	hb, err := s.store.GetHeartbeat()
	if err != nil {
		return errorReply(string(store.ErrTransient), err.Error())
	}
	return okReply(map[string]any{
		"beat":                  hb.Beat,
		"started_at":            hb.StartedAt,
		"last_beat_at":          hb.LastBeatAt,
		"last_interaction_at":   hb.LastInteractionAt,
		"last_interaction_beat": hb.LastInteractionBeat,
		"last_thread_id":        hb.LastThreadID,
		"last_thread_title":     hb.LastThreadTitle,
	})
}

// handleReindex rebuilds the store's in-memory thread/bridge indexes
// from disk, for recovery after manual file edits or quarantine cleanup
// without a full daemon restart.
func (s *Server) handleReindex(ctx context.Context, raw []byte) reply {
	if err := s.store.Reindex(); err != nil {
		return errorReply(string(store.ErrTransient), err.Error())
	}
	return okReply(map[string]any{"reindexed": true})
}

type sharePublishArgs struct {
	ThreadID    string `json:"thread_id"`
	PublisherID string `json:"publisher_id"`
}

func (s *Server) handleSharePublish(ctx context.Context, raw []byte) reply {
	var args sharePublishArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReply(string(store.ErrInvalidArg), err.Error())
	}
	t, err := s.store.GetThread(args.ThreadID)
	if err != nil {
		return mapError(err)
	}
	snap, err := s.shared.Publish(t, args.PublisherID)
	if err != nil {
		return errorReply(string(store.ErrTransient), err.Error())
	}
	return okReply(map[string]any{"shared_id": snap.SharedID})
}

type shareSyncArgs struct {
	SharedID string `json:"shared_id"`
}

func (s *Server) handleShareSync(ctx context.Context, raw []byte) reply {
	var args shareSyncArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReply(string(store.ErrInvalidArg), err.Error())
	}
	snap, err := s.shared.Sync(args.SharedID)
	if err != nil {
		return errorReply(string(store.ErrNotFound), err.Error())
	}
	return okReply(map[string]any{"shared_id": snap.SharedID, "title": snap.Title})
}

func (s *Server) handleShareList(ctx context.Context, raw []byte) reply {
	snaps := s.shared.Subscribed()
	out := make([]map[string]any, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, map[string]any{
			"shared_id":    snap.SharedID,
			"title":        snap.Title,
			"summary":      snap.Summary,
			"topics":       snap.Topics,
			"published_at": snap.PublishedAt,
			"publisher_id": snap.PublisherID,
		})
	}
	return okReply(map[string]any{"snapshots": out})
}

type shareProposeArgs struct {
	LocalID        string `json:"local_id"`
	RemoteSharedID string `json:"remote_shared_id"`
	Reason         string `json:"reason"`
}

func (s *Server) handleSharePropose(ctx context.Context, raw []byte) reply {
	var args shareProposeArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReply(string(store.ErrInvalidArg), err.Error())
	}
	p, err := s.shared.Propose(args.LocalID, args.RemoteSharedID, args.Reason)
	if err != nil {
		return errorReply(string(store.ErrTransient), err.Error())
	}
	return okReply(map[string]any{"proposal_id": p.ID, "expires_at": p.ExpiresAt})
}

type shareProposalIDArgs struct {
	ProposalID string `json:"proposal_id"`
}

func (s *Server) handleShareAccept(ctx context.Context, raw []byte) reply {
	var args shareProposalIDArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReply(string(store.ErrInvalidArg), err.Error())
	}
	bridge, err := s.shared.Accept(args.ProposalID)
	if err != nil {
		return errorReply(string(store.ErrNotFound), err.Error())
	}
	return okReply(map[string]any{"bridge_id": bridge.ID})
}

func (s *Server) handleShareReject(ctx context.Context, raw []byte) reply {
	var args shareProposalIDArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReply(string(store.ErrInvalidArg), err.Error())
	}
	if err := s.shared.Reject(args.ProposalID); err != nil {
		return errorReply(string(store.ErrNotFound), err.Error())
	}
	return okReply(map[string]any{"rejected": true})
}

func (s *Server) handleShutdown(ctx context.Context, raw []byte) reply {
	go func() {
		_ = s.Shutdown(context.Background())
	}()
	return okReply(map[string]any{"bye": true})
}

// mapError classifies a threadmgr/store error into the wire error kind;
// anything unrecognized is reported as TransientExternal.
func mapError(err error) reply {
	var tErr *threadmgr.Error
	if errors.As(err, &tErr) {
		return errorReply(string(tErr.Kind), tErr.Message)
	}
	var sErr *store.Error
	if errors.As(err, &sErr) {
		return errorReply(string(sErr.Kind), sErr.Message)
	}
	return errorReply(string(store.ErrTransient), err.Error())
}
