package gossip

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/ai-memoryd/memoryd/internal/embed"
	"github.com/ai-memoryd/memoryd/internal/model"
	"github.com/ai-memoryd/memoryd/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// HalfLifeBridge is the default bridge weight half-life. Overridable via
// tuning.half_life_bridge_days.
const HalfLifeBridge = 24 * time.Hour

const (
	bridgeCreateThreshold     = 0.50
	bridgeGossipBoostMin      = 0.30
	bridgePropagationDepthCap = 1
	boostAmount               = 0.1
)

// Client is the black-box chat call used to pick a relation type for a
// newly created bridge. nil falls back to EXTENDS.
type Client interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Propagator is the GossipPropagator: reactively maintains the bridge set
// as threads change, and applies bridge decay/death on the maintenance
// tick. It satisfies threadmgr.Notifier.
type Propagator struct {
	store  *store.Store
	client Client
	bus    *Bus
	log    *logrus.Entry
}

// New builds a Propagator. bus may be nil (tests); client may be nil
// (relation_type always falls back to EXTENDS).
func New(st *store.Store, client Client, bus *Bus, log *logrus.Entry) *Propagator {
	return &Propagator{store: st, client: client, bus: bus, log: log}
}

// ThreadModified implements threadmgr.Notifier: it creates/strengthens
// bridges to every other similar ACTIVE thread, then gossips one hop.
func (p *Propagator) ThreadModified(t *model.Thread) {
	p.onThreadModified(context.Background(), t)
	p.publish(SubjectThreadModified, ThreadModifiedEvent{ThreadID: t.ID, Timestamp: time.Now()})
}

func (p *Propagator) onThreadModified(ctx context.Context, t *model.Thread) {
	if t.Status != model.StatusActive {
		// threadmgr already redirected or deleted t's bridges on archive;
		// an archived thread never originates new ones.
		return
	}
	active := p.store.ThreadsByStatus(model.StatusActive)
	for _, u := range active {
		if u.ID == t.ID {
			continue
		}
		cos := embed.Similarity(t.Embedding, u.Embedding)
		if cos < bridgeCreateThreshold {
			continue
		}
		p.linkOrBoost(ctx, t.ID, u.ID, cos)
	}

	p.gossipOneHop(t)
}

// linkOrBoost creates a new bridge between a and b (cosine similarity
// cos), or boosts an existing one's weight.
func (p *Propagator) linkOrBoost(ctx context.Context, a, b string, cos float64) {
	if existing := p.store.FindBridge(a, b); existing != nil {
		existing.Weight = clamp01(existing.Weight + boostAmount)
		existing.LastUsed = time.Now()
		existing.UseCount++
		if err := p.store.PutBridge(existing); err != nil {
			p.log.WithError(err).Warn("boosting bridge failed")
			return
		}
		p.publish(SubjectBridgeBoosted, bridgeEvent(existing))
		return
	}

	relation := p.chooseRelationType(ctx, a, b)
	bridge := &model.ThinkBridge{
		ID:            newID(),
		SourceID:      a,
		TargetID:      b,
		RelationType:  relation,
		Confidence:    cos,
		Weight:        cos,
		LastUsed:      time.Now(),
		CreatedAt:     time.Now(),
	}
	if err := p.store.PutBridge(bridge); err != nil {
		p.log.WithError(err).Warn("creating bridge failed")
		return
	}
	p.publish(SubjectBridgeCreated, bridgeEvent(bridge))
}

// gossipOneHop propagates through strong neighbors of t: for each
// neighbor u with bridge weight >= 0.3, consider u's own neighbors v and
// create a depth-1 bridge (t, v) if similar enough and not already
// linked. Depth is capped at 1 — propagated bridges never re-propagate.
func (p *Propagator) gossipOneHop(t *model.Thread) {
	neighbors := p.store.LoadBridgesTouching(t.ID)
	for _, tu := range neighbors {
		if tu.Weight < bridgeGossipBoostMin {
			continue
		}
		_, uID := otherEnd(tu, t.ID)
		uBridges := p.store.LoadBridgesTouching(uID)
		for _, uv := range uBridges {
			_, vID := otherEnd(uv, uID)
			if vID == t.ID || vID == "" {
				continue
			}
			if p.store.FindBridge(t.ID, vID) != nil {
				continue
			}
			v, err := p.store.GetThread(vID)
			if err != nil || v.Status != model.StatusActive {
				continue
			}
			cos := embed.Similarity(t.Embedding, v.Embedding)
			if cos < bridgeCreateThreshold {
				continue
			}
			bridge := &model.ThinkBridge{
				ID:               newID(),
				SourceID:         t.ID,
				TargetID:         vID,
				RelationType:     model.RelationExtends,
				Confidence:       cos,
				Weight:           cos,
				LastUsed:         time.Now(),
				CreatedAt:        time.Now(),
				PropagatedFrom:   uv.ID,
				PropagationDepth: bridgePropagationDepthCap,
			}
			if err := p.store.PutBridge(bridge); err != nil {
				p.log.WithError(err).Warn("propagating bridge failed")
				continue
			}
			p.publish(SubjectBridgeCreated, bridgeEvent(bridge))
		}
	}
}

func otherEnd(b *model.ThinkBridge, known string) (string, string) {
	if b.SourceID == known {
		return b.SourceID, b.TargetID
	}
	return b.TargetID, b.SourceID
}

// OnBridgeUsed applies the Hebbian boost when a bridge is traversed
// during retrieval/injection.
func (p *Propagator) OnBridgeUsed(b *model.ThinkBridge) error {
	b.LastUsed = time.Now()
	b.UseCount++
	b.Weight = clamp01(b.Weight + boostAmount)
	if err := p.store.PutBridge(b); err != nil {
		return err
	}
	p.publish(SubjectBridgeBoosted, bridgeEvent(b))
	return nil
}

// DecayAll applies exponential decay to every bridge's weight and deletes
// those that drop below their death threshold. halfLife overrides
// HalfLifeBridge when non-zero (tuning.half_life_bridge_days).
func (p *Propagator) DecayAll(halfLife time.Duration) (deleted int, err error) {
	if halfLife <= 0 {
		halfLife = HalfLifeBridge
	}
	now := time.Now()
	for _, b := range p.store.AllBridges() {
		since := b.LastUsed
		if since.IsZero() {
			since = b.CreatedAt
		}
		b.Weight = decayWeight(b.Weight, since, now, halfLife)
		if b.Weight < b.DeathThreshold() {
			if derr := p.store.DeleteBridge(b.ID, b.SourceID, b.TargetID); derr != nil {
				err = derr
				continue
			}
			p.publish(SubjectBridgeDeleted, bridgeEvent(b))
			deleted++
			continue
		}
		if perr := p.store.PutBridge(b); perr != nil {
			err = perr
		}
	}
	return deleted, err
}

func decayWeight(weight float64, since, now time.Time, halfLife time.Duration) float64 {
	deltaDays := now.Sub(since).Hours() / 24
	halfLifeDays := halfLife.Hours() / 24
	if deltaDays <= 0 || halfLifeDays <= 0 {
		return weight
	}
	return weight * math.Pow(0.5, deltaDays/halfLifeDays)
}

func (p *Propagator) chooseRelationType(ctx context.Context, a, b string) model.RelationType {
	if p.client == nil {
		return model.RelationExtends
	}
	threadA, errA := p.store.GetThread(a)
	threadB, errB := p.store.GetThread(b)
	if errA != nil || errB != nil {
		return model.RelationExtends
	}
	prompt := "Thread A: " + threadA.Title + " - " + threadA.Summary +
		"\nThread B: " + threadB.Title + " - " + threadB.Summary +
		"\n\nPick the single best relation from: EXTENDS, DEPENDS, CONTRADICTS, REPLACES, SIBLING. Respond with only the word."
	resp, err := p.client.Complete(ctx, relationSystemPrompt, prompt)
	if err != nil {
		return model.RelationExtends
	}
	return parseRelation(resp)
}

const relationSystemPrompt = `You label the semantic relationship between two topic threads with a single word.`

func parseRelation(resp string) model.RelationType {
	word := strings.ToUpper(strings.TrimSpace(resp))
	switch {
	case strings.Contains(word, "DEPEND"):
		return model.RelationDepends
	case strings.Contains(word, "CONTRADICT"):
		return model.RelationContradicts
	case strings.Contains(word, "REPLACE"):
		return model.RelationReplaces
	case strings.Contains(word, "SIBLING"):
		return model.RelationSibling
	default:
		return model.RelationExtends
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func (p *Propagator) publish(subject string, v any) {
	if p.bus == nil {
		return
	}
	if err := p.bus.PublishJSON(subject, v); err != nil {
		p.log.WithError(err).WithField("subject", subject).Warn("publishing gossip event failed")
	}
}

func bridgeEvent(b *model.ThinkBridge) BridgeEvent {
	return BridgeEvent{BridgeID: b.ID, SourceID: b.SourceID, TargetID: b.TargetID, Weight: b.Weight, Timestamp: time.Now()}
}

func newID() string {
	return "bridge_" + uuid.New().String()
}
