package decision

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harun/tablekeeper/internal/observability"
	"github.com/harun/tablekeeper/pkg/domain"
	"github.com/harun/tablekeeper/pkg/executor"
)

// DefaultRecentWindowTurns is the window used for the frequency factor.
const DefaultRecentWindowTurns = 10

// historyLimit caps how many past grants are read per recommendation.
const historyLimit = 50

// HistorySource is the read side of the audit ledger. *audit.Ledger
// implements it.
type HistorySource interface {
	ExecutedByTool(ctx context.Context, sessionID string, tools []string, limit int) ([]*domain.AuditRecord, error)
	RewindableActions(ctx context.Context, sessionID string, n int) ([]*domain.AuditRecord, error)
}

// NPCSource lists the NPCs already at a location. domain.NPCRepository
// implements it.
type NPCSource interface {
	ListByLocation(ctx context.Context, sessionID, location string) ([]*domain.NPC, error)
}

// Config holds an engine's dependencies.
type Config struct {
	History HistorySource
	// NPCs, when set, overrides Input.NPCsPresent with a live count.
	NPCs              NPCSource
	Rand              Rand
	Clock             func() time.Time
	RecentWindowTurns int
}

// Input is what the caller knows about the moment being decided.
type Input struct {
	SessionID   string   `json:"session_id"`
	CharacterID string   `json:"character_id,omitempty"`
	CurrentTurn int      `json:"current_turn"`
	Location    string   `json:"location"`
	Scene       string   `json:"scene"`
	PartyLevel  int      `json:"party_level"`
	PartyGold   int      `json:"party_gold"`
	Needs       []string `json:"needs,omitempty"`
	NPCsPresent int      `json:"npcs_present"`
	ItemsNearby int      `json:"items_nearby"`
}

// Recommendation is an engine's output. ToolCall, when set, is the call a
// caller would pass to the executor to act on it.
type Recommendation struct {
	Engine      string              `json:"engine"`
	SessionID   string              `json:"session_id"`
	Introduce   bool                `json:"introduce"`
	Probability float64             `json:"probability"`
	Roll        float64             `json:"roll"`
	Type        string              `json:"type,omitempty"`
	TypeScores  map[string]int      `json:"type_scores,omitempty"`
	Factors     []Factor            `json:"factors"`
	Reasoning   []string            `json:"reasoning"`
	ToolCall    *executor.BatchCall `json:"tool_call,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// policy is what differs between engines.
type policy interface {
	name() string
	subject() string
	tools() []string
	base() float64
	// factors returns the engine-specific factors.
	factors(ctx context.Context, e *Engine, in Input) ([]Factor, error)
	// scoreTypes returns candidate scores and the classifier reasons.
	scoreTypes(in Input) (map[string]int, []string)
	toolCall(e *Engine, in Input, kind string) *executor.BatchCall
}

// Engine is a probabilistic recommender.
type Engine struct {
	policy  policy
	history HistorySource
	npcs    NPCSource
	rand    Rand
	clock   func() time.Time
	window  int
}

func newEngine(p policy, cfg Config) *Engine {
	e := &Engine{
		policy:  p,
		history: cfg.History,
		npcs:    cfg.NPCs,
		rand:    cfg.Rand,
		clock:   cfg.Clock,
		window:  cfg.RecentWindowTurns,
	}
	if e.rand == nil {
		e.rand = NewRand(0)
	}
	if e.clock == nil {
		e.clock = func() time.Time { return time.Now().UTC() }
	}
	if e.window <= 0 {
		e.window = DefaultRecentWindowTurns
	}
	return e
}

// Name returns the engine's name.
func (e *Engine) Name() string {
	return e.policy.name()
}

type activity struct {
	seen        bool
	lastTurn    int
	lastAt      time.Time
	recentCount int
	anySeen     bool
	anyLastTurn int
}

func (e *Engine) loadActivity(ctx context.Context, in Input) (activity, error) {
	var a activity
	if e.history == nil {
		return a, nil
	}

	grants, err := e.history.ExecutedByTool(ctx, in.SessionID, e.policy.tools(), historyLimit)
	if err != nil {
		return a, fmt.Errorf("failed to read %s history: %w", e.policy.name(), err)
	}
	if len(grants) > 0 {
		a.seen = true
		a.lastTurn = grants[0].ConversationTurn
		a.lastAt = grants[0].CreatedAt
	}
	for _, g := range grants {
		if g.ConversationTurn > in.CurrentTurn-e.window {
			a.recentCount++
		}
	}

	latest, err := e.history.RewindableActions(ctx, in.SessionID, 1)
	if err != nil {
		return a, fmt.Errorf("failed to read session activity: %w", err)
	}
	if len(latest) > 0 {
		a.anySeen = true
		a.anyLastTurn = latest[0].ConversationTurn
	}
	return a, nil
}

// AnalyzeFactors derives the named factors for in.
func (e *Engine) AnalyzeFactors(ctx context.Context, in Input) ([]Factor, error) {
	a, err := e.loadActivity(ctx, in)
	if err != nil {
		return nil, err
	}

	subject := e.policy.subject()
	factors := []Factor{
		turnsSinceFactor(subject, in.CurrentTurn-a.lastTurn, a.seen),
		momentumFactor(MomentumFor(in.CurrentTurn-a.anyLastTurn, a.anySeen)),
		minutesSinceFactor(subject, e.clock().Sub(a.lastAt).Minutes(), a.seen),
		frequencyFactor(subject, a.recentCount, e.window),
	}
	extra, err := e.policy.factors(ctx, e, in)
	if err != nil {
		return nil, err
	}
	factors = append(factors, extra...)

	for i := range factors {
		factors[i] = withReason(factors[i])
	}
	return factors, nil
}

// ScoreToProbability turns factors into this engine's probability.
func (e *Engine) ScoreToProbability(factors []Factor) float64 {
	return ScoreToProbability(e.policy.base(), factors)
}

// SelectType picks a candidate type for in and returns the scores it drew
// from.
func (e *Engine) SelectType(in Input) (kind string, scores map[string]int, reasons []string) {
	scores, reasons = e.policy.scoreTypes(in)
	return WeightedChoice(e.rand, scores, 1), scores, reasons
}

// Recommend analyses in, decides, and when the answer is yes picks a type
// and the tool call that would introduce it.
func (e *Engine) Recommend(ctx context.Context, in Input) (*Recommendation, error) {
	factors, err := e.AnalyzeFactors(ctx, in)
	if err != nil {
		return nil, err
	}

	p := e.ScoreToProbability(factors)
	introduce, roll := Decide(e.rand, p)

	rec := &Recommendation{
		Engine:      e.policy.name(),
		SessionID:   in.SessionID,
		Introduce:   introduce,
		Probability: p,
		Roll:        roll,
		Factors:     factors,
		CreatedAt:   e.clock(),
	}
	rec.Reasoning = append(rec.Reasoning, fmt.Sprintf("base chance %.2f", e.policy.base()))
	for _, f := range factors {
		rec.Reasoning = append(rec.Reasoning, f.Reason)
	}
	if roll < 0 {
		rec.Reasoning = append(rec.Reasoning, fmt.Sprintf("probability %.2f decides without a roll", p))
	} else {
		rec.Reasoning = append(rec.Reasoning, fmt.Sprintf("probability %.2f, rolled %.2f", p, roll))
	}

	if introduce {
		kind, scores, reasons := e.SelectType(in)
		rec.Type = kind
		rec.TypeScores = scores
		rec.Reasoning = append(rec.Reasoning, reasons...)
		rec.Reasoning = append(rec.Reasoning, fmt.Sprintf("chose %s from %s", kind, formatScores(scores)))
		rec.ToolCall = e.policy.toolCall(e, in, kind)
	} else {
		rec.Reasoning = append(rec.Reasoning, fmt.Sprintf("no %s this time", e.policy.subject()))
	}

	observability.RecordDecision(rec.Engine, p, introduce)
	observability.RecordRecommendation(ctx, in.SessionID, rec.Engine, map[string]interface{}{
		"probability": p,
		"introduce":   introduce,
		"type":        rec.Type,
		"turn":        in.CurrentTurn,
	})
	log.Debug().
		Str("engine", rec.Engine).
		Str("session_id", in.SessionID).
		Float64("probability", p).
		Bool("introduce", introduce).
		Str("type", rec.Type).
		Msg("Recommendation made")
	return rec, nil
}

func formatScores(scores map[string]int) string {
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s=%d", k, scores[k])
	}
	return out
}

func emptyScores(candidates []string) map[string]int {
	scores := make(map[string]int, len(candidates))
	for _, c := range candidates {
		scores[c] = 0
	}
	return scores
}
