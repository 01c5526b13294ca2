package providers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/swarmcore/observability"
	"github.com/tailored-agentic-units/swarmcore/protocol"
)

// Config configures a Chain. Zero value uses DefaultConfig's thresholds.
type Config struct {
	CooldownMs       int64 // default 60_000
	FailureThreshold int   // default 3
	SkipUnconfigured bool  // default true
	Observer         observability.Observer
}

// DefaultConfig returns spec.md §4.A's defaults.
func DefaultConfig() Config {
	return Config{
		CooldownMs:       60_000,
		FailureThreshold: 3,
		SkipUnconfigured: true,
		Observer:         observability.NoOpObserver{},
	}
}

type candidate struct {
	provider Provider
	health   *Health
}

// Chain is the ordered, health-tracked fallback chain over N providers.
type Chain struct {
	mu         sync.RWMutex
	candidates []*candidate
	cfg        Config
	observer   observability.Observer
	now        func() time.Time
}

// NewChain builds a Chain from an ordered (provider, priority) list, per
// spec.md §4.A's configuration shape. Candidates are sorted ascending by
// priority (lower value = tried first), ties broken by registration order.
func NewChain(cfg Config, providersWithPriority ...Provider) *Chain {
	if cfg.CooldownMs <= 0 {
		cfg.CooldownMs = 60_000
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	observer := cfg.Observer
	if observer == nil {
		observer = observability.NoOpObserver{}
	}

	c := &Chain{cfg: cfg, observer: observer, now: time.Now}
	cooldown := time.Duration(cfg.CooldownMs) * time.Millisecond
	for i, p := range providersWithPriority {
		c.candidates = append(c.candidates, &candidate{
			provider: p,
			health:   newHealth(cfg.FailureThreshold, cooldown),
		})
		_ = i
	}

	sort.SliceStable(c.candidates, func(i, j int) bool {
		return c.candidates[i].provider.Priority() < c.candidates[j].provider.Priority()
	})

	return c
}

// Health returns a snapshot of the named provider's health record, or false
// if no such provider is registered.
func (c *Chain) Health(name string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cand := range c.candidates {
		if cand.provider.Name() == name {
			return cand.health.Snapshot(), true
		}
	}
	return Snapshot{}, false
}

// MarkHealthy force-clears cooldown for the named provider.
func (c *Chain) MarkHealthy(name string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cand := range c.candidates {
		if cand.provider.Name() == name {
			cand.health.MarkHealthy()
			return
		}
	}
}

// MarkUnhealthy force-trips the named provider for duration (0 = indefinite).
func (c *Chain) MarkUnhealthy(name string, duration time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cand := range c.candidates {
		if cand.provider.Name() == name {
			cand.health.MarkUnhealthy(c.now(), duration)
			return
		}
	}
}

// availableCandidates returns the ordered list of candidates eligible for
// this call: configured (unless SkipUnconfigured is false) and not in
// cooldown. Available() has the side effect of clearing expired cooldowns.
func (c *Chain) availableCandidates() []*candidate {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	out := make([]*candidate, 0, len(c.candidates))
	for _, cand := range c.candidates {
		if c.cfg.SkipUnconfigured && !cand.provider.IsConfigured() {
			continue
		}
		if !cand.health.Available(now) {
			continue
		}
		out = append(out, cand)
	}
	return out
}

// Chat attempts each available candidate in order, returning the first
// successful ChatResponse. See spec.md §4.A.
func (c *Chain) Chat(ctx context.Context, messages []protocol.Message, opts ChatOptions) (*ChatResponse, error) {
	callID := uuid.Must(uuid.NewV7()).String()
	candidates := c.availableCandidates()

	var errs []error
	for i, cand := range candidates {
		resp, err := cand.provider.Chat(ctx, messages, opts)
		if err == nil {
			c.reportSuccess(ctx, callID, cand)
			return resp, nil
		}

		c.reportFailure(ctx, callID, cand, err, i < len(candidates)-1)
		errs = append(errs, NewCallError(cand.provider.Name(), ClassifyError(err), err))
	}

	return nil, c.exhausted(ctx, callID, errs)
}

// ChatWithTools attempts each available candidate in order. Candidates
// implementing ToolCaller are called natively; others receive a flattened
// chat request per spec.md §4.A.
func (c *Chain) ChatWithTools(ctx context.Context, messages []protocol.Message, tools []protocol.Tool, opts ChatOptions) (*ToolsResponse, error) {
	callID := uuid.Must(uuid.NewV7()).String()
	candidates := c.availableCandidates()

	var errs []error
	for i, cand := range candidates {
		resp, err := callWithTools(ctx, cand.provider, messages, tools, opts)
		if err == nil {
			c.reportSuccess(ctx, callID, cand)
			return resp, nil
		}

		c.reportFailure(ctx, callID, cand, err, i < len(candidates)-1)
		errs = append(errs, NewCallError(cand.provider.Name(), ClassifyError(err), err))
	}

	return nil, c.exhausted(ctx, callID, errs)
}

func callWithTools(ctx context.Context, p Provider, messages []protocol.Message, tools []protocol.Tool, opts ChatOptions) (*ToolsResponse, error) {
	if tc, ok := p.(ToolCaller); ok {
		return tc.ChatWithTools(ctx, messages, tools, opts)
	}

	resp, err := p.Chat(ctx, flattenToolsRequest(messages, tools), opts)
	if err != nil {
		return nil, err
	}
	return &ToolsResponse{Content: resp.Content, Model: resp.Model, Tokens: resp.Tokens}, nil
}

func (c *Chain) reportSuccess(ctx context.Context, callID string, cand *candidate) {
	wasUnhealthy := cand.health.recordSuccess()
	snap := cand.health.Snapshot()

	c.observer.OnEvent(ctx, observability.Event{
		Type:      EventProviderSuccess,
		Level:     observability.LevelInfo,
		Timestamp: c.now(),
		Source:    "providers.Chain",
		Data: map[string]any{
			"call_id":      callID,
			"provider":     cand.provider.Name(),
			"success_rate": snap.SuccessRate,
		},
	})

	if wasUnhealthy {
		c.observer.OnEvent(ctx, observability.Event{
			Type:      EventCooldownEnd,
			Level:     observability.LevelInfo,
			Timestamp: c.now(),
			Source:    "providers.Chain",
			Data: map[string]any{
				"call_id":  callID,
				"provider": cand.provider.Name(),
			},
		})
	}
}

func (c *Chain) reportFailure(ctx context.Context, callID string, cand *candidate, err error, hasNext bool) {
	code := ClassifyError(err)
	fatal := code == CodeAuthenticationFailed
	trippedNow := cand.health.recordFailure(c.now(), fatal)

	c.observer.OnEvent(ctx, observability.Event{
		Type:      EventProviderFailure,
		Level:     observability.LevelWarning,
		Timestamp: c.now(),
		Source:    "providers.Chain",
		Data: map[string]any{
			"call_id":  callID,
			"provider": cand.provider.Name(),
			"code":     string(code),
			"error":    err.Error(),
		},
	})

	if trippedNow {
		c.observer.OnEvent(ctx, observability.Event{
			Type:      EventCooldownStart,
			Level:     observability.LevelWarning,
			Timestamp: c.now(),
			Source:    "providers.Chain",
			Data: map[string]any{
				"call_id":  callID,
				"provider": cand.provider.Name(),
			},
		})
	}

	if hasNext {
		c.observer.OnEvent(ctx, observability.Event{
			Type:      EventProviderFallback,
			Level:     observability.LevelInfo,
			Timestamp: c.now(),
			Source:    "providers.Chain",
			Data: map[string]any{
				"call_id": callID,
				"from":    cand.provider.Name(),
			},
		})
	}
}

func (c *Chain) exhausted(ctx context.Context, callID string, errs []error) error {
	if len(errs) == 0 {
		return ErrNoProvidersConfigured
	}

	agg := newChainExhaustedError(errs)

	c.observer.OnEvent(ctx, observability.Event{
		Type:      EventChainExhausted,
		Level:     observability.LevelError,
		Timestamp: c.now(),
		Source:    "providers.Chain",
		Data: map[string]any{
			"call_id":  callID,
			"code":     string(agg.Code),
			"attempts": len(errs),
		},
	})

	return agg
}
