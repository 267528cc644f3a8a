package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"snapcode/internal/metrics"
)

// HealthState tracks one provider's recent behavior. It is rebuilt from
// scratch on restart; nothing here is persisted.
type HealthState struct {
	ProviderID          string
	ConsecutiveFailures int
	LastSuccessAt       time.Time
	LastFailureAt       time.Time
}

// RouterOptions tunes fallback behavior.
type RouterOptions struct {
	// MaxSwitches bounds how many providers one Convert call may try. This is
	// independent of the scheduler's per-job attempt counter.
	MaxSwitches int
	// FailureThreshold is the consecutive-failure count at which a provider
	// stops being eligible until Cooldown has passed since its last failure.
	FailureThreshold int
	Cooldown         time.Duration
}

// Router holds an ordered list of provider clients and executes fallback
// across them. Order encodes priority; callers are expected to place cheaper
// or preferred providers first.
type Router struct {
	clients []Client
	opts    RouterOptions
	log     zerolog.Logger
	now     func() time.Time

	mu     sync.Mutex
	health map[string]*HealthState
}

// NewRouter constructs a Router over the given clients, in priority order.
func NewRouter(clients []Client, opts RouterOptions, log zerolog.Logger) *Router {
	if opts.MaxSwitches <= 0 {
		opts.MaxSwitches = len(clients)
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 3
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 2 * time.Minute
	}
	health := make(map[string]*HealthState, len(clients))
	for _, c := range clients {
		health[c.Name()] = &HealthState{ProviderID: c.Name()}
	}
	return &Router{clients: clients, opts: opts, log: log, now: time.Now, health: health}
}

// WithClock overrides the clock, for tests.
func (r *Router) WithClock(now func() time.Time) *Router {
	r.now = now
	return r
}

// Health returns a snapshot of all provider health states.
func (r *Router) Health() []HealthState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]HealthState, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, *r.health[c.Name()])
	}
	return out
}

func (r *Router) eligible(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.health[name]
	if h.ConsecutiveFailures < r.opts.FailureThreshold {
		return true
	}
	// Tripped: eligible again once the cooldown has elapsed.
	return r.now().Sub(h.LastFailureAt) >= r.opts.Cooldown
}

func (r *Router) recordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.health[name]
	h.ConsecutiveFailures = 0
	h.LastSuccessAt = r.now()
}

func (r *Router) recordFailure(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.health[name]
	h.ConsecutiveFailures++
	h.LastFailureAt = r.now()
}

// Convert tries providers in priority order, skipping ineligible ones and
// falling over on any provider error, up to MaxSwitches attempts. The
// returned error aggregates the strongest rate-limit hint seen so the
// scheduler's backoff can honor it.
func (r *Router) Convert(ctx context.Context, req Request) (*RawResponse, error) {
	var (
		lastErr      error
		retryAfter   time.Duration
		switches     int
		allPermanent = true
	)
	for _, client := range r.clients {
		if switches >= r.opts.MaxSwitches {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := client.Name()
		if !r.eligible(name) {
			r.log.Debug().Str("provider", name).Msg("router: skipping ineligible provider")
			continue
		}
		switches++

		start := r.now()
		resp, err := client.Convert(ctx, req)
		metrics.ProviderLatency.WithLabelValues(name).Observe(r.now().Sub(start).Seconds())
		if err == nil {
			r.recordSuccess(name)
			metrics.ProviderCalls.WithLabelValues(name, "success").Inc()
			return resp, nil
		}

		// A failure caused by the caller's context expiring says nothing
		// about the provider's health; do not count it toward tripping.
		if ctx.Err() == nil {
			r.recordFailure(name)
		}
		metrics.ProviderCalls.WithLabelValues(name, "failure").Inc()
		lastErr = err
		var perr *Error
		if errors.As(err, &perr) {
			if perr.RetryAfter > retryAfter {
				retryAfter = perr.RetryAfter
			}
			if !perr.Permanent {
				allPermanent = false
			}
		} else {
			allPermanent = false
		}
		r.log.Warn().Err(err).
			Str("provider", name).
			Str("job_id", req.JobID).
			Msg("router: provider failed, trying next")
	}

	if lastErr == nil {
		lastErr = errors.New("no eligible provider")
		allPermanent = false
	}
	// Permanent only when every provider actually tried rejected for good.
	return nil, &Error{Provider: "router", RetryAfter: retryAfter, Permanent: allPermanent && switches > 0, Err: lastErr}
}
