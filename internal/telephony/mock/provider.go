// Package mock provides an in-process voice provider for local runs and tests.
package mock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ProductBay/vynce/internal/telephony"
	apperrors "github.com/ProductBay/vynce/pkg/errors"
)

// Config tunes the simulated provider.
type Config struct {
	// SuccessRate is the probability a placement succeeds when no rule matches.
	SuccessRate float64
	// Latency is the simulated round trip of every request.
	Latency time.Duration
	// Failures forces the given error for a destination number.
	Failures map[string]error
	// BeforePlace runs before each placement; tests use it to block or observe.
	BeforePlace func(ctx context.Context, req telephony.CallRequest)
}

// Provider simulates a voice provider and records every instruction it receives.
type Provider struct {
	cfg Config

	mu      sync.Mutex
	rng     *rand.Rand
	seq     int
	placed  []telephony.CallRequest
	hangups []string
	played  map[string]string
}

// NewProvider constructs a simulated provider.
func NewProvider(cfg Config) *Provider {
	if cfg.SuccessRate <= 0 {
		cfg.SuccessRate = 1
	}
	return &Provider{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		played: make(map[string]string),
	}
}

// PlaceCall simulates a call placement.
func (p *Provider) PlaceCall(ctx context.Context, req telephony.CallRequest) (string, error) {
	if p.cfg.BeforePlace != nil {
		p.cfg.BeforePlace(ctx, req)
	}
	if err := p.wait(ctx); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.placed = append(p.placed, req)

	if err, ok := p.cfg.Failures[req.To]; ok {
		return "", err
	}
	if p.rng.Float64() > p.cfg.SuccessRate {
		return "", fmt.Errorf("%w: simulated provider rejection", apperrors.ErrPlacement)
	}
	p.seq++
	return fmt.Sprintf("call-%d", p.seq), nil
}

// Hangup records the hangup request.
func (p *Provider) Hangup(ctx context.Context, callID string) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	p.hangups = append(p.hangups, callID)
	p.mu.Unlock()
	return nil
}

// PlayAndHangup records the spoken text and the hangup.
func (p *Provider) PlayAndHangup(ctx context.Context, callID, text string) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	p.played[callID] = text
	p.hangups = append(p.hangups, callID)
	p.mu.Unlock()
	return nil
}

// Placed returns the placement requests in arrival order.
func (p *Provider) Placed() []telephony.CallRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]telephony.CallRequest(nil), p.placed...)
}

// Hangups returns the call ids that were hung up.
func (p *Provider) Hangups() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.hangups...)
}

// Played returns the text spoken into callID, if any.
func (p *Provider) Played(callID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	text, ok := p.played[callID]
	return text, ok
}

func (p *Provider) wait(ctx context.Context) error {
	if p.cfg.Latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.cfg.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
