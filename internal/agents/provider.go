package agents

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"
)

// Signal is one directional market view for a symbol. Sentiment is the
// conviction in Direction on [-1, 1]; negative values mean the provider
// doubts its own direction.
type Signal struct {
	Direction string  `json:"direction"` // BUY, SELL or HOLD
	Strength  float64 `json:"strength"`  // [0, 1]
	Sentiment float64 `json:"sentiment"` // [-1, 1]
	Rationale string  `json:"rationale"`
}

// SignalProvider supplies market views and reference prices to the
// analysis agents.
type SignalProvider interface {
	Signal(ctx context.Context, symbol string) (Signal, error)
	LastPrice(symbol string) (float64, error)
}

// SimulatedSignalProvider derives signals from synthetic RSI and volume
// readings. Prices are stable per symbol so repeated evaluations of the
// same decision stay consistent.
type SimulatedSignalProvider struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedSignalProvider creates a provider seeded for reproducible
// runs. Pass 0 to seed from the clock.
func NewSimulatedSignalProvider(seed int64) *SimulatedSignalProvider {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimulatedSignalProvider{rng: rand.New(rand.NewSource(seed))}
}

// Signal produces a synthetic view: oversold RSI reads as BUY, overbought
// as SELL, the middle band as HOLD with low conviction.
func (p *SimulatedSignalProvider) Signal(ctx context.Context, symbol string) (Signal, error) {
	if err := ctx.Err(); err != nil {
		return Signal{}, err
	}

	p.mu.Lock()
	rsi := 20 + p.rng.Float64()*60
	volumeRatio := 0.5 + p.rng.Float64()*1.5
	doubt := p.rng.Float64()
	p.mu.Unlock()

	sig := Signal{Direction: "HOLD"}
	switch {
	case rsi < 35:
		sig.Direction = "BUY"
		sig.Strength = clamp((35-rsi)/15*volumeRatio/2, 0, 1)
	case rsi > 65:
		sig.Direction = "SELL"
		sig.Strength = clamp((rsi-65)/15*volumeRatio/2, 0, 1)
	default:
		sig.Strength = 0.1
	}

	sig.Sentiment = clamp(0.3+sig.Strength*0.7-doubt*0.3, -1, 1)
	sig.Rationale = rationaleFor(sig.Direction, rsi, volumeRatio)
	return sig, nil
}

func rationaleFor(direction string, rsi, volumeRatio float64) string {
	switch direction {
	case "BUY":
		return fmt.Sprintf("oversold (RSI %.1f, volume ratio %.2f)", rsi, volumeRatio)
	case "SELL":
		return fmt.Sprintf("overbought (RSI %.1f, volume ratio %.2f)", rsi, volumeRatio)
	default:
		return fmt.Sprintf("no actionable setup (RSI %.1f)", rsi)
	}
}

// LastPrice returns a stable synthetic reference price for the symbol.
func (p *SimulatedSignalProvider) LastPrice(symbol string) (float64, error) {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	base := 50 + float64(h.Sum32()%450)
	return base, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
