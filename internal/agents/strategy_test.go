package agents

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/quorumtrade/quorum-api/internal/types"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

type stubSignals struct {
	sig   Signal
	price float64
	err   error
}

func (s *stubSignals) Signal(ctx context.Context, symbol string) (Signal, error) {
	return s.sig, s.err
}

func (s *stubSignals) LastPrice(symbol string) (float64, error) {
	return s.price, nil
}

func decisionFor(action string, quantity int) *types.TradingDecision {
	return &types.TradingDecision{
		ClientOrderID: "test-order-1",
		AccountID:     "ACC_1",
		Symbol:        "AAPL",
		Action:        action,
		OrderType:     "MKT",
		Quantity:      quantity,
	}
}

func TestStrategyAgent_Evaluate(t *testing.T) {
	tests := []struct {
		name           string
		action         string
		sig            Signal
		wantApproved   bool
		wantConfidence float64
	}{
		{
			name:           "aligned buy signal approves",
			action:         "BUY",
			sig:            Signal{Direction: "BUY", Strength: 0.4, Sentiment: 0.5},
			wantApproved:   true,
			wantConfidence: 0.9,
		},
		{
			name:           "aligned sell signal approves",
			action:         "SELL",
			sig:            Signal{Direction: "SELL", Strength: 0.3, Sentiment: 0.6},
			wantApproved:   true,
			wantConfidence: 0.9,
		},
		{
			name:         "opposing direction rejects",
			action:       "BUY",
			sig:          Signal{Direction: "SELL", Strength: 0.8, Sentiment: 0.9},
			wantApproved: false,
		},
		{
			name:         "hold signal rejects",
			action:       "BUY",
			sig:          Signal{Direction: "HOLD", Strength: 0.1, Sentiment: 0.3},
			wantApproved: false,
		},
		{
			name:         "weak sentiment rejects despite alignment",
			action:       "BUY",
			sig:          Signal{Direction: "BUY", Strength: 0.5, Sentiment: 0.1},
			wantApproved: false,
		},
		{
			name:           "confidence capped at 0.95",
			action:         "BUY",
			sig:            Signal{Direction: "BUY", Strength: 0.9, Sentiment: 0.9},
			wantApproved:   true,
			wantConfidence: 0.95,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := NewStrategyAgent(&stubSignals{sig: tt.sig})

			verdict, err := agent.Evaluate(context.Background(), decisionFor(tt.action, 10))
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}

			if verdict.Agent != AgentStrategy {
				t.Errorf("Agent = %q, want %q", verdict.Agent, AgentStrategy)
			}
			if verdict.Approved != tt.wantApproved {
				t.Errorf("Approved = %v, want %v", verdict.Approved, tt.wantApproved)
			}
			if tt.wantApproved && abs64(verdict.Confidence-tt.wantConfidence) > 1e-9 {
				t.Errorf("Confidence = %v, want %v", verdict.Confidence, tt.wantConfidence)
			}
			if verdict.Reasoning == "" {
				t.Error("Reasoning must not be empty")
			}
		})
	}
}

func TestStrategyAgent_SignalError(t *testing.T) {
	agent := NewStrategyAgent(&stubSignals{err: errors.New("feed down")})

	_, err := agent.Evaluate(context.Background(), decisionFor("BUY", 10))
	if err == nil {
		t.Fatal("expected error when the signal source fails")
	}
}

func abs64(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
