package agents

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/quorumtrade/quorum-api/internal/policy"
)

type stubCalendar struct {
	open bool
}

func (s *stubCalendar) IsOpen(t time.Time) bool { return s.open }

type stubPolicy struct {
	result policy.Result
	err    error
}

func (s *stubPolicy) Validate(accountID, symbol string, quantity int, notional float64) (policy.Result, error) {
	return s.result, s.err
}

type stubOrders struct {
	advanced bool
	err      error
}

func (s *stubOrders) HasAdvancedOrder(clientOrderID string) (bool, error) {
	return s.advanced, s.err
}

func TestValidationAgent_Evaluate(t *testing.T) {
	tests := []struct {
		name         string
		open         bool
		policyResult policy.Result
		advanced     bool
		wantApproved bool
		wantReason   string
	}{
		{
			name:         "all gates pass",
			open:         true,
			policyResult: policy.Result{Allowed: true},
			wantApproved: true,
		},
		{
			name:       "closed session rejects",
			open:       false,
			wantReason: "session closed",
		},
		{
			name:         "policy denial rejects",
			open:         true,
			policyResult: policy.Result{Allowed: false, Reason: "kill switch active for account"},
			wantReason:   "kill switch",
		},
		{
			name:         "advanced order rejects",
			open:         true,
			policyResult: policy.Result{Allowed: true},
			advanced:     true,
			wantReason:   "advanced past planned",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := NewValidationAgent(
				&stubCalendar{open: tt.open},
				&stubPolicy{result: tt.policyResult},
				&stubOrders{advanced: tt.advanced},
			)

			verdict, err := agent.Evaluate(context.Background(), decisionFor("BUY", 10), 1000)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}

			if verdict.Agent != AgentValidation {
				t.Errorf("Agent = %q, want %q", verdict.Agent, AgentValidation)
			}
			if verdict.Approved != tt.wantApproved {
				t.Errorf("Approved = %v, want %v", verdict.Approved, tt.wantApproved)
			}
			if tt.wantReason != "" && !strings.Contains(verdict.Reasoning, tt.wantReason) {
				t.Errorf("Reasoning = %q, want it to contain %q", verdict.Reasoning, tt.wantReason)
			}
		})
	}
}

func TestSessionCalendar_IsOpen(t *testing.T) {
	cal := NewSessionCalendar()

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"weekday midsession", time.Date(2026, 8, 31, 12, 0, 0, 0, time.Local), true},
		{"weekday before open", time.Date(2026, 8, 31, 1, 0, 0, 0, time.Local), false},
		{"weekday at open", time.Date(2026, 8, 31, 1, 30, 0, 0, time.Local), true},
		{"weekday at close", time.Date(2026, 8, 31, 23, 0, 0, 0, time.Local), false},
		{"saturday", time.Date(2026, 9, 5, 12, 0, 0, 0, time.Local), false},
		{"sunday", time.Date(2026, 9, 6, 12, 0, 0, 0, time.Local), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cal.IsOpen(tt.at); got != tt.want {
				t.Errorf("IsOpen(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}
