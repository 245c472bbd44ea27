package consensus

import (
	"strings"
	"testing"

	"github.com/quorumtrade/quorum-api/internal/types"
)

func verdict(agent string, approved bool) *types.AgentVerdict {
	return &types.AgentVerdict{
		Agent:     agent,
		Approved:  approved,
		Reasoning: "test reasoning",
	}
}

// TestCalculate_AllCombinations covers every combination of the three
// boolean verdicts against the two-of-three quorum.
func TestCalculate_AllCombinations(t *testing.T) {
	tests := []struct {
		name          string
		strategy      bool
		risk          bool
		validation    bool
		wantConsensus bool
		wantApprovals int
	}{
		{"all reject", false, false, false, false, 0},
		{"only validation approves", false, false, true, false, 1},
		{"only risk approves", false, true, false, false, 1},
		{"risk and validation approve", false, true, true, true, 2},
		{"only strategy approves", true, false, false, false, 1},
		{"strategy and validation approve", true, false, true, true, 2},
		{"strategy and risk approve", true, true, false, true, 2},
		{"all approve", true, true, true, true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := Calculate(
				verdict("strategy", tt.strategy),
				verdict("risk", tt.risk),
				verdict("validation", tt.validation),
				2,
			)

			if outcome.Consensus != tt.wantConsensus {
				t.Errorf("Consensus = %v, want %v", outcome.Consensus, tt.wantConsensus)
			}
			if outcome.Approvals != tt.wantApprovals {
				t.Errorf("Approvals = %d, want %d", outcome.Approvals, tt.wantApprovals)
			}
			if outcome.Required != 2 {
				t.Errorf("Required = %d, want 2", outcome.Required)
			}
		})
	}
}

func TestCalculate_SuccessReasonCountsAgents(t *testing.T) {
	outcome := Calculate(verdict("strategy", true), verdict("risk", true), verdict("validation", true), 2)
	if outcome.Reason != "3 of 3 agents approved" {
		t.Errorf("Reason = %q, want approvals over agent count", outcome.Reason)
	}

	outcome = Calculate(verdict("strategy", true), verdict("risk", true), verdict("validation", false), 2)
	if outcome.Reason != "2 of 3 agents approved" {
		t.Errorf("Reason = %q, want approvals over agent count", outcome.Reason)
	}
}

func TestCalculate_MissingVerdictCountsAsRejection(t *testing.T) {
	outcome := Calculate(verdict("strategy", true), nil, verdict("validation", true), 2)

	if !outcome.Consensus {
		t.Error("two approvals should reach consensus despite a missing verdict")
	}
	if outcome.Approvals != 2 {
		t.Errorf("Approvals = %d, want 2", outcome.Approvals)
	}

	outcome = Calculate(verdict("strategy", true), nil, nil, 2)
	if outcome.Consensus {
		t.Error("one approval must not reach consensus")
	}
	if !strings.Contains(outcome.Reason, "missing verdict") {
		t.Errorf("Reason = %q, want it to mention the missing verdicts", outcome.Reason)
	}
}

func TestCalculate_RejectionReasonsNamed(t *testing.T) {
	outcome := Calculate(
		verdict("strategy", true),
		&types.AgentVerdict{Agent: "risk", Approved: false, Reasoning: "composite risk too high"},
		verdict("validation", false),
		2,
	)

	if outcome.Consensus {
		t.Fatal("expected no consensus")
	}
	if !strings.Contains(outcome.Reason, "risk: composite risk too high") {
		t.Errorf("Reason = %q, want rejecting agents named with their reasoning", outcome.Reason)
	}
}
