// Package consensus tallies agent verdicts into a single go/no-go call.
// It is pure computation; persistence and timeouts belong to the caller.
package consensus

import (
	"fmt"
	"strings"

	"github.com/quorumtrade/quorum-api/internal/types"
)

// Outcome is the result of tallying the verdicts for one decision.
type Outcome struct {
	Consensus bool   `json:"consensus"`
	Approvals int    `json:"approvals"`
	Required  int    `json:"required"`
	Reason    string `json:"reason"`
}

// Calculate tallies the three verdicts against the required approval
// count. A missing verdict counts as a rejection; the tally never waits.
func Calculate(strategy, risk, validation *types.AgentVerdict, required int) Outcome {
	outcome := Outcome{Required: required}

	verdicts := []*types.AgentVerdict{strategy, risk, validation}

	var rejections []string
	for _, v := range verdicts {
		switch {
		case v == nil:
			rejections = append(rejections, "missing verdict")
		case v.Approved:
			outcome.Approvals++
		default:
			rejections = append(rejections, fmt.Sprintf("%s: %s", v.Agent, v.Reasoning))
		}
	}

	outcome.Consensus = outcome.Approvals >= required
	if outcome.Consensus {
		outcome.Reason = fmt.Sprintf("%d of %d agents approved", outcome.Approvals, len(verdicts))
	} else {
		outcome.Reason = fmt.Sprintf("%d of %d required approvals; %s",
			outcome.Approvals, required, strings.Join(rejections, "; "))
	}
	return outcome
}
