// Package approval decides what happens to a confirmed selection: reject
// it, queue it for a human reviewer, or submit it downstream right away.
package approval

import (
	"context"
	"fmt"

	slogctx "github.com/veqryn/slog-context"

	"github.com/requestline/intake-bot/internal/fulfillment"
)

// Policy is the system-wide approval mode. It is a single setting, not a
// per-session one.
type Policy string

const (
	PolicyAutoApprove Policy = "auto_approve"
	PolicyAutoDeny    Policy = "auto_deny"
	PolicyManual      Policy = "manual"
)

func (p Policy) Valid() bool {
	switch p {
	case PolicyAutoApprove, PolicyAutoDeny, PolicyManual:
		return true
	}

	return false
}

type Status string

const (
	StatusRejected  Status = "REJECTED"
	StatusPending   Status = "PENDING"
	StatusSubmitted Status = "SUBMITTED"
	StatusFailed    Status = "FAILED"
)

// Outcome is the terminal result of an approval decision. It is ephemeral;
// the conversation engine relays it to the user and does not persist it.
type Outcome struct {
	Status  Status
	Message string
}

type PolicyStore interface {
	GetApprovalPolicy(ctx context.Context) (Policy, error)
}

// Service applies the approval policy to confirmed selections. The caller
// guards invocation so each confirmed selection is decided at most once.
type Service struct {
	policies  PolicyStore
	submitter fulfillment.Submitter
}

func NewService(policies PolicyStore, submitter fulfillment.Submitter) *Service {
	return &Service{
		policies:  policies,
		submitter: submitter,
	}
}

// Decide resolves the request against the current policy. Only auto_approve
// touches the downstream submission collaborator; a manual decision is
// flipped out-of-band by a reviewer later.
func (s *Service) Decide(ctx context.Context, req fulfillment.Request) (Outcome, error) {
	policy, err := s.policies.GetApprovalPolicy(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("getting approval policy: %w", err)
	}

	switch policy {
	case PolicyAutoDeny:
		return Outcome{Status: StatusRejected}, nil

	case PolicyManual:
		return Outcome{Status: StatusPending}, nil

	case PolicyAutoApprove:
		if err := s.submitter.Submit(ctx, req); err != nil {
			slogctx.Warn(ctx, "Downstream submission failed", "title", req.Candidate.Title, "error", err)

			return Outcome{
				Status:  StatusFailed,
				Message: err.Error(),
			}, nil
		}

		return Outcome{Status: StatusSubmitted}, nil

	default:
		return Outcome{}, fmt.Errorf("unknown approval policy %q", policy)
	}
}
