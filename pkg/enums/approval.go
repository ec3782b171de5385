package enums

import "fmt"

// ApprovalDecision is the verdict recorded on an approval row.
type ApprovalDecision string

const (
	ApprovalDecisionApproved ApprovalDecision = "approved"
	ApprovalDecisionRejected ApprovalDecision = "rejected"
)

func (d ApprovalDecision) String() string {
	return string(d)
}

func (d ApprovalDecision) IsValid() bool {
	return d == ApprovalDecisionApproved || d == ApprovalDecisionRejected
}

// ApprovalTier is the hierarchy level at which a decision was taken.
type ApprovalTier int

const (
	ApprovalTierManager  ApprovalTier = 1
	ApprovalTierDirector ApprovalTier = 2
)

func (t ApprovalTier) IsValid() bool {
	return t == ApprovalTierManager || t == ApprovalTierDirector
}

func (t ApprovalTier) String() string {
	switch t {
	case ApprovalTierManager:
		return "manager"
	case ApprovalTierDirector:
		return "director"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}
