// Package policy decides which approver tier a gift request amount requires.
// It performs no I/O.
package policy

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/brindes-backend/pkg/db/models"
	"github.com/angelmondragon/brindes-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/brindes-backend/pkg/errors"
)

const (
	RequiredDirector          = "director"
	RequiredManagerOrDirector = "manager_or_director"
)

// Thresholds are the per cost center ceilings that route approvals. An unset
// ceiling never escalates.
type Thresholds struct {
	ManagerCeiling decimal.NullDecimal
	EventCeiling   decimal.NullDecimal
}

// ThresholdsFor extracts the routing ceilings of a cost center.
func ThresholdsFor(center models.CostCenter) Thresholds {
	return Thresholds{ManagerCeiling: center.ManagerCeiling, EventCeiling: center.EventCeiling}
}

// RequiresDirector reports whether amount strictly exceeds any set ceiling.
func RequiresDirector(amount decimal.Decimal, t Thresholds) bool {
	if t.ManagerCeiling.Valid && amount.GreaterThan(t.ManagerCeiling.Decimal) {
		return true
	}
	return t.EventCeiling.Valid && amount.GreaterThan(t.EventCeiling.Decimal)
}

// Decide returns the tier at which role may approve amount, or an
// INSUFFICIENT_TIER error naming the tier that is required.
func Decide(amount decimal.Decimal, t Thresholds, role enums.ActorRole) (enums.ApprovalTier, error) {
	if RequiresDirector(amount, t) {
		if !role.IsDirector() {
			return 0, insufficient(RequiredDirector, amount, role)
		}
		return enums.ApprovalTierDirector, nil
	}
	if !role.CanApprove() {
		return 0, insufficient(RequiredManagerOrDirector, amount, role)
	}
	return tierOf(role), nil
}

// DecideRejection returns the tier recorded when role rejects a request.
// Rejection only needs the role to approve at some tier.
func DecideRejection(role enums.ActorRole) (enums.ApprovalTier, error) {
	if !role.CanApprove() {
		return 0, pkgerrors.New(pkgerrors.CodeInsufficientTier, "rejection requires manager-or-director").
			WithDetails(map[string]any{"required_tier": RequiredManagerOrDirector, "actor_role": role})
	}
	return tierOf(role), nil
}

func tierOf(role enums.ActorRole) enums.ApprovalTier {
	if role.IsDirector() {
		return enums.ApprovalTierDirector
	}
	return enums.ApprovalTierManager
}

func insufficient(required string, amount decimal.Decimal, role enums.ActorRole) error {
	msg := "approval requires manager-or-director"
	if required == RequiredDirector {
		msg = "amount exceeds approval ceiling, requires director"
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientTier, msg).WithDetails(map[string]any{
		"required_tier": required,
		"amount":        amount.StringFixed(2),
		"actor_role":    role,
	})
}
