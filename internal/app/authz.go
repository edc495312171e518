package app

import (
	"dealdesk/api/internal/deal"
	"dealdesk/api/internal/store"
)

// RoleOfUser resolves which side of the deal a user is on by direct field
// comparison. Empty when the user is neither party.
func RoleOfUser(d store.Deal, userID string) deal.Role {
	switch userID {
	case "":
		return ""
	case d.FounderID:
		return deal.RoleFounder
	case d.InvestorID:
		return deal.RoleInvestor
	default:
		return ""
	}
}

// CanUserActOnDeal is the single predicate the presentation layer uses to
// decide whether to offer counter/accept/decline controls. The engine
// re-derives the same checks on every mutation rather than trusting it.
func CanUserActOnDeal(d store.Deal, userID string) bool {
	role := RoleOfUser(d, userID)
	if role == "" {
		return false
	}
	return deal.IsActive(d.Status) && d.ActionRequiredBy == role
}

func partyID(d store.Deal, role deal.Role) string {
	if role == deal.RoleFounder {
		return d.FounderID
	}
	return d.InvestorID
}
