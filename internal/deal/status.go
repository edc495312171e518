package deal

type Status string

const (
	StatusProposed    Status = "PROPOSED"
	StatusCountered   Status = "COUNTERED"
	StatusNegotiating Status = "NEGOTIATING"
	StatusAccepted    Status = "ACCEPTED"
	StatusLocked      Status = "LOCKED"
	StatusExpired     Status = "EXPIRED"
	StatusDeclined    Status = "DECLINED"
)

var transitions = map[Status][]Status{
	StatusProposed:    {StatusCountered, StatusAccepted, StatusDeclined, StatusExpired},
	StatusCountered:   {StatusCountered, StatusNegotiating, StatusAccepted, StatusDeclined, StatusExpired},
	StatusNegotiating: {StatusCountered, StatusNegotiating, StatusAccepted, StatusDeclined, StatusExpired},
	StatusAccepted:    {StatusLocked},
	StatusLocked:      {},
	StatusExpired:     {},
	StatusDeclined:    {},
}

// CanTransition reports whether the lifecycle allows moving from one status
// to another. Pure lookup; callers decide how to react to false.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no outgoing transitions.
func IsTerminal(status Status) bool {
	return status == StatusLocked || status == StatusExpired || status == StatusDeclined
}

// IsActive reports whether a deal in this status is still negotiable.
func IsActive(status Status) bool {
	return status == StatusProposed || status == StatusCountered || status == StatusNegotiating
}

// CounterStatus picks the status a counter-offer lands in. The first counter
// (version 2) is COUNTERED; anything later is ongoing back-and-forth.
func CounterStatus(nextVersion int) Status {
	if nextVersion >= 3 {
		return StatusNegotiating
	}
	return StatusCountered
}

func NormalizeStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusProposed, StatusCountered, StatusNegotiating, StatusAccepted, StatusLocked, StatusExpired, StatusDeclined:
		return Status(raw), true
	default:
		return "", false
	}
}
