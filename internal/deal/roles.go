package deal

type Role string

const (
	RoleFounder  Role = "FOUNDER"
	RoleInvestor Role = "INVESTOR"
)

// SystemActor attributes activity entries produced by the engine itself,
// such as auto-lock and auto-expire.
const SystemActor = "SYSTEM"

func (r Role) Opposite() Role {
	if r == RoleFounder {
		return RoleInvestor
	}
	return RoleFounder
}

func NormalizeRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleFounder, RoleInvestor:
		return Role(raw), true
	default:
		return "", false
	}
}
