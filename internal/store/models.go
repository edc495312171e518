package store

import (
	"time"

	"dealdesk/api/internal/deal"
)

// Activity log actions. Every transition appends exactly one entry, except
// accept which also appends the system lock entry.
const (
	ActionCreated   = "CREATED"
	ActionCountered = "COUNTERED"
	ActionAccepted  = "ACCEPTED"
	ActionLocked    = "LOCKED"
	ActionDeclined  = "DECLINED"
	ActionExpired   = "EXPIRED"
)

// Connection gate statuses.
const (
	ConnectionInterested = "INTERESTED"
	ConnectionConnected  = "CONNECTED"
	ConnectionActive     = "ACTIVE"
	ConnectionPaused     = "PAUSED"
	ConnectionRevoked    = "REVOKED"
)

type Connection struct {
	ID             string
	InvestorID     string
	FounderID      string
	ProjectID      string
	Status         string
	LastActivityAt time.Time
	CreatedAt      time.Time
}

type DealVersion struct {
	Version      int        `json:"version"`
	Terms        deal.Terms `json:"terms"`
	ProposedBy   deal.Role  `json:"proposedBy"`
	ProposedByID string     `json:"proposedById"`
	ProposedAt   time.Time  `json:"proposedAt"`
	ValidUntil   time.Time  `json:"validUntil"`
	Rationale    string     `json:"rationale,omitempty"`
}

type ActivityEntry struct {
	Action      string         `json:"action"`
	PerformedBy string         `json:"performedBy"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Deal is the aggregate negotiation record. CurrentTerms, VersionNumber and
// ValidUntil always mirror the highest-numbered entry in VersionHistory;
// ActionRequiredBy is empty once the status is terminal.
type Deal struct {
	ID               string
	ProjectID        string
	InvestorID       string
	FounderID        string
	ConnectionID     string
	InitiatedBy      deal.Role
	Status           deal.Status
	CurrentTerms     deal.Terms
	VersionNumber    int
	ValidUntil       time.Time
	ActionRequiredBy deal.Role
	VersionHistory   []DealVersion
	ActivityLog      []ActivityEntry
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LockedAt         *time.Time
}
