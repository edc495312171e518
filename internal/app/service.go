package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"dealdesk/api/internal/analysis"
	"dealdesk/api/internal/config"
	"dealdesk/api/internal/deal"
	"dealdesk/api/internal/store"
	"dealdesk/api/internal/util"
)

type CreateDealInput struct {
	InitiatorID      string  `json:"initiatorId"`
	InitiatorRole    string  `json:"initiatorRole"`
	ProjectID        string  `json:"projectId"`
	CounterpartyID   string  `json:"counterpartyId"`
	InvestmentAmount int64   `json:"investmentAmount"`
	EquityPercentage float64 `json:"equityPercentage"`
	ValidityDays     int     `json:"validityDays"`
	InstrumentType   string  `json:"instrumentType"`
	Conditions       string  `json:"conditions"`
}

type CounterDealInput struct {
	UserID           string  `json:"userId"`
	UserRole         string  `json:"userRole"`
	InvestmentAmount int64   `json:"investmentAmount"`
	EquityPercentage float64 `json:"equityPercentage"`
	ValidityDays     int     `json:"validityDays"`
	InstrumentType   string  `json:"instrumentType"`
	Conditions       string  `json:"conditions"`
	Rationale        string  `json:"rationale"`
}

type ActorInput struct {
	UserID   string `json:"userId"`
	UserRole string `json:"userRole"`
}

type CreateConnectionInput struct {
	InvestorID string `json:"investorId"`
	FounderID  string `json:"founderId"`
	ProjectID  string `json:"projectId"`
	Status     string `json:"status"`
}

type dealStore interface {
	InsertDeal(context.Context, store.Deal) error
	UpdateDeal(context.Context, store.Deal, int, deal.Status) (bool, error)
	GetDeal(context.Context, string) (store.Deal, error)
	ListDealsForUser(context.Context, string) ([]store.Deal, error)
	GetConnection(context.Context, string, string, string) (*store.Connection, error)
	InsertConnection(context.Context, store.Connection) error
	TouchConnection(context.Context, string) error
	Ping(ctx context.Context) error
}

type analysisTrigger interface {
	Enqueue(context.Context, analysis.Request) error
	Ping(context.Context) error
}

type Service struct {
	cfg      config.Config
	store    dealStore
	analysis analysisTrigger
	logger   *zap.Logger
}

func New(cfg config.Config, dataStore *store.PostgresStore, trigger *analysis.Queue, logger *zap.Logger) *Service {
	service := &Service{
		cfg:    cfg,
		store:  dataStore,
		logger: logger,
	}
	if trigger != nil {
		service.analysis = trigger
	}
	return service
}

// CreateDeal opens a negotiation: version 1, status PROPOSED, turn handed to
// the counterpart. Requires an active connection between the parties and no
// other non-terminal deal on the same (investor, founder, project) triple.
func (s *Service) CreateDeal(ctx context.Context, input CreateDealInput) (store.Deal, error) {
	initiatorID := strings.TrimSpace(input.InitiatorID)
	counterpartyID := strings.TrimSpace(input.CounterpartyID)
	projectID := strings.TrimSpace(input.ProjectID)
	if initiatorID == "" || counterpartyID == "" || projectID == "" {
		return store.Deal{}, domainError(http.StatusUnprocessableEntity, CodeValidation, "initiatorId, counterpartyId and projectId are required", nil)
	}
	role, ok := deal.NormalizeRole(input.InitiatorRole)
	if !ok {
		return store.Deal{}, domainError(http.StatusUnprocessableEntity, CodeValidation, "initiatorRole must be FOUNDER or INVESTOR", nil)
	}
	validityDays, err := s.resolveValidityDays(input.ValidityDays)
	if err != nil {
		return store.Deal{}, err
	}
	terms, err := deal.ComputeTerms(input.InvestmentAmount, input.EquityPercentage, deal.Instrument(input.InstrumentType), strings.TrimSpace(input.Conditions))
	if err != nil {
		return store.Deal{}, domainError(http.StatusUnprocessableEntity, CodeInvalidTerms, "investment amount must be positive and equity must be within (0, 100]", nil)
	}

	founderID, investorID := initiatorID, counterpartyID
	if role == deal.RoleInvestor {
		founderID, investorID = counterpartyID, initiatorID
	}

	connection, err := s.store.GetConnection(ctx, investorID, founderID, projectID)
	if err != nil {
		return store.Deal{}, err
	}
	if connection == nil {
		return store.Deal{}, domainError(http.StatusPreconditionFailed, CodeConnRequired, "No connection exists between these parties for this project", nil)
	}
	if connection.Status == store.ConnectionPaused || connection.Status == store.ConnectionRevoked {
		return store.Deal{}, domainError(http.StatusPreconditionFailed, CodeConnInactive, "The connection between these parties is not active", map[string]any{
			"connectionStatus": connection.Status,
		})
	}

	now := time.Now().UTC()
	validUntil := now.Add(time.Duration(validityDays) * 24 * time.Hour)
	item := store.Deal{
		ID:               util.NewID("deal"),
		ProjectID:        projectID,
		InvestorID:       investorID,
		FounderID:        founderID,
		ConnectionID:     connection.ID,
		InitiatedBy:      role,
		Status:           deal.StatusProposed,
		CurrentTerms:     terms,
		VersionNumber:    1,
		ValidUntil:       validUntil,
		ActionRequiredBy: role.Opposite(),
		VersionHistory: []store.DealVersion{{
			Version:      1,
			Terms:        terms,
			ProposedBy:   role,
			ProposedByID: initiatorID,
			ProposedAt:   now,
			ValidUntil:   validUntil,
		}},
		ActivityLog: []store.ActivityEntry{{
			Action:      store.ActionCreated,
			PerformedBy: initiatorID,
			Timestamp:   now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.InsertDeal(ctx, item); err != nil {
		if errors.Is(err, store.ErrDuplicateActiveDeal) {
			return store.Deal{}, domainError(http.StatusConflict, CodeDuplicateDeal, "An active deal already exists between these parties for this project", nil)
		}
		return store.Deal{}, err
	}

	s.notifyCollaborators(ctx, item, item.ActionRequiredBy)
	return item, nil
}

// CounterDeal appends a new version with fresh terms and flips the turn.
func (s *Service) CounterDeal(ctx context.Context, dealID string, input CounterDealInput) (store.Deal, error) {
	item, err := s.loadDeal(ctx, dealID)
	if err != nil {
		return store.Deal{}, err
	}
	nextVersion := item.VersionNumber + 1
	target := deal.CounterStatus(nextVersion)
	role, err := s.authorizeAction(item, input.UserID, input.UserRole, target)
	if err != nil {
		return store.Deal{}, err
	}

	if !deal.CanTransition(item.Status, target) {
		return store.Deal{}, invalidTransition(item.Status, target)
	}
	validityDays, err := s.resolveValidityDays(input.ValidityDays)
	if err != nil {
		return store.Deal{}, err
	}
	instrument := input.InstrumentType
	if strings.TrimSpace(instrument) == "" {
		instrument = string(item.CurrentTerms.InstrumentType)
	}
	terms, err := deal.ComputeTerms(input.InvestmentAmount, input.EquityPercentage, deal.Instrument(instrument), strings.TrimSpace(input.Conditions))
	if err != nil {
		return store.Deal{}, domainError(http.StatusUnprocessableEntity, CodeInvalidTerms, "investment amount must be positive and equity must be within (0, 100]", nil)
	}

	expectedVersion, expectedStatus := item.VersionNumber, item.Status
	now := time.Now().UTC()
	validUntil := now.Add(time.Duration(validityDays) * 24 * time.Hour)
	item.VersionHistory = append(item.VersionHistory, store.DealVersion{
		Version:      nextVersion,
		Terms:        terms,
		ProposedBy:   role,
		ProposedByID: input.UserID,
		ProposedAt:   now,
		ValidUntil:   validUntil,
		Rationale:    strings.TrimSpace(input.Rationale),
	})
	item.ActivityLog = append(item.ActivityLog, store.ActivityEntry{
		Action:      store.ActionCountered,
		PerformedBy: input.UserID,
		Timestamp:   now,
		Metadata:    map[string]any{"version": nextVersion},
	})
	item.CurrentTerms = terms
	item.VersionNumber = nextVersion
	item.ValidUntil = validUntil
	item.Status = target
	item.ActionRequiredBy = role.Opposite()
	item.UpdatedAt = now

	if err := s.persist(ctx, item, expectedVersion, expectedStatus); err != nil {
		return store.Deal{}, err
	}
	s.notifyCollaborators(ctx, item, item.ActionRequiredBy)
	return item, nil
}

// AcceptDeal finalizes the current terms. Accept and the system lock are a
// single atomic write: the record goes straight to LOCKED with both
// activity entries, so a crash can never leave a dangling ACCEPTED state.
func (s *Service) AcceptDeal(ctx context.Context, dealID string, input ActorInput) (store.Deal, error) {
	item, err := s.loadDeal(ctx, dealID)
	if err != nil {
		return store.Deal{}, err
	}
	role, err := s.authorizeAction(item, input.UserID, input.UserRole, deal.StatusAccepted)
	if err != nil {
		return store.Deal{}, err
	}
	if !deal.CanTransition(item.Status, deal.StatusAccepted) {
		return store.Deal{}, invalidTransition(item.Status, deal.StatusAccepted)
	}

	expectedVersion, expectedStatus := item.VersionNumber, item.Status
	now := time.Now().UTC()
	item.Status = deal.StatusLocked
	item.ActionRequiredBy = ""
	item.LockedAt = &now
	item.ActivityLog = append(item.ActivityLog,
		store.ActivityEntry{Action: store.ActionAccepted, PerformedBy: input.UserID, Timestamp: now},
		store.ActivityEntry{Action: store.ActionLocked, PerformedBy: deal.SystemActor, Timestamp: now},
	)
	item.UpdatedAt = now

	if err := s.persist(ctx, item, expectedVersion, expectedStatus); err != nil {
		return store.Deal{}, err
	}
	s.notifyCollaborators(ctx, item, role.Opposite())
	return item, nil
}

// DeclineDeal ends the negotiation in the terminal DECLINED state.
func (s *Service) DeclineDeal(ctx context.Context, dealID string, input ActorInput) (store.Deal, error) {
	item, err := s.loadDeal(ctx, dealID)
	if err != nil {
		return store.Deal{}, err
	}
	role, err := s.authorizeAction(item, input.UserID, input.UserRole, deal.StatusDeclined)
	if err != nil {
		return store.Deal{}, err
	}
	if !deal.CanTransition(item.Status, deal.StatusDeclined) {
		return store.Deal{}, invalidTransition(item.Status, deal.StatusDeclined)
	}

	expectedVersion, expectedStatus := item.VersionNumber, item.Status
	now := time.Now().UTC()
	item.Status = deal.StatusDeclined
	item.ActionRequiredBy = ""
	item.ActivityLog = append(item.ActivityLog, store.ActivityEntry{
		Action:      store.ActionDeclined,
		PerformedBy: input.UserID,
		Timestamp:   now,
	})
	item.UpdatedAt = now

	if err := s.persist(ctx, item, expectedVersion, expectedStatus); err != nil {
		return store.Deal{}, err
	}
	s.notifyCollaborators(ctx, item, role.Opposite())
	return item, nil
}

// GetDealByID fetches a deal, forcing a lapsed one into EXPIRED before any
// caller can observe it as active.
func (s *Service) GetDealByID(ctx context.Context, dealID string) (store.Deal, error) {
	item, err := s.store.GetDeal(ctx, dealID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Deal{}, domainError(http.StatusNotFound, CodeNotFound, "No deal with this id", nil)
		}
		return store.Deal{}, err
	}
	return s.sweepExpired(ctx, item)
}

// GetDealsForUser returns every deal the user participates in, most
// recently updated first, each swept for expiration.
func (s *Service) GetDealsForUser(ctx context.Context, userID string) ([]store.Deal, error) {
	items, err := s.store.ListDealsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		swept, err := s.sweepExpired(ctx, items[i])
		if err != nil {
			return nil, err
		}
		items[i] = swept
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
	return items, nil
}

// CreateConnection administers the gate records deal creation depends on.
func (s *Service) CreateConnection(ctx context.Context, input CreateConnectionInput) (store.Connection, error) {
	investorID := strings.TrimSpace(input.InvestorID)
	founderID := strings.TrimSpace(input.FounderID)
	projectID := strings.TrimSpace(input.ProjectID)
	if investorID == "" || founderID == "" || projectID == "" {
		return store.Connection{}, domainError(http.StatusUnprocessableEntity, CodeValidation, "investorId, founderId and projectId are required", nil)
	}
	status := strings.ToUpper(strings.TrimSpace(input.Status))
	if status == "" {
		status = store.ConnectionConnected
	}
	switch status {
	case store.ConnectionInterested, store.ConnectionConnected, store.ConnectionActive, store.ConnectionPaused, store.ConnectionRevoked:
	default:
		return store.Connection{}, domainError(http.StatusUnprocessableEntity, CodeValidation, "invalid connection status", nil)
	}
	item := store.Connection{
		ID:         util.NewID("conn"),
		InvestorID: investorID,
		FounderID:  founderID,
		ProjectID:  projectID,
		Status:     status,
	}
	if err := s.store.InsertConnection(ctx, item); err != nil {
		return store.Connection{}, err
	}
	return item, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingAnalysis(ctx context.Context) error {
	if s.analysis == nil {
		return nil
	}
	return s.analysis.Ping(ctx)
}

// loadDeal reads the record fresh and applies the expiration sweep before
// any other validation looks at status or turn.
func (s *Service) loadDeal(ctx context.Context, dealID string) (store.Deal, error) {
	item, err := s.store.GetDeal(ctx, strings.TrimSpace(dealID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Deal{}, domainError(http.StatusNotFound, CodeNotFound, "No deal with this id", nil)
		}
		return store.Deal{}, err
	}
	item, err = s.sweepExpired(ctx, item)
	if err != nil {
		return store.Deal{}, err
	}
	if item.Status == deal.StatusExpired {
		return store.Deal{}, domainError(http.StatusGone, CodeDealExpired, "This offer has expired", nil)
	}
	return item, nil
}

func (s *Service) authorizeAction(item store.Deal, userID, userRole string, target deal.Status) (deal.Role, error) {
	role, ok := deal.NormalizeRole(userRole)
	if !ok {
		return "", domainError(http.StatusUnprocessableEntity, CodeValidation, "userRole must be FOUNDER or INVESTOR", nil)
	}
	if partyID(item, role) != strings.TrimSpace(userID) || strings.TrimSpace(userID) == "" {
		return "", domainError(http.StatusForbidden, CodeUnauthorized, "You are not the "+strings.ToLower(string(role))+" on this deal", nil)
	}
	// Terminal records have no turn; report them as finalized, not as a
	// turn violation.
	if deal.IsTerminal(item.Status) {
		return "", invalidTransition(item.Status, target)
	}
	if item.ActionRequiredBy != role {
		return "", domainError(http.StatusConflict, CodeWrongTurn, "It is not your turn to act on this deal", map[string]any{
			"actionRequiredBy": item.ActionRequiredBy,
		})
	}
	return role, nil
}

// sweepExpired forces a lapsed non-terminal deal into EXPIRED and persists
// the transition. Losing the conditional write means another reader got
// there first; their result is taken as truth, so the EXPIRED activity
// entry is appended exactly once.
func (s *Service) sweepExpired(ctx context.Context, item store.Deal) (store.Deal, error) {
	if deal.IsTerminal(item.Status) || !item.ValidUntil.Before(time.Now().UTC()) {
		return item, nil
	}

	expectedVersion, expectedStatus := item.VersionNumber, item.Status
	now := time.Now().UTC()
	item.Status = deal.StatusExpired
	item.ActionRequiredBy = ""
	item.ActivityLog = append(item.ActivityLog, store.ActivityEntry{
		Action:      store.ActionExpired,
		PerformedBy: deal.SystemActor,
		Timestamp:   now,
	})
	item.UpdatedAt = now

	updated, err := s.store.UpdateDeal(ctx, item, expectedVersion, expectedStatus)
	if err != nil {
		return store.Deal{}, err
	}
	if !updated {
		fresh, err := s.store.GetDeal(ctx, item.ID)
		if err != nil {
			return store.Deal{}, fmt.Errorf("reload after expire conflict: %w", err)
		}
		return fresh, nil
	}
	s.logger.Info("deal expired on read", zap.String("deal_id", item.ID))
	return item, nil
}

func (s *Service) persist(ctx context.Context, item store.Deal, expectedVersion int, expectedStatus deal.Status) error {
	updated, err := s.store.UpdateDeal(ctx, item, expectedVersion, expectedStatus)
	if err != nil {
		return err
	}
	if !updated {
		return domainError(http.StatusConflict, CodeConcurrentEdit, "The deal changed while your action was processing; retry with a fresh read", nil)
	}
	return nil
}

func (s *Service) resolveValidityDays(days int) (int, error) {
	if days < 0 {
		return 0, domainError(http.StatusUnprocessableEntity, CodeValidation, "validityDays must not be negative", nil)
	}
	if days == 0 {
		return s.cfg.DefaultValidityDays, nil
	}
	return days, nil
}

func invalidTransition(from, to deal.Status) *DomainError {
	message := fmt.Sprintf("Deal status %s does not allow %s", from, to)
	if deal.IsTerminal(from) {
		message = "The deal terms are already finalized"
	}
	return domainError(http.StatusConflict, CodeBadTransition, message, map[string]any{
		"from": from,
		"to":   to,
	})
}

// notifyCollaborators performs the best-effort side effects after a
// successful transition. Failures are logged, never propagated.
func (s *Service) notifyCollaborators(ctx context.Context, item store.Deal, target deal.Role) {
	if s.analysis != nil {
		err := s.analysis.Enqueue(ctx, analysis.Request{
			DealID:        item.ID,
			VersionNumber: item.VersionNumber,
			TargetRole:    target,
			Terms:         item.CurrentTerms,
		})
		if err != nil {
			s.logger.Warn("analysis trigger failed", zap.String("deal_id", item.ID), zap.Error(err))
		}
	}
	if err := s.store.TouchConnection(ctx, item.ConnectionID); err != nil {
		s.logger.Warn("connection activity update failed", zap.String("connection_id", item.ConnectionID), zap.Error(err))
	}
}
