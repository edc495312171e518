package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"dealdesk/api/internal/deal"
)

// ErrDuplicateActiveDeal is returned when an insert collides with the
// partial unique index on (investor_id, founder_id, project_id) for
// non-terminal deals.
var ErrDuplicateActiveDeal = errors.New("active deal already exists for this pair and project")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

const dealColumns = `
	id, project_id, investor_id, founder_id, connection_id, initiated_by, status,
	investment_amount, equity_percentage, implied_valuation, post_money_valuation,
	instrument_type, conditions, version_number, valid_until, action_required_by,
	version_history, activity_log, created_at, updated_at, locked_at
`

func (s *PostgresStore) InsertDeal(ctx context.Context, item Deal) error {
	history, activity, err := encodeDealLogs(item)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO deals (
			id, project_id, investor_id, founder_id, connection_id, initiated_by, status,
			investment_amount, equity_percentage, implied_valuation, post_money_valuation,
			instrument_type, conditions, version_number, valid_until, action_required_by,
			version_history, activity_log, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17::jsonb, $18::jsonb, $19, $20)
	`,
		item.ID, item.ProjectID, item.InvestorID, item.FounderID, item.ConnectionID, string(item.InitiatedBy), string(item.Status),
		item.CurrentTerms.InvestmentAmount, item.CurrentTerms.EquityPercentage, item.CurrentTerms.ImpliedValuation, item.CurrentTerms.PostMoneyValuation,
		string(item.CurrentTerms.InstrumentType), item.CurrentTerms.Conditions, item.VersionNumber, item.ValidUntil, string(item.ActionRequiredBy),
		history, activity, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateActiveDeal
		}
		return fmt.Errorf("insert deal: %w", err)
	}
	return nil
}

// UpdateDeal persists the full aggregate conditioned on the record still
// holding the version and status the caller read. Zero rows affected means
// the record moved underneath the caller.
func (s *PostgresStore) UpdateDeal(ctx context.Context, item Deal, expectedVersion int, expectedStatus deal.Status) (bool, error) {
	history, activity, err := encodeDealLogs(item)
	if err != nil {
		return false, err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE deals
		SET status=$4,
			investment_amount=$5, equity_percentage=$6, implied_valuation=$7, post_money_valuation=$8,
			instrument_type=$9, conditions=$10, version_number=$11, valid_until=$12, action_required_by=$13,
			version_history=$14::jsonb, activity_log=$15::jsonb, updated_at=$16, locked_at=$17
		WHERE id=$1 AND version_number=$2 AND status=$3
	`,
		item.ID, expectedVersion, string(expectedStatus), string(item.Status),
		item.CurrentTerms.InvestmentAmount, item.CurrentTerms.EquityPercentage, item.CurrentTerms.ImpliedValuation, item.CurrentTerms.PostMoneyValuation,
		string(item.CurrentTerms.InstrumentType), item.CurrentTerms.Conditions, item.VersionNumber, item.ValidUntil, string(item.ActionRequiredBy),
		history, activity, item.UpdatedAt, item.LockedAt,
	)
	if err != nil {
		return false, fmt.Errorf("update deal: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update deal rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) GetDeal(ctx context.Context, dealID string) (Deal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+dealColumns+` FROM deals WHERE id=$1`, dealID)
	return scanDeal(row)
}

func (s *PostgresStore) ListDealsForUser(ctx context.Context, userID string) ([]Deal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+dealColumns+`
		FROM deals
		WHERE investor_id=$1 OR founder_id=$1
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list deals for user: %w", err)
	}
	defer rows.Close()

	items := make([]Deal, 0)
	for rows.Next() {
		item, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deals: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetConnection(ctx context.Context, investorID, founderID, projectID string) (*Connection, error) {
	var item Connection
	err := s.db.QueryRowContext(ctx, `
		SELECT id, investor_id, founder_id, project_id, status, last_activity_at, created_at
		FROM connections
		WHERE investor_id=$1 AND founder_id=$2 AND project_id=$3
	`, investorID, founderID, projectID).Scan(
		&item.ID,
		&item.InvestorID,
		&item.FounderID,
		&item.ProjectID,
		&item.Status,
		&item.LastActivityAt,
		&item.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) InsertConnection(ctx context.Context, item Connection) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connections (id, investor_id, founder_id, project_id, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (investor_id, founder_id, project_id) DO UPDATE SET status=EXCLUDED.status
	`, item.ID, item.InvestorID, item.FounderID, item.ProjectID, item.Status)
	if err != nil {
		return fmt.Errorf("insert connection: %w", err)
	}
	return nil
}

func (s *PostgresStore) TouchConnection(ctx context.Context, connectionID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE connections SET last_activity_at=NOW() WHERE id=$1`, connectionID)
	if err != nil {
		return fmt.Errorf("touch connection: %w", err)
	}
	return nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeal(row rowScanner) (Deal, error) {
	var (
		item                    Deal
		initiatedBy, status     string
		instrument, required    string
		historyRaw, activityRaw []byte
		lockedAt                sql.NullTime
	)
	err := row.Scan(
		&item.ID,
		&item.ProjectID,
		&item.InvestorID,
		&item.FounderID,
		&item.ConnectionID,
		&initiatedBy,
		&status,
		&item.CurrentTerms.InvestmentAmount,
		&item.CurrentTerms.EquityPercentage,
		&item.CurrentTerms.ImpliedValuation,
		&item.CurrentTerms.PostMoneyValuation,
		&instrument,
		&item.CurrentTerms.Conditions,
		&item.VersionNumber,
		&item.ValidUntil,
		&required,
		&historyRaw,
		&activityRaw,
		&item.CreatedAt,
		&item.UpdatedAt,
		&lockedAt,
	)
	if err != nil {
		return Deal{}, err
	}
	item.InitiatedBy = deal.Role(initiatedBy)
	item.Status = deal.Status(status)
	item.CurrentTerms.InstrumentType = deal.Instrument(instrument)
	item.ActionRequiredBy = deal.Role(required)
	if lockedAt.Valid {
		at := lockedAt.Time
		item.LockedAt = &at
	}
	if err := json.Unmarshal(historyRaw, &item.VersionHistory); err != nil {
		return Deal{}, fmt.Errorf("decode version history: %w", err)
	}
	if err := json.Unmarshal(activityRaw, &item.ActivityLog); err != nil {
		return Deal{}, fmt.Errorf("decode activity log: %w", err)
	}
	return item, nil
}

func encodeDealLogs(item Deal) (history, activity []byte, err error) {
	versions := item.VersionHistory
	if versions == nil {
		versions = []DealVersion{}
	}
	history, err = json.Marshal(versions)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal version history: %w", err)
	}
	entries := item.ActivityLog
	if entries == nil {
		entries = []ActivityEntry{}
	}
	activity, err = json.Marshal(entries)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal activity log: %w", err)
	}
	return history, activity, nil
}
