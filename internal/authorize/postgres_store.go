package authorize

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cardcore/authd/internal/pagination"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements the decision audit Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed decision store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Record(ctx context.Context, res *Result) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO decisions (
			id, account_id, card_number, amount, decision, reason, message,
			merchant_id, merchant_name, merchant_city, merchant_zip,
			category_code, type_code, channel, risk_score, tx_timestamp, decided_at
		) VALUES ($1, $2, $3, $4::NUMERIC(14,2), $5, $6, $7,
			$8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		res.ID, res.Request.AccountID, res.Request.CardNumber, res.Request.Amount.String(),
		string(res.Decision), string(res.Reason), res.Message,
		res.Request.MerchantID, res.Request.MerchantName, res.Request.MerchantCity, res.Request.MerchantZip,
		res.Request.CategoryCode, res.Request.TypeCode, res.Request.Channel,
		nullIfEmpty(res.RiskScore), res.Request.Timestamp, res.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListByAccount(ctx context.Context, accountID string, limit int, before *pagination.Cursor) ([]*Result, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, account_id, card_number, amount, decision, reason, message,
			merchant_id, merchant_name, merchant_city, merchant_zip,
			category_code, type_code, channel, COALESCE(risk_score, ''), tx_timestamp, decided_at
		FROM decisions
		WHERE account_id = $1`
	args := []interface{}{accountID}

	if before != nil {
		query += ` AND (decided_at, id) < ($2, $3)
		ORDER BY decided_at DESC, id DESC
		LIMIT $4`
		args = append(args, before.DecidedAt, before.ID, limit)
	} else {
		query += `
		ORDER BY decided_at DESC, id DESC
		LIMIT $2`
		args = append(args, limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []*Result
	for rows.Next() {
		res := &Result{}
		var decision, reason string
		err := rows.Scan(
			&res.ID, &res.Request.AccountID, &res.Request.CardNumber, &res.Request.Amount,
			&decision, &reason, &res.Message,
			&res.Request.MerchantID, &res.Request.MerchantName, &res.Request.MerchantCity, &res.Request.MerchantZip,
			&res.Request.CategoryCode, &res.Request.TypeCode, &res.Request.Channel,
			&res.RiskScore, &res.Request.Timestamp, &res.DecidedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		res.Decision = Decision(decision)
		res.Reason = Reason(reason)
		out = append(out, res)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
