package account

import (
	"context"
	"database/sql"
	"fmt"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed account store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Account, error) {
	acct := &Account{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, balance, credit_limit, cash_limit, active, cycle_credits, cycle_debits
		FROM accounts
		WHERE id = $1
	`, id).Scan(
		&acct.ID, &acct.Balance, &acct.CreditLimit, &acct.CashLimit,
		&acct.Active, &acct.CycleCredits, &acct.CycleDebits,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return acct, nil
}

func (p *PostgresStore) Put(ctx context.Context, acct *Account) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO accounts (id, balance, credit_limit, cash_limit, active, cycle_credits, cycle_debits, updated_at)
		VALUES ($1, $2::NUMERIC(14,2), $3::NUMERIC(14,2), $4::NUMERIC(14,2), $5, $6::NUMERIC(14,2), $7::NUMERIC(14,2), NOW())
		ON CONFLICT (id) DO UPDATE SET
			balance = EXCLUDED.balance,
			credit_limit = EXCLUDED.credit_limit,
			cash_limit = EXCLUDED.cash_limit,
			active = EXCLUDED.active,
			cycle_credits = EXCLUDED.cycle_credits,
			cycle_debits = EXCLUDED.cycle_debits,
			updated_at = NOW()
	`,
		acct.ID, acct.Balance.String(), acct.CreditLimit.String(), acct.CashLimit.String(),
		acct.Active, acct.CycleCredits.String(), acct.CycleDebits.String(),
	)
	if err != nil {
		return fmt.Errorf("put account: %w", err)
	}
	return nil
}
