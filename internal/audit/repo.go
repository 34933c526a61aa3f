// Package audit keeps a Postgres ledger of finished checkouts.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akeditz/storefront/internal/checkout"
)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

// Entry is one finished checkout.
type Entry struct {
	CheckoutID string    `json:"checkout_id"`
	UserID     string    `json:"user_id"`
	ProjectID  string    `json:"project_id"`
	Method     string    `json:"method"`
	Outcome    string    `json:"outcome"`
	PaymentRef string    `json:"payment_ref,omitempty"`
	Amount     float64   `json:"amount"`
	Currency   string    `json:"currency"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

const schema = `
create table if not exists checkout_audit (
	checkout_id text primary key,
	user_id     text not null,
	project_id  text not null,
	method      text not null default '',
	outcome     text not null,
	payment_ref text not null default '',
	amount      numeric(12,2) not null,
	currency    text not null,
	started_at  timestamptz not null,
	finished_at timestamptz not null default now()
);
create index if not exists checkout_audit_user_idx on checkout_audit (user_id, finished_at desc);
`

// EnsureSchema creates the ledger table if it is missing.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

// Record stores the outcome of a checkout. A checkout is recorded once; a
// later record for the same id only upgrades it to succeeded.
func (r *Repo) Record(ctx context.Context, s checkout.Snapshot, outcome string) error {
	const q = `
insert into checkout_audit (checkout_id, user_id, project_id, method, outcome, payment_ref, amount, currency, started_at)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
on conflict (checkout_id) do update
set outcome = excluded.outcome, payment_ref = excluded.payment_ref, finished_at = now()
where excluded.outcome = 'succeeded' and checkout_audit.outcome <> 'succeeded';
`
	_, err := r.db.Exec(ctx, q,
		s.ID, s.UserID, s.ProjectID, string(s.Method), outcome, s.PaymentRef, s.Amount, s.Currency, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("record checkout %s: %w", s.ID, err)
	}
	return nil
}

func (r *Repo) ListByUser(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
select checkout_id, user_id, project_id, method, outcome, payment_ref, amount::float8, currency, started_at, finished_at
from checkout_audit
where user_id = $1
order by finished_at desc
limit $2;
`
	rows, err := r.db.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Entry, 0, 16)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.CheckoutID, &e.UserID, &e.ProjectID, &e.Method, &e.Outcome,
			&e.PaymentRef, &e.Amount, &e.Currency, &e.StartedAt, &e.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
