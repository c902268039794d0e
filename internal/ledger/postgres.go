package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists deposits in PostgreSQL.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

const depositColumns = `id, user_id, amount, reference, status, reviewed_by, reviewed_at, created_at`

func scanDeposit(row pgx.Row) (Deposit, error) {
	var (
		d          Deposit
		id, userID uuid.UUID
		reviewedBy *uuid.UUID
	)
	if err := row.Scan(&id, &userID, &d.Amount, &d.Reference, &d.Status, &reviewedBy, &d.ReviewedAt, &d.CreatedAt); err != nil {
		return Deposit{}, err
	}
	d.ID = id.String()
	d.UserID = userID.String()
	if reviewedBy != nil {
		d.ReviewedBy = reviewedBy.String()
	}
	d.CreatedAt = d.CreatedAt.UTC()
	return d, nil
}

// Record inserts a pending deposit. A reused reference returns the stored
// deposit with ErrDuplicateDeposit.
func (l *PostgresLedger) Record(ctx context.Context, d Deposit) (Deposit, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return Deposit{}, fmt.Errorf("deposit id: %w", err)
	}
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return Deposit{}, fmt.Errorf("deposit user id: %w", err)
	}
	row := l.db.QueryRow(ctx, `INSERT INTO deposits (id, user_id, amount, reference, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (reference) DO NOTHING
        RETURNING `+depositColumns, id, userID, d.Amount, d.Reference, d.Status, d.CreatedAt.UTC())
	stored, err := scanDeposit(row)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Deposit{}, err
	}
	existing, err := scanDeposit(l.db.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE reference = $1`, d.Reference))
	if err != nil {
		return Deposit{}, err
	}
	return existing, ErrDuplicateDeposit
}

func (l *PostgresLedger) Get(ctx context.Context, id string) (Deposit, error) {
	depositID, err := uuid.Parse(id)
	if err != nil {
		return Deposit{}, ErrDepositNotFound
	}
	d, err := scanDeposit(l.db.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1`, depositID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Deposit{}, ErrDepositNotFound
	}
	return d, err
}

func (l *PostgresLedger) List(ctx context.Context, status, userID string) ([]Deposit, error) {
	query := `SELECT ` + depositColumns + ` FROM deposits WHERE ($1 = '' OR status = $1)`
	args := []any{status}
	if userID != "" {
		uid, err := uuid.Parse(userID)
		if err != nil {
			return []Deposit{}, nil
		}
		query += ` AND user_id = $2`
		args = append(args, uid)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Deposit{}
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Review locks the deposit row and moves it out of pending.
func (l *PostgresLedger) Review(ctx context.Context, id, reviewerID, status string, at time.Time) (Deposit, error) {
	depositID, err := uuid.Parse(id)
	if err != nil {
		return Deposit{}, ErrDepositNotFound
	}
	reviewer, err := uuid.Parse(reviewerID)
	if err != nil {
		return Deposit{}, fmt.Errorf("reviewer id: %w", err)
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Deposit{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	current, err := scanDeposit(tx.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1 FOR UPDATE`, depositID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Deposit{}, ErrDepositNotFound
		}
		return Deposit{}, err
	}
	if current.Status != StatusPending {
		return current, ErrAlreadyReviewed
	}

	updated, err := scanDeposit(tx.QueryRow(ctx, `UPDATE deposits SET status = $2, reviewed_by = $3, reviewed_at = $4
        WHERE id = $1 RETURNING `+depositColumns, depositID, status, reviewer, at.UTC()))
	if err != nil {
		return Deposit{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Deposit{}, err
	}
	return updated, nil
}
