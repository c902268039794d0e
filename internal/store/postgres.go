package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

//go:embed schema.sql
var schemaSQL string

// Migrate applies the idempotent schema for PostgresStore and the deposit
// ledger. Statements carry no arguments, so pgx sends them in one batch.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	pgQueries
	pool *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pgQueries: pgQueries{db: pool}, pool: pool}
}

// WithTx runs fn inside a read-committed transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(pgQueries{db: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPgError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type pgQueries struct {
	db   dbtx
	inTx bool
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case "users_phone_key":
		return ErrDuplicatePhone
	case "user_referrals_referral_code_key":
		return ErrDuplicateReferralCode
	default:
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

const userColumns = `id, first_name, COALESCE(last_name, ''), phone, phone_verified, role,
        COALESCE(avatar_url, ''), status, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Phone, &u.PhoneVerified, &u.Role,
		&u.AvatarURL, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, notFound(err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func (q pgQueries) FindUserByID(ctx context.Context, id string) (User, error) {
	if !validID(id) {
		return User{}, ErrNotFound
	}
	return scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (q pgQueries) FindUserByPhone(ctx context.Context, phone string) (User, error) {
	return scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone))
}

func (q pgQueries) ListUserOverviews(ctx context.Context) ([]UserOverview, error) {
	const query = `
        SELECT u.id, u.first_name, COALESCE(u.last_name, ''), u.phone, u.phone_verified, u.role,
               COALESCE(u.avatar_url, ''), u.status, u.created_at, u.updated_at,
               a.last_login, a.locked_until, COALESCE(p.pin_set, FALSE),
               COALESCE(r.referral_code, ''), COALESCE(r.total_referrals, 0), COALESCE(r.total_earnings, 0)
        FROM users u
        LEFT JOIN authentication a ON a.user_id = u.id
        LEFT JOIN pins p ON p.user_id = u.id
        LEFT JOIN user_referrals r ON r.user_id = u.id
        ORDER BY u.created_at DESC`
	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserOverview
	for rows.Next() {
		var ov UserOverview
		u := &ov.User
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Phone, &u.PhoneVerified, &u.Role,
			&u.AvatarURL, &u.Status, &u.CreatedAt, &u.UpdatedAt,
			&ov.LastLogin, &ov.LockedUntil, &ov.PinSet,
			&ov.ReferralCode, &ov.TotalReferrals, &ov.TotalEarnings); err != nil {
			return nil, err
		}
		out = append(out, ov)
	}
	return out, rows.Err()
}

func (q pgQueries) InsertUser(ctx context.Context, u User) error {
	_, err := q.db.Exec(ctx, `INSERT INTO users (id, first_name, last_name, phone, phone_verified, role, avatar_url, status, created_at, updated_at)
        VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''), $8, $9, $10)`,
		u.ID, u.FirstName, u.LastName, u.Phone, u.PhoneVerified, u.Role, u.AvatarURL, u.Status, u.CreatedAt.UTC(), u.UpdatedAt.UTC())
	return mapPgError(err)
}

func (q pgQueries) UpdateUserStatus(ctx context.Context, id, status string, at time.Time) error {
	if !validID(id) {
		return ErrNotFound
	}
	cmd, err := q.db.Exec(ctx, `UPDATE users SET status = $1, updated_at = $2 WHERE id = $3`, status, at.UTC(), id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q pgQueries) findCredential(ctx context.Context, userID string, forUpdate bool) (Credential, error) {
	if !validID(userID) {
		return Credential{}, ErrNotFound
	}
	query := `SELECT user_id, password_hash, login_attempts, last_login, locked_until, updated_at
        FROM authentication WHERE user_id = $1`
	if forUpdate && q.inTx {
		query += ` FOR UPDATE`
	}
	var c Credential
	if err := q.db.QueryRow(ctx, query, userID).Scan(&c.UserID, &c.PasswordHash, &c.LoginAttempts,
		&c.LastLogin, &c.LockedUntil, &c.UpdatedAt); err != nil {
		return Credential{}, notFound(err)
	}
	return c, nil
}

func (q pgQueries) FindCredential(ctx context.Context, userID string) (Credential, error) {
	return q.findCredential(ctx, userID, false)
}

func (q pgQueries) LockCredential(ctx context.Context, userID string) (Credential, error) {
	return q.findCredential(ctx, userID, true)
}

func (q pgQueries) InsertCredential(ctx context.Context, c Credential) error {
	_, err := q.db.Exec(ctx, `INSERT INTO authentication (user_id, password_hash, login_attempts, last_login, locked_until, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)`, c.UserID, c.PasswordHash, c.LoginAttempts, c.LastLogin, c.LockedUntil, c.UpdatedAt.UTC())
	return mapPgError(err)
}

func (q pgQueries) UpdateCredential(ctx context.Context, c Credential) error {
	cmd, err := q.db.Exec(ctx, `UPDATE authentication
        SET password_hash = $1, login_attempts = $2, last_login = $3, locked_until = $4, updated_at = $5
        WHERE user_id = $6`, c.PasswordHash, c.LoginAttempts, c.LastLogin, c.LockedUntil, c.UpdatedAt.UTC(), c.UserID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q pgQueries) findPin(ctx context.Context, userID string, forUpdate bool) (PinRecord, error) {
	if !validID(userID) {
		return PinRecord{}, ErrNotFound
	}
	query := `SELECT user_id, transaction_pin_hash, pin_set, pin_attempts, pin_locked_until, updated_at
        FROM pins WHERE user_id = $1`
	if forUpdate && q.inTx {
		query += ` FOR UPDATE`
	}
	var p PinRecord
	if err := q.db.QueryRow(ctx, query, userID).Scan(&p.UserID, &p.PinHash, &p.PinSet, &p.PinAttempts,
		&p.PinLockedUntil, &p.UpdatedAt); err != nil {
		return PinRecord{}, notFound(err)
	}
	return p, nil
}

func (q pgQueries) FindPin(ctx context.Context, userID string) (PinRecord, error) {
	return q.findPin(ctx, userID, false)
}

func (q pgQueries) LockPin(ctx context.Context, userID string) (PinRecord, error) {
	return q.findPin(ctx, userID, true)
}

func (q pgQueries) InsertPin(ctx context.Context, p PinRecord) error {
	_, err := q.db.Exec(ctx, `INSERT INTO pins (user_id, transaction_pin_hash, pin_set, pin_attempts, pin_locked_until, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)`, p.UserID, p.PinHash, p.PinSet, p.PinAttempts, p.PinLockedUntil, p.UpdatedAt.UTC())
	return mapPgError(err)
}

func (q pgQueries) UpdatePin(ctx context.Context, p PinRecord) error {
	cmd, err := q.db.Exec(ctx, `UPDATE pins
        SET transaction_pin_hash = $1, pin_set = $2, pin_attempts = $3, pin_locked_until = $4, updated_at = $5
        WHERE user_id = $6`, p.PinHash, p.PinSet, p.PinAttempts, p.PinLockedUntil, p.UpdatedAt.UTC(), p.UserID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q pgQueries) AppendPinAudit(ctx context.Context, e PinAuditEntry) error {
	_, err := q.db.Exec(ctx, `INSERT INTO pin_audit (id, user_id, action_type, reason, created_at)
        VALUES ($1, $2, $3, $4, $5)`, e.ID, e.UserID, e.Action, e.Reason, e.CreatedAt.UTC())
	return mapPgError(err)
}

func (q pgQueries) ListPinAudit(ctx context.Context, userID string) ([]PinAuditEntry, error) {
	if !validID(userID) {
		return nil, nil
	}
	rows, err := q.db.Query(ctx, `SELECT id, user_id, action_type, COALESCE(reason, ''), created_at
        FROM pin_audit WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PinAuditEntry
	for rows.Next() {
		var e PinAuditEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const referralColumns = `user_id, referral_code, total_referrals, total_earnings, is_active, updated_at`

func scanReferral(row pgx.Row) (ReferralCode, error) {
	var r ReferralCode
	if err := row.Scan(&r.UserID, &r.Code, &r.TotalReferrals, &r.TotalEarnings, &r.IsActive, &r.UpdatedAt); err != nil {
		return ReferralCode{}, notFound(err)
	}
	return r, nil
}

func (q pgQueries) FindReferralCodeByUser(ctx context.Context, userID string) (ReferralCode, error) {
	if !validID(userID) {
		return ReferralCode{}, ErrNotFound
	}
	return scanReferral(q.db.QueryRow(ctx, `SELECT `+referralColumns+` FROM user_referrals WHERE user_id = $1`, userID))
}

func (q pgQueries) FindReferralCode(ctx context.Context, code string) (ReferralCode, error) {
	return scanReferral(q.db.QueryRow(ctx, `SELECT `+referralColumns+` FROM user_referrals WHERE referral_code = $1`, code))
}

func (q pgQueries) InsertReferralCode(ctx context.Context, r ReferralCode) error {
	_, err := q.db.Exec(ctx, `INSERT INTO user_referrals (user_id, referral_code, total_referrals, total_earnings, is_active, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)`, r.UserID, r.Code, r.TotalReferrals, r.TotalEarnings, r.IsActive, r.UpdatedAt.UTC())
	return mapPgError(err)
}

func (q pgQueries) IncrementReferrals(ctx context.Context, userID string, at time.Time) error {
	cmd, err := q.db.Exec(ctx, `UPDATE user_referrals SET total_referrals = total_referrals + 1, updated_at = $1
        WHERE user_id = $2`, at.UTC(), userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q pgQueries) InsertReferralClaim(ctx context.Context, c ReferralClaim) error {
	_, err := q.db.Exec(ctx, `INSERT INTO referral_claims (id, referrer_id, referee_id, referral_code, status, expires_at, claimed_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, c.ID, c.ReferrerID, c.RefereeID, c.Code, c.Status, c.ExpiresAt.UTC(), c.ClaimedAt, c.CreatedAt.UTC())
	return mapPgError(err)
}

func (q pgQueries) listClaims(ctx context.Context, column, id string) ([]ReferralClaim, error) {
	if !validID(id) {
		return nil, nil
	}
	rows, err := q.db.Query(ctx, `SELECT id, referrer_id, referee_id, referral_code, status, expires_at, claimed_at, created_at
        FROM referral_claims WHERE `+column+` = $1 ORDER BY created_at DESC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReferralClaim
	for rows.Next() {
		var c ReferralClaim
		if err := rows.Scan(&c.ID, &c.ReferrerID, &c.RefereeID, &c.Code, &c.Status, &c.ExpiresAt, &c.ClaimedAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q pgQueries) ListClaimsByReferrer(ctx context.Context, referrerID string) ([]ReferralClaim, error) {
	return q.listClaims(ctx, "referrer_id", referrerID)
}

func (q pgQueries) ListClaimsByReferee(ctx context.Context, refereeID string) ([]ReferralClaim, error) {
	return q.listClaims(ctx, "referee_id", refereeID)
}
