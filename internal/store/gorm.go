package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

type userRow struct {
	ID            string `gorm:"primaryKey;size:36"`
	FirstName     string `gorm:"size:100;not null"`
	LastName      string `gorm:"size:100"`
	Phone         string `gorm:"size:15;not null;uniqueIndex"`
	PhoneVerified bool
	Role          string `gorm:"size:16;not null"`
	AvatarURL     string `gorm:"size:500"`
	Status        string `gorm:"size:20;not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (userRow) TableName() string { return "users" }

type credentialRow struct {
	UserID        string `gorm:"primaryKey;size:36"`
	PasswordHash  string `gorm:"size:255;not null"`
	LoginAttempts int    `gorm:"not null"`
	LastLogin     *time.Time
	LockedUntil   *time.Time
	UpdatedAt     time.Time
}

func (credentialRow) TableName() string { return "authentication" }

type pinRow struct {
	UserID             string  `gorm:"primaryKey;size:36"`
	TransactionPinHash *string `gorm:"size:255"`
	PinSet             bool    `gorm:"not null"`
	PinAttempts        int     `gorm:"not null"`
	PinLockedUntil     *time.Time
	UpdatedAt          time.Time
}

func (pinRow) TableName() string { return "pins" }

type pinAuditRow struct {
	ID         string `gorm:"primaryKey;size:36"`
	UserID     string `gorm:"size:36;not null;index"`
	ActionType string `gorm:"size:16;not null"`
	Reason     string `gorm:"size:100"`
	CreatedAt  time.Time
}

func (pinAuditRow) TableName() string { return "pin_audit" }

type referralRow struct {
	UserID         string `gorm:"primaryKey;size:36"`
	ReferralCode   string `gorm:"size:16;not null;uniqueIndex"`
	TotalReferrals int    `gorm:"not null"`
	TotalEarnings  int64  `gorm:"not null"`
	IsActive       bool   `gorm:"not null"`
	UpdatedAt      time.Time
}

func (referralRow) TableName() string { return "user_referrals" }

type claimRow struct {
	ID           string `gorm:"primaryKey;size:36"`
	ReferrerID   string `gorm:"size:36;not null;index"`
	RefereeID    string `gorm:"size:36;not null;index"`
	ReferralCode string `gorm:"size:16;not null"`
	Status       string `gorm:"size:16;not null"`
	ExpiresAt    time.Time
	ClaimedAt    *time.Time
	CreatedAt    time.Time
}

func (claimRow) TableName() string { return "referral_claims" }

// GormStore implements Store on any GORM dialect. It backs the embedded
// SQLite database used for local runs.
type GormStore struct {
	gormQueries
}

// NewGormStore migrates the schema and returns a store bound to db.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(
		&userRow{},
		&credentialRow{},
		&pinRow{},
		&pinAuditRow{},
		&referralRow{},
		&claimRow{},
	); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	return &GormStore{gormQueries{db: db}}, nil
}

func (s *GormStore) WithTx(ctx context.Context, fn func(q Queries) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(gormQueries{db: tx})
	})
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

type gormQueries struct {
	db *gorm.DB
}

func mapGormError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed: users.phone"):
		return ErrDuplicatePhone
	case strings.Contains(msg, "UNIQUE constraint failed: user_referrals.referral_code"):
		return ErrDuplicateReferralCode
	case strings.Contains(msg, "UNIQUE constraint failed"), errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func affected(res *gorm.DB) error {
	if res.Error != nil {
		return mapGormError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r userRow) toUser() User {
	return User{
		ID: r.ID, FirstName: r.FirstName, LastName: r.LastName, Phone: r.Phone,
		PhoneVerified: r.PhoneVerified, Role: r.Role, AvatarURL: r.AvatarURL, Status: r.Status,
		CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (q gormQueries) FindUserByID(ctx context.Context, id string) (User, error) {
	var row userRow
	if err := q.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return User{}, mapGormError(err)
	}
	return row.toUser(), nil
}

func (q gormQueries) FindUserByPhone(ctx context.Context, phone string) (User, error) {
	var row userRow
	if err := q.db.WithContext(ctx).Where("phone = ?", phone).Take(&row).Error; err != nil {
		return User{}, mapGormError(err)
	}
	return row.toUser(), nil
}

// overviewRow is flat: GORM skips unexported embedded structs when scanning.
type overviewRow struct {
	ID             string
	FirstName      string
	LastName       string
	Phone          string
	PhoneVerified  bool
	Role           string
	AvatarURL      string
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastLogin      *time.Time
	LockedUntil    *time.Time
	PinSet         bool
	ReferralCode   string
	TotalReferrals int
	TotalEarnings  int64
}

func (r overviewRow) toUser() User {
	return userRow{
		ID: r.ID, FirstName: r.FirstName, LastName: r.LastName, Phone: r.Phone,
		PhoneVerified: r.PhoneVerified, Role: r.Role, AvatarURL: r.AvatarURL, Status: r.Status,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}.toUser()
}

func (q gormQueries) ListUserOverviews(ctx context.Context) ([]UserOverview, error) {
	var rows []overviewRow
	err := q.db.WithContext(ctx).
		Table("users").
		Select(`users.id AS id, users.first_name AS first_name, users.last_name AS last_name,
            users.phone AS phone, users.phone_verified AS phone_verified, users.role AS role,
            users.avatar_url AS avatar_url, users.status AS status,
            users.created_at AS created_at, users.updated_at AS updated_at,
            authentication.last_login AS last_login, authentication.locked_until AS locked_until,
            COALESCE(pins.pin_set, FALSE) AS pin_set,
            COALESCE(user_referrals.referral_code, '') AS referral_code,
            COALESCE(user_referrals.total_referrals, 0) AS total_referrals,
            COALESCE(user_referrals.total_earnings, 0) AS total_earnings`).
		Joins("LEFT JOIN authentication ON authentication.user_id = users.id").
		Joins("LEFT JOIN pins ON pins.user_id = users.id").
		Joins("LEFT JOIN user_referrals ON user_referrals.user_id = users.id").
		Order("users.created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]UserOverview, 0, len(rows))
	for _, r := range rows {
		out = append(out, UserOverview{
			User:           r.toUser(),
			LastLogin:      r.LastLogin,
			LockedUntil:    r.LockedUntil,
			PinSet:         r.PinSet,
			ReferralCode:   r.ReferralCode,
			TotalReferrals: r.TotalReferrals,
			TotalEarnings:  r.TotalEarnings,
		})
	}
	return out, nil
}

func (q gormQueries) InsertUser(ctx context.Context, u User) error {
	row := userRow{
		ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Phone: u.Phone,
		PhoneVerified: u.PhoneVerified, Role: u.Role, AvatarURL: u.AvatarURL, Status: u.Status,
		CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
	}
	return mapGormError(q.db.WithContext(ctx).Create(&row).Error)
}

func (q gormQueries) UpdateUserStatus(ctx context.Context, id, status string, at time.Time) error {
	return affected(q.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": at}))
}

func (q gormQueries) FindCredential(ctx context.Context, userID string) (Credential, error) {
	var row credentialRow
	if err := q.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error; err != nil {
		return Credential{}, mapGormError(err)
	}
	return Credential{
		UserID: row.UserID, PasswordHash: row.PasswordHash, LoginAttempts: row.LoginAttempts,
		LastLogin: row.LastLogin, LockedUntil: row.LockedUntil, UpdatedAt: row.UpdatedAt,
	}, nil
}

// LockCredential is a plain read: SQLite serialises writers at the database level.
func (q gormQueries) LockCredential(ctx context.Context, userID string) (Credential, error) {
	return q.FindCredential(ctx, userID)
}

func (q gormQueries) InsertCredential(ctx context.Context, c Credential) error {
	row := credentialRow{
		UserID: c.UserID, PasswordHash: c.PasswordHash, LoginAttempts: c.LoginAttempts,
		LastLogin: c.LastLogin, LockedUntil: c.LockedUntil, UpdatedAt: c.UpdatedAt,
	}
	return mapGormError(q.db.WithContext(ctx).Create(&row).Error)
}

func (q gormQueries) UpdateCredential(ctx context.Context, c Credential) error {
	return affected(q.db.WithContext(ctx).Model(&credentialRow{}).Where("user_id = ?", c.UserID).
		Updates(map[string]any{
			"password_hash":  c.PasswordHash,
			"login_attempts": c.LoginAttempts,
			"last_login":     c.LastLogin,
			"locked_until":   c.LockedUntil,
			"updated_at":     c.UpdatedAt,
		}))
}

func (q gormQueries) FindPin(ctx context.Context, userID string) (PinRecord, error) {
	var row pinRow
	if err := q.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error; err != nil {
		return PinRecord{}, mapGormError(err)
	}
	return PinRecord{
		UserID: row.UserID, PinHash: row.TransactionPinHash, PinSet: row.PinSet,
		PinAttempts: row.PinAttempts, PinLockedUntil: row.PinLockedUntil, UpdatedAt: row.UpdatedAt,
	}, nil
}

func (q gormQueries) LockPin(ctx context.Context, userID string) (PinRecord, error) {
	return q.FindPin(ctx, userID)
}

func (q gormQueries) InsertPin(ctx context.Context, p PinRecord) error {
	row := pinRow{
		UserID: p.UserID, TransactionPinHash: p.PinHash, PinSet: p.PinSet,
		PinAttempts: p.PinAttempts, PinLockedUntil: p.PinLockedUntil, UpdatedAt: p.UpdatedAt,
	}
	return mapGormError(q.db.WithContext(ctx).Create(&row).Error)
}

func (q gormQueries) UpdatePin(ctx context.Context, p PinRecord) error {
	return affected(q.db.WithContext(ctx).Model(&pinRow{}).Where("user_id = ?", p.UserID).
		Updates(map[string]any{
			"transaction_pin_hash": p.PinHash,
			"pin_set":              p.PinSet,
			"pin_attempts":         p.PinAttempts,
			"pin_locked_until":     p.PinLockedUntil,
			"updated_at":           p.UpdatedAt,
		}))
}

func (q gormQueries) AppendPinAudit(ctx context.Context, e PinAuditEntry) error {
	row := pinAuditRow{ID: e.ID, UserID: e.UserID, ActionType: e.Action, Reason: e.Reason, CreatedAt: e.CreatedAt}
	return mapGormError(q.db.WithContext(ctx).Create(&row).Error)
}

func (q gormQueries) ListPinAudit(ctx context.Context, userID string) ([]PinAuditEntry, error) {
	var rows []pinAuditRow
	if err := q.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	var out []PinAuditEntry
	for _, r := range rows {
		out = append(out, PinAuditEntry{ID: r.ID, UserID: r.UserID, Action: r.ActionType, Reason: r.Reason, CreatedAt: r.CreatedAt})
	}
	return out, nil
}

func (r referralRow) toCode() ReferralCode {
	return ReferralCode{
		UserID: r.UserID, Code: r.ReferralCode, TotalReferrals: r.TotalReferrals,
		TotalEarnings: r.TotalEarnings, IsActive: r.IsActive, UpdatedAt: r.UpdatedAt,
	}
}

func (q gormQueries) FindReferralCodeByUser(ctx context.Context, userID string) (ReferralCode, error) {
	var row referralRow
	if err := q.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error; err != nil {
		return ReferralCode{}, mapGormError(err)
	}
	return row.toCode(), nil
}

func (q gormQueries) FindReferralCode(ctx context.Context, code string) (ReferralCode, error) {
	var row referralRow
	if err := q.db.WithContext(ctx).Where("referral_code = ?", code).Take(&row).Error; err != nil {
		return ReferralCode{}, mapGormError(err)
	}
	return row.toCode(), nil
}

func (q gormQueries) InsertReferralCode(ctx context.Context, r ReferralCode) error {
	row := referralRow{
		UserID: r.UserID, ReferralCode: r.Code, TotalReferrals: r.TotalReferrals,
		TotalEarnings: r.TotalEarnings, IsActive: r.IsActive, UpdatedAt: r.UpdatedAt,
	}
	return mapGormError(q.db.WithContext(ctx).Create(&row).Error)
}

func (q gormQueries) IncrementReferrals(ctx context.Context, userID string, at time.Time) error {
	return affected(q.db.WithContext(ctx).Model(&referralRow{}).Where("user_id = ?", userID).
		Updates(map[string]any{
			"total_referrals": gorm.Expr("total_referrals + 1"),
			"updated_at":      at,
		}))
}

func (q gormQueries) InsertReferralClaim(ctx context.Context, c ReferralClaim) error {
	row := claimRow{
		ID: c.ID, ReferrerID: c.ReferrerID, RefereeID: c.RefereeID, ReferralCode: c.Code,
		Status: c.Status, ExpiresAt: c.ExpiresAt, ClaimedAt: c.ClaimedAt, CreatedAt: c.CreatedAt,
	}
	return mapGormError(q.db.WithContext(ctx).Create(&row).Error)
}

func (q gormQueries) listClaims(ctx context.Context, column, id string) ([]ReferralClaim, error) {
	var rows []claimRow
	if err := q.db.WithContext(ctx).Where(column+" = ?", id).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	var out []ReferralClaim
	for _, r := range rows {
		out = append(out, ReferralClaim{
			ID: r.ID, ReferrerID: r.ReferrerID, RefereeID: r.RefereeID, Code: r.ReferralCode,
			Status: r.Status, ExpiresAt: r.ExpiresAt, ClaimedAt: r.ClaimedAt, CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

func (q gormQueries) ListClaimsByReferrer(ctx context.Context, referrerID string) ([]ReferralClaim, error) {
	return q.listClaims(ctx, "referrer_id", referrerID)
}

func (q gormQueries) ListClaimsByReferee(ctx context.Context, refereeID string) ([]ReferralClaim, error) {
	return q.listClaims(ctx, "referee_id", refereeID)
}

var (
	_ Store = (*GormStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
