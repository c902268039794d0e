package ledger

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type depositRow struct {
	ID         string `gorm:"primaryKey;size:36"`
	UserID     string `gorm:"size:36;not null;index"`
	Amount     int64  `gorm:"not null"`
	Reference  string `gorm:"size:100;not null;uniqueIndex:deposits_reference_key"`
	Status     string `gorm:"size:16;not null;index"`
	ReviewedBy *string
	ReviewedAt *time.Time
	CreatedAt  time.Time `gorm:"not null"`
}

func (depositRow) TableName() string { return "deposits" }

func (r depositRow) deposit() Deposit {
	d := Deposit{
		ID:         r.ID,
		UserID:     r.UserID,
		Amount:     r.Amount,
		Reference:  r.Reference,
		Status:     r.Status,
		ReviewedAt: r.ReviewedAt,
		CreatedAt:  r.CreatedAt.UTC(),
	}
	if r.ReviewedBy != nil {
		d.ReviewedBy = *r.ReviewedBy
	}
	return d
}

// GormLedger keeps deposits in any GORM dialect, used with the embedded
// SQLite store.
type GormLedger struct {
	db *gorm.DB
}

// NewGormLedger migrates the deposits table and returns the ledger.
func NewGormLedger(db *gorm.DB) (*GormLedger, error) {
	if err := db.AutoMigrate(&depositRow{}); err != nil {
		return nil, err
	}
	return &GormLedger{db: db}, nil
}

func (l *GormLedger) Record(ctx context.Context, d Deposit) (Deposit, error) {
	row := depositRow{
		ID:        d.ID,
		UserID:    d.UserID,
		Amount:    d.Amount,
		Reference: d.Reference,
		Status:    d.Status,
		CreatedAt: d.CreatedAt.UTC(),
	}
	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "reference"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return Deposit{}, res.Error
	}
	if res.RowsAffected == 1 {
		return row.deposit(), nil
	}
	var existing depositRow
	if err := l.db.WithContext(ctx).Where("reference = ?", d.Reference).First(&existing).Error; err != nil {
		return Deposit{}, err
	}
	return existing.deposit(), ErrDuplicateDeposit
}

func (l *GormLedger) Get(ctx context.Context, id string) (Deposit, error) {
	var row depositRow
	err := l.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Deposit{}, ErrDepositNotFound
	}
	if err != nil {
		return Deposit{}, err
	}
	return row.deposit(), nil
}

func (l *GormLedger) List(ctx context.Context, status, userID string) ([]Deposit, error) {
	q := l.db.WithContext(ctx).Model(&depositRow{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var rows []depositRow
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Deposit, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.deposit())
	}
	return out, nil
}

func (l *GormLedger) Review(ctx context.Context, id, reviewerID, status string, at time.Time) (Deposit, error) {
	var out Deposit
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row depositRow
		if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDepositNotFound
			}
			return err
		}
		if row.Status != StatusPending {
			out = row.deposit()
			return ErrAlreadyReviewed
		}
		reviewedAt := at.UTC()
		res := tx.Model(&depositRow{}).
			Where("id = ? AND status = ?", id, StatusPending).
			Updates(map[string]any{"status": status, "reviewed_by": reviewerID, "reviewed_at": reviewedAt})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyReviewed
		}
		row.Status = status
		row.ReviewedBy = &reviewerID
		row.ReviewedAt = &reviewedAt
		out = row.deposit()
		return nil
	})
	return out, err
}

var (
	_ Ledger = (*GormLedger)(nil)
	_ Ledger = (*PostgresLedger)(nil)
)
