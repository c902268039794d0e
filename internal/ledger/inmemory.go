package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

type inMemoryLedger struct {
	mu          sync.RWMutex
	deposits    map[string]Deposit
	byReference map[string]string
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		deposits:    make(map[string]Deposit),
		byReference: make(map[string]string),
	}
}

func (l *inMemoryLedger) Record(_ context.Context, d Deposit) (Deposit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id, exists := l.byReference[d.Reference]; exists {
		return l.deposits[id], ErrDuplicateDeposit
	}
	l.deposits[d.ID] = d
	l.byReference[d.Reference] = d.ID
	return d, nil
}

func (l *inMemoryLedger) Get(_ context.Context, id string) (Deposit, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.deposits[id]
	if !ok {
		return Deposit{}, ErrDepositNotFound
	}
	return d, nil
}

func (l *inMemoryLedger) List(_ context.Context, status, userID string) ([]Deposit, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Deposit, 0, len(l.deposits))
	for _, d := range l.deposits {
		if status != "" && d.Status != status {
			continue
		}
		if userID != "" && d.UserID != userID {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (l *inMemoryLedger) Review(_ context.Context, id, reviewerID, status string, at time.Time) (Deposit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.deposits[id]
	if !ok {
		return Deposit{}, ErrDepositNotFound
	}
	if d.Status != StatusPending {
		return d, ErrAlreadyReviewed
	}
	d.Status = status
	d.ReviewedBy = reviewerID
	d.ReviewedAt = &at
	l.deposits[id] = d
	return d, nil
}
