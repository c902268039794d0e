package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memState struct {
	users       map[string]User
	phones      map[string]string
	credentials map[string]Credential
	pins        map[string]PinRecord
	audit       []PinAuditEntry
	referrals   map[string]ReferralCode
	codes       map[string]string
	claims      []ReferralClaim
}

func newMemState() *memState {
	return &memState{
		users:       make(map[string]User),
		phones:      make(map[string]string),
		credentials: make(map[string]Credential),
		pins:        make(map[string]PinRecord),
		referrals:   make(map[string]ReferralCode),
		codes:       make(map[string]string),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.phones {
		c.phones[k] = v
	}
	for k, v := range s.credentials {
		c.credentials[k] = v
	}
	for k, v := range s.pins {
		c.pins[k] = v
	}
	for k, v := range s.referrals {
		c.referrals[k] = v
	}
	for k, v := range s.codes {
		c.codes[k] = v
	}
	c.audit = append([]PinAuditEntry(nil), s.audit...)
	c.claims = append([]ReferralClaim(nil), s.claims...)
	return c
}

// MemoryStore is a concurrency-safe in-memory Store for tests and local runs.
// Transactions work on a copy of the state that replaces it on commit.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(q Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(memQueries{st: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) q() memQueries { return memQueries{st: m.state} }

func (m *MemoryStore) FindUserByID(ctx context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q().FindUserByID(ctx, id)
}

func (m *MemoryStore) FindUserByPhone(ctx context.Context, phone string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q().FindUserByPhone(ctx, phone)
}

func (m *MemoryStore) ListUserOverviews(ctx context.Context) ([]UserOverview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q().ListUserOverviews(ctx)
}

func (m *MemoryStore) InsertUser(ctx context.Context, user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q().InsertUser(ctx, user)
}

func (m *MemoryStore) UpdateUserStatus(ctx context.Context, id, status string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q().UpdateUserStatus(ctx, id, status, at)
}

func (m *MemoryStore) FindCredential(ctx context.Context, userID string) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q().FindCredential(ctx, userID)
}

func (m *MemoryStore) LockCredential(ctx context.Context, userID string) (Credential, error) {
	return m.FindCredential(ctx, userID)
}

func (m *MemoryStore) InsertCredential(ctx context.Context, cred Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q().InsertCredential(ctx, cred)
}

func (m *MemoryStore) UpdateCredential(ctx context.Context, cred Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q().UpdateCredential(ctx, cred)
}

func (m *MemoryStore) FindPin(ctx context.Context, userID string) (PinRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q().FindPin(ctx, userID)
}

func (m *MemoryStore) LockPin(ctx context.Context, userID string) (PinRecord, error) {
	return m.FindPin(ctx, userID)
}

func (m *MemoryStore) InsertPin(ctx context.Context, pin PinRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q().InsertPin(ctx, pin)
}

func (m *MemoryStore) UpdatePin(ctx context.Context, pin PinRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q().UpdatePin(ctx, pin)
}

func (m *MemoryStore) AppendPinAudit(ctx context.Context, entry PinAuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q().AppendPinAudit(ctx, entry)
}

func (m *MemoryStore) ListPinAudit(ctx context.Context, userID string) ([]PinAuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q().ListPinAudit(ctx, userID)
}

func (m *MemoryStore) FindReferralCodeByUser(ctx context.Context, userID string) (ReferralCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q().FindReferralCodeByUser(ctx, userID)
}

func (m *MemoryStore) FindReferralCode(ctx context.Context, code string) (ReferralCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q().FindReferralCode(ctx, code)
}

func (m *MemoryStore) InsertReferralCode(ctx context.Context, code ReferralCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q().InsertReferralCode(ctx, code)
}

func (m *MemoryStore) IncrementReferrals(ctx context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q().IncrementReferrals(ctx, userID, at)
}

func (m *MemoryStore) InsertReferralClaim(ctx context.Context, claim ReferralClaim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q().InsertReferralClaim(ctx, claim)
}

func (m *MemoryStore) ListClaimsByReferrer(ctx context.Context, referrerID string) ([]ReferralClaim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q().ListClaimsByReferrer(ctx, referrerID)
}

func (m *MemoryStore) ListClaimsByReferee(ctx context.Context, refereeID string) ([]ReferralClaim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q().ListClaimsByReferee(ctx, refereeID)
}

// memQueries operates on a state without locking; callers hold the store mutex.
type memQueries struct {
	st *memState
}

func (q memQueries) FindUserByID(_ context.Context, id string) (User, error) {
	user, ok := q.st.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (q memQueries) FindUserByPhone(ctx context.Context, phone string) (User, error) {
	id, ok := q.st.phones[phone]
	if !ok {
		return User{}, ErrNotFound
	}
	return q.FindUserByID(ctx, id)
}

func (q memQueries) ListUserOverviews(_ context.Context) ([]UserOverview, error) {
	out := make([]UserOverview, 0, len(q.st.users))
	for id, user := range q.st.users {
		ov := UserOverview{User: user}
		if cred, ok := q.st.credentials[id]; ok {
			ov.LastLogin = cred.LastLogin
			ov.LockedUntil = cred.LockedUntil
		}
		if pin, ok := q.st.pins[id]; ok {
			ov.PinSet = pin.PinSet
		}
		if ref, ok := q.st.referrals[id]; ok {
			ov.ReferralCode = ref.Code
			ov.TotalReferrals = ref.TotalReferrals
			ov.TotalEarnings = ref.TotalEarnings
		}
		out = append(out, ov)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].User.CreatedAt.After(out[j].User.CreatedAt)
	})
	return out, nil
}

func (q memQueries) InsertUser(_ context.Context, user User) error {
	if _, exists := q.st.phones[user.Phone]; exists {
		return ErrDuplicatePhone
	}
	if _, exists := q.st.users[user.ID]; exists {
		return ErrDuplicate
	}
	q.st.users[user.ID] = user
	q.st.phones[user.Phone] = user.ID
	return nil
}

func (q memQueries) UpdateUserStatus(_ context.Context, id, status string, at time.Time) error {
	user, ok := q.st.users[id]
	if !ok {
		return ErrNotFound
	}
	user.Status = status
	user.UpdatedAt = at
	q.st.users[id] = user
	return nil
}

func (q memQueries) FindCredential(_ context.Context, userID string) (Credential, error) {
	cred, ok := q.st.credentials[userID]
	if !ok {
		return Credential{}, ErrNotFound
	}
	return cred, nil
}

func (q memQueries) LockCredential(ctx context.Context, userID string) (Credential, error) {
	return q.FindCredential(ctx, userID)
}

func (q memQueries) InsertCredential(_ context.Context, cred Credential) error {
	if _, ok := q.st.users[cred.UserID]; !ok {
		return ErrNotFound
	}
	if _, exists := q.st.credentials[cred.UserID]; exists {
		return ErrDuplicate
	}
	q.st.credentials[cred.UserID] = cred
	return nil
}

func (q memQueries) UpdateCredential(_ context.Context, cred Credential) error {
	if _, ok := q.st.credentials[cred.UserID]; !ok {
		return ErrNotFound
	}
	q.st.credentials[cred.UserID] = cred
	return nil
}

func (q memQueries) FindPin(_ context.Context, userID string) (PinRecord, error) {
	pin, ok := q.st.pins[userID]
	if !ok {
		return PinRecord{}, ErrNotFound
	}
	return pin, nil
}

func (q memQueries) LockPin(ctx context.Context, userID string) (PinRecord, error) {
	return q.FindPin(ctx, userID)
}

func (q memQueries) InsertPin(_ context.Context, pin PinRecord) error {
	if _, ok := q.st.users[pin.UserID]; !ok {
		return ErrNotFound
	}
	if _, exists := q.st.pins[pin.UserID]; exists {
		return ErrDuplicate
	}
	q.st.pins[pin.UserID] = pin
	return nil
}

func (q memQueries) UpdatePin(_ context.Context, pin PinRecord) error {
	if _, ok := q.st.pins[pin.UserID]; !ok {
		return ErrNotFound
	}
	q.st.pins[pin.UserID] = pin
	return nil
}

func (q memQueries) AppendPinAudit(_ context.Context, entry PinAuditEntry) error {
	if _, ok := q.st.users[entry.UserID]; !ok {
		return ErrNotFound
	}
	q.st.audit = append(q.st.audit, entry)
	return nil
}

func (q memQueries) ListPinAudit(_ context.Context, userID string) ([]PinAuditEntry, error) {
	var out []PinAuditEntry
	for _, e := range q.st.audit {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (q memQueries) FindReferralCodeByUser(_ context.Context, userID string) (ReferralCode, error) {
	ref, ok := q.st.referrals[userID]
	if !ok {
		return ReferralCode{}, ErrNotFound
	}
	return ref, nil
}

func (q memQueries) FindReferralCode(ctx context.Context, code string) (ReferralCode, error) {
	userID, ok := q.st.codes[code]
	if !ok {
		return ReferralCode{}, ErrNotFound
	}
	return q.FindReferralCodeByUser(ctx, userID)
}

func (q memQueries) InsertReferralCode(_ context.Context, code ReferralCode) error {
	if _, ok := q.st.users[code.UserID]; !ok {
		return ErrNotFound
	}
	if _, exists := q.st.codes[code.Code]; exists {
		return ErrDuplicateReferralCode
	}
	if _, exists := q.st.referrals[code.UserID]; exists {
		return ErrDuplicate
	}
	q.st.referrals[code.UserID] = code
	q.st.codes[code.Code] = code.UserID
	return nil
}

func (q memQueries) IncrementReferrals(_ context.Context, userID string, at time.Time) error {
	ref, ok := q.st.referrals[userID]
	if !ok {
		return ErrNotFound
	}
	ref.TotalReferrals++
	ref.UpdatedAt = at
	q.st.referrals[userID] = ref
	return nil
}

func (q memQueries) InsertReferralClaim(_ context.Context, claim ReferralClaim) error {
	if _, ok := q.st.users[claim.ReferrerID]; !ok {
		return ErrNotFound
	}
	if _, ok := q.st.users[claim.RefereeID]; !ok {
		return ErrNotFound
	}
	q.st.claims = append(q.st.claims, claim)
	return nil
}

func (q memQueries) ListClaimsByReferrer(_ context.Context, referrerID string) ([]ReferralClaim, error) {
	var out []ReferralClaim
	for _, c := range q.st.claims {
		if c.ReferrerID == referrerID {
			out = append(out, c)
		}
	}
	sortClaims(out)
	return out, nil
}

func (q memQueries) ListClaimsByReferee(_ context.Context, refereeID string) ([]ReferralClaim, error) {
	var out []ReferralClaim
	for _, c := range q.st.claims {
		if c.RefereeID == refereeID {
			out = append(out, c)
		}
	}
	sortClaims(out)
	return out, nil
}

func sortClaims(claims []ReferralClaim) {
	sort.SliceStable(claims, func(i, j int) bool {
		return claims[i].CreatedAt.After(claims[j].CreatedAt)
	})
}
