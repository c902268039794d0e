package auth

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/accounts/internal/apperr"
	"github.com/congo-pay/accounts/internal/hashing"
	"github.com/congo-pay/accounts/internal/logging"
	"github.com/congo-pay/accounts/internal/store"
)

type spyHasher struct {
	*hashing.Hasher
	verifies atomic.Int32
}

func (s *spyHasher) Verify(secret, hash string) (bool, error) {
	s.verifies.Add(1)
	return s.Hasher.Verify(secret, hash)
}

type fixture struct {
	svc    *Service
	store  *store.MemoryStore
	hasher *spyHasher
	clock  time.Time
}

func newFixture(t *testing.T, passwordCost int) *fixture {
	t.Helper()
	h, err := hashing.New(hashing.Config{PasswordCost: passwordCost, PinCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	f := &fixture{
		store:  store.NewMemoryStore(),
		hasher: &spyHasher{Hasher: h},
		clock:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.store, f.hasher, newTestTokens(t), NewLockoutPolicy(3, 15*time.Minute), logging.Discard())
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) seed(t *testing.T, id, phone, password, status string, cost int) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	ctx := context.Background()
	if err := f.store.InsertUser(ctx, store.User{
		ID: id, FirstName: "Ada", Phone: phone, Role: store.RoleCustomer, Status: status,
		CreatedAt: f.clock, UpdatedAt: f.clock,
	}); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if err := f.store.InsertCredential(ctx, store.Credential{UserID: id, PasswordHash: string(hash), UpdatedAt: f.clock}); err != nil {
		t.Fatalf("insert credential: %v", err)
	}
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t, bcrypt.MinCost)
	f.seed(t, "user-1", "+237650000000", "secret123", store.StatusActive, bcrypt.MinCost)

	res, err := f.svc.Login(context.Background(), "+237650000000", "secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.UserID != "user-1" || res.Role != store.RoleCustomer {
		t.Fatalf("unexpected result %+v", res)
	}
	id, ok := f.svc.tokens.VerifyAccess(res.Tokens.AccessToken)
	if !ok || id.UserID != "user-1" || id.Phone != "+237650000000" {
		t.Fatalf("issued access token does not verify: %+v", id)
	}

	cred, err := f.store.FindCredential(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("find credential: %v", err)
	}
	if cred.LastLogin == nil || !cred.LastLogin.Equal(f.clock) || cred.LoginAttempts != 0 {
		t.Fatalf("expected last login recorded and counters clear, got %+v", cred)
	}
}

func TestLogin_LocksAfterThreeFailures(t *testing.T) {
	f := newFixture(t, bcrypt.MinCost)
	f.seed(t, "user-1", "+237650000000", "secret123", store.StatusActive, bcrypt.MinCost)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := f.svc.Login(ctx, "+237650000000", "wrong")
		if !errors.Is(err, apperr.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i, err)
		}
	}
	cred, _ := f.store.FindCredential(ctx, "user-1")
	if cred.LoginAttempts != 3 || cred.LockedUntil == nil || !cred.LockedUntil.Equal(f.clock.Add(15*time.Minute)) {
		t.Fatalf("expected lock after third failure, got %+v", cred)
	}

	before := f.hasher.verifies.Load()
	f.clock = f.clock.Add(5 * time.Minute)
	_, err := f.svc.Login(ctx, "+237650000000", "secret123")
	var locked *apperr.LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedError, got %v", err)
	}
	if locked.Minutes != 10 {
		t.Fatalf("expected 10 minutes remaining, got %d", locked.Minutes)
	}
	if f.hasher.verifies.Load() != before {
		t.Fatalf("hasher must not run while locked")
	}
	if apperr.Status(err) != 423 {
		t.Fatalf("expected 423, got %d", apperr.Status(err))
	}
}

func TestLogin_LockExpires(t *testing.T) {
	f := newFixture(t, bcrypt.MinCost)
	f.seed(t, "user-1", "+237650000000", "secret123", store.StatusActive, bcrypt.MinCost)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = f.svc.Login(ctx, "+237650000000", "wrong")
	}

	f.clock = f.clock.Add(16 * time.Minute)
	if _, err := f.svc.Login(ctx, "+237650000000", "secret123"); err != nil {
		t.Fatalf("login after lock window: %v", err)
	}
	cred, _ := f.store.FindCredential(ctx, "user-1")
	if cred.LoginAttempts != 0 || cred.LockedUntil != nil {
		t.Fatalf("success must reset counters, got %+v", cred)
	}
}

func TestLogin_Rejections(t *testing.T) {
	f := newFixture(t, bcrypt.MinCost)
	f.seed(t, "user-1", "+237650000000", "secret123", store.StatusSuspended, bcrypt.MinCost)
	ctx := context.Background()

	if _, err := f.svc.Login(ctx, "+237659999999", "secret123"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.svc.Login(ctx, "+237650000000", "secret123"); !errors.Is(err, apperr.ErrAccountStatus) {
		t.Fatalf("expected account status error, got %v", err)
	}
	if _, err := f.svc.Login(ctx, "", ""); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if err := f.store.InsertUser(ctx, store.User{
		ID: "orphan", FirstName: "No", Phone: "+237651111111", Role: store.RoleCustomer, Status: store.StatusActive,
	}); err != nil {
		t.Fatalf("insert orphan: %v", err)
	}
	if _, err := f.svc.Login(ctx, "+237651111111", "secret123"); !errors.Is(err, apperr.ErrIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
}

func TestLogin_RehashesWeakHash(t *testing.T) {
	f := newFixture(t, bcrypt.MinCost+1)
	f.seed(t, "user-1", "+237650000000", "secret123", store.StatusActive, bcrypt.MinCost)

	if _, err := f.svc.Login(context.Background(), "+237650000000", "secret123"); err != nil {
		t.Fatalf("login: %v", err)
	}
	cred, _ := f.store.FindCredential(context.Background(), "user-1")
	cost, err := bcrypt.Cost([]byte(cred.PasswordHash))
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	if cost != bcrypt.MinCost+1 {
		t.Fatalf("expected rehash at cost %d, got %d", bcrypt.MinCost+1, cost)
	}
	if _, err := f.svc.Login(context.Background(), "+237650000000", "secret123"); err != nil {
		t.Fatalf("login with rehashed password: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t, bcrypt.MinCost)
	f.seed(t, "user-1", "+237650000000", "secret123", store.StatusActive, bcrypt.MinCost)
	ctx := context.Background()

	if err := f.svc.ChangePassword(ctx, "user-1", "wrong", "newsecret"); !errors.Is(err, apperr.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if err := f.svc.ChangePassword(ctx, "user-1", "secret123", "short"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := f.svc.ChangePassword(ctx, "user-1", "secret123", "newsecret"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := f.svc.Login(ctx, "+237650000000", "newsecret"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if err := f.svc.ChangePassword(ctx, "missing", "a", "newsecret"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRefresh(t *testing.T) {
	f := newFixture(t, bcrypt.MinCost)
	f.seed(t, "user-1", "+237650000000", "secret123", store.StatusActive, bcrypt.MinCost)
	ctx := context.Background()
	f.svc.now = time.Now
	f.svc.tokens.now = time.Now

	res, err := f.svc.Login(ctx, "+237650000000", "secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	access, expiresIn, err := f.svc.Refresh(ctx, res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, ok := f.svc.tokens.VerifyAccess(access); !ok {
		t.Fatalf("refreshed access token does not verify")
	}
	if expiresIn <= 0 || expiresIn > int64(DefaultAccessTTL.Seconds()) {
		t.Fatalf("unexpected expires_in %d", expiresIn)
	}
	if _, _, err := f.svc.Refresh(ctx, res.Tokens.AccessToken); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for access token, got %v", err)
	}
}

func TestChangePasswordCountsTowardsLock(t *testing.T) {
	f := newFixture(t, bcrypt.MinCost)
	f.seed(t, "user-1", "+237650000000", "secret123", store.StatusActive, bcrypt.MinCost)
	ctx := context.Background()

	for i, guess := range []string{"guess-a", "guess-b", "guess-c"} {
		if err := f.svc.ChangePassword(ctx, "user-1", guess, "newsecret"); !errors.Is(err, apperr.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}
	cred, err := f.store.FindCredential(ctx, "user-1")
	if err != nil {
		t.Fatalf("load credential: %v", err)
	}
	if cred.LoginAttempts != 3 || cred.LockedUntil == nil {
		t.Fatalf("expected lock after 3 failures, got %+v", cred)
	}

	calls := f.hasher.verifies.Load()
	err = f.svc.ChangePassword(ctx, "user-1", "secret123", "newsecret")
	var locked *apperr.LockedError
	if !errors.As(err, &locked) || locked.Minutes != 15 {
		t.Fatalf("expected 15 minute lock, got %v", err)
	}
	if f.hasher.verifies.Load() != calls {
		t.Fatal("hasher must not run while locked")
	}
	if _, err := f.svc.Login(ctx, "+237650000000", "secret123"); !errors.Is(err, apperr.ErrLocked) {
		t.Fatalf("login must share the lock, got %v", err)
	}

	f.clock = f.clock.Add(16 * time.Minute)
	if err := f.svc.ChangePassword(ctx, "user-1", "secret123", "newsecret"); err != nil {
		t.Fatalf("change after expiry: %v", err)
	}
	cred, _ = f.store.FindCredential(ctx, "user-1")
	if cred.LoginAttempts != 0 || cred.LockedUntil != nil {
		t.Fatalf("counters not reset: %+v", cred)
	}
}
