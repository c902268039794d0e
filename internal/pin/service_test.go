package pin

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/accounts/internal/apperr"
	"github.com/congo-pay/accounts/internal/auth"
	"github.com/congo-pay/accounts/internal/hashing"
	"github.com/congo-pay/accounts/internal/logging"
	"github.com/congo-pay/accounts/internal/notification"
	"github.com/congo-pay/accounts/internal/store"
)

type fixture struct {
	svc   *Service
	store *store.MemoryStore
	rec   *notification.Recorder
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h, err := hashing.New(hashing.Config{PasswordCost: bcrypt.MinCost, PinCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	f := &fixture{
		store: store.NewMemoryStore(),
		rec:   &notification.Recorder{},
		clock: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.store, h, auth.NewLockoutPolicy(3, 15*time.Minute), f.rec, logging.Discard())
	f.svc.now = func() time.Time { return f.clock }

	ctx := context.Background()
	if err := f.store.InsertUser(ctx, store.User{ID: "user-1", FirstName: "Ada", Phone: "+237650000000", Role: store.RoleCustomer, Status: store.StatusActive}); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if err := f.store.InsertPin(ctx, store.PinRecord{UserID: "user-1"}); err != nil {
		t.Fatalf("insert pin: %v", err)
	}
	return f
}

func (f *fixture) actions(t *testing.T) []string {
	t.Helper()
	entries, err := f.svc.History(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var out []string
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

func TestSetOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.svc.Set(ctx, "user-1", "1234"); err != nil {
		t.Fatalf("set: %v", err)
	}
	rec, _ := f.store.FindPin(ctx, "user-1")
	if !rec.PinSet || rec.PinHash == nil || rec.PinAttempts != 0 || rec.PinLockedUntil != nil {
		t.Fatalf("unexpected record after set: %+v", rec)
	}
	if err := f.svc.Set(ctx, "user-1", "5678"); !errors.Is(err, apperr.ErrAlreadySet) {
		t.Fatalf("expected already set, got %v", err)
	}

	entries, _ := f.svc.History(ctx, "user-1")
	if len(entries) != 1 || entries[0].Action != store.PinActionCreated || entries[0].Reason != "Initial PIN set" {
		t.Fatalf("expected one created entry, got %+v", entries)
	}
}

func TestChangeRequiresSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.svc.Change(ctx, "user-1", "4321", ""); !errors.Is(err, apperr.ErrNotSet) {
		t.Fatalf("expected not set, got %v", err)
	}
	if err := f.svc.Set(ctx, "user-1", "1234"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := f.svc.Change(ctx, "user-1", "4321", ""); err != nil {
		t.Fatalf("change: %v", err)
	}
	if err := f.svc.Change(ctx, "user-1", "9876", "Lost my phone"); err != nil {
		t.Fatalf("change with reason: %v", err)
	}

	entries, _ := f.svc.History(ctx, "user-1")
	if len(entries) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(entries))
	}
	if entries[1].Action != store.PinActionChanged || entries[1].Reason != "User changed the PIN" {
		t.Fatalf("unexpected default change entry %+v", entries[1])
	}
	if entries[2].Reason != "Lost my phone" {
		t.Fatalf("unexpected reason %q", entries[2].Reason)
	}
	if err := f.svc.Verify(ctx, "user-1", "9876"); err != nil {
		t.Fatalf("verify new pin: %v", err)
	}
}

func TestUnknownUserAndFormat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.svc.Set(ctx, "nobody", "1234"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := f.svc.Change(ctx, "nobody", "1234", ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	for _, bad := range []string{"123", "1234567", "12a4", ""} {
		if err := f.svc.Set(ctx, "user-1", bad); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("pin %q: expected validation error, got %v", bad, err)
		}
	}
	if len(f.actions(t)) != 0 {
		t.Fatalf("rejected calls must not audit")
	}
}

func TestVerifyLocksAfterThreeFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.svc.Verify(ctx, "user-1", "1234"); !errors.Is(err, apperr.ErrNotSet) {
		t.Fatalf("expected not set, got %v", err)
	}
	if err := f.svc.Set(ctx, "user-1", "1234"); err != nil {
		t.Fatalf("set: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := f.svc.Verify(ctx, "user-1", "0000"); !errors.Is(err, apperr.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}
	err := f.svc.Verify(ctx, "user-1", "1234")
	var locked *apperr.LockedError
	if !errors.As(err, &locked) || locked.Minutes != 15 {
		t.Fatalf("expected 15 minute lock, got %v", err)
	}

	msgs := f.rec.Messages()
	if len(msgs) != 1 || msgs[0].Kind != notification.KindPinLocked {
		t.Fatalf("expected lock notification, got %+v", msgs)
	}

	f.clock = f.clock.Add(16 * time.Minute)
	if err := f.svc.Verify(ctx, "user-1", "1234"); err != nil {
		t.Fatalf("verify after lock window: %v", err)
	}
	got := f.actions(t)
	want := []string{store.PinActionCreated, store.PinActionLocked, store.PinActionUnlocked}
	if len(got) != len(want) {
		t.Fatalf("expected actions %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected actions %v, got %v", want, got)
		}
	}
}

func TestChangeClearsLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.svc.Set(ctx, "user-1", "1234"); err != nil {
		t.Fatalf("set: %v", err)
	}
	for i := 0; i < 3; i++ {
		_ = f.svc.Verify(ctx, "user-1", "0000")
	}
	if err := f.svc.Change(ctx, "user-1", "5555", "Support reset"); err != nil {
		t.Fatalf("change: %v", err)
	}
	rec, _ := f.store.FindPin(ctx, "user-1")
	if rec.PinAttempts != 0 || rec.PinLockedUntil != nil {
		t.Fatalf("change must clear the lock: %+v", rec)
	}
}
