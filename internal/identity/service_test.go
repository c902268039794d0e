package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/accounts/internal/apperr"
	"github.com/congo-pay/accounts/internal/hashing"
	"github.com/congo-pay/accounts/internal/logging"
	"github.com/congo-pay/accounts/internal/notification"
	"github.com/congo-pay/accounts/internal/referral"
	"github.com/congo-pay/accounts/internal/store"
	"github.com/congo-pay/accounts/internal/validation"
)

func newTestService(t *testing.T, cfg Config) (*Service, *store.MemoryStore, *notification.Recorder) {
	t.Helper()
	h, err := hashing.New(hashing.Config{PasswordCost: bcrypt.MinCost, PinCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	st := store.NewMemoryStore()
	rec := &notification.Recorder{}
	return NewService(st, h, rec, validation.New(), cfg, logging.Discard()), st, rec
}

func input(phone string) RegisterInput {
	return RegisterInput{FirstName: "Ada", Phone: phone, Password: "secret123"}
}

func TestRegisterCreatesAllRecords(t *testing.T) {
	svc, st, _ := newTestService(t, Config{})
	ctx := context.Background()

	reg, err := svc.Register(ctx, input("+237650000000"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.User.Role != store.RoleCustomer || reg.User.Status != store.StatusActive {
		t.Fatalf("unexpected defaults %+v", reg.User)
	}
	if !referral.Valid(reg.ReferralCode) {
		t.Fatalf("unexpected referral code %q", reg.ReferralCode)
	}

	cred, err := st.FindCredential(ctx, reg.User.ID)
	if err != nil {
		t.Fatalf("credential: %v", err)
	}
	if cred.LoginAttempts != 0 || cred.LockedUntil != nil {
		t.Fatalf("credential must start clear: %+v", cred)
	}
	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte("secret123")) != nil {
		t.Fatalf("stored hash does not match password")
	}

	pin, err := st.FindPin(ctx, reg.User.ID)
	if err != nil {
		t.Fatalf("pin: %v", err)
	}
	if pin.PinSet || pin.PinHash != nil {
		t.Fatalf("pin must start unset: %+v", pin)
	}

	ref, err := st.FindReferralCodeByUser(ctx, reg.User.ID)
	if err != nil {
		t.Fatalf("referral: %v", err)
	}
	if ref.Code != reg.ReferralCode || ref.TotalReferrals != 0 || !ref.IsActive {
		t.Fatalf("unexpected referral row %+v", ref)
	}
}

func TestRegisterDuplicatePhone(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()
	if _, err := svc.Register(ctx, input("+237650000000")); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := svc.Register(ctx, input("+237650000000"))
	if !errors.Is(err, apperr.ErrDuplicatePhone) {
		t.Fatalf("expected duplicate phone, got %v", err)
	}
}

func TestRegisterConcurrentDuplicatePhone(t *testing.T) {
	svc, st, _ := newTestService(t, Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Register(ctx, input("+237650000000"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrDuplicatePhone):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one registration, got %d", ok)
	}
	users, err := st.ListUserOverviews(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected one stored user, got %d", len(users))
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	cases := []RegisterInput{
		{Phone: "+237650000000", Password: "secret123"},
		{FirstName: "Ada", Phone: "abc", Password: "secret123"},
		{FirstName: "Ada", Phone: "+237650000000", Password: "123"},
		{FirstName: "Ada", Phone: "+237650000000", Password: "secret123", Role: "root"},
	}
	for i, in := range cases {
		if _, err := svc.Register(context.Background(), in); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestRegisterWithInvitation(t *testing.T) {
	svc, st, rec := newTestService(t, Config{})
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	inviter, err := svc.Register(ctx, input("+237650000001"))
	if err != nil {
		t.Fatalf("register inviter: %v", err)
	}
	in := input("+237650000002")
	in.InvitationCode = " " + inviter.ReferralCode + " "
	invitee, err := svc.Register(ctx, in)
	if err != nil {
		t.Fatalf("register invitee: %v", err)
	}
	if invitee.Claim == nil {
		t.Fatalf("expected a claim")
	}
	if invitee.Claim.Status != store.ClaimPending || !invitee.Claim.ExpiresAt.Equal(now.Add(7*24*time.Hour)) {
		t.Fatalf("unexpected claim %+v", invitee.Claim)
	}

	ref, err := st.FindReferralCodeByUser(ctx, inviter.User.ID)
	if err != nil {
		t.Fatalf("referral: %v", err)
	}
	if ref.TotalReferrals != 1 {
		t.Fatalf("expected inviter count 1, got %d", ref.TotalReferrals)
	}
	claims, err := st.ListClaimsByReferrer(ctx, inviter.User.ID)
	if err != nil {
		t.Fatalf("claims: %v", err)
	}
	if len(claims) != 1 || claims[0].RefereeID != invitee.User.ID {
		t.Fatalf("expected one claim for invitee, got %+v", claims)
	}

	msgs := rec.Messages()
	if len(msgs) != 1 || msgs[0].Kind != notification.KindReferralClaimed || msgs[0].Destination != "+237650000001" {
		t.Fatalf("expected inviter notification, got %+v", msgs)
	}
}

func TestRegisterUnknownInvitationIsIgnored(t *testing.T) {
	svc, st, rec := newTestService(t, Config{})
	ctx := context.Background()
	in := input("+237650000003")
	in.InvitationCode = "ZZZZ9999"

	reg, err := svc.Register(ctx, in)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.Claim != nil {
		t.Fatalf("unknown code must not create a claim")
	}
	claims, _ := st.ListClaimsByReferee(ctx, reg.User.ID)
	if len(claims) != 0 {
		t.Fatalf("expected no claims, got %d", len(claims))
	}
	if len(rec.Messages()) != 0 {
		t.Fatalf("no notification expected")
	}
}

func TestRegisterUnknownInvitationStrict(t *testing.T) {
	svc, st, _ := newTestService(t, Config{StrictInvitation: true})
	ctx := context.Background()
	in := input("+237650000004")
	in.InvitationCode = "ZZZZ9999"

	if _, err := svc.Register(ctx, in); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := st.FindUserByPhone(ctx, "+237650000004"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("user must be rolled back, got %v", err)
	}
}

func TestRegisterRollsBackOnLateFailure(t *testing.T) {
	svc, st, _ := newTestService(t, Config{})
	svc.newCode = func() (string, error) { return "", fmt.Errorf("entropy exhausted") }
	ctx := context.Background()

	if _, err := svc.Register(ctx, input("+237650000005")); err == nil {
		t.Fatalf("expected failure")
	}
	if _, err := st.FindUserByPhone(ctx, "+237650000005"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("user must be rolled back, got %v", err)
	}
}

func TestRegisterRegeneratesCollidingCode(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()
	codes := []string{"AAAA2222", "AAAA2222", "BBBB3333"}
	svc.newCode = func() (string, error) {
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}

	first, err := svc.Register(ctx, input("+237650000006"))
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := svc.Register(ctx, input("+237650000007"))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.ReferralCode != "AAAA2222" || second.ReferralCode != "BBBB3333" {
		t.Fatalf("unexpected codes %q %q", first.ReferralCode, second.ReferralCode)
	}
}

func TestRegisterMalformedInvitation(t *testing.T) {
	ctx := context.Background()

	lenient, st, _ := newTestService(t, Config{})
	in := input("+237650000008")
	in.InvitationCode = "0O1I-bad"
	reg, err := lenient.Register(ctx, in)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.Claim != nil {
		t.Fatalf("malformed code must not create a claim")
	}
	if claims, _ := st.ListClaimsByReferee(ctx, reg.User.ID); len(claims) != 0 {
		t.Fatalf("expected no claims, got %d", len(claims))
	}

	strict, _, _ := newTestService(t, Config{StrictInvitation: true})
	in = input("+237650000009")
	in.InvitationCode = "short"
	if _, err := strict.Register(ctx, in); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
