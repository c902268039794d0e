package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/congo-pay/accounts/internal/apperr"
)

type sample struct {
	Phone string `json:"phone" validate:"required,phone"`
	PIN   string `json:"pin" validate:"omitempty,pin"`
	Role  string `json:"role" validate:"omitempty,oneof=customer admin"`
}

func TestStruct(t *testing.T) {
	v := New()
	if err := v.Struct(sample{Phone: "+237650000000", PIN: "1234", Role: "admin"}); err != nil {
		t.Fatalf("expected valid sample, got %v", err)
	}

	err := v.Struct(sample{Phone: "12ab", PIN: "12"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if !strings.Contains(err.Error(), "phone must be a phone number") || !strings.Contains(err.Error(), "pin must be 4 to 6 digits") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestPhoneAndPIN(t *testing.T) {
	for _, ok := range []string{"+2376500000", "6500000", "123456789012345"} {
		if !Phone(ok) {
			t.Fatalf("expected %q to be a phone", ok)
		}
	}
	for _, bad := range []string{"", "+12", "1234567890123456", "+23765000a0"} {
		if Phone(bad) {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
	if !PIN("0000") || !PIN("123456") || PIN("123") || PIN("1234567") || PIN("12a4") {
		t.Fatalf("unexpected PIN classification")
	}
}
