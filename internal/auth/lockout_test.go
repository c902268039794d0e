package auth

import (
	"testing"
	"time"
)

func TestLockoutPolicy_Fail(t *testing.T) {
	p := NewLockoutPolicy(0, 0)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	state := p.Fail(0, now)
	if state.Attempts != 1 || state.LockedUntil != nil {
		t.Fatalf("first failure should not lock: %+v", state)
	}
	state = p.Fail(1, now)
	if state.Attempts != 2 || state.LockedUntil != nil {
		t.Fatalf("second failure should not lock: %+v", state)
	}
	state = p.Fail(2, now)
	if state.Attempts != 3 || state.LockedUntil == nil || !state.LockedUntil.Equal(now.Add(15*time.Minute)) {
		t.Fatalf("third failure should lock for 15m: %+v", state)
	}
}

func TestLockoutPolicy_Check(t *testing.T) {
	p := NewLockoutPolicy(3, 15*time.Minute)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		until   *time.Time
		minutes int
		locked  bool
	}{
		{"unset", nil, 0, false},
		{"past", ptr(now.Add(-time.Second)), 0, false},
		{"exactly now", ptr(now), 0, false},
		{"one second", ptr(now.Add(time.Second)), 1, true},
		{"fourteen and a bit", ptr(now.Add(14*time.Minute + time.Second)), 15, true},
		{"full window", ptr(now.Add(15 * time.Minute)), 15, true},
	}
	for _, tc := range cases {
		minutes, locked := p.Check(tc.until, now)
		if minutes != tc.minutes || locked != tc.locked {
			t.Fatalf("%s: got (%d, %v), want (%d, %v)", tc.name, minutes, locked, tc.minutes, tc.locked)
		}
	}
}

func TestLockoutPolicy_Succeed(t *testing.T) {
	state := NewLockoutPolicy(3, time.Minute).Succeed()
	if state.Attempts != 0 || state.LockedUntil != nil {
		t.Fatalf("success must clear state: %+v", state)
	}
}

func ptr(t time.Time) *time.Time { return &t }
