package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks missing or malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicatePhone is returned when a phone number is already registered.
	ErrDuplicatePhone = errors.New("phone number already registered")

	// ErrNotFound marks a lookup that matched no record.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials is returned when a password or PIN does not verify.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountStatus is returned when a non-active user tries to authenticate.
	ErrAccountStatus = errors.New("account is not active")

	// ErrLocked is matched by every *LockedError.
	ErrLocked = errors.New("locked")

	// ErrAlreadySet is returned when setting a PIN that already exists.
	ErrAlreadySet = errors.New("PIN already set, use change PIN instead")

	// ErrNotSet is returned when changing or verifying a PIN that was never set.
	ErrNotSet = errors.New("PIN not set, use set PIN first")

	// ErrIntegrity signals a broken storage invariant, e.g. a user without a credential row.
	ErrIntegrity = errors.New("integrity violation")

	// ErrHashing wraps failures of the hashing primitive.
	ErrHashing = errors.New("hashing failed")

	// ErrToken wraps failures of the token signing primitive.
	ErrToken = errors.New("token signing failed")

	// ErrForbidden is returned when the caller may not act on the target resource.
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthorized is returned for missing, invalid or expired tokens.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict marks a write that collides with an existing record.
	ErrConflict = errors.New("resource already exists")
)

// LockedError reports a timed lockout together with the whole minutes left.
type LockedError struct {
	Subject string
	Minutes int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s locked due to multiple failed attempts, try again in %d minutes", e.Subject, e.Minutes)
}

// Is lets errors.Is(err, ErrLocked) match any lockout.
func (e *LockedError) Is(target error) bool {
	return target == ErrLocked
}

// ValidationError carries the reason an input was rejected.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + e.Reason
}

// Is lets errors.Is(err, ErrValidation) match any *ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validation builds an ErrValidation carrying a human readable reason.
func Validation(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

var publicSentinels = []error{
	ErrDuplicatePhone,
	ErrInvalidCredentials,
	ErrAccountStatus,
	ErrAlreadySet,
	ErrNotSet,
	ErrNotFound,
	ErrForbidden,
	ErrUnauthorized,
	ErrConflict,
}

// Message returns the client facing text for err without the operation
// prefixes added while it was wrapped.
func Message(err error) string {
	var locked *LockedError
	if errors.As(err, &locked) {
		return locked.Error()
	}
	var invalid *ValidationError
	if errors.As(err, &invalid) {
		return invalid.Reason
	}
	for _, sentinel := range publicSentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

// Status maps an error onto the HTTP status code it is surfaced with.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrLocked):
		return http.StatusLocked
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrAccountStatus), errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrIntegrity), errors.Is(err, ErrHashing), errors.Is(err, ErrToken):
		return http.StatusInternalServerError
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrDuplicatePhone),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAlreadySet),
		errors.Is(err, ErrNotSet):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
