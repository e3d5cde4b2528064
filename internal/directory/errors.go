package directory

import (
	"errors"
	"fmt"
)

// NotFoundError reports that dn does not exist, equivalent to LDAP's
// NoSuchObject (rc 32).
type NotFoundError struct{ DN string }

func (e *NotFoundError) Error() string { return fmt.Sprintf("no such entry: %s", e.DN) }

// ErrNotFound builds a *NotFoundError for dn.
func ErrNotFound(dn string) error { return &NotFoundError{DN: dn} }

// AlreadyExistsError reports that an Add targeted a dn that's already
// occupied.
type AlreadyExistsError struct{ DN string }

func (e *AlreadyExistsError) Error() string { return fmt.Sprintf("entry already exists: %s", e.DN) }

// ErrAlreadyExists builds a *AlreadyExistsError for dn.
func ErrAlreadyExists(dn string) error { return &AlreadyExistsError{DN: dn} }

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
