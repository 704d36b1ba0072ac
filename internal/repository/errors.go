// Package repository defines the persistence boundary of the ticketing
// core and its MySQL and in-memory implementations.  The sentinel errors
// below are shared by both so the service layer can distinguish failure
// scenarios without knowing which store is in use.
package repository

import "errors"

// ErrNotFound is returned when a session, order, ticket or exchange code
// does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert collides with a unique key, such
// as a duplicate ticket or exchange code.
var ErrConflict = errors.New("conflict")
