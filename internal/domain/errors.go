// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the entity already exists or is in a state that
// does not allow the requested transition.
var ErrConflict = errors.New("conflict")

// ErrValidation indicates malformed input that was rejected synchronously.
var ErrValidation = errors.New("validation error")
