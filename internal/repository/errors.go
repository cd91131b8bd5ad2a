package repository

import "errors"

// ErrNotFound indicates the requested record does not exist upstream.
var ErrNotFound = errors.New("record not found")

// ErrConflict indicates the operation collided with existing upstream state.
var ErrConflict = errors.New("record conflict")
