package store

import "errors"

// ErrConflict is returned when an optimistic update keeps losing to
// concurrent writers and gives up.
var ErrConflict = errors.New("concurrent update conflict")
