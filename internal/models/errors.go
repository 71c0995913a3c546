package models

import "errors"

// ErrNotFound is returned when a record does not exist in a store.
var ErrNotFound = errors.New("entity not found")
