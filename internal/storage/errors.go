package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when no record has the requested key.
var ErrNotFound = errors.New("record not found")

// StoreError wraps an initialization or write failure.
type StoreError struct {
	Op         string // "init", "migrate", "put", "get", "delete", ...
	Collection string
	Err        error
}

func (e *StoreError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
