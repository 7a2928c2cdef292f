package repository

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// NotFoundError reports requested ticket numbers that have no backing record.
type NotFoundError struct {
	Numbers []int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tickets not found: %v", e.Numbers)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports tickets that were not in the expected source status at
// transition time. The whole transition has been rolled back.
type ConflictError struct {
	Numbers []int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("tickets not in expected status: %v", e.Numbers)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }
