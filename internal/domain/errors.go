package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict: transient write contention on stock rows; safe to retry
	// with backoff.
	ErrConflict = errors.New("conflict: concurrent stock update, retry")
	// ErrTimeout: a stock lock could not be acquired in time.
	ErrTimeout = errors.New("timeout acquiring stock lock")
	// ErrForbidden: the actor is not allowed to touch this order.
	ErrForbidden = errors.New("forbidden")
	// ErrCatalogUnavailable: the catalog store itself is unreachable.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	ErrNotFound           = errors.New("not found")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InsufficientStockError rejects the whole order: admission is all-or-nothing,
// a single short line aborts every other line too.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}
