package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrMalformedRequest  = errors.New("malformed request")
	ErrItemNotFound      = errors.New("item not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrCommitConflict    = errors.New("commit conflict")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrShipmentNotFound  = errors.New("shipment not found")
)

type MalformedRequestError struct {
	Reason string
}

func Malformed(format string, args ...any) error {
	return &MalformedRequestError{Reason: fmt.Sprintf(format, args...)}
}

func (e *MalformedRequestError) Error() string {
	return "malformed request: " + e.Reason
}

func (e *MalformedRequestError) Is(target error) bool {
	return target == ErrMalformedRequest
}

type ItemNotFoundError struct {
	ItemID uuid.UUID
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("item %s not found", e.ItemID)
}

func (e *ItemNotFoundError) Is(target error) bool {
	return target == ErrItemNotFound
}

type InsufficientStockError struct {
	ItemID    uuid.UUID
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s: available %d, requested %d",
		e.ItemID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
