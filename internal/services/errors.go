package services

import (
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrNotFound                  = errors.New("not found")
	ErrAlreadyRefunded           = errors.New("transaction already refunded")
	ErrInvoiceAlreadyPaid        = errors.New("invoice already paid")
	ErrCardArchived              = errors.New("card is archived")
	ErrCardHasTransactions       = errors.New("card has transactions")
	ErrInstallmentNotAnticipable = errors.New("installment cannot be anticipated")
	ErrPurchaseLocked            = errors.New("purchase has paid installments or refunds")
	ErrTemplateEnded             = errors.New("recurring transaction has ended")
	ErrTemplateState             = errors.New("recurring transaction is not in the required state")
	ErrRolloverLimit             = errors.New("no open invoice found within rollover limit")
	ErrSweepInProgress           = errors.New("sweep already running")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsConflict reports whether err is a state conflict: the request was well
// formed but the entity is in a state that forbids it.
func IsConflict(err error) bool {
	for _, target := range []error{
		ErrAlreadyRefunded, ErrInvoiceAlreadyPaid, ErrCardArchived, ErrCardHasTransactions,
		ErrInstallmentNotAnticipable, ErrPurchaseLocked, ErrTemplateEnded, ErrTemplateState,
		ErrSweepInProgress,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// missing reports an entity that does not exist or belongs to another user.
func missing(resource, id string) error {
	return fmt.Errorf("%s %s: %w", resource, id, ErrNotFound)
}

// notFound turns a missing row into ErrNotFound and passes anything else
// through.
func notFound(resource, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return missing(resource, id)
	}
	return err
}
