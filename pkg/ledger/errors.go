package ledger

import (
	"errors"
	"fmt"

	"github.com/mcclellann/terme/pkg/store"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidClient       = errors.New("client does not exist")
	ErrDuplicateName       = errors.New("client name already in use")
	ErrDuplicatePeriod     = errors.New("period already has an ordinary payment")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrOperationClosed     = errors.New("operation is closed")
	ErrHasActiveOperations = errors.New("client still has operations")
)

// notFound converts store.ErrNotFound into ErrNotFound and wraps anything else.
func notFound(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
