package sync

import "errors"

var (
	ErrUnknownEntity    = errors.New("unknown entity")
	ErrConflictNotFound = errors.New("conflict not found")
)
