package errors

import (
	stderrors "errors"
	"fmt"
)

// Sentinel errors shared by the store, the normalizer and the conversion engine.
// Callers match them with errors.Is.
var (
	ErrInvalidQuote       = stderrors.New("invalid quote")
	ErrOutOfOrder         = stderrors.New("record out of order")
	ErrDuplicateTimestamp = stderrors.New("duplicate timestamp")
	ErrNotFound           = stderrors.New("not found")
	ErrMissingRate        = stderrors.New("missing rate")
	ErrStaleRate          = stderrors.New("stale rate")
	ErrCorruptStore       = stderrors.New("corrupt store")
	ErrUnknownAsset       = stderrors.New("unknown asset")
)

type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return e.Field + ": " + e.Message
}

// CorruptStoreError describes the first malformed entry found while loading a series file.
type CorruptStoreError struct {
	Path   string
	Line   int
	Offset int64
	Err    error
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("corrupt store: %s line %d (offset %d): %v", e.Path, e.Line, e.Offset, e.Err)
}

func (e *CorruptStoreError) Unwrap() error { return e.Err }

func (e *CorruptStoreError) Is(target error) bool { return target == ErrCorruptStore }
