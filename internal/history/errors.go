package history

import (
	"errors"
	"fmt"
)

// ProtocolError reports a violation of the exchange protocol or a request the
// manager cannot satisfy. Protocol errors are programmer errors: the caller
// broke the contract and retrying will not help.
type ProtocolError struct {
	// Code identifies the error category.
	Code ProtocolErrorCode

	// Message is a human-readable description.
	Message string

	// HistoryEntryID identifies the affected entry, if any.
	HistoryEntryID string

	// ExchangeID identifies the affected exchange, if any.
	ExchangeID string

	// TreeID identifies the affected tree, if any.
	TreeID string

	// Details contains additional context.
	Details map[string]string
}

// ProtocolErrorCode categorizes protocol errors.
type ProtocolErrorCode string

const (
	// ErrCodeEntryNotFound indicates the history entry id was never created.
	ErrCodeEntryNotFound ProtocolErrorCode = "ENTRY_NOT_FOUND"

	// ErrCodeEntryComplete indicates the entry already completed (or was
	// discarded) and can no longer accept exchanges or records.
	ErrCodeEntryComplete ProtocolErrorCode = "ENTRY_COMPLETE"

	// ErrCodeDuplicateEntry indicates the entry id has already been used.
	ErrCodeDuplicateEntry ProtocolErrorCode = "DUPLICATE_ENTRY"

	// ErrCodeDuplicateExchange indicates the exchange is already open.
	ErrCodeDuplicateExchange ProtocolErrorCode = "DUPLICATE_EXCHANGE"

	// ErrCodeExchangeNotOpen indicates the exchange is not open on the entry.
	ErrCodeExchangeNotOpen ProtocolErrorCode = "EXCHANGE_NOT_OPEN"

	// ErrCodeReservedID indicates a caller tried to create an entry with a
	// replay sentinel id.
	ErrCodeReservedID ProtocolErrorCode = "RESERVED_ID"

	// ErrCodeInvalidRecord indicates a patch record with mismatched lists.
	ErrCodeInvalidRecord ProtocolErrorCode = "INVALID_RECORD"

	// ErrCodeUnknownTree indicates a record references an unregistered tree.
	ErrCodeUnknownTree ProtocolErrorCode = "UNKNOWN_TREE"

	// ErrCodeIndexOutOfRange indicates a history index outside [0, len].
	ErrCodeIndexOutOfRange ProtocolErrorCode = "INDEX_OUT_OF_RANGE"

	// ErrCodeCursorNotAtEnd indicates undo or redo was requested while the
	// history cursor points before the end of the document.
	ErrCodeCursorNotAtEnd ProtocolErrorCode = "CURSOR_NOT_AT_END"
)

var (
	// ErrNothingToUndo is returned by Undo when the undo store is empty or
	// fully undone.
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrNothingToRedo is returned by Redo when there is nothing undone.
	ErrNothingToRedo = errors.New("nothing to redo")
)

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	switch {
	case e.HistoryEntryID != "" && e.ExchangeID != "":
		return fmt.Sprintf("%s: %s (entry=%s, exchange=%s)", e.Code, e.Message, e.HistoryEntryID, e.ExchangeID)
	case e.HistoryEntryID != "":
		return fmt.Sprintf("%s: %s (entry=%s)", e.Code, e.Message, e.HistoryEntryID)
	case e.TreeID != "":
		return fmt.Sprintf("%s: %s (tree=%s)", e.Code, e.Message, e.TreeID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsProtocolError reports whether err is a ProtocolError with the given code.
// Uses errors.As to handle wrapped errors.
func IsProtocolError(err error, code ProtocolErrorCode) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

func newEntryError(code ProtocolErrorCode, entryID, exchangeID, msg string) *ProtocolError {
	return &ProtocolError{
		Code:           code,
		Message:        msg,
		HistoryEntryID: entryID,
		ExchangeID:     exchangeID,
	}
}

func newUnknownTreeError(treeID string) *ProtocolError {
	return &ProtocolError{
		Code:    ErrCodeUnknownTree,
		Message: "tree is not registered",
		TreeID:  treeID,
	}
}
