package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrCancelled       = errors.New("import cancelled")
	ErrTooManyImports  = errors.New("too many imports in progress, please try again later")
	ErrSessionNotFound = errors.New("import session not found")
	ErrCommitNotFound  = errors.New("commit not found")
	ErrCommitRunning   = errors.New("commit already running for this session")
	ErrUnknownEntity   = errors.New("unknown entity type")
	ErrEmptyFile       = errors.New("empty file: no data rows after header")
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrProfileNotFound = errors.New("profile not found")
	ErrInvalidProfile  = errors.New("profile name is required")
	ErrWarningNotAcked = errors.New("warning not acknowledged")
)

// RowError is a row-level problem reported to the operator.
// Field is a catalog field name or "BATCH" for chunk-level failures.
type RowError struct {
	RowIndex int    `json:"rowIndex"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

// BatchField marks a RowError that describes a whole chunk.
const BatchField = "BATCH"

// DecodeError reports that the file could not be turned into rows.
// Fatal to the selection step; no session is created.
type DecodeError struct {
	FileName string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.FileName, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// MappingAdvisoryFailure reports that the assisted mapping pass failed or timed out.
// It is logged and otherwise ignored.
type MappingAdvisoryFailure struct {
	EntityType string
	Err        error
}

func (e *MappingAdvisoryFailure) Error() string {
	return fmt.Sprintf("mapping advisor (%s): %v", e.EntityType, e.Err)
}

func (e *MappingAdvisoryFailure) Unwrap() error { return e.Err }

// ValidationFailure reports a row that failed required-field or type checks.
type ValidationFailure struct {
	RowIndex int
	Field    string
	Message  string
}

func (e *ValidationFailure) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("row %d: %s: %s", e.RowIndex, e.Field, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.RowIndex, e.Message)
}

// RowError converts the failure into its reported form.
func (e *ValidationFailure) RowError() RowError {
	return RowError{RowIndex: e.RowIndex, Field: e.Field, Message: e.Message}
}

// PersistenceRowFailure reports a row the store rejected.
type PersistenceRowFailure struct {
	RowIndex int
	Field    string
	Err      error
}

func (e *PersistenceRowFailure) Error() string {
	return fmt.Sprintf("row %d: %v", e.RowIndex, e.Err)
}

func (e *PersistenceRowFailure) Unwrap() error { return e.Err }

// PersistenceChunkFailure reports a chunk that failed in a way no single row explains.
type PersistenceChunkFailure struct {
	Chunk    int // 1-based
	FirstRow int
	Err      error
}

func (e *PersistenceChunkFailure) Error() string {
	return fmt.Sprintf("batch %d (first row %d): %v", e.Chunk, e.FirstRow, e.Err)
}

func (e *PersistenceChunkFailure) Unwrap() error { return e.Err }

// FatalSessionFailure stops a commit. Counts reflect partial completion.
type FatalSessionFailure struct {
	Err error
}

func (e *FatalSessionFailure) Error() string {
	return fmt.Sprintf("import stopped: %v", e.Err)
}

func (e *FatalSessionFailure) Unwrap() error { return e.Err }

// fatalPatterns are driver messages that mean the store itself is gone.
var fatalPatterns = []string{
	"closed pool",
	"connection refused",
	"connection reset",
	"conn closed",
	"broken pipe",
	"no such host",
}

// IsFatalStoreError reports whether err means the store is unreachable,
// so later chunks would fail the same way.
func IsFatalStoreError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var fatal *FatalSessionFailure
	if errors.As(err, &fatal) {
		return true
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}

	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range fatalPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// rowErrorFromStore builds the reported RowError for a store failure.
func rowErrorFromStore(rowIndex int, err error) RowError {
	field := ""
	var rowFail *PersistenceRowFailure
	if errors.As(err, &rowFail) {
		field = rowFail.Field
		err = rowFail.Err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && field == "" {
		field = pgErr.ColumnName
	}

	msg := err.Error()
	if IsUserFacing(err) {
		msg = MapError(err).Message + ": " + msg
	}
	return RowError{RowIndex: rowIndex, Field: field, Message: msg}
}
