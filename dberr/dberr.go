// Package dberr defines the sentinel error kinds of §7. A query() call
// reports those conditions as one of these values, possibly wrapped with
// additional context by github.com/pkg/errors as it crosses package
// boundaries; other failures (I/O errors, unsupported command kinds or
// operators) surface as plain wrapped errors. Callers recover the kind with
// errors.Cause (or errors.Is, which pkg/errors' Unwrap supports).
package dberr

import "github.com/pkg/errors"

var (
	ErrNameInvalid          = errors.New("NAME_INVALID")
	ErrNameTaken            = errors.New("NAME_TAKEN")
	ErrTableMissing         = errors.New("TABLE_MISSING")
	ErrColumnsValuesMismatch = errors.New("COLUMNS_VALUES_MISMATCH")
	ErrEmptyRecord          = errors.New("EMPTY_RECORD")
	ErrPageZeroFull         = errors.New("PAGE_ZERO_FULL")
	ErrRecordTooLarge       = errors.New("RECORD_TOO_LARGE")
	ErrCorruptRecord        = errors.New("CORRUPT_RECORD")
	ErrWALCorrupt           = errors.New("WAL_CORRUPT")
	ErrHandleClosed         = errors.New("HANDLE_CLOSED")
)
