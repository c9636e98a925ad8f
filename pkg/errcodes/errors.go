// Package errcodes defines the core's error taxonomy. The core performs
// no HTTP translation itself; an out-of-scope collaborator (Handler, in
// handler.go) maps these codes onto transport statuses (NotFound,
// FileNotFound and PageOutOfBounds->404, Conflict->409,
// UnsupportedFileType->415, everything else->500).
package errcodes

import (
	"errors"
	"fmt"
)

// Error is a tagged, comparable error carrying a stable Code so callers can
// branch on category with errors.Is/errors.As without string matching.
type Error struct {
	Code    string
	Message string
}

func (err *Error) Error() string {
	return err.Message
}

func (err *Error) As(target interface{}) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	te.Code = err.Code
	te.Message = err.Message
	return true
}

func (err *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.Code == err.Code && te.Message == err.Message
}

// Store error categories.
const (
	CodeNotFound = "not_found"
	CodeConflict = "conflict"
	CodeIo       = "io"
	CodeBackend  = "backend"
)

// NotFound returns an error indicating the given resource wasn't found.
func NotFound(resource string) error {
	return &Error{CodeNotFound, resource + " not found."}
}

// Conflict returns an error indicating a uniqueness/invariant violation.
func Conflict(msg string) error {
	return &Error{CodeConflict, msg}
}

// Io wraps a filesystem error under the store contract's Io category.
func Io(err error) error {
	return &Error{CodeIo, err.Error()}
}

// Backend wraps an underlying storage error under the store contract's
// Backend category.
func Backend(err error) error {
	return &Error{CodeBackend, err.Error()}
}

// File Processor / scanner error categories.
const (
	CodeFileNotFound        = "file_not_found"
	CodeUnsupportedFileType = "unsupported_file_type"
	CodeArchiveRead         = "archive_read"
	CodeMetadataParse       = "metadata_parse"
	CodePageOutOfBounds     = "page_out_of_bounds"
)

func FileNotFound(path string) error {
	return &Error{CodeFileNotFound, fmt.Sprintf("file not found: %s", path)}
}

func UnsupportedFileType(ext string) error {
	return &Error{CodeUnsupportedFileType, fmt.Sprintf("unsupported file type: %s", ext)}
}

func ArchiveRead(path string, cause error) error {
	return &Error{CodeArchiveRead, fmt.Sprintf("archive read failed for %s: %v", path, cause)}
}

func MetadataParse(path string, cause error) error {
	return &Error{CodeMetadataParse, fmt.Sprintf("metadata parse failed for %s: %v", path, cause)}
}

func PageOutOfBounds(page, total int) error {
	return &Error{CodePageOutOfBounds, fmt.Sprintf("page %d out of bounds (total %d)", page, total)}
}

// Job engine terminal-state error categories.
const (
	CodeCancelled       = "cancelled"
	CodeInitFailed      = "init_failed"
	CodeStateLoadFailed = "state_load_failed"
	CodeSaveFailed      = "save_failed"
)

// Cancelled is the terminal, non-error condition a job's context carries
// when a Cancel command was accepted. Callers should treat it as a normal
// outcome, not a failure to surface.
func Cancelled() error {
	return &Error{CodeCancelled, "job cancelled"}
}

func InitFailed(cause error) error {
	return &Error{CodeInitFailed, fmt.Sprintf("init failed: %v", cause)}
}

func StateLoadFailed(cause error) error {
	return &Error{CodeStateLoadFailed, fmt.Sprintf("failed to load saved state: %v", cause)}
}

func SaveFailed(cause error) error {
	return &Error{CodeSaveFailed, fmt.Sprintf("failed to save state: %v", cause)}
}

// IsCode reports whether err is an *Error of the given code, unwrapping
// along the way so callers don't need to know whether a layer wrapped it
// with errors.WithStack.
func IsCode(err error, code string) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}
