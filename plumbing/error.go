package plumbing

import "fmt"

// The error kinds below classify every failure mode of an import
// session. All of them are scoped to a single session, none is
// process-fatal.

// FormatError reports a malformed pack stream: bad signature or
// version, invalid object type tag, truncated data, forward or cyclic
// delta base references.
type FormatError struct {
	Err error
}

// NewFormatError classifies err as a format error.
func NewFormatError(err error) *FormatError {
	if err == nil {
		return nil
	}

	return &FormatError{Err: err}
}

// Error implements Error interface and returns string representation of the error
func (e *FormatError) Error() string {
	return fmt.Sprintf("format error: %s", e.Err.Error())
}

// Unwrap implements the Unwrap interface and returns the wrapped error
func (e *FormatError) Unwrap() error {
	return e.Err
}

// IntegrityError reports content that decoded but does not check out:
// pack checksum mismatches, delta results of the wrong length,
// out-of-bounds copy instructions, or colliding object ids.
type IntegrityError struct {
	Err error
}

// NewIntegrityError classifies err as an integrity error.
func NewIntegrityError(err error) *IntegrityError {
	if err == nil {
		return nil
	}

	return &IntegrityError{Err: err}
}

// Error implements Error interface and returns string representation of the error
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity error: %s", e.Err.Error())
}

// Unwrap implements the Unwrap interface and returns the wrapped error
func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// MissingBaseError reports a reference delta whose base object is
// absent from both the decode cache and the object store.
type MissingBaseError struct {
	Base ObjectID
}

// Error implements Error interface and returns string representation of the error
func (e *MissingBaseError) Error() string {
	return fmt.Sprintf("missing delta base object %s", e.Base)
}

// StorageError reports an I/O failure while reading or writing either
// tier of the object store.
type StorageError struct {
	Err error
}

// NewStorageError classifies err as a storage error.
func NewStorageError(err error) *StorageError {
	if err == nil {
		return nil
	}

	return &StorageError{Err: err}
}

// Error implements Error interface and returns string representation of the error
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s", e.Err.Error())
}

// Unwrap implements the Unwrap interface and returns the wrapped error
func (e *StorageError) Unwrap() error {
	return e.Err
}

// PolicyError reports an import rejected by the repository's import
// mode before any object was committed.
type PolicyError struct {
	Reason string
}

// Error implements Error interface and returns string representation of the error
func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy error: %s", e.Reason)
}
