package simpleshare

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrValidation indicates malformed or empty input. No side effects happened.
	ErrValidation = errors.New("validation failed")

	// ErrKeyspaceExhausted indicates the allocator found no free key within its attempt budget
	ErrKeyspaceExhausted = errors.New("keyspace exhausted")

	// ErrNotFound indicates a key has no records at all
	ErrNotFound = errors.New("content not found")

	// ErrExpired indicates a key existed but its content is no longer readable
	ErrExpired = errors.New("content has expired")

	// ErrForbidden indicates deletion was attempted after expiry
	ErrForbidden = errors.New("deletion not allowed after expiration")

	// ErrStorageBackend indicates a blob I/O failure
	ErrStorageBackend = errors.New("storage backend error")

	// ErrKeyTaken is returned by Repository.ClaimKey when a live binding exists
	ErrKeyTaken = errors.New("key already bound")

	// ErrPayloadNotFound is returned by a Repository when a payload row is missing
	ErrPayloadNotFound = errors.New("payload not found")

	// ErrBlobNotFound is returned by a BlobStore when a handle is unknown
	ErrBlobNotFound = errors.New("blob not found")

	// ErrItemTooLarge is the read error of an upload stream that runs past
	// the per-item size limit. It reaches the BlobStore through Put.
	ErrItemTooLarge = errors.New("item exceeds size limit")
)

// ValidationError describes a rejected create request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// KeyError represents an error related to operations on one key
type KeyError struct {
	Key string
	Op  string
	Err error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("%s failed for key %q: %v", e.Op, e.Key, e.Err)
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to blob storage operations
type StorageError struct {
	Backend string
	Handle  string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for handle %s on backend %s: %v", e.Op, e.Handle, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrStorageBackend) match any StorageError.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorageBackend
}
