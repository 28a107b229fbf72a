package store

import (
	"errors"
	"fmt"
)

// NotFoundError reports a lookup for an artifact the store does not hold.
type NotFoundError struct {
	Key string // content hash or artifact id
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("artifact %q not found", e.Key)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// HashCollisionError reports a put whose content hash matches a stored
// artifact with different content. This is a security incident, not a
// duplicate: either the hash function is broken or stored content was
// tampered with. The put fails and nothing is overwritten.
type HashCollisionError struct {
	ContentHash string
	ExistingID  string
}

func (e *HashCollisionError) Error() string {
	return fmt.Sprintf("content hash collision on %s (existing artifact %s)", e.ContentHash, e.ExistingID)
}

// IsHashCollision reports whether err is (or wraps) a HashCollisionError.
func IsHashCollision(err error) bool {
	var hc *HashCollisionError
	return errors.As(err, &hc)
}
