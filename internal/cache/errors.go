package cache

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// maxKeyLength is the longest accepted key, in code points.
const maxKeyLength = 256

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("cache: closed")

	// ErrInvalidKey is returned for empty keys and keys longer than 256
	// characters. Use errors.Is to detect it under wrapping.
	ErrInvalidKey = errors.New("cache: invalid key")

	// ErrMissingSchemaVersion is returned at construction when the bound
	// record type reports an empty schema version.
	ErrMissingSchemaVersion = errors.New("cache: record type has no schema version")

	// ErrItemTooLarge is returned by Put and PutMany when a single encoded
	// record exceeds the disk tier's byte limit, since such an item could
	// never be retained.
	ErrItemTooLarge = errors.New("cache: item exceeds disk size limit")
)

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if n := utf8.RuneCountInString(key); n > maxKeyLength {
		return fmt.Errorf("%w: %d characters exceeds limit of %d", ErrInvalidKey, n, maxKeyLength)
	}
	return nil
}
