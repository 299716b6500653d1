package sync

import "errors"

var (
	// ErrInvalidPageSize is returned for pageSize <= 0. No remote calls
	// are issued before this check.
	ErrInvalidPageSize = errors.New("page size must be positive")

	// ErrInvalidPageNumber is returned for pageNumber < 1.
	ErrInvalidPageNumber = errors.New("page number must be >= 1")
)
