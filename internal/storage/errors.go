package storage

import "errors"

func isClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNotDirectory) ||
		errors.Is(err, ErrIsDirectory) ||
		errors.Is(err, ErrOutsideRoot)
}
