package service

import (
	"errors"
	"fmt"

	"memorabilia-service/internal/docstore"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("concurrent modification, retry")
	ErrStorage        = errors.New("storage failure")
	ErrAuctionHasBids = errors.New("auction has bids")
)

// storageError translates a docstore error for callers of the service
func storageError(kind, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	case errors.Is(err, docstore.ErrConflict):
		return fmt.Errorf("%s %s: %w", kind, id, ErrConflict)
	default:
		return fmt.Errorf("%w: %s %s: %w", ErrStorage, kind, id, err)
	}
}
