package service

import (
	"errors"
	"fmt"

	"github.com/webitel/im-realtime-service/internal/domain/model"
)

// storeErr classifies a durable store failure. Not-found and version
// conflicts keep their own identity; everything else is a persistence error.
func storeErr(op string, err error) error {
	if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrVersionConflict) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, model.ErrPersistence, err)
}
