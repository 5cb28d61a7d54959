package mongostore

import (
	"errors"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/errs"
)

// mapError normalizes driver errors: no documents becomes
// backend.ErrNoRecord, duplicate keys CONFLICT, anything else BACKEND.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return backend.ErrNoRecord
	}
	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}
	if mongo.IsDuplicateKeyError(err) {
		return errs.Conflict(err)
	}
	return errs.Backend(err)
}
