// Package storage persists tracked items and subscribers, in Firestore for
// deployments and in a local bbolt file for single-host setups.
package storage

import (
	"errors"

	"github.com/pauljones0/skuwatch/internal/models"
)

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}
