// Package store owns persistence of the canonical voting aggregate. The
// aggregate is always read and written whole; there are no partial-field
// updates.
package store

import (
	"context"
	"errors"

	"github.com/ianarundale/lead-from-here/internal/engine"
)

// ErrUnavailable reports that the backing medium could not be reached.
// Callers surface it as a transient per-request failure.
var ErrUnavailable = errors.New("voting state storage unavailable")

type Store interface {
	// Load returns the persisted aggregate, initializing and persisting the
	// default state the first time it is needed.
	Load(ctx context.Context) (engine.State, error)

	// Save overwrites the full aggregate.
	Save(ctx context.Context, s engine.State) error
}
