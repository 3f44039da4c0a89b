// Package registry tracks which transport-level connections are currently
// open and which user each one belongs to. It is used for presence counting
// and as the fan-out list for broadcasts.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/samber/lo"
)

var ErrUnavailable = errors.New("connection registry unavailable")

// Entry is one live connection. UserID starts out as a placeholder derived
// from the connection id and is replaced when the client announces itself.
type Entry struct {
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"userId"`
	ConnectedAt  time.Time `json:"connectedAt"`
}

type Registry interface {
	Register(ctx context.Context, connectionID, userID string) error

	// UpdateUserID records the real identity for a connection that was
	// registered before the client announced itself.
	UpdateUserID(ctx context.Context, connectionID, userID string) error

	Unregister(ctx context.Context, connectionID string) error

	ListAll(ctx context.Context) ([]Entry, error)

	// CountDistinctUsers is the presence count: distinct announced user ids,
	// counting unannounced connections by connection id so they are never
	// undercounted.
	CountDistinctUsers(ctx context.Context) (int, error)
}

func countDistinct(entries []Entry) int {
	ids := lo.Map(entries, func(e Entry, _ int) string {
		if e.UserID != "" {
			return e.UserID
		}
		return e.ConnectionID
	})
	return len(lo.Uniq(ids))
}
