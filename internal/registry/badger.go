package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

var connPrefix = []byte("conn:")

func connKey(connectionID string) []byte {
	return append(append([]byte{}, connPrefix...), connectionID...)
}

// Badger is the durable registry, one record per live connection, standing in
// for the original deployment's connections table.
type Badger struct {
	db *badger.DB
}

func NewBadger(db *badger.DB) *Badger {
	return &Badger{db: db}
}

func (b *Badger) Register(_ context.Context, connectionID, userID string) error {
	entry := Entry{
		ConnectionID: connectionID,
		UserID:       userID,
		ConnectedAt:  time.Now(),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(connKey(connectionID), raw)
	})
	if err != nil {
		return fmt.Errorf("%w: register: %v", ErrUnavailable, err)
	}
	return nil
}

func (b *Badger) UpdateUserID(_ context.Context, connectionID, userID string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(connKey(connectionID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var entry Entry
		if err := item.Value(func(raw []byte) error {
			return json.Unmarshal(raw, &entry)
		}); err != nil {
			return err
		}
		entry.UserID = userID
		raw, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return txn.Set(connKey(connectionID), raw)
	})
	if err != nil {
		return fmt.Errorf("%w: update user: %v", ErrUnavailable, err)
	}
	return nil
}

func (b *Badger) Unregister(_ context.Context, connectionID string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(connKey(connectionID))
	})
	if err != nil {
		return fmt.Errorf("%w: unregister: %v", ErrUnavailable, err)
	}
	return nil
}

func (b *Badger) ListAll(_ context.Context) ([]Entry, error) {
	var out []Entry
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = connPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var entry Entry
			if err := it.Item().Value(func(raw []byte) error {
				return json.Unmarshal(raw, &entry)
			}); err != nil {
				return err
			}
			out = append(out, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrUnavailable, err)
	}
	return out, nil
}

func (b *Badger) CountDistinctUsers(ctx context.Context) (int, error) {
	entries, err := b.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	return countDistinct(entries), nil
}
