package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/ianarundale/lead-from-here/internal/engine"
)

// stateKey is the singleton record holding the whole aggregate, the
// equivalent of the original deployment's single voting-table item.
var stateKey = []byte("voting:state")

// Badger persists the aggregate in a Badger database so state survives
// process restarts and can be shared by co-located instances.
type Badger struct {
	db       *badger.DB
	defaults func() engine.State
}

func NewBadger(db *badger.DB, defaults func() engine.State) *Badger {
	return &Badger{db: db, defaults: defaults}
}

func (b *Badger) Load(_ context.Context) (engine.State, error) {
	var state engine.State
	err := b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(stateKey)
		if err == badger.ErrKeyNotFound {
			state = b.defaults()
			raw, err := json.Marshal(state)
			if err != nil {
				return err
			}
			return txn.Set(stateKey, raw)
		}
		if err != nil {
			return err
		}
		return item.Value(func(raw []byte) error {
			return json.Unmarshal(raw, &state)
		})
	})
	if err != nil {
		return engine.State{}, fmt.Errorf("%w: load: %v", ErrUnavailable, err)
	}
	return state, nil
}

func (b *Badger) Save(_ context.Context, s engine.State) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode voting state: %w", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stateKey, raw)
	})
	if err != nil {
		return fmt.Errorf("%w: save: %v", ErrUnavailable, err)
	}
	return nil
}
