package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var accountsBucket = []byte("accounts")

// BoltStore keeps accounts as JSON values in a local bbolt file.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates the accounts bucket if needed.
func NewBoltStore(db *bolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(accountsBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating accounts bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func accountKey(userID int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(userID))
	return k
}

// update loads (or initializes) one account, applies fn and writes it back in a single transaction.
func (s *BoltStore) update(userID int64, now time.Time, fn func(a *Account)) (*Account, error) {
	var out Account
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(accountsBucket)
		key := accountKey(userID)

		acc := Account{UserID: userID, CreatedAt: now, LastActiveAt: now}
		if v := b.Get(key); v != nil {
			if err := json.Unmarshal(v, &acc); err != nil {
				return fmt.Errorf("decoding account %d: %w", userID, err)
			}
		}
		if fn != nil {
			fn(&acc)
		}

		data, err := json.Marshal(acc)
		if err != nil {
			return err
		}
		out = acc
		return b.Put(key, data)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BoltStore) GetOrCreate(_ context.Context, userID int64, now time.Time) (*Account, error) {
	var acc *Account
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(accountsBucket).Get(accountKey(userID))
		if v == nil {
			return nil
		}
		acc = &Account{}
		return json.Unmarshal(v, acc)
	})
	if err != nil {
		return nil, fmt.Errorf("fetching account: %w", err)
	}
	if acc != nil {
		return acc, nil
	}

	// Not found: the write transaction re-checks, so concurrent first contacts insert once.
	acc, err = s.update(userID, now, nil)
	if err != nil {
		return nil, fmt.Errorf("creating account: %w", err)
	}
	return acc, nil
}

func (s *BoltStore) IncrementFree(_ context.Context, userID int64, now time.Time) error {
	_, err := s.update(userID, now, func(a *Account) { a.FreeUsed++ })
	if err != nil {
		return fmt.Errorf("incrementing free usage: %w", err)
	}
	return nil
}

func (s *BoltStore) ResetFree(_ context.Context, userID int64, now time.Time) error {
	_, err := s.update(userID, now, func(a *Account) { a.FreeUsed = 0 })
	if err != nil {
		return fmt.Errorf("resetting free usage: %w", err)
	}
	return nil
}

func (s *BoltStore) SetPaidUntil(_ context.Context, userID int64, until, now time.Time) error {
	_, err := s.update(userID, now, func(a *Account) { a.PaidUntil = until.UTC() })
	if err != nil {
		return fmt.Errorf("setting paid until: %w", err)
	}
	return nil
}

func (s *BoltStore) Touch(_ context.Context, userID int64, at time.Time) error {
	_, err := s.update(userID, at, func(a *Account) { a.LastActiveAt = at.UTC() })
	if err != nil {
		return fmt.Errorf("touching account: %w", err)
	}
	return nil
}

func (s *BoltStore) ListIdle(_ context.Context, before time.Time) ([]Account, error) {
	var idle []Account
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(accountsBucket).ForEach(func(_, v []byte) error {
			var acc Account
			if err := json.Unmarshal(v, &acc); err != nil {
				return nil // skip malformed entries
			}
			if acc.LastActiveAt.Before(before) {
				idle = append(idle, acc)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scanning accounts: %w", err)
	}
	return idle, nil
}
