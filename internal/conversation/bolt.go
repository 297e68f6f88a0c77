package conversation

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	bolt "go.etcd.io/bbolt"
)

var turnsBucket = []byte("turns")

// BoltStore keeps one nested bucket per user under "turns".
// Keys are big-endian sequence numbers drawn from the root bucket, so they
// keep growing across clears.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

func NewBoltStore(db *bolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(turnsBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating turns bucket: %w", err)
	}
	return &BoltStore{db: db, now: time.Now}, nil
}

func userKey(userID int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(userID))
	return k
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func (s *BoltStore) Append(_ context.Context, userID int64, role Role, content string) (Turn, error) {
	if !role.Valid() {
		return Turn{}, fmt.Errorf("invalid role %q", role)
	}

	var turn Turn
	err := s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(turnsBucket)
		seq, err := root.NextSequence()
		if err != nil {
			return err
		}
		ub, err := root.CreateBucketIfNotExists(userKey(userID))
		if err != nil {
			return err
		}

		turn = Turn{
			Seq:       int64(seq),
			UserID:    userID,
			Role:      role,
			Content:   content,
			CreatedAt: s.now().UTC(),
		}
		data, err := json.Marshal(turn)
		if err != nil {
			return err
		}
		return ub.Put(seqKey(seq), data)
	})
	if err != nil {
		return Turn{}, fmt.Errorf("appending turn: %w", err)
	}
	return turn, nil
}

func (s *BoltStore) LastN(_ context.Context, userID int64, n int) ([]Turn, error) {
	if n <= 0 {
		return []Turn{}, nil
	}

	turns := make([]Turn, 0, n)
	err := s.db.View(func(tx *bolt.Tx) error {
		ub := tx.Bucket(turnsBucket).Bucket(userKey(userID))
		if ub == nil {
			return nil
		}
		c := ub.Cursor()
		for k, v := c.Last(); k != nil && len(turns) < n; k, v = c.Prev() {
			var t Turn
			if err := json.Unmarshal(v, &t); err != nil {
				continue // skip malformed entries
			}
			turns = append(turns, t)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading turns: %w", err)
	}

	slices.Reverse(turns)
	return turns, nil
}

func (s *BoltStore) Clear(_ context.Context, userID int64) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(turnsBucket)
		if root.Bucket(userKey(userID)) == nil {
			return nil
		}
		return root.DeleteBucket(userKey(userID))
	})
	if err != nil {
		return fmt.Errorf("clearing turns: %w", err)
	}
	return nil
}

func (s *BoltStore) Count(_ context.Context, userID int64) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		if ub := tx.Bucket(turnsBucket).Bucket(userKey(userID)); ub != nil {
			n = ub.Stats().KeyN
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("counting turns: %w", err)
	}
	return n, nil
}
