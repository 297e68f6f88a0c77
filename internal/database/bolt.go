package database

import (
	"fmt"
	"log/slog"
	"time"

	bolt "go.etcd.io/bbolt"
)

// OpenBolt opens (or creates) the local bbolt file shared by the account and turn stores.
// Buckets are created by the stores themselves.
func OpenBolt(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	slog.Info("opened bolt database", "path", path)
	return db, nil
}
