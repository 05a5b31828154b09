package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// Durable is a durable store partitioned by mailbox
type Durable interface {
	ForMailbox(mailbox string) Backend
	Mailboxes(ctx context.Context) ([]string, error)
	Close() error
}

var rootBucket = []byte("Signatures")

// BoltStore is the durable backend kept in a bbolt file, one nested
// bucket per mailbox.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens (or creates) the database in dataDir
func OpenBolt(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "autosig.db")

	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(rootBucket); err != nil {
			return fmt.Errorf("create bucket %s: %s", rootBucket, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// ForMailbox returns the partition of one mailbox
func (s *BoltStore) ForMailbox(mailbox string) Backend {
	return &boltBackend{db: s.db, bucket: []byte(partitionName(mailbox))}
}

// Mailboxes lists every partition
func (s *BoltStore) Mailboxes(ctx context.Context) ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(rootBucket).ForEachBucket(func(k []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out, err
}

// partitionName maps an unknown mailbox to a shared partition
func partitionName(mailbox string) string {
	if mailbox == "" {
		return "default"
	}
	return mailbox
}

type boltBackend struct {
	db     *bbolt.DB
	bucket []byte
}

func (b *boltBackend) Name() string { return "bbolt" }

func (b *boltBackend) GetItem(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	var (
		value string
		found bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(rootBucket).Bucket(b.bucket)
		if bkt == nil {
			return nil
		}
		if v := bkt.Get([]byte(key)); v != nil {
			value, found = string(v), true
		}
		return nil
	})
	return value, found, err
}

func (b *boltBackend) SetItem(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := tx.Bucket(rootBucket).CreateBucketIfNotExists(b.bucket)
		if err != nil {
			return err
		}
		return bkt.Put([]byte(key), []byte(value))
	})
}

// RemoveItems deletes the keys in a single transaction
func (b *boltBackend) RemoveItems(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(rootBucket).Bucket(b.bucket)
		if bkt == nil {
			return nil
		}
		for _, k := range keys {
			if err := bkt.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *boltBackend) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := b.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(rootBucket).Bucket(b.bucket)
		if bkt == nil {
			return nil
		}
		return bkt.ForEach(func(k, v []byte) error {
			if v != nil {
				keys = append(keys, string(k))
			}
			return nil
		})
	})
	return keys, err
}
