package storage

import (
	"bytes"
	"context"
	"errors"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// partition separator; mailbox addresses cannot contain it
const pebbleSep = 0x00

// PebbleStore is the durable backend kept in a pebble database. Keys are
// prefixed with the mailbox partition.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) a pebble database at path
func OpenPebble(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

// OpenPebbleInMemory opens a pebble database on an in-memory filesystem
func OpenPebbleInMemory() (*PebbleStore, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

// Close closes the database
func (s *PebbleStore) Close() error {
	return s.db.Close()
}

// ForMailbox returns the partition of one mailbox
func (s *PebbleStore) ForMailbox(mailbox string) Backend {
	prefix := append([]byte(partitionName(mailbox)), pebbleSep)
	return &pebbleBackend{db: s.db, prefix: prefix}
}

// Mailboxes lists every partition holding at least one key
func (s *PebbleStore) Mailboxes(ctx context.Context) ([]string, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []string
	for iter.First(); iter.Valid(); {
		k := iter.Key()
		i := bytes.IndexByte(k, pebbleSep)
		if i < 0 {
			iter.Next()
			continue
		}
		name := string(k[:i])
		out = append(out, name)
		// jump past this partition
		next := append([]byte(name), pebbleSep+1)
		iter.SeekGE(next)
	}
	return out, iter.Error()
}

type pebbleBackend struct {
	db     *pebble.DB
	prefix []byte
}

func (b *pebbleBackend) Name() string { return "pebble" }

func (b *pebbleBackend) key(k string) []byte {
	out := make([]byte, 0, len(b.prefix)+len(k))
	out = append(out, b.prefix...)
	return append(out, k...)
}

func (b *pebbleBackend) GetItem(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v, closer, err := b.db.Get(b.key(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	defer closer.Close()
	return string(v), true, nil
}

func (b *pebbleBackend) SetItem(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Set(b.key(key), []byte(value), pebble.Sync)
}

// RemoveItems deletes the keys in a single batch
func (b *pebbleBackend) RemoveItems(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := b.db.NewBatch()
	defer batch.Close()
	for _, k := range keys {
		if err := batch.Delete(b.key(k), nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

func (b *pebbleBackend) Keys(ctx context.Context) ([]string, error) {
	upper := append([]byte(nil), b.prefix...)
	upper[len(upper)-1] = pebbleSep + 1

	iter, err := b.db.NewIter(&pebble.IterOptions{LowerBound: b.prefix, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Key()[len(b.prefix):]))
	}
	return keys, iter.Error()
}
