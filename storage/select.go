package storage

import (
	"fmt"
	"strings"

	"autosig/host"
)

// Select picks the backend for a host session: the mailbox partition of
// the durable store when the host reports durable storage, else a fresh
// memory backend.
func Select(caps host.Capabilities, durable Durable, mailbox string) Backend {
	if caps.DurableStorage && durable != nil {
		return durable.ForMailbox(mailbox)
	}
	return NewMemoryBackend()
}

// OpenDurable opens the configured durable store. The "memory" kind (or
// an empty one) yields nil, which makes Select fall back to memory.
func OpenDurable(kind, path string) (Durable, error) {
	switch strings.ToLower(kind) {
	case "", "memory":
		return nil, nil
	case "bbolt", "bolt":
		db, err := OpenBolt(path)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "pebble":
		db, err := OpenPebble(path)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}
