package storage

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"autosig/utils"
)

// ExpiresSuffix names the companion key holding an entry's schedule
const ExpiresSuffix = "_Expires"

// ExpirySchedule is stored as JSON under key + ExpiresSuffix. Times are
// unix milliseconds.
type ExpirySchedule struct {
	Created    int64 `json:"created"`
	Expires    int64 `json:"expires"`
	SoftExpire bool  `json:"softExpire,omitempty"`
}

// ExpiredAt reports whether the schedule has run out at now
func (s ExpirySchedule) ExpiredAt(now time.Time) bool {
	return now.UnixMilli() > s.Expires
}

// ExpiresAt returns the expiry as a time
func (s ExpirySchedule) ExpiresAt() time.Time {
	return time.UnixMilli(s.Expires)
}

// Entry is a value read from the store
type Entry struct {
	Key      string
	Raw      string
	Schedule *ExpirySchedule
	// Expired is set for soft-expired entries that were still returned
	Expired bool
}

// Value returns the decoded value, or the raw string if it is not JSON
func (e *Entry) Value() interface{} {
	return Decode(e.Raw)
}

// Decode unmarshals the raw value into dst
func (e *Entry) Decode(dst interface{}) error {
	return json.Unmarshal([]byte(e.Raw), dst)
}

// SetOption configures Set
type SetOption func(*setOptions)

type setOptions struct {
	ttl  time.Duration
	soft bool
}

// WithTTL attaches an expiry schedule. Negative durations count as
// their absolute value.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) {
		if ttl < 0 {
			ttl = -ttl
		}
		o.ttl = ttl
	}
}

// WithSoftExpire keeps the entry readable after it expires
func WithSoftExpire() SetOption {
	return func(o *setOptions) { o.soft = true }
}

// Store is the key-value store the pipeline caches signatures in. It
// pairs every value with an optional schedule and never leaves one of
// the pair behind on removal.
type Store struct {
	backend Backend
	log     *utils.Logger
	now     func() time.Time
}

// NewStore wraps a backend
func NewStore(backend Backend, log *utils.Logger) *Store {
	if log == nil {
		log = utils.Nop()
	}
	return &Store{
		backend: backend,
		log:     log.WithField("storage", backend.Name()),
		now:     time.Now,
	}
}

// Backend returns the backend name
func (s *Store) Backend() string {
	return s.backend.Name()
}

// Schedule returns the schedule of key, or nil if it has none. A
// malformed schedule counts as none.
func (s *Store) Schedule(ctx context.Context, key string) (*ExpirySchedule, error) {
	raw, ok, err := s.backend.GetItem(ctx, key+ExpiresSuffix)
	if err != nil {
		return nil, utils.StorageError("read schedule", err).WithContext("key", key)
	}
	if !ok {
		return nil, nil
	}

	var sched ExpirySchedule
	if err := json.Unmarshal([]byte(raw), &sched); err != nil || sched.Expires == 0 {
		s.log.Warn("Ignoring malformed schedule for %s", key)
		return nil, nil
	}
	return &sched, nil
}

// Get returns the entry for key or nil. Hard-expired entries are purged
// and reported missing; soft-expired entries are returned with Expired
// set.
func (s *Store) Get(ctx context.Context, key string) (*Entry, error) {
	sched, err := s.Schedule(ctx, key)
	if err != nil {
		return nil, err
	}

	expired := sched != nil && sched.ExpiredAt(s.now())
	if expired && !sched.SoftExpire {
		s.log.Debug("Item %s expired on %s", key, sched.ExpiresAt().Format(time.RFC3339))
		if err := s.Remove(ctx, key); err != nil {
			return nil, err
		}
		return nil, nil
	}

	raw, ok, err := s.backend.GetItem(ctx, key)
	if err != nil {
		return nil, utils.StorageError("read item", err).WithContext("key", key)
	}
	if !ok {
		return nil, nil
	}

	s.log.Debug("Retrieved item %s", key)
	return &Entry{Key: key, Raw: raw, Schedule: sched, Expired: expired}, nil
}

// Set stores value under key. Without WithTTL any previous schedule is
// dropped so the new value never inherits an old expiry.
func (s *Store) Set(ctx context.Context, key string, value interface{}, opts ...SetOption) error {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := s.backend.SetItem(ctx, key, Encode(value)); err != nil {
		return utils.StorageError("write item", err).WithContext("key", key)
	}

	if o.ttl == 0 {
		if err := s.backend.RemoveItems(ctx, key+ExpiresSuffix); err != nil {
			return utils.StorageError("drop schedule", err).WithContext("key", key)
		}
		s.log.Debug("Stored item %s", key)
		return nil
	}

	now := s.now()
	sched := ExpirySchedule{
		Created:    now.UnixMilli(),
		Expires:    now.Add(o.ttl).UnixMilli(),
		SoftExpire: o.soft,
	}
	if err := s.backend.SetItem(ctx, key+ExpiresSuffix, Encode(sched)); err != nil {
		return utils.StorageError("write schedule", err).WithContext("key", key)
	}

	s.log.Debug("Stored item %s (expires on %s)", key, sched.ExpiresAt().Format(time.RFC3339))
	return nil
}

// Remove deletes key and its schedule together
func (s *Store) Remove(ctx context.Context, key string) error {
	return s.RemoveMany(ctx, []string{key})
}

// RemoveMany deletes every key and its schedule in one backend call
func (s *Store) RemoveMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	all := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		all = append(all, k, k+ExpiresSuffix)
	}
	if err := s.backend.RemoveItems(ctx, all...); err != nil {
		return utils.StorageError("remove items", err).WithContext("keys", keys)
	}
	s.log.Debug("Removed items %s", strings.Join(keys, ", "))
	return nil
}

// Keys lists value keys, skipping schedule companions
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	all, err := s.backend.Keys(ctx)
	if err != nil {
		return nil, utils.StorageError("list keys", err)
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if !strings.HasSuffix(k, ExpiresSuffix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Sweep purges every hard-expired pair and returns how many were removed
func (s *Store) Sweep(ctx context.Context) (int, error) {
	all, err := s.backend.Keys(ctx)
	if err != nil {
		return 0, utils.StorageError("list keys", err)
	}

	now := s.now()
	var expired []string
	for _, k := range all {
		if !strings.HasSuffix(k, ExpiresSuffix) {
			continue
		}
		key := strings.TrimSuffix(k, ExpiresSuffix)
		sched, err := s.Schedule(ctx, key)
		if err != nil {
			return 0, err
		}
		if sched != nil && !sched.SoftExpire && sched.ExpiredAt(now) {
			expired = append(expired, key)
		}
	}

	if err := s.RemoveMany(ctx, expired); err != nil {
		return 0, err
	}
	return len(expired), nil
}
