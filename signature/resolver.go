package signature

import (
	"context"
	"fmt"
	"time"

	"autosig/models"
	"autosig/storage"
	"autosig/utils"
)

// Policy decides whether a valid cache entry is refreshed
type Policy string

const (
	// PolicyAlways refreshes from the remote even when the cache is valid
	PolicyAlways Policy = "always"
	// PolicyStale only refreshes expired or missing entries
	PolicyStale Policy = "stale"
)

// ParsePolicy maps a config value to a Policy. Unknown values are an error.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyAlways:
		return PolicyAlways, nil
	case PolicyStale:
		return PolicyStale, nil
	}
	return "", fmt.Errorf("unknown refresh policy %q", s)
}

// Source tells where a resolved signature came from
type Source string

const (
	SourceRemote Source = "remote"
	SourceCache  Source = "cache"
	SourceNone   Source = "none"
)

// Result is the outcome of one resolution
type Result struct {
	Signature models.Signature
	Source    Source
	// Kind is the compose kind that produced the signature, New after a
	// reply fallback
	Kind models.ComposeKind
}

// SignatureFetcher downloads the default signature for a compose kind
type SignatureFetcher interface {
	Fetch(ctx context.Context, kind models.ComposeKind, cred models.Credential) (models.Signature, error)
}

// CredentialSource produces the credential for a fetch
type CredentialSource interface {
	Resolve(ctx context.Context) (models.Credential, error)
}

// CacheInvalidator purges the cache when asked to remotely
type CacheInvalidator interface {
	CheckAndClear(ctx context.Context) (bool, error)
}

// ResolverOptions wires a Resolver
type ResolverOptions struct {
	Store       *storage.Store
	Invalidator CacheInvalidator
	Credentials CredentialSource
	Fetcher     SignatureFetcher
	Policy      Policy
	// Timeout bounds credential resolution and fetch together. Zero
	// means no timeout.
	Timeout time.Duration
	// RequireCredential makes a credential failure a fetch failure
	// instead of fetching anonymously
	RequireCredential bool
	Metrics           *Metrics
	Logger            *utils.Logger
}

// Resolver decides which signature to insert for a compose event
type Resolver struct {
	store       *storage.Store
	invalidator CacheInvalidator
	credentials CredentialSource
	fetcher     SignatureFetcher
	policy      Policy
	timeout     time.Duration
	requireCred bool
	metrics     *Metrics
	log         *utils.Logger
}

// NewResolver creates a Resolver
func NewResolver(opts ResolverOptions) *Resolver {
	r := &Resolver{
		store:       opts.Store,
		invalidator: opts.Invalidator,
		credentials: opts.Credentials,
		fetcher:     opts.Fetcher,
		policy:      opts.Policy,
		timeout:     opts.Timeout,
		requireCred: opts.RequireCredential,
		metrics:     opts.Metrics,
		log:         opts.Logger,
	}
	if r.policy == "" {
		r.policy = PolicyAlways
	}
	if r.log == nil {
		r.log = utils.Nop()
	}
	return r
}

type state int

const (
	stateCheckInvalidation state = iota
	stateReadCache
	stateResolveCredential
	stateFetch
	statePersist
	stateDone
)

var stateNames = [...]string{"CheckInvalidation", "ReadCache", "ResolveCredential", "Fetch", "Persist", "Done"}

func (s state) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// resolution is the working set of one Resolve call
type resolution struct {
	kind   models.ComposeKind
	key    string
	purged bool

	cached        models.Signature
	cachedExpired bool

	remote context.Context
	cancel context.CancelFunc
	cred   models.Credential

	fetched models.Signature
	retried bool

	result Result
}

func (res *resolution) useCached() bool {
	return res.cached.IsPresent() && !res.purged
}

// fallback ends the resolution with the cached candidate if usable
func (res *resolution) fallback() state {
	if res.useCached() {
		res.result = Result{Signature: res.cached, Source: SourceCache, Kind: res.kind}
	} else {
		res.result = Result{Signature: models.Absent(), Source: SourceNone, Kind: res.kind}
	}
	return stateDone
}

func (res *resolution) release() {
	if res.cancel != nil {
		res.cancel()
		res.cancel = nil
	}
	res.remote = nil
}

type transition func(r *Resolver, ctx context.Context, res *resolution) state

var transitions = map[state]transition{
	stateCheckInvalidation: (*Resolver).checkInvalidation,
	stateReadCache:         (*Resolver).readCache,
	stateResolveCredential: (*Resolver).resolveCredential,
	stateFetch:             (*Resolver).fetch,
	statePersist:           (*Resolver).persist,
}

// Resolve runs the resolution for kind. The result is never an error:
// every failure degrades to the cache or to an absent signature.
func (r *Resolver) Resolve(ctx context.Context, kind models.ComposeKind) Result {
	res := &resolution{kind: kind.Normalize()}
	res.key = StorageKey(res.kind)
	defer res.release()

	for st := stateCheckInvalidation; st != stateDone; {
		if err := ctx.Err(); err != nil {
			r.log.Warn("Resolution cancelled in %s: %v", st, err)
			res.fallback()
			break
		}
		next := transitions[st](r, ctx, res)
		r.log.Debug("Resolution %s -> %s (%s)", st, next, res.kind)
		st = next
	}

	r.metrics.resolved(res.result)
	return res.result
}

func (r *Resolver) checkInvalidation(ctx context.Context, res *resolution) state {
	if r.invalidator == nil {
		return stateReadCache
	}
	purged, err := r.invalidator.CheckAndClear(ctx)
	if err != nil {
		// the cache cannot be trusted until the flag is cleared
		r.log.Warn("Invalidation check failed: %v", err)
		purged = true
	}
	if purged {
		r.metrics.invalidated()
	}
	res.purged = purged
	return stateReadCache
}

func (r *Resolver) readCache(ctx context.Context, res *resolution) state {
	res.cached, res.cachedExpired = models.Absent(), false

	entry, err := r.store.Get(ctx, res.key)
	switch {
	case err != nil:
		r.log.Warn("Reading cached signature failed: %v", err)
	case entry != nil:
		sig := models.ParseSignature([]byte(entry.Raw))
		if !sig.IsPresent() {
			r.log.Info("Removing invalid cached signature %s", res.key)
			if err := r.store.Remove(ctx, res.key); err != nil {
				r.log.Warn("Removing invalid signature failed: %v", err)
			}
			break
		}
		res.cached, res.cachedExpired = sig, entry.Expired
	}

	if r.policy == PolicyStale && res.useCached() && !res.cachedExpired {
		r.log.Debug("Using cached signature %s without refresh", res.key)
		res.result = Result{Signature: res.cached, Source: SourceCache, Kind: res.kind}
		return stateDone
	}
	return stateResolveCredential
}

func (r *Resolver) resolveCredential(ctx context.Context, res *resolution) state {
	res.release()
	if r.timeout > 0 {
		res.remote, res.cancel = context.WithTimeout(ctx, r.timeout)
	} else {
		res.remote, res.cancel = context.WithCancel(ctx)
	}

	res.cred = ""
	if r.credentials == nil {
		return stateFetch
	}
	cred, err := r.credentials.Resolve(res.remote)
	if err != nil {
		if r.requireCred {
			r.log.Warn("No credential for signature fetch: %v", err)
			return res.fallback()
		}
		r.log.Info("No credential, fetching anonymously")
		return stateFetch
	}
	res.cred = cred
	return stateFetch
}

func (r *Resolver) fetch(ctx context.Context, res *resolution) state {
	start := time.Now()
	sig, err := r.fetcher.Fetch(res.remote, res.kind, res.cred)
	if err == nil {
		// a fetch that finished after the deadline still counts as timed out
		err = res.remote.Err()
	}
	r.metrics.fetched(start, err)
	res.release()

	if err != nil {
		if res.useCached() {
			r.log.Warn("Fetching signature failed, using cached copy: %v", err)
		} else {
			r.log.Warn("Fetching signature failed: %v", err)
		}
		return res.fallback()
	}

	if sig.IsPresent() {
		res.fetched = sig
		return statePersist
	}

	if res.kind == models.ComposeReply && !res.retried {
		r.log.Info("No reply signature, falling back to new message signature")
		res.retried = true
		res.kind = models.ComposeNew
		res.key = StorageKey(res.kind)
		return stateReadCache
	}

	r.log.Info("No default signature for %s", res.kind)
	res.result = Result{Signature: models.Absent(), Source: SourceNone, Kind: res.kind}
	return stateDone
}

func (r *Resolver) persist(ctx context.Context, res *resolution) state {
	err := r.store.Set(ctx, res.key, res.fetched, storage.WithTTL(CacheTTL), storage.WithSoftExpire())
	if err != nil {
		r.log.Warn("Caching signature failed: %v", err)
	}
	res.result = Result{Signature: res.fetched, Source: SourceRemote, Kind: res.kind}
	return stateDone
}
