package signature

import (
	"context"
	"time"

	"autosig/host"
	"autosig/storage"
	"autosig/transport"
	"autosig/utils"
)

// SessionConfig holds the pipeline settings shared by all sessions
type SessionConfig struct {
	SignaturePath string
	StatusPath    string
	ExchangePath  string
	// BaseURL resolves relative image URLs
	BaseURL           string
	Policy            Policy
	Timeout           time.Duration
	RequireCredential bool
	Sanitize          bool
	MaxImageWidth     uint
	Icon              string
	CommandID         string
}

// SessionOptions are the collaborators of one connected host
type SessionOptions struct {
	Capabilities host.Capabilities
	Profile      host.Profile
	Roaming      host.RoamingSettings
	Tokens       host.TokenProvider
	// Durable may be nil, then signatures are cached in memory
	Durable storage.Durable
	Client  transport.Requester
	Config  SessionConfig
	Metrics *Metrics
	Logger  *utils.Logger
}

// Session is the state kept for one connected host: its cache, its
// credential chain and its notification slots. Compose events of the
// host share it.
type Session struct {
	caps     host.Capabilities
	profile  host.Profile
	cfg      SessionConfig
	store    *storage.Store
	resolver *Resolver
	ring     *SlotRing
	tr       *utils.Translator
	metrics  *Metrics
	log      *utils.Logger
}

// NewSession selects the storage backend and builds the resolver
func NewSession(opts SessionOptions) *Session {
	log := opts.Logger
	if log == nil {
		log = utils.Nop()
	}
	log = log.WithField("mailbox", opts.Profile.EmailAddress)

	backend := storage.Select(opts.Capabilities, opts.Durable, opts.Profile.EmailAddress)
	store := storage.NewStore(backend, log)
	settings := storage.NewSettings(opts.Roaming, log)

	creds := NewCredentialResolver(CredentialOptions{
		Client:       opts.Client,
		Tokens:       opts.Tokens,
		Settings:     settings,
		Capabilities: opts.Capabilities,
		StatusPath:   opts.Config.StatusPath,
		ExchangePath: opts.Config.ExchangePath,
		Logger:       log,
	})
	fetcher := NewFetcher(opts.Client, opts.Config.SignaturePath, opts.Profile.EmailAddress, opts.Capabilities.Base64Attachments)

	resolver := NewResolver(ResolverOptions{
		Store:             store,
		Invalidator:       NewInvalidator(settings, store, log),
		Credentials:       creds,
		Fetcher:           fetcher,
		Policy:            opts.Config.Policy,
		Timeout:           opts.Config.Timeout,
		RequireCredential: opts.Config.RequireCredential,
		Metrics:           opts.Metrics,
		Logger:            log,
	})

	log.Debug("Session uses %s storage", store.Backend())
	return &Session{
		caps:     opts.Capabilities,
		profile:  opts.Profile,
		cfg:      opts.Config,
		store:    store,
		resolver: resolver,
		ring:     NewSlotRing(SlotCount),
		tr:       utils.NewTranslator(opts.Profile.Language),
		metrics:  opts.Metrics,
		log:      log,
	}
}

// Store returns the session's signature cache
func (s *Session) Store() *storage.Store {
	return s.store
}

// Resolver returns the session's resolver
func (s *Session) Resolver() *Resolver {
	return s.resolver
}

// Notifications returns the notification bar of item, sharing the
// session's slot ring
func (s *Session) Notifications(notifier host.Notifier) *Notifications {
	return NewNotifications(s.ring, notifier, s.tr, NotificationsOptions{
		Icon:      s.cfg.Icon,
		CommandID: s.cfg.CommandID,
		Logger:    s.log,
	})
}

// OnMessageCompose runs the pipeline for a compose item of this host
func (s *Session) OnMessageCompose(ctx context.Context, item host.Compose) error {
	notes := s.Notifications(item)
	dispatcher := NewDispatcher(item, notes, DispatcherOptions{
		Capabilities:  s.caps,
		BaseURL:       s.cfg.BaseURL,
		Sanitize:      s.cfg.Sanitize,
		MaxImageWidth: s.cfg.MaxImageWidth,
		Metrics:       s.metrics,
		Logger:        s.log,
	})
	return NewPipeline(item, s.caps, s.resolver, dispatcher, notes, s.log).OnMessageCompose(ctx)
}
