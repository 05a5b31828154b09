package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"autosig/bridge"
	"autosig/host"
	"autosig/signature"
	"autosig/storage"
	"autosig/transport"
	"autosig/utils"
)

// ErrNoHello is returned when a host sends events before introducing itself
var ErrNoHello = errors.New("expected hello message")

// ComposeHandler binds connected hosts to signature sessions
type ComposeHandler struct {
	session   signature.SessionConfig
	durable   storage.Durable
	remoteURL string
	timeout   time.Duration
	metrics   *signature.Metrics

	// newClient creates the per-connection transport; replaced in tests
	newClient func() transport.Requester
}

// ComposeOptions configures a ComposeHandler
type ComposeOptions struct {
	Session   signature.SessionConfig
	Durable   storage.Durable
	RemoteURL string
	// Timeout bounds a single HTTP request to the signature server
	Timeout time.Duration
	Metrics *signature.Metrics
}

// NewComposeHandler creates a new compose handler
func NewComposeHandler(opts ComposeOptions) *ComposeHandler {
	h := &ComposeHandler{
		session:   opts.Session,
		durable:   opts.Durable,
		remoteURL: opts.RemoteURL,
		timeout:   opts.Timeout,
		metrics:   opts.Metrics,
	}
	h.newClient = func() transport.Requester {
		return transport.NewClient(h.remoteURL, h.timeout)
	}
	return h
}

// Upgrade only lets websocket requests through to HandleWebSocket
func (h *ComposeHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// HandleWebSocket serves one host connection
func (h *ComposeHandler) HandleWebSocket(c *websocket.Conn) {
	defer c.Close()

	if err := h.Serve(context.Background(), c); err != nil {
		utils.Log.Debug("Host connection ended: %v", err)
	}
}

// Serve runs the message loop of a host connection. The first message
// must be a hello; every compose event after it runs concurrently.
func (h *ComposeHandler) Serve(ctx context.Context, conn bridge.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := utils.Log.WithField("conn", uuid.NewString()[:8])
	peer := bridge.NewPeer(conn, log)

	runErr := make(chan error, 1)
	go func() { runErr <- peer.Run(ctx) }()

	hello, ok := <-peer.Events()
	if !ok {
		return <-runErr
	}
	if hello.Type != bridge.TypeHello {
		cancel()
		return ErrNoHello
	}

	session := h.newSession(peer, hello, log)
	log.Info("Host connected: %s on %s", hello.Profile.EmailAddress, hello.Profile.Platform)

	var wg sync.WaitGroup
	for msg := range peer.Events() {
		if msg.Type != bridge.TypeCompose {
			log.Warn("Ignoring %s message after hello", msg.Type)
			continue
		}

		wg.Add(1)
		go func(item string) {
			defer wg.Done()
			h.compose(ctx, peer, session, item, log)
		}(msg.Item)
	}

	cancel()
	wg.Wait()
	log.Info("Host disconnected")
	return <-runErr
}

func (h *ComposeHandler) newSession(peer *bridge.Peer, hello *bridge.Message, log *utils.Logger) *signature.Session {
	if hello.Profile == nil {
		hello.Profile = new(host.Profile)
	}
	if hello.Capabilities == nil {
		hello.Capabilities = new(host.Capabilities)
	}

	mailbox := bridge.NewHost(peer, "")
	return signature.NewSession(signature.SessionOptions{
		Capabilities: *hello.Capabilities,
		Profile:      *hello.Profile,
		Roaming:      mailbox,
		Tokens:       mailbox,
		Durable:      h.durable,
		Client:       h.newClient(),
		Config:       h.session,
		Metrics:      h.metrics,
		Logger:       log,
	})
}

func (h *ComposeHandler) compose(ctx context.Context, peer *bridge.Peer, session *signature.Session, item string, log *utils.Logger) {
	done := &bridge.Message{Type: bridge.TypeCompleted, Item: item}
	if err := session.OnMessageCompose(ctx, bridge.NewHost(peer, item)); err != nil {
		done.Error = err.Error()
	}
	if err := peer.Send(done); err != nil {
		log.Debug("Completing %s failed: %v", item, err)
	}
}
