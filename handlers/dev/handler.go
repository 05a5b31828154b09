package dev

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"autosig/models"
	"autosig/utils"
)

const mailboxKey = "mailbox"

// Options configures the development server
type Options struct {
	Source Source
	// BaseURL is the public address images are linked under
	BaseURL string
	// JWTSecret verifies delegated HS256 tokens; sign-in is refused when empty
	JWTSecret string
	// Credentials maps user names to bcrypt hashes of their action tokens
	Credentials map[string]string
	// Store keeps signed-in sessions; an in-memory store is used when nil
	Store  *session.Store
	Logger *utils.Logger
}

// Handler serves the signature endpoints
type Handler struct {
	source      Source
	baseURL     string
	secret      []byte
	credentials map[string]string
	store       *session.Store
	log         *utils.Logger
}

// NewHandler creates a new development handler
func NewHandler(opts Options) *Handler {
	store := opts.Store
	if store == nil {
		store = session.New(session.Config{
			Expiration:     24 * time.Hour,
			CookieHTTPOnly: true,
		})
	}
	log := opts.Logger
	if log == nil {
		log = utils.Log
	}

	credentials := make(map[string]string, len(opts.Credentials))
	for user, hash := range opts.Credentials {
		credentials[strings.ToLower(user)] = hash
	}

	return &Handler{
		source:      opts.Source,
		baseURL:     opts.BaseURL,
		secret:      []byte(opts.JWTSecret),
		credentials: credentials,
		store:       store,
		log:         log.WithField("component", "devserver"),
	}
}

// Register mounts the routes on router
func (h *Handler) Register(router fiber.Router) {
	router.Get("/Status", h.Status)
	router.Get("/MicrosoftOAuth/SigninOnBehalfOf", h.SignIn)
	router.Get("/addin/outlook/default", h.DefaultSignature)
	router.Get(ImagePath+"/:mailbox/:file", h.Image)
}

// Status reports whether the caller has a signed-in session
func (h *Handler) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"isAuthenticated": h.sessionMailbox(c) != ""})
}

// SignIn exchanges a delegated bearer token for a session
func (h *Handler) SignIn(c *fiber.Ctx) error {
	raw, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if !ok || raw == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(false)
	}

	mailbox, err := h.verifyToken(raw)
	if err != nil {
		h.log.Debug("Rejected delegated token: %v", err)
		return c.Status(fiber.StatusUnauthorized).JSON(false)
	}

	sess, err := h.store.Get(c)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Session error")
	}
	sess.Set(mailboxKey, mailbox)
	if err := sess.Save(); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to save session")
	}

	h.log.Info("Signed in %s", mailbox)
	return c.JSON(true)
}

func (h *Handler) verifyToken(raw string) (string, error) {
	if len(h.secret) == 0 {
		return "", errors.New("delegated sign-in disabled")
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return h.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}

	for _, claim := range []string{"preferred_username", "email"} {
		if v, ok := claims[claim].(string); ok && v != "" {
			return strings.ToLower(v), nil
		}
	}
	return "", errors.New("token names no user")
}

// DefaultSignature returns the signature of a mailbox for a compose
// kind, or null when it has none
func (h *Handler) DefaultSignature(c *fiber.Ctx) error {
	mailbox := c.Query("mailbox")
	user := h.sessionMailbox(c)
	if user == "" {
		user = h.checkCredential(c.Query("username"), c.Query("actionCredentialToken"))
	}
	if user == "" {
		return fiber.ErrUnauthorized
	}
	if mailbox == "" {
		mailbox = user
	}
	if !strings.EqualFold(mailbox, user) {
		h.log.Warn("User %s requested the signature of %s", user, mailbox)
		return fiber.ErrForbidden
	}
	mailbox = user

	at := models.AttachmentType(c.QueryInt("attachmentType", int(models.AttachmentCid)))
	if at < models.AttachmentCid || at > models.AttachmentEmbeddedURL {
		return fiber.NewError(fiber.StatusBadRequest, "invalid attachmentType")
	}
	kind := models.ComposeKind(c.QueryInt("composeType", int(models.ComposeNew)))

	tpl, err := h.source.Template(c.UserContext(), mailbox, kind)
	if errors.Is(err, ErrInvalidMailbox) {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err != nil {
		h.log.Error("Loading signature for %s failed: %v", mailbox, err)
		return fiber.ErrInternalServerError
	}
	if tpl == nil {
		return c.JSON(models.Absent())
	}

	sig, err := Render(tpl, at, h.baseURL, mailbox)
	if err != nil {
		h.log.Error("Rendering signature for %s failed: %v", mailbox, err)
		return fiber.ErrInternalServerError
	}
	h.log.Debug("Serving %s signature for %s as %s", kind, mailbox, at)
	return c.JSON(sig)
}

// Image serves a signature image by file name
func (h *Handler) Image(c *fiber.Ctx) error {
	mailbox, file := c.Params("mailbox"), c.Params("file")

	for _, kind := range []models.ComposeKind{models.ComposeNew, models.ComposeReply} {
		tpl, err := h.source.Template(c.UserContext(), mailbox, kind)
		if errors.Is(err, ErrInvalidMailbox) {
			return fiber.ErrNotFound
		}
		if err != nil {
			h.log.Error("Loading images for %s failed: %v", mailbox, err)
			return fiber.ErrInternalServerError
		}
		if tpl == nil {
			continue
		}
		if data, ok := tpl.Images[file]; ok {
			c.Set(fiber.HeaderContentType, contentType(file))
			c.Set(fiber.HeaderCacheControl, "public, max-age="+strconv.Itoa(int(time.Hour/time.Second)))
			return c.Send(data)
		}
	}
	return fiber.ErrNotFound
}

func (h *Handler) sessionMailbox(c *fiber.Ctx) string {
	sess, err := h.store.Get(c)
	if err != nil {
		return ""
	}
	mailbox, _ := sess.Get(mailboxKey).(string)
	return mailbox
}

// checkCredential returns the user an action token belongs to, or ""
func (h *Handler) checkCredential(username, token string) string {
	if username == "" || token == "" {
		return ""
	}
	hash, ok := h.credentials[strings.ToLower(username)]
	if !ok {
		return ""
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
		return ""
	}
	return strings.ToLower(username)
}
