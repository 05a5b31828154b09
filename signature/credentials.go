package signature

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"autosig/host"
	"autosig/models"
	"autosig/storage"
	"autosig/transport"
	"autosig/utils"
)

// ErrNoCredential is returned when every credential source failed
var ErrNoCredential = errors.New("no credential available")

// Default server paths of the credential chain
const (
	DefaultStatusPath   = "/Status"
	DefaultExchangePath = "/MicrosoftOAuth/SigninOnBehalfOf"
)

// CredentialResolver produces the credential for a signature fetch,
// trying the least intrusive source first:
//
//  1. an existing server session (only where delegated tokens work),
//  2. a delegated token exchanged for a server session,
//  3. the action credential stored in roaming settings.
//
// Steps 1 and 2 succeed with the empty credential.
type CredentialResolver struct {
	client       transport.Requester
	tokens       host.TokenProvider
	settings     *storage.Settings
	delegated    bool
	statusPath   string
	exchangePath string
	log          *utils.Logger
	now          func() time.Time
}

// CredentialOptions configures the resolver
type CredentialOptions struct {
	Client       transport.Requester
	Tokens       host.TokenProvider
	Settings     *storage.Settings
	Capabilities host.Capabilities
	StatusPath   string
	ExchangePath string
	Logger       *utils.Logger
}

// NewCredentialResolver creates a resolver
func NewCredentialResolver(opts CredentialOptions) *CredentialResolver {
	r := &CredentialResolver{
		client:       opts.Client,
		tokens:       opts.Tokens,
		settings:     opts.Settings,
		delegated:    opts.Capabilities.DelegatedToken && opts.Tokens != nil,
		statusPath:   opts.StatusPath,
		exchangePath: opts.ExchangePath,
		log:          opts.Logger,
		now:          time.Now,
	}
	if r.statusPath == "" {
		r.statusPath = DefaultStatusPath
	}
	if r.exchangePath == "" {
		r.exchangePath = DefaultExchangePath
	}
	if r.log == nil {
		r.log = utils.Nop()
	}
	return r
}

// Resolve walks the chain. It returns ErrNoCredential (wrapped in a
// credential AppError) when all sources fail.
func (r *CredentialResolver) Resolve(ctx context.Context) (models.Credential, error) {
	if r.delegated {
		if r.hasSession(ctx) {
			r.log.Debug("Server session already authenticated")
			return "", nil
		}
		err := r.exchange(ctx)
		if err == nil {
			r.log.Debug("Signed in with delegated token")
			return "", nil
		}
		r.log.Debug("Delegated sign-in failed: %v", err)
	}

	token, err := r.settings.GetString(ctx, ActionCredentialKey)
	if err != nil {
		r.log.Warn("Reading action credential failed: %v", err)
	}
	if token != "" {
		return models.Credential(token), nil
	}

	return "", utils.CredentialError("resolve credential", ErrNoCredential)
}

type sessionStatus struct {
	IsAuthenticated bool `json:"isAuthenticated"`
}

func (r *CredentialResolver) hasSession(ctx context.Context) bool {
	resp, err := r.client.Do(ctx, &transport.Request{URL: r.statusPath})
	if err != nil {
		r.log.Debug("Status check failed: %v", err)
		return false
	}
	if !resp.OK() {
		return false
	}
	var status sessionStatus
	if err := resp.JSON(&status); err != nil {
		return false
	}
	return status.IsAuthenticated
}

func (r *CredentialResolver) exchange(ctx context.Context) error {
	token, err := r.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return errors.New("empty access token")
	}
	if r.tokenExpired(token) {
		return errors.New("access token expired")
	}

	resp, err := r.client.Do(ctx, &transport.Request{URL: r.exchangePath, Bearer: token})
	if err != nil {
		return err
	}
	if err := transport.Expect(resp, r.exchangePath); err != nil {
		return err
	}

	var ok interface{}
	if err := resp.JSON(&ok); err != nil {
		return err
	}
	if !storage.Truthy(ok) {
		return errors.New("sign-in rejected")
	}
	return nil
}

// tokenExpired inspects the exp claim without verifying the signature;
// the server verifies it. Tokens that are not JWTs are passed through.
func (r *CredentialResolver) tokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(r.now())
}
