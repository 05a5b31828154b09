// Package signature resolves, caches and inserts the default e-mail
// signature for a compose event.
package signature

import (
	"time"

	"autosig/models"
)

// Storage and roaming setting keys
const (
	NewSignatureKey     = "eformity.signatures.new"
	ReplySignatureKey   = "eformity.signatures.reply"
	ClearStorageFlag    = "eformity.signatures.clearStorage"
	ActionCredentialKey = "actionCredentialToken"
)

// CacheTTL is how long a fetched signature is trusted
const CacheTTL = 24 * time.Hour

// StorageKey returns the cache key for a compose kind. Forward shares
// the new-message signature.
func StorageKey(kind models.ComposeKind) string {
	if kind.Normalize() == models.ComposeReply {
		return ReplySignatureKey
	}
	return NewSignatureKey
}
