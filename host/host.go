// Package host describes the mail-client capability surface the
// signature pipeline runs against. Every call may block on the host and
// reports failure through its error.
package host

import (
	"context"

	"autosig/models"
)

// Capabilities are probed once when a host connects
type Capabilities struct {
	// SetSignature is the dedicated, size-limited signature API
	SetSignature bool `json:"setSignature"`
	// ComposeKind is the compose type query
	ComposeKind bool `json:"composeType"`
	// Base64Attachments allows attaching inline images from bytes
	Base64Attachments bool `json:"addFileAttachmentFromBase64"`
	// DurableStorage is durable cross-device storage
	DurableStorage bool `json:"storage"`
	// DelegatedToken is set on platforms where token acquisition works
	DelegatedToken bool `json:"delegatedToken"`
}

// Profile identifies the mailbox owner and display settings
type Profile struct {
	EmailAddress string `json:"emailAddress"`
	Language     string `json:"language"`
	Platform     string `json:"platform"`
}

// Attachment is an attachment already present on the item
type Attachment struct {
	Name string `json:"name"`
}

// AttachmentOptions are passed along with an added attachment
type AttachmentOptions struct {
	Inline bool `json:"isInline"`
}

// Item is the message being composed
type Item interface {
	ComposeKind(ctx context.Context) (models.ComposeKind, error)
	IsClientSignatureEnabled(ctx context.Context) (bool, error)
	DisableClientSignature(ctx context.Context) error
	SetSignature(ctx context.Context, html string) error
	SetSelectedContent(ctx context.Context, html string) error
	AddAttachment(ctx context.Context, kind models.AttachmentType, data, name string, opts AttachmentOptions) error
	Attachments(ctx context.Context) ([]Attachment, error)
}

// Notifier manages the notification bar of an item
type Notifier interface {
	ReplaceNotification(ctx context.Context, key string, details models.NotificationDetails) error
	RemoveNotification(ctx context.Context, key string) error
}

// Compose is one compose window: the item and its notification bar
type Compose interface {
	Item
	Notifier
}

// RoamingSettings is the per-mailbox settings store of the host. Values
// are strings; Save persists pending changes.
type RoamingSettings interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	RemoveSetting(ctx context.Context, key string) error
	SaveSettings(ctx context.Context) error
}

// TokenProvider acquires a platform-issued access token
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}
