package bridge

import (
	"context"

	"autosig/host"
	"autosig/models"
	"autosig/utils"
)

// Host method names understood by the host shim
const (
	MethodGetComposeType           = "getComposeType"
	MethodIsClientSignatureEnabled = "isClientSignatureEnabled"
	MethodDisableClientSignature   = "disableClientSignature"
	MethodSetSignature             = "setSignature"
	MethodSetSelectedData          = "setSelectedData"
	MethodAddAttachment            = "addAttachment"
	MethodGetAttachments           = "getAttachments"
	MethodReplaceNotification      = "replaceNotification"
	MethodRemoveNotification       = "removeNotification"
	MethodGetRoamingSetting        = "getRoamingSetting"
	MethodSetRoamingSetting        = "setRoamingSetting"
	MethodRemoveRoamingSetting     = "removeRoamingSetting"
	MethodSaveRoamingSettings      = "saveRoamingSettings"
	MethodGetAccessToken           = "getAccessToken"
)

// Host is the host surface of one item reached through a peer. With an
// empty item it serves the mailbox-wide calls (settings and tokens).
type Host struct {
	peer *Peer
	item string
}

// NewHost returns the host surface for item
func NewHost(peer *Peer, item string) *Host {
	return &Host{peer: peer, item: item}
}

var (
	_ host.Compose         = (*Host)(nil)
	_ host.RoamingSettings = (*Host)(nil)
	_ host.TokenProvider   = (*Host)(nil)
)

func (h *Host) call(ctx context.Context, method string, params, out interface{}) error {
	if err := h.peer.Call(ctx, h.item, method, params, out); err != nil {
		return utils.HostError(method, err).WithContext("item", h.item)
	}
	return nil
}

type htmlParams struct {
	HTML string `json:"html"`
}

type keyParams struct {
	Key string `json:"key"`
}

type settingParams struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type attachmentParams struct {
	Type    models.AttachmentType  `json:"type"`
	Data    string                 `json:"data"`
	Name    string                 `json:"name"`
	Options host.AttachmentOptions `json:"options"`
}

type notificationParams struct {
	Key     string                     `json:"key"`
	Details models.NotificationDetails `json:"details"`
}

func (h *Host) ComposeKind(ctx context.Context) (models.ComposeKind, error) {
	var name string
	if err := h.call(ctx, MethodGetComposeType, nil, &name); err != nil {
		return models.ComposeNew, err
	}
	return models.ParseComposeKind(name), nil
}

func (h *Host) IsClientSignatureEnabled(ctx context.Context) (bool, error) {
	var enabled bool
	err := h.call(ctx, MethodIsClientSignatureEnabled, nil, &enabled)
	return enabled, err
}

func (h *Host) DisableClientSignature(ctx context.Context) error {
	return h.call(ctx, MethodDisableClientSignature, nil, nil)
}

func (h *Host) SetSignature(ctx context.Context, html string) error {
	return h.call(ctx, MethodSetSignature, htmlParams{HTML: html}, nil)
}

func (h *Host) SetSelectedContent(ctx context.Context, html string) error {
	return h.call(ctx, MethodSetSelectedData, htmlParams{HTML: html}, nil)
}

func (h *Host) AddAttachment(ctx context.Context, kind models.AttachmentType, data, name string, opts host.AttachmentOptions) error {
	return h.call(ctx, MethodAddAttachment, attachmentParams{Type: kind, Data: data, Name: name, Options: opts}, nil)
}

func (h *Host) Attachments(ctx context.Context) ([]host.Attachment, error) {
	var list []host.Attachment
	err := h.call(ctx, MethodGetAttachments, nil, &list)
	return list, err
}

func (h *Host) ReplaceNotification(ctx context.Context, key string, details models.NotificationDetails) error {
	return h.call(ctx, MethodReplaceNotification, notificationParams{Key: key, Details: details}, nil)
}

func (h *Host) RemoveNotification(ctx context.Context, key string) error {
	return h.call(ctx, MethodRemoveNotification, keyParams{Key: key}, nil)
}

// GetSetting treats a null result as an unset setting
func (h *Host) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value *string
	if err := h.call(ctx, MethodGetRoamingSetting, keyParams{Key: key}, &value); err != nil {
		return "", false, err
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

func (h *Host) SetSetting(ctx context.Context, key, value string) error {
	return h.call(ctx, MethodSetRoamingSetting, settingParams{Key: key, Value: value}, nil)
}

func (h *Host) RemoveSetting(ctx context.Context, key string) error {
	return h.call(ctx, MethodRemoveRoamingSetting, keyParams{Key: key}, nil)
}

func (h *Host) SaveSettings(ctx context.Context) error {
	return h.call(ctx, MethodSaveRoamingSettings, nil, nil)
}

func (h *Host) AccessToken(ctx context.Context) (string, error) {
	var token string
	err := h.call(ctx, MethodGetAccessToken, nil, &token)
	return token, err
}
