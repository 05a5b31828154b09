package signature

import (
	"context"
	"errors"
	"sync"

	"autosig/host"
	"autosig/models"
	"autosig/transport"
)

var errBoom = errors.New("boom")

type addedAttachment struct {
	Kind models.AttachmentType
	Data string
	Name string
	Opts host.AttachmentOptions
}

// fakeItem records every host call of a compose window
type fakeItem struct {
	mu sync.Mutex

	kind    models.ComposeKind
	kindErr error

	clientSignature bool
	disabled        bool

	signature    string
	selected     string
	setErr       error
	contentCalls int

	attachments []host.Attachment
	added       []addedAttachment
	attachErr   error

	shown     map[string]models.NotificationDetails
	order     []string
	removed   []string
	notifyErr error
}

func newFakeItem() *fakeItem {
	return &fakeItem{shown: make(map[string]models.NotificationDetails)}
}

func (f *fakeItem) ComposeKind(ctx context.Context) (models.ComposeKind, error) {
	return f.kind, f.kindErr
}

func (f *fakeItem) IsClientSignatureEnabled(ctx context.Context) (bool, error) {
	return f.clientSignature, nil
}

func (f *fakeItem) DisableClientSignature(ctx context.Context) error {
	f.clientSignature = false
	f.disabled = true
	return nil
}

func (f *fakeItem) SetSignature(ctx context.Context, html string) error {
	f.contentCalls++
	if f.setErr != nil {
		return f.setErr
	}
	f.signature = html
	return nil
}

func (f *fakeItem) SetSelectedContent(ctx context.Context, html string) error {
	f.contentCalls++
	if f.setErr != nil {
		return f.setErr
	}
	f.selected = html
	return nil
}

func (f *fakeItem) AddAttachment(ctx context.Context, kind models.AttachmentType, data, name string, opts host.AttachmentOptions) error {
	f.added = append(f.added, addedAttachment{Kind: kind, Data: data, Name: name, Opts: opts})
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attachments = append(f.attachments, host.Attachment{Name: name})
	return nil
}

func (f *fakeItem) Attachments(ctx context.Context) ([]host.Attachment, error) {
	return f.attachments, nil
}

func (f *fakeItem) ReplaceNotification(ctx context.Context, key string, details models.NotificationDetails) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, key)
	if f.notifyErr != nil {
		return f.notifyErr
	}
	f.shown[key] = details
	return nil
}

func (f *fakeItem) RemoveNotification(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, key)
	delete(f.shown, key)
	return nil
}

// fakeRoaming is an in-memory roaming settings store
type fakeRoaming struct {
	values    map[string]string
	saves     int
	removeErr error
	getErr    error
}

func newFakeRoaming() *fakeRoaming {
	return &fakeRoaming{values: make(map[string]string)}
}

func (f *fakeRoaming) GetSetting(ctx context.Context, key string) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeRoaming) SetSetting(ctx context.Context, key, value string) error {
	f.values[key] = value
	return nil
}

func (f *fakeRoaming) RemoveSetting(ctx context.Context, key string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.values, key)
	return nil
}

func (f *fakeRoaming) SaveSettings(ctx context.Context) error {
	f.saves++
	return nil
}

type fetchResult struct {
	sig models.Signature
	err error
}

// fakeFetcher answers per compose kind. block makes Fetch wait for the
// context to end.
type fakeFetcher struct {
	results map[models.ComposeKind]fetchResult
	calls   []models.ComposeKind
	creds   []models.Credential
	block   bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, kind models.ComposeKind, cred models.Credential) (models.Signature, error) {
	f.calls = append(f.calls, kind)
	f.creds = append(f.creds, cred)
	if f.block {
		<-ctx.Done()
		return models.Absent(), ctx.Err()
	}
	r, ok := f.results[kind]
	if !ok {
		return models.Absent(), nil
	}
	return r.sig, r.err
}

type fakeCredentials struct {
	cred  models.Credential
	err   error
	calls int
}

func (f *fakeCredentials) Resolve(ctx context.Context) (models.Credential, error) {
	f.calls++
	return f.cred, f.err
}

type fakeInvalidator struct {
	purged bool
	err    error
}

func (f *fakeInvalidator) CheckAndClear(ctx context.Context) (bool, error) {
	return f.purged, f.err
}

// fakeRequester routes requests to handle and records them
type fakeRequester struct {
	handle   func(req *transport.Request) (*transport.Response, error)
	requests []*transport.Request
}

func (f *fakeRequester) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	f.requests = append(f.requests, req)
	if f.handle == nil {
		return &transport.Response{Status: 404}, nil
	}
	return f.handle(req)
}

func (f *fakeRequester) paths() []string {
	out := make([]string, 0, len(f.requests))
	for _, r := range f.requests {
		out = append(out, r.URL)
	}
	return out
}

type fakeTokens struct {
	token string
	err   error
	calls int
}

func (f *fakeTokens) AccessToken(ctx context.Context) (string, error) {
	f.calls++
	return f.token, f.err
}
