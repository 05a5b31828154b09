package signature

import (
	"context"
	"net/url"
	"strconv"

	"autosig/models"
	"autosig/transport"
	"autosig/utils"
)

// DefaultSignaturePath is the remote endpoint returning the default
// signature for a compose kind
const DefaultSignaturePath = "/addin/outlook/default"

// Fetcher downloads the default signature
type Fetcher struct {
	client  transport.Requester
	path    string
	mailbox string
	// attachment type the server should prepare images for
	attachmentType models.AttachmentType
}

// NewFetcher creates a fetcher for one mailbox. Images are requested as
// cid attachments with data when the host can attach bytes, else as URLs.
func NewFetcher(client transport.Requester, path, mailbox string, base64Attachments bool) *Fetcher {
	if path == "" {
		path = DefaultSignaturePath
	}
	at := models.AttachmentURL
	if base64Attachments {
		at = models.AttachmentCid
	}
	return &Fetcher{client: client, path: path, mailbox: mailbox, attachmentType: at}
}

// Fetch requests the signature. Transport failures and non-2xx statuses
// are transient fetch errors; a 2xx body that is not a signature yields
// Absent without error.
func (f *Fetcher) Fetch(ctx context.Context, kind models.ComposeKind, cred models.Credential) (models.Signature, error) {
	username, token := cred.Split()

	query := url.Values{}
	query.Set("attachmentType", strconv.Itoa(int(f.attachmentType)))
	query.Set("composeType", strconv.Itoa(int(kind)))
	query.Set("actionCredentialToken", token)
	query.Set("mailbox", f.mailbox)
	query.Set("username", username)

	resp, err := f.client.Do(ctx, &transport.Request{URL: f.path, Query: query})
	if err != nil {
		return models.Absent(), utils.FetchError("fetch signature", err)
	}
	if err := transport.Expect(resp, f.path); err != nil {
		return models.Absent(), utils.FetchError("fetch signature", err).WithContext("status", resp.Status)
	}

	return models.ParseSignature(resp.Body), nil
}
