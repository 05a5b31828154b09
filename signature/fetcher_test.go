package signature

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autosig/models"
	"autosig/transport"
	"autosig/utils"
)

func TestFetcher_Query(t *testing.T) {
	client := &fakeRequester{handle: func(req *transport.Request) (*transport.Response, error) {
		return jsonResponse(`{"content":"<p>Jane</p>","images":[{"id":"logo.png","data":"aGk="}]}`), nil
	}}

	sig, err := NewFetcher(client, "", "jane@example.com", true).Fetch(context.Background(), models.ComposeReply, "jane:secret")
	require.NoError(t, err)
	assert.Equal(t, models.Present("<p>Jane</p>", []models.ImageRef{{ID: "logo.png", Data: "aGk="}}), sig)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, DefaultSignaturePath, req.URL)
	assert.Equal(t, "0", req.Query.Get("attachmentType"))
	assert.Equal(t, "1", req.Query.Get("composeType"))
	assert.Equal(t, "secret", req.Query.Get("actionCredentialToken"))
	assert.Equal(t, "jane", req.Query.Get("username"))
	assert.Equal(t, "jane@example.com", req.Query.Get("mailbox"))
}

func TestFetcher_URLAttachments(t *testing.T) {
	client := &fakeRequester{handle: func(req *transport.Request) (*transport.Response, error) {
		return jsonResponse(`null`), nil
	}}

	_, err := NewFetcher(client, "/custom", "", false).Fetch(context.Background(), models.ComposeNew, "")
	require.NoError(t, err)

	req := client.requests[0]
	assert.Equal(t, "/custom", req.URL)
	assert.Equal(t, "1", req.Query.Get("attachmentType"))
	assert.Equal(t, "", req.Query.Get("actionCredentialToken"))
}

func TestFetcher_Responses(t *testing.T) {
	tests := []struct {
		name    string
		resp    *transport.Response
		err     error
		present bool
		kind    utils.Kind
	}{
		{name: "signature", resp: jsonResponse(`{"content":""}`), present: true},
		{name: "html without content", resp: jsonResponse(`{"html":"<p>x</p>"}`)},
		{name: "malformed images", resp: jsonResponse(`{"content":"x","images":"logo"}`), present: true},
		{name: "null body", resp: jsonResponse(`null`)},
		{name: "object without content", resp: jsonResponse(`{}`)},
		{name: "garbage body", resp: jsonResponse(`<html>`)},
		{name: "server error", resp: &transport.Response{Status: 500}, kind: utils.KindTransientFetch},
		{name: "unauthorized", resp: &transport.Response{Status: 401}, kind: utils.KindTransientFetch},
		{name: "transport error", err: errBoom, kind: utils.KindTransientFetch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeRequester{handle: func(req *transport.Request) (*transport.Response, error) {
				return tt.resp, tt.err
			}}

			sig, err := NewFetcher(client, "", "", false).Fetch(context.Background(), models.ComposeNew, "")

			assert.Equal(t, tt.present, sig.IsPresent())
			if tt.kind == utils.KindUnknown {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, tt.kind, utils.KindOf(err))
			}
		})
	}
}
