package signature

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autosig/host"
	"autosig/models"
	"autosig/storage"
	"autosig/transport"
	"autosig/utils"
)

func newTestSession(t *testing.T, caps host.Capabilities, client *fakeRequester, metrics *Metrics) (*Session, *fakeRoaming) {
	t.Helper()
	roaming := newFakeRoaming()
	s := NewSession(SessionOptions{
		Capabilities: caps,
		Profile:      host.Profile{EmailAddress: "jane@example.com", Language: "en-US"},
		Roaming:      roaming,
		Client:       client,
		Metrics:      metrics,
	})
	return s, roaming
}

func TestPipeline_InsertsSignature(t *testing.T) {
	ctx := context.Background()
	client := &fakeRequester{handle: func(req *transport.Request) (*transport.Response, error) {
		return jsonResponse(`{"content":"<p>Jane</p>"}`), nil
	}}
	metrics := NewMetrics(prometheus.NewRegistry())
	session, _ := newTestSession(t, host.Capabilities{SetSignature: true, ComposeKind: true}, client, metrics)

	item := newFakeItem()
	item.kind = models.ComposeReply
	item.clientSignature = true

	require.NoError(t, session.OnMessageCompose(ctx, item))

	assert.True(t, item.disabled)
	assert.Equal(t, "<p>Jane</p>", item.signature)
	assert.Equal(t, "1", client.requests[0].Query.Get("composeType"))

	details := item.shown[SlotKey(0)]
	assert.Equal(t, utils.NewTranslator("en").T(utils.MsgInsertSignatureSuccess), details.Message)
	assert.Equal(t, models.NotificationInsight, details.Type)

	entry, err := session.Store().Get(ctx, ReplySignatureKey)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "memory", session.Store().Backend())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.resolutions.WithLabelValues("reply", "remote")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.insertions.WithLabelValues("inserted")))
}

func TestPipeline_NoSignature(t *testing.T) {
	client := &fakeRequester{handle: func(req *transport.Request) (*transport.Response, error) {
		return nil, errBoom
	}}
	session, _ := newTestSession(t, host.Capabilities{SetSignature: true}, client, nil)
	item := newFakeItem()

	require.NoError(t, session.OnMessageCompose(context.Background(), item))

	assert.Zero(t, item.contentCalls)
	assert.Equal(t, []string{"notification_0"}, item.order)
	assert.Equal(t, utils.NewTranslator("en").T(utils.MsgNoDefaultSignature), item.shown["notification_0"].Message)
}

func TestPipeline_ComposeKindUnsupported(t *testing.T) {
	client := &fakeRequester{handle: func(req *transport.Request) (*transport.Response, error) {
		return jsonResponse(`{"content":"x"}`), nil
	}}
	session, _ := newTestSession(t, host.Capabilities{}, client, nil)
	item := newFakeItem()
	item.kind = models.ComposeReply

	require.NoError(t, session.OnMessageCompose(context.Background(), item))

	assert.Equal(t, "0", client.requests[0].Query.Get("composeType"))
	assert.Equal(t, "<br />x<br />", item.selected)
	assert.False(t, item.disabled)
}

func TestPipeline_InsertFailureIsReturned(t *testing.T) {
	client := &fakeRequester{handle: func(req *transport.Request) (*transport.Response, error) {
		return jsonResponse(`{"content":"x"}`), nil
	}}
	session, _ := newTestSession(t, host.Capabilities{SetSignature: true}, client, nil)
	item := newFakeItem()
	item.setErr = errBoom

	err := session.OnMessageCompose(context.Background(), item)

	assert.Equal(t, utils.KindHost, utils.KindOf(err))
	assert.Len(t, item.order, 1)
}

func TestPipeline_SharesSlotRingAcrossItems(t *testing.T) {
	client := &fakeRequester{handle: func(req *transport.Request) (*transport.Response, error) {
		return nil, errBoom
	}}
	session, _ := newTestSession(t, host.Capabilities{}, client, nil)

	first, second := newFakeItem(), newFakeItem()
	require.NoError(t, session.OnMessageCompose(context.Background(), first))
	require.NoError(t, session.OnMessageCompose(context.Background(), second))

	assert.Equal(t, []string{"notification_0"}, first.order)
	assert.Equal(t, []string{"notification_1"}, second.order)
}

func TestSession_DurableStorage(t *testing.T) {
	db, err := storage.OpenPebbleInMemory()
	require.NoError(t, err)
	defer db.Close()

	session := NewSession(SessionOptions{
		Capabilities: host.Capabilities{DurableStorage: true},
		Profile:      host.Profile{EmailAddress: "jane@example.com"},
		Roaming:      newFakeRoaming(),
		Durable:      db,
		Client:       &fakeRequester{},
	})

	assert.Equal(t, "pebble", session.Store().Backend())
}
