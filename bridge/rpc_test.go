package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autosig/host"
	"autosig/models"
	"autosig/utils"
)

// pipeConn is an in-memory Conn. The test plays the host on the other
// end through fromDaemon and toDaemon.
type pipeConn struct {
	toDaemon   chan []byte
	fromDaemon chan *Message
	closeOnce  sync.Once
	closed     chan struct{}
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		toDaemon:   make(chan []byte, 16),
		fromDaemon: make(chan *Message, 16),
		closed:     make(chan struct{}),
	}
}

func (c *pipeConn) ReadJSON(v interface{}) error {
	select {
	case data := <-c.toDaemon:
		return json.Unmarshal(data, v)
	case <-c.closed:
		return io.EOF
	}
}

func (c *pipeConn) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	select {
	case c.fromDaemon <- &msg:
		return nil
	case <-c.closed:
		return io.ErrClosedPipe
	}
}

func (c *pipeConn) send(t *testing.T, msg Message) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	c.toDaemon <- data
}

func (c *pipeConn) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// answer replies to the next call with result or errText. It runs on
// its own goroutine, so failures are reported without stopping the test.
func (c *pipeConn) answer(t *testing.T, result interface{}, errText string) *Message {
	select {
	case call := <-c.fromDaemon:
		reply := Message{Type: TypeResult, ID: call.ID, Error: errText}
		if result != nil {
			raw, err := json.Marshal(result)
			assert.NoError(t, err)
			reply.Result = raw
		}
		data, err := json.Marshal(reply)
		assert.NoError(t, err)
		c.toDaemon <- data
		return call
	case <-time.After(5 * time.Second):
		t.Error("no call received")
		return nil
	}
}

func startPeer(t *testing.T) (*Peer, *pipeConn) {
	t.Helper()
	conn := newPipeConn()
	peer := NewPeer(conn, nil)
	go peer.Run(context.Background())
	t.Cleanup(conn.close)
	return peer, conn
}

func TestPeer_CallRoundTrip(t *testing.T) {
	peer, conn := startPeer(t)

	done := make(chan *Message, 1)
	go func() { done <- conn.answer(t, []host.Attachment{{Name: "sig.png"}}, "") }()

	var out []host.Attachment
	require.NoError(t, peer.Call(context.Background(), "item-1", MethodGetAttachments, nil, &out))
	assert.Equal(t, []host.Attachment{{Name: "sig.png"}}, out)

	call := <-done
	assert.Equal(t, TypeCall, call.Type)
	assert.Equal(t, "item-1", call.Item)
	assert.Equal(t, MethodGetAttachments, call.Method)
	assert.NotEmpty(t, call.ID)
}

func TestPeer_RemoteError(t *testing.T) {
	peer, conn := startPeer(t)
	go conn.answer(t, nil, "InvalidAttachmentId")

	err := peer.Call(context.Background(), "", MethodSaveRoamingSettings, nil, nil)

	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, MethodSaveRoamingSettings, remote.Method)
	assert.Equal(t, "InvalidAttachmentId", remote.Message)
}

func TestPeer_CallCancelled(t *testing.T) {
	peer, _ := startPeer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := peer.Call(ctx, "", MethodGetAccessToken, nil, nil)

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestPeer_ConnectionClosed(t *testing.T) {
	peer, conn := startPeer(t)

	errc := make(chan error, 1)
	go func() { errc <- peer.Call(context.Background(), "", MethodGetAccessToken, nil, nil) }()

	<-conn.fromDaemon
	conn.close()

	select {
	case err := <-errc:
		assert.True(t, errors.Is(err, ErrClosed))
	case <-time.After(5 * time.Second):
		t.Fatal("call did not return")
	}

	<-peer.Done()
	assert.True(t, errors.Is(peer.Call(context.Background(), "", MethodGetAccessToken, nil, nil), ErrClosed))
}

func TestPeer_Events(t *testing.T) {
	conn := newPipeConn()
	peer := NewPeer(conn, nil)
	runErr := make(chan error, 1)
	go func() { runErr <- peer.Run(context.Background()) }()

	conn.send(t, Message{
		Type:         TypeHello,
		Capabilities: &host.Capabilities{SetSignature: true},
		Profile:      &host.Profile{EmailAddress: "jane@example.com"},
	})
	conn.send(t, Message{Type: "unknown"})
	conn.send(t, Message{Type: TypeCompose, Item: "item-7"})

	hello := <-peer.Events()
	assert.Equal(t, TypeHello, hello.Type)
	assert.True(t, hello.Capabilities.SetSignature)
	assert.Equal(t, "jane@example.com", hello.Profile.EmailAddress)

	compose := <-peer.Events()
	assert.Equal(t, "item-7", compose.Item)

	conn.close()
	_, open := <-peer.Events()
	assert.False(t, open)
	assert.Equal(t, io.EOF, <-runErr)
}

func TestHost_Calls(t *testing.T) {
	peer, conn := startPeer(t)
	h := NewHost(peer, "item-1")
	ctx := context.Background()

	t.Run("compose kind", func(t *testing.T) {
		go conn.answer(t, "reply", "")
		kind, err := h.ComposeKind(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.ComposeReply, kind)
	})

	t.Run("unset setting", func(t *testing.T) {
		go conn.answer(t, nil, "")
		_, ok, err := h.GetSetting(ctx, "actionCredentialToken")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("setting", func(t *testing.T) {
		go conn.answer(t, `"jane:secret"`, "")
		v, ok, err := h.GetSetting(ctx, "actionCredentialToken")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `"jane:secret"`, v)
	})

	t.Run("attachment params", func(t *testing.T) {
		calls := make(chan *Message, 1)
		go func() { calls <- conn.answer(t, nil, "") }()

		require.NoError(t, h.AddAttachment(ctx, models.AttachmentCid, "aGk=", "sig.png", host.AttachmentOptions{Inline: true}))

		call := <-calls
		assert.Equal(t, MethodAddAttachment, call.Method)
		assert.JSONEq(t, `{"type":0,"data":"aGk=","name":"sig.png","options":{"isInline":true}}`, string(call.Params))
	})

	t.Run("host failure kind", func(t *testing.T) {
		go conn.answer(t, nil, "GenericResponseError")
		err := h.SetSignature(ctx, "<p>x</p>")
		assert.Equal(t, utils.KindHost, utils.KindOf(err))
	})
}
