// Package bridge carries host calls over a JSON message connection. The
// daemon sends "call" messages naming a host method and waits for the
// matching "result"; the host announces itself with "hello" and raises
// "compose" events.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"autosig/host"
	"autosig/utils"
)

// Message types
const (
	TypeHello     = "hello"
	TypeCompose   = "compose"
	TypeResult    = "result"
	TypeCall      = "call"
	TypeCompleted = "completed"
)

// ErrClosed is returned by calls on a closed peer
var ErrClosed = errors.New("bridge closed")

// Message is one JSON frame in either direction
type Message struct {
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"`
	Item   string          `json:"item,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	Capabilities *host.Capabilities `json:"capabilities,omitempty"`
	Profile      *host.Profile      `json:"profile,omitempty"`
}

// Conn is a JSON message connection such as a websocket
type Conn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
}

// RemoteError is a failure reported by the host for a call
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}

// Peer multiplexes calls and events over one connection
type Peer struct {
	conn    Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *Message
	err     error

	events chan *Message
	done   chan struct{}
	log    *utils.Logger
}

// NewPeer wraps conn. Run must be called to receive anything.
func NewPeer(conn Conn, log *utils.Logger) *Peer {
	if log == nil {
		log = utils.Nop()
	}
	return &Peer{
		conn:    conn,
		pending: make(map[string]chan *Message),
		events:  make(chan *Message, 16),
		done:    make(chan struct{}),
		log:     log,
	}
}

// Events delivers hello and compose messages. It is closed when Run
// returns.
func (p *Peer) Events() <-chan *Message {
	return p.events
}

// Done is closed when the connection ends
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// Run reads messages until the connection fails or ctx ends
func (p *Peer) Run(ctx context.Context) error {
	defer close(p.events)

	for {
		var msg Message
		err := p.conn.ReadJSON(&msg)
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			p.shutdown(err)
			return err
		}

		switch msg.Type {
		case TypeResult:
			p.deliver(&msg)
		case TypeHello, TypeCompose:
			select {
			case p.events <- &msg:
			case <-ctx.Done():
				p.shutdown(ctx.Err())
				return ctx.Err()
			}
		default:
			p.log.Warn("Ignoring message of type %q", msg.Type)
		}
	}
}

func (p *Peer) deliver(msg *Message) {
	p.mu.Lock()
	ch, ok := p.pending[msg.ID]
	delete(p.pending, msg.ID)
	p.mu.Unlock()

	if !ok {
		p.log.Debug("Dropping result for unknown call %s", msg.ID)
		return
	}
	ch <- msg
}

func (p *Peer) shutdown(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return
	}
	p.err = err
	close(p.done)
}

// Send writes a message
func (p *Peer) Send(msg *Message) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteJSON(msg)
}

// Call invokes method on the host for item and decodes the result into
// out when out is not nil.
func (p *Peer) Call(ctx context.Context, item, method string, params, out interface{}) error {
	msg := &Message{Type: TypeCall, ID: uuid.NewString(), Item: item, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encode %s params: %w", method, err)
		}
		msg.Params = raw
	}

	reply := make(chan *Message, 1)
	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return ErrClosed
	}
	p.pending[msg.ID] = reply
	p.mu.Unlock()

	forget := func() {
		p.mu.Lock()
		delete(p.pending, msg.ID)
		p.mu.Unlock()
	}

	if err := p.Send(msg); err != nil {
		forget()
		return fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case res := <-reply:
		if res.Error != "" {
			return &RemoteError{Method: method, Message: res.Error}
		}
		if out != nil && len(res.Result) > 0 {
			if err := json.Unmarshal(res.Result, out); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		forget()
		return ctx.Err()
	case <-p.done:
		forget()
		return ErrClosed
	}
}
