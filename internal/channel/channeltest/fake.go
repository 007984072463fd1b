// Package channeltest provides an in-memory transport for channel tests.
package channeltest

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yoockh/interviewstream/internal/channel"
)

var ErrRefused = errors.New("connection refused")

// Transport records text writes and delivers queued inbound messages.
type Transport struct {
	mu       sync.Mutex
	writes   [][]byte
	writeErr error

	inbound chan []byte
	closed  chan struct{}
	once    sync.Once
}

func NewTransport() *Transport {
	return &Transport{
		inbound: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (t *Transport) ReadMessage() (int, []byte, error) {
	select {
	case b := <-t.inbound:
		return websocket.TextMessage, b, nil
	case <-t.closed:
		return 0, nil, net.ErrClosed
	}
}

func (t *Transport) WriteMessage(messageType int, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	if messageType == websocket.TextMessage {
		t.writes = append(t.writes, append([]byte(nil), data...))
	}
	return nil
}

func (t *Transport) SetWriteDeadline(time.Time) error { return nil }

func (t *Transport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

// Push queues an inbound message.
func (t *Transport) Push(data []byte) { t.inbound <- data }

// FailWrites makes every later write return err.
func (t *Transport) FailWrites(err error) {
	t.mu.Lock()
	t.writeErr = err
	t.mu.Unlock()
}

func (t *Transport) Writes() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.writes))
	copy(out, t.writes)
	return out
}

// Messages decodes every recorded write as a JSON object.
func (t *Transport) Messages() []map[string]any {
	var out []map[string]any
	for _, w := range t.Writes() {
		var m map[string]any
		if json.Unmarshal(w, &m) == nil {
			out = append(out, m)
		}
	}
	return out
}

func (t *Transport) IsClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// Dialer hands out transports. The first Fail calls are refused. When Block
// is set, Dial waits for the context to end.
type Dialer struct {
	mu    sync.Mutex
	Fail  int
	Block bool

	calls      int
	urls       []string
	transports []*Transport
	byURL      map[string]*Transport
	entered    chan struct{}
}

var _ channel.Dialer = (*Dialer)(nil)

func NewDialer() *Dialer {
	return &Dialer{entered: make(chan struct{}, 16), byURL: make(map[string]*Transport)}
}

func (d *Dialer) Dial(ctx context.Context, url string) (channel.Transport, error) {
	d.mu.Lock()
	d.calls++
	d.urls = append(d.urls, url)
	fail := d.calls <= d.Fail
	block := d.Block
	d.mu.Unlock()

	select {
	case d.entered <- struct{}{}:
	default:
	}

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if fail {
		return nil, ErrRefused
	}

	tr := NewTransport()
	d.mu.Lock()
	d.transports = append(d.transports, tr)
	d.byURL[url] = tr
	d.mu.Unlock()
	return tr, nil
}

// Entered is signalled each time Dial is called.
func (d *Dialer) Entered() <-chan struct{} { return d.entered }

func (d *Dialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *Dialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

// Last returns the most recently created transport, or nil.
func (d *Dialer) Last() *Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

// For returns the latest transport dialed for url, or nil.
func (d *Dialer) For(url string) *Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.byURL[url]
}
