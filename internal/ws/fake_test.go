package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeConn struct {
	in      chan []byte
	written chan Envelope
	done    chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:      make(chan []byte, 16),
		written: make(chan Envelope, 64),
		done:    make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data, ok := <-f.in:
		if !ok {
			return 0, nil, io.EOF
		}
		return websocket.TextMessage, data, nil
	case <-f.done:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-f.done:
		return errors.New("use of closed connection")
	default:
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	f.written <- env
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}

// push delivers a server frame.
func (f *fakeConn) push(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	f.in <- frame
}

// expect waits for the next emitted frame named event, skipping others.
func (f *fakeConn) expect(t *testing.T, event string) Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-f.written:
			if env.Event == event {
				return env
			}
		case <-deadline:
			t.Fatalf("no %s frame emitted", event)
			return Envelope{}
		}
	}
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
	// hold, when set, blocks every dial after the first until it is closed.
	hold chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, _ string, _ http.Header) (Conn, error) {
	d.mu.Lock()
	hold, first := d.hold, d.dials == 0
	d.mu.Unlock()
	if hold != nil && !first {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.conns) == 0 {
		return nil, errors.New("connection refused")
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func newTestClient(t *testing.T, conns ...*fakeConn) (*Client, *fakeDialer) {
	t.Helper()
	dialer := &fakeDialer{conns: conns}
	client := NewClient(Options{
		URL:               "ws://backend.test/socket",
		RequestTimeout:    200 * time.Millisecond,
		ReconnectAttempts: 3,
		ReconnectDelay:    time.Millisecond,
		ReconnectDelayMax: 5 * time.Millisecond,
		Dialer:            dialer,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client, dialer
}
