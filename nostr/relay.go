// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package nostr

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/btcsuite/websocket"
	"github.com/lightningnetwork/lnd/ticker"
)

const (
	// handshakeTimeout bounds the websocket handshake.
	handshakeTimeout = 15 * time.Second

	// pingInterval is how often a ping is sent on an idle connection.
	pingInterval = 30 * time.Second

	// pongWait is how long the connection may stay silent before it is
	// considered dead.
	pongWait = 3 * pingInterval

	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second

	// maxMessageSize bounds a single relay message.
	maxMessageSize = 512 * 1024
)

var (
	// ErrRelayClosed is returned for operations on a closed relay.
	ErrRelayClosed = errors.New("relay connection closed")

	// ErrPublishRejected is returned when a relay refuses an event.
	ErrPublishRejected = errors.New("event rejected by relay")
)

// NetDialFunc dials a TCP connection. It allows routing relay connections
// through a SOCKS5 proxy.
type NetDialFunc func(network, addr string) (net.Conn, error)

// okResult is a relay's answer to a published event.
type okResult struct {
	accepted bool
	message  string
}

// Relay is a single relay websocket connection.
type Relay struct {
	url  string
	conn *websocket.Conn

	// onEvent receives every EVENT message along with its subscription.
	onEvent func(subID string, ev *Event)

	writeMtx sync.Mutex

	pendingMtx sync.Mutex
	pending    map[string]chan okResult

	closeOnce sync.Once
	quit      chan struct{}
	wg        sync.WaitGroup

	errMtx sync.Mutex
	err    error
}

// DialRelay connects to the relay at url. onEvent is invoked from the read
// goroutine for every event received.
func DialRelay(ctx context.Context, url string, netDial NetDialFunc,
	onEvent func(subID string, ev *Event)) (*Relay, error) {

	if netDial == nil {
		d := &net.Dialer{Timeout: handshakeTimeout}
		netDial = d.Dial
	}

	dialer := &websocket.Dialer{
		NetDial:          netDial,
		TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
		HandshakeTimeout: handshakeTimeout,
	}

	type dialResult struct {
		conn *websocket.Conn
		err  error
	}

	// The websocket dialer has no context support, so an abandoned dial is
	// cleaned up once it completes.
	done := make(chan dialResult, 1)
	go func() {
		conn, _, err := dialer.Dial(url, nil)
		done <- dialResult{conn, err}
	}()

	var conn *websocket.Conn
	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("unable to connect to %s: %w",
				url, r.err)
		}
		conn = r.conn

	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()

		return nil, ctx.Err()
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	r := &Relay{
		url:     url,
		conn:    conn,
		onEvent: onEvent,
		pending: make(map[string]chan okResult),
		quit:    make(chan struct{}),
	}

	r.wg.Add(2)
	go r.readLoop()
	go r.pingLoop()

	return r, nil
}

// URL returns the relay address.
func (r *Relay) URL() string {
	return r.url
}

// Done is closed once the connection is gone.
func (r *Relay) Done() <-chan struct{} {
	return r.quit
}

// Err returns the reason the connection closed, if any.
func (r *Relay) Err() error {
	r.errMtx.Lock()
	defer r.errMtx.Unlock()

	return r.err
}

// Subscribe opens or replaces the subscription subID.
func (r *Relay) Subscribe(subID string, filters ...Filter) error {
	msg := make([]interface{}, 0, 2+len(filters))
	msg = append(msg, "REQ", subID)
	for _, f := range filters {
		msg = append(msg, f)
	}

	return r.writeJSON(msg)
}

// Publish sends ev and waits for the relay's OK message.
func (r *Relay) Publish(ctx context.Context, ev *Event) error {
	result := make(chan okResult, 1)

	r.pendingMtx.Lock()
	r.pending[ev.ID] = result
	r.pendingMtx.Unlock()

	defer func() {
		r.pendingMtx.Lock()
		delete(r.pending, ev.ID)
		r.pendingMtx.Unlock()
	}()

	if err := r.writeJSON([]interface{}{"EVENT", ev}); err != nil {
		return err
	}

	select {
	case res := <-result:
		if !res.accepted {
			return fmt.Errorf("%w: %s", ErrPublishRejected,
				res.message)
		}

		return nil

	case <-r.quit:
		return ErrRelayClosed

	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the connection and waits for its goroutines to exit.
func (r *Relay) Close() error {
	r.shutdown(nil)
	r.wg.Wait()

	return nil
}

// shutdown records the first error and tears the connection down.
func (r *Relay) shutdown(err error) {
	r.closeOnce.Do(func() {
		r.errMtx.Lock()
		r.err = err
		r.errMtx.Unlock()

		r.writeMtx.Lock()
		_ = r.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(
				websocket.CloseNormalClosure, "",
			),
			time.Now().Add(time.Second),
		)
		r.writeMtx.Unlock()

		close(r.quit)
		r.conn.Close()
	})
}

func (r *Relay) writeJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case <-r.quit:
		return ErrRelayClosed
	default:
	}

	r.writeMtx.Lock()
	defer r.writeMtx.Unlock()

	_ = r.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := r.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		go r.shutdown(err)
		return err
	}

	return nil
}

// pingLoop keeps the connection alive.
func (r *Relay) pingLoop() {
	defer r.wg.Done()

	t := ticker.New(pingInterval)
	t.Resume()
	defer t.Stop()

	for {
		select {
		case <-t.Ticks():
			r.writeMtx.Lock()
			err := r.conn.WriteControl(
				websocket.PingMessage, nil,
				time.Now().Add(writeWait),
			)
			r.writeMtx.Unlock()

			if err != nil {
				r.shutdown(err)
				return
			}

		case <-r.quit:
			return
		}
	}
}

// readLoop reads relay messages until the connection fails.
func (r *Relay) readLoop() {
	defer r.wg.Done()

	for {
		_, msg, err := r.conn.ReadMessage()
		if err != nil {
			r.shutdown(err)
			return
		}
		_ = r.conn.SetReadDeadline(time.Now().Add(pongWait))

		if err := r.handleMessage(msg); err != nil {
			log.Debugf("Ignoring message from %s: %v", r.url, err)
		}
	}
}

// handleMessage dispatches a single relay to client message.
func (r *Relay) handleMessage(msg []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(msg, &parts); err != nil {
		return err
	}
	if len(parts) == 0 {
		return errors.New("empty message")
	}

	var label string
	if err := json.Unmarshal(parts[0], &label); err != nil {
		return err
	}

	switch label {
	case "EVENT":
		if len(parts) < 3 {
			return errors.New("short EVENT message")
		}

		var subID string
		if err := json.Unmarshal(parts[1], &subID); err != nil {
			return err
		}

		var ev Event
		if err := json.Unmarshal(parts[2], &ev); err != nil {
			return err
		}

		if r.onEvent != nil {
			r.onEvent(subID, &ev)
		}

	case "OK":
		if len(parts) < 3 {
			return errors.New("short OK message")
		}

		var (
			id       string
			accepted bool
			message  string
		)
		if err := json.Unmarshal(parts[1], &id); err != nil {
			return err
		}
		if err := json.Unmarshal(parts[2], &accepted); err != nil {
			return err
		}
		if len(parts) > 3 {
			_ = json.Unmarshal(parts[3], &message)
		}

		r.pendingMtx.Lock()
		ch, ok := r.pending[id]
		r.pendingMtx.Unlock()

		// Duplicate OK messages are dropped.
		res := okResult{accepted: accepted, message: message}
		if ok {
			select {
			case ch <- res:
			default:
			}
		}

	case "EOSE":
		log.Tracef("End of stored events from %s", r.url)

	case "NOTICE":
		var notice string
		if len(parts) > 1 {
			_ = json.Unmarshal(parts[1], &notice)
		}
		log.Infof("Notice from %s: %s", r.url, notice)

	case "CLOSED":
		var subID, reason string
		if len(parts) > 2 {
			_ = json.Unmarshal(parts[1], &subID)
			_ = json.Unmarshal(parts[2], &reason)
		}
		log.Warnf("Relay %s closed subscription %s: %s", r.url, subID,
			reason)

	default:
		return fmt.Errorf("unknown message type %q", label)
	}

	return nil
}
