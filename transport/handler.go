// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package transport connects the relay pool to the request router. It
// authenticates and decrypts inbound request events, hands their payloads
// to the router and publishes the encrypted responses.
package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/nostrbridge/nostr"
	"github.com/btcsuite/nostrbridge/protocol"
	"github.com/btcsuite/nostrbridge/router"
	"github.com/btcsuite/nostrbridge/store"
	"github.com/lightningnetwork/lnd/clock"
)

const (
	// PairingHello is the plaintext a wallet sends to pair.
	PairingHello = "hello / paired"

	// StaleAfter is the event age beyond which a request is logged as
	// stale. Stale requests are still answered.
	StaleAfter = 60 * time.Second

	// DefaultPublishTimeout bounds publishing a single response.
	DefaultPublishTimeout = 30 * time.Second

	// reqTag names the tag carrying the request id.
	reqTag = "req"
)

// Dispatcher turns a decrypted payload into a response. It is satisfied by
// *router.Router.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload []byte, sender string,
		opts ...router.DispatchOption) (protocol.Response, error)
}

// Publisher sends events to the relays. It is satisfied by *nostr.Pool.
type Publisher interface {
	Publish(ctx context.Context, ev *nostr.Event) error
}

// Store is the persistent state the handler needs. It is satisfied by
// *store.Store.
type Store interface {
	MarkSeen(eventID string) (bool, error)
	RecordPairing(pubKey string) (*store.Pairing, error)
	TouchPairing(pubKey string) error
}

// A compile-time check that the concrete collaborators fit.
var (
	_ Dispatcher = (*router.Router)(nil)
	_ Publisher  = (*nostr.Pool)(nil)
	_ Store      = (*store.Store)(nil)
)

// Config configures a Handler.
type Config struct {
	// Identity is the bridge key used to decrypt requests and sign
	// responses.
	Identity *btcec.PrivateKey

	// Router answers decrypted requests.
	Router Dispatcher

	// Publisher publishes responses.
	Publisher Publisher

	// Store records seen events and pairings.
	Store Store

	// PublishTimeout bounds publishing a response.
	PublishTimeout time.Duration

	// Clock is the time source. It defaults to the wall clock.
	Clock clock.Clock
}

// Handler processes request events.
type Handler struct {
	cfg    Config
	pubKey string

	keysMtx sync.Mutex
	keys    map[string]nostr.ConversationKey

	wg sync.WaitGroup
}

// New creates a Handler.
func New(cfg Config) *Handler {
	if cfg.PublishTimeout == 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	return &Handler{
		cfg:    cfg,
		pubKey: nostr.PubKeyHex(cfg.Identity.PubKey()),
		keys:   make(map[string]nostr.ConversationKey),
	}
}

// PubKey returns the bridge's x-only public key in hex.
func (h *Handler) PubKey() string {
	return h.pubKey
}

// Filters returns the subscription filters selecting requests addressed to
// the bridge that are younger than maxAge.
func (h *Handler) Filters(maxAge time.Duration) nostr.FilterFunc {
	return func() []nostr.Filter {
		return []nostr.Filter{{
			Kinds: []int{nostr.KindRequest},
			PTags: []string{h.pubKey},
			Since: h.cfg.Clock.Now().Add(-maxAge).Unix(),
		}}
	}
}

// Run handles events until ctx is done or events is closed. Each request
// is processed on its own goroutine; Run waits for them before returning.
func (h *Handler) Run(ctx context.Context, events <-chan *nostr.Event) error {
	defer h.wg.Wait()

	log.Infof("Listening for requests to %s", h.pubKey)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			h.accept(ctx, ev)

		case <-ctx.Done():
			return nil
		}
	}
}

// accept performs the checks that must run in arrival order and starts the
// request goroutine.
func (h *Handler) accept(ctx context.Context, ev *nostr.Event) {
	if ev.Kind != nostr.KindRequest || !ev.Tags.Has("p", h.pubKey) {
		log.Tracef("Ignored event %s of kind %d", ev.ID, ev.Kind)
		return
	}

	if err := ev.Verify(); err != nil {
		log.Warnf("Dropped event %s from %s: %v", ev.ID, ev.PubKey,
			err)
		return
	}

	fresh, err := h.cfg.Store.MarkSeen(ev.ID)
	switch {
	case err != nil:
		log.Errorf("Unable to record event %s: %v", ev.ID, err)

	case !fresh:
		log.Debugf("Skipped already answered event %s", ev.ID)
		return
	}

	age := h.cfg.Clock.Now().Sub(time.Unix(ev.CreatedAt, 0))
	if age > StaleAfter {
		log.Warnf("Event %s is %v old, processing anyway", ev.ID,
			age.Round(time.Second))
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.handle(ctx, ev)
	}()
}

// handle decrypts a request, dispatches it and publishes the response.
func (h *Handler) handle(ctx context.Context, ev *nostr.Event) {
	key, err := h.conversationKey(ev.PubKey)
	if err != nil {
		log.Warnf("Dropped event %s: %v", ev.ID, err)
		return
	}

	plaintext, err := key.Decrypt(ev.Content)
	if err != nil {
		log.Warnf("Unable to decrypt event %s from %s: %v", ev.ID,
			ev.PubKey, err)
		return
	}

	if plaintext == PairingHello {
		if _, err := h.cfg.Store.RecordPairing(ev.PubKey); err != nil {
			log.Errorf("Unable to record pairing with %s: %v",
				ev.PubKey, err)
			return
		}

		log.Infof("Paired with wallet %s", ev.PubKey)
		return
	}

	if err := h.cfg.Store.TouchPairing(ev.PubKey); err != nil {
		log.Debugf("Unable to update pairing %s: %v", ev.PubKey, err)
	}

	fallback, _ := ev.Tags.Value(reqTag)
	resp, err := h.cfg.Router.Dispatch(
		ctx, []byte(plaintext), ev.PubKey,
		router.WithFallbackReqID(fallback),
	)
	if err != nil {
		log.Debugf("No response for event %s: %v", ev.ID, err)
		return
	}

	if err := h.respond(ctx, ev.PubKey, key, resp); err != nil {
		log.Errorf("Unable to publish response to %s: %v",
			resp.ReqID(), err)
	}
}

// respond encrypts resp to the requester and publishes it.
func (h *Handler) respond(ctx context.Context, requester string,
	key nostr.ConversationKey, resp protocol.Response) error {

	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	content, err := key.Encrypt(string(payload))
	if err != nil {
		return err
	}

	ev := &nostr.Event{
		CreatedAt: h.cfg.Clock.Now().Unix(),
		Kind:      nostr.KindResponse,
		Tags: nostr.Tags{
			{"p", requester},
			{reqTag, resp.ReqID()},
		},
		Content: content,
	}
	if err := ev.Sign(h.cfg.Identity); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.PublishTimeout)
	defer cancel()

	if err := h.cfg.Publisher.Publish(ctx, ev); err != nil {
		return err
	}

	log.Debugf("Published %s response %s for %s", resp.Type(), ev.ID,
		resp.ReqID())

	return nil
}

// conversationKey returns the cached conversation key for a peer.
func (h *Handler) conversationKey(pubKey string) (nostr.ConversationKey,
	error) {

	h.keysMtx.Lock()
	defer h.keysMtx.Unlock()

	if key, ok := h.keys[pubKey]; ok {
		return key, nil
	}

	peer, err := nostr.ParsePubKey(pubKey)
	if err != nil {
		return nostr.ConversationKey{}, err
	}

	key := nostr.NewConversationKey(h.cfg.Identity, peer)
	h.keys[pubKey] = key

	return key, nil
}
