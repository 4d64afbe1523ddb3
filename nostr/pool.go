// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package nostr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	// seenCacheSize is the number of event ids remembered to drop the
	// copies of an event delivered by several relays.
	seenCacheSize = 4096

	// eventBacklog is the capacity of the pool's event channel.
	eventBacklog = 64

	// dialTimeout bounds a single connection attempt.
	dialTimeout = 30 * time.Second
)

// ErrNoRelays is returned by Publish when no relay accepted the event.
var ErrNoRelays = errors.New("no relay accepted the event")

// FilterFunc builds the filters of a subscription. It is invoked on every
// (re)subscription so relative bounds such as since stay current.
type FilterFunc func() []Filter

// PoolConfig configures a Pool.
type PoolConfig struct {
	// URLs lists the relays to keep connections to.
	URLs []string

	// NetDial overrides the default TCP dialer.
	NetDial NetDialFunc

	// Backoff is the reconnect policy.
	Backoff Backoff
}

// Pool maintains connections to a set of relays, fans incoming events into a
// single de-duplicated channel and publishes to every connected relay.
type Pool struct {
	cfg PoolConfig

	events chan *Event

	seenMtx  sync.Mutex
	seen     map[string]struct{}
	seenRing []string
	seenNext int

	mtx    sync.Mutex
	relays map[string]*Relay
	subs   map[string]FilterFunc

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewPool creates a Pool. Connections are made by Start.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}

	return &Pool{
		cfg:      cfg,
		events:   make(chan *Event, eventBacklog),
		seen:     make(map[string]struct{}, seenCacheSize),
		seenRing: make([]string, seenCacheSize),
		relays:   make(map[string]*Relay),
		subs:     make(map[string]FilterFunc),
		quit:     make(chan struct{}),
	}
}

// Start launches one connection manager per relay.
func (p *Pool) Start() {
	for _, url := range p.cfg.URLs {
		p.wg.Add(1)
		go p.maintain(url)
	}
}

// Stop closes every connection and waits for the managers to exit.
func (p *Pool) Stop() {
	close(p.quit)
	p.wg.Wait()
}

// Events delivers each event received from any relay once.
func (p *Pool) Events() <-chan *Event {
	return p.events
}

// Connected returns the number of relays currently connected.
func (p *Pool) Connected() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	return len(p.relays)
}

// Subscribe registers a subscription on every current and future
// connection.
func (p *Pool) Subscribe(subID string, filters FilterFunc) {
	p.mtx.Lock()
	p.subs[subID] = filters
	relays := make([]*Relay, 0, len(p.relays))
	for _, r := range p.relays {
		relays = append(relays, r)
	}
	p.mtx.Unlock()

	for _, r := range relays {
		if err := r.Subscribe(subID, filters()...); err != nil {
			log.Warnf("Unable to subscribe on %s: %v", r.URL(), err)
		}
	}
}

// Publish sends ev to every connected relay and succeeds if at least one of
// them accepts it.
func (p *Pool) Publish(ctx context.Context, ev *Event) error {
	p.mtx.Lock()
	relays := make([]*Relay, 0, len(p.relays))
	for _, r := range p.relays {
		relays = append(relays, r)
	}
	p.mtx.Unlock()

	if len(relays) == 0 {
		return fmt.Errorf("%w: not connected", ErrNoRelays)
	}

	errs := make(chan error, len(relays))
	for _, r := range relays {
		go func(r *Relay) {
			err := r.Publish(ctx, ev)
			if err != nil {
				err = fmt.Errorf("%s: %w", r.URL(), err)
			}
			errs <- err
		}(r)
	}

	var failures []error
	for range relays {
		err := <-errs
		if err == nil {
			continue
		}

		log.Debugf("Publish of %s failed: %v", ev.ID, err)
		failures = append(failures, err)
	}

	if len(failures) == len(relays) {
		return fmt.Errorf("%w: %v", ErrNoRelays,
			errors.Join(failures...))
	}

	return nil
}

// maintain keeps a connection to url open until the pool stops.
func (p *Pool) maintain(url string) {
	defer p.wg.Done()

	for attempt := 0; ; {
		ctx, cancel := context.WithTimeout(
			context.Background(), dialTimeout,
		)
		go func() {
			select {
			case <-p.quit:
				cancel()
			case <-ctx.Done():
			}
		}()

		relay, err := DialRelay(ctx, url, p.cfg.NetDial, p.deliver)
		cancel()

		if err != nil {
			delay := p.cfg.Backoff.Delay(attempt)
			attempt++

			log.Warnf("Relay %s unreachable, retrying in %v: %v",
				url, delay.Round(time.Second), err)

			select {
			case <-time.After(delay):
				continue
			case <-p.quit:
				return
			}
		}

		attempt = 0
		log.Infof("Connected to relay %s", url)

		p.register(relay)

		select {
		case <-relay.Done():
			log.Warnf("Lost connection to relay %s: %v", url,
				relay.Err())
			p.unregister(relay)
			relay.Close()

		case <-p.quit:
			p.unregister(relay)
			relay.Close()
			return
		}
	}
}

// register adds a live connection and replays the subscriptions on it.
func (p *Pool) register(r *Relay) {
	p.mtx.Lock()
	p.relays[r.URL()] = r
	subs := make(map[string]FilterFunc, len(p.subs))
	for id, f := range p.subs {
		subs[id] = f
	}
	p.mtx.Unlock()

	for id, filters := range subs {
		if err := r.Subscribe(id, filters()...); err != nil {
			log.Warnf("Unable to subscribe on %s: %v", r.URL(), err)
		}
	}
}

func (p *Pool) unregister(r *Relay) {
	p.mtx.Lock()
	if p.relays[r.URL()] == r {
		delete(p.relays, r.URL())
	}
	p.mtx.Unlock()
}

// deliver forwards an event the first time its id is seen.
func (p *Pool) deliver(subID string, ev *Event) {
	if !p.markSeen(ev.ID) {
		return
	}

	log.Tracef("Event %s on subscription %s", ev.ID, subID)

	select {
	case p.events <- ev:
	case <-p.quit:
	}
}

// markSeen records id and reports whether it was new. The cache forgets the
// oldest ids first.
func (p *Pool) markSeen(id string) bool {
	p.seenMtx.Lock()
	defer p.seenMtx.Unlock()

	if _, ok := p.seen[id]; ok {
		return false
	}

	if old := p.seenRing[p.seenNext]; old != "" {
		delete(p.seen, old)
	}
	p.seenRing[p.seenNext] = id
	p.seenNext = (p.seenNext + 1) % len(p.seenRing)
	p.seen[id] = struct{}{}

	return true
}
