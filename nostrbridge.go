// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"net"
	"net/http"
	_ "net/http/pprof" // nolint:gosec
	"os"
	"time"

	"github.com/btcsuite/nostrbridge/backend"
	"github.com/btcsuite/nostrbridge/backend/bitcoind"
	"github.com/btcsuite/nostrbridge/backend/electrum"
	"github.com/btcsuite/nostrbridge/chain"
	"github.com/btcsuite/nostrbridge/gate"
	"github.com/btcsuite/nostrbridge/metrics"
	"github.com/btcsuite/nostrbridge/nostr"
	"github.com/btcsuite/nostrbridge/router"
	"github.com/btcsuite/nostrbridge/store"
	"github.com/btcsuite/nostrbridge/transport"
	"golang.org/x/net/proxy"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

const (
	// requestSubID names the relay subscription for request events.
	requestSubID = "nostrbridge-requests"

	// startupCheckTimeout bounds the backend checks made at startup.
	startupCheckTimeout = 30 * time.Second
)

var cfg *config

func main() {
	// Work around defer not working after os.Exit.
	if err := bridgeMain(); err != nil {
		os.Exit(1)
	}
}

// bridgeMain is a work-around main function that is required since deferred
// functions (such as log flushing) are not called with calls to os.Exit.
// Instead, main runs this function and checks for a non-nil error, at which
// point any defers have already run, and if the error is non-nil, the program
// can be exited with an error exit status.
func bridgeMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	tcfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = tcfg
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	// Show version at startup.
	log.Infof("Version %s (%s)", version(), activeNet.Params.Name)

	if cfg.Profile != "" {
		go func() {
			listenAddr := net.JoinHostPort("", cfg.Profile)
			log.Infof("Profile server listening on %s", listenAddr)
			profileRedirect := http.RedirectHandler("/debug/pprof",
				http.StatusSeeOther)
			http.Handle("/", profileRedirect)
			log.Errorf("%v", http.ListenAndServe(listenAddr, nil))
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addInterruptHandler(cancel)

	db, err := store.Open(store.Config{
		DataDir:     networkDir(cfg.AppDataDir.Value, activeNet.Params),
		DBTimeout:   cfg.DBTimeout,
		EventMaxAge: cfg.EventMaxAge,
	})
	if err != nil {
		log.Errorf("Unable to open bridge database: %v", err)
		return err
	}
	defer db.Close()
	db.Start()

	identity, err := db.Identity()
	if err != nil {
		log.Errorf("Unable to load bridge identity: %v", err)
		return err
	}

	be, err := newBackend(ctx)
	if err != nil {
		log.Errorf("Unable to set up %s backend: %v", cfg.Backend, err)
		return err
	}
	defer be.Close()

	// The recorders stay nil interfaces unless metrics are enabled.
	var (
		m         *metrics.Metrics
		chainRec  chain.Recorder
		routerRec router.Recorder
	)
	if cfg.MetricsListen != "" {
		m = metrics.New()
		chainRec, routerRec = m, m
	}

	g := gate.New(gate.Config{
		MinInterval:    gate.DefaultMinInterval,
		CooldownPeriod: cfg.BackendCooldown,
	})
	checkBackend(ctx, g, be)

	client := chain.New(chain.Config{
		Backend:     be,
		Gate:        g,
		ChainParams: activeNet.Params,
		Recorder:    chainRec,
	})

	netDial, err := relayDialer()
	if err != nil {
		log.Errorf("Unable to set up proxy: %v", err)
		return err
	}
	pool := nostr.NewPool(nostr.PoolConfig{
		URLs:    cfg.Relays,
		NetDial: netDial,
	})

	handler := transport.New(transport.Config{
		Identity:  identity,
		Router:    router.New(client, routerRec),
		Publisher: pool,
		Store:     db,
	})

	pool.Subscribe(requestSubID, handler.Filters(cfg.EventMaxAge))
	pool.Start()
	defer pool.Stop()

	withQR := !cfg.NoQR && term.IsTerminal(int(os.Stdout.Fd()))
	err = showPairing(os.Stdout, handler.PubKey(), cfg.Relays, withQR)
	if err != nil {
		log.Errorf("Unable to show pairing information: %v", err)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return handler.Run(ctx, pool.Events())
	})
	if m != nil {
		m.RegisterGauge("relays_connected", "Connected relays.",
			func() float64 { return float64(pool.Connected()) })

		eg.Go(func() error {
			log.Infof("Metrics server listening on %s",
				cfg.MetricsListen)
			return m.Serve(ctx, cfg.MetricsListen)
		})
	}

	if err := eg.Wait(); err != nil {
		log.Errorf("Bridge stopped: %v", err)
		return err
	}

	log.Info("Shutdown complete")
	return nil
}

// newBackend connects the configured chain backend.
func newBackend(ctx context.Context) (backend.Backend, error) {
	switch cfg.Backend {
	case backendBitcoind:
		client, err := bitcoind.New(&bitcoind.Config{
			ChainParams: activeNet.Params,
			Host:        cfg.Bitcoind,
			User:        cfg.BitcoindUser,
			Pass:        cfg.BitcoindPass,
		})
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
		defer cancel()

		if err := client.VerifyNetwork(ctx); err != nil {
			client.Close()
			return nil, err
		}

		log.Infof("Using bitcoind backend at %s", cfg.Bitcoind)

		return client, nil

	default:
		log.Infof("Using Electrum backend at %s", cfg.Electrum)

		return electrum.New(electrum.Config{
			Server:     cfg.Electrum,
			TLS:        cfg.ElectrumTLS,
			SkipVerify: cfg.ElectrumSkipVerify,
		}), nil
	}
}

// checkBackend reports the backend tip. An unreachable backend is not fatal
// since requests degrade until it recovers.
func checkBackend(ctx context.Context, g *gate.Gate, be backend.Backend) {
	height, err := gate.Do(ctx, g, startupCheckTimeout, be.CurrentHeight)
	if err != nil {
		log.Warnf("Backend not reachable yet: %v", err)
		return
	}

	log.Infof("Backend synced to height %d", height)
}

// relayDialer returns the dialer used for relay connections, routed
// through the SOCKS5 proxy when one is configured.
func relayDialer() (nostr.NetDialFunc, error) {
	if cfg.Proxy == "" {
		return nil, nil
	}

	var auth *proxy.Auth
	if cfg.ProxyUser != "" || cfg.ProxyPass != "" {
		auth = &proxy.Auth{User: cfg.ProxyUser, Password: cfg.ProxyPass}
	}

	dialer, err := proxy.SOCKS5("tcp", cfg.Proxy, auth, proxy.Direct)
	if err != nil {
		return nil, err
	}

	log.Infof("Connecting to relays via proxy %s", cfg.Proxy)

	return dialer.Dial, nil
}
