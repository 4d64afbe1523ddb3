// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package store persists the bridge state: its identity key, the wallets
// that paired with it and the ids of the request events already answered.
package store

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb" // bolt backend
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
)

const (
	// DBName is the file name of the bridge database.
	DBName = "bridge.db"

	// DefaultDBTimeout is how long to wait for the file lock.
	DefaultDBTimeout = 60 * time.Second

	// DefaultEventMaxAge is the default age limit of request events. Seen
	// ids are kept for twice that long.
	DefaultEventMaxAge = 10 * time.Minute
)

var (
	identityBucketName = []byte("identity")
	pairingBucketName  = []byte("pairings")
	seenBucketName     = []byte("seen")

	secretKeyName = []byte("secret")
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Config configures a Store.
type Config struct {
	// DataDir is the directory holding the database file.
	DataDir string

	// DBTimeout bounds waiting for the database lock.
	DBTimeout time.Duration

	// EventMaxAge is the age limit of request events.
	EventMaxAge time.Duration

	// Clock is the time source. It defaults to the wall clock.
	Clock clock.Clock
}

// Store is the bridge database.
type Store struct {
	db     walletdb.DB
	clock  clock.Clock
	maxAge time.Duration

	started sync.Once
	quit    chan struct{}
	wg      sync.WaitGroup
}

// Open opens the database in cfg.DataDir, creating it on first use.
func Open(cfg Config) (*Store, error) {
	if cfg.DBTimeout == 0 {
		cfg.DBTimeout = DefaultDBTimeout
	}
	if cfg.EventMaxAge == 0 {
		cfg.EventMaxAge = DefaultEventMaxAge
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, err
	}

	// The bdb driver takes the path, no-freelist-sync, the open timeout
	// and the read-only flag.
	dbPath := filepath.Join(cfg.DataDir, DBName)
	db, err := walletdb.Open("bdb", dbPath, true, cfg.DBTimeout, false)
	if errors.Is(err, walletdb.ErrDbDoesNotExist) {
		log.Infof("Creating database %s", dbPath)
		db, err = walletdb.Create(
			"bdb", dbPath, true, cfg.DBTimeout, false,
		)
	}
	if err != nil {
		return nil, err
	}

	err = walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		buckets := [][]byte{
			identityBucketName, pairingBucketName, seenBucketName,
		}
		for _, name := range buckets {
			_, err := tx.CreateTopLevelBucket(name)
			if err != nil && !errors.Is(err, walletdb.ErrBucketExists) {
				return err
			}
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:     db,
		clock:  cfg.Clock,
		maxAge: cfg.EventMaxAge,
		quit:   make(chan struct{}),
	}, nil
}

// Start launches the periodic pruning of the seen event index.
func (s *Store) Start() {
	s.started.Do(func() {
		s.wg.Add(1)
		go s.pruneHandler()
	})
}

// Close stops pruning and closes the database.
func (s *Store) Close() error {
	close(s.quit)
	s.wg.Wait()

	return s.db.Close()
}

// pruneHandler drops expired seen ids once per event age window.
func (s *Store) pruneHandler() {
	defer s.wg.Done()

	t := ticker.New(s.maxAge)
	t.Resume()
	defer t.Stop()

	for {
		select {
		case <-t.Ticks():
			n, err := s.PruneSeen()
			if err != nil {
				log.Errorf("Unable to prune seen events: %v", err)
				continue
			}
			if n > 0 {
				log.Debugf("Pruned %d seen events", n)
			}

		case <-s.quit:
			return
		}
	}
}
