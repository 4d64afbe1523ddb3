// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/nostrbridge/gate"
	"github.com/btcsuite/nostrbridge/internal/cfgutil"
	"github.com/btcsuite/nostrbridge/netparams"
	"github.com/btcsuite/nostrbridge/store"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "nostrbridge.conf"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "nostrbridge.log"
	defaultBackend        = backendElectrum
	defaultElectrumHost   = "localhost"
	defaultBitcoindHost   = "localhost"

	backendElectrum = "electrum"
	backendBitcoind = "bitcoind"
)

var (
	defaultAppDataDir = btcutil.AppDataDir("nostrbridge", false)
	defaultConfigFile = filepath.Join(defaultAppDataDir, defaultConfigFilename)
	defaultLogDir     = filepath.Join(defaultAppDataDir, defaultLogDirname)

	defaultRelays = []string{
		"wss://relay.damus.io",
		"wss://nos.lol",
		"wss://relay.primal.net",
	}
)

// activeNet is the network selected by the configuration.
var activeNet = &netparams.MainNetParams

type config struct {
	// General application behavior
	ConfigFile  *cfgutil.ExplicitString `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion bool                    `short:"V" long:"version" description:"Display version information and exit"`
	AppDataDir  *cfgutil.ExplicitString `short:"A" long:"appdata" description:"Application data directory for the bridge identity and state"`
	TestNet3    bool                    `long:"testnet" description:"Use the test Bitcoin network (version 3) (default mainnet)"`
	TestNet4    bool                    `long:"testnet4" description:"Use the test Bitcoin network (version 4) (default mainnet)"`
	SigNet      bool                    `long:"signet" description:"Use the signet test network (default mainnet)"`
	RegTest     bool                    `long:"regtest" description:"Use the regression test network (default mainnet)"`
	SimNet      bool                    `long:"simnet" description:"Use the simulation test network (default mainnet)"`
	DebugLevel  string                  `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	LogDir      string                  `long:"logdir" description:"Directory to log output."`
	Profile     string                  `long:"profile" description:"Enable HTTP profiling on given port -- NOTE port must be between 1024 and 65536"`
	DBTimeout   time.Duration           `long:"dbtimeout" description:"The timeout value to use when opening the bridge database."`

	// Backend options
	Backend            string        `long:"backend" choice:"electrum" choice:"bitcoind" description:"Chain backend to query"`
	Electrum           string        `long:"electrum" description:"Hostname/IP and port of the Electrum server (default port: 50001, testnet: 60001, signet: 60601, regtest: 60401)"`
	ElectrumTLS        bool          `long:"electrumtls" description:"Connect to the Electrum server over TLS"`
	ElectrumSkipVerify bool          `long:"electrumskipverify" description:"Do not verify the Electrum server certificate"`
	Bitcoind           string        `long:"bitcoind" description:"Hostname/IP and port of the bitcoind RPC server (default port: 8332, testnet: 18332, signet: 38332, regtest: 18443)"`
	BitcoindUser       string        `long:"bitcoinduser" description:"Username for bitcoind RPC authentication"`
	BitcoindPass       string        `long:"bitcoindpass" default-mask:"-" description:"Password for bitcoind RPC authentication"`
	BackendCooldown    time.Duration `long:"backendcooldown" description:"How long backend calls are refused after one times out"`

	// Nostr options
	Relays      []string      `long:"relay" description:"Nostr relay to listen and publish on (may be repeated)"`
	Proxy       string        `long:"proxy" description:"Connect to relays via SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	ProxyUser   string        `long:"proxyuser" description:"Username for proxy server"`
	ProxyPass   string        `long:"proxypass" default-mask:"-" description:"Password for proxy server"`
	EventMaxAge time.Duration `long:"eventmaxage" description:"Ignore request events older than this when subscribing"`
	NoQR        bool          `long:"noqr" description:"Do not print the pairing QR code at startup"`

	// Operations
	MetricsListen string `long:"metricslisten" description:"Serve prometheus metrics on this interface/port (disabled by default)"`
}

// cleanAndExpandPath expands environement variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultAppDataDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows cmd.exe-style
	// %VARIABLE%, but they variables can still be expanded via POSIX-style
	// $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical", "off":
		return true
	}
	return false
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "the specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := subsystemLoggers[subsysID]; !exists {
			str := "the specified subsystem [%v] is invalid -- " +
				"supported subsytems %v"
			return fmt.Errorf(str, subsysID, supportedSubsystems())
		}

		// Validate log level.
		if !validLogLevel(logLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// defaultConfig returns a config populated with default values.
func defaultConfig() config {
	return config{
		ConfigFile:      cfgutil.NewExplicitString(defaultConfigFile),
		AppDataDir:      cfgutil.NewExplicitString(defaultAppDataDir),
		DebugLevel:      defaultLogLevel,
		LogDir:          defaultLogDir,
		DBTimeout:       store.DefaultDBTimeout,
		Backend:         defaultBackend,
		BackendCooldown: gate.DefaultCooldownPeriod,
		EventMaxAge:     store.DefaultEventMaxAge,
	}
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in nostrbridge functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take
// precedence.
func loadConfig() (*config, []string, error) {
	cfg := defaultConfig()

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	_, err := preParser.Parse()
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			preParser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	// A config file inside an explicitly set app data directory takes
	// precedence over the default one.
	configFilePath := preCfg.ConfigFile.Value
	if preCfg.AppDataDir.ExplicitlySet() && !preCfg.ConfigFile.ExplicitlySet() {
		configFilePath = filepath.Join(
			cleanAndExpandPath(preCfg.AppDataDir.Value),
			defaultConfigFilename,
		)
	}

	// Load additional config from file.
	var configFileError error
	parser := flags.NewParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(configFilePath)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
			return nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	if err := validateConfig(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation.  After log rotation has been initialized,
	// the logger variables may be used.
	initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	setLogLevels(defaultLogLevel)

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("loadConfig: %v", err)
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	// Warn about missing config file after the final command line parse
	// succeeds.  This prevents the warning on help messages and invalid
	// options.
	if configFileError != nil {
		log.Warnf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}

// validateConfig selects the active network, normalizes addresses and paths
// and checks option combinations.  It does not touch the logging system.
func validateConfig(cfg *config) error {
	const funcName = "loadConfig"

	// Choose the active network params based on the selected network.
	// Multiple networks can't be selected simultaneously.
	numNets := 0
	activeNet = &netparams.MainNetParams
	if cfg.TestNet3 {
		activeNet = &netparams.TestNet3Params
		numNets++
	}
	if cfg.TestNet4 {
		activeNet = &netparams.TestNet4Params
		numNets++
	}
	if cfg.SigNet {
		activeNet = &netparams.SigNetParams
		numNets++
	}
	if cfg.RegTest {
		activeNet = &netparams.RegressionNetParams
		numNets++
	}
	if cfg.SimNet {
		activeNet = &netparams.SimNetParams
		numNets++
	}
	if numNets > 1 {
		return fmt.Errorf("%s: the testnet, testnet4, signet, regtest "+
			"and simnet params can't be used together -- choose one",
			funcName)
	}

	cfg.AppDataDir.Value = cleanAndExpandPath(cfg.AppDataDir.Value)

	// Logs go below the app data dir unless a log dir was given.
	if cfg.LogDir == defaultLogDir && cfg.AppDataDir.ExplicitlySet() {
		cfg.LogDir = filepath.Join(cfg.AppDataDir.Value,
			defaultLogDirname)
	}

	// Append the network type to the log directory so it is "namespaced"
	// per network.
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.LogDir = filepath.Join(cfg.LogDir, activeNet.Params.Name)

	var err error
	switch cfg.Backend {
	case backendElectrum:
		if cfg.Electrum == "" {
			cfg.Electrum = defaultElectrumHost
		}
		cfg.Electrum, err = cfgutil.NormalizeAddress(
			cfg.Electrum, activeNet.ElectrumDefaultPort(cfg.ElectrumTLS),
		)
		if err != nil {
			return fmt.Errorf("%s: invalid electrum address: %v",
				funcName, err)
		}

	case backendBitcoind:
		if cfg.Bitcoind == "" {
			cfg.Bitcoind = defaultBitcoindHost
		}
		cfg.Bitcoind, err = cfgutil.NormalizeAddress(
			cfg.Bitcoind, activeNet.BitcoindRPCPort,
		)
		if err != nil {
			return fmt.Errorf("%s: invalid bitcoind address: %v",
				funcName, err)
		}
		if cfg.BitcoindUser == "" || cfg.BitcoindPass == "" {
			return fmt.Errorf("%s: --bitcoinduser and "+
				"--bitcoindpass are required with the bitcoind "+
				"backend", funcName)
		}

	default:
		return fmt.Errorf("%s: unknown backend %q", funcName,
			cfg.Backend)
	}

	if cfg.BackendCooldown <= 0 {
		return fmt.Errorf("%s: --backendcooldown must be positive",
			funcName)
	}
	if cfg.EventMaxAge <= 0 {
		return fmt.Errorf("%s: --eventmaxage must be positive",
			funcName)
	}

	if len(cfg.Relays) == 0 {
		cfg.Relays = defaultRelays
	}
	cfg.Relays, err = cfgutil.NormalizeRelayURLs(cfg.Relays)
	if err != nil {
		return fmt.Errorf("%s: %v", funcName, err)
	}

	if cfg.Proxy != "" {
		cfg.Proxy, err = cfgutil.NormalizeAddress(cfg.Proxy, "9050")
		if err != nil {
			return fmt.Errorf("%s: invalid proxy address: %v",
				funcName, err)
		}
	}

	return nil
}

// networkDir returns the directory name of a network directory to hold
// the bridge state.
func networkDir(dataDir string, chainParams *chaincfg.Params) string {
	netname := chainParams.Name

	// For now, we must always name the testnet data directory as "testnet"
	// and not "testnet3" or any other version, as the chaincfg testnet3
	// paramaters will likely be switched to being named "testnet3" in the
	// future.  This is done to future proof that change, and an upgrade
	// plan to move the testnet3 data directory can be worked out later.
	if chainParams.Net == chaincfg.TestNet3Params.Net {
		netname = "testnet"
	}

	return filepath.Join(dataDir, netname)
}
