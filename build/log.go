// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package build

import (
	"os"

	"github.com/btcsuite/btclog"
)

// LogType selects where package loggers write, chosen by build tag.
type LogType byte

const (
	// LogTypeNone disables logging.
	LogTypeNone LogType = iota

	// LogTypeStdOut writes every subsystem straight to stdout. Package
	// tests use it with the stdlog tag.
	LogTypeStdOut

	// LogTypeDefault hands subsystems to the daemon's shared backend,
	// which writes to stdout and the rotating log file.
	LogTypeDefault
)

// String returns a human readable identifier for the logging type.
func (t LogType) String() string {
	switch t {
	case LogTypeNone:
		return "none"
	case LogTypeStdOut:
		return "stdout"
	case LogTypeDefault:
		return "default"
	default:
		return "unknown"
	}
}

// NewSubLogger returns the logger for subsystem. genSubLogger builds it from
// the daemon's backend; when it is nil the logger is disabled unless the
// build writes to stdout.
func NewSubLogger(subsystem string,
	genSubLogger func(string) btclog.Logger) btclog.Logger {

	switch LoggingType {
	case LogTypeDefault:
		if genSubLogger != nil {
			return genSubLogger(subsystem)
		}

	// Only development builds may bypass the daemon backend.
	case LogTypeStdOut:
		if Deployment != Development {
			break
		}

		logger := btclog.NewBackend(os.Stdout).Logger(subsystem)
		level, _ := btclog.LevelFromString(LogLevel)
		logger.SetLevel(level)

		return logger
	}

	return btclog.Disabled
}
