// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build !debug
// +build !debug

package build

// LogLevel specifies the default log level of stdout loggers.
var LogLevel = "info"
