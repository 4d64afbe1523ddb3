// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// NormalizeAddress returns the normalized form of the address, adding a default
// port if necessary.  An error is returned if the address, even without a port,
// is not valid.
func NormalizeAddress(addr string, defaultPort string) (hostport string, err error) {
	// If the first SplitHostPort errors because of a missing port and not
	// for an invalid host, add the port.  If the second SplitHostPort
	// fails, then a port is not missing and the original error should be
	// returned.
	host, port, origErr := net.SplitHostPort(addr)
	if origErr == nil {
		return net.JoinHostPort(host, port), nil
	}
	addr = net.JoinHostPort(addr, defaultPort)
	_, _, err = net.SplitHostPort(addr)
	if err != nil {
		return "", origErr
	}
	return addr, nil
}

// NormalizeRelayURLs validates websocket relay URLs and returns them without
// duplicates or trailing slashes, in their original order.
func NormalizeRelayURLs(urls []string) ([]string, error) {
	var (
		normalized = make([]string, 0, len(urls))
		seenSet    = make(map[string]struct{})
	)

	for _, raw := range urls {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid relay %q: %w", raw, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return nil, fmt.Errorf("relay %q must use ws:// or "+
				"wss://", raw)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("relay %q lacks a host", raw)
		}

		u.Path = strings.TrimSuffix(u.Path, "/")
		relay := u.String()

		if _, seen := seenSet[relay]; !seen {
			normalized = append(normalized, relay)
			seenSet[relay] = struct{}{}
		}
	}

	return normalized, nil
}
