// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package nostr

// Filter selects events in a subscription.
type Filter struct {
	Kinds   []int    `json:"kinds,omitempty"`
	Authors []string `json:"authors,omitempty"`
	PTags   []string `json:"#p,omitempty"`
	Since   int64    `json:"since,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// Matches applies the filter locally. Relays are not trusted to honor
// filters exactly.
func (f *Filter) Matches(e *Event) bool {
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, e.Kind) {
		return false
	}
	if len(f.Authors) > 0 && !containsStr(f.Authors, e.PubKey) {
		return false
	}
	if f.Since > 0 && e.CreatedAt < f.Since {
		return false
	}

	if len(f.PTags) > 0 {
		for _, p := range f.PTags {
			if e.Tags.Has("p", p) {
				return true
			}
		}

		return false
	}

	return true
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}

	return false
}

func containsStr(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}

	return false
}
