// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package match

import (
	"strings"
	"sync"

	"github.com/gobwas/glob"

	"github.com/newswire/newswire/internal/protocol"
)

// maxPatternLen bounds the rule patterns that are compiled as globs. Longer
// values are only compared literally.
const maxPatternLen = 128

var patterns sync.Map // string -> glob.Glob, or nil for uncompilable patterns

// WantsAlert reports whether a client subscribed to ruleIDs should receive an
// event for ruleID. "*" accepts every rule; other entries match the rule ID
// exactly or as a glob pattern such as "price.*".
func WantsAlert(ruleIDs []string, ruleID string) bool {
	for _, id := range ruleIDs {
		if id == protocol.AllAlertRules || id == ruleID {
			return true
		}
		if ruleID != "" && isPattern(id) {
			if g := compiled(id); g != nil && g.Match(ruleID) {
				return true
			}
		}
	}
	return false
}

func isPattern(s string) bool {
	return len(s) <= maxPatternLen && strings.ContainsAny(s, "*?[{")
}

func compiled(pattern string) glob.Glob {
	if cached, ok := patterns.Load(pattern); ok {
		g, _ := cached.(glob.Glob)
		return g
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		patterns.Store(pattern, nil)
		return nil
	}
	patterns.Store(pattern, g)
	return g
}
