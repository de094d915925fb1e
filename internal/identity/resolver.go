// Package identity maps source-system user identifiers to destination
// usernames via a static mapping table.
package identity

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// opaqueIDMinLen is the length threshold of the opaque-account-id heuristic:
// identifiers containing a colon and longer than this are internal account
// ids, never human-readable names, and are never mapped.
const opaqueIDMinLen = 20

// Resolver resolves source identifiers (username, display name, or opaque
// account id) to destination usernames. A miss is warned about exactly once
// per unique identifier for the lifetime of the Resolver.
type Resolver struct {
	table  map[string]string
	warned map[string]struct{}
}

// New creates a Resolver over the given mapping table. The map is used as-is
// and must not be mutated by the caller afterward.
func New(table map[string]string) *Resolver {
	if table == nil {
		table = map[string]string{}
	}
	return &Resolver{
		table:  table,
		warned: map[string]struct{}{},
	}
}

// LoadTable reads a YAML mapping file (source identifier -> destination
// username). A missing file is not an error: migrations can run without
// attribution mapping, every identity simply resolves to nothing.
func LoadTable(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("user mapping file not found, identities will not be mapped", "path", path)
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading user mapping %s: %w", path, err)
	}

	table := map[string]string{}
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parsing user mapping %s: %w", path, err)
	}

	slog.Info("user mapping loaded", "path", path, "entries", len(table))
	return table, nil
}

// Resolve maps a source identifier to a destination username. It returns
// false for opaque account ids, for empty identifiers, and for identifiers
// absent from the table (exact match first, then case-insensitive).
func (r *Resolver) Resolve(identifier string) (string, bool) {
	if identifier == "" {
		return "", false
	}

	if strings.Contains(identifier, ":") && len(identifier) > opaqueIDMinLen {
		slog.Debug("skipping mapping for opaque account id", "id_prefix", identifier[:opaqueIDMinLen])
		return "", false
	}

	if mapped, ok := r.table[identifier]; ok {
		return mapped, true
	}

	for key, mapped := range r.table {
		if strings.EqualFold(key, identifier) {
			return mapped, true
		}
	}

	if _, seen := r.warned[identifier]; !seen {
		r.warned[identifier] = struct{}{}
		slog.Warn("no destination mapping for source user, attribution will be lost",
			"user", identifier,
		)
	}
	return "", false
}

// ResolveOrOriginal returns the mapped destination username, or the original
// identifier when no mapping exists.
func (r *Resolver) ResolveOrOriginal(identifier string) string {
	if mapped, ok := r.Resolve(identifier); ok {
		return mapped
	}
	return identifier
}
