//nolint:revive // exported
package varstore

import (
	"context"
	"errors"

	"github.com/the-dev-tools/apirun/pkg/idwrap"
	"github.com/the-dev-tools/apirun/pkg/model/mvar"
)

type ScopeKind int8

const (
	ScopeKindEnvironment ScopeKind = 1
	ScopeKindCollection  ScopeKind = 2
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeKindEnvironment:
		return "environment"
	case ScopeKindCollection:
		return "collection"
	default:
		return "unknown"
	}
}

var ErrScopeNotFound = errors.New("scope not found")

// MaxFolderDepth bounds the folder-to-root walk. Folder trees should be
// acyclic by construction, but a corrupt or cyclic chain must terminate;
// exceeding the bound reads as "no variables found".
const MaxFolderDepth = 25

// Store is the persistence contract of the engine. Get for a collection
// scope resolves folder references to the owning root collection internally.
// Patch must be an atomic read-merge-write per scope record: an explicit
// unset removes the key, a set overwrites an existing entry's value or
// appends a new enabled, non-secret entry.
type Store interface {
	Get(ctx context.Context, kind ScopeKind, id idwrap.IDWrap) ([]mvar.Var, error)
	Patch(ctx context.Context, kind ScopeKind, id idwrap.IDWrap, updates map[string]mvar.Update) error
}

// ApplyUpdates merges pending updates into a variable slice, returning the
// merged copy. Shared by store implementations so patch semantics stay
// identical between them.
func ApplyUpdates(scopeID idwrap.IDWrap, vars []mvar.Var, updates map[string]mvar.Update) []mvar.Var {
	merged := make([]mvar.Var, 0, len(vars)+len(updates))
	seen := make(map[string]bool, len(vars))

	for _, v := range vars {
		update, ok := updates[v.VarKey]
		if !ok {
			merged = append(merged, v)
			continue
		}
		seen[v.VarKey] = true
		if update.Unset {
			continue
		}
		v.Value = update.Value
		merged = append(merged, v)
	}

	for key, update := range updates {
		if seen[key] || update.Unset {
			continue
		}
		merged = append(merged, mvar.Var{
			ID:      idwrap.NewNow(),
			ScopeID: scopeID,
			VarKey:  key,
			Value:   update.Value,
			Enabled: true,
		})
	}

	return merged
}
