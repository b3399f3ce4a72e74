package varstore

import (
	"context"
	"log/slog"
	"sync"

	"github.com/the-dev-tools/apirun/pkg/idwrap"
	"github.com/the-dev-tools/apirun/pkg/model/mcollection"
	"github.com/the-dev-tools/apirun/pkg/model/menv"
	"github.com/the-dev-tools/apirun/pkg/model/mvar"
)

// MemStore is an in-process Store used by tests and by the CLI when no
// database path is configured.
type MemStore struct {
	mt     sync.Mutex
	envs   map[idwrap.IDWrap][]mvar.Var
	nodes  map[idwrap.IDWrap]mcollection.Node
	colls  map[idwrap.IDWrap][]mvar.Var
	logger *slog.Logger
}

func NewMemStore(logger *slog.Logger) *MemStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemStore{
		envs:   make(map[idwrap.IDWrap][]mvar.Var),
		nodes:  make(map[idwrap.IDWrap]mcollection.Node),
		colls:  make(map[idwrap.IDWrap][]mvar.Var),
		logger: logger,
	}
}

func (s *MemStore) SetEnvironment(env menv.Env, vars []mvar.Var) {
	s.mt.Lock()
	defer s.mt.Unlock()
	s.envs[env.ID] = append([]mvar.Var(nil), vars...)
}

func (s *MemStore) SetCollectionNode(node mcollection.Node, vars []mvar.Var) {
	s.mt.Lock()
	defer s.mt.Unlock()
	s.nodes[node.ID] = node
	if vars != nil {
		s.colls[node.ID] = append([]mvar.Var(nil), vars...)
	}
}

func (s *MemStore) Get(ctx context.Context, kind ScopeKind, id idwrap.IDWrap) ([]mvar.Var, error) {
	s.mt.Lock()
	defer s.mt.Unlock()

	switch kind {
	case ScopeKindEnvironment:
		vars, ok := s.envs[id]
		if !ok {
			return nil, ErrScopeNotFound
		}
		return append([]mvar.Var(nil), vars...), nil
	case ScopeKindCollection:
		if _, ok := s.nodes[id]; !ok {
			return nil, ErrScopeNotFound
		}
		rootID, ok := s.resolveRootLocked(id)
		if !ok {
			// A dangling or over-deep chain reads as an empty scope.
			return nil, nil
		}
		return append([]mvar.Var(nil), s.colls[rootID]...), nil
	default:
		return nil, ErrScopeNotFound
	}
}

func (s *MemStore) Patch(ctx context.Context, kind ScopeKind, id idwrap.IDWrap, updates map[string]mvar.Update) error {
	if len(updates) == 0 {
		return nil
	}

	s.mt.Lock()
	defer s.mt.Unlock()

	switch kind {
	case ScopeKindEnvironment:
		vars, ok := s.envs[id]
		if !ok {
			return ErrScopeNotFound
		}
		s.envs[id] = ApplyUpdates(id, vars, updates)
		return nil
	case ScopeKindCollection:
		rootID, ok := s.resolveRootLocked(id)
		if !ok {
			return ErrScopeNotFound
		}
		s.colls[rootID] = ApplyUpdates(rootID, s.colls[rootID], updates)
		return nil
	default:
		return ErrScopeNotFound
	}
}

// resolveRootLocked walks the parent chain to the owning root collection,
// bounded by MaxFolderDepth.
func (s *MemStore) resolveRootLocked(id idwrap.IDWrap) (idwrap.IDWrap, bool) {
	node, ok := s.nodes[id]
	if !ok {
		return idwrap.IDWrap{}, false
	}
	for depth := 0; depth < MaxFolderDepth; depth++ {
		if node.Kind == mcollection.NodeKindRoot {
			return node.ID, true
		}
		if node.ParentID == nil {
			return idwrap.IDWrap{}, false
		}
		parent, ok := s.nodes[*node.ParentID]
		if !ok {
			return idwrap.IDWrap{}, false
		}
		node = parent
	}
	s.logger.Warn("collection ancestry exceeds max depth, treating as no variables",
		"scope_id", id.String(), "max_depth", MaxFolderDepth)
	return idwrap.IDWrap{}, false
}
