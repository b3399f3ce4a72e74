// Package sqlitestore persists variable scopes in a local sqlite database.
// It is the durable Store used by the CLI; patches run as a single
// read-merge-write transaction per scope so concurrent executions never lose
// updates (last writer wins per key).
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/the-dev-tools/apirun/pkg/idwrap"
	"github.com/the-dev-tools/apirun/pkg/model/mcollection"
	"github.com/the-dev-tools/apirun/pkg/model/menv"
	"github.com/the-dev-tools/apirun/pkg/model/mvar"
	"github.com/the-dev-tools/apirun/pkg/varstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS environments (
	id      BLOB PRIMARY KEY,
	name    TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS collection_nodes (
	id        BLOB PRIMARY KEY,
	parent_id BLOB,
	kind      INTEGER NOT NULL,
	name      TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS variables (
	id         BLOB PRIMARY KEY,
	scope_kind INTEGER NOT NULL,
	scope_id   BLOB NOT NULL,
	var_key    TEXT NOT NULL,
	var_value  TEXT NOT NULL DEFAULT '',
	enabled    INTEGER NOT NULL DEFAULT 1,
	secret     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_variables_scope ON variables(scope_kind, scope_id);
`

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Serialized writes; modernc's driver requires a single writer anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

var _ varstore.Store = (*Store)(nil)

func (s *Store) CreateEnvironment(ctx context.Context, env menv.Env) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO environments (id, name) VALUES (?, ?)`, env.ID, env.Name)
	return err
}

func (s *Store) CreateCollectionNode(ctx context.Context, node mcollection.Node) error {
	var parent any
	if node.ParentID != nil {
		parent = *node.ParentID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO collection_nodes (id, parent_id, kind, name) VALUES (?, ?, ?, ?)`,
		node.ID, parent, int8(node.Kind), node.Name)
	return err
}

func (s *Store) CreateVariable(ctx context.Context, kind varstore.ScopeKind, v mvar.Var) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO variables (id, scope_kind, scope_id, var_key, var_value, enabled, secret)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, int8(kind), v.ScopeID, v.VarKey, v.Value, v.Enabled, v.Secret)
	return err
}

func (s *Store) Get(ctx context.Context, kind varstore.ScopeKind, id idwrap.IDWrap) ([]mvar.Var, error) {
	switch kind {
	case varstore.ScopeKindEnvironment:
		exists, err := s.rowExists(ctx, `SELECT 1 FROM environments WHERE id = ?`, id)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, varstore.ErrScopeNotFound
		}
		return s.readVars(ctx, kind, id)
	case varstore.ScopeKindCollection:
		rootID, found, err := s.resolveRoot(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		return s.readVars(ctx, kind, rootID)
	default:
		return nil, varstore.ErrScopeNotFound
	}
}

func (s *Store) Patch(ctx context.Context, kind varstore.ScopeKind, id idwrap.IDWrap, updates map[string]mvar.Update) error {
	if len(updates) == 0 {
		return nil
	}

	scopeID := id
	if kind == varstore.ScopeKindCollection {
		rootID, found, err := s.resolveRoot(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			return varstore.ErrScopeNotFound
		}
		scopeID = rootID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	vars, err := readVarsTx(ctx, tx, kind, scopeID)
	if err != nil {
		return err
	}
	merged := varstore.ApplyUpdates(scopeID, vars, updates)

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM variables WHERE scope_kind = ? AND scope_id = ?`, int8(kind), scopeID); err != nil {
		return err
	}
	for _, v := range merged {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO variables (id, scope_kind, scope_id, var_key, var_value, enabled, secret)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			v.ID, int8(kind), v.ScopeID, v.VarKey, v.Value, v.Enabled, v.Secret); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) rowExists(ctx context.Context, query string, id idwrap.IDWrap) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, query, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) readVars(ctx context.Context, kind varstore.ScopeKind, id idwrap.IDWrap) ([]mvar.Var, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scope_id, var_key, var_value, enabled, secret
		 FROM variables WHERE scope_kind = ? AND scope_id = ?`, int8(kind), id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanVars(rows)
}

func readVarsTx(ctx context.Context, tx *sql.Tx, kind varstore.ScopeKind, id idwrap.IDWrap) ([]mvar.Var, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, scope_id, var_key, var_value, enabled, secret
		 FROM variables WHERE scope_kind = ? AND scope_id = ?`, int8(kind), id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanVars(rows)
}

func scanVars(rows *sql.Rows) ([]mvar.Var, error) {
	var vars []mvar.Var
	for rows.Next() {
		var v mvar.Var
		if err := rows.Scan(&v.ID, &v.ScopeID, &v.VarKey, &v.Value, &v.Enabled, &v.Secret); err != nil {
			return nil, err
		}
		vars = append(vars, v)
	}
	return vars, rows.Err()
}

// resolveRoot walks the parent chain to the owning root collection, bounded
// by varstore.MaxFolderDepth.
func (s *Store) resolveRoot(ctx context.Context, id idwrap.IDWrap) (idwrap.IDWrap, bool, error) {
	current := id
	for depth := 0; depth < varstore.MaxFolderDepth; depth++ {
		var kind int8
		var parent []byte
		err := s.db.QueryRowContext(ctx,
			`SELECT kind, parent_id FROM collection_nodes WHERE id = ?`, current).Scan(&kind, &parent)
		if errors.Is(err, sql.ErrNoRows) {
			if depth == 0 {
				return idwrap.IDWrap{}, false, varstore.ErrScopeNotFound
			}
			return idwrap.IDWrap{}, false, nil
		}
		if err != nil {
			return idwrap.IDWrap{}, false, err
		}

		if mcollection.NodeKind(kind) == mcollection.NodeKindRoot {
			return current, true, nil
		}
		if parent == nil {
			return idwrap.IDWrap{}, false, nil
		}
		next, err := idwrap.NewFromBytes(parent)
		if err != nil {
			return idwrap.IDWrap{}, false, err
		}
		current = next
	}

	s.logger.Warn("collection ancestry exceeds max depth, treating as no variables",
		"scope_id", id.String(), "max_depth", varstore.MaxFolderDepth)
	return idwrap.IDWrap{}, false, nil
}
