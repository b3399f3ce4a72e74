package mvar

import "github.com/the-dev-tools/apirun/pkg/idwrap"

const (
	Prefix = "{{"
	Suffix = "}}"
)

const (
	PrefixSize = len(Prefix)
	SuffixSize = len(Suffix)
)

// Var is a single variable entry inside an environment or collection scope.
// Secret only affects display; resolution treats secret and plain values alike.
type Var struct {
	ID      idwrap.IDWrap
	ScopeID idwrap.IDWrap
	VarKey  string
	Value   string
	Enabled bool
	Secret  bool
}

// Update is a pending mutation against a scope: either a new value or an
// explicit unset. The zero value means "set to empty string".
type Update struct {
	Value string
	Unset bool
}

func Set(value string) Update {
	return Update{Value: value}
}

func Unset() Update {
	return Update{Unset: true}
}
