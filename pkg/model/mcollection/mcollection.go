package mcollection

import (
	"time"

	"github.com/the-dev-tools/apirun/pkg/idwrap"
)

type NodeKind int8

const (
	NodeKindUnspecified NodeKind = 0
	NodeKindRoot        NodeKind = 1
	NodeKindFolder      NodeKind = 2
)

// Node is one element of a collection tree. Requests reference a node, which
// may be a folder; variables live on the root collection node only.
type Node struct {
	ID       idwrap.IDWrap
	ParentID *idwrap.IDWrap
	Kind     NodeKind
	Name     string
	Updated  time.Time
}

func (n Node) GetCreatedTime() time.Time {
	return n.ID.Time()
}
