package menv

import (
	"time"

	"github.com/the-dev-tools/apirun/pkg/idwrap"
)

type Env struct {
	ID          idwrap.IDWrap
	Name        string
	Description string
	Updated     time.Time
}
