package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-identity-sync/core"
)

var (
	_ gocmd.Querier[GetUserMessage, core.UserRecord] = (*GetUserQuery)(nil)
	_ UserReader                                     = core.UserStore(nil)
)
