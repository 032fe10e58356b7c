package sqlstore

import "github.com/goliatone/go-identity-sync/core"

var (
	_ core.UserStore   = (*UserStore)(nil)
	_ core.UserStore   = (*CachedUserStore)(nil)
	_ core.DedupLedger = (*DedupLedger)(nil)
)
