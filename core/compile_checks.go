package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ DedupLedger = (*MemoryDedupLedger)(nil)
	_ DedupLedger = NopDedupLedger{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
