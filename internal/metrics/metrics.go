package metrics

import "expvar"

// 进程级调试计数（/debug/vars），与 Prometheus 指标互补：这里只放 SSOT 健康相关的量。
var (
	PositionWrites        = expvar.NewInt("position_writes")
	PositionWriteFailures = expvar.NewInt("position_write_failures")
	PositionReadFailures  = expvar.NewInt("position_read_failures")
	ForcedReplacements    = expvar.NewInt("position_forced_replacements")
	JournalWriteFailures  = expvar.NewInt("journal_write_failures")
	SinkPanics            = expvar.NewInt("sink_panics")
	AlertsSuppressed      = expvar.NewInt("alerts_suppressed")
)
