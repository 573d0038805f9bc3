package instrument

// NoopSink discards all events. Used when the event log is disabled.
type NoopSink struct{}

func (NoopSink) Enqueue(CompileEvent) {}
