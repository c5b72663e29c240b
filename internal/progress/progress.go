// Package progress reports per-file pipeline progress, either as live
// terminal bars (vbauerster/mpb) or as plain log lines for non-interactive
// runs.
package progress

// Tracker reports progress for one file moving through the pipeline.
type Tracker interface {
	SetStage(stage string)
	SetCounter(name string, value int64)
	LogWarning(msg string)
	Done()
}

// Manager creates a Tracker per file and waits for all of them at the end
// of a batch run.
type Manager interface {
	NewTracker(index, total int, filename string) Tracker
	Wait()
}
