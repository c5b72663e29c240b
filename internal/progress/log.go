package progress

import (
	"fmt"
	"log/slog"
)

// LogManager implements Manager by writing plain log lines — used for
// non-interactive runs (CI, cron) where a live terminal bar isn't useful.
type LogManager struct {
	Logger *slog.Logger
}

func (m *LogManager) NewTracker(index, total int, filename string) Tracker {
	return &logTracker{logger: m.Logger, name: filename, index: index, total: total}
}

func (m *LogManager) Wait() {}

type logTracker struct {
	logger       *slog.Logger
	name         string
	index, total int
}

func (t *logTracker) SetStage(stage string) {
	t.logger.Info(fmt.Sprintf("[%d/%d] %s", t.index+1, t.total, t.name), "stage", stage)
}

func (t *logTracker) SetCounter(name string, value int64) {
	t.logger.Debug(fmt.Sprintf("[%d/%d] %s", t.index+1, t.total, t.name), name, value)
}

func (t *logTracker) LogWarning(msg string) {
	t.logger.Warn(fmt.Sprintf("[%d/%d] %s", t.index+1, t.total, t.name), "warning", msg)
}

func (t *logTracker) Done() {
	t.logger.Info(fmt.Sprintf("[%d/%d] %s", t.index+1, t.total, t.name), "stage", "done")
}
