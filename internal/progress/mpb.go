package progress

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// MPBManager implements Manager with one live terminal bar per file, using
// vbauerster/mpb the way this org's batch MRF tool does.
type MPBManager struct {
	container *mpb.Progress
	mu        sync.Mutex
}

// NewMPBManager starts a new multi-bar container.
func NewMPBManager() *MPBManager {
	return &MPBManager{container: mpb.New(mpb.WithWidth(60))}
}

func (m *MPBManager) NewTracker(index, total int, filename string) Tracker {
	stage := &atomic.Value{}
	stage.Store("")
	detail := &atomic.Value{}
	detail.Store("")

	bar := m.container.AddBar(1,
		mpb.PrependDecorators(
			decor.Name(fmt.Sprintf("[%d/%d] %s ", index+1, total, filename), decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.Any(func(decor.Statistics) string {
				s, d := stage.Load().(string), detail.Load().(string)
				if d != "" {
					return s + "  " + d
				}
				return s
			}),
		),
	)
	return &mpbTracker{bar: bar, stage: stage, detail: detail, mgr: m, name: filename}
}

func (m *MPBManager) Wait() { m.container.Wait() }

type mpbTracker struct {
	bar    *mpb.Bar
	stage  *atomic.Value
	detail *atomic.Value
	mgr    *MPBManager
	name   string
}

func (t *mpbTracker) SetStage(stage string) {
	t.stage.Store(stage)
	t.detail.Store("")
}

func (t *mpbTracker) SetCounter(name string, value int64) {
	t.detail.Store(fmt.Sprintf("%s: %s", name, humanCount(value)))
}

func (t *mpbTracker) LogWarning(msg string) {
	t.mgr.mu.Lock()
	defer t.mgr.mu.Unlock()
	logBar := t.mgr.container.AddBar(0,
		mpb.PrependDecorators(decor.Name(fmt.Sprintf("  [%s] %s", t.name, msg))),
	)
	logBar.Abort(false)
}

func (t *mpbTracker) Done() {
	t.bar.SetCurrent(1)
	t.bar.Abort(false) // complete without removing
}

// humanCount formats a number with comma separators, e.g. "1,234,567".
func humanCount(n int64) string {
	if n < 0 {
		return "-" + humanCount(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return humanCount(n/1000) + fmt.Sprintf(",%03d", n%1000)
}
