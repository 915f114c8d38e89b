package console

import (
	"sync"
	"time"

	"github.com/dreamware/clusterctl/internal/orchestrator"
)

const defaultActivitySize = 64

// Activity is one operation as seen by the console.
type Activity struct {
	Key       orchestrator.OperationKey `json:"key"`
	StartedAt time.Time                 `json:"startedAt"`
	SettledAt *time.Time                `json:"settledAt,omitempty"`
	Error     string                    `json:"error,omitempty"`
}

// Pending reports whether the operation has not settled yet. Controls for
// its target stay disabled while it is pending.
func (a Activity) Pending() bool {
	return a.SettledAt == nil
}

// ActivityLog is an orchestrator.OperationListener that keeps the most
// recent operations, newest last, for display.
type ActivityLog struct {
	mu      sync.Mutex
	size    int
	entries []Activity
}

// NewActivityLog keeps at most size operations. Zero means 64.
func NewActivityLog(size int) *ActivityLog {
	if size <= 0 {
		size = defaultActivitySize
	}
	return &ActivityLog{size: size}
}

func (l *ActivityLog) OperationStarted(key orchestrator.OperationKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Activity{Key: key, StartedAt: time.Now()})
	if over := len(l.entries) - l.size; over > 0 {
		l.entries = append(l.entries[:0:0], l.entries[over:]...)
	}
}

func (l *ActivityLog) OperationSettled(key orchestrator.OperationKey, err error) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	// A key is pending at most once, so the newest pending match is it.
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := &l.entries[i]
		if e.Key == key && e.Pending() {
			e.SettledAt = &now
			if err != nil {
				e.Error = err.Error()
			}
			break
		}
	}
	if err != nil {
		plog.Warningf("%s failed: %v", key, err)
	} else {
		plog.Infof("%s done", key)
	}
}

// Recent returns a copy of the kept operations, oldest first.
func (l *ActivityLog) Recent() []Activity {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Activity(nil), l.entries...)
}
