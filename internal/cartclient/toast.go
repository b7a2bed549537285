package cartclient

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type ToastLevel string

const (
	ToastSuccess ToastLevel = "success"
	ToastError   ToastLevel = "error"
	ToastInfo    ToastLevel = "info"
)

// Toaster shows a notification to the user.
type Toaster interface {
	Show(level ToastLevel, message string)
}

type ToasterFunc func(level ToastLevel, message string)

func (f ToasterFunc) Show(level ToastLevel, message string) { f(level, message) }

// LogToaster writes notifications to the log; headless clients use it.
type LogToaster struct {
	log *zap.Logger
}

func NewLogToaster(log *zap.Logger) *LogToaster {
	return &LogToaster{log: log}
}

func (t *LogToaster) Show(level ToastLevel, message string) {
	if level == ToastError {
		t.log.Warn("toast", zap.String("level", string(level)), zap.String("message", message))
		return
	}
	t.log.Info("toast", zap.String("level", string(level)), zap.String("message", message))
}

const DefaultToastWindow = 2 * time.Second

type toastKey struct {
	level   ToastLevel
	message string
}

// DedupToaster drops a notification identical to one shown within the window.
type DedupToaster struct {
	next   Toaster
	clock  Clock
	window time.Duration

	mu   sync.Mutex
	seen map[toastKey]time.Time
}

func NewDedupToaster(next Toaster, clock Clock, window time.Duration) *DedupToaster {
	if clock == nil {
		clock = SystemClock
	}
	if window <= 0 {
		window = DefaultToastWindow
	}
	return &DedupToaster{next: next, clock: clock, window: window, seen: make(map[toastKey]time.Time)}
}

func (t *DedupToaster) Show(level ToastLevel, message string) {
	now := t.clock.Now()
	key := toastKey{level, message}

	t.mu.Lock()
	for k, at := range t.seen {
		if now.Sub(at) >= t.window {
			delete(t.seen, k)
		}
	}
	if _, dup := t.seen[key]; dup {
		t.mu.Unlock()
		return
	}
	t.seen[key] = now
	t.mu.Unlock()

	t.next.Show(level, message)
}
