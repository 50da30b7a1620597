package watcher

import (
	"os"
	"sync"
	"time"

	"github.com/nxadm/tail/watch"
	"go.uber.org/zap"
	"gopkg.in/tomb.v1"
)

// pollBackend stats every file on an interval. It works on filesystems
// where inotify-style events are not delivered (network mounts, some
// containers).
type pollBackend struct {
	logger   *zap.Logger
	interval time.Duration

	mu    sync.Mutex
	tombs map[string]*tomb.Tomb
	emit  func(rawEvent)
	ready chan struct{}
}

// pollInterval guards the process-wide nxadm poll interval. It is written
// once, before the first poller starts; later intervals are ignored.
var pollInterval sync.Once

func newPollBackend(logger *zap.Logger, interval time.Duration) *pollBackend {
	pollInterval.Do(func() {
		if interval > 0 {
			watch.POLL_DURATION = interval
		}
	})
	if interval > 0 && interval != watch.POLL_DURATION {
		logger.Warn("Poll interval already set for this process, keeping it",
			zap.Duration("requested", interval),
			zap.Duration("interval", watch.POLL_DURATION))
	}
	return &pollBackend{
		logger:   logger,
		interval: watch.POLL_DURATION,
		tombs:    make(map[string]*tomb.Tomb),
		ready:    make(chan struct{}),
	}
}

func (b *pollBackend) watch(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.tombs[path]; ok {
		return nil
	}
	t := &tomb.Tomb{}
	b.tombs[path] = t
	go b.poll(path, t)
	return nil
}

func (b *pollBackend) unwatch(path string) error {
	b.mu.Lock()
	t, ok := b.tombs[path]
	delete(b.tombs, path)
	b.mu.Unlock()

	if ok {
		t.Kill(nil)
		t.Wait()
	}
	return nil
}

func (b *pollBackend) run(stop <-chan struct{}, emit func(rawEvent)) {
	b.mu.Lock()
	b.emit = emit
	close(b.ready)
	b.mu.Unlock()

	<-stop
}

func (b *pollBackend) send(t *tomb.Tomb, ev rawEvent) bool {
	select {
	case <-b.ready:
	case <-t.Dying():
		return false
	}
	b.emit(ev)
	return true
}

// poll follows one path through any number of create/delete cycles
func (b *pollBackend) poll(path string, t *tomb.Tomb) {
	defer t.Done()

	for {
		fw := watch.NewPollingFileWatcher(path)
		if err := fw.BlockUntilExists(t); err != nil {
			if err == tomb.ErrDying {
				return
			}
			b.logger.Warn("Failed to wait for file", zap.String("file", path), zap.Error(err))
			select {
			case <-time.After(b.interval):
				continue
			case <-t.Dying():
				return
			}
		}
		if !b.send(t, rawEvent{path: path, op: OpAdd}) {
			return
		}

		fi, err := os.Stat(path)
		if err != nil {
			continue
		}
		changes, err := fw.ChangeEvents(t, fi.Size())
		if err != nil {
			continue
		}

	follow:
		for {
			select {
			case <-t.Dying():
				return
			case <-changes.Modified:
				b.send(t, rawEvent{path: path, op: OpChange})
			case <-changes.Truncated:
				b.send(t, rawEvent{path: path, op: OpChange})
			case <-changes.Deleted:
				b.send(t, rawEvent{path: path, op: OpUnlink})
				break follow
			}
		}
	}
}

func (b *pollBackend) close() error {
	b.mu.Lock()
	tombs := b.tombs
	b.tombs = make(map[string]*tomb.Tomb)
	b.mu.Unlock()

	for _, t := range tombs {
		t.Kill(nil)
		t.Wait()
	}
	return nil
}
