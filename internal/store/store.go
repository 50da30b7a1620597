// Package store owns files, loggers, levels, settings, filters and logs.
//
// All mutations are queued to a single goroutine (Run) and applied one at a
// time. Each applied mutation publishes a new immutable Snapshot, which is
// readable at any time through Snapshot and pushed to subscribers.
package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oicur0t/watchlogs/internal/normalize"
	"github.com/oicur0t/watchlogs/pkg/models"
	"go.uber.org/zap"
)

var (
	ErrUnknownFile   = errors.New("unknown file")
	ErrUnknownLogger = errors.New("unknown logger")
	ErrUnknownLevel  = errors.New("unknown level")
	ErrUnknownLog    = errors.New("unknown log")
	ErrUnknownNode   = errors.New("unknown or empty payload node")
	ErrExists        = errors.New("already exists")
	ErrStale         = errors.New("stale read")
	ErrClosed        = errors.New("store is not running")
)

// Initial is the state the store starts from, usually restored preferences
type Initial struct {
	Files    []models.File
	Loggers  []models.Logger
	Levels   []models.Level
	Settings models.Settings
	Filters  models.Filters
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source used for receive times and clears
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithQueueSize sets the mutation queue length
func WithQueueSize(n int) Option {
	return func(s *Store) { s.queueSize = n }
}

type op struct {
	name  string
	apply func(cur *Snapshot) (*Snapshot, error)
	done  chan error
}

// Store is the single-writer owner of all shared state
type Store struct {
	logger    *zap.Logger
	norm      *normalize.Normalizer
	now       func() time.Time
	queueSize int

	ops     chan op
	stopped chan struct{}
	running atomic.Bool
	current atomic.Pointer[Snapshot]

	// epoch is only touched by the Run goroutine
	epoch uint64

	subMu   sync.Mutex
	subs    map[int]chan *Snapshot
	nextSub int
}

// New creates a store. Call Run to start applying mutations.
func New(logger *zap.Logger, norm *normalize.Normalizer, initial Initial, opts ...Option) *Store {
	s := &Store{
		logger:    logger,
		norm:      norm,
		now:       time.Now,
		queueSize: 64,
		stopped:   make(chan struct{}),
		subs:      make(map[int]chan *Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ops = make(chan op, s.queueSize)

	snap := &Snapshot{
		Loggers:  append([]models.Logger(nil), initial.Loggers...),
		Levels:   append([]models.Level(nil), initial.Levels...),
		Settings: initial.Settings,
		Filters:  initial.Filters,
	}
	if snap.Filters.Duration == "" {
		snap.Filters.Duration = models.DurationEver
	}
	sortLevels(snap.Levels)

	seen := make(map[string]bool, len(initial.Files))
	for _, f := range initial.Files {
		if f.Path == "" || seen[f.Path] {
			continue
		}
		seen[f.Path] = true
		s.epoch++
		f.Epoch = s.epoch
		if f.Name == "" {
			f.Name = models.DisplayName(f.Path)
		}
		snap.Files = append(snap.Files, f)
	}
	s.current.Store(snap)
	return s
}

// Run applies queued mutations until ctx is done
func (s *Store) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("store is already running")
	}
	defer close(s.stopped)

	s.logger.Debug("Store started")
	for {
		select {
		case <-ctx.Done():
			s.closeSubscribers()
			return ctx.Err()

		case o := <-s.ops:
			o.done <- s.apply(o)
		}
	}
}

func (s *Store) apply(o op) error {
	cur := s.current.Load()
	next, err := o.apply(cur)
	if err != nil {
		switch {
		case errors.Is(err, ErrStale):
			s.logger.Debug("Discarding stale mutation", zap.String("op", o.name), zap.Error(err))
		default:
			s.logger.Warn("Ignoring mutation", zap.String("op", o.name), zap.Error(err))
		}
		return err
	}
	if next == nil {
		return nil
	}

	next.Revision = cur.Revision + 1
	s.current.Store(next)
	s.publish(next)
	return nil
}

// do queues fn and waits for the result
func (s *Store) do(ctx context.Context, name string, fn func(cur *Snapshot) (*Snapshot, error)) error {
	o := op{name: name, apply: fn, done: make(chan error, 1)}

	select {
	case s.ops <- o:
	case <-s.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-o.done:
		return err
	case <-s.stopped:
		// Run may have applied the op right before stopping
		select {
		case err := <-o.done:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the latest published state
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// VisibleLogs returns the logs currently passing switches and filters
func (s *Store) VisibleLogs() []*models.Log {
	return s.Snapshot().Visible(s.now())
}

// Subscribe registers an observer. The channel holds at most one pending
// snapshot; a newer one replaces an unread older one. It receives the
// current snapshot right away and is closed when the store stops or when
// the returned cancel func is called.
func (s *Store) Subscribe() (<-chan *Snapshot, func()) {
	ch := make(chan *Snapshot, 1)

	s.subMu.Lock()
	ch <- s.current.Load()
	if s.subs == nil {
		// store already stopped
		s.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

func (s *Store) publish(snap *Snapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Drop the unread older snapshot
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *Store) closeSubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.subs = nil
}

func (s *Store) rules(snap *Snapshot) *normalize.Rules {
	return normalize.NewRules(snap.Loggers, snap.Levels, snap.Settings)
}

func (s *Store) nextEpoch() uint64 {
	s.epoch++
	return s.epoch
}
