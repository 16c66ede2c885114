// Package session owns the client-side state for one signed-in user.
//
// A Session is created at login and closed at logout. All cache mutations
// happen on a single event loop: stream events, resync snapshots and reads
// through View are serialized there. Every time the stream (re)connects the
// session refetches full state from the read API, because the server does
// not replay events a disconnected client missed. Events that arrive while
// that refetch is in flight are held and applied after the snapshot.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/domain"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/reconcile"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// Subscriber is the real-time stream capability. Handlers are registered
// before Connect and are called from a single goroutine, connect signals and
// events in the order they happened.
type Subscriber interface {
	Connect(ctx context.Context) error
	Disconnect() error
	OnConnect(fn func())
	OnEvent(fn func(msg []byte))
}

// Snapshot is the authoritative state fetched during a resync. A nil slice
// leaves the matching cache untouched.
type Snapshot struct {
	Vitals        []domain.VitalReading
	Alerts        []domain.AlertView
	Notifications []reconcile.Notification
	Appointments  []reconcile.Appointment
}

// Resyncer fetches a full Snapshot.
type Resyncer interface {
	Fetch(ctx context.Context) (*Snapshot, error)
}

// Config tunes the event loop.
type Config struct {
	// ResyncRetry is the wait before retrying a failed resync.
	ResyncRetry time.Duration
	// MaxBuffered caps events held during a resync; past it the held events
	// are dropped and the resync restarts.
	MaxBuffered int
}

type input struct {
	msg       []byte
	connected bool
}

type resyncResult struct {
	gen  uint64
	snap *Snapshot
	err  error
}

type view struct {
	fn   func(*reconcile.Caches)
	done chan struct{}
}

// Session wires a Subscriber and a Resyncer to a set of caches.
type Session struct {
	sub      Subscriber
	resyncer Resyncer
	cfg      Config
	logger   *zap.Logger

	caches *reconcile.Caches
	router *reconcile.Router

	inbox   chan input
	views   chan view
	results chan resyncResult

	ready     chan struct{}
	readyOnce sync.Once
	stop      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
	cancel    context.CancelFunc

	// owned by the event loop
	gen       uint64
	resyncing bool
	pending   [][]byte
}

// New creates a session with empty caches. Nothing connects until Start.
func New(sub Subscriber, resyncer Resyncer, cfg Config, logger *zap.Logger) *Session {
	if cfg.ResyncRetry <= 0 {
		cfg.ResyncRetry = 2 * time.Second
	}
	if cfg.MaxBuffered <= 0 {
		cfg.MaxBuffered = 1024
	}
	caches := reconcile.NewCaches(logger)
	return &Session{
		sub:      sub,
		resyncer: resyncer,
		cfg:      cfg,
		logger:   logger,
		caches:   caches,
		router:   reconcile.NewRouter(caches, logger),
		inbox:    make(chan input),
		views:    make(chan view),
		results:  make(chan resyncResult),
		ready:    make(chan struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start connects the stream and blocks until the first resync has been
// installed or ctx ends. The session keeps running after ctx ends; call
// Close to stop it.
func (s *Session) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.sub.OnConnect(func() { s.push(input{connected: true}) })
	s.sub.OnEvent(func(msg []byte) { s.push(input{msg: msg}) })
	go s.loop(loopCtx)

	if err := s.sub.Connect(ctx); err != nil {
		s.Close() //nolint:errcheck
		return fmt.Errorf("connect: %w", err)
	}

	select {
	case <-s.ready:
		s.logger.Info("session ready")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stop:
		return ErrClosed
	}
}

// View runs fn on the event loop with read access to the caches. fn must
// not retain the caches or block.
func (s *Session) View(ctx context.Context, fn func(*reconcile.Caches)) error {
	v := view{fn: fn, done: make(chan struct{})}
	select {
	case s.views <- v:
	case <-s.stop:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-v.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects the stream, stops the loop and clears every cache. It
// is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stop)
		err = s.sub.Disconnect()
		if s.cancel != nil {
			s.cancel()
			<-s.done
		}
		s.caches.Clear()
		s.logger.Info("session closed")
	})
	return err
}

func (s *Session) push(in input) {
	select {
	case s.inbox <- in:
	case <-s.stop:
	}
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-s.inbox:
			switch {
			case in.connected:
				s.beginResync(ctx)
			case s.resyncing:
				s.hold(ctx, in.msg)
			default:
				s.router.Handle(in.msg)
			}
		case res := <-s.results:
			s.finishResync(ctx, res)
		case v := <-s.views:
			v.fn(s.caches)
			close(v.done)
		}
	}
}

// beginResync supersedes any resync in flight. Held events are dropped
// because the new snapshot is fetched after they were delivered.
func (s *Session) beginResync(ctx context.Context) {
	s.gen++
	s.resyncing = true
	s.pending = nil

	gen := s.gen
	s.logger.Debug("resync started", zap.Uint64("generation", gen))
	go func() {
		snap, err := s.resyncer.Fetch(ctx)
		select {
		case s.results <- resyncResult{gen: gen, snap: snap, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (s *Session) hold(ctx context.Context, msg []byte) {
	if len(s.pending) >= s.cfg.MaxBuffered {
		s.logger.Warn("too many events during resync, restarting",
			zap.Int("held", len(s.pending)))
		s.beginResync(ctx)
		return
	}
	s.pending = append(s.pending, msg)
}

func (s *Session) finishResync(ctx context.Context, res resyncResult) {
	if res.gen != s.gen {
		return
	}
	if res.err != nil {
		s.logger.Warn("resync failed",
			zap.Error(res.err),
			zap.Duration("retry_in", s.cfg.ResyncRetry))
		time.AfterFunc(s.cfg.ResyncRetry, func() {
			if ctx.Err() == nil {
				s.push(input{connected: true})
			}
		})
		return
	}

	s.install(res.snap)
	held := s.pending
	s.pending = nil
	s.resyncing = false
	for _, msg := range held {
		s.router.Handle(msg)
	}

	s.logger.Debug("resync installed",
		zap.Uint64("generation", res.gen),
		zap.Int("replayed", len(held)),
		zap.Int("vitals", s.caches.Vitals.Len()),
		zap.Int("alerts", s.caches.Alerts.Len()))
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *Session) install(snap *Snapshot) {
	if snap == nil {
		return
	}
	if snap.Vitals != nil {
		s.caches.Vitals.Replace(snap.Vitals)
	}
	if snap.Alerts != nil {
		s.caches.Alerts.Replace(snap.Alerts)
	}
	if snap.Notifications != nil {
		s.caches.Notifications.Replace(snap.Notifications)
	}
	if snap.Appointments != nil {
		s.caches.Appointments.Replace(snap.Appointments)
	}
}
