package core

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
)

const (
	// DefaultBackoffBase is the delay before the first reconnection
	// attempt; each subsequent attempt doubles it.
	DefaultBackoffBase = 1000 * time.Millisecond
	// DefaultBackoffCap bounds the reconnection delay.
	DefaultBackoffCap = 30 * time.Second
	// DefaultMaxReconnects is the number of reconnection attempts
	// performed before a session gives up.
	DefaultMaxReconnects = 5
	// DefaultWatchBuffer is the capacity of a session's message
	// channel.
	DefaultWatchBuffer = 64
)

// WatchScope identifies what a session observes: a resource kind and
// either a single namespace or, with Namespace empty, the whole
// cluster. Namespaced and cluster-wide sessions share one
// implementation; the scope is the only difference.
type WatchScope struct {
	Resource  schema.GroupVersionResource
	Namespace string
}

// WatchOptions configures a watch session. The zero value of every
// tuning field selects the package default.
type WatchOptions struct {
	Scope         WatchScope
	LabelSelector string
	FieldSelector string

	// ResourceVersion is the cursor to resume from. Empty starts a
	// fresh watch from the current state.
	ResourceVersion string

	// DisableReconnect turns a transport failure into an immediate
	// terminal error instead of a backoff-and-retry cycle.
	DisableReconnect bool

	MaxReconnects int
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	Buffer        int
}

func (o *WatchOptions) applyDefaults() {
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = DefaultMaxReconnects
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = DefaultBackoffCap
	}
	if o.Buffer <= 0 {
		o.Buffer = DefaultWatchBuffer
	}
}

// WatchOpener opens a raw watch stream against the cluster. An empty
// namespace in the scope means cluster-wide.
type WatchOpener interface {
	OpenWatch(ctx context.Context, scope WatchScope, opts metav1.ListOptions) (watch.Interface, error)
}

// WatchMessageKind discriminates the variants of WatchMessage.
type WatchMessageKind int

const (
	// WatchConnected signals that a (re)connection succeeded and
	// change events will follow.
	WatchConnected WatchMessageKind = iota
	// WatchChange carries a resource change event.
	WatchChange
	// WatchFailed carries the terminal error. It is delivered at most
	// once, immediately before the channel closes.
	WatchFailed
)

// WatchMessage is the tagged union delivered on a session's channel.
// Exactly one of Event and Err is meaningful, selected by Kind.
type WatchMessage struct {
	Kind  WatchMessageKind
	Event ChangeEvent
	Err   *StatusError
}

// ChangeEvent is a single resource change observed by a session.
// Bookmark events are consumed internally and never appear here.
type ChangeEvent struct {
	Type   watch.EventType
	Object *unstructured.Unstructured
}

// WatchSession is a self-healing watch against one scope. It runs a
// single goroutine that owns the underlying transport and delivers
// messages on a bounded channel; the channel closes when the session
// reaches its terminal state, whether by Stop or by a terminal error.
type WatchSession struct {
	opener  WatchOpener
	opts    WatchOptions
	monitor Monitor
	log     *slog.Logger

	msgs   chan WatchMessage
	cancel context.CancelFunc

	stopOnce sync.Once

	mu       sync.Mutex
	active   bool
	cursor   string
	attempts int
	current  watch.Interface
}

// WatchUseCase creates watch sessions.
type WatchUseCase struct {
	opener  WatchOpener
	monitor Monitor
	log     *slog.Logger
}

func NewWatchUseCase(opener WatchOpener, monitor Monitor) *WatchUseCase {
	return &WatchUseCase{
		opener:  opener,
		monitor: monitor,
		log:     slog.Default().With("component", "watch"),
	}
}

// WatchNamespace starts a session scoped to one namespace.
func (uc *WatchUseCase) WatchNamespace(ctx context.Context, namespace string, opts WatchOptions) (*WatchSession, error) {
	if namespace == "" {
		return nil, badRequest("namespace", "must not be empty")
	}
	opts.Scope.Namespace = namespace
	return uc.start(ctx, opts)
}

// WatchCluster starts a cluster-wide session.
func (uc *WatchUseCase) WatchCluster(ctx context.Context, opts WatchOptions) (*WatchSession, error) {
	opts.Scope.Namespace = ""
	return uc.start(ctx, opts)
}

func (uc *WatchUseCase) start(ctx context.Context, opts WatchOptions) (*WatchSession, error) {
	if opts.Scope.Resource.Resource == "" {
		return nil, badRequest("resource", "must not be empty")
	}
	opts.applyDefaults()

	ctx, cancel := context.WithCancel(ctx)
	s := &WatchSession{
		opener:  uc.opener,
		opts:    opts,
		monitor: uc.monitor,
		log: uc.log.With(
			"resource", opts.Scope.Resource.Resource,
			"namespace", opts.Scope.Namespace,
		),
		msgs:   make(chan WatchMessage, opts.Buffer),
		cancel: cancel,
		active: true,
		cursor: opts.ResourceVersion,
	}
	uc.monitor.WatchSessionOpened()
	go s.run(ctx)
	return s, nil
}

// Messages returns the session's channel. It is closed exactly once,
// after the session stops for any reason.
func (s *WatchSession) Messages() <-chan WatchMessage { return s.msgs }

// Active reports whether the session is still connecting, streaming,
// or waiting to reconnect.
func (s *WatchSession) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ResourceVersion returns the current cursor. It only ever moves
// forward while the session runs.
func (s *WatchSession) ResourceVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Stop terminates the session. It is safe to call from any state and
// any number of times; only the first call tears anything down. A
// pending reconnection timer is cancelled, the transport is closed,
// and the message channel drains and closes without a WatchFailed
// message.
func (s *WatchSession) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.teardown()
	})
}

// teardown closes the current transport at most once. Both Stop and
// the run loop route through here; whoever takes the reference under
// the lock performs the close.
func (s *WatchSession) teardown() {
	s.mu.Lock()
	w := s.current
	s.current = nil
	s.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

func (s *WatchSession) run(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
		close(s.msgs)
		s.monitor.WatchSessionClosed()
	}()

	for {
		w, err := s.open(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.log.Warn("watch connection failed", "error", err)
			if !s.retry(ctx, Classify(err)) {
				return
			}
			continue
		}

		s.mu.Lock()
		s.current = w
		s.attempts = 0
		s.mu.Unlock()

		s.deliver(ctx, WatchMessage{Kind: WatchConnected})
		cause := s.consume(ctx, w)
		s.teardown()
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("watch stream dropped", "error", cause)
		if !s.retry(ctx, cause) {
			return
		}
	}
}

func (s *WatchSession) open(ctx context.Context) (watch.Interface, error) {
	s.mu.Lock()
	cursor := s.cursor
	s.mu.Unlock()
	return s.opener.OpenWatch(ctx, s.opts.Scope, metav1.ListOptions{
		LabelSelector:   s.opts.LabelSelector,
		FieldSelector:   s.opts.FieldSelector,
		ResourceVersion: cursor,
	})
}

// consume forwards events until the transport ends. It returns the
// failure to hand to the retry logic, or nil when the context was
// cancelled.
func (s *WatchSession) consume(ctx context.Context, w watch.Interface) *StatusError {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.ResultChan():
			if !ok {
				return &StatusError{
					Code:    http.StatusInternalServerError,
					Message: "watch stream closed by server",
				}
			}
			switch ev.Type {
			case watch.Error:
				return Classify(apierrors.FromObject(ev.Object))
			case watch.Bookmark:
				// Bookmarks advance the cursor but are not observable
				// by the consumer.
				s.advance(ev.Object)
			case watch.Added, watch.Modified, watch.Deleted:
				s.advance(ev.Object)
				s.deliver(ctx, WatchMessage{
					Kind:  WatchChange,
					Event: ChangeEvent{Type: ev.Type, Object: toUnstructured(ev.Object)},
				})
			}
		}
	}
}

// retry decides what happens after a transport failure. It reports
// false when the session must end, delivering the terminal error
// first; true after the backoff delay has elapsed and another attempt
// should be made.
func (s *WatchSession) retry(ctx context.Context, cause *StatusError) bool {
	if s.opts.DisableReconnect {
		s.deliver(ctx, WatchMessage{Kind: WatchFailed, Err: cause})
		return false
	}

	s.mu.Lock()
	s.attempts++
	attempt := s.attempts
	s.mu.Unlock()

	if attempt > s.opts.MaxReconnects {
		s.deliver(ctx, WatchMessage{Kind: WatchFailed, Err: &StatusError{
			Code:    http.StatusInternalServerError,
			Message: "watch gave up after maximum reconnection attempts",
		}})
		return false
	}

	delay := backoffDelay(attempt, s.opts.BackoffBase, s.opts.BackoffCap)
	s.log.Info("watch reconnecting", "attempt", attempt, "delay", delay, "cause", cause.Message)
	s.monitor.WatchReconnect()
	return sleepCtx(ctx, delay)
}

// advance moves the cursor forward from an observed object.
func (s *WatchSession) advance(obj runtime.Object) {
	acc, err := meta.Accessor(obj)
	if err != nil {
		return
	}
	if rv := acc.GetResourceVersion(); rv != "" {
		s.mu.Lock()
		s.cursor = rv
		s.mu.Unlock()
	}
}

func (s *WatchSession) deliver(ctx context.Context, msg WatchMessage) {
	select {
	case s.msgs <- msg:
	case <-ctx.Done():
	}
}

// backoffDelay computes min(base * 2^(attempt-1), limit) for attempts
// counted from 1.
func backoffDelay(attempt int, base, limit time.Duration) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}

// sleepCtx waits for the delay and reports true, or false if the
// context ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func toUnstructured(obj runtime.Object) *unstructured.Unstructured {
	if u, ok := obj.(*unstructured.Unstructured); ok {
		return u
	}
	content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		return &unstructured.Unstructured{}
	}
	return &unstructured.Unstructured{Object: content}
}
