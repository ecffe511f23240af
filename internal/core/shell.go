package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// resizeChannel is the control-channel byte that precedes a
	// terminal-resize frame on the session input path. Any other
	// leading byte means the frame is raw keystroke data.
	resizeChannel byte = 4

	// sizeQueueDepth bounds pending resizes; older entries are
	// dropped in favor of newer ones.
	sizeQueueDepth = 4
)

// DefaultShellCommand is run when a session is opened without an
// explicit command.
var DefaultShellCommand = []string{"/bin/sh"}

// TerminalSize is one pseudo-terminal geometry.
type TerminalSize struct {
	Width  uint16
	Height uint16
}

// TerminalSizer yields terminal sizes to the remote end. Next returns
// nil when no more resizes will come.
type TerminalSizer interface {
	Next() *TerminalSize
}

// TerminalSizeQueue buffers resize events between the caller and the
// remote command transport. When the buffer is full the oldest
// pending size is dropped so the latest geometry always wins.
type TerminalSizeQueue struct {
	ch     chan TerminalSize
	mu     sync.Mutex
	closed bool
}

func NewTerminalSizeQueue() *TerminalSizeQueue {
	return &TerminalSizeQueue{ch: make(chan TerminalSize, sizeQueueDepth)}
}

// Set enqueues a resize. No-op after Close.
func (q *TerminalSizeQueue) Set(width, height uint16) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	size := TerminalSize{Width: width, Height: height}
	for {
		select {
		case q.ch <- size:
			return
		default:
			select {
			case <-q.ch:
			default:
			}
		}
	}
}

// Next blocks until a size is available. Returns nil once the queue
// is closed and drained.
func (q *TerminalSizeQueue) Next() *TerminalSize {
	size, ok := <-q.ch
	if !ok {
		return nil
	}
	return &size
}

// Close releases anyone blocked in Next.
func (q *TerminalSizeQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// ExecOptions describe one remote command invocation.
type ExecOptions struct {
	Command   []string
	TTY       bool
	Stdin     io.Reader
	Stdout    io.Writer
	Stderr    io.Writer
	SizeQueue TerminalSizer
}

// ExecRepo runs a command inside a pod and blocks until it exits.
type ExecRepo interface {
	Exec(ctx context.Context, namespace, pod, container string, opts ExecOptions) error
}

// ShellParams configure a new interactive session.
type ShellParams struct {
	Namespace string
	Pod       string
	Container string
	// Command defaults to DefaultShellCommand when empty.
	Command []string
	TTY     bool
	// InitialWidth/InitialHeight, when both non-zero, are pushed to
	// the remote end as soon as the transport is established.
	InitialWidth  uint16
	InitialHeight uint16
}

// ShellSession is one live remote command with an attached
// pseudo-terminal. Output is consumed through the readers returned at
// creation; input, resize, and close are driven through methods here.
type ShellSession struct {
	ID        string
	Namespace string
	Pod       string
	Container string

	// Stdout and Stderr carry the remote output. With a TTY both
	// streams arrive on Stdout. Single consumer each.
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	stdin     io.WriteCloser
	sizeQueue *TerminalSizeQueue
	cancel    context.CancelFunc

	active    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	mu       sync.Mutex
	execErr  error
	exitCode int

	CreatedAt time.Time
}

// ShellUseCase creates and manages interactive sessions.
type ShellUseCase struct {
	repo    ExecRepo
	store   *SessionStore
	monitor Monitor
	log     *slog.Logger
}

func NewShellUseCase(repo ExecRepo, store *SessionStore, monitor Monitor) *ShellUseCase {
	return &ShellUseCase{
		repo:    repo,
		store:   store,
		monitor: monitor,
		log:     slog.Default().With("component", "shell"),
	}
}

// CreateSession opens a remote command in the target pod and registers
// the session in the store. The session outlives the creating request;
// output is consumed later through the session's readers.
func (uc *ShellUseCase) CreateSession(ctx context.Context, params ShellParams) (*ShellSession, error) {
	if params.Namespace == "" {
		return nil, badRequest("namespace", "must not be empty")
	}
	if params.Pod == "" {
		return nil, badRequest("pod", "must not be empty")
	}
	if len(params.Command) == 0 {
		params.Command = DefaultShellCommand
	}

	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()

	sizeQueue := NewTerminalSizeQueue()
	if params.InitialWidth > 0 && params.InitialHeight > 0 {
		// Queued before the transport opens, so it is the first thing
		// the remote end sees once streaming starts.
		sizeQueue.Set(params.InitialWidth, params.InitialHeight)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &ShellSession{
		ID:        uuid.NewString(),
		Namespace: params.Namespace,
		Pod:       params.Pod,
		Container: params.Container,
		Stdout:    stdoutR,
		Stderr:    stderrR,
		stdin:     stdinW,
		sizeQueue: sizeQueue,
		cancel:    cancel,
		done:      make(chan struct{}),
		CreatedAt: time.Now(),
	}
	s.active.Store(true)
	uc.monitor.ShellSessionOpened()

	go func() {
		err := uc.repo.Exec(runCtx, params.Namespace, params.Pod, params.Container, ExecOptions{
			Command:   params.Command,
			TTY:       params.TTY,
			Stdin:     stdinR,
			Stdout:    stdoutW,
			Stderr:    stderrW,
			SizeQueue: sizeQueue,
		})
		s.finish(err)
		stdoutW.CloseWithError(io.EOF)
		stderrW.CloseWithError(io.EOF)
		stdinR.Close()
		uc.monitor.ShellSessionClosed()
		if err != nil {
			uc.log.Info("shell session ended",
				"session", s.ID, "pod", params.Pod, "exit_code", s.exitCode, "error", err)
		}
	}()

	uc.store.Put(s)
	return s, nil
}

// Get returns a session from the store.
func (uc *ShellUseCase) Get(id string) (*ShellSession, error) {
	s, ok := uc.store.Get(id)
	if !ok {
		return nil, &StatusError{Code: 404, Reason: "NotFound", Message: "session " + id + " not found"}
	}
	return s, nil
}

// Close tears down a session and removes it from the store. Unknown
// IDs are a no-op so close is idempotent across the API surface.
func (uc *ShellUseCase) Close(id string) {
	if s, ok := uc.store.Get(id); ok {
		s.Close()
		uc.store.Delete(id)
	}
}

// finish records the outcome and flips the session inactive. Runs
// exactly once, from the exec goroutine.
func (s *ShellSession) finish(err error) {
	s.mu.Lock()
	s.execErr = err
	s.exitCode = exitCodeFromErr(err)
	s.mu.Unlock()
	s.active.Store(false)
	s.sizeQueue.Close()
	close(s.done)
}

// Active reports whether the remote command is still running.
func (s *ShellSession) Active() bool { return s.active.Load() }

// Done is closed when the remote command has exited and the exit code
// is available.
func (s *ShellSession) Done() <-chan struct{} { return s.done }

// ExitCode returns the decoded exit code: 0 for a clean exit, the
// remote command's code when the failure carries one, 1 otherwise.
// Only meaningful after Done is closed.
func (s *ShellSession) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// Err returns the raw exec error, if any. Only meaningful after Done
// is closed.
func (s *ShellSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execErr
}

// Write forwards keystrokes to the remote command. Once the session
// is inactive it silently discards input instead of failing.
func (s *ShellSession) Write(p []byte) (int, error) {
	if !s.active.Load() {
		return len(p), nil
	}
	n, err := s.stdin.Write(p)
	if err != nil {
		// Session died between the check and the write.
		return len(p), nil
	}
	return n, nil
}

// Resize updates the remote pseudo-terminal geometry.
func (s *ShellSession) Resize(width, height uint16) {
	s.sizeQueue.Set(width, height)
}

// Close terminates the session. Safe to call any number of times and
// regardless of whether the command already exited.
func (s *ShellSession) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.stdin.Close()
		s.sizeQueue.Close()
	})
}

// InputFrame is one decoded message from the session input path.
// Either Data or Resize is set, never both.
type InputFrame struct {
	Data   []byte
	Resize *TerminalSize
}

// DecodeInputFrame splits control frames from keystroke data. A frame
// whose first byte is the resize control channel carries a JSON
// geometry payload; everything else is passed through verbatim.
func DecodeInputFrame(p []byte) (InputFrame, error) {
	if len(p) == 0 || p[0] != resizeChannel {
		return InputFrame{Data: p}, nil
	}
	var size TerminalSize
	dec := json.NewDecoder(bytes.NewReader(p[1:]))
	if err := dec.Decode(&size); err != nil {
		return InputFrame{}, badRequest("resize frame", err.Error())
	}
	return InputFrame{Resize: &size}, nil
}

// EncodeResizeFrame builds the wire form of a resize: the control
// byte followed by the JSON geometry.
func EncodeResizeFrame(width, height uint16) []byte {
	payload, _ := json.Marshal(TerminalSize{Width: width, Height: height})
	return append([]byte{resizeChannel}, payload...)
}

// exitCoder matches failures that carry the remote command's numeric
// exit code.
type exitCoder interface {
	error
	ExitStatus() int
}

var exitCodePattern = regexp.MustCompile(`exit code (\d+)`)

// exitCodeFromErr decodes a completion outcome into an exit code:
// nil means 0, a failure carrying a numeric code yields that code, a
// failure whose message names an "exit code N" yields N, anything
// else yields 1.
func exitCodeFromErr(err error) int {
	if err == nil {
		return 0
	}
	var coder exitCoder
	if errors.As(err, &coder) {
		return coder.ExitStatus()
	}
	if m := exitCodePattern.FindStringSubmatch(err.Error()); m != nil {
		if n, convErr := strconv.Atoi(m[1]); convErr == nil {
			return n
		}
	}
	return 1
}
