package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"
)

type codeExitError struct{ code int }

func (e *codeExitError) Error() string   { return fmt.Sprintf("command failed with code %d", e.code) }
func (e *codeExitError) ExitStatus() int { return e.code }

func TestExitCodeFromErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"clean exit", nil, 0},
		{"numeric code", &codeExitError{code: 137}, 137},
		{"code in message", errors.New("command terminated with exit code 137"), 137},
		{"wrapped numeric code", fmt.Errorf("exec: %w", &codeExitError{code: 2}), 2},
		{"opaque failure", errors.New("transport closed"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeFromErr(tt.err); got != tt.want {
				t.Errorf("exitCodeFromErr = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTerminalSizeQueueLatestWins(t *testing.T) {
	q := NewTerminalSizeQueue()
	// Overflow the buffer; the oldest entries must be dropped.
	for i := 1; i <= sizeQueueDepth+3; i++ {
		q.Set(uint16(100+i), uint16(40+i))
	}
	var last *TerminalSize
	for i := 0; i < sizeQueueDepth; i++ {
		if s := q.Next(); s != nil {
			last = s
		}
	}
	if last == nil || last.Width != uint16(100+sizeQueueDepth+3) {
		t.Fatalf("latest size not preserved: %+v", last)
	}

	q.Close()
	if s := q.Next(); s != nil {
		t.Errorf("Next after close = %+v, want nil", s)
	}
	q.Set(1, 1) // no-op, must not panic
	q.Close()   // idempotent
}

func TestDecodeInputFrame(t *testing.T) {
	frame, err := DecodeInputFrame([]byte("ls -la\n"))
	if err != nil {
		t.Fatal(err)
	}
	if frame.Resize != nil || string(frame.Data) != "ls -la\n" {
		t.Errorf("data frame = %+v", frame)
	}

	frame, err = DecodeInputFrame(EncodeResizeFrame(120, 40))
	if err != nil {
		t.Fatal(err)
	}
	if frame.Resize == nil || frame.Resize.Width != 120 || frame.Resize.Height != 40 {
		t.Errorf("resize frame = %+v", frame)
	}

	if _, err := DecodeInputFrame(append([]byte{resizeChannel}, []byte("not json")...)); err == nil {
		t.Error("malformed resize frame accepted")
	}
}

type scriptedExecRepo struct {
	started chan ExecOptions
	release chan error
}

func newScriptedExecRepo() *scriptedExecRepo {
	return &scriptedExecRepo{
		started: make(chan ExecOptions, 1),
		release: make(chan error, 1),
	}
}

func (f *scriptedExecRepo) Exec(ctx context.Context, _, _, _ string, opts ExecOptions) error {
	f.started <- opts
	select {
	case err := <-f.release:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newShellFixture(t *testing.T) (*ShellUseCase, *scriptedExecRepo, *SessionStore) {
	t.Helper()
	repo := newScriptedExecRepo()
	store := NewSessionStore()
	return NewShellUseCase(repo, store, NewNopMonitor()), repo, store
}

func TestShellSessionLifecycle(t *testing.T) {
	uc, repo, store := newShellFixture(t)

	s, err := uc.CreateSession(context.Background(), ShellParams{
		Namespace:     "preview",
		Pod:           "web-0",
		TTY:           true,
		InitialWidth:  120,
		InitialHeight: 40,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Stdout.Close()
	defer s.Stderr.Close()

	opts := <-repo.started
	if len(opts.Command) != 1 || opts.Command[0] != "/bin/sh" {
		t.Errorf("command = %v, want default shell", opts.Command)
	}
	if !opts.TTY {
		t.Error("TTY not requested")
	}
	// The initial geometry is the first thing on the size queue.
	if size := opts.SizeQueue.Next(); size == nil || size.Width != 120 || size.Height != 40 {
		t.Fatalf("initial size = %+v", size)
	}

	if !s.Active() {
		t.Error("fresh session not active")
	}
	if _, ok := store.Get(s.ID); !ok {
		t.Error("session not registered in store")
	}

	// Input flows to the remote stdin.
	go s.Write([]byte("exit\n"))
	buf := make([]byte, 16)
	n, err := opts.Stdin.Read(buf)
	if err != nil || string(buf[:n]) != "exit\n" {
		t.Fatalf("stdin read = %q, %v", buf[:n], err)
	}

	// Resize flows through the queue.
	s.Resize(80, 24)
	if size := opts.SizeQueue.Next(); size == nil || size.Width != 80 {
		t.Fatalf("resize = %+v", size)
	}

	// Clean exit.
	repo.release <- nil
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
	}
	if s.Active() {
		t.Error("finished session still active")
	}
	if got := s.ExitCode(); got != 0 {
		t.Errorf("exit code = %d, want 0", got)
	}

	// Output readers drain to EOF after the command ends.
	if _, err := io.ReadAll(s.Stdout); err != nil && err != io.EOF {
		t.Errorf("stdout read: %v", err)
	}

	// Writes after the end are silently discarded.
	if n, err := s.Write([]byte("ignored")); n != len("ignored") || err != nil {
		t.Errorf("write after end = %d, %v", n, err)
	}
}

func TestShellSessionFailureExitCode(t *testing.T) {
	uc, repo, _ := newShellFixture(t)

	s, err := uc.CreateSession(context.Background(), ShellParams{
		Namespace: "preview",
		Pod:       "web-0",
		Command:   []string{"false"},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Stdout.Close()
	defer s.Stderr.Close()

	<-repo.started
	repo.release <- &codeExitError{code: 137}
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
	}
	if got := s.ExitCode(); got != 137 {
		t.Errorf("exit code = %d, want 137", got)
	}
}

func TestShellCloseIdempotent(t *testing.T) {
	uc, repo, store := newShellFixture(t)

	s, err := uc.CreateSession(context.Background(), ShellParams{
		Namespace: "preview",
		Pod:       "web-0",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Stdout.Close()
	defer s.Stderr.Close()
	<-repo.started

	uc.Close(s.ID)
	uc.Close(s.ID)
	s.Close()

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("close did not end the session")
	}
	if _, ok := store.Get(s.ID); ok {
		t.Error("closed session still in store")
	}
	// Writes against a closed session are discarded without error.
	if _, err := s.Write([]byte("x")); err != nil {
		t.Errorf("write after close: %v", err)
	}
}

func TestShellValidation(t *testing.T) {
	uc, _, _ := newShellFixture(t)
	if _, err := uc.CreateSession(context.Background(), ShellParams{Pod: "web-0"}); err == nil {
		t.Error("missing namespace accepted")
	}
	if _, err := uc.CreateSession(context.Background(), ShellParams{Namespace: "preview"}); err == nil {
		t.Error("missing pod accepted")
	}
}

func TestSessionStoreReap(t *testing.T) {
	uc, repo, store := newShellFixture(t)

	s, err := uc.CreateSession(context.Background(), ShellParams{
		Namespace: "preview",
		Pod:       "web-0",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Stdout.Close()
	defer s.Stderr.Close()
	<-repo.started

	// A running session is never reaped.
	if n := store.ReapFinished(0); n != 0 {
		t.Errorf("reaped %d running sessions", n)
	}

	repo.release <- nil
	<-s.Done()

	if n := store.ReapFinished(0); n != 1 {
		t.Errorf("reaped = %d, want 1", n)
	}
	if store.Len() != 0 {
		t.Errorf("store still holds %d sessions", store.Len())
	}
}
