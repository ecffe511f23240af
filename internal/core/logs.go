package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	// DefaultTailLines is the line budget applied when a caller does
	// not specify one.
	DefaultTailLines int64 = 100
	// DefaultLogBuffer is the capacity of a log stream's message
	// channel.
	DefaultLogBuffer = 256

	maxLogLine = 1024 * 1024
)

// LogScope names what to read logs from: either a single pod or, via
// Selector, every pod matching a label selector. Pod takes precedence
// when both are set.
type LogScope struct {
	Namespace string
	Pod       string
	Selector  string
	Container string
}

// LogOptions are the per-call knobs shared by one-shot fetches and
// follow streams.
type LogOptions struct {
	TailLines    *int64
	SinceSeconds *int64
	SinceTime    *time.Time
	Timestamps   bool
	Previous     bool
}

// LogRepo is the cluster-facing side of the log use case.
type LogRepo interface {
	// ListPods resolves a label selector to pod names, in the order
	// the cluster returns them.
	ListPods(ctx context.Context, namespace, selector string) ([]string, error)
	// FetchLogs reads the full (tail-bounded) log text of one pod.
	FetchLogs(ctx context.Context, namespace, pod, container string, opts LogOptions) (string, error)
	// StreamLogs opens a follow stream for one pod.
	StreamLogs(ctx context.Context, namespace, pod, container string, opts LogOptions) (io.ReadCloser, error)
}

// LogBundle is the result of a one-shot fetch.
type LogBundle struct {
	// Text is the aggregated log text. Multi-target fetches prefix
	// every line with the pod it came from.
	Text string
	// Target is the pod name for single-target fetches, the selector
	// for multi-target ones.
	Target string
	// Pods lists the resolved pods, in resolution order.
	Pods []string
	// Timestamp records when the fetch completed.
	Timestamp time.Time
}

// LogStreamMessage is one delivery from a follow stream. Err is set
// for a per-target failure; that target's stream is over, siblings
// are unaffected.
type LogStreamMessage struct {
	Target string
	Line   string
	Err    *StatusError
}

// LogUseCase reads and follows workload logs.
type LogUseCase struct {
	repo    LogRepo
	monitor Monitor
	log     *slog.Logger
}

func NewLogUseCase(repo LogRepo, monitor Monitor) *LogUseCase {
	return &LogUseCase{
		repo:    repo,
		monitor: monitor,
		log:     slog.Default().With("component", "logs"),
	}
}

func (s LogScope) validate() error {
	if s.Namespace == "" {
		return badRequest("namespace", "must not be empty")
	}
	if s.Pod == "" && s.Selector == "" {
		return badRequest("scope", "either pod or selector is required")
	}
	return nil
}

// resolve snapshots the target pods for a scope. Follow streams use
// the same snapshot for their whole lifetime; pods created later are
// not picked up.
func (uc *LogUseCase) resolve(ctx context.Context, scope LogScope) ([]string, error) {
	if scope.Pod != "" {
		return []string{scope.Pod}, nil
	}
	pods, err := uc.repo.ListPods(ctx, scope.Namespace, scope.Selector)
	if err != nil {
		return nil, Classify(err)
	}
	return pods, nil
}

// GetLogs performs a one-shot fetch. Single-pod scopes return the raw
// text. Selector scopes fan out to every resolved pod in parallel,
// splitting the tail budget evenly (rounded up) across them, and
// aggregate the outputs in resolution order: each non-blank line is
// prefixed with its pod name, a pod whose fetch failed contributes a
// single placeholder line, and a pod whose trimmed output is empty
// contributes nothing.
func (uc *LogUseCase) GetLogs(ctx context.Context, scope LogScope, opts LogOptions) (*LogBundle, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}

	if scope.Pod != "" {
		text, err := uc.repo.FetchLogs(ctx, scope.Namespace, scope.Pod, scope.Container, opts)
		if err != nil {
			return nil, Classify(err)
		}
		return &LogBundle{
			Text:      text,
			Target:    scope.Pod,
			Pods:      []string{scope.Pod},
			Timestamp: time.Now(),
		}, nil
	}

	pods, err := uc.resolve(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(pods) == 0 {
		return nil, &StatusError{
			Code:    http.StatusNotFound,
			Reason:  string(metav1.StatusReasonNotFound),
			Message: fmt.Sprintf("no pods match selector %q in namespace %q", scope.Selector, scope.Namespace),
		}
	}

	perPod := opts
	if opts.TailLines != nil {
		n := ceilDiv(*opts.TailLines, int64(len(pods)))
		perPod.TailLines = &n
	}

	texts := make([]string, len(pods))
	errs := make([]error, len(pods))
	var wg sync.WaitGroup
	for i, pod := range pods {
		wg.Add(1)
		go func(i int, pod string) {
			defer wg.Done()
			texts[i], errs[i] = uc.repo.FetchLogs(ctx, scope.Namespace, pod, scope.Container, perPod)
		}(i, pod)
	}
	wg.Wait()

	return &LogBundle{
		Text:      aggregateLogs(pods, texts, errs),
		Target:    scope.Selector,
		Pods:      pods,
		Timestamp: time.Now(),
	}, nil
}

// aggregateLogs merges per-pod outputs in resolution order.
func aggregateLogs(pods []string, texts []string, errs []error) string {
	var out []string
	for i, pod := range pods {
		if errs[i] != nil {
			out = append(out, fmt.Sprintf("[Error fetching logs from %s]", pod))
			continue
		}
		if strings.TrimSpace(texts[i]) == "" {
			continue
		}
		for _, line := range strings.Split(texts[i], "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			out = append(out, "["+pod+"] "+line)
		}
	}
	return strings.Join(out, "\n")
}

func ceilDiv(total, parts int64) int64 {
	return (total + parts - 1) / parts
}

// LogStream is a live follow over a snapshot of targets. One reader
// goroutine per target feeds a shared bounded channel; the channel
// closes only after every target has ended.
type LogStream struct {
	targets []string
	msgs    chan LogStreamMessage

	cancel   context.CancelFunc
	stopOnce sync.Once
	live     atomic.Int32
}

// StreamLogs opens a follow stream over the scope's current targets.
// The target set is fixed at the moment of the call.
func (uc *LogUseCase) StreamLogs(ctx context.Context, scope LogScope, opts LogOptions) (*LogStream, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	pods, err := uc.resolve(ctx, scope)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	ls := &LogStream{
		targets: pods,
		msgs:    make(chan LogStreamMessage, DefaultLogBuffer),
		cancel:  cancel,
	}
	ls.live.Store(int32(len(pods)))
	uc.monitor.LogStreamOpened()

	var wg sync.WaitGroup
	for _, pod := range pods {
		wg.Add(1)
		go func(pod string) {
			defer wg.Done()
			defer ls.live.Add(-1)
			uc.follow(ctx, ls, scope, pod, opts)
		}(pod)
	}
	go func() {
		wg.Wait()
		close(ls.msgs)
		cancel()
		uc.monitor.LogStreamClosed()
	}()
	return ls, nil
}

// follow reads one target until it ends. A failure is reported as a
// message for that target only.
func (uc *LogUseCase) follow(ctx context.Context, ls *LogStream, scope LogScope, pod string, opts LogOptions) {
	rc, err := uc.repo.StreamLogs(ctx, scope.Namespace, pod, scope.Container, opts)
	if err != nil {
		ls.deliver(ctx, LogStreamMessage{Target: pod, Err: Classify(err)})
		return
	}
	defer rc.Close()

	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), maxLogLine)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		ls.deliver(ctx, LogStreamMessage{Target: pod, Line: line})
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		ls.deliver(ctx, LogStreamMessage{Target: pod, Err: Classify(err)})
	}
}

// Targets returns the snapshot of pods this stream follows.
func (ls *LogStream) Targets() []string {
	out := make([]string, len(ls.targets))
	copy(out, ls.targets)
	return out
}

// Messages returns the stream's channel. Closure of the channel means
// every target has ended.
func (ls *LogStream) Messages() <-chan LogStreamMessage { return ls.msgs }

// Active reports whether at least one target is still being followed.
func (ls *LogStream) Active() bool { return ls.live.Load() > 0 }

// Stop ends every target follow. Idempotent.
func (ls *LogStream) Stop() {
	ls.stopOnce.Do(ls.cancel)
}

func (ls *LogStream) deliver(ctx context.Context, msg LogStreamMessage) {
	select {
	case ls.msgs <- msg:
	case <-ctx.Done():
	}
}
