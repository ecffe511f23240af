package kubernetes

import (
	"context"
	"net/http"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/remotecommand"

	"github.com/catalyst-dev/liveops/internal/core"
)

type execRepo struct {
	kube *Kubernetes
}

// NewExecRepo returns the cluster-facing command runner.
func NewExecRepo(kube *Kubernetes) core.ExecRepo {
	return &execRepo{kube: kube}
}

// Exec runs a command in the target container over SPDY and blocks
// until it exits or the context is cancelled. Failures are returned
// raw; the domain layer normalizes them.
func (r *execRepo) Exec(ctx context.Context, namespace, pod, container string, opts core.ExecOptions) error {
	req := r.kube.clientset.CoreV1().RESTClient().
		Post().
		Resource("pods").
		Name(pod).
		Namespace(namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   opts.Command,
			Stdin:     opts.Stdin != nil,
			Stdout:    opts.Stdout != nil,
			Stderr:    opts.Stderr != nil && !opts.TTY,
			TTY:       opts.TTY,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(r.kube.config, http.MethodPost, req.URL())
	if err != nil {
		return err
	}

	streamOpts := remotecommand.StreamOptions{
		Stdin:  opts.Stdin,
		Stdout: opts.Stdout,
		Tty:    opts.TTY,
	}
	if !opts.TTY {
		streamOpts.Stderr = opts.Stderr
	}
	if opts.SizeQueue != nil {
		streamOpts.TerminalSizeQueue = &sizeQueueAdapter{inner: opts.SizeQueue}
	}
	return executor.StreamWithContext(ctx, streamOpts)
}

// sizeQueueAdapter bridges the domain's size source to the transport's
// queue contract.
type sizeQueueAdapter struct {
	inner core.TerminalSizer
}

func (a *sizeQueueAdapter) Next() *remotecommand.TerminalSize {
	size := a.inner.Next()
	if size == nil {
		return nil
	}
	return &remotecommand.TerminalSize{Width: size.Width, Height: size.Height}
}
