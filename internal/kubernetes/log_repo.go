package kubernetes

import (
	"context"
	"io"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/catalyst-dev/liveops/internal/core"
)

type logRepo struct {
	kube *Kubernetes
}

// NewLogRepo returns the cluster-facing log reader.
func NewLogRepo(kube *Kubernetes) core.LogRepo {
	return &logRepo{kube: kube}
}

func (r *logRepo) ListPods(ctx context.Context, namespace, selector string) ([]string, error) {
	list, err := r.kube.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector,
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list.Items))
	for i := range list.Items {
		names = append(names, list.Items[i].Name)
	}
	return names, nil
}

func (r *logRepo) FetchLogs(ctx context.Context, namespace, pod, container string, opts core.LogOptions) (string, error) {
	stream, err := r.open(ctx, namespace, pod, container, opts, false)
	if err != nil {
		return "", err
	}
	defer stream.Close()
	data, err := io.ReadAll(stream)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r *logRepo) StreamLogs(ctx context.Context, namespace, pod, container string, opts core.LogOptions) (io.ReadCloser, error) {
	return r.open(ctx, namespace, pod, container, opts, true)
}

func (r *logRepo) open(ctx context.Context, namespace, pod, container string, opts core.LogOptions, follow bool) (io.ReadCloser, error) {
	podOpts := &corev1.PodLogOptions{
		Container:    container,
		Follow:       follow,
		Timestamps:   opts.Timestamps,
		Previous:     opts.Previous,
		TailLines:    opts.TailLines,
		SinceSeconds: opts.SinceSeconds,
	}
	if opts.SinceTime != nil {
		since := metav1.NewTime(*opts.SinceTime)
		podOpts.SinceTime = &since
	}
	return r.kube.clientset.CoreV1().Pods(namespace).GetLogs(pod, podOpts).Stream(ctx)
}
