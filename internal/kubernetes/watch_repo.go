package kubernetes

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Masterminds/semver/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/catalyst-dev/liveops/internal/core"
)

// Streaming list-watch (WatchList) went GA in v1.34; on older servers
// the initial-events options are rejected.
var watchListMinVersion = semver.MustParse("1.34.0")

type watchRepo struct {
	kube *Kubernetes
	log  *slog.Logger

	once      sync.Once
	watchList bool
}

// NewWatchRepo returns the cluster-facing watch opener.
func NewWatchRepo(kube *Kubernetes) core.WatchOpener {
	return &watchRepo{
		kube: kube,
		log:  slog.Default().With("component", "watch_repo"),
	}
}

func (r *watchRepo) OpenWatch(ctx context.Context, scope core.WatchScope, opts metav1.ListOptions) (watch.Interface, error) {
	opts.Watch = true
	opts.AllowWatchBookmarks = true
	if opts.ResourceVersion == "" && r.watchListSupported() {
		// Stream the initial state instead of requiring a separate
		// list; the stream's synthetic bookmark seeds the cursor.
		initial := true
		opts.SendInitialEvents = &initial
		opts.ResourceVersionMatch = metav1.ResourceVersionMatchNotOlderThan
	}
	return r.kube.dynamic.Resource(scope.Resource).Namespace(scope.Namespace).Watch(ctx, opts)
}

func (r *watchRepo) watchListSupported() bool {
	r.once.Do(func() {
		info, err := r.kube.discovery.ServerVersion()
		if err != nil {
			r.log.Warn("failed to probe server version, assuming no watch-list", "error", err)
			return
		}
		v, err := semver.NewVersion(info.GitVersion)
		if err != nil {
			r.log.Warn("unparseable server version", "version", info.GitVersion, "error", err)
			return
		}
		r.watchList = !v.LessThan(watchListMinVersion)
	})
	return r.watchList
}
