package server

import (
	"context"
	"time"

	"github.com/catalyst-dev/liveops/internal/core"
)

// sessionReaperListener sweeps finished shell sessions out of the
// store on an interval. It implements transport.Listener so it
// participates in the managed lifecycle alongside the HTTP server.
type sessionReaperListener struct {
	store    *core.SessionStore
	interval time.Duration
}

func (l *sessionReaperListener) Start(ctx context.Context) error {
	interval := l.interval
	if interval <= 0 {
		interval = core.DefaultReapInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.store.ReapFinished(interval)
		}
	}
}

func (l *sessionReaperListener) Stop(_ context.Context) error {
	// Any still-open sessions are torn down with the process.
	l.store.CloseAll()
	return nil
}
