package service

import (
	"context"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/domain"
)

// sessionPoller re-reads a session until it reaches a terminal status.
type sessionPoller struct {
	core *PipelineServiceImpl
}

// newSessionPoller creates the polling use-case service.
func newSessionPoller(core *PipelineServiceImpl) *sessionPoller {
	return &sessionPoller{core: core}
}

// watch fetches the session immediately and then on every tick. The returned
// channel is closed after a terminal status was emitted or when ctx ends; no
// fetch starts after ctx is cancelled.
func (p *sessionPoller) watch(ctx context.Context, sessionID string, interval time.Duration) <-chan domain.SessionEvent {
	if interval <= 0 {
		interval = p.core.cfg.PollInterval()
	}

	events := make(chan domain.SessionEvent)
	go func() {
		defer close(events)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if ctx.Err() != nil {
				return
			}
			if p.poll(ctx, sessionID, events) {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return events
}

// poll performs one fetch and emits it. It reports whether watching should stop.
func (p *sessionPoller) poll(ctx context.Context, sessionID string, events chan<- domain.SessionEvent) bool {
	session, err := p.core.sessions.Get(ctx, sessionID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		logger.Debugw("Session poll failed", "session_id", sessionID, "error", err.Error())
	}

	select {
	case events <- domain.SessionEvent{Session: session, Err: err}:
	case <-ctx.Done():
		return true
	}

	return err == nil && session != nil && session.Status.Terminal()
}
