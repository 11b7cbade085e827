package main

import (
	"context"
	"sync"

	"github.com/hashicorp/go-hclog"

	"gorow/internal/monitor"
	"gorow/internal/session"
)

// Recorder runs the monitor of the active session in the background so
// handlers never wait on device reads.
type Recorder struct {
	Monitor *monitor.Monitor
	Logger  hclog.Logger

	stopMu  sync.Mutex
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	summary *monitor.Summary
	err     error
}

func (r *Recorder) Start() (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.Monitor.Start()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel, r.done = cancel, done
	r.summary, r.err = nil, nil

	go func() {
		defer close(done)
		summary, err := r.Monitor.Run(ctx, s)
		if err != nil {
			r.Logger.Error("session ended", "id", s.ID(), "error", err)
		}
		r.mu.Lock()
		r.summary, r.err = summary, err
		r.mu.Unlock()
	}()
	return s, nil
}

// Stop ends the active session and waits until it is saved. If the run
// already ended but its final save failed, the save is retried.
func (r *Recorder) Stop() (*monitor.Summary, error) {
	r.stopMu.Lock()
	defer r.stopMu.Unlock()

	active := r.Monitor.Manager.Active()
	if active == nil {
		return nil, session.ErrNoActiveSession
	}

	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return r.Monitor.Finish(active)
	}

	ended := false
	select {
	case <-done:
		ended = true
	default:
	}
	cancel()
	<-done

	r.mu.Lock()
	summary, err := r.summary, r.err
	r.mu.Unlock()
	if summary != nil {
		return summary, nil
	}
	if ended && r.Monitor.Manager.Active() == active {
		return r.Monitor.Finish(active)
	}
	return nil, err
}

// Wait blocks until the running session, if any, has finished.
func (r *Recorder) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}
