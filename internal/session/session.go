// Package session owns a tile client and a map on a single goroutine. HTTP
// handlers and other goroutines reach them only through Do.
package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"osmview/internal/map_renderer"
	"osmview/internal/osm_client"
)

const DefaultTraceInterval = 20 * time.Millisecond

var ErrClosed = errors.New("session closed")

// Func runs on the session goroutine with exclusive access to the client and
// the map.
type Func func(c *osm_client.Client, m *map_renderer.Map)

type op struct {
	fn   Func
	done chan struct{}
}

type Session struct {
	client *osm_client.Client
	m      *map_renderer.Map
	logger *zap.Logger

	ops           chan op
	stopped       chan struct{}
	traceInterval time.Duration
}

func New(client *osm_client.Client, m *map_renderer.Map, logger *zap.Logger) *Session {
	return &Session{
		client:        client,
		m:             m,
		logger:        logger,
		ops:           make(chan op),
		stopped:       make(chan struct{}),
		traceInterval: DefaultTraceInterval,
	}
}

// SetTraceInterval changes the trace tick. Call it before Run.
func (s *Session) SetTraceInterval(d time.Duration) {
	if d > 0 {
		s.traceInterval = d
	}
}

// Run serves Do calls, applies finished downloads and records vehicle traces
// until ctx ends. It returns nil on cancellation so it can sit in an errgroup.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.stopped)

	ticker := time.NewTicker(s.traceInterval)
	defer ticker.Stop()

	s.logger.Info("Session started", zap.Duration("trace_interval", s.traceInterval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Session stopped")
			return nil

		case o := <-s.ops:
			o.fn(s.client, s.m)
			close(o.done)

		case comp := <-s.client.Completions():
			s.client.Apply(comp)

		case <-ticker.C:
			s.m.UpdateTraces()
		}
	}
}

// Do runs fn on the session goroutine and waits for it to finish. It fails
// if ctx ends or the session stops before fn was picked up; once picked up,
// fn always runs to completion.
func (s *Session) Do(ctx context.Context, fn Func) error {
	o := op{fn: fn, done: make(chan struct{})}

	select {
	case s.ops <- o:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrClosed
	}

	<-o.done
	return nil
}
