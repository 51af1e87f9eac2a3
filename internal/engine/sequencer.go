package engine

import (
	"SynthLedger/internal/observability"
	"context"

	"github.com/rs/zerolog"
)

type response struct {
	receipt Receipt
	err     error
}

type request struct {
	cmd   *Command
	query func(*Engine) error
	reply chan response
}

// Sequencer owns the engine on a single goroutine. Commands and queries
// from any number of callers are queued and run one at a time, so callers
// are serialized instead of hitting ErrReentrantCall.
type Sequencer struct {
	engine   *Engine
	requests chan request
	metrics  *observability.Metrics
	log      zerolog.Logger
}

func NewSequencer(e *Engine, buffer int, metrics *observability.Metrics) *Sequencer {
	return &Sequencer{
		engine:   e,
		requests: make(chan request, buffer),
		metrics:  metrics,
		log:      observability.NewLogger("sequencer"),
	}
}

// Run processes requests until ctx is cancelled.
func (s *Sequencer) Run(ctx context.Context) error {
	s.log.Info().Int64("sequence", s.engine.Sequence()).Msg("sequencer started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Int64("sequence", s.engine.Sequence()).Msg("sequencer stopped")
			return ctx.Err()
		case req := <-s.requests:
			if s.metrics != nil {
				s.metrics.SetChannelMetrics("sequencer", len(s.requests), cap(s.requests))
			}
			s.handle(req)
		}
	}
}

func (s *Sequencer) handle(req request) {
	var resp response
	if req.cmd != nil {
		resp.receipt, resp.err = s.engine.Execute(*req.cmd)
	} else {
		resp.err = req.query(s.engine)
	}
	// reply is buffered, so an abandoned caller never blocks the loop.
	req.reply <- resp
}

// Submit queues cmd and waits for its result. If ctx ends after the
// command was queued, the command still runs; only the wait is abandoned.
func (s *Sequencer) Submit(ctx context.Context, cmd Command) (Receipt, error) {
	resp, err := s.do(ctx, request{cmd: &cmd})
	if err != nil {
		return Receipt{}, err
	}
	return resp.receipt, resp.err
}

// Query runs fn on the engine goroutine between commands.
func (s *Sequencer) Query(ctx context.Context, fn func(*Engine) error) error {
	resp, err := s.do(ctx, request{query: fn})
	if err != nil {
		return err
	}
	return resp.err
}

func (s *Sequencer) do(ctx context.Context, req request) (response, error) {
	req.reply = make(chan response, 1)

	select {
	case s.requests <- req:
	case <-ctx.Done():
		return response{}, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp, nil
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}
