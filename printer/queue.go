package printer

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/nixxel-company-limited/escpos-print-bridge/printerr"
	"github.com/nixxel-company-limited/escpos-print-bridge/profile"
)

// DefaultQueueCapacity is the number of jobs that may wait per printer.
const DefaultQueueCapacity = 50

// ErrClosed is reported for jobs submitted after Close.
var ErrClosed = errors.New("print service closed")

type request struct {
	ctx     context.Context
	job     Job
	profile *profile.Profile
	task    *Task
}

// enqueue hands req to the FIFO worker of its printer, starting the worker
// on first use. A full queue yields printerr.ErrBusy without blocking.
func (s *Service) enqueue(req *request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	key := req.profile.Key()
	q, ok := s.queues[key]
	if !ok {
		q = make(chan *request, s.queueCapacity)
		s.queues[key] = q
		s.wg.Add(1)
		go s.runQueue(key, q)
		s.logger.Debug("printer worker started", zap.String("printer", key))
	}

	select {
	case q <- req:
		return nil
	default:
		return printerr.ErrBusy
	}
}

// runQueue executes jobs for one printer in submission order.
func (s *Service) runQueue(key string, jobs <-chan *request) {
	defer s.wg.Done()

	for req := range jobs {
		s.finish(req.task, s.execute(req))
	}
	s.logger.Debug("printer worker stopped", zap.String("printer", key))
}

// Close stops accepting jobs, lets the queued ones finish and waits for
// the workers to exit.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, q := range s.queues {
		close(q)
	}
	s.mu.Unlock()

	s.wg.Wait()

	st := s.Stats()
	s.logger.Info("print service stopped",
		zap.Int64("processed", st.JobsProcessed),
		zap.Int64("failed", st.JobsFailed),
	)
}
