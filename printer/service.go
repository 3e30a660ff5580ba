package printer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nixxel-company-limited/escpos-print-bridge/escpos"
	"github.com/nixxel-company-limited/escpos-print-bridge/printerr"
	"github.com/nixxel-company-limited/escpos-print-bridge/profile"
	"github.com/nixxel-company-limited/escpos-print-bridge/transport"
)

// RetryPolicy bounds write attempts on one open connection.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy makes three write attempts one second apart.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Delay: time.Second}

// Service prints jobs on the active printer. Jobs for the same printer run
// one at a time in submission order; different printers print in parallel.
type Service struct {
	store         profile.Store
	transports    transport.Set
	logger        *zap.Logger
	retry         RetryPolicy
	queueCapacity int
	maxTextChars  int
	codePage      string
	observer      StateObserver

	mu     sync.Mutex
	queues map[string]chan *request
	closed bool
	wg     sync.WaitGroup

	statsMu       sync.Mutex
	jobsProcessed int64
	jobsFailed    int64
	lastJobTime   time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Service) {
		if p.Attempts < 1 {
			p.Attempts = 1
		}
		if p.Delay < 0 {
			p.Delay = 0
		}
		s.retry = p
	}
}

func WithQueueCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queueCapacity = n
		}
	}
}

func WithMaxTextChars(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxTextChars = n
		}
	}
}

// WithCodePage selects the character table used when encoding text.
func WithCodePage(name string) Option {
	return func(s *Service) {
		s.codePage = name
	}
}

func WithStateObserver(fn StateObserver) Option {
	return func(s *Service) {
		s.observer = fn
	}
}

// NewService creates a service reading the printer from store and
// connecting through transports.
func NewService(store profile.Store, transports transport.Set, opts ...Option) *Service {
	s := &Service{
		store:         store,
		transports:    transports,
		logger:        zap.NewNop(),
		retry:         DefaultRetryPolicy,
		queueCapacity: DefaultQueueCapacity,
		maxTextChars:  escpos.DefaultMaxTextChars,
		codePage:      "cp437",
		queues:        make(map[string]chan *request),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("printer")
	return s
}

// Submit queues job behind earlier jobs for the same printer and returns
// immediately. ctx cancels the job while it waits and during retry delays;
// a write in progress is never interrupted.
func (s *Service) Submit(ctx context.Context, job Job) *Task {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	task := newTask(job.ID)

	p, ok := s.store.ActiveProfile()
	if !ok {
		s.finish(task, failure("", &printerr.ConfigError{Code: printerr.NoPrinterConfigured}))
		return task
	}

	req := &request{ctx: ctx, job: job, profile: p, task: task}
	if err := s.enqueue(req); err != nil {
		s.logger.Warn("job rejected", zap.String("job", job.ID), zap.String("printer", p.Key()), zap.Error(err))
		s.finish(task, failure("", err))
	}
	return task
}

// PrintJob submits job and waits for its result.
func (s *Service) PrintJob(ctx context.Context, job Job) Result {
	task := s.Submit(ctx, job)
	<-task.Done()
	r, _ := task.Result()
	return r
}

// Print prints text. preferredType names a transport kind; anything
// unrecognized means no preference.
func (s *Service) Print(ctx context.Context, text, preferredType string) Result {
	kind, _ := transport.ParseKind(preferredType)
	return s.PrintJob(ctx, TextJob(text, kind))
}

// PrintText prints text and reports whether it succeeded.
func (s *Service) PrintText(ctx context.Context, text string) bool {
	return s.PrintJob(ctx, TextJob(text, "")).Success
}

// PrintBarcode prints a barcode at x dots from the left margin after
// feeding y dots, and reports whether it succeeded.
func (s *Service) PrintBarcode(ctx context.Context, data string, x, y, moduleWidth, moduleHeight int) bool {
	b := escpos.Barcode{Data: data, X: x, Y: y, ModuleWidth: moduleWidth, ModuleHeight: moduleHeight}
	return s.PrintJob(ctx, BarcodeJob(b, "")).Success
}

// execute runs one job on the worker goroutine.
func (s *Service) execute(req *request) (res Result) {
	job, p := req.job, req.profile
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in print job",
				zap.String("job", job.ID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			res = failure("", fmt.Errorf("internal error: %v", r))
		}
	}()

	if req.ctx.Err() != nil {
		return failure("", printerr.ErrCanceled)
	}
	if len(job.Payload) == 0 {
		return failure("", &printerr.ConfigError{Code: printerr.MalformedInput, Detail: "nothing to print"})
	}

	candidates, err := Resolve(p, s.store.DiscoveredPrinters(), job.Preferred)
	if err != nil {
		return failure("", err)
	}

	enc := escpos.New(
		escpos.WithLineSpacing(p.LineSpacing),
		escpos.WithMaxTextChars(s.maxTextChars),
		escpos.WithCodePage(s.codePage),
	)
	data, err := enc.EncodeDocument(job.Payload, p.PaperWidth)
	if err != nil {
		return failure("", err)
	}

	s.logger.Info("printing",
		zap.String("job", job.ID),
		zap.String("printer", p.Key()),
		zap.Int("bytes", len(data)),
		zap.Int("candidates", len(candidates)),
	)

	var (
		lastErr  error
		lastKind transport.Kind
	)
	for _, c := range candidates {
		if req.ctx.Err() != nil {
			return failure(lastKind, printerr.ErrCanceled)
		}

		tr, ok := s.transports[c.Kind]
		if !ok {
			lastErr = &printerr.ConnectionError{Kind: printerr.Unsupported, Transport: c.Kind.String(), Address: c.Address}
			lastKind = c.Kind
			continue
		}

		err := s.attempt(req.ctx, job.ID, tr, c, data, p.Timeout())
		if err == nil {
			s.logger.Info("job printed",
				zap.String("job", job.ID),
				zap.String("transport", c.Kind.String()),
				zap.Duration("duration", time.Since(start)),
			)
			return Result{
				Success:   true,
				Message:   fmt.Sprintf("Printed via %s", c.Kind),
				Transport: c.Kind,
			}
		}
		if errors.Is(err, printerr.ErrCanceled) {
			return failure(c.Kind, err)
		}

		s.logger.Warn("candidate failed",
			zap.String("job", job.ID),
			zap.String("transport", c.Kind.String()),
			zap.String("address", c.Address),
			zap.Error(err),
		)
		lastErr, lastKind = err, c.Kind
	}

	return failure(lastKind, lastErr)
}

// attempt opens one candidate, sends data and always closes the
// connection it opened.
func (s *Service) attempt(ctx context.Context, jobID string, tr transport.Transport, c Candidate, data []byte, timeout time.Duration) (err error) {
	s.transition(jobID, c.Kind, Connecting)
	conn, err := tr.Open(c.Address, timeout)
	if err != nil {
		s.transition(jobID, c.Kind, Failed)
		return err
	}
	s.transition(jobID, c.Kind, Connected)

	defer func() {
		s.transition(jobID, c.Kind, Closing)
		if cerr := conn.Close(); cerr != nil {
			s.logger.Warn("error closing connection", zap.String("transport", c.Kind.String()), zap.Error(cerr))
		}
		if err != nil {
			s.transition(jobID, c.Kind, Failed)
		} else {
			s.transition(jobID, c.Kind, Done)
		}
	}()

	return s.send(ctx, jobID, c.Kind, conn, data)
}

// send writes data, retrying failed writes with the unsent remainder.
func (s *Service) send(ctx context.Context, jobID string, kind transport.Kind, conn transport.Conn, data []byte) error {
	var err error
	for i := 1; i <= s.retry.Attempts; i++ {
		s.transition(jobID, kind, Sending)

		var n int
		n, err = conn.Write(data)
		if err == nil && n < len(data) {
			err = &printerr.IOError{Transport: kind.String(), Err: fmt.Errorf("short write: %d of %d bytes", n, len(data))}
		}
		if err == nil {
			return nil
		}
		if !printerr.IsRetryable(err) {
			err = &printerr.IOError{Transport: kind.String(), Err: err}
		}
		if n > 0 && n <= len(data) {
			data = data[n:]
		}
		if i == s.retry.Attempts {
			break
		}

		s.logger.Debug("write failed, retrying",
			zap.String("job", jobID),
			zap.String("transport", kind.String()),
			zap.Int("attempt", i),
			zap.Error(err),
		)
		if sleepCtx(ctx, s.retry.Delay) != nil {
			return printerr.ErrCanceled
		}
	}
	return err
}

func (s *Service) transition(jobID string, kind transport.Kind, state State) {
	s.logger.Debug("state", zap.String("job", jobID), zap.String("transport", kind.String()), zap.Stringer("state", state))
	if s.observer != nil {
		s.observer(jobID, kind, state)
	}
}

// finish completes task and records the outcome.
func (s *Service) finish(task *Task, r Result) {
	if !task.complete(r) {
		return
	}

	s.statsMu.Lock()
	if r.Success {
		s.jobsProcessed++
	} else {
		s.jobsFailed++
	}
	s.lastJobTime = time.Now()
	s.statsMu.Unlock()
}

func failure(kind transport.Kind, err error) Result {
	msg := printerr.Message(err)
	if kind != "" && !errors.Is(err, printerr.ErrCanceled) {
		msg = fmt.Sprintf("Print failed on %s: %s", kind, msg)
	}
	return Result{Success: false, Message: msg, Transport: kind}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Stats returns job counters since the service started.
func (s *Service) Stats() Statistics {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	s.mu.Lock()
	running := !s.closed
	workers := len(s.queues)
	queued := 0
	for _, q := range s.queues {
		queued += len(q)
	}
	s.mu.Unlock()

	return Statistics{
		IsRunning:     running,
		Workers:       workers,
		QueuedJobs:    queued,
		JobsProcessed: s.jobsProcessed,
		JobsFailed:    s.jobsFailed,
		LastJobTime:   s.lastJobTime,
	}
}

// Statistics holds service runtime statistics
type Statistics struct {
	IsRunning     bool      `json:"is_running"`
	Workers       int       `json:"workers"`
	QueuedJobs    int       `json:"queued_jobs"`
	JobsProcessed int64     `json:"jobs_processed"`
	JobsFailed    int64     `json:"jobs_failed"`
	LastJobTime   time.Time `json:"last_job_time,omitempty"`
}
