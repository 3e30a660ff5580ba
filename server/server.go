package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nixxel-company-limited/escpos-print-bridge/printer"
	"github.com/nixxel-company-limited/escpos-print-bridge/profile"
)

// Printer runs print jobs.
type Printer interface {
	Submit(ctx context.Context, job printer.Job) *printer.Task
	Stats() printer.Statistics
}

// PrinterLister enumerates printers, refreshing its cache on demand.
type PrinterLister interface {
	Printers(ctx context.Context, forceRefresh bool) ([]profile.PrinterInfo, error)
}

// notifyTimeout bounds delivery of an asynchronous result.
const notifyTimeout = 5 * time.Second

// Server is the websocket bridge between a UI and the print service.
type Server struct {
	printer        Printer
	store          profile.MutableStore
	discovery      PrinterLister
	address        string
	allowedOrigins []string

	httpServer *http.Server
	listener   net.Listener
	baseCtx    context.Context
	cancel     context.CancelFunc
	mu         sync.Mutex
	running    bool
	stopped    bool
	wg         sync.WaitGroup
	clients    map[*websocket.Conn]struct{}
	logger     *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDiscovery answers printers and discover requests from d instead of
// the store's last discovery result.
func WithDiscovery(d PrinterLister) Option {
	return func(s *Server) {
		s.discovery = d
	}
}

// WithAllowedOrigins sets the host patterns browsers may connect from.
func WithAllowedOrigins(patterns []string) Option {
	return func(s *Server) {
		s.allowedOrigins = patterns
	}
}

// New creates a new server instance
func New(p Printer, store profile.MutableStore, address string, opts ...Option) *Server {
	s := &Server{
		printer: p,
		store:   store,
		address: address,
		clients: make(map[*websocket.Conn]struct{}),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("server")
	return s
}

// Handler returns the HTTP routes of the bridge.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func (s *Server) listen(mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("starting server", zap.String("address", s.address), zap.String("mode", mode))

	if s.running {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		s.logger.Error("failed to start server", zap.Error(err))
		return fmt.Errorf("failed to start server: %w", err)
	}

	s.listener = listener
	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.running = true
	s.stopped = false
	s.logger.Info("server listening", zap.String("address", listener.Addr().String()))
	return nil
}

// Start starts the server and blocks until Stop is called
func (s *Server) Start() error {
	if err := s.listen("blocking"); err != nil {
		return err
	}
	s.wg.Add(1)
	return s.serve()
}

// StartAsync starts the server in a goroutine (non-blocking)
func (s *Server) StartAsync() error {
	if err := s.listen("async"); err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		if err := s.serve(); err != nil {
			s.logger.Error("server stopped with error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) serve() error {
	defer s.wg.Done()

	s.mu.Lock()
	srv, ln := s.httpServer, s.listener
	s.mu.Unlock()

	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop closes the listener and all websocket clients. Jobs that are still
// queued for the clients' requests are canceled.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}

	s.logger.Info("stopping server")
	s.running = false
	s.stopped = true
	srv := s.httpServer
	s.cancel()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(ctx)

	s.wg.Wait()
	s.logger.Info("server stopped")
	return err
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Address returns the bound address while running, the configured one
// otherwise.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.address
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.allowedOrigins,
	})
	if err != nil {
		s.logger.Warn("error accepting client", zap.Error(err))
		return
	}

	if !s.addClient(conn) {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		return
	}
	s.logger.Info("client connected", zap.String("remote", r.RemoteAddr))

	ctx := r.Context()
	_ = wsjson.Write(ctx, conn, Response{
		Type:    TypeInfo,
		Status:  StatusOK,
		Message: "Connected to print bridge",
	})

	s.handleMessages(ctx, conn)

	s.removeClient(conn)
	_ = conn.Close(websocket.StatusNormalClosure, "disconnected")
	s.logger.Info("client disconnected", zap.String("remote", r.RemoteAddr))
}

func (s *Server) addClient(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.clients[conn] = struct{}{}
	return true
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, conn)
}

// jobContext is canceled when the server stops.
func (s *Server) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCtx == nil {
		return context.Background()
	}
	return s.baseCtx
}

func (s *Server) handleMessages(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && ctx.Err() == nil {
				s.logger.Debug("error reading message", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(ctx, conn, "", "Invalid message: "+err.Error())
			continue
		}

		s.routeMessage(ctx, conn, &msg)
	}
}

func (s *Server) routeMessage(ctx context.Context, conn *websocket.Conn, msg *Message) {
	switch msg.Type {
	case TypePrint:
		s.handlePrint(ctx, conn, msg)
	case TypeBarcode:
		s.handleBarcode(ctx, conn, msg)
	case TypePrinters:
		s.handlePrinters(ctx, conn, msg, false)
	case TypeDiscover:
		s.handlePrinters(ctx, conn, msg, true)
	case TypeSelect:
		s.handleSelect(ctx, conn, msg)
	case TypeStatus:
		s.handleStatus(ctx, conn, msg)
	case TypePing:
		_ = wsjson.Write(ctx, conn, Response{Type: TypePong, ID: msg.ID, Status: StatusOK})
	default:
		s.logger.Warn("unknown message type", zap.String("type", msg.Type))
		s.sendError(ctx, conn, msg.ID, "Unknown message type: "+msg.Type)
	}
}

func (s *Server) handlePrint(ctx context.Context, conn *websocket.Conn, msg *Message) {
	job, err := msg.printJob()
	if err != nil {
		s.sendError(ctx, conn, msg.ID, err.Error())
		return
	}
	s.submit(ctx, conn, job)
}

func (s *Server) handleBarcode(ctx context.Context, conn *websocket.Conn, msg *Message) {
	job, err := msg.barcodeJob()
	if err != nil {
		s.sendError(ctx, conn, msg.ID, err.Error())
		return
	}
	s.submit(ctx, conn, job)
}

// submit acks the job right away and delivers its result when the printer
// is done with it. A job the printer refused is answered with its result
// directly.
func (s *Server) submit(ctx context.Context, conn *websocket.Conn, job printer.Job) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	task := s.printer.Submit(s.jobContext(), job)

	// Rejected jobs (busy, closed, no printer) complete inside Submit and
	// get their result without an ack.
	if r, done := task.Result(); done {
		s.logger.Debug("job rejected", zap.String("job", job.ID), zap.String("reason", r.Message))
		_ = wsjson.Write(ctx, conn, resultResponse(r))
		return
	}

	s.logger.Debug("job submitted", zap.String("job", job.ID))
	_ = wsjson.Write(ctx, conn, Response{
		Type:    TypeAck,
		ID:      job.ID,
		Status:  StatusQueued,
		Message: "Job queued for printing",
	})

	// The ack is written before the callback is registered, so the result
	// always follows it.
	task.OnComplete(func(r printer.Result) {
		go func() {
			if err := s.notifyClient(conn, resultResponse(r)); err != nil {
				s.logger.Warn("failed to notify client", zap.String("job", r.JobID), zap.Error(err))
			}
		}()
	})
}

// notifyClient sends a result back to a specific client
func (s *Server) notifyClient(conn *websocket.Conn, response Response) error {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, response)
}

func (s *Server) handlePrinters(ctx context.Context, conn *websocket.Conn, msg *Message, refresh bool) {
	var (
		printers []profile.PrinterInfo
		err      error
	)
	if s.discovery != nil {
		printers, err = s.discovery.Printers(ctx, refresh || msg.Refresh)
	} else {
		printers = s.store.DiscoveredPrinters()
	}
	if err != nil && len(printers) == 0 {
		s.sendError(ctx, conn, msg.ID, "Failed to enumerate printers: "+err.Error())
		return
	}
	if printers == nil {
		printers = []profile.PrinterInfo{}
	}

	_ = wsjson.Write(ctx, conn, Response{
		Type:     TypePrinters,
		ID:       msg.ID,
		Status:   StatusOK,
		Printers: printers,
	})
}

func (s *Server) handleSelect(ctx context.Context, conn *websocket.Conn, msg *Message) {
	if msg.Profile == nil {
		s.sendError(ctx, conn, msg.ID, "Field 'profile' is required for type 'select'")
		return
	}

	p := msg.Profile.toProfile()
	if err := s.store.Select(p); err != nil {
		s.sendError(ctx, conn, msg.ID, errorMessage(err))
		return
	}

	_ = wsjson.Write(ctx, conn, Response{
		Type:    TypeSelected,
		ID:      msg.ID,
		Status:  StatusOK,
		Profile: profileDTO(&p),
	})
}

func (s *Server) handleStatus(ctx context.Context, conn *websocket.Conn, msg *Message) {
	stats := s.printer.Stats()
	resp := Response{
		Type:   TypeStatus,
		ID:     msg.ID,
		Status: StatusOK,
		Stats:  &stats,
	}
	if p, ok := s.store.ActiveProfile(); ok {
		resp.Profile = profileDTO(p)
	}
	_ = wsjson.Write(ctx, conn, resp)
}

func (s *Server) sendError(ctx context.Context, conn *websocket.Conn, id, message string) {
	_ = wsjson.Write(ctx, conn, Response{
		Type:    TypeError,
		ID:      id,
		Status:  StatusError,
		Message: message,
	})
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string             `json:"status"`
	Printer *ProfileDTO        `json:"printer,omitempty"`
	Stats   printer.Statistics `json:"stats"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := HealthResponse{Status: StatusOK, Stats: s.printer.Stats()}
	if p, ok := s.store.ActiveProfile(); ok {
		resp.Printer = profileDTO(p)
	} else {
		resp.Status = "no_printer"
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to write health response", zap.Error(err))
	}
}
