package channel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/btclassic/internal/groutine"
)

// MaxLineSize bounds a single request line.
const MaxLineSize = 1 << 20

// Handler answers method calls. Returning ErrNotImplemented produces a not-implemented response.
type Handler interface {
	Handle(ctx context.Context, channel, method string, args Args) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, channel, method string, args Args) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, channel, method string, args Args) (any, error) {
	return f(ctx, channel, method, args)
}

// Server reads requests line by line and handles them one at a time.
// Responses and events share the writer given to NewServer; writes are serialised,
// so events may be sent before, during and after Serve.
type Server struct {
	handler Handler
	logger  *logrus.Logger

	mu  sync.Mutex
	enc *json.Encoder
}

// NewServer creates a Server dispatching to handler and writing messages to w.
func NewServer(handler Handler, w io.Writer, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{handler: handler, logger: logger, enc: json.NewEncoder(w)}
}

// Serve processes requests from r until r is exhausted or ctx is done.
// Returns nil on end of input.
func (s *Server) Serve(ctx context.Context, r io.Reader) error {
	type line struct {
		data []byte
		err  error
	}
	lines := make(chan line)
	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()

	groutine.Go(readCtx, "channel-reader", func(ctx context.Context) {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
		for scanner.Scan() {
			data := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line{data: data}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case lines <- line{err: err}:
			case <-ctx.Done():
			}
		}
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			if l.err != nil {
				return fmt.Errorf("failed to read request: %w", l.err)
			}
			if len(bytes.TrimSpace(l.data)) == 0 {
				continue
			}
			if err := s.write(s.handleLine(ctx, l.data)); err != nil {
				return err
			}
		}
	}
}

func (s *Server) handleLine(ctx context.Context, data []byte) Response {
	req, err := DecodeRequest(data)
	if err != nil {
		s.logger.WithError(err).Warn("Rejected request")
		var id json.RawMessage
		if req != nil {
			id = req.ID
		}
		return Response{ID: id, Error: &Error{Code: CodeBadRequest, Message: err.Error()}}
	}
	return s.Dispatch(ctx, req)
}

// Dispatch runs one request through the handler, recovering panics into an internal error.
func (s *Server) Dispatch(ctx context.Context, req *Request) (resp Response) {
	log := s.logger.WithFields(logrus.Fields{
		"channel": req.Channel,
		"method":  req.Method,
	})

	defer func() {
		if p := recover(); p != nil {
			log.WithField("panic", p).Error("Handler panicked")
			resp = Response{ID: req.ID, Error: &Error{Code: CodeInternal, Message: fmt.Sprint(p)}}
		}
	}()

	log.Debug("Handling call")
	result, err := s.handler.Handle(ctx, req.Channel, req.Method, NewArgs(req.Arguments))
	if err != nil && !errors.Is(err, ErrNotImplemented) {
		log.WithError(err).Warn("Call failed")
	}
	return ResponseFor(req.ID, result, err)
}

// Notify sends an event to the host. It is safe to call while Serve runs.
func (s *Server) Notify(name string, args any) error {
	return s.write(Event{Name: name, Arguments: args})
}

func (s *Server) write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}
