package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/KalharPandya/upstocks-mcp/internal/instrumentation"
	"github.com/KalharPandya/upstocks-mcp/internal/logging"
	"github.com/KalharPandya/upstocks-mcp/internal/protocol"
	"github.com/KalharPandya/upstocks-mcp/internal/session"
)

// Session error messages. One error code, two distinct messages.
const (
	msgSessionRequired = "Session ID is required"
	msgSessionInvalid  = "Invalid or expired session"
)

// Handler implements one method. Params defaults to an empty map when the
// request carried none. A returned error becomes an internal-error response
// with the error's message.
type Handler func(ctx context.Context, params map[string]any) (any, error)

// gate selects the session check a method is dispatched under.
type gate int

const (
	// gateValidate requires session_id to name a live session.
	gateValidate gate = iota
	// gateNone skips the session check entirely.
	gateNone
	// gateTeardown requires session_id to be present but accepts one that
	// has already ended or expired, so teardown stays idempotent.
	gateTeardown
)

// Dispatcher maps method names to handlers and applies the envelope and
// session checks common to every method.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	gates    map[string]gate

	sessions *session.Registry
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
}

// New creates a dispatcher. metrics may be nil.
func New(sessions *session.Registry, logger *slog.Logger, metrics *instrumentation.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handlers: make(map[string]Handler),
		gates:    make(map[string]gate),
		sessions: sessions,
		logger:   logger,
		metrics:  metrics,
	}
}

// Register binds a handler to a method name. Registering the same name again
// replaces the earlier handler; last writer wins.
func (d *Dispatcher) Register(name string, h Handler) {
	d.register(name, h, gateValidate)
}

// RegisterExempt binds a handler that skips the session requirement, for
// discovery, session bootstrap and the initialization handshake.
func (d *Dispatcher) RegisterExempt(name string, h Handler) {
	d.register(name, h, gateNone)
}

// RegisterTeardown binds a handler that needs a session_id but must keep
// working after the session is gone, so ending twice stays a no-op.
func (d *Dispatcher) RegisterTeardown(name string, h Handler) {
	d.register(name, h, gateTeardown)
}

func (d *Dispatcher) register(name string, h Handler, g gate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = h
	d.gates[name] = g
}

// Methods returns the registered method names, for introspection.
func (d *Dispatcher) Methods() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		out = append(out, name)
	}
	return out
}

// DispatchRaw parses raw bytes and dispatches the envelope. Bytes that do
// not decode as an envelope yield a parse-error response with whatever id
// could be salvaged. Transports call this; they never see an error.
func (d *Dispatcher) DispatchRaw(ctx context.Context, data []byte) *protocol.Response {
	req, err := protocol.ParseRequest(data)
	if err != nil {
		d.logger.Debug("unparseable request", logging.Err(err))
		return protocol.NewError(protocol.SalvageID(data), protocol.CodeParseError, "Parse error")
	}
	return d.Dispatch(ctx, req)
}

// Dispatch validates and routes one request envelope, returning the response
// envelope. It never returns nil and never panics outward.
func (d *Dispatcher) Dispatch(ctx context.Context, req *protocol.Request) *protocol.Response {
	start := time.Now()
	resp := d.dispatch(ctx, req)

	status := logging.StatusSuccess
	code := 0
	if resp.Error != nil {
		status = logging.StatusError
		code = resp.Error.Code
	}
	d.metrics.RecordRequest(ctx, req.Method, status, code, time.Since(start))
	d.logger.Debug("dispatched request",
		logging.Method(req.Method),
		logging.Status(status),
		logging.KeyDuration, time.Since(start))
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, req *protocol.Request) *protocol.Response {
	if req.JSONRPC != protocol.Version {
		return protocol.NewError(req.ID, protocol.CodeInvalidRequest,
			fmt.Sprintf("Invalid request: jsonrpc must be %q", protocol.Version))
	}

	d.mu.RLock()
	handler, ok := d.handlers[req.Method]
	g := d.gates[req.Method]
	d.mu.RUnlock()
	if !ok {
		return protocol.NewError(req.ID, protocol.CodeMethodNotFound,
			fmt.Sprintf("Method not found: %s", req.Method))
	}

	params := make(map[string]any)
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return protocol.NewError(req.ID, protocol.CodeInvalidRequest,
				"Invalid request: params must be an object")
		}
	}

	switch g {
	case gateNone:
	case gateTeardown:
		if id, _ := params["session_id"].(string); id == "" {
			return protocol.NewError(req.ID, protocol.CodeSessionError, msgSessionRequired)
		}
	case gateValidate:
		id, _ := params["session_id"].(string)
		if id == "" {
			return protocol.NewError(req.ID, protocol.CodeSessionError, msgSessionRequired)
		}
		if !d.sessions.Validate(id) {
			return protocol.NewError(req.ID, protocol.CodeSessionError, msgSessionInvalid)
		}
		d.sessions.Touch(id)
	}

	result, err := d.invoke(ctx, handler, params)
	if err != nil {
		d.logger.Warn("handler failed", logging.Method(req.Method), logging.Err(err))
		return protocol.NewError(req.ID, protocol.CodeInternalError, err.Error())
	}
	return protocol.NewResult(req.ID, result)
}

// invoke runs a handler, converting panics into errors so a misbehaving
// handler cannot take the dispatcher down with it.
func (d *Dispatcher) invoke(ctx context.Context, h Handler, params map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, params)
}
