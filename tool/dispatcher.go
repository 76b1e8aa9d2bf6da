package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	ErrUnknownTool     = errors.New("unknown tool")
	ErrMissingArgument = errors.New("missing required argument")
)

// Handler executes one declared tool. Invoke is only called once every
// required argument of the declaration is present.
type Handler interface {
	Declaration() Declaration
	// Invoke performs the effect and returns a human readable confirmation.
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

type funcHandler struct {
	decl Declaration
	fn   func(ctx context.Context, args map[string]any) (string, error)
}

func (f *funcHandler) Declaration() Declaration { return f.decl }

func (f *funcHandler) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return f.fn(ctx, args)
}

// HandlerFunc adapts a function to a Handler.
func HandlerFunc(decl Declaration, fn func(ctx context.Context, args map[string]any) (string, error)) Handler {
	return &funcHandler{decl: decl, fn: fn}
}

// Dispatcher maps tool names to handlers. It is shared by the voice and text
// sessions and never fails: every call produces a Result.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	order    []string
	logger   *slog.Logger
}

func NewDispatcher(logger *slog.Logger, handlers ...Handler) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	d := &Dispatcher{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
	for _, h := range handlers {
		d.Register(h)
	}
	return d
}

func (d *Dispatcher) Register(h Handler) *Dispatcher {
	d.mu.Lock()
	defer d.mu.Unlock()

	name := h.Declaration().Name
	if _, exists := d.handlers[name]; !exists {
		d.order = append(d.order, name)
	}
	d.handlers[name] = h
	return d
}

// Declarations returns the declared tools in registration order.
func (d *Dispatcher) Declarations() []Declaration {
	d.mu.RLock()
	defer d.mu.RUnlock()

	decls := make([]Declaration, 0, len(d.order))
	for _, name := range d.order {
		decls = append(decls, d.handlers[name].Declaration())
	}
	return decls
}

// Tools returns the declarations grouped the way model requests expect them.
func (d *Dispatcher) Tools() []Set {
	decls := d.Declarations()
	if len(decls) == 0 {
		return nil
	}
	return []Set{{FunctionDeclarations: decls}}
}

func (d *Dispatcher) handler(name string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[name]
	return h, ok
}

// Dispatch runs the call and returns its result. Unknown tools, missing
// arguments and effect failures come back as error shaped results.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) (res Result) {
	res = Result{ID: call.ID, Name: call.Name}

	defer func() {
		if r := recover(); r != nil {
			res.Response = errorResponse(fmt.Sprintf("tool %s failed: %v", call.Name, r))
		}
		d.logger.Debug("tool call", slog.String("id", call.ID), slog.String("name", call.Name), slog.Any("args", call.Args), slog.Any("res", res.Response))
	}()

	h, ok := d.handler(call.Name)
	if !ok {
		res.Response = errorResponse(fmt.Sprintf("Unknown tool: %s", call.Name))
		return res
	}

	if err := Validate(h.Declaration(), call.Args); err != nil {
		res.Response = errorResponse(err.Error())
		return res
	}

	msg, err := h.Invoke(ctx, call.Args)
	if err != nil {
		d.logger.Error("tool effect failed", slog.String("name", call.Name), slog.Any("err", err))
		res.Response = errorResponse(err.Error())
		return res
	}

	res.Response = successResponse(msg)
	return res
}

// Validate checks that every required argument is present.
func Validate(decl Declaration, args map[string]any) error {
	for _, name := range decl.Parameters.Required {
		if v, ok := args[name]; !ok || v == nil {
			return fmt.Errorf("%w: %s", ErrMissingArgument, name)
		}
	}
	return nil
}
