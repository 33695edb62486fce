package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/khawajanaqeeb/taskchat/internal/intent"
	"github.com/khawajanaqeeb/taskchat/internal/slots"
)

var (
	ErrNoHandler         = errors.New("no handler registered for intent")
	ErrAlreadyRegistered = errors.New("handler already registered for intent")
)

// ResultKind discriminates handler outcomes. A handler never surfaces a raw
// error to the orchestrator; it always answers with one of these variants.
type ResultKind string

const (
	ResultSuccess         ResultKind = "success"
	ResultNotFound        ResultKind = "not_found"
	ResultValidationError ResultKind = "validation_error"
	ResultConflict        ResultKind = "conflict"
)

// Result is a handler's answer to one dispatch.
type Result struct {
	Kind    ResultKind        `json:"kind"`
	Message string            `json:"message,omitempty"`
	Reason  string            `json:"reason,omitempty"`
	Items   []slots.Candidate `json:"items,omitempty"`
}

func Success(message string) Result {
	return Result{Kind: ResultSuccess, Message: message}
}

// SuccessItems is a success that surfaced items the user may reference in a
// follow-up ("delete the first one").
func SuccessItems(message string, items []slots.Candidate) Result {
	return Result{Kind: ResultSuccess, Message: message, Items: items}
}

func NotFound(reason string) Result {
	return Result{Kind: ResultNotFound, Reason: reason}
}

func ValidationError(reason string) Result {
	return Result{Kind: ResultValidationError, Reason: reason}
}

func Conflict(reason string) Result {
	return Result{Kind: ResultConflict, Reason: reason}
}

// Handler performs the actual task mutation for one capability. The userID is
// a pre-verified identity; args are validated against the declared schema
// before Invoke is called.
type Handler interface {
	Invoke(ctx context.Context, userID string, args map[string]string) Result
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, userID string, args map[string]string) Result

func (f HandlerFunc) Invoke(ctx context.Context, userID string, args map[string]string) Result {
	return f(ctx, userID, args)
}

type registration struct {
	capability string
	schema     slots.Schema
	handler    Handler
}

// Registry maps intents to handler capabilities. It performs no business
// logic itself; it validates arguments against the intent's slot schema and
// hands off. New intent/handler pairs register here without touching the
// orchestrator.
type Registry struct {
	mu       sync.RWMutex
	handlers map[intent.Intent]registration
}

func New() *Registry {
	return &Registry{handlers: make(map[intent.Intent]registration)}
}

// Register binds an intent to a handler under the given capability name.
func (r *Registry) Register(in intent.Intent, capability string, handler Handler) error {
	if !intent.Valid(in) || in == intent.IntentChat {
		return fmt.Errorf("intent %q is not dispatchable", in)
	}
	if handler == nil {
		return errors.New("handler is nil")
	}
	schema, ok := slots.SchemaFor(in)
	if !ok {
		return fmt.Errorf("no slot schema declared for intent %q", in)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[in]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, in)
	}
	r.handlers[in] = registration{
		capability: strings.TrimSpace(capability),
		schema:     schema,
		handler:    handler,
	}
	return nil
}

// Capability returns the capability name registered for the intent.
func (r *Registry) Capability(in intent.Intent) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.handlers[in]
	return reg.capability, ok
}

// Validate checks that args satisfy the intent's required-slot schema.
func (r *Registry) Validate(in intent.Intent, args map[string]string) error {
	r.mu.RLock()
	reg, ok := r.handlers[in]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, in)
	}

	var missing []string
	for _, name := range reg.schema.Required() {
		if strings.TrimSpace(args[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required argument(s): %s", strings.Join(missing, ", "))
	}
	for name := range args {
		if _, declared := reg.schema.Field(name); !declared {
			return fmt.Errorf("argument %q is not declared for intent %s", name, in)
		}
	}
	return nil
}

// Dispatch validates args and invokes the registered handler. Schema
// violations come back as a ValidationError result; ErrNoHandler is the only
// error this can return. A panicking handler is contained to the turn.
func (r *Registry) Dispatch(ctx context.Context, in intent.Intent, userID string, args map[string]string) (result Result, err error) {
	r.mu.RLock()
	reg, ok := r.handlers[in]
	r.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrNoHandler, in)
	}
	if verr := r.Validate(in, args); verr != nil {
		return ValidationError(verr.Error()), nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = ValidationError(fmt.Sprintf("handler %s failed", reg.capability))
			err = nil
		}
	}()
	return reg.handler.Invoke(ctx, userID, args), nil
}
