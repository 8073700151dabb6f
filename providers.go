package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Provider is the uniform contract over one remote model backend. Invoke
// returns the model's reply normalized to a single string, or a
// *ProviderError. Implementations must abort the underlying network call
// when ctx is cancelled and must never write shared state.
type Provider interface {
	Name() string
	Invoke(ctx context.Context, model string, messages []ChatMessage, temperature float64) (string, error)
}

// ErrUnknownProvider is returned when a model reference carries a prefix
// that no registered provider claims.
var ErrUnknownProvider = errors.New("unknown provider")

// ProviderError is the failure of one model call, classified so the stage
// runner can surface it as a StageResult without inspecting transports.
type ProviderError struct {
	Kind    ErrorKind
	Model   string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Model, e.Message, e.Kind)
}

// providerErr builds a *ProviderError for a model call.
func providerErr(kind ErrorKind, model, format string, args ...interface{}) error {
	return &ProviderError{Kind: kind, Model: model, Message: fmt.Sprintf(format, args...)}
}

// errorKindOf extracts the ErrorKind and message from any model-call error.
func errorKindOf(err error) (ErrorKind, string) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind, pe.Message
	}
	if errors.Is(err, context.Canceled) {
		return ErrKindCancelled, "cancelled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout, "request timed out"
	}
	return ErrKindUnknown, err.Error()
}

// kindFromStatus maps an HTTP status code to an ErrorKind.
func kindFromStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrKindAuth
	case status == http.StatusTooManyRequests:
		return ErrKindRateLimited
	case status == http.StatusBadRequest:
		return ErrKindBadResponse
	default:
		return ErrKindUnknown
	}
}

// classifyTransportErr maps a failed http.Client.Do to an ErrorKind,
// distinguishing caller cancellation from timeouts.
func classifyTransportErr(ctx context.Context, err error) ErrorKind {
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return ErrKindCancelled
	}
	if errors.Is(err, context.Canceled) {
		return ErrKindCancelled
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrKindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	return ErrKindUnknown
}

// Registry resolves model references of the form "provider:model" (or a bare
// model name, which implies the default provider) to a registered Provider.
type Registry struct {
	providers   map[string]Provider
	defaultName string
}

// NewRegistry creates an empty registry. defaultName is the provider used
// for unprefixed model references.
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		providers:   make(map[string]Provider),
		defaultName: defaultName,
	}
}

// Register adds a provider under its name. Registering the same name twice
// replaces the earlier provider.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Has reports whether a provider with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.providers[name]
	return ok
}

// Resolve maps a model reference to its provider and the bare model name
// (prefix stripped). An unknown prefix fails with ErrUnknownProvider before
// any network call is made.
func (r *Registry) Resolve(ref string) (Provider, string, error) {
	name := r.defaultName
	model := ref

	if idx := strings.Index(ref, ":"); idx > 0 {
		prefix := ref[:idx]
		if _, ok := r.providers[prefix]; !ok {
			return nil, "", fmt.Errorf("%w: %q in model reference %q", ErrUnknownProvider, prefix, ref)
		}
		name = prefix
		model = ref[idx+1:]
	}

	p, ok := r.providers[name]
	if !ok {
		return nil, "", fmt.Errorf("%w: no default provider %q for model reference %q", ErrUnknownProvider, name, ref)
	}
	return p, model, nil
}

// Invoke resolves a model reference and dispatches the call to its provider.
func (r *Registry) Invoke(ctx context.Context, ref string, messages []ChatMessage, temperature float64) (string, error) {
	p, model, err := r.Resolve(ref)
	if err != nil {
		return "", err
	}
	return p.Invoke(ctx, model, messages, temperature)
}
