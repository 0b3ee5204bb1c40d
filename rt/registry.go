package rt

import (
	"errors"
	"fmt"

	"github.com/speechmatics/speechmatics-go"
)

// Handler is a callback invoked for an incoming server message. Returning
// speechmatics.ErrForceEndSession ends the session gracefully; any other
// non-nil error terminates it and is reported to the Run caller.
type Handler func(msg *ServerMessage) error

// Middleware runs before the plain handlers for a message type. It may
// mutate the message before downstream middleware and handlers see it, and
// may call msg.Suppress to stop further dispatch and the client's default
// handling of the message.
type Middleware func(msg *ServerMessage) error

// Registry maps server message types to ordered lists of middleware and
// handlers. Registration order determines invocation order. The registry is
// meant to be populated before a session starts; mutating it during active
// streaming is unsupported.
type Registry struct {
	handlers   map[ServerMessageType][]Handler
	middleware map[ServerMessageType][]Middleware
}

// NewRegistry returns an empty registry covering all server message types.
func NewRegistry() *Registry {
	r := &Registry{
		handlers:   make(map[ServerMessageType][]Handler, len(serverMessageTypes)),
		middleware: make(map[ServerMessageType][]Middleware, len(serverMessageTypes)),
	}
	for _, t := range serverMessageTypes {
		r.handlers[t] = nil
		r.middleware[t] = nil
	}
	return r
}

// AddEventHandler appends a handler for the given message type, or for
// every type when AllMessages is used. Handlers are not de-duplicated;
// registering the same handler twice invokes it twice.
func (r *Registry) AddEventHandler(messageType ServerMessageType, handler Handler) error {
	if messageType == AllMessages {
		for _, t := range serverMessageTypes {
			r.handlers[t] = append(r.handlers[t], handler)
		}
		return nil
	}
	if _, ok := r.handlers[messageType]; !ok {
		return fmt.Errorf("unknown message type: %q", messageType)
	}
	r.handlers[messageType] = append(r.handlers[messageType], handler)
	return nil
}

// AddMiddleware appends a middleware for the given message type, or for
// every type when AllMessages is used.
func (r *Registry) AddMiddleware(messageType ServerMessageType, middleware Middleware) error {
	if messageType == AllMessages {
		for _, t := range serverMessageTypes {
			r.middleware[t] = append(r.middleware[t], middleware)
		}
		return nil
	}
	if _, ok := r.middleware[messageType]; !ok {
		return fmt.Errorf("unknown message type: %q", messageType)
	}
	r.middleware[messageType] = append(r.middleware[messageType], middleware)
	return nil
}

// Dispatch runs the middleware then the handlers registered for the
// message's type, each in registration order. Dispatch stops early when a
// middleware or handler suppresses the message, requests a forced end, or
// fails.
func (r *Registry) Dispatch(msg *ServerMessage) error {
	for _, mw := range r.middleware[msg.Message] {
		if err := mw(msg); err != nil {
			if errors.Is(err, speechmatics.ErrForceEndSession) {
				return speechmatics.ErrForceEndSession
			}
			return fmt.Errorf("middleware for %s failed: %w", msg.Message, err)
		}
		if msg.Suppressed() {
			return nil
		}
	}
	for _, handler := range r.handlers[msg.Message] {
		if err := handler(msg); err != nil {
			if errors.Is(err, speechmatics.ErrForceEndSession) {
				return speechmatics.ErrForceEndSession
			}
			return fmt.Errorf("handler for %s failed: %w", msg.Message, err)
		}
		if msg.Suppressed() {
			return nil
		}
	}
	return nil
}
