// Package handler implements opcode dispatch: an ordered list of handlers
// per opcode, invoked sequentially against a Peer, closing the session on
// the first failure. It stays a leaf package — it knows a Peer only by the
// small interface below, never the concrete session type, so session can
// import handler without a cycle.
package handler

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/silkrelay/silkproto/internal/wire"
)

// Peer is the surface a handler needs from the session that received a
// message: enough to reply and to identify the connection in logs.
type Peer interface {
	Send(m *wire.Message) error
	RemoteAddr() string
}

// Handler processes one message for one opcode. Returning a non-nil error
// causes the owning session to disconnect.
type Handler func(ctx context.Context, p Peer, m *wire.Message) error

// Service groups a related set of handlers keyed by the opcodes they serve.
type Service interface {
	Handlers() map[wire.Opcode]Handler
}

// Registry dispatches incoming messages to the handlers registered for
// their opcode, in registration order.
type Registry struct {
	mu       sync.RWMutex
	handlers map[wire.Opcode][]Handler
	services map[reflect.Type]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[wire.Opcode][]Handler),
		services: make(map[reflect.Type]bool),
	}
}

// RegisterHandler appends h to the handler chain for opcode.
func (r *Registry) RegisterHandler(opcode wire.Opcode, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[opcode] = append(r.handlers[opcode], h)
}

// RegisterService registers every handler a Service exposes. Registering
// the same concrete service type twice is a no-op, so services can be
// wired from multiple setup paths without duplicating dispatch.
func (r *Registry) RegisterService(svc Service) {
	t := reflect.TypeOf(svc)
	r.mu.Lock()
	if r.services[t] {
		r.mu.Unlock()
		return
	}
	r.services[t] = true
	r.mu.Unlock()

	for opcode, h := range svc.Handlers() {
		r.RegisterHandler(opcode, h)
	}
}

// Dispatch runs every handler registered for m's opcode, in order, against
// p. It stops and returns the first error encountered.
func (r *Registry) Dispatch(ctx context.Context, p Peer, m *wire.Message) error {
	r.mu.RLock()
	chain := r.handlers[m.ID()]
	r.mu.RUnlock()

	for i, h := range chain {
		m.ResetRead()
		if err := h(ctx, p, m); err != nil {
			return fmt.Errorf("handler: opcode %#04x handler %d: %w", m.ID(), i, err)
		}
	}
	return nil
}
