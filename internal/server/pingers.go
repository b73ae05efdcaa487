package server

import (
	"context"
	"fmt"
)

// PingFunc adapts a probe function to the Pinger interface. Vector stores,
// the agent database and the document directory all expose a
// Ping(ctx) error method, so the serve command wires them with
// NewPinger(name, dep.Ping).
type PingFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewPinger constructs a named Pinger around fn.
func NewPinger(name string, fn func(ctx context.Context) error) *PingFunc {
	return &PingFunc{name: name, fn: fn}
}

// Name returns the dependency label used in readiness responses.
func (p *PingFunc) Name() string { return p.name }

// Ping runs the probe and prefixes failures with the dependency name.
func (p *PingFunc) Ping(ctx context.Context) error {
	if err := p.fn(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", p.name, err)
	}
	return nil
}
