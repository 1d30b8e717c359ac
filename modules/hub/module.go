package hub

import (
	"context"
	"fmt"
	"log"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"

	busmod "github.com/example/realtime-chat/modules/bus"
)

// Module owns the hub lifecycle. It must be registered after the bus
// module so the bus is connected before the hub starts.
type Module struct {
	busModule *busmod.Module
	logger    types.Logger
	hub       *Hub
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new hub module.
func NewModule(busModule *busmod.Module, logger types.Logger) *Module {
	return &Module{busModule: busModule, logger: logger}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "hub"
}

// Start builds the hub on the connected bus.
func (m *Module) Start(_ context.Context) error {
	b := m.busModule.Bus()
	if b == nil {
		return fmt.Errorf("bus not started")
	}
	m.hub = New(b, m.logger)
	log.Println("[hub] Module started")
	return nil
}

// Stop closes every live connection.
func (m *Module) Stop(_ context.Context) error {
	if m.hub != nil {
		count := m.hub.ClientCount()
		m.hub.CloseAll()
		log.Printf("[hub] Module stopped - %d clients were connected", count)
	}
	return nil
}

// Health reports the connection count.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if m.hub == nil {
		return mono.HealthStatus{Healthy: false, Message: "hub not initialized"}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connected_clients": m.hub.ClientCount(),
		},
	}
}

// Hub returns the running hub.
func (m *Module) Hub() *Hub {
	return m.hub
}
