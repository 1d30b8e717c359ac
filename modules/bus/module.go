package bus

import (
	"context"
	"fmt"
	"log"

	"github.com/go-monolith/mono"
)

// Drivers selectable via configuration.
const (
	DriverMemory = "memory"
	DriverNATS   = "nats"
)

// Module provides the fanout bus as a mono module.
type Module struct {
	driver  string
	natsURL string
	bus     Bus
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new bus module for the given driver.
func NewModule(driver, natsURL string) *Module {
	return &Module{driver: driver, natsURL: natsURL}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "bus"
}

// Start connects the selected driver.
func (m *Module) Start(_ context.Context) error {
	switch m.driver {
	case DriverMemory:
		m.bus = NewMemory()
		log.Println("[bus] Using in-memory fanout (single process)")
	case DriverNATS:
		nb, err := NewNATS(m.natsURL)
		if err != nil {
			return err
		}
		m.bus = nb
		log.Printf("[bus] Connected to NATS at %s", m.natsURL)
	default:
		return fmt.Errorf("unknown bus driver: %q", m.driver)
	}
	return nil
}

// Stop closes the bus.
func (m *Module) Stop(_ context.Context) error {
	if m.bus == nil {
		return nil
	}
	if err := m.bus.Close(); err != nil {
		return fmt.Errorf("failed to close bus: %w", err)
	}
	log.Println("[bus] Module stopped")
	return nil
}

// Health reports driver connectivity.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if m.bus == nil {
		return mono.HealthStatus{Healthy: false, Message: "bus not initialized"}
	}
	if nb, ok := m.bus.(*NATS); ok && !nb.IsConnected() {
		return mono.HealthStatus{Healthy: false, Message: "nats disconnected"}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{"driver": m.driver},
	}
}

// Bus returns the active bus.
func (m *Module) Bus() Bus {
	return m.bus
}
