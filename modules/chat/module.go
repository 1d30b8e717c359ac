package chat

import (
	"context"
	"fmt"
	"log"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"

	hubmod "github.com/example/realtime-chat/modules/hub"
	presencemod "github.com/example/realtime-chat/modules/presence"
	storemod "github.com/example/realtime-chat/modules/store"
)

// Module provides the ingestion pipeline as a mono module. Register after
// store, hub and presence.
type Module struct {
	storeModule    *storemod.Module
	hubModule      *hubmod.Module
	presenceModule *presencemod.Module
	logger         types.Logger

	service *Service
}

// Compile-time interface check.
var _ mono.Module = (*Module)(nil)

// NewModule creates a new chat pipeline module.
func NewModule(storeModule *storemod.Module, hubModule *hubmod.Module, presenceModule *presencemod.Module, logger types.Logger) *Module {
	return &Module{
		storeModule:    storeModule,
		hubModule:      hubModule,
		presenceModule: presenceModule,
		logger:         logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "chat"
}

// Start wires the service to its collaborators.
func (m *Module) Start(_ context.Context) error {
	repo := m.storeModule.Repository()
	h := m.hubModule.Hub()
	tracker := m.presenceModule.Tracker()
	if repo == nil || h == nil || tracker == nil {
		return fmt.Errorf("store, hub and presence modules must start before chat")
	}

	m.service = NewService(repo, h, tracker, m.logger)
	log.Println("[chat] Module started")
	return nil
}

// Stop stops the module.
func (m *Module) Stop(_ context.Context) error {
	log.Println("[chat] Module stopped")
	return nil
}

// Service returns the pipeline service.
func (m *Module) Service() *Service {
	return m.service
}
