// Package wsserver is the Fiber WebSocket transport for the message
// distribution core.
package wsserver

import (
	"context"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	chatmod "github.com/example/realtime-chat/modules/chat"
	hubmod "github.com/example/realtime-chat/modules/hub"
	presencemod "github.com/example/realtime-chat/modules/presence"
	storemod "github.com/example/realtime-chat/modules/store"
)

// Module runs the WebSocket server. Register last: it depends on the hub,
// chat and presence modules being started.
type Module struct {
	addr           string
	allowedOrigins string

	hubModule      *hubmod.Module
	chatModule     *chatmod.Module
	presenceModule *presencemod.Module
	storeModule    *storemod.Module
	logger         types.Logger

	app      *fiber.App
	handlers *Handlers
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new WebSocket server module.
func NewModule(addr, allowedOrigins string, hubModule *hubmod.Module, chatModule *chatmod.Module, presenceModule *presencemod.Module, storeModule *storemod.Module, moduleLogger types.Logger) *Module {
	return &Module{
		addr:           addr,
		allowedOrigins: allowedOrigins,
		hubModule:      hubModule,
		chatModule:     chatModule,
		presenceModule: presenceModule,
		storeModule:    storeModule,
		logger:         moduleLogger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "ws-server"
}

// Start initializes and starts the WebSocket server.
func (m *Module) Start(_ context.Context) error {
	m.handlers = NewHandlers(
		m.hubModule.Hub(),
		m.chatModule.Service(),
		m.presenceModule.Tracker(),
		m.storeModule.Repository(),
		m.logger,
	)

	m.app = fiber.New(fiber.Config{
		AppName:               "Realtime Chat",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
	})

	m.app.Use(recover.New())
	m.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
		Next: func(c *fiber.Ctx) bool {
			return c.Get("Upgrade") == "websocket"
		},
	}))
	m.app.Use(cors.New(cors.Config{
		AllowOrigins: m.allowedOrigins,
		AllowMethods: "GET,OPTIONS",
		AllowHeaders: "Content-Type,Authorization,X-User-ID,X-User-Name",
	}))

	m.registerRoutes()

	// Start server in goroutine with startup error detection
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(m.addr); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("WebSocket server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("WebSocket server started", "addr", m.addr)
	return nil
}

// Stop gracefully shuts down the WebSocket server.
func (m *Module) Stop(ctx context.Context) error {
	if m.app != nil {
		if err := m.app.ShutdownWithContext(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}
	m.logger.Info("WebSocket server stopped")
	return nil
}

// Health reports whether the server is running.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{"addr": m.addr},
	}
}

// registerRoutes sets up the health endpoint and the WebSocket upgrade.
func (m *Module) registerRoutes() {
	m.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "realtime-chat",
		})
	})

	// The surrounding transport layer authenticates the request; this
	// middleware only carries the already-verified identity through the
	// upgrade. Token validation itself is out of scope here.
	m.app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		userID := c.Get("X-User-ID")
		if userID == "" {
			userID = c.Query("user_id")
		}
		userName := c.Get("X-User-Name")
		if userName == "" {
			userName = c.Query("user_name")
		}
		c.Locals("user_id", userID)
		c.Locals("user_name", userName)
		return c.Next()
	})
	m.app.Get("/ws", websocket.New(m.handlers.HandleWebSocket))
}

// errorHandler handles HTTP errors globally.
func (m *Module) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	m.logger.Error("HTTP error", "code", code, "message", message, "error", err)

	return c.Status(code).JSON(fiber.Map{
		"error": message,
	})
}
