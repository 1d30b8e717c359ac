package presence

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"

	hubmod "github.com/example/realtime-chat/modules/hub"
	storemod "github.com/example/realtime-chat/modules/store"
)

// Counter drivers selectable via configuration.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Module provides the presence tracker as a mono module. Register after
// the store and hub modules.
type Module struct {
	driver    string
	redisAddr string

	storeModule *storemod.Module
	hubModule   *hubmod.Module
	logger      types.Logger

	client  *redis.Client
	tracker *Tracker
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new presence module.
func NewModule(driver, redisAddr string, storeModule *storemod.Module, hubModule *hubmod.Module, logger types.Logger) *Module {
	return &Module{
		driver:      driver,
		redisAddr:   redisAddr,
		storeModule: storeModule,
		hubModule:   hubModule,
		logger:      logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "presence"
}

// Start builds the counter and the tracker.
func (m *Module) Start(_ context.Context) error {
	var counter Counter
	switch m.driver {
	case DriverMemory:
		counter = NewMemoryCounter()
		log.Println("[presence] Using in-memory connection counter (single process)")
	case DriverRedis:
		m.client = redis.NewClient(&redis.Options{
			Addr:         m.redisAddr,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		if err := m.client.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		counter = NewRedisCounter(m.client)
		log.Printf("[presence] Connected to Redis at %s", m.redisAddr)
	default:
		return fmt.Errorf("unknown counter driver: %q", m.driver)
	}

	repo := m.storeModule.Repository()
	h := m.hubModule.Hub()
	if repo == nil || h == nil {
		return fmt.Errorf("store and hub modules must start before presence")
	}

	m.tracker = NewTracker(counter, repo, h, nil, m.logger)
	log.Println("[presence] Module started")
	return nil
}

// Stop closes the Redis connection if one was opened.
func (m *Module) Stop(_ context.Context) error {
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			return fmt.Errorf("failed to close Redis connection: %w", err)
		}
	}
	log.Println("[presence] Module stopped")
	return nil
}

// Health reports counter backend connectivity.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.tracker == nil {
		return mono.HealthStatus{Healthy: false, Message: "tracker not initialized"}
	}
	if m.client != nil {
		if err := m.client.Ping(ctx).Err(); err != nil {
			return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("redis ping failed: %v", err)}
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{"counter": m.driver},
	}
}

// Tracker returns the running tracker.
func (m *Module) Tracker() *Tracker {
	return m.tracker
}
