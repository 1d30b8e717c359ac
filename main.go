package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"

	"github.com/example/realtime-chat/modules/bus"
	"github.com/example/realtime-chat/modules/chat"
	"github.com/example/realtime-chat/modules/hub"
	"github.com/example/realtime-chat/modules/presence"
	"github.com/example/realtime-chat/modules/store"
	"github.com/example/realtime-chat/modules/wsserver"
)

const shutdownTimeout = 30 * time.Second

// Config is parsed from the environment. Single-process defaults need no
// external services; point BUS_DRIVER/COUNTER_DRIVER at nats/redis to run
// multiple processes against one broker.
type Config struct {
	Addr           string `env:"ADDR" envDefault:":3000"`
	DBPath         string `env:"DB_PATH" envDefault:"chat.db"`
	BusDriver      string `env:"BUS_DRIVER" envDefault:"memory"`
	NATSURL        string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	CounterDriver  string `env:"COUNTER_DRIVER" envDefault:"memory"`
	RedisAddr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	AllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000,http://localhost:8080"`
}

func main() {
	log.Println("=== Realtime Chat - room fanout, presence, NATS bus ===")

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("Failed to parse configuration: %v", err)
	}

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	logger := app.Logger()

	// Create modules
	storeModule := store.NewModule(cfg.DBPath)
	busModule := bus.NewModule(cfg.BusDriver, cfg.NATSURL)
	hubModule := hub.NewModule(busModule, logger)
	presenceModule := presence.NewModule(cfg.CounterDriver, cfg.RedisAddr, storeModule, hubModule, logger)
	chatModule := chat.NewModule(storeModule, hubModule, presenceModule, logger)
	wsModule := wsserver.NewModule(cfg.Addr, cfg.AllowedOrigins, hubModule, chatModule, presenceModule, storeModule, logger)

	// Registration order is start order: leaves first, transport last.
	app.Register(storeModule)    // persistence + membership queries
	app.Register(busModule)      // distributed fanout bus
	app.Register(hubModule)      // connection registry + room directory
	app.Register(presenceModule) // presence tracker
	app.Register(chatModule)     // ingestion pipeline
	app.Register(wsModule)       // WebSocket transport

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg Config) {
	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Println("Architecture:")
	log.Println("  - Transport: Fiber with WebSocket support")
	log.Printf("  - Fanout bus: %s", cfg.BusDriver)
	log.Printf("  - Presence counter: %s", cfg.CounterDriver)
	log.Printf("  - Store: SQLite at %s", cfg.DBPath)
	log.Println("")
	log.Printf("WebSocket endpoint (ws://localhost%s/ws):", cfg.Addr)
	log.Println("  Identity via X-User-ID/X-User-Name headers or user_id/user_name query params")
	log.Println("  Client message types: send_message, typing_started, typing_stopped, status_update")
	log.Println("")
	log.Printf("Health check: http://localhost%s/health", cfg.Addr)
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
