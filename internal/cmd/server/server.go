// Package server parses todo server flags and runs the HTTP runtime.
package server

import (
	"context"
	"flag"
	"log"
	"time"

	appserver "github.com/louisbranch/todos.page/internal/app/server"
	"github.com/louisbranch/todos.page/internal/platform/config"
	"github.com/louisbranch/todos.page/internal/platform/otel"
)

// Config holds todo server command configuration.
type Config struct {
	Port int `env:"TODOS_PAGE_PORT" envDefault:"3000"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.IntVar(&cfg.Port, "port", cfg.Port, "the server port")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the todo HTTP server with tracing configured.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "todos-api")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	return appserver.Run(ctx, cfg.Port)
}
