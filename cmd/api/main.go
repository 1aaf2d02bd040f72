package main

import (
	"errors"
	"io/fs"
	"log"

	"github.com/Egham-7/support-resilience/internal/config"
	pkgconfig "github.com/Egham-7/support-resilience/pkg/config"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

func main() {
	// Load environment files explicitly
	envFiles := []string{".env.local", ".env.development", ".env"}
	config.LoadEnvFiles(envFiles)

	// Load configuration from YAML, falling back to defaults plus environment
	cfg, err := config.LoadFromFile("config.yaml")
	if errors.Is(err, fs.ErrNotExist) {
		fiberlog.Warn("config.yaml not found - using defaults")
		cfg = config.Default()
		cfg.ApplyEnv()
	} else if err != nil {
		fiberlog.Fatalf("Failed to load config: %v", err)
	}

	runtime := pkgconfig.NewRuntime(cfg)

	log.Println("Starting support resilience server...")
	if err := runtime.Run(); err != nil {
		fiberlog.Fatalf("Server failed: %v", err)
	}
}
