// Package app wires the sequences file, the storage backend and the records
// service together for the server and the CLI.
package app

import (
	"context"
	"fmt"

	"seqnum/internal/config"
	"seqnum/internal/core/expr"
	"seqnum/internal/domain/records"
	"seqnum/internal/infrastructure/storage"
)

// Config selects the sequences file and the backend.
type Config struct {
	// SequencesFile is the YAML file with table and sequence definitions.
	SequencesFile string

	Storage storage.Config

	// MaxProbes bounds the uniqueness probe (0 = default).
	MaxProbes int
}

// App is a ready-to-use records service over an opened backend.
type App struct {
	Registry *records.Registry
	Backend  *storage.Backend
	Service  *records.Service
}

// LoadRegistry reads and compiles the sequences file.
func LoadRegistry(path string) (*records.Registry, error) {
	file, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	env, err := expr.NewEnv()
	if err != nil {
		return nil, err
	}
	return file.Registry(env)
}

// New loads the configuration and opens the backend.
func New(ctx context.Context, cfg Config) (*App, error) {
	registry, err := LoadRegistry(cfg.SequencesFile)
	if err != nil {
		return nil, fmt.Errorf("load sequences: %w", err)
	}

	backend, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	svc := records.NewService(records.ServiceConfig{
		Store:     backend.Store,
		Registry:  registry,
		Guard:     backend.Guard,
		MaxProbes: cfg.MaxProbes,
		Audit:     backend.Audit,
	})

	return &App{Registry: registry, Backend: backend, Service: svc}, nil
}

// Close releases the backend.
func (a *App) Close() {
	a.Backend.Close()
}
