package transport

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Registry manages transport instances and allows lookup by name.
type Registry struct {
	mu         sync.RWMutex
	transports map[string]Transport
}

// NewRegistry creates an empty transport registry.
func NewRegistry() *Registry {
	return &Registry{
		transports: make(map[string]Transport),
	}
}

// Register adds a transport to the registry, replacing any with the same name.
func (r *Registry) Register(t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[t.GetName()] = t
}

// List returns the names of all registered transports, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.transports))
	for name := range r.transports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns all registered transports.
func (r *Registry) All() []Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	transports := make([]Transport, 0, len(r.transports))
	for _, t := range r.transports {
		transports = append(transports, t)
	}
	return transports
}

// New creates a transport instance from the given config. The ses transport
// loads AWS credentials from the default chain using ctx.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transport config: %w", err)
	}

	switch cfg.Type {
	case TypeSMTP:
		return NewSMTP(cfg.SMTP, log), nil
	case TypeSES:
		return NewSESFromConfig(ctx, cfg.SESRegion)
	case TypeStdout:
		return NewStdout(os.Stdout), nil
	case TypeFile:
		return NewFile(cfg.OutputDir), nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", cfg.Type)
	}
}
