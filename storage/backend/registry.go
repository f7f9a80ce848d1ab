package backend

import (
	"flag"
	"fmt"
	"sort"
	"sync"

	"xdao.co/tokenreg/storage"
)

// Opener opens a store from values parsed into the flags its Bind registered.
type Opener func() (storage.Store, error)

// Backend is a build-time plugin that can open a storage.Store.
//
// Backends typically register themselves in init():
//
//	backend.MustRegister(backend.Backend{ ... })
type Backend struct {
	Name        string
	Description string
	Usage       Usage

	// Bind adds backend-specific flags to fs and returns an Opener reading
	// them. Each call must bind fresh variables.
	Bind func(fs *flag.FlagSet) Opener
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register registers a backend.
func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("backend: name is required")
	}
	if b.Bind == nil {
		return fmt.Errorf("backend: %q missing Bind", b.Name)
	}
	if b.Usage == 0 {
		return fmt.Errorf("backend: %q missing Usage", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("backend: %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns backend names matching usage, sorted.
func Names(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// Bindings holds the openers produced by RegisterFlags.
type Bindings struct {
	usage   Usage
	openers map[string]Opener
}

// RegisterFlags registers flags for all backends matching usage.
//
// This enables single-pass flag parsing (Go's flag package rejects unknown flags).
func RegisterFlags(fs *flag.FlagSet, usage Usage) Bindings {
	bs := List(usage)
	out := Bindings{usage: usage, openers: make(map[string]Opener, len(bs))}
	for _, b := range bs {
		out.openers[b.Name] = b.Bind(fs)
	}
	return out
}

// Open opens the named backend using the parsed flag values.
func (b Bindings) Open(name string) (storage.Store, error) {
	open, ok := b.openers[name]
	if !ok {
		if _, known := lookup(name); known {
			return nil, fmt.Errorf("backend %q not supported in this binary", name)
		}
		return nil, fmt.Errorf("unknown backend %q", name)
	}
	return open()
}

// OpenWithConfig opens the named backend with cfg applied as flag values,
// keyed by flag name without dashes (e.g. "localfs-dir").
func OpenWithConfig(name string, usage Usage, cfg map[string]string) (storage.Store, error) {
	b, ok := lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown backend %q", name)
	}
	if !b.Usage.allows(usage) {
		return nil, fmt.Errorf("backend %q not supported in this binary", name)
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	open := b.Bind(fs)
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fs.Set(k, cfg[k]); err != nil {
			return nil, fmt.Errorf("backend %q: config %q: %w", name, k, err)
		}
	}
	return open()
}

func lookup(name string) (Backend, bool) {
	mu.RLock()
	defer mu.RUnlock()
	b, ok := backends[name]
	return b, ok
}
