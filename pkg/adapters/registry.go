package adapters

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tinyland-inc/omnichat/pkg/config"
)

// Factory builds an Integration for one platform from the shared
// configuration. Adapter packages register themselves at init time,
// driver-style.
type Factory func(cfg *config.Config) (Integration, error)

var (
	regMu     sync.RWMutex
	factories = make(map[string]Factory)
)

// Register installs a factory under a platform name. A second
// registration for the same name is a programming error.
func Register(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("adapters: duplicate factory for %q", name))
	}
	factories[name] = f
}

// New builds the adapter registered under name.
func New(name string, cfg *config.Config) (Integration, error) {
	regMu.RLock()
	f, ok := factories[name]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("adapters: no factory registered for %q", name)
	}
	return f(cfg)
}

// Registered lists the known platform names, sorted.
func Registered() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
