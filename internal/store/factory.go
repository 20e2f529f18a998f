// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"sync"

	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
)

// GatewayStoreFactory creates the gateway store given a directory path.
type GatewayStoreFactory func(dataPath string) (GatewayStore, error)

var (
	gatewayFactories = map[string]GatewayStoreFactory{}
	factoriesMu      sync.RWMutex
)

// RegisterBackend registers the factory for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, gw GatewayStoreFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	gatewayFactories[name] = gw
}

// resolveBackend returns the effective backend name, defaulting to "sqlite".
func resolveBackend(cfg *StorageConfig) string {
	if cfg == nil || cfg.Backend == "" {
		return "sqlite"
	}
	return cfg.Backend
}

// NewGatewayStore creates the gateway store.
func NewGatewayStore(cfg *StorageConfig, dataPath string) (GatewayStore, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := gatewayFactories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, aegiserr.Errorf(aegiserr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}

	return factory(dataPath)
}
