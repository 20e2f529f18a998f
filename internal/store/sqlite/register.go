// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"path/filepath"

	"github.com/sigil-dev/aegis/internal/store"
)

// GatewayDBName is the database file created under the data directory.
const GatewayDBName = "aegis.db"

func init() {
	store.RegisterBackend("sqlite", newGatewayStore)
}

func newGatewayStore(dataPath string) (store.GatewayStore, error) {
	return NewGatewayStore(filepath.Join(dataPath, GatewayDBName))
}
