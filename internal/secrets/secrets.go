// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package secrets keeps scanner and model credentials out of config files.
// Config values of the form keyring://service/key are replaced by the secret
// stored under that name in the OS keyring.
package secrets

// DefaultService is the keyring service used by `aegis secret` when none is
// given.
const DefaultService = "aegis"

// Store provides secret storage keyed by service and key name.
type Store interface {
	Set(service, key, value string) error
	// Get fails with CodeSecretNotFound when the key does not exist.
	Get(service, key string) (string, error)
	// Delete fails with CodeSecretNotFound when the key does not exist.
	Delete(service, key string) error
	// List returns the key names stored under service.
	List(service string) ([]string, error)
}
