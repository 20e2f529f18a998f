// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/zalando/go-keyring"
)

// indexSuffix names the entry holding a service's JSON key list. go-keyring
// cannot enumerate keys on its own.
const indexSuffix = "::index"

// Keyring implements Store on the OS keyring: Keychain on macOS,
// secret-service over D-Bus on Linux, Credential Manager on Windows.
type Keyring struct{}

var _ Store = Keyring{}

// NewKeyring returns a Keyring.
func NewKeyring() Keyring { return Keyring{} }

func checkName(op, service, key string) error {
	if service == "" {
		return aegiserr.Errorf(aegiserr.CodeSecretInvalidInput, "secret %s: service must not be empty", op)
	}
	if key == "" {
		return aegiserr.Errorf(aegiserr.CodeSecretInvalidInput, "secret %s: key must not be empty", op)
	}
	return nil
}

func (Keyring) Set(service, key, value string) error {
	if err := checkName("set", service, key); err != nil {
		return err
	}
	if err := keyring.Set(service, key, value); err != nil {
		return aegiserr.Wrapf(err, aegiserr.CodeSecretKeyringFailure, "storing secret %s/%s", service, key)
	}
	return updateIndex(service, func(keys []string) []string {
		if slices.Contains(keys, key) {
			return keys
		}
		return append(keys, key)
	})
}

func (Keyring) Get(service, key string) (string, error) {
	if err := checkName("get", service, key); err != nil {
		return "", err
	}
	val, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", aegiserr.Errorf(aegiserr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	if err != nil {
		return "", aegiserr.Wrapf(err, aegiserr.CodeSecretKeyringFailure, "reading secret %s/%s", service, key)
	}
	return val, nil
}

func (Keyring) Delete(service, key string) error {
	if err := checkName("delete", service, key); err != nil {
		return err
	}
	err := keyring.Delete(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return aegiserr.Errorf(aegiserr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	if err != nil {
		return aegiserr.Wrapf(err, aegiserr.CodeSecretKeyringFailure, "deleting secret %s/%s", service, key)
	}
	return updateIndex(service, func(keys []string) []string {
		return slices.DeleteFunc(keys, func(k string) bool { return k == key })
	})
}

func (Keyring) List(service string) ([]string, error) {
	return loadIndex(service)
}

func loadIndex(service string) ([]string, error) {
	raw, err := keyring.Get(service, service+indexSuffix)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, aegiserr.Wrapf(err, aegiserr.CodeSecretKeyringFailure, "loading key index for %s", service)
	}
	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, aegiserr.Wrapf(err, aegiserr.CodeSecretKeyringFailure, "decoding key index for %s", service)
	}
	return keys, nil
}

func updateIndex(service string, edit func([]string) []string) error {
	keys, err := loadIndex(service)
	if err != nil {
		return err
	}
	keys = edit(keys)

	indexKey := service + indexSuffix
	if len(keys) == 0 {
		if err := keyring.Delete(service, indexKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("removing empty key index", "service", service, "error", err)
		}
		return nil
	}

	data, err := json.Marshal(keys)
	if err != nil {
		return aegiserr.Wrapf(err, aegiserr.CodeSecretKeyringFailure, "encoding key index for %s", service)
	}
	if err := keyring.Set(service, indexKey, string(data)); err != nil {
		return aegiserr.Wrapf(err, aegiserr.CodeSecretKeyringFailure, "saving key index for %s", service)
	}
	return nil
}
