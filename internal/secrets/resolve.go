// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"strings"

	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/spf13/viper"
)

const scheme = "keyring://"

// IsURI reports whether value is a keyring:// reference.
func IsURI(value string) bool {
	return strings.HasPrefix(value, scheme)
}

// URI formats a keyring reference for service and key.
func URI(service, key string) string {
	return scheme + service + "/" + key
}

// ParseURI splits keyring://service/key. The key may itself contain slashes.
func ParseURI(uri string) (service, key string, err error) {
	if !IsURI(uri) {
		return "", "", aegiserr.Errorf(aegiserr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}
	service, key, ok := strings.Cut(strings.TrimPrefix(uri, scheme), "/")
	if !ok || service == "" || key == "" {
		return "", "", aegiserr.Errorf(aegiserr.CodeSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}
	return service, key, nil
}

// Resolve returns the secret a keyring URI points to. Other values are
// returned unchanged.
func Resolve(s Store, value string) (string, error) {
	if !IsURI(value) {
		return value, nil
	}
	service, key, err := ParseURI(value)
	if err != nil {
		return "", err
	}
	secret, err := s.Get(service, key)
	if err != nil {
		return "", aegiserr.Wrapf(err, aegiserr.CodeSecretKeyringFailure, "resolving %s", value)
	}
	return secret, nil
}

// ResolveViper replaces every keyring URI among v's string values with the
// secret it names. All unresolvable keys are reported together; a credential
// that cannot be read must stop startup rather than reach a backend as a URI.
func ResolveViper(v *viper.Viper, s Store) error {
	var errs []error
	for _, key := range v.AllKeys() {
		val, ok := v.Get(key).(string)
		if !ok || !IsURI(val) {
			continue
		}
		resolved, err := Resolve(s, val)
		if err != nil {
			errs = append(errs, aegiserr.Wrapf(err, aegiserr.CodeConfigValidateInvalidValue,
				"config key %s (%s)", key, val))
			continue
		}
		v.Set(key, resolved)
	}
	if len(errs) == 0 {
		return nil
	}
	return aegiserr.Join(errs...)
}
