// Copyright 2026 The Petitiond Authors
// SPDX-License-Identifier: Apache-2.0

package signature

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Registry binds client ids to trusted public keys. The petition wire
// format carries the verification key inside each petition, which only
// proves possession of some private key; a registry closes that gap by
// requiring the embedded key to match the one registered for the
// claimed client. Registration happens out of band — the file is read
// once at startup.
//
// A nil Registry trusts every embedded key (the original protocol's
// behavior).
type Registry struct {
	keys map[int64]string // client id → base64 public key
}

// LoadRegistry reads a YAML file mapping client ids to base64 public
// keys:
//
//	1: "MIIBIjANBgkqhkiG..."
//	2: "MIIBIjANBgkqhkiG..."
//
// Every key is parsed at load time so a corrupt registry fails at
// startup rather than on the first petition.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trusted keys %s: %w", path, err)
	}

	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing trusted keys %s: %w", path, err)
	}

	keys := make(map[int64]string, len(raw))
	for clientText, keyB64 := range raw {
		clientID, err := strconv.ParseInt(clientText, 10, 64)
		if err != nil || clientID <= 0 {
			return nil, fmt.Errorf("trusted keys %s: invalid client id %q", path, clientText)
		}
		if _, err := ParsePublicKey(keyB64); err != nil {
			return nil, fmt.Errorf("trusted keys %s: client %d: %w", path, clientID, err)
		}
		keys[clientID] = keyB64
	}

	return &Registry{keys: keys}, nil
}

// Allowed reports whether the embedded key is acceptable for the
// client. Unknown clients are rejected when a registry is configured:
// an unregistered client has no trusted key to match.
func (r *Registry) Allowed(clientID int64, publicKeyB64 string) bool {
	if r == nil {
		return true
	}
	trusted, exists := r.keys[clientID]
	return exists && trusted == publicKeyB64
}
