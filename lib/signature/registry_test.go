// Copyright 2026 The Petitiond Authors
// SPDX-License-Identifier: Apache-2.0

package signature

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/petitionworks/petitiond/lib/petition"
)

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trusted-keys.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing registry: %v", err)
	}
	return path
}

func TestLoadRegistry(t *testing.T) {
	key := testKey(t)
	keyB64, err := EncodePublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("EncodePublicKey: %v", err)
	}

	path := writeRegistry(t, fmt.Sprintf("7: %q\n", keyB64))
	registry, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}

	if !registry.Allowed(7, keyB64) {
		t.Error("registered key for client 7 should be allowed")
	}
	if registry.Allowed(7, "someotherkey") {
		t.Error("mismatched key must be refused")
	}
	if registry.Allowed(8, keyB64) {
		t.Error("unregistered client must be refused")
	}
}

func TestLoadRegistryRejectsBadEntries(t *testing.T) {
	key := testKey(t)
	keyB64, err := EncodePublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("EncodePublicKey: %v", err)
	}

	tests := []struct {
		name    string
		content string
	}{
		{"bad client id", fmt.Sprintf("seven: %q\n", keyB64)},
		{"negative client id", fmt.Sprintf("-1: %q\n", keyB64)},
		{"undecodable key", "7: \"not a key\"\n"},
		{"not yaml", ":::\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeRegistry(t, tt.content)
			if _, err := LoadRegistry(path); err == nil {
				t.Error("expected load failure")
			}
		})
	}
}

func TestNilRegistryTrustsAll(t *testing.T) {
	var registry *Registry
	if !registry.Allowed(99, "anything") {
		t.Error("nil registry must trust every key")
	}
}

func TestVerifierRegistryBinding(t *testing.T) {
	registered := testKey(t)
	imposter := testKey(t)
	when := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	registeredB64, err := EncodePublicKey(&registered.PublicKey)
	if err != nil {
		t.Fatalf("EncodePublicKey: %v", err)
	}
	path := writeRegistry(t, fmt.Sprintf("7: %q\n", registeredB64))
	registry, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	verifier := &Verifier{Registry: registry}

	// A valid signature under an unregistered key must not pass: the
	// imposter proves possession of its own key, not client 7's.
	imposterSig, err := Sign(when, imposter)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	imposterB64, err := EncodePublicKey(&imposter.PublicKey)
	if err != nil {
		t.Fatalf("EncodePublicKey: %v", err)
	}
	ok, err := verifier.VerifyPetition(petition.Record{
		ClientID:         7,
		OrderDate:        when,
		DigitalSignature: imposterSig,
		PublicKey:        imposterB64,
	})
	if err != nil {
		t.Fatalf("VerifyPetition: %v", err)
	}
	if ok {
		t.Error("unregistered key passed the registry binding")
	}

	registeredSig, err := Sign(when, registered)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ok, err = verifier.VerifyPetition(petition.Record{
		ClientID:         7,
		OrderDate:        when,
		DigitalSignature: registeredSig,
		PublicKey:        registeredB64,
	})
	if err != nil {
		t.Fatalf("VerifyPetition: %v", err)
	}
	if !ok {
		t.Error("registered key with a valid signature should pass")
	}
}
