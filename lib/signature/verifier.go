// Copyright 2026 The Petitiond Authors
// SPDX-License-Identifier: Apache-2.0

package signature

import (
	"github.com/petitionworks/petitiond/lib/petition"
)

// Verifier is the petition-level verification step used by the batch
// validator. It combines the cryptographic check with the optional
// trusted-key binding.
type Verifier struct {
	// Registry, when non-nil, requires each petition's embedded key to
	// match the key registered for its client id.
	Registry *Registry
}

// VerifyPetition satisfies petition.VerifyFunc. A registry mismatch is
// reported as a failed verification, not an error: the signature may
// be internally consistent, but it does not authenticate the claimed
// client.
func (v *Verifier) VerifyPetition(r petition.Record) (bool, error) {
	if !v.Registry.Allowed(r.ClientID, r.PublicKey) {
		return false, nil
	}
	return Verify(r.OrderDate, r.DigitalSignature, r.PublicKey)
}
